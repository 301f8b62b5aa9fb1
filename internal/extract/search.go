package extract

import (
	"regexp"
	"strings"

	"deal-ranker/internal/model"

	"github.com/PuerkitoBio/goquery"
)

// MaxSearchResults 单页最多抓取的结果卡片数。
const MaxSearchResults = 20

// searchParams 按优先级识别搜索词的 URL 参数。
var searchParams = []string{"_nkw", "d", "q", "query", "k", "keyword", "keywords", "search", "searchTerm", "st"}

var searchInputSelectors = []string{
	"input#gh-ac",
	"input[name='_nkw']",
	"input[name='d']",
	"input[type='search']",
	"input[name='q']",
	"input[name='query']",
	"input[aria-label*='Search']",
}

var (
	headingQueryRe = regexp.MustCompile(`(?i)(?:results\s+for|search(?:ed)?\s+for|showing\s+results\s+for)\s*[:"“']?\s*([^"”']+?)\s*["”']?\s*$`)
	titleNoiseRe   = regexp.MustCompile(`(?i)\b(?:for sale|search results?|shop by category|buy online|online shopping)\b`)
	searchPathRe   = regexp.MustCompile(`(?i)/(?:sch|search|s|p/pl|shop)(?:/|$)`)
)

var genericCardSelectors = []string{
	"[data-component-type='s-search-result']",
	"[itemtype*='schema.org/Product']",
	".product-card",
	".search-result",
	"li.product",
	".product-item",
	".product",
}

var sourceCardSelectors = map[model.Source][]string{
	model.SourceEbay:   {"ul.srp-results li.s-item", "li.s-item", ".s-item"},
	model.SourceNewegg: {".item-cells-wrap .item-cell", ".item-cell", ".item-container"},
}

var genericCardCascade = Cascade{
	Title:     []string{"[itemprop='name']", "h2", "h3", ".title", ".product-title", "a[title]"},
	Link:      []string{"a[itemprop='url']", "h2 a", "h3 a", "a.title", "a"},
	Price:     []string{"[itemprop='price']", ".price-current", ".price", ".a-price .a-offscreen"},
	Shipping:  []string{".shipping", ".delivery", ".price-ship"},
	Brand:     []string{"[itemprop='brand']", ".brand"},
	Condition: []string{".condition", "[itemprop='itemCondition']"},
	Image:     []string{"img"},
	Rating:    []string{"[itemprop='ratingValue']", ".rating", ".stars"},
	Reviews:   []string{"[itemprop='reviewCount']", ".review-count", ".reviews"},
	Seller:    []string{".seller"},
	Sponsored: []string{".sponsored", "[data-sponsored='true']"},
}

var sourceCardCascades = map[model.Source]Cascade{
	model.SourceEbay: {
		Title:     []string{".s-item__title span[role='heading']", ".s-item__title"},
		Link:      []string{"a.s-item__link"},
		Price:     []string{".s-item__price"},
		Shipping:  []string{".s-item__shipping", ".s-item__logisticsCost", ".s-item__freeXDays"},
		Condition: []string{".SECONDARY_INFO", ".s-item__subtitle"},
		Image:     []string{".s-item__image-wrapper img", ".s-item__image img"},
		Rating:    []string{".s-item__seller-info-text", ".x-star-rating .clipped"},
		Reviews:   []string{".s-item__reviews-count span", ".s-item__reviews-count"},
		Seller:    []string{".s-item__seller-info-text"},
		Sponsored: []string{".s-item__sep span[aria-hidden='true']"},
	},
	model.SourceNewegg: {
		Title:    []string{"a.item-title"},
		Link:     []string{"a.item-title", "a.item-img"},
		Price:    []string{".price-current"},
		Shipping: []string{".price-ship"},
		Brand:    []string{".item-brand img[title]", ".item-branding img[title]"},
		Image:    []string{"a.item-img img"},
		Rating:   []string{".item-rating i[aria-label]"},
		Reviews:  []string{".item-rating-num"},
	},
}

// placeholderTitles 占位卡片标题，视为无标题。
var placeholderTitles = map[string]struct{}{
	"shop on ebay": {},
}

// IsSearchPage 根据 URL 判断是否为搜索结果页。
func IsSearchPage(p *Page) bool {
	for _, key := range searchParams {
		if p.QueryParam(key) != "" {
			return true
		}
	}
	if p.url != nil && searchPathRe.MatchString(p.url.Path) {
		return true
	}
	return false
}

// DetectSearchQuery 依次尝试 URL 参数、搜索框、标题模式和清洗后的页面标题。
func DetectSearchQuery(p *Page) string {
	for _, key := range searchParams {
		if v := p.QueryParam(key); v != "" {
			return cleanText(v)
		}
	}
	for _, sel := range searchInputSelectors {
		if v := cleanText(p.Find(sel).First().AttrOr("value", "")); v != "" {
			return v
		}
	}
	var fromHeading string
	p.Find("h1, h2").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if m := headingQueryRe.FindStringSubmatch(cleanText(s.Text())); len(m) == 2 {
			fromHeading = cleanText(m[1])
			return false
		}
		return true
	})
	if fromHeading != "" {
		return fromHeading
	}
	return cleanTitle(p.Title())
}

func cleanTitle(title string) string {
	title = leadingSiteRe.ReplaceAllString(title, "")
	for _, sep := range []string{" | ", " - ", " – ", " — "} {
		if idx := strings.Index(title, sep); idx > 0 {
			title = title[:idx]
		}
	}
	title = titleNoiseRe.ReplaceAllString(title, " ")
	return cleanText(title)
}

// SearchResults 抓取最多 limit 个结果卡片，单个异常卡片只会得到空标题/空链接的 Listing。
func SearchResults(p *Page, limit int) []model.Listing {
	if limit <= 0 || limit > MaxSearchResults {
		limit = MaxSearchResults
	}
	source := p.Source()
	cards := findCards(p, source)
	cascades := cascadesFor(source, genericCardCascade, sourceCardCascades)

	listings := make([]model.Listing, 0, limit)
	for i := range cards.Nodes {
		if len(listings) >= limit {
			break
		}
		card := cards.Eq(i)
		f := fieldsFromSelection(card, p, cascades)
		if f.Title != nil {
			if _, placeholder := placeholderTitles[strings.ToLower(*f.Title)]; placeholder {
				f.Title = nil
			}
		}
		if f.Title != nil && strings.HasPrefix(strings.ToLower(*f.Title), "new listing") {
			trimmed := strings.TrimSpace((*f.Title)[len("new listing"):])
			f.Title = model.String(trimmed)
		}
		listings = append(listings, f.Listing(source, ""))
	}
	return listings
}

func findCards(p *Page, source model.Source) *goquery.Selection {
	selectors := append(append([]string{}, sourceCardSelectors[source]...), genericCardSelectors...)
	for _, sel := range selectors {
		if found := p.Find(sel); found.Length() > 0 {
			return found
		}
	}
	return p.doc.Selection.Slice(0, 0)
}
