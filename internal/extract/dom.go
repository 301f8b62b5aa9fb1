package extract

import (
	"strings"

	"deal-ranker/internal/model"

	"github.com/PuerkitoBio/goquery"
)

// Cascade 每个字段按优先级排列的候选选择器。
type Cascade struct {
	Title     []string
	Link      []string
	Price     []string
	Shipping  []string
	Brand     []string
	Condition []string
	Image     []string
	Rating    []string
	Reviews   []string
	Seller    []string
	Sponsored []string
}

// 字段文本长度上限，超出视为选错了元素。
const (
	maxTitleLen     = 300
	maxPriceLen     = 40
	maxShippingLen  = 160
	maxBrandLen     = 60
	maxConditionLen = 80
	maxMiscLen      = 120
)

var genericProductCascade = Cascade{
	Title:     []string{"h1[itemprop='name']", "#productTitle", "h1.product-title", "h1.product-name", ".product-title h1", "h1"},
	Price:     []string{"[itemprop='price']", ".price-current", ".product-price", ".price", "#price", "[data-testid='price']"},
	Shipping:  []string{".shipping", ".delivery", "[data-testid='shipping']", "#shipping"},
	Brand:     []string{"[itemprop='brand']", ".product-brand", ".brand", "#brand"},
	Condition: []string{"[itemprop='itemCondition']", ".condition", ".item-condition", "#condition"},
	Image:     []string{"[itemprop='image']", "img.product-image", "#main-image", "img"},
	Rating:    []string{"[itemprop='ratingValue']", ".rating", ".stars"},
	Reviews:   []string{"[itemprop='reviewCount']", ".review-count", ".reviews"},
	Seller:    []string{"[itemprop='seller']", ".seller-name", ".seller"},
}

var sourceProductCascades = map[model.Source]Cascade{
	model.SourceEbay: {
		Title:     []string{"h1.x-item-title__mainTitle", "#itemTitle", ".x-item-title"},
		Price:     []string{".x-price-primary", "#prcIsum", "#mm-saleDscPrc", ".x-bin-price__content"},
		Shipping:  []string{".ux-labels-values--shipping .ux-textspans", "#fshippingCost", ".d-shipping-minview"},
		Brand:     []string{".ux-labels-values--brand .ux-labels-values__values", "[itemprop='brand'] [itemprop='name']"},
		Condition: []string{".x-item-condition-text .ux-textspans", "#vi-itm-cond", ".x-item-condition-value"},
		Image:     []string{".ux-image-carousel-item img", "#icImg"},
		Rating:    []string{".x-sellercard-atf__data-item", "#si-fb"},
		Reviews:   []string{".x-sellercard-atf__about-seller .ux-textspans--SECONDARY", ".x-sellercard-atf__feedback"},
		Seller:    []string{".x-sellercard-atf__info__about-seller a span", ".mbg-nw"},
	},
	model.SourceNewegg: {
		Title:     []string{"h1.product-title"},
		Price:     []string{".product-price .price-current", ".price-current"},
		Shipping:  []string{".product-delivery .price-ship", ".price-ship"},
		Brand:     []string{".product-view-brand img[title]", ".product-brand"},
		Condition: []string{".product-condition"},
		Rating:    []string{".product-rating .rating", ".rating"},
		Reviews:   []string{".product-rating .item-rating-num", ".item-rating-num"},
		Seller:    []string{".product-seller strong", ".product-seller"},
	},
}

// cascadesFor 已知来源的专用级联在通用级联之前执行。
func cascadesFor(source model.Source, generic Cascade, specific map[model.Source]Cascade) []Cascade {
	if c, ok := specific[source]; ok {
		return []Cascade{c, generic}
	}
	return []Cascade{generic}
}

// DOMHeuristics 按位置选择器抽取详情页字段。
type DOMHeuristics struct{}

func (DOMHeuristics) Name() string { return "dom-heuristics" }

func (DOMHeuristics) Attempt(p *Page) (Fields, bool) {
	root := p.Find("body")
	if root.Length() == 0 {
		root = p.Find("html")
	}
	f := fieldsFromSelection(root, p, cascadesFor(p.Source(), genericProductCascade, sourceProductCascades))
	return f, !f.Empty()
}

func fieldsFromSelection(root *goquery.Selection, p *Page, cascades []Cascade) Fields {
	var f Fields
	pick := func(get func(Cascade) []string, maxLen int) string {
		for _, c := range cascades {
			if text := firstText(root, get(c), maxLen); text != "" {
				return text
			}
		}
		return ""
	}

	f.Title = model.String(pick(func(c Cascade) []string { return c.Title }, maxTitleLen))
	if v, ok := ParsePrice(pick(func(c Cascade) []string { return c.Price }, maxPriceLen)); ok {
		f.Price = &v
	}
	if ship := pick(func(c Cascade) []string { return c.Shipping }, maxShippingLen); ship != "" {
		f.ShippingText = &ship
		f.ShippingCost = ParseShippingCost(ship)
	}
	f.Brand = model.String(pick(func(c Cascade) []string { return c.Brand }, maxBrandLen))
	if cond := pick(func(c Cascade) []string { return c.Condition }, maxConditionLen); cond != "" {
		c := ClassifyCondition(cond)
		f.Condition = &c
	}
	if rating := pick(func(c Cascade) []string { return c.Rating }, maxMiscLen); rating != "" {
		f.Rating = ParseRating(rating)
	}
	if reviews := pick(func(c Cascade) []string { return c.Reviews }, maxMiscLen); reviews != "" {
		f.Reviews = ParseCount(reviews)
	}
	f.SellerName = model.String(pick(func(c Cascade) []string { return c.Seller }, maxMiscLen))

	for _, c := range cascades {
		if href := firstAttr(root, c.Link, "href"); href != "" {
			f.URL = model.String(p.Resolve(href))
			break
		}
	}
	for _, c := range cascades {
		if src := firstAttr(root, c.Image, "src", "data-src"); src != "" {
			f.ImageURL = model.String(p.Resolve(src))
			break
		}
	}
	for _, c := range cascades {
		if len(c.Sponsored) > 0 && firstText(root, c.Sponsored, maxMiscLen) != "" {
			f.Sponsored = model.Bool(true)
			break
		}
	}
	return f
}

// firstText 第一个非空且长度不超过上限的选择器文本胜出。
func firstText(root *goquery.Selection, selectors []string, maxLen int) string {
	for _, sel := range selectors {
		found := root.Find(sel)
		for i := range found.Nodes {
			node := found.Eq(i)
			text := cleanText(node.Text())
			if text == "" {
				text = cleanText(firstNonEmpty(node.AttrOr("content", ""), node.AttrOr("title", ""), node.AttrOr("alt", "")))
			}
			if text != "" && len(text) <= maxLen {
				return text
			}
		}
	}
	return ""
}

func firstAttr(root *goquery.Selection, selectors []string, attrs ...string) string {
	for _, sel := range selectors {
		node := root.Find(sel).First()
		for _, attr := range attrs {
			if v := strings.TrimSpace(node.AttrOr(attr, "")); v != "" {
				return v
			}
		}
	}
	return ""
}
