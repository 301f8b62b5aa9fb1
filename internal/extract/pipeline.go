package extract

import (
	"log"
	"os"
	"strings"

	"deal-ranker/internal/model"
)

// FallbackKeywordLimit 文本兜底最多保留的词数。
const FallbackKeywordLimit = 5

// Strategy 一种抽取手段：尝试抽取，返回部分字段或未命中。
type Strategy interface {
	Name() string
	Attempt(p *Page) (Fields, bool)
}

// Result 单页抽取结果。
type Result struct {
	Context  model.PageContext `json:"context"`
	Listings []model.Listing   `json:"listings"`
}

// Pipeline 按优先级依次执行策略。
type Pipeline struct {
	strategies []Strategy
	logger     *log.Logger
}

// NewPipeline 使用默认策略顺序：结构化数据 → meta → DOM 启发式。
func NewPipeline(logger *log.Logger) *Pipeline {
	if logger == nil {
		logger = log.New(os.Stdout, "[extract] ", log.LstdFlags)
	}
	return &Pipeline{
		strategies: []Strategy{StructuredData{logger: logger}, Metadata{}, DOMHeuristics{}},
		logger:     logger,
	}
}

// WithStrategies 替换策略列表，主要用于测试。
func (p *Pipeline) WithStrategies(strategies ...Strategy) *Pipeline {
	return &Pipeline{strategies: strategies, logger: p.logger}
}

// Extract 自动判断页面类型。
func (p *Pipeline) Extract(page *Page) Result {
	if IsSearchPage(page) {
		ctx, listings := p.Search(page, MaxSearchResults)
		return Result{Context: ctx, Listings: listings}
	}
	ctx := p.Product(page)
	res := Result{Context: ctx, Listings: []model.Listing{}}
	if ctx.Product != nil {
		res.Listings = append(res.Listings, *ctx.Product)
	}
	return res
}

// Product 抽取商品详情页上下文；缺少标题或价格时不生成 Listing，只给出兜底关键词。
func (p *Pipeline) Product(page *Page) model.PageContext {
	ctx := model.PageContext{Kind: model.PageProduct, URL: page.URL(), Source: page.Source()}

	var fields Fields
	for _, s := range p.strategies {
		f, ok := s.Attempt(page)
		if !ok {
			continue
		}
		fields.Merge(f)
	}

	if fields.Title == nil || fields.Price == nil {
		ctx.Keywords = fallbackKeywords(page)
		if fields.Title == nil {
			ctx.Kind = model.PageUnknown
		}
		p.logger.Printf("incomplete product url=%s title=%t price=%t keywords=%q", page.URL(), fields.Title != nil, fields.Price != nil, ctx.Keywords)
		return ctx
	}

	listing := fields.Listing(ctx.Source, page.URL())
	ctx.Product = &listing
	return ctx
}

// Search 识别搜索词并抓取结果卡片。
func (p *Pipeline) Search(page *Page, limit int) (model.PageContext, []model.Listing) {
	ctx := model.PageContext{Kind: model.PageSearch, URL: page.URL(), Source: page.Source()}
	ctx.Query = DetectSearchQuery(page)
	listings := SearchResults(page, limit)
	p.logger.Printf("search page url=%s query=%q cards=%d", page.URL(), ctx.Query, len(listings))
	return ctx, listings
}

// fallbackKeywords 从 <title> 或 meta keywords 派生关键词串。
func fallbackKeywords(page *Page) string {
	text := page.Title()
	if strings.TrimSpace(text) == "" {
		text = page.Meta("keywords")
	}
	return KeywordString(text, FallbackKeywordLimit)
}
