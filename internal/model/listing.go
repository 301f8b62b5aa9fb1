package model

import (
	"strings"
	"time"

	"golang.org/x/text/cases"
)

// Source 标识商品来源，未知来源直接使用原始字符串。
type Source string

const (
	SourceEbay   Source = "ebay"
	SourceNewegg Source = "newegg"
	SourceManual Source = "manual"
)

// Condition 商品成色。
type Condition string

const (
	ConditionNew     Condition = "new"
	ConditionRefurb  Condition = "refurb"
	ConditionUsed    Condition = "used"
	ConditionUnknown Condition = "unknown"
)

// ShippingMethod 配送方式。
type ShippingMethod string

const (
	ShippingStandard  ShippingMethod = "standard"
	ShippingExpedited ShippingMethod = "expedited"
	ShippingUnknown   ShippingMethod = "unknown"
)

const DefaultCurrency = "USD"

// Price 价格，Value 非负。
type Price struct {
	Value    float64 `json:"value"`
	Currency string  `json:"currency"`
}

// Shipping 配送信息，Cost 为 nil 表示未知（与 0 元包邮区分）。
type Shipping struct {
	Cost    *float64       `json:"cost"`
	EtaDays *int           `json:"eta_days"`
	Method  ShippingMethod `json:"method"`
}

// Returns 退货政策，Unknown 表示页面上没有任何证据。
type Returns struct {
	Available  *bool `json:"available"`
	WindowDays *int  `json:"window_days"`
	Unknown    bool  `json:"unknown"`
}

// Seller 卖家信息，Rating 统一为 0-100。
type Seller struct {
	Name       string   `json:"name"`
	Rating     *float64 `json:"rating"`
	Reviews    *int     `json:"reviews"`
	IsOfficial *bool    `json:"is_official"`
}

// Specs 规格关键字段，KeyTerms 小写、按首次出现排序且去重。
type Specs struct {
	Brand    *string  `json:"brand"`
	Model    *string  `json:"model"`
	KeyTerms []string `json:"key_terms"`
}

// Signals 页面信号。
type Signals struct {
	Sponsored bool  `json:"sponsored"`
	LowStock  *bool `json:"low_stock"`
}

// Provenance 记录抓取来源信息，不参与打分。
type Provenance struct {
	CapturedAt time.Time `json:"captured_at"`
	Notes      *string   `json:"notes"`
}

// Listing 表示某个来源的一条归一化商品报价。
type Listing struct {
	ID        string     `json:"id"`
	Source    Source     `json:"source"`
	Title     string     `json:"title"`
	URL       string     `json:"url"`
	ImageURL  *string    `json:"image_url"`
	Price     Price      `json:"price"`
	Condition Condition  `json:"condition"`
	Shipping  Shipping   `json:"shipping"`
	Returns   Returns    `json:"returns"`
	Seller    Seller     `json:"seller"`
	Specs     Specs      `json:"specs"`
	Signals   Signals    `json:"signals"`
	Raw       Provenance `json:"raw"`
}

// NewListing 返回所有字段均为默认值的 Listing，每次调用互不共享。
func NewListing() Listing {
	return Listing{
		Source:    SourceManual,
		Price:     Price{Value: 0, Currency: DefaultCurrency},
		Condition: ConditionUnknown,
		Shipping:  Shipping{Method: ShippingUnknown},
		Returns:   Returns{Unknown: true},
		Specs:     Specs{KeyTerms: []string{}},
		Raw:       Provenance{CapturedAt: time.Now().UTC()},
	}
}

// Usable 判断 Listing 是否可进入聚合：标题与链接均不能为空。
func (l Listing) Usable() bool {
	return strings.TrimSpace(l.Title) != "" && strings.TrimSpace(l.URL) != ""
}

// FilterUsable 丢弃缺少标题或链接的 Listing，保持原有顺序。
func FilterUsable(listings []Listing) []Listing {
	out := make([]Listing, 0, len(listings))
	for _, l := range listings {
		if l.Usable() {
			out = append(out, l)
		}
	}
	return out
}

// Clone 深拷贝，后续阶段只产生新值而不修改输入。
func (l Listing) Clone() Listing {
	c := l
	c.ImageURL = cloneString(l.ImageURL)
	c.Shipping.Cost = cloneFloat(l.Shipping.Cost)
	c.Shipping.EtaDays = cloneInt(l.Shipping.EtaDays)
	c.Returns.Available = cloneBool(l.Returns.Available)
	c.Returns.WindowDays = cloneInt(l.Returns.WindowDays)
	c.Seller.Rating = cloneFloat(l.Seller.Rating)
	c.Seller.Reviews = cloneInt(l.Seller.Reviews)
	c.Seller.IsOfficial = cloneBool(l.Seller.IsOfficial)
	c.Specs.Brand = cloneString(l.Specs.Brand)
	c.Specs.Model = cloneString(l.Specs.Model)
	c.Specs.KeyTerms = append([]string{}, l.Specs.KeyTerms...)
	c.Signals.LowStock = cloneBool(l.Signals.LowStock)
	c.Raw.Notes = cloneString(l.Raw.Notes)
	return c
}

// BrandName 返回品牌，未知时为空串。
func (l Listing) BrandName() string {
	if l.Specs.Brand == nil {
		return ""
	}
	return *l.Specs.Brand
}

// NormalizeRating 把任意刻度的评分换算到 0-100，例如 5 星制 ×20。
func NormalizeRating(value, scale float64) *float64 {
	if scale <= 0 || value < 0 {
		return nil
	}
	v := value / scale * 100
	if v > 100 {
		v = 100
	}
	return &v
}

var folder = cases.Fold()

// Fold 做大小写无关比较用的折叠。
func Fold(s string) string {
	return folder.String(strings.TrimSpace(s))
}

// AppendKeyTerms 追加小写词条，保持首次出现顺序并去重。
func AppendKeyTerms(existing []string, terms ...string) []string {
	seen := make(map[string]struct{}, len(existing)+len(terms))
	out := make([]string, 0, len(existing)+len(terms))
	for _, t := range append(append([]string{}, existing...), terms...) {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// KeyTermsFromText 从标题类文本切出关键词，忽略不超过 minLen 的短词，最多 limit 个。
func KeyTermsFromText(text string, minLen, limit int) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		switch r {
		case ' ', '\t', '\n', '-', '_', '/', ',', '|', '(', ')', '[', ']':
			return true
		}
		return false
	})
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, ".:;!?\"'")
		if len(f) <= minLen {
			continue
		}
		terms = append(terms, f)
	}
	terms = AppendKeyTerms(nil, terms...)
	if limit > 0 && len(terms) > limit {
		terms = terms[:limit]
	}
	return terms
}

func Float(v float64) *float64 { return &v }
func Int(v int) *int           { return &v }
func Bool(v bool) *bool        { return &v }

// String 空串返回 nil。
func String(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}

func cloneFloat(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneBool(p *bool) *bool {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneString(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Normalize 对外部来源返回的 Listing 补齐默认值并修正枚举与取值范围。
func Normalize(l Listing, fallback Source) Listing {
	c := l.Clone()
	c.Title = strings.Join(strings.Fields(c.Title), " ")
	c.URL = strings.TrimSpace(c.URL)
	if c.Source == "" {
		c.Source = fallback
	}
	if c.Price.Value < 0 {
		c.Price.Value = 0
	}
	if strings.TrimSpace(c.Price.Currency) == "" {
		c.Price.Currency = DefaultCurrency
	}
	switch c.Condition {
	case ConditionNew, ConditionRefurb, ConditionUsed:
	default:
		c.Condition = ConditionUnknown
	}
	switch c.Shipping.Method {
	case ShippingStandard, ShippingExpedited:
	default:
		c.Shipping.Method = ShippingUnknown
	}
	if c.Shipping.Cost != nil && *c.Shipping.Cost < 0 {
		c.Shipping.Cost = nil
	}
	if c.Returns.Available == nil && c.Returns.WindowDays == nil {
		c.Returns.Unknown = true
	}
	if c.Seller.Rating != nil {
		if *c.Seller.Rating < 0 {
			c.Seller.Rating = nil
		} else if *c.Seller.Rating > 100 {
			c.Seller.Rating = Float(100)
		}
	}
	if c.Seller.Reviews != nil && *c.Seller.Reviews < 0 {
		c.Seller.Reviews = nil
	}
	c.Specs.KeyTerms = AppendKeyTerms(nil, c.Specs.KeyTerms...)
	if len(c.Specs.KeyTerms) == 0 {
		c.Specs.KeyTerms = KeyTermsFromText(c.Title, 2, 10)
	}
	if c.ID == "" {
		c.ID = ListingID(c.Source, c.URL)
	}
	if c.Raw.CapturedAt.IsZero() {
		c.Raw.CapturedAt = time.Now().UTC()
	}
	return c
}
