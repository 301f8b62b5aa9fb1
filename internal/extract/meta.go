package extract

import (
	"strings"

	"deal-ranker/internal/model"
)

// Metadata 读取 Open Graph / Twitter card / 商品 meta 标签。
type Metadata struct{}

func (Metadata) Name() string { return "metadata" }

func (Metadata) Attempt(p *Page) (Fields, bool) {
	var f Fields
	f.Title = model.String(firstNonEmpty(p.Meta("og:title"), p.Meta("twitter:title")))
	f.URL = model.String(firstNonEmpty(p.Meta("og:url"), p.Find("link[rel='canonical']").First().AttrOr("href", "")))
	f.ImageURL = model.String(firstNonEmpty(p.Meta("og:image"), p.Meta("twitter:image")))

	priceText := firstNonEmpty(p.Meta("product:price:amount"), p.Meta("og:price:amount"), p.Meta("price"))
	if priceText == "" && strings.EqualFold(p.Meta("twitter:label1"), "price") {
		priceText = p.Meta("twitter:data1")
	}
	if v, ok := ParsePrice(priceText); ok && priceText != "" {
		f.Price = &v
	}
	f.Currency = model.String(firstNonEmpty(p.Meta("product:price:currency"), p.Meta("og:price:currency"), p.Meta("priceCurrency")))
	f.Brand = model.String(firstNonEmpty(p.Meta("product:brand"), p.Meta("og:brand"), p.Meta("brand")))
	if cond := firstNonEmpty(p.Meta("product:condition"), p.Meta("og:condition")); cond != "" {
		c := ClassifyCondition(cond)
		f.Condition = &c
	}
	switch availability := strings.ToLower(firstNonEmpty(p.Meta("product:availability"), p.Meta("og:availability"))); {
	case availability == "":
	case strings.Contains(availability, "out"):
		f.InStock = model.Bool(false)
	case strings.Contains(availability, "limited"):
		f.InStock = model.Bool(true)
		f.LowStock = model.Bool(true)
	default:
		f.InStock = model.Bool(true)
	}
	return f, !f.Empty()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
