package extract

import (
	"encoding/json"
	"log"
	"math"
	"strconv"
	"strings"

	"deal-ranker/internal/model"

	"github.com/PuerkitoBio/goquery"
)

// StructuredData 解析 JSON-LD Product 记录，支持一层 @graph 嵌套。
type StructuredData struct {
	logger *log.Logger
}

func (StructuredData) Name() string { return "structured-data" }

// Attempt 逐个解析脚本块，格式错误的块单独跳过。
func (s StructuredData) Attempt(p *Page) (Fields, bool) {
	var out Fields
	p.Find("script[type='application/ld+json']").Each(func(i int, sel *goquery.Selection) {
		text := strings.TrimSpace(sel.Text())
		if text == "" {
			return
		}
		var data any
		if err := json.Unmarshal([]byte(text), &data); err != nil {
			if s.logger != nil {
				s.logger.Printf("skip malformed json-ld block=%d url=%s: %v", i, p.URL(), err)
			}
			return
		}
		for _, product := range findProducts(data) {
			out.Merge(productFields(product))
		}
	})
	return out, !out.Empty()
}

func findProducts(data any) []map[string]any {
	var nodes []any
	switch v := data.(type) {
	case []any:
		nodes = v
	case map[string]any:
		nodes = []any{v}
	}

	var products []map[string]any
	for _, n := range nodes {
		obj, ok := n.(map[string]any)
		if !ok {
			continue
		}
		if isType(obj, "Product") {
			products = append(products, obj)
		}
		graph, _ := obj["@graph"].([]any)
		for _, g := range graph {
			if gobj, ok := g.(map[string]any); ok && isType(gobj, "Product") {
				products = append(products, gobj)
			}
		}
	}
	return products
}

func isType(obj map[string]any, want string) bool {
	switch t := obj["@type"].(type) {
	case string:
		return strings.EqualFold(t, want)
	case []any:
		for _, v := range t {
			if s, ok := v.(string); ok && strings.EqualFold(s, want) {
				return true
			}
		}
	}
	return false
}

func productFields(obj map[string]any) Fields {
	var f Fields
	f.Title = model.String(stringOf(obj["name"]))
	f.URL = model.String(stringOf(obj["url"]))
	f.ImageURL = model.String(imageOf(obj["image"]))
	f.Brand = model.String(nameOf(obj["brand"]))
	f.Model = model.String(firstString(obj, "model", "mpn", "sku"))
	if c := conditionOf(stringOf(obj["itemCondition"])); c != nil {
		f.Condition = c
	}

	if offer := firstOffer(obj["offers"]); offer != nil {
		price := numberOf(offer["price"])
		if price == nil {
			price = numberOf(offer["lowPrice"])
		}
		f.Price = price
		f.Currency = model.String(stringOf(offer["priceCurrency"]))
		if f.Condition == nil {
			f.Condition = conditionOf(stringOf(offer["itemCondition"]))
		}
		availability := strings.ToLower(stringOf(offer["availability"]))
		switch {
		case strings.Contains(availability, "outofstock"), strings.Contains(availability, "soldout"):
			f.InStock = model.Bool(false)
		case strings.Contains(availability, "limitedavailability"):
			f.InStock = model.Bool(true)
			f.LowStock = model.Bool(true)
		case strings.Contains(availability, "instock"):
			f.InStock = model.Bool(true)
			f.LowStock = model.Bool(false)
		}
		f.SellerName = model.String(nameOf(offer["seller"]))
		if details, ok := offer["shippingDetails"].(map[string]any); ok {
			if rate, ok := details["shippingRate"].(map[string]any); ok {
				f.ShippingCost = numberOf(rate["value"])
			}
		}
	}

	if rating, ok := obj["aggregateRating"].(map[string]any); ok {
		if v := numberOf(rating["ratingValue"]); v != nil {
			scale := 5.0
			if best := numberOf(rating["bestRating"]); best != nil && *best > 0 {
				scale = *best
			}
			f.Rating = model.NormalizeRating(*v, scale)
		}
		if n := countOf(rating["reviewCount"]); n != nil {
			f.Reviews = n
		} else if n := countOf(rating["ratingCount"]); n != nil {
			f.Reviews = n
		}
	}
	return f
}

func firstOffer(v any) map[string]any {
	switch o := v.(type) {
	case map[string]any:
		if inner, ok := o["offers"]; ok && isType(o, "AggregateOffer") {
			if first := firstOffer(inner); first != nil && first["price"] != nil {
				return first
			}
		}
		return o
	case []any:
		for _, item := range o {
			if m, ok := item.(map[string]any); ok {
				return m
			}
		}
	}
	return nil
}

func conditionOf(s string) *model.Condition {
	if s == "" {
		return nil
	}
	s = strings.ToLower(s)
	var c model.Condition
	switch {
	case strings.Contains(s, "refurbished"):
		c = model.ConditionRefurb
	case strings.Contains(s, "used"), strings.Contains(s, "damaged"):
		c = model.ConditionUsed
	case strings.Contains(s, "new"):
		c = model.ConditionNew
	default:
		return nil
	}
	return &c
}

func stringOf(v any) string {
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	}
	return ""
}

func nameOf(v any) string {
	switch b := v.(type) {
	case string:
		return strings.TrimSpace(b)
	case map[string]any:
		return stringOf(b["name"])
	case []any:
		if len(b) > 0 {
			return nameOf(b[0])
		}
	}
	return ""
}

func imageOf(v any) string {
	switch img := v.(type) {
	case string:
		return strings.TrimSpace(img)
	case []any:
		if len(img) > 0 {
			return imageOf(img[0])
		}
	case map[string]any:
		if u := stringOf(img["url"]); u != "" {
			return u
		}
		return stringOf(img["contentUrl"])
	}
	return ""
}

func firstString(obj map[string]any, keys ...string) string {
	for _, k := range keys {
		if s := stringOf(obj[k]); s != "" {
			return s
		}
	}
	return ""
}

// countOf 超过 int32 范围的计数视为无效。
func countOf(v any) *int {
	n := numberOf(v)
	if n == nil || math.IsNaN(*n) || *n > math.MaxInt32 {
		return nil
	}
	return model.Int(int(*n))
}

func numberOf(v any) *float64 {
	switch n := v.(type) {
	case float64:
		if n < 0 {
			return nil
		}
		return &n
	case string:
		if p, ok := ParsePrice(n); ok {
			return &p
		}
	}
	return nil
}
