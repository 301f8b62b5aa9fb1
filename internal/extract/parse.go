package extract

import (
	"regexp"
	"strconv"
	"strings"

	"deal-ranker/internal/model"
)

var (
	priceRe       = regexp.MustCompile(`\$?\s*([\d,]+\.?\d*)`)
	dollarRe      = regexp.MustCompile(`\$\s*([\d,]+\.?\d*)`)
	etaRe         = regexp.MustCompile(`(?i)(\d+)\s*(?:-\s*(\d+)\s*)?(?:business\s+)?days?`)
	ratingRe      = regexp.MustCompile(`(?i)([\d.]+)\s*(?:out of|/)\s*([\d.]+)`)
	percentRe     = regexp.MustCompile(`([\d.]+)\s*%`)
	countRe       = regexp.MustCompile(`([\d,]+)`)
	separatorRe   = regexp.MustCompile(`[|,:;/_\-–—]+`)
	leadingSiteRe = regexp.MustCompile(`(?i)\s*(?:\||-|–|—|:)\s*(?:ebay|newegg(?:\.com)?|amazon(?:\.com)?|walmart(?:\.com)?)\s*$`)
)

// ParsePrice 解析价格文本，识别 $ 前缀并去掉千分位逗号。
func ParsePrice(text string) (float64, bool) {
	for _, m := range priceRe.FindAllStringSubmatch(text, -1) {
		digits := strings.ReplaceAll(m[1], ",", "")
		if digits == "" {
			continue
		}
		v, err := strconv.ParseFloat(digits, 64)
		if err != nil || v < 0 {
			continue
		}
		return v, true
	}
	return 0, false
}

// ParseShippingCost 含 free 视为 0，否则解析 $ 金额，找不到返回 nil（未知）。
func ParseShippingCost(text string) *float64 {
	if strings.Contains(strings.ToLower(text), "free") {
		return model.Float(0)
	}
	m := dollarRe.FindStringSubmatch(text)
	if len(m) < 2 {
		return nil
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
	if err != nil {
		return nil
	}
	return &v
}

// ParseEtaDays 解析 "3 days" / "2-5 business days"，区间取平均。
func ParseEtaDays(text string) *int {
	m := etaRe.FindStringSubmatch(text)
	if len(m) < 2 {
		return nil
	}
	lo, err := strconv.Atoi(m[1])
	if err != nil {
		return nil
	}
	if m[2] != "" {
		if hi, err := strconv.Atoi(m[2]); err == nil {
			lo = (lo + hi) / 2
		}
	}
	return &lo
}

// ClassifyCondition 按子串判断成色。renewed 含 new，所以先判断翻新与二手。
func ClassifyCondition(text string) model.Condition {
	t := strings.ToLower(text)
	switch {
	case t == "":
		return model.ConditionUnknown
	case strings.Contains(t, "refurb"), strings.Contains(t, "renewed"):
		return model.ConditionRefurb
	case strings.Contains(t, "used"), strings.Contains(t, "pre-owned"), strings.Contains(t, "preowned"):
		return model.ConditionUsed
	case strings.Contains(t, "new"):
		return model.ConditionNew
	}
	return model.ConditionUnknown
}

// ClassifyShippingMethod 根据配送文案判断方式。
func ClassifyShippingMethod(text string) model.ShippingMethod {
	t := strings.ToLower(text)
	switch {
	case strings.Contains(t, "expedited"), strings.Contains(t, "express"), strings.Contains(t, "overnight"), strings.Contains(t, "next day"):
		return model.ShippingExpedited
	case strings.Contains(t, "standard"), strings.Contains(t, "economy"):
		return model.ShippingStandard
	}
	return model.ShippingUnknown
}

// ParseRating 解析 "4.5 out of 5" 或 "98.7% positive"，返回 0-100。
func ParseRating(text string) *float64 {
	if m := ratingRe.FindStringSubmatch(text); len(m) == 3 {
		v, err1 := strconv.ParseFloat(m[1], 64)
		scale, err2 := strconv.ParseFloat(m[2], 64)
		if err1 == nil && err2 == nil {
			return model.NormalizeRating(v, scale)
		}
	}
	if m := percentRe.FindStringSubmatch(text); len(m) == 2 {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			return model.NormalizeRating(v, 100)
		}
	}
	return nil
}

// ParseCount 解析 "(1,234)" 之类的计数。
func ParseCount(text string) *int {
	m := countRe.FindStringSubmatch(text)
	if len(m) < 2 {
		return nil
	}
	v, err := strconv.Atoi(strings.ReplaceAll(m[1], ",", ""))
	if err != nil {
		return nil
	}
	return &v
}

// KeywordString 把分隔符换成空格并截断到 limit 个词。
func KeywordString(text string, limit int) string {
	text = leadingSiteRe.ReplaceAllString(text, "")
	fields := strings.Fields(separatorRe.ReplaceAllString(text, " "))
	if limit > 0 && len(fields) > limit {
		fields = fields[:limit]
	}
	return strings.Join(fields, " ")
}
