package rank

import (
	"fmt"
	"strings"

	"deal-ranker/internal/model"
)

// Options 排序策略开关。
type Options struct {
	// ExcludeOverBudget 为 true 时超预算候选在排除阶段直接剔除，否则只在价格维度扣分。
	ExcludeOverBudget bool `yaml:"exclude_over_budget" json:"exclude_over_budget"`
}

// Exclusion 被剔除的候选及原因。
type Exclusion struct {
	Listing model.Listing
	Reason  string
}

// Exclude 纯过滤：retained 保持输入顺序，每个 excluded 至少违反一条规则。
func Exclude(spec model.DecisionSpec, candidates []model.Listing, opts Options) (retained []model.Listing, excluded []Exclusion) {
	retained = make([]model.Listing, 0, len(candidates))
	for _, l := range candidates {
		if reason := exclusionReason(spec, l, opts); reason != "" {
			excluded = append(excluded, Exclusion{Listing: l, Reason: reason})
			continue
		}
		retained = append(retained, l)
	}
	return retained, excluded
}

func exclusionReason(spec model.DecisionSpec, l model.Listing, opts Options) string {
	if len(spec.ConditionAllowed) > 0 && !spec.AllowsCondition(l.Condition) {
		return fmt.Sprintf("condition %s not allowed", l.Condition)
	}
	text := searchableText(l)
	for _, kw := range spec.RequiredKeywords {
		if kw = model.Fold(kw); kw != "" && !strings.Contains(text, kw) {
			return fmt.Sprintf("missing required keyword %q", kw)
		}
	}
	for _, kw := range spec.BannedKeywords {
		if kw = model.Fold(kw); kw != "" && strings.Contains(text, kw) {
			return fmt.Sprintf("contains banned keyword %q", kw)
		}
	}
	for _, b := range spec.BrandBlacklist {
		if matchesBrand(l, b) {
			return fmt.Sprintf("brand %q is blacklisted", strings.TrimSpace(b))
		}
	}
	if whitelist := nonEmpty(spec.BrandWhitelist); len(whitelist) > 0 {
		allowed := false
		for _, b := range whitelist {
			if matchesBrand(l, b) {
				allowed = true
				break
			}
		}
		if !allowed {
			return "brand not in whitelist"
		}
	}
	if opts.ExcludeOverBudget && spec.BudgetMax > 0 && l.Price.Value > spec.BudgetMax {
		return fmt.Sprintf("price %.2f over budget %.2f", l.Price.Value, spec.BudgetMax)
	}
	return ""
}

// searchableText 标题、品牌、型号与关键词折叠后的拼接，关键词匹配只看这些字段。
func searchableText(l model.Listing) string {
	parts := []string{l.Title, l.BrandName()}
	if l.Specs.Model != nil {
		parts = append(parts, *l.Specs.Model)
	}
	parts = append(parts, l.Specs.KeyTerms...)
	return model.Fold(strings.Join(parts, " "))
}

// matchesBrand 品牌已知时比较品牌，未知时看标题里是否有同名词。
func matchesBrand(l model.Listing, brand string) bool {
	brand = model.Fold(brand)
	if brand == "" {
		return false
	}
	if known := model.Fold(l.BrandName()); known != "" {
		return known == brand
	}
	for _, tok := range strings.Fields(model.Fold(l.Title)) {
		if strings.Trim(tok, ".,:;()[]") == brand {
			return true
		}
	}
	return false
}

func nonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			out = append(out, v)
		}
	}
	return out
}
