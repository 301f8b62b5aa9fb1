package rank

import (
	"context"
	"math"
	"sort"
	"strings"

	"deal-ranker/internal/model"
)

// 未知信息按中性分处理，不视为最差。
const neutralScore = 0.5

const (
	freeShippingCap = 25.0
	fastEtaDays     = 2
	slowEtaDays     = 14
	fullReturnDays  = 30
	trustedReviews  = 1000
)

// Local 本地确定性打分器，规则与远程打分服务的契约一致。
type Local struct {
	opts Options
}

// NewLocal 创建本地打分器。
func NewLocal(opts Options) *Local {
	return &Local{opts: opts}
}

func (s *Local) Name() string { return "local" }

// Score 排除不合格候选后逐维度打分并排序。
func (s *Local) Score(_ context.Context, spec model.DecisionSpec, _ *model.PageContext, candidates []model.Listing) ([]model.RankedResult, error) {
	spec, err := spec.Normalized()
	if err != nil {
		return nil, err
	}

	retained, _ := Exclude(spec, candidates, s.opts)
	pool := newPricePool(retained)
	terms := queryTerms(spec)

	results := make([]model.RankedResult, 0, len(retained))
	for _, l := range retained {
		breakdown := map[model.Criterion]float64{
			model.CriterionPrice:       pool.score(l.Price.Value, spec.BudgetMax),
			model.CriterionDelivery:    deliveryScore(l.Shipping, spec.DeliveryPriority),
			model.CriterionReliability: reliabilityScore(l.Seller, spec.RiskTolerance),
			model.CriterionReturns:     returnsScore(l.Returns),
			model.CriterionSpecMatch:   specMatchScore(l, terms),
		}
		results = append(results, model.RankedResult{
			Listing:            l,
			ScoreTotal:         Total(spec.Weights, breakdown),
			ScoreBreakdown:     breakdown,
			ExplanationBullets: explain(l, spec, breakdown, terms),
		})
	}
	Sort(results)
	return results, nil
}

// Total 按固定维度顺序求加权和，结果落在 [0,1]。
func Total(w model.Weights, breakdown map[model.Criterion]float64) float64 {
	var total float64
	for _, c := range model.Criteria {
		total += w.Get(c) * breakdown[c]
	}
	return clamp01(total)
}

// Sort 按总分降序，同分时价格低者在前，再按原顺序。
func Sort(results []model.RankedResult) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].ScoreTotal != results[j].ScoreTotal {
			return results[i].ScoreTotal > results[j].ScoreTotal
		}
		return results[i].Listing.Price.Value < results[j].Listing.Price.Value
	})
}

// pricePool 候选池中已知价格的区间。
type pricePool struct {
	min, max float64
	known    bool
}

func newPricePool(listings []model.Listing) pricePool {
	var p pricePool
	for _, l := range listings {
		v := l.Price.Value
		if v <= 0 {
			continue
		}
		if !p.known || v < p.min {
			p.min = v
		}
		if !p.known || v > p.max {
			p.max = v
		}
		p.known = true
	}
	return p
}

// score 预算内得分不低于 0.55，超预算不高于 0.45，两段都随价格严格递减。
func (p pricePool) score(price, budget float64) float64 {
	if price <= 0 {
		return neutralScore
	}
	if budget <= 0 {
		budget = model.DefaultBudgetMax
	}
	if price <= budget {
		rel := 1.0
		if p.known && p.max > p.min {
			rel = (p.max - price) / (p.max - p.min)
		}
		return clamp01(0.55 + 0.45*(0.5*(1-price/budget)+0.5*clamp01(rel)))
	}
	return clamp01(0.45 * (1 - (price-budget)/budget))
}

func deliveryScore(s model.Shipping, priority model.Level) float64 {
	cost := neutralScore
	if s.Cost != nil {
		cost = clamp01(1 - *s.Cost/freeShippingCap)
	}
	speed := neutralScore
	switch {
	case s.EtaDays != nil:
		days := *s.EtaDays
		if days <= fastEtaDays {
			speed = 1
		} else {
			speed = clamp01(1 - float64(days-fastEtaDays)/float64(slowEtaDays-fastEtaDays))
		}
	case s.Method == model.ShippingExpedited:
		speed = 0.75
	}

	speedWeight := 0.5
	switch priority {
	case model.LevelHigh:
		speedWeight = 0.7
	case model.LevelLow:
		speedWeight = 0.3
	}
	return clamp01(speedWeight*speed + (1-speedWeight)*cost)
}

func reliabilityScore(s model.Seller, risk model.Level) float64 {
	if s.Rating == nil && s.Reviews == nil {
		return neutralScore
	}
	rating := neutralScore
	if s.Rating != nil {
		rating = clamp01(*s.Rating / 100)
	}
	volume := neutralScore
	if s.Reviews != nil {
		volume = clamp01(math.Log10(float64(*s.Reviews)+1) / math.Log10(trustedReviews))
	}

	// 风险容忍度越低，越看重评价数量。
	volumeWeight := 0.3
	switch risk {
	case model.LevelLow:
		volumeWeight = 0.45
	case model.LevelHigh:
		volumeWeight = 0.15
	}
	score := (1-volumeWeight)*rating + volumeWeight*volume
	if s.IsOfficial != nil && *s.IsOfficial {
		score += 0.05
	}
	return clamp01(score)
}

func returnsScore(r model.Returns) float64 {
	if r.Available != nil && !*r.Available {
		return 0
	}
	if r.WindowDays != nil {
		days := *r.WindowDays
		if days >= fullReturnDays {
			return 1
		}
		return clamp01(0.4 + 0.6*float64(days)/fullReturnDays)
	}
	if r.Available != nil && *r.Available {
		return 0.7
	}
	return neutralScore
}

// queryTerms 查询词与必选关键词，折叠后去重。
func queryTerms(spec model.DecisionSpec) []string {
	terms := model.KeyTermsFromText(model.Fold(spec.Query), 1, 0)
	for _, kw := range spec.RequiredKeywords {
		terms = model.AppendKeyTerms(terms, model.Fold(kw))
	}
	return terms
}

func specMatchScore(l model.Listing, terms []string) float64 {
	if len(terms) == 0 {
		return neutralScore
	}
	return float64(matchedTerms(l, terms)) / float64(len(terms))
}

func matchedTerms(l model.Listing, terms []string) int {
	text := searchableText(l)
	n := 0
	for _, t := range terms {
		if strings.Contains(text, t) {
			n++
		}
	}
	return n
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
