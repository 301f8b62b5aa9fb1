// Package rank 按 DecisionSpec 对候选打分排序，打分失败时退化为价格排序。
package rank

import (
	"context"
	"fmt"
	"log"
	"os"
	"sort"

	"deal-ranker/internal/metrics"
	"deal-ranker/internal/model"
)

// FallbackLimit 退化排序最多返回的条数。
const FallbackLimit = 10

// FallbackMessage 退化排序唯一的解释条目。
const FallbackMessage = "Ranking unavailable, results sorted by price"

// Scorer 主打分器，本地规则或远程服务。
type Scorer interface {
	Name() string
	Score(ctx context.Context, spec model.DecisionSpec, pageCtx *model.PageContext, candidates []model.Listing) ([]model.RankedResult, error)
}

// Ranking 一次排序的结果，Fallback 表示使用了价格排序。
type Ranking struct {
	Results  []model.RankedResult
	Fallback bool
	Scorer   string
}

// Engine 排序的最终错误边界：打分失败不返回错误，只有策略非法时拒绝。
type Engine struct {
	primary Scorer
	opts    Options
	metrics *metrics.Metrics
	logger  *log.Logger
}

// NewEngine primary 为 nil 时使用 opts 构造本地打分器。
// opts 同时作用于主打分器返回的结果。
func NewEngine(primary Scorer, opts Options, m *metrics.Metrics, logger *log.Logger) *Engine {
	if primary == nil {
		primary = NewLocal(opts)
	}
	if logger == nil {
		logger = log.New(os.Stdout, "[rank] ", log.LstdFlags)
	}
	return &Engine{primary: primary, opts: opts, metrics: m, logger: logger}
}

// Rank 调用主打分器，出错或 panic 时改用 Fallback。
// 权重和为 0 等非法策略返回错误，不做退化排序。
func (e *Engine) Rank(ctx context.Context, spec model.DecisionSpec, pageCtx *model.PageContext, candidates []model.Listing) (Ranking, error) {
	spec, err := spec.Normalized()
	if err != nil {
		return Ranking{}, fmt.Errorf("rank: %w", err)
	}
	results, err := e.score(ctx, spec, pageCtx, candidates)
	if err != nil {
		e.logger.Printf("scorer=%s failed, falling back to price sort: %v", e.primary.Name(), err)
		e.metrics.Ranked("fallback")
		return Ranking{Results: Fallback(candidates), Fallback: true, Scorer: "fallback"}, nil
	}
	results = e.enforce(spec, candidates, results)
	e.metrics.Ranked("primary")
	return Ranking{Results: results, Scorer: e.primary.Name()}, nil
}

func (e *Engine) score(ctx context.Context, spec model.DecisionSpec, pageCtx *model.PageContext, candidates []model.Listing) (results []model.RankedResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			results, err = nil, fmt.Errorf("scorer panicked: %v", r)
		}
	}()
	results, err = e.primary.Score(ctx, spec, pageCtx, cloneListings(candidates))
	if err == nil && results == nil {
		results = []model.RankedResult{}
	}
	return results, err
}

// enforce 对主打分器的输出再做一次排除，并按候选顺序稳定排序后调用 Sort，
// 远程服务返回的乱序或不合格条目不会流出。
func (e *Engine) enforce(spec model.DecisionSpec, candidates []model.Listing, results []model.RankedResult) []model.RankedResult {
	position := make(map[string]int, len(candidates))
	for i, l := range candidates {
		if _, ok := position[candidateKey(l)]; !ok {
			position[candidateKey(l)] = i
		}
	}
	posOf := func(l model.Listing) int {
		if p, ok := position[candidateKey(l)]; ok {
			return p
		}
		return len(candidates)
	}

	kept := make([]model.RankedResult, 0, len(results))
	for _, r := range results {
		if reason := exclusionReason(spec, r.Listing, e.opts); reason != "" {
			e.logger.Printf("scorer=%s returned excluded listing %q: %s", e.primary.Name(), r.Listing.Title, reason)
			continue
		}
		kept = append(kept, r)
	}
	sort.SliceStable(kept, func(i, j int) bool {
		return posOf(kept[i].Listing) < posOf(kept[j].Listing)
	})
	Sort(kept)
	return kept
}

func candidateKey(l model.Listing) string {
	return string(l.Source) + "\x00" + l.ID + "\x00" + l.URL
}

// Fallback 未经过滤的候选按价格升序取前 10 条，总分固定 0.5。
func Fallback(candidates []model.Listing) []model.RankedResult {
	sorted := cloneListings(candidates)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Price.Value < sorted[j].Price.Value
	})
	if len(sorted) > FallbackLimit {
		sorted = sorted[:FallbackLimit]
	}
	results := make([]model.RankedResult, 0, len(sorted))
	for _, l := range sorted {
		results = append(results, model.RankedResult{
			Listing:            l,
			ScoreTotal:         neutralScore,
			ScoreBreakdown:     map[model.Criterion]float64{},
			ExplanationBullets: []model.Bullet{{Text: FallbackMessage, Type: model.BulletNeutral}},
		})
	}
	return results
}

func cloneListings(in []model.Listing) []model.Listing {
	out := make([]model.Listing, 0, len(in))
	for _, l := range in {
		out = append(out, l.Clone())
	}
	return out
}
