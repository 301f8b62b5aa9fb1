// Package compare 串起聚合与排序，负责一次完整的比价请求。
package compare

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"deal-ranker/internal/metrics"
	"deal-ranker/internal/model"
	"deal-ranker/internal/rank"
)

// Status 比价结果状态。
type Status string

const (
	StatusOK    Status = "ok"
	StatusEmpty Status = "empty"
)

const (
	MessageNoCandidates = "no candidates found"
	MessageNoMatches    = "no candidates matched the decision spec"
)

// ErrInvalidSpec DecisionSpec 无法使用，错误链中带有具体原因。
var ErrInvalidSpec = errors.New("invalid decision spec")

// Gatherer 多来源聚合。
type Gatherer interface {
	Gather(ctx context.Context, query string) []model.Listing
}

// Ranker 排序引擎，不返回错误。
type Ranker interface {
	Rank(ctx context.Context, spec model.DecisionSpec, pageCtx *model.PageContext, candidates []model.Listing) (rank.Ranking, error)
}

// SpecStore 读取已保存的 DecisionSpec，未保存时返回 nil。
type SpecStore interface {
	LoadDecisionSpec(ctx context.Context) (*model.DecisionSpec, error)
}

// Request 一次比价请求，Spec 为空时使用已保存或默认策略。
type Request struct {
	Query   string              `json:"query"`
	Spec    *model.DecisionSpec `json:"decision_spec,omitempty"`
	Context *model.PageContext  `json:"context,omitempty"`
}

// Outcome 一次比价的完整结果，构造后不再修改。
type Outcome struct {
	Status     Status               `json:"status"`
	Query      string               `json:"query"`
	Spec       model.DecisionSpec   `json:"decision_spec"`
	Candidates []model.Listing      `json:"candidates"`
	Ranked     []model.RankedResult `json:"ranked"`
	Message    string               `json:"message,omitempty"`
	Fallback   bool                 `json:"fallback"`
	StartedAt  time.Time            `json:"started_at"`
	FinishedAt time.Time            `json:"finished_at"`
}

// Config Service 配置。
type Config struct {
	// DefaultBudget 既没有请求策略也没有保存策略时使用的预算。
	DefaultBudget float64
	Metrics       *metrics.Metrics
	Logger        *log.Logger
}

// Service 比价入口，保存最近一次完成的结果快照。
type Service struct {
	gatherer      Gatherer
	ranker        Ranker
	specs         SpecStore
	defaultBudget float64
	metrics       *metrics.Metrics
	logger        *log.Logger
	now           func() time.Time

	generation atomic.Uint64
	last       atomic.Pointer[Outcome]
}

// New 创建 Service，specs 可以为 nil。
func New(g Gatherer, r Ranker, specs SpecStore, cfg Config) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(os.Stdout, "[compare] ", log.LstdFlags)
	}
	budget := cfg.DefaultBudget
	if budget <= 0 {
		budget = model.DefaultBudgetMax
	}
	return &Service{
		gatherer:      g,
		ranker:        r,
		specs:         specs,
		defaultBudget: budget,
		metrics:       cfg.Metrics,
		logger:        logger,
		now:           time.Now,
	}
}

// Compare 聚合并排序；没有候选是正常结果，只有缺少查询词或策略非法时返回错误。
func (s *Service) Compare(ctx context.Context, req Request) (Outcome, error) {
	started := s.now().UTC()

	spec, err := s.ResolveSpec(ctx, req.Spec)
	if err != nil {
		return Outcome{}, err
	}
	query := resolveQuery(req, spec)
	if query == "" {
		return Outcome{}, model.ErrEmptyQuery
	}
	spec.Query = query
	// 只有通过校验的请求才算新一轮，被拒绝的请求不影响快照。
	gen := s.generation.Add(1)

	candidates := s.gatherer.Gather(ctx, query)
	out := Outcome{
		Query:      query,
		Spec:       spec,
		Candidates: candidates,
		Ranked:     []model.RankedResult{},
		StartedAt:  started,
	}

	if len(candidates) == 0 {
		out.Status = StatusEmpty
		out.Message = MessageNoCandidates
	} else {
		ranking, err := s.ranker.Rank(ctx, spec, req.Context, candidates)
		if err != nil {
			return Outcome{}, fmt.Errorf("%w: %w", ErrInvalidSpec, err)
		}
		out.Ranked = ranking.Results
		out.Fallback = ranking.Fallback
		out.Status = StatusOK
		if len(out.Ranked) == 0 {
			out.Status = StatusEmpty
			out.Message = MessageNoMatches
		}
	}
	out.FinishedAt = s.now().UTC()

	s.metrics.CompareFinished(string(out.Status), out.FinishedAt.Sub(started))
	s.logger.Printf("query=%q status=%s candidates=%d ranked=%d fallback=%t", query, out.Status, len(out.Candidates), len(out.Ranked), out.Fallback)

	// 期间有更新的请求开始时，本次结果只返回给调用方，不覆盖快照。
	if s.generation.Load() == gen {
		snapshot := out
		s.last.Store(&snapshot)
	}
	return out, nil
}

// Last 返回最近一次完成的结果。
func (s *Service) Last() (Outcome, bool) {
	p := s.last.Load()
	if p == nil {
		return Outcome{}, false
	}
	return *p, true
}

// ResolveSpec 依次使用请求策略、已保存策略和默认策略，并完成校验与归一化。
func (s *Service) ResolveSpec(ctx context.Context, requested *model.DecisionSpec) (model.DecisionSpec, error) {
	var spec model.DecisionSpec
	switch {
	case requested != nil:
		spec = requested.Clone()
	case s.specs != nil:
		stored, err := s.specs.LoadDecisionSpec(ctx)
		if err != nil {
			s.logger.Printf("load stored decision spec failed, using defaults: %v", err)
		}
		if stored != nil {
			spec = stored.Clone()
		} else {
			spec = model.DefaultDecisionSpecWithBudget(s.defaultBudget)
		}
	default:
		spec = model.DefaultDecisionSpecWithBudget(s.defaultBudget)
	}

	normalized, err := spec.Normalized()
	if err != nil {
		return model.DecisionSpec{}, fmt.Errorf("%w: %w", ErrInvalidSpec, err)
	}
	return normalized, nil
}

func resolveQuery(req Request, spec model.DecisionSpec) string {
	if q := strings.TrimSpace(req.Query); q != "" {
		return q
	}
	if spec.Query != "" {
		return spec.Query
	}
	if req.Context != nil {
		if q := strings.TrimSpace(req.Context.Query); q != "" {
			return q
		}
		return strings.TrimSpace(req.Context.Keywords)
	}
	return ""
}
