package compare

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deal-ranker/internal/aggregate"
	"deal-ranker/internal/model"
	"deal-ranker/internal/rank"
)

func quietLogger() *log.Logger { return log.New(io.Discard, "", 0) }

type failingSource struct{ name string }

func (f failingSource) Name() string { return f.name }
func (f failingSource) Search(context.Context, string, int) ([]model.Listing, error) {
	return nil, errors.New("unreachable")
}

type fixedSource struct {
	name     string
	listings []model.Listing
}

func (f fixedSource) Name() string { return f.name }
func (f fixedSource) Search(context.Context, string, int) ([]model.Listing, error) {
	return f.listings, nil
}

type memorySpecs struct {
	spec *model.DecisionSpec
	err  error
}

func (m memorySpecs) LoadDecisionSpec(context.Context) (*model.DecisionSpec, error) {
	return m.spec, m.err
}

func offer(title string, price float64) model.Listing {
	l := model.NewListing()
	l.Title = title
	l.URL = "https://example.com/" + title
	l.Price.Value = price
	l.Condition = model.ConditionNew
	return l
}

func newService(specs SpecStore, sources ...aggregate.Entry) *Service {
	agg := aggregate.New(sources, aggregate.Config{Logger: quietLogger()})
	engine := rank.NewEngine(rank.NewLocal(rank.Options{}), rank.Options{}, nil, quietLogger())
	return New(agg, engine, specs, Config{Logger: quietLogger()})
}

func TestCompareAllSourcesFailIsEmptyOutcome(t *testing.T) {
	svc := newService(nil,
		aggregate.Entry{Source: failingSource{name: "ebay"}},
		aggregate.Entry{Source: failingSource{name: "newegg"}},
	)

	out, err := svc.Compare(context.Background(), Request{Query: "rtx 4070"})
	require.NoError(t, err)
	assert.Equal(t, StatusEmpty, out.Status)
	assert.Equal(t, MessageNoCandidates, out.Message)
	assert.Empty(t, out.Candidates)
	assert.Empty(t, out.Ranked)

	last, ok := svc.Last()
	require.True(t, ok)
	assert.Equal(t, StatusEmpty, last.Status)
}

func TestCompareRanksCandidates(t *testing.T) {
	spec := model.DefaultDecisionSpec()
	spec.BudgetMax = 650
	spec.Weights = model.Weights{Price: 1}
	svc := newService(nil, aggregate.Entry{Source: fixedSource{name: "ebay", listings: []model.Listing{
		offer("rtx 4070 a", 550), offer("rtx 4070 b", 600), offer("rtx 4070 c", 580),
	}}})

	out, err := svc.Compare(context.Background(), Request{Query: " rtx 4070 ", Spec: &spec})
	require.NoError(t, err)
	assert.Equal(t, StatusOK, out.Status)
	assert.Equal(t, "rtx 4070", out.Query)
	assert.Equal(t, "rtx 4070", out.Spec.Query)
	require.Len(t, out.Ranked, 3)
	assert.Equal(t, 550.0, out.Ranked[0].Listing.Price.Value)
	assert.False(t, out.Fallback)
	assert.False(t, out.FinishedAt.Before(out.StartedAt))
	assert.Empty(t, spec.Query, "request spec must not be modified")
}

func TestCompareNoMatches(t *testing.T) {
	spec := model.DefaultDecisionSpec()
	spec.RequiredKeywords = []string{"laptop"}
	svc := newService(nil, aggregate.Entry{Source: fixedSource{name: "ebay", listings: []model.Listing{offer("Wireless Mouse", 20)}}})

	out, err := svc.Compare(context.Background(), Request{Query: "mouse", Spec: &spec})
	require.NoError(t, err)
	assert.Equal(t, StatusEmpty, out.Status)
	assert.Equal(t, MessageNoMatches, out.Message)
	assert.Len(t, out.Candidates, 1)
}

func TestCompareEmptyQuery(t *testing.T) {
	svc := newService(nil)
	_, err := svc.Compare(context.Background(), Request{Query: "  "})
	assert.ErrorIs(t, err, model.ErrEmptyQuery)
	_, ok := svc.Last()
	assert.False(t, ok)
}

func TestCompareQueryFromContextKeywords(t *testing.T) {
	svc := newService(nil, aggregate.Entry{Source: fixedSource{name: "ebay", listings: []model.Listing{offer("Sony headphones", 80)}}})
	out, err := svc.Compare(context.Background(), Request{Context: &model.PageContext{Kind: model.PageUnknown, Keywords: "sony headphones"}})
	require.NoError(t, err)
	assert.Equal(t, "sony headphones", out.Query)
}

func TestCompareRejectsZeroWeights(t *testing.T) {
	spec := model.DefaultDecisionSpec()
	spec.Weights = model.Weights{}
	svc := newService(nil)
	_, err := svc.Compare(context.Background(), Request{Query: "q", Spec: &spec})
	assert.ErrorIs(t, err, model.ErrInvalidWeights)
}

func TestResolveSpecOrder(t *testing.T) {
	ctx := context.Background()

	stored := model.DefaultDecisionSpec()
	stored.BudgetMax = 123
	svc := New(nil, nil, memorySpecs{spec: &stored}, Config{DefaultBudget: model.AgentBudgetMax, Logger: quietLogger()})

	got, err := svc.ResolveSpec(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 123.0, got.BudgetMax)

	requested := model.DefaultDecisionSpec()
	requested.BudgetMax = 77
	got, err = svc.ResolveSpec(ctx, &requested)
	require.NoError(t, err)
	assert.Equal(t, 77.0, got.BudgetMax)

	svc = New(nil, nil, memorySpecs{}, Config{DefaultBudget: model.AgentBudgetMax, Logger: quietLogger()})
	got, err = svc.ResolveSpec(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, float64(model.AgentBudgetMax), got.BudgetMax)

	svc = New(nil, nil, memorySpecs{err: errors.New("db locked")}, Config{Logger: quietLogger()})
	got, err = svc.ResolveSpec(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, float64(model.DefaultBudgetMax), got.BudgetMax)
}

func TestResolveSpecNormalizesWeights(t *testing.T) {
	spec := model.DefaultDecisionSpec()
	spec.Weights = model.Weights{Price: 2, Delivery: 2}
	got, err := New(nil, nil, nil, Config{Logger: quietLogger()}).ResolveSpec(context.Background(), &spec)
	require.NoError(t, err)
	assert.True(t, model.ValidateWeights(got.Weights))
	assert.InDelta(t, 0.5, got.Weights.Price, 1e-12)
}

// blockingGatherer 第一次调用阻塞到 release 关闭，用于制造过期请求。
type blockingGatherer struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (b *blockingGatherer) Gather(_ context.Context, query string) []model.Listing {
	first := false
	b.once.Do(func() { first = true })
	if first {
		close(b.entered)
		<-b.release
	}
	return []model.Listing{offer(query, 10)}
}

func TestStaleRunDoesNotOverwriteSnapshot(t *testing.T) {
	g := &blockingGatherer{entered: make(chan struct{}), release: make(chan struct{})}
	engine := rank.NewEngine(nil, rank.Options{}, nil, quietLogger())
	svc := New(g, engine, nil, Config{Logger: quietLogger()})

	done := make(chan Outcome)
	go func() {
		out, _ := svc.Compare(context.Background(), Request{Query: "old"})
		done <- out
	}()
	<-g.entered

	newer, err := svc.Compare(context.Background(), Request{Query: "new"})
	require.NoError(t, err)
	close(g.release)
	stale := <-done

	assert.Equal(t, "old", stale.Query)
	last, ok := svc.Last()
	require.True(t, ok)
	assert.Equal(t, newer.Query, last.Query)
}

func TestRejectedRunDoesNotBlockSnapshot(t *testing.T) {
	g := &blockingGatherer{entered: make(chan struct{}), release: make(chan struct{})}
	engine := rank.NewEngine(nil, rank.Options{}, nil, quietLogger())
	svc := New(g, engine, nil, Config{Logger: quietLogger()})

	done := make(chan error)
	go func() {
		_, err := svc.Compare(context.Background(), Request{Query: "old"})
		done <- err
	}()
	<-g.entered

	_, err := svc.Compare(context.Background(), Request{Query: "   "})
	require.ErrorIs(t, err, model.ErrEmptyQuery)
	bad := model.DefaultDecisionSpec()
	bad.Weights = model.Weights{}
	_, err = svc.Compare(context.Background(), Request{Query: "x", Spec: &bad})
	require.ErrorIs(t, err, ErrInvalidSpec)

	close(g.release)
	require.NoError(t, <-done)

	last, ok := svc.Last()
	require.True(t, ok)
	assert.Equal(t, "old", last.Query)
}

type rejectingRanker struct{}

func (rejectingRanker) Rank(context.Context, model.DecisionSpec, *model.PageContext, []model.Listing) (rank.Ranking, error) {
	return rank.Ranking{}, model.ErrInvalidWeights
}

func TestCompareSurfacesRankerPolicyError(t *testing.T) {
	g := &blockingGatherer{entered: make(chan struct{}), release: make(chan struct{})}
	close(g.release)
	svc := New(g, rejectingRanker{}, nil, Config{Logger: quietLogger()})

	_, err := svc.Compare(context.Background(), Request{Query: "rtx"})
	require.ErrorIs(t, err, ErrInvalidSpec)
	require.ErrorIs(t, err, model.ErrInvalidWeights)
	_, ok := svc.Last()
	assert.False(t, ok)
}
