// Package aggregate 并发查询多个来源并合并候选列表。
package aggregate

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"deal-ranker/internal/metrics"
	"deal-ranker/internal/model"
	"deal-ranker/internal/source"

	"golang.org/x/sync/errgroup"
)

// DedupePolicy 跨来源去重策略。
type DedupePolicy string

const (
	DedupeNone  DedupePolicy = "none"
	DedupeURL   DedupePolicy = "url"
	DedupeTitle DedupePolicy = "title"
)

// ParseDedupePolicy 空串视为 none。
func ParseDedupePolicy(s string) (DedupePolicy, error) {
	switch p := DedupePolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "", DedupeNone:
		return DedupeNone, nil
	case DedupeURL, DedupeTitle:
		return p, nil
	}
	return "", fmt.Errorf("unknown dedupe policy %q", s)
}

const DefaultTimeout = 10 * time.Second

// Entry 已配置的来源及其超时与结果上限。
type Entry struct {
	Source     source.Source
	Timeout    time.Duration
	MaxResults int
}

// Config 聚合器配置。
type Config struct {
	Dedupe  DedupePolicy
	Metrics *metrics.Metrics
	Logger  *log.Logger
}

// Aggregator 按配置顺序合并各来源结果，单个来源失败只贡献零条。
type Aggregator struct {
	entries []Entry
	dedupe  DedupePolicy
	metrics *metrics.Metrics
	logger  *log.Logger
}

// New 创建聚合器。
func New(entries []Entry, cfg Config) *Aggregator {
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(os.Stdout, "[aggregate] ", log.LstdFlags)
	}
	dedupe := cfg.Dedupe
	if dedupe == "" {
		dedupe = DedupeNone
	}
	return &Aggregator{entries: append([]Entry{}, entries...), dedupe: dedupe, metrics: cfg.Metrics, logger: logger}
}

// Sources 返回来源名称，顺序与配置一致。
func (a *Aggregator) Sources() []string {
	names := make([]string, 0, len(a.entries))
	for _, e := range a.entries {
		names = append(names, e.Source.Name())
	}
	return names
}

// Gather 等待所有来源结束后返回；全部失败时返回空列表而不是错误。
func (a *Aggregator) Gather(ctx context.Context, query string) []model.Listing {
	results := make([][]model.Listing, len(a.entries))

	// 每个 goroutine 只写自己的下标，且总是返回 nil，errgroup 仅用于等待全部结束。
	var g errgroup.Group
	for i, entry := range a.entries {
		i, entry := i, entry
		g.Go(func() error {
			results[i] = a.fetch(ctx, entry, query)
			return nil
		})
	}
	_ = g.Wait()

	merged := make([]model.Listing, 0)
	for _, listings := range results {
		merged = append(merged, listings...)
	}
	merged = Dedupe(merged, a.dedupe)
	a.logger.Printf("query=%q sources=%d candidates=%d", query, len(a.entries), len(merged))
	return merged
}

func (a *Aggregator) fetch(ctx context.Context, entry Entry, query string) []model.Listing {
	name := entry.Source.Name()
	timeout := entry.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	limit := entry.MaxResults
	if limit <= 0 {
		limit = source.DefaultMaxResults
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type reply struct {
		listings []model.Listing
		err      error
	}
	ch := make(chan reply, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- reply{err: fmt.Errorf("source panicked: %v", r)}
			}
		}()
		listings, err := entry.Source.Search(ctx, query, limit)
		ch <- reply{listings: listings, err: err}
	}()

	// 来源不响应 ctx 时也不阻塞整体，迟到的结果被丢弃。
	var res reply
	select {
	case res = <-ch:
	case <-ctx.Done():
		res = reply{err: fmt.Errorf("source timed out after %s: %w", timeout, ctx.Err())}
	}
	if res.err != nil {
		a.logger.Printf("source=%s failed, contributing zero listings: %v", name, res.err)
		a.metrics.SourceResult(name, 0, res.err)
		return nil
	}

	usable := model.FilterUsable(res.listings)
	if dropped := len(res.listings) - len(usable); dropped > 0 {
		a.logger.Printf("source=%s dropped %d listings without title or url", name, dropped)
	}
	a.metrics.SourceResult(name, len(usable), nil)
	return usable
}

// Dedupe 保留首次出现的条目，none 策略原样返回。
func Dedupe(listings []model.Listing, policy DedupePolicy) []model.Listing {
	if policy != DedupeURL && policy != DedupeTitle {
		return listings
	}
	seen := make(map[string]struct{}, len(listings))
	out := make([]model.Listing, 0, len(listings))
	for _, l := range listings {
		key := dedupeKey(l, policy)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, l)
	}
	return out
}

func dedupeKey(l model.Listing, policy DedupePolicy) string {
	if policy == DedupeTitle {
		return strings.Join(strings.Fields(model.Fold(l.Title)), " ")
	}
	u := strings.TrimSpace(l.URL)
	if i := strings.IndexByte(u, '#'); i >= 0 {
		u = u[:i]
	}
	return strings.ToLower(strings.TrimRight(u, "/"))
}
