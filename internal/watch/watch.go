// Package watch 按计划重复执行比价并把结果交给通知器。
package watch

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"deal-ranker/internal/compare"
	"deal-ranker/internal/notifier"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"
)

// DefaultInterval 未配置计划时的间隔。
const DefaultInterval = 2 * time.Hour

// Config 用于监控配置，Schedule 可以是 Go duration 或 5 段 cron 表达式。
type Config struct {
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	Schedule string `yaml:"schedule" json:"schedule"`
	Timeout  string `yaml:"timeout" json:"timeout"`
	Query    string `yaml:"query" json:"query"`
}

// Comparer 比价服务。
type Comparer interface {
	Compare(ctx context.Context, req compare.Request) (compare.Outcome, error)
}

// Watcher 周期性比价，同一时间最多一次运行。
type Watcher struct {
	cmp       Comparer
	notif     notifier.Notifier
	query     string
	interval  time.Duration
	schedule  cron.Schedule
	timeout   time.Duration
	running   atomic.Bool
	newTicker func(time.Duration) ticker
	now       func() time.Time
	logger    *log.Logger
}

type ticker interface {
	C() <-chan time.Time
	Stop()
}

// New 解析计划与超时，计划无法解析时返回错误。
func New(cmp Comparer, n notifier.Notifier, cfg Config, logger *log.Logger) (*Watcher, error) {
	if logger == nil {
		logger = log.New(os.Stdout, "[watch] ", log.LstdFlags)
	}
	interval, schedule, err := parseSchedule(cfg.Schedule)
	if err != nil {
		return nil, err
	}
	timeout := 2 * time.Minute
	if cfg.Timeout != "" {
		if d, err := time.ParseDuration(cfg.Timeout); err == nil && d > 0 {
			timeout = d
		}
	}
	return &Watcher{
		cmp:       cmp,
		notif:     n,
		query:     strings.TrimSpace(cfg.Query),
		interval:  interval,
		schedule:  schedule,
		timeout:   timeout,
		newTicker: defaultTicker,
		now:       time.Now,
		logger:    logger,
	}, nil
}

// Start 启动监控循环，直到上下文取消。单次比价失败只记录日志。
func (w *Watcher) Start(ctx context.Context) error {
	if w.cmp == nil {
		return fmt.Errorf("watcher missing comparer")
	}

	g, ctx := errgroup.WithContext(ctx)

	if w.schedule != nil {
		g.Go(func() error {
			return w.startCron(ctx)
		})
	} else {
		tick := w.newTicker(w.interval)
		ch := tick.C()

		g.Go(func() error {
			defer tick.Stop()
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-ch:
					w.runLogged(ctx)
				drain:
					for {
						select {
						case <-ch:
							continue
						default:
							break drain
						}
					}
				}
			}
		})
	}

	return g.Wait()
}

// RunOnce 立即执行一次；已有运行在进行时返回 ran=false。
func (w *Watcher) RunOnce(ctx context.Context) (out compare.Outcome, ran bool, err error) {
	if w.running.Swap(true) {
		return compare.Outcome{}, false, nil
	}
	defer w.running.Store(false)

	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	out, err = w.cmp.Compare(ctx, compare.Request{Query: w.query})
	if err != nil {
		return compare.Outcome{}, true, fmt.Errorf("compare: %w", err)
	}

	if w.notif != nil && len(out.Ranked) > 0 {
		digest := notifier.Digest{Query: out.Query, Ranked: out.Ranked, Fallback: out.Fallback}
		if err := w.notif.Notify(ctx, digest); err != nil {
			return out, true, fmt.Errorf("notify: %w", err)
		}
	}
	return out, true, nil
}

func (w *Watcher) runLogged(ctx context.Context) {
	out, ran, err := w.RunOnce(ctx)
	switch {
	case err != nil:
		w.logger.Printf("watch run failed: %v", err)
	case !ran:
		w.logger.Printf("previous run still in progress, skipping")
	default:
		w.logger.Printf("watch run query=%q status=%s ranked=%d", out.Query, out.Status, len(out.Ranked))
	}
}

func (w *Watcher) startCron(ctx context.Context) error {
	for {
		next := w.schedule.Next(w.now())
		if next.IsZero() {
			return fmt.Errorf("cron schedule has no next run")
		}
		wait := time.Until(next)
		if wait < 0 {
			wait = 0
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
			w.runLogged(ctx)
		}
	}
}

// parseSchedule 先按 duration 解析，再按标准 cron 解析；空串使用默认间隔。
func parseSchedule(value string) (time.Duration, cron.Schedule, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return DefaultInterval, nil, nil
	}
	if d, err := time.ParseDuration(trimmed); err == nil {
		if d <= 0 {
			return 0, nil, fmt.Errorf("watch interval must be positive: %s", trimmed)
		}
		return d, nil, nil
	}
	schedule, err := cron.ParseStandard(trimmed)
	if err != nil {
		return 0, nil, fmt.Errorf("parse watch schedule %q: %w", trimmed, err)
	}
	return 0, schedule, nil
}

func defaultTicker(d time.Duration) ticker {
	t := time.NewTicker(d)
	return tickerWrapper{t}
}

type tickerWrapper struct {
	*time.Ticker
}

func (t tickerWrapper) C() <-chan time.Time { return t.Ticker.C }
func (t tickerWrapper) Stop()               { t.Ticker.Stop() }
