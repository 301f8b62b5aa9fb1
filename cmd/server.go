package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gopkg.in/yaml.v3"

	"deal-ranker/internal/aggregate"
	"deal-ranker/internal/api"
	"deal-ranker/internal/compare"
	"deal-ranker/internal/extract"
	"deal-ranker/internal/metrics"
	"deal-ranker/internal/model"
	"deal-ranker/internal/notifier"
	"deal-ranker/internal/rank"
	"deal-ranker/internal/source"
	"deal-ranker/internal/storage"
	"deal-ranker/internal/watch"
)

// AppConfig 应用配置。
type AppConfig struct {
	Server   ServerConfig         `yaml:"server"`
	Database DatabaseConfig       `yaml:"database"`
	Sources  []source.Config      `yaml:"sources"`
	Ranking  RankingConfig        `yaml:"ranking"`
	Watch    watch.Config         `yaml:"watch"`
	Email    notifier.EmailConfig `yaml:"email"`
	Defaults DefaultsConfig       `yaml:"defaults"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// RankingConfig 排序与聚合策略，Authority.BaseURL 为空时使用本地打分。
type RankingConfig struct {
	Authority         rank.AuthorityConfig `yaml:"authority"`
	ExcludeOverBudget bool                 `yaml:"exclude_over_budget"`
	Dedupe            string               `yaml:"dedupe"`
	SourceTimeout     string               `yaml:"source_timeout"`
}

// DefaultsConfig 入口默认值。
type DefaultsConfig struct {
	BudgetMax float64 `yaml:"budget_max"`
}

func main() {
	once := flag.Bool("once", false, "run a single comparison for watch.query and exit")
	flag.Parse()

	cfg, err := loadConfig()
	if err != nil {
		log.Printf("load config error: %v", err)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *once {
		out, err := runOnceManual(ctx, cfg, buildApp)
		if err != nil {
			log.Printf("manual run error: %v", err)
			return
		}
		log.Printf("manual run query=%q status=%s candidates=%d ranked=%d fallback=%t %s",
			out.Query, out.Status, len(out.Candidates), len(out.Ranked), out.Fallback, out.Message)
		return
	}

	deps, cleanup, err := buildApp(cfg)
	if err != nil {
		log.Printf("init app error: %v", err)
		return
	}
	defer cleanup()

	addr := cfg.Server.Addr
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{Addr: addr, Handler: deps.handler}

	var sched runner
	if cfg.Watch.Enabled {
		sched = deps.watcher
	}

	log.Printf("listening on %s", addr)
	if err := runServer(ctx, srv, sched, 5*time.Second); err != nil {
		log.Printf("server error: %v", err)
	}
}

// loadConfig 先加载 .env，再读取 YAML 并展开其中的 ${VAR}。
func loadConfig() (AppConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return AppConfig{}, fmt.Errorf("load .env: %w", err)
	}
	path := os.Getenv("CONFIG_FILE")
	if path == "" {
		path = "config.yaml"
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return AppConfig{}, err
	}
	return parseConfig(data)
}

func parseConfig(data []byte) (AppConfig, error) {
	var cfg AppConfig
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
		return AppConfig{}, fmt.Errorf("parse config: %w", err)
	}
	if cfg.Defaults.BudgetMax <= 0 {
		cfg.Defaults.BudgetMax = model.AgentBudgetMax
	}
	return cfg, nil
}

type runner interface {
	Start(ctx context.Context) error
}

type onceRunner interface {
	RunOnce(ctx context.Context) (compare.Outcome, bool, error)
}

type httpServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// appDeps 组装好的组件。
type appDeps struct {
	handler http.Handler
	watcher interface {
		runner
		onceRunner
	}
}

// buildApp 按配置组装全部组件，返回的 cleanup 负责关闭数据库。
func buildApp(cfg AppConfig) (appDeps, func(), error) {
	dbPath := cfg.Database.Path
	if dbPath == "" {
		dbPath = "deals.db"
	}
	store, err := storage.NewStore(dbPath)
	if err != nil {
		return appDeps{}, func() {}, fmt.Errorf("init store: %w", err)
	}
	cleanup := func() { _ = store.Close() }

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	client := &http.Client{Timeout: 15 * time.Second}
	pipeline := extract.NewPipeline(nil)

	agg, err := buildAggregator(cfg, client, pipeline, m)
	if err != nil {
		cleanup()
		return appDeps{}, func() {}, err
	}

	opts := rank.Options{ExcludeOverBudget: cfg.Ranking.ExcludeOverBudget}
	var primary rank.Scorer = rank.NewLocal(opts)
	if cfg.Ranking.Authority.BaseURL != "" {
		primary = rank.NewAuthority(cfg.Ranking.Authority, nil)
	}
	engine := rank.NewEngine(primary, opts, m, nil)

	svc := compare.New(agg, engine, store, compare.Config{DefaultBudget: cfg.Defaults.BudgetMax, Metrics: m})

	w, err := watch.New(svc, buildNotifier(cfg.Email), cfg.Watch, nil)
	if err != nil {
		cleanup()
		return appDeps{}, func() {}, err
	}

	handler := api.NewHandler(svc, store, pipeline, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return appDeps{handler: handler, watcher: w}, cleanup, nil
}

func buildAggregator(cfg AppConfig, client *http.Client, pipeline *extract.Pipeline, m *metrics.Metrics) (*aggregate.Aggregator, error) {
	dedupe, err := aggregate.ParseDedupePolicy(cfg.Ranking.Dedupe)
	if err != nil {
		return nil, err
	}
	fallbackTimeout := aggregate.DefaultTimeout
	if d, err := time.ParseDuration(cfg.Ranking.SourceTimeout); err == nil && d > 0 {
		fallbackTimeout = d
	}

	logger := log.New(os.Stdout, "[source] ", log.LstdFlags)
	entries := make([]aggregate.Entry, 0, len(cfg.Sources))
	for _, sc := range cfg.Sources {
		src, err := source.Build(sc, client, pipeline, logger)
		if err != nil {
			return nil, fmt.Errorf("build source: %w", err)
		}
		entries = append(entries, aggregate.Entry{
			Source:     src,
			Timeout:    sc.TimeoutOrDefault(fallbackTimeout),
			MaxResults: sc.MaxResults,
		})
	}
	if len(entries) == 0 {
		log.Printf("no sources configured, every comparison will be empty")
	}
	return aggregate.New(entries, aggregate.Config{Dedupe: dedupe, Metrics: m}), nil
}

func buildNotifier(cfg notifier.EmailConfig) notifier.Notifier {
	logNotifier := notifier.NewLogNotifier(nil)
	if cfg.Host == "" || cfg.Port == 0 || cfg.From == "" || len(cfg.To) == 0 {
		log.Printf("email notifier disabled: missing host/port/from/to")
		return logNotifier
	}
	return notifier.Multi{logNotifier, notifier.NewEmailNotifier(cfg, nil)}
}

// runServer 阻塞到 ctx 取消或服务器退出，然后在 timeout 内优雅关闭。sched 可以为 nil。
func runServer(ctx context.Context, srv httpServer, sched runner, timeout time.Duration) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	schedDone := make(chan struct{})
	if sched != nil {
		go func() {
			defer close(schedDone)
			if err := sched.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("watcher stopped: %v", err)
			}
		}()
	} else {
		close(schedDone)
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.ListenAndServe()
	}()

	var err error
	select {
	case <-ctx.Done():
	case err = <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
	defer shutdownCancel()
	if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil && err == nil {
		err = fmt.Errorf("shutdown: %w", shutdownErr)
	}

	select {
	case <-schedDone:
	case <-shutdownCtx.Done():
		log.Printf("watcher did not stop within %s", timeout)
	}
	return err
}

// runOnceManual 构建组件后执行一次比价，用于命令行手动刷新。
func runOnceManual(ctx context.Context, cfg AppConfig, build func(AppConfig) (appDeps, func(), error)) (compare.Outcome, error) {
	deps, cleanup, err := build(cfg)
	if err != nil {
		return compare.Outcome{}, fmt.Errorf("build app: %w", err)
	}
	defer cleanup()

	out, ran, err := deps.watcher.RunOnce(ctx)
	if err != nil {
		return out, err
	}
	if !ran {
		return out, fmt.Errorf("another run is in progress")
	}
	return out, nil
}
