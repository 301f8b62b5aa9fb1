// Package source 实现各个商品来源的搜索连接器。
package source

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"deal-ranker/internal/extract"
	"deal-ranker/internal/model"
)

// Source 单个来源的搜索接口，返回的 Listing 已归一化。
type Source interface {
	Name() string
	Search(ctx context.Context, query string, maxResults int) ([]model.Listing, error)
}

// Kind 连接器类型。
type Kind string

const (
	KindRemote Kind = "remote"
	KindEbay   Kind = "ebay"
	KindPage   Kind = "page"
)

// Config 来源配置。
type Config struct {
	Name         string `yaml:"name" json:"name"`
	Kind         Kind   `yaml:"kind" json:"kind"`
	BaseURL      string `yaml:"base_url" json:"base_url"`
	URLTemplate  string `yaml:"url_template" json:"url_template"`
	Timeout      string `yaml:"timeout" json:"timeout"`
	MaxResults   int    `yaml:"max_results" json:"max_results"`
	ClientID     string `yaml:"client_id" json:"client_id"`
	ClientSecret string `yaml:"client_secret" json:"client_secret"`
}

// DefaultMaxResults 每个来源默认请求的结果数。
const DefaultMaxResults = 15

// TimeoutOrDefault 解析单来源超时。
func (c Config) TimeoutOrDefault(fallback time.Duration) time.Duration {
	if c.Timeout != "" {
		if d, err := time.ParseDuration(c.Timeout); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}

// Build 根据配置构造连接器。
func Build(cfg Config, client *http.Client, pipeline *extract.Pipeline, logger *log.Logger) (Source, error) {
	if logger == nil {
		logger = log.New(os.Stdout, "[source] ", log.LstdFlags)
	}
	name := strings.TrimSpace(cfg.Name)
	if name == "" {
		return nil, fmt.Errorf("source name required")
	}
	switch cfg.Kind {
	case KindRemote, "":
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("source %s: base_url required", name)
		}
		return NewRemote(name, cfg.BaseURL, client), nil
	case KindEbay:
		return NewEbay(EbayConfig{
			ClientID:     firstNonEmpty(cfg.ClientID, os.Getenv("EBAY_CLIENT_ID")),
			ClientSecret: firstNonEmpty(cfg.ClientSecret, os.Getenv("EBAY_CLIENT_SECRET")),
			BrowseURL:    cfg.BaseURL,
		}, client, logger), nil
	case KindPage:
		if !strings.Contains(cfg.URLTemplate, "{query}") {
			return nil, fmt.Errorf("source %s: url_template must contain {query}", name)
		}
		return NewPage(name, cfg.URLTemplate, client, pipeline, logger), nil
	}
	return nil, fmt.Errorf("source %s: unknown kind %q", name, cfg.Kind)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
