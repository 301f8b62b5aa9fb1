package rank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"deal-ranker/internal/model"
)

// AuthorityConfig 远程打分服务配置。
type AuthorityConfig struct {
	BaseURL string `yaml:"base_url" json:"base_url"`
	Timeout string `yaml:"timeout" json:"timeout"`
}

// Authority 通过 POST /rank 调用远程打分服务。
type Authority struct {
	baseURL string
	client  *http.Client
}

// NewAuthority 创建客户端，Timeout 解析失败时使用 30s。
func NewAuthority(cfg AuthorityConfig, httpClient *http.Client) *Authority {
	if httpClient == nil {
		timeout := 30 * time.Second
		if d, err := time.ParseDuration(cfg.Timeout); err == nil && d > 0 {
			timeout = d
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Authority{baseURL: strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"), client: httpClient}
}

func (a *Authority) Name() string { return "authority" }

type rankRequest struct {
	DecisionSpec model.DecisionSpec `json:"decision_spec"`
	Context      *model.PageContext `json:"context"`
	Candidates   []model.Listing    `json:"candidates"`
}

type rankResponse struct {
	Ranked *[]model.RankedResult `json:"ranked"`
}

func (a *Authority) Score(ctx context.Context, spec model.DecisionSpec, pageCtx *model.PageContext, candidates []model.Listing) ([]model.RankedResult, error) {
	if a.baseURL == "" {
		return nil, fmt.Errorf("ranking authority base_url missing")
	}
	if candidates == nil {
		candidates = []model.Listing{}
	}
	data, err := json.Marshal(rankRequest{DecisionSpec: spec, Context: pageCtx, Candidates: candidates})
	if err != nil {
		return nil, fmt.Errorf("marshal rank request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/rank", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rank request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("rank http %d", resp.StatusCode)
	}

	var body rankResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode rank response: %w", err)
	}
	if body.Ranked == nil {
		return nil, fmt.Errorf("decode rank response: ranked missing")
	}
	for i, r := range *body.Ranked {
		if r.ScoreTotal < 0 || r.ScoreTotal > 1 {
			return nil, fmt.Errorf("rank response: result %d score_total %v out of range", i, r.ScoreTotal)
		}
	}
	return *body.Ranked, nil
}
