package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"deal-ranker/internal/model"
)

// Remote 通过 POST /search/{source} 调用外部搜索服务。
type Remote struct {
	name    string
	baseURL string
	client  *http.Client
}

// NewRemote 创建远程来源。
func NewRemote(name, baseURL string, client *http.Client) *Remote {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Remote{name: name, baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

func (r *Remote) Name() string { return r.name }

type searchRequest struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results"`
}

type searchResponse struct {
	Listings *[]model.Listing `json:"listings"`
}

// Search 非 2xx 或响应体格式错误均返回错误，由聚合器按零结果处理。
func (r *Remote) Search(ctx context.Context, query string, maxResults int) ([]model.Listing, error) {
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	data, err := json.Marshal(searchRequest{Query: query, MaxResults: maxResults})
	if err != nil {
		return nil, fmt.Errorf("marshal search request: %w", err)
	}

	endpoint := r.baseURL + "/search/" + url.PathEscape(r.name)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", r.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("search %s: http %d", r.name, resp.StatusCode)
	}

	var body searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	if body.Listings == nil {
		return nil, fmt.Errorf("decode search response: listings missing")
	}

	listings := make([]model.Listing, 0, len(*body.Listings))
	for _, l := range *body.Listings {
		listings = append(listings, model.Normalize(l, model.Source(r.name)))
	}
	return model.FilterUsable(listings), nil
}
