package source

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"

	"deal-ranker/internal/extract"
	"deal-ranker/internal/model"
)

// Page 抓取零售商搜索结果页并交给抽取管线解析。
type Page struct {
	name        string
	urlTemplate string
	client      *http.Client
	pipeline    *extract.Pipeline
	logger      *log.Logger
}

// NewPage urlTemplate 中的 {query} 会被替换为转义后的搜索词。
func NewPage(name, urlTemplate string, client *http.Client, pipeline *extract.Pipeline, logger *log.Logger) *Page {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = log.New(os.Stdout, "[source] ", log.LstdFlags)
	}
	if pipeline == nil {
		pipeline = extract.NewPipeline(logger)
	}
	return &Page{name: name, urlTemplate: urlTemplate, client: client, pipeline: pipeline, logger: logger}
}

func (p *Page) Name() string { return p.name }

func (p *Page) Search(ctx context.Context, query string, maxResults int) ([]model.Listing, error) {
	pageURL := strings.ReplaceAll(p.urlTemplate, "{query}", url.QueryEscape(query))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; deal-ranker/1.0)")
	req.Header.Set("Accept", "text/html")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	page, err := extract.ParsePage(pageURL, resp.Body)
	if err != nil {
		return nil, err
	}
	_, listings := p.pipeline.Search(page, maxResults)
	usable := model.FilterUsable(listings)
	p.logger.Printf("source=%s url=%s cards=%d usable=%d", p.name, pageURL, len(listings), len(usable))
	return usable, nil
}
