// Package extract 把页面快照转换为商品上下文、搜索上下文或候选 Listing。
package extract

import (
	"fmt"
	"io"
	"net/url"
	"strings"

	"deal-ranker/internal/model"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Page 页面的不可变快照，抽取逻辑只做只读查询。
type Page struct {
	rawURL string
	url    *url.URL
	doc    *goquery.Document
}

// ParsePage 解析 HTML 并生成快照。
func ParsePage(rawURL string, r io.Reader) (*Page, error) {
	node, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		u = &url.URL{}
	}
	return &Page{rawURL: rawURL, url: u, doc: goquery.NewDocumentFromNode(node)}, nil
}

// ParsePageString 便捷版本。
func ParsePageString(rawURL, body string) (*Page, error) {
	return ParsePage(rawURL, strings.NewReader(body))
}

// URL 返回页面地址。
func (p *Page) URL() string { return p.rawURL }

// Find 在整页范围执行选择器查询。
func (p *Page) Find(selector string) *goquery.Selection {
	return p.doc.Find(selector)
}

// Meta 读取 property 或 name 形式的 meta 标签。
func (p *Page) Meta(key string) string {
	for _, attr := range []string{"property", "name", "itemprop"} {
		sel := p.doc.Find(fmt.Sprintf("meta[%s='%s']", attr, key)).First()
		if v := strings.TrimSpace(sel.AttrOr("content", "")); v != "" {
			return v
		}
	}
	return ""
}

// Title 返回 <title> 文本。
func (p *Page) Title() string {
	return cleanText(p.doc.Find("title").First().Text())
}

// QueryParam 读取 URL 查询参数。
func (p *Page) QueryParam(key string) string {
	if p.url == nil {
		return ""
	}
	return strings.TrimSpace(p.url.Query().Get(key))
}

// Source 根据域名判定来源。
func (p *Page) Source() model.Source {
	return SourceForURL(p.rawURL)
}

// Resolve 把相对链接转换为绝对链接。
func (p *Page) Resolve(href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "javascript:") || href == "#" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if p.url == nil || p.url.Host == "" {
		return ref.String()
	}
	return p.url.ResolveReference(ref).String()
}

// SourceForURL 识别已知零售商，其他域名直接作为来源字符串。
func SourceForURL(rawURL string) model.Source {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" {
		return model.SourceManual
	}
	host := strings.ToLower(strings.TrimPrefix(u.Hostname(), "www."))
	switch {
	case strings.Contains(host, "ebay."):
		return model.SourceEbay
	case strings.Contains(host, "newegg."):
		return model.SourceNewegg
	}
	return model.Source(host)
}

func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
