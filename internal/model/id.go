package model

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

var (
	ebayItemPattern   = regexp.MustCompile(`/itm/(?:[^/]+/)?(\d{6,})`)
	neweggItemPattern = regexp.MustCompile(`/p/([A-Za-z0-9-]{6,})`)
)

// ListingID 从规范 URL 片段推导稳定 ID，无法推导时生成随机 token。
func ListingID(source Source, rawURL string) string {
	if id := idFromURL(rawURL); id != "" {
		return string(source) + "-" + id
	}
	return "gen-" + uuid.NewString()
}

func idFromURL(rawURL string) string {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return ""
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	if m := ebayItemPattern.FindStringSubmatch(u.Path); len(m) == 2 {
		return m[1]
	}
	if m := neweggItemPattern.FindStringSubmatch(u.Path); len(m) == 2 {
		return m[1]
	}
	for _, key := range []string{"Item", "item", "itemId", "sku"} {
		if v := strings.TrimSpace(u.Query().Get(key)); v != "" {
			return v
		}
	}
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	last := segments[len(segments)-1]
	if len(last) >= 6 && strings.ContainsAny(last, "0123456789") {
		return last
	}
	return ""
}
