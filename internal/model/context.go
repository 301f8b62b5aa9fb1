package model

// PageKind 页面类型。
type PageKind string

const (
	PageProduct PageKind = "product"
	PageSearch  PageKind = "search"
	PageUnknown PageKind = "unknown"
)

// PageContext 抽取管线对单个页面的结论，可随排序请求一并发送。
type PageContext struct {
	Kind     PageKind `json:"kind"`
	URL      string   `json:"url"`
	Source   Source   `json:"source"`
	Query    string   `json:"query,omitempty"`
	Keywords string   `json:"keywords,omitempty"`
	Product  *Listing `json:"product,omitempty"`
}
