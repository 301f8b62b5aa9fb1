package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"deal-ranker/internal/compare"
	"deal-ranker/internal/extract"
	"deal-ranker/internal/model"
)

// Comparer 比价服务。
type Comparer interface {
	Compare(ctx context.Context, req compare.Request) (compare.Outcome, error)
	Last() (compare.Outcome, bool)
	ResolveSpec(ctx context.Context, requested *model.DecisionSpec) (model.DecisionSpec, error)
}

// SpecStore 保存 DecisionSpec。
type SpecStore interface {
	SaveDecisionSpec(ctx context.Context, spec model.DecisionSpec) error
}

// Kind 响应信封的消息类型。
type Kind string

const (
	KindHealth  Kind = "health"
	KindCompare Kind = "compare"
	KindExtract Kind = "extract"
	KindSpec    Kind = "spec"
	KindLast    Kind = "last"
	KindIndex   Kind = "index"
)

// Envelope 所有接口统一的响应结构，OK 为 false 时 Error 非空。
type Envelope struct {
	Kind  Kind   `json:"kind"`
	OK    bool   `json:"ok"`
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

// CompareRequest POST /api/compare 请求体。
type CompareRequest struct {
	Query        string              `json:"query"`
	DecisionSpec *model.DecisionSpec `json:"decision_spec,omitempty"`
	Context      *model.PageContext  `json:"context,omitempty"`
}

// ExtractRequest POST /api/extract 请求体，HTML 为页面快照。
type ExtractRequest struct {
	URL    string `json:"url"`
	HTML   string `json:"html"`
	Source string `json:"source,omitempty"`
}

// ExtractResponse 抽取结果，Listings 已去掉无标题或无链接的条目。
type ExtractResponse struct {
	Context  model.PageContext `json:"context"`
	Listings []model.Listing   `json:"listings"`
}

// NewHandler 构造 HTTP 多路复用器，specs 与 metrics 可以为 nil。
func NewHandler(cmp Comparer, specs SpecStore, pipeline *extract.Pipeline, metrics http.Handler) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeOK(w, KindHealth, map[string]string{"status": "ok"})
	})

	mux.HandleFunc("/api/compare", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, KindCompare, "method not allowed")
			return
		}
		var req CompareRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, KindCompare, "invalid payload")
			return
		}
		out, err := cmp.Compare(r.Context(), compare.Request{Query: req.Query, Spec: req.DecisionSpec, Context: req.Context})
		if err != nil {
			writeError(w, statusFor(err), KindCompare, err.Error())
			return
		}
		writeOK(w, KindCompare, out)
	})

	mux.HandleFunc("/api/extract", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, KindExtract, "method not allowed")
			return
		}
		var req ExtractRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, KindExtract, "invalid payload")
			return
		}
		if strings.TrimSpace(req.HTML) == "" {
			writeError(w, http.StatusBadRequest, KindExtract, "html required")
			return
		}
		page, err := extract.ParsePageString(req.URL, req.HTML)
		if err != nil {
			writeError(w, http.StatusBadRequest, KindExtract, err.Error())
			return
		}
		writeOK(w, KindExtract, extractResponse(pipeline.Extract(page), model.Source(strings.TrimSpace(req.Source))))
	})

	mux.HandleFunc("/api/spec", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			spec, err := cmp.ResolveSpec(r.Context(), nil)
			if err != nil {
				writeError(w, http.StatusInternalServerError, KindSpec, err.Error())
				return
			}
			writeOK(w, KindSpec, spec)
		case http.MethodPut:
			if specs == nil {
				writeError(w, http.StatusServiceUnavailable, KindSpec, "storage disabled")
				return
			}
			var spec model.DecisionSpec
			if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
				writeError(w, http.StatusBadRequest, KindSpec, "invalid payload")
				return
			}
			normalized, err := cmp.ResolveSpec(r.Context(), &spec)
			if err != nil {
				writeError(w, http.StatusBadRequest, KindSpec, err.Error())
				return
			}
			if err := specs.SaveDecisionSpec(r.Context(), normalized); err != nil {
				writeError(w, http.StatusInternalServerError, KindSpec, err.Error())
				return
			}
			writeOK(w, KindSpec, normalized)
		default:
			writeError(w, http.StatusMethodNotAllowed, KindSpec, "method not allowed")
		}
	})

	mux.HandleFunc("/api/last", func(w http.ResponseWriter, r *http.Request) {
		out, ok := cmp.Last()
		if !ok {
			writeError(w, http.StatusNotFound, KindLast, "no comparison has run yet")
			return
		}
		writeOK(w, KindLast, out)
	})

	if metrics != nil {
		mux.Handle("/metrics", metrics)
	}

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			writeError(w, http.StatusNotFound, KindIndex, "not found")
			return
		}
		writeOK(w, KindIndex, map[string]string{"message": "deal ranker api"})
	})

	return mux
}

func extractResponse(res extract.Result, source model.Source) ExtractResponse {
	listings := model.FilterUsable(res.Listings)
	if source != "" {
		res.Context.Source = source
		for i := range listings {
			listings[i].Source = source
		}
		if res.Context.Product != nil {
			product := res.Context.Product.Clone()
			product.Source = source
			res.Context.Product = &product
		}
	}
	return ExtractResponse{Context: res.Context, Listings: listings}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrEmptyQuery), errors.Is(err, compare.ErrInvalidSpec):
		return http.StatusBadRequest
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func writeOK(w http.ResponseWriter, kind Kind, data any) {
	writeJSON(w, http.StatusOK, Envelope{Kind: kind, OK: true, Data: data})
}

func writeError(w http.ResponseWriter, status int, kind Kind, msg string) {
	writeJSON(w, status, Envelope{Kind: kind, OK: false, Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
