package notifier

import (
	"context"
	"errors"
	"fmt"

	"deal-ranker/internal/model"
)

// Digest 一次比价交给展示方的排序结果。
type Digest struct {
	Query    string
	Ranked   []model.RankedResult
	Fallback bool
}

// Notifier 展示方接口。
type Notifier interface {
	Notify(ctx context.Context, d Digest) error
}

// Multi 依次调用多个通知器，单个失败不影响其余通知器。
type Multi []Notifier

// Notify 返回所有失败的合并错误。
func (m Multi) Notify(ctx context.Context, d Digest) error {
	var errs []error
	for i, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, d); err != nil {
			errs = append(errs, fmt.Errorf("notifier %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

func top(ranked []model.RankedResult, n int) []model.RankedResult {
	if n > 0 && len(ranked) > n {
		return ranked[:n]
	}
	return ranked
}
