package notifier

import (
	"context"
	"log"
	"os"
)

// LogNotifier 只打印排序结果，适合开发阶段使用。
type LogNotifier struct {
	logger *log.Logger
	limit  int
}

// NewLogNotifier 创建日志通知器，未提供 logger 时默认输出到标准输出。
func NewLogNotifier(logger *log.Logger) *LogNotifier {
	if logger == nil {
		logger = log.New(os.Stdout, "[notify] ", log.LstdFlags)
	}
	return &LogNotifier{logger: logger, limit: 10}
}

// Notify 逐条打印排名、总分与链接。
func (n LogNotifier) Notify(ctx context.Context, d Digest) error {
	if len(d.Ranked) == 0 {
		return nil
	}
	if d.Fallback {
		n.logger.Printf("query=%q ranking unavailable, sorted by price", d.Query)
	}
	for i, r := range top(d.Ranked, n.limit) {
		l := r.Listing
		n.logger.Printf("#%d %.2f %s (%s) $%.2f %s", i+1, r.ScoreTotal, l.Title, l.Source, l.Price.Value, l.URL)
	}
	return nil
}
