package cache

import (
	"context"

	"nutrition-resolver/internal/core/nutrition"
	"nutrition-resolver/internal/core/queue"
	"nutrition-resolver/internal/pkg/common"
	"nutrition-resolver/internal/pkg/textmatch"

	"go.uber.org/zap"
)

// Writer 快取回寫；所有錯誤只記錄，不回傳給呼叫端
type Writer struct {
	store Store
	queue *queue.Manager
}

// NewWriter 創建快取回寫器
func NewWriter(store Store, q *queue.Manager) *Writer {
	return &Writer{store: store, queue: q}
}

// UpsertCandidates 寫入呼叫端提交的快取候選，回傳成功筆數
func (w *Writer) UpsertCandidates(ctx context.Context, candidates []nutrition.CacheCandidate) int {
	written := 0
	for _, c := range candidates {
		c.Fact.Sanitize()
		if err := c.Fact.Validate(); err != nil {
			common.LogWarn("Skipping invalid cache candidate",
				zap.String("name", c.Name),
				zap.Error(err),
			)
			continue
		}
		if !c.Source.Valid() {
			common.LogWarn("Skipping cache candidate with unknown source",
				zap.String("name", c.Name),
				zap.String("source", string(c.Source)),
			)
			continue
		}
		// 生成式來源永遠視為未驗證
		if c.Source == nutrition.SourceGenerative {
			c.Unverified = true
		}

		if err := w.store.Upsert(ctx, c); err != nil {
			common.LogError("Cache write failed",
				zap.String("key", c.Key()),
				zap.Error(err),
			)
			continue
		}
		written++
	}
	return written
}

// BumpUsage 非同步遞增使用次數，回傳排入隊列的筆數
func (w *Writer) BumpUsage(names ...string) int {
	queued := 0
	for _, name := range names {
		key := textmatch.Normalize(name)
		if key == "" {
			continue
		}
		err := w.queue.Enqueue(&queue.Job{
			Name: "bump_usage:" + key,
			Run: func(ctx context.Context) error {
				return w.store.IncrementUsage(ctx, key)
			},
		})
		if err != nil {
			common.LogWarn("Usage bump not queued",
				zap.String("key", key),
				zap.Error(err),
			)
			continue
		}
		queued++
	}
	return queued
}
