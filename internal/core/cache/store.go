package cache

import (
	"context"
	"errors"

	"nutrition-resolver/internal/core/nutrition"
)

// ErrStoreClosed 儲存已關閉
var ErrStoreClosed = errors.New("cache store is closed")

// Entry 快取中的一筆營養資料
type Entry struct {
	nutrition.CacheCandidate
	TimesUsed int64 `json:"timesUsed"`
}

// Store 營養快取儲存
//
// Search 回傳正規化名稱包含 query 的項目，依使用次數由多到少排序，最多 limit 筆。
// Upsert 以正規化名稱為鍵覆寫，後寫者勝。IncrementUsage 在儲存端原子遞增。
type Store interface {
	Search(ctx context.Context, query string, limit int) ([]Entry, error)
	Upsert(ctx context.Context, candidate nutrition.CacheCandidate) error
	IncrementUsage(ctx context.Context, normalizedName string) error
	Ping(ctx context.Context) error
	Close() error
}

// StatsReporter 可回報統計資訊的儲存
type StatsReporter interface {
	GetStats() map[string]interface{}
}
