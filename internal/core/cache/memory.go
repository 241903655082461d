package cache

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"nutrition-resolver/internal/core/nutrition"
	"nutrition-resolver/internal/pkg/common"
	"nutrition-resolver/internal/pkg/textmatch"

	"go.uber.org/zap"
)

// MemoryStore 記憶體快取，供開發與測試使用
type MemoryStore struct {
	mu      sync.RWMutex
	store   map[string]*memoryEntry
	maxSize int
	stats   cacheStats
	closed  bool
}

// memoryEntry 快取條目
type memoryEntry struct {
	candidate  nutrition.CacheCandidate
	timesUsed  int64
	lastAccess time.Time
}

// cacheStats 快取統計
type cacheStats struct {
	hits      int64
	misses    int64
	upserts   int64
	bumps     int64
	evictions int64
}

// NewMemoryStore 創建記憶體快取；maxSize <= 0 表示不限制
func NewMemoryStore(maxSize int) *MemoryStore {
	m := &MemoryStore{
		store:   make(map[string]*memoryEntry),
		maxSize: maxSize,
	}

	common.LogInfo("記憶體快取已初始化",
		zap.Int("最大容量", maxSize),
	)

	return m
}

// Search 以子字串搜尋並依使用次數排序
func (m *MemoryStore) Search(ctx context.Context, query string, limit int) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	q := textmatch.Normalize(query)

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	var out []Entry
	now := time.Now()
	for key, e := range m.store {
		if q != "" && !strings.Contains(key, q) {
			continue
		}
		e.lastAccess = now
		out = append(out, Entry{CacheCandidate: e.candidate, TimesUsed: e.timesUsed})
	}

	if len(out) == 0 {
		m.stats.misses++
		return nil, nil
	}
	m.stats.hits++

	sort.Slice(out, func(i, j int) bool {
		if out[i].TimesUsed != out[j].TimesUsed {
			return out[i].TimesUsed > out[j].TimesUsed
		}
		return out[i].NormalizedName < out[j].NormalizedName
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Upsert 以正規化名稱寫入或覆寫
func (m *MemoryStore) Upsert(ctx context.Context, candidate nutrition.CacheCandidate) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	key := candidate.Key()
	if key == "" {
		return common.NewValidationError("cache candidate has no name")
	}
	candidate.NormalizedName = key
	candidate.UpdatedAt = time.Now().UTC()

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}

	if e, ok := m.store[key]; ok {
		e.candidate = candidate
		e.lastAccess = time.Now()
		m.stats.upserts++
		return nil
	}

	if m.maxSize > 0 && len(m.store) >= m.maxSize {
		m.evictLRU()
	}

	m.store[key] = &memoryEntry{candidate: candidate, lastAccess: time.Now()}
	m.stats.upserts++
	return nil
}

// IncrementUsage 使用次數加一；不存在的鍵忽略
func (m *MemoryStore) IncrementUsage(ctx context.Context, normalizedName string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	key := textmatch.Normalize(normalizedName)

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}
	if e, ok := m.store[key]; ok {
		e.timesUsed++
		m.stats.bumps++
	}
	return nil
}

// Ping 檢查儲存是否可用
func (m *MemoryStore) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrStoreClosed
	}
	return ctx.Err()
}

// evictLRU 淘汰使用次數最少且最久未存取的項目，呼叫端需持有寫鎖
func (m *MemoryStore) evictLRU() {
	var oldestKey string
	var oldest *memoryEntry

	for key, e := range m.store {
		if oldest == nil ||
			e.timesUsed < oldest.timesUsed ||
			(e.timesUsed == oldest.timesUsed && e.lastAccess.Before(oldest.lastAccess)) {
			oldestKey = key
			oldest = e
		}
	}

	if oldest != nil {
		delete(m.store, oldestKey)
		m.stats.evictions++
		common.LogDebug("快取已淘汰(LRU)",
			zap.String("鍵", oldestKey),
		)
	}
}

// GetStats 獲取快取統計信息
func (m *MemoryStore) GetStats() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ratio := 0.0
	if total := m.stats.hits + m.stats.misses; total > 0 {
		ratio = float64(m.stats.hits) / float64(total)
	}

	return map[string]interface{}{
		"driver":    "memory",
		"size":      len(m.store),
		"max_size":  m.maxSize,
		"hits":      m.stats.hits,
		"misses":    m.stats.misses,
		"upserts":   m.stats.upserts,
		"bumps":     m.stats.bumps,
		"evictions": m.stats.evictions,
		"hit_ratio": ratio,
	}
}

// Close 關閉快取
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.store = make(map[string]*memoryEntry)
	m.closed = true
	common.LogInfo("記憶體快取已關閉",
		zap.Int64("命中次數", m.stats.hits),
		zap.Int64("未命中次數", m.stats.misses),
		zap.Int64("淘汰次數", m.stats.evictions),
	)
	return nil
}
