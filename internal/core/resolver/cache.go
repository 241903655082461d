package resolver

import (
	"context"
	"fmt"

	"nutrition-resolver/internal/core/cache"
	"nutrition-resolver/internal/core/nutrition"
	"nutrition-resolver/internal/pkg/textmatch"
)

// DefaultCandidateLimit 快取候選數上限
const DefaultCandidateLimit = 25

// CacheSearcher 快取搜尋
type CacheSearcher interface {
	Search(ctx context.Context, query string, limit int) ([]cache.Entry, error)
}

// CacheResolver 快取層
type CacheResolver struct {
	store     CacheSearcher
	threshold float64
	limit     int
}

// NewCacheResolver 創建快取層
func NewCacheResolver(store CacheSearcher, threshold float64, limit int) *CacheResolver {
	if limit <= 0 {
		limit = DefaultCandidateLimit
	}
	return &CacheResolver{store: store, threshold: threshold, limit: limit}
}

// Name 層級名稱
func (r *CacheResolver) Name() string { return string(nutrition.SourceCache) }

// Resolve 從快取中找出分數最高且達門檻的項目
func (r *CacheResolver) Resolve(ctx context.Context, query string) (*nutrition.Result, error) {
	q := textmatch.Normalize(query)
	if q == "" {
		return nil, ErrNoMatch
	}

	entries, err := r.store.Search(ctx, q, r.limit)
	if err != nil {
		return nil, fmt.Errorf("cache search failed: %w", err)
	}

	var best *cache.Entry
	bestScore := -1.0
	for i := range entries {
		e := &entries[i]
		score := scoreCandidate(e, q, query)
		// 同分時保留使用次數較高的（排序較前）
		if score > bestScore {
			best, bestScore = e, score
		}
	}

	if best == nil || !meetsThreshold(bestScore, r.threshold) {
		return nil, ErrNoMatch
	}

	return &nutrition.Result{
		Source:           nutrition.SourceCache,
		Food:             best.Fact,
		MatchDescription: fmt.Sprintf("cached %q (used %d times)", best.Name, best.TimesUsed),
		MatchScore:       bestScore,
		Unverified:       best.Unverified || best.Source == nutrition.SourceGenerative,
		CacheCandidate:   nil,
		CacheKey:         best.NormalizedName,
	}, nil
}

// scoreCandidate 取正規化名稱與顯示名稱兩種比對的較高分
func scoreCandidate(e *cache.Entry, normalizedQuery, rawQuery string) float64 {
	byKey := textmatch.Similarity(e.NormalizedName, normalizedQuery)
	byName := textmatch.Similarity(e.Name, rawQuery)
	if byName > byKey {
		return byName
	}
	return byKey
}

func meetsThreshold(score, threshold float64) bool {
	return score >= threshold
}
