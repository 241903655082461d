package cache

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"nutrition-resolver/internal/core/nutrition"
	"nutrition-resolver/internal/infrastructure/config"
	"nutrition-resolver/internal/pkg/common"
	"nutrition-resolver/internal/pkg/textmatch"

	"github.com/go-redis/redis/v8"
)

const (
	redisFoodPrefix    = "nutrition:food:"
	redisPopularityKey = "nutrition:popularity"
	redisScanCount     = 200
)

// RedisStore Redis 快取服務
//
// 每筆資料存成 JSON 字串，另以 sorted set 記錄使用次數，搜尋時掃描 sorted set。
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore 創建 Redis 快取服務
func NewRedisStore(cfg *config.StoreConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	// 測試連接
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisStoreWithClient(client), nil
}

// NewRedisStoreWithClient 使用既有的 client
func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Search 掃描名稱包含 query 的項目並依使用次數排序
func (s *RedisStore) Search(ctx context.Context, query string, limit int) ([]Entry, error) {
	q := textmatch.Normalize(query)
	match := "*"
	if q != "" {
		match = "*" + q + "*"
	}

	type scored struct {
		name  string
		score float64
	}
	var found []scored

	var cursor uint64
	for {
		keys, next, err := s.client.ZScan(ctx, redisPopularityKey, cursor, match, redisScanCount).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to scan cache: %w", err)
		}
		// ZSCAN 回傳 member, score 交錯
		for i := 0; i+1 < len(keys); i += 2 {
			score, err := strconv.ParseFloat(keys[i+1], 64)
			if err != nil {
				continue
			}
			found = append(found, scored{name: keys[i], score: score})
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}

	if len(found) == 0 {
		return nil, nil
	}

	sort.Slice(found, func(i, j int) bool {
		if found[i].score != found[j].score {
			return found[i].score > found[j].score
		}
		return found[i].name < found[j].name
	})
	if limit > 0 && len(found) > limit {
		found = found[:limit]
	}

	docKeys := make([]string, len(found))
	for i, f := range found {
		docKeys[i] = s.generateKey(f.name)
	}
	docs, err := s.client.MGet(ctx, docKeys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get cache entries: %w", err)
	}

	out := make([]Entry, 0, len(docs))
	for i, doc := range docs {
		raw, ok := doc.(string)
		if !ok {
			continue
		}
		var candidate nutrition.CacheCandidate
		if err := common.ParseJSON(raw, &candidate); err != nil {
			return nil, fmt.Errorf("failed to unmarshal cache entry %q: %w", found[i].name, err)
		}
		out = append(out, Entry{CacheCandidate: candidate, TimesUsed: int64(found[i].score)})
	}
	return out, nil
}

// Upsert 覆寫資料，並確保 sorted set 中有此成員
func (s *RedisStore) Upsert(ctx context.Context, candidate nutrition.CacheCandidate) error {
	key := candidate.Key()
	if key == "" {
		return fmt.Errorf("cache candidate has no name")
	}
	candidate.NormalizedName = key
	candidate.UpdatedAt = time.Now().UTC()

	data, err := common.ToJSON(candidate)
	if err != nil {
		return fmt.Errorf("failed to marshal cache candidate: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.generateKey(key), data, 0)
	pipe.ZAddNX(ctx, redisPopularityKey, &redis.Z{Score: 0, Member: key})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to set cache: %w", err)
	}
	return nil
}

// IncrementUsage 以 ZADD XX INCR 原子遞增；不存在的成員不會被建立
func (s *RedisStore) IncrementUsage(ctx context.Context, normalizedName string) error {
	key := textmatch.Normalize(normalizedName)
	err := s.client.ZAddArgsIncr(ctx, redisPopularityKey, redis.ZAddArgs{
		XX:      true,
		Members: []redis.Z{{Score: 1, Member: key}},
	}).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to increment usage: %w", err)
	}
	return nil
}

// Ping 檢查連線
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close 關閉連線
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// generateKey 生成快取鍵
func (s *RedisStore) generateKey(normalizedName string) string {
	return redisFoodPrefix + normalizedName
}
