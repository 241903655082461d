package cache

import (
	"context"
	"fmt"
	"time"

	"nutrition-resolver/internal/core/nutrition"
	"nutrition-resolver/internal/pkg/common"
	"nutrition-resolver/internal/pkg/textmatch"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore Postgres 快取儲存
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore 連線並建立資料表
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid postgres dsn: %w", err)
	}

	cfg.MaxConns = 10
	cfg.MinConns = 2
	cfg.MaxConnLifetime = time.Hour

	db, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}

	if err := db.Ping(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres connection failed: %w", err)
	}

	if err := initSchema(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	common.LogInfo("Connected to PostgreSQL cache store")
	return &PostgresStore{db: db}, nil
}

// initSchema 建立快取資料表
func initSchema(ctx context.Context, db *pgxpool.Pool) error {
	_, err := db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS nutrition_cache (
			normalized_name       TEXT PRIMARY KEY,
			name                  TEXT NOT NULL,
			brand                 TEXT NOT NULL DEFAULT '',
			calories_per_100g     DOUBLE PRECISION NOT NULL DEFAULT 0,
			protein_per_100g      DOUBLE PRECISION NOT NULL DEFAULT 0,
			fat_per_100g          DOUBLE PRECISION NOT NULL DEFAULT 0,
			carbs_per_100g        DOUBLE PRECISION NOT NULL DEFAULT 0,
			fiber_per_100g        DOUBLE PRECISION NOT NULL DEFAULT 0,
			sugar_per_100g        DOUBLE PRECISION NOT NULL DEFAULT 0,
			sodium_mg_per_100g    DOUBLE PRECISION NOT NULL DEFAULT 0,
			serving_size_label    TEXT NOT NULL DEFAULT '',
			serving_grams         DOUBLE PRECISION,
			serving_milliliters   DOUBLE PRECISION,
			source                TEXT NOT NULL,
			unverified            BOOLEAN NOT NULL DEFAULT FALSE,
			match_confidence      DOUBLE PRECISION NOT NULL DEFAULT 0,
			match_notes           TEXT NOT NULL DEFAULT '',
			times_used            BIGINT NOT NULL DEFAULT 0,
			updated_at            TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS nutrition_cache_times_used_idx
			ON nutrition_cache (times_used DESC);
	`)
	return err
}

// Search 子字串搜尋並依使用次數排序
func (s *PostgresStore) Search(ctx context.Context, query string, limit int) ([]Entry, error) {
	q := textmatch.Normalize(query)
	if limit <= 0 {
		limit = 25
	}

	rows, err := s.db.Query(ctx, `
		SELECT normalized_name, name, brand,
		       calories_per_100g, protein_per_100g, fat_per_100g, carbs_per_100g,
		       fiber_per_100g, sugar_per_100g, sodium_mg_per_100g,
		       serving_size_label, serving_grams, serving_milliliters,
		       source, unverified, match_confidence, match_notes,
		       times_used, updated_at
		FROM nutrition_cache
		WHERE strpos(normalized_name, $1) > 0
		ORDER BY times_used DESC, normalized_name
		LIMIT $2
	`, q, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search cache: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var source string
		if err := rows.Scan(
			&e.NormalizedName, &e.Name, &e.Brand,
			&e.CaloriesPer100g, &e.ProteinPer100g, &e.FatPer100g, &e.CarbsPer100g,
			&e.FiberPer100g, &e.SugarPer100g, &e.SodiumMgPer100g,
			&e.ServingSizeLabel, &e.ServingGrams, &e.ServingMilliliters,
			&source, &e.Unverified, &e.MatchConfidence, &e.MatchNotes,
			&e.TimesUsed, &e.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan cache row: %w", err)
		}
		e.Source = nutrition.Source(source)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Upsert 以正規化名稱 upsert，後寫者勝，不動使用次數
func (s *PostgresStore) Upsert(ctx context.Context, c nutrition.CacheCandidate) error {
	key := c.Key()
	if key == "" {
		return fmt.Errorf("cache candidate has no name")
	}

	_, err := s.db.Exec(ctx, `
		INSERT INTO nutrition_cache (
			normalized_name, name, brand,
			calories_per_100g, protein_per_100g, fat_per_100g, carbs_per_100g,
			fiber_per_100g, sugar_per_100g, sodium_mg_per_100g,
			serving_size_label, serving_grams, serving_milliliters,
			source, unverified, match_confidence, match_notes, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, NOW())
		ON CONFLICT (normalized_name) DO UPDATE SET
			name = EXCLUDED.name,
			brand = EXCLUDED.brand,
			calories_per_100g = EXCLUDED.calories_per_100g,
			protein_per_100g = EXCLUDED.protein_per_100g,
			fat_per_100g = EXCLUDED.fat_per_100g,
			carbs_per_100g = EXCLUDED.carbs_per_100g,
			fiber_per_100g = EXCLUDED.fiber_per_100g,
			sugar_per_100g = EXCLUDED.sugar_per_100g,
			sodium_mg_per_100g = EXCLUDED.sodium_mg_per_100g,
			serving_size_label = EXCLUDED.serving_size_label,
			serving_grams = EXCLUDED.serving_grams,
			serving_milliliters = EXCLUDED.serving_milliliters,
			source = EXCLUDED.source,
			unverified = EXCLUDED.unverified,
			match_confidence = EXCLUDED.match_confidence,
			match_notes = EXCLUDED.match_notes,
			updated_at = NOW()
	`,
		key, c.Name, c.Brand,
		c.CaloriesPer100g, c.ProteinPer100g, c.FatPer100g, c.CarbsPer100g,
		c.FiberPer100g, c.SugarPer100g, c.SodiumMgPer100g,
		c.ServingSizeLabel, c.ServingGrams, c.ServingMilliliters,
		string(c.Source), c.Unverified, c.MatchConfidence, c.MatchNotes,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert cache entry: %w", err)
	}
	return nil
}

// IncrementUsage 在資料庫端原子遞增
func (s *PostgresStore) IncrementUsage(ctx context.Context, normalizedName string) error {
	_, err := s.db.Exec(ctx, `
		UPDATE nutrition_cache
		SET times_used = times_used + 1
		WHERE normalized_name = $1
	`, textmatch.Normalize(normalizedName))
	if err != nil {
		return fmt.Errorf("failed to increment usage: %w", err)
	}
	return nil
}

// Ping 檢查連線
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close 關閉連線池
func (s *PostgresStore) Close() error {
	s.db.Close()
	return nil
}
