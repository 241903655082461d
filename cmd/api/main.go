package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"nutrition-resolver/internal/api"
	"nutrition-resolver/internal/core/ai/openrouter"
	"nutrition-resolver/internal/core/cache"
	"nutrition-resolver/internal/core/offacts"
	"nutrition-resolver/internal/core/queue"
	"nutrition-resolver/internal/core/resolver"
	"nutrition-resolver/internal/infrastructure/config"
	"nutrition-resolver/internal/pkg/common"

	"go.uber.org/zap"
)

func main() {
	// 載入設定（含 .env）
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 初始化 logger（需在載入 config 後）
	if err := common.InitLogger(cfg.LogLevel); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer common.Sync()

	common.LogInfo("載入設定",
		zap.String("store_driver", cfg.Store.Driver),
		zap.Bool("openfoodfacts_enabled", cfg.OpenFoodFacts.Enabled),
		zap.Bool("openrouter_enabled", cfg.OpenRouter.Enabled),
		zap.String("openrouter_model", cfg.OpenRouter.Model),
		zap.String("openrouter_api_key", cfg.OpenRouter.APIKey),
		zap.Float64("cache_threshold", cfg.Resolver.CacheThreshold),
		zap.Float64("external_threshold", cfg.Resolver.ExternalThreshold),
		zap.Duration("call_timeout", cfg.Resolver.CallTimeout),
	)

	// 初始化快取
	store, err := newStore(cfg)
	if err != nil {
		common.LogFatal("Failed to initialize cache store", zap.Error(err))
	}

	// 回寫隊列
	queueManager := queue.NewManager(&cfg.Writeback)
	queueManager.Start()
	writer := cache.NewWriter(store, queueManager)

	orchestrator := resolver.NewOrchestrator(&cfg.Resolver, buildTiers(cfg, store)...)

	// 設置路由
	router, err := api.SetupRouter(cfg, api.Dependencies{
		Resolver: orchestrator,
		Writer:   writer,
		Store:    store,
		Queue:    queueManager,
	})
	if err != nil {
		common.LogError("Failed to setup router", zap.Error(err))
		os.Exit(1)
	}

	// 設置 HTTP 服務器
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// 啟動服務器
	go func() {
		common.LogInfo("啟動應用",
			zap.String("version", cfg.App.Version),
			zap.String("env", cfg.App.Env),
			zap.Bool("debug", cfg.App.Debug),
			zap.Int("port", cfg.Server.Port),
		)

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			common.LogError("Failed to start server",
				zap.Error(err),
			)
			os.Exit(1)
		}
	}()

	// 等待中斷信號
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	common.LogInfo("Shutting down server...")

	// 設置關閉超時
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		common.LogError("Server forced to shutdown",
			zap.Error(err),
		)
	}

	// 先讓隊列把剩餘的回寫做完，再關閉快取
	queueManager.Close()
	if err := store.Close(); err != nil {
		common.LogError("Failed to close cache store", zap.Error(err))
	}

	common.LogInfo("Server exited")
}

// newStore 依設定建立快取儲存
func newStore(cfg *config.Config) (cache.Store, error) {
	switch cfg.Store.Driver {
	case "redis":
		return cache.NewRedisStore(&cfg.Store)
	case "postgres":
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return cache.NewPostgresStore(ctx, cfg.Store.PostgresDSN)
	default:
		return cache.NewMemoryStore(cfg.Store.MemoryMaxEntries), nil
	}
}

// buildTiers 依序組合快取、外部資料庫與生成式估算
func buildTiers(cfg *config.Config, store cache.Store) []resolver.Tier {
	tiers := []resolver.Tier{
		resolver.NewCacheResolver(store, cfg.Resolver.CacheThreshold, cfg.Store.SearchLimit),
	}
	if cfg.OpenFoodFacts.Enabled {
		tiers = append(tiers, resolver.NewExternalResolver(
			offacts.NewClient(&cfg.OpenFoodFacts), cfg.Resolver.ExternalThreshold))
	}
	if cfg.OpenRouter.Enabled {
		tiers = append(tiers, resolver.NewGenerativeResolver(openrouter.NewClient(&cfg.OpenRouter)))
	}
	return tiers
}
