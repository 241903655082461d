package api

import (
	"fmt"
	"time"

	"nutrition-resolver/internal/api/handlers/health"
	mealHandler "nutrition-resolver/internal/api/handlers/meal"
	nutritionHandler "nutrition-resolver/internal/api/handlers/nutrition"
	quantityHandler "nutrition-resolver/internal/api/handlers/quantity"
	"nutrition-resolver/internal/api/middleware"
	"nutrition-resolver/internal/infrastructure/config"
	"nutrition-resolver/internal/pkg/common"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Dependencies 路由所需的服務，由 main 建立一次後注入
type Dependencies struct {
	Resolver nutritionHandler.Resolver
	Writer   nutritionHandler.CacheWriter
	Store    health.Pinger
	Queue    health.QueueReporter
}

// SetupRouter 設置路由
func SetupRouter(cfg *config.Config, deps Dependencies) (*gin.Engine, error) {
	if deps.Resolver == nil {
		return nil, fmt.Errorf("resolver is required")
	}
	if deps.Writer == nil {
		return nil, fmt.Errorf("cache writer is required")
	}

	common.LogInfo("Starting router setup",
		zap.Bool("debug_mode", cfg.App.Debug),
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Env),
	)

	// 設置 gin 模式
	if !cfg.App.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// 註冊基礎中間件
	router.Use(middleware.Recovery())
	router.Use(requestid.New(requestid.WithGenerator(common.GenerateUUID)))
	router.Use(middleware.Logger())

	// CORS 設置
	router.Use(cors.New(cors.Config{
		AllowOrigins:  []string{"*"},
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"},
		ExposeHeaders: []string{"Content-Length", "X-Request-ID"},
		MaxAge:        12 * time.Hour,
	}))

	// 請求體大小限制
	router.Use(middleware.BodySizeLimit(cfg.Server.MaxBodyBytes))

	// 健康檢查路由
	healthHandler := health.NewHandler(cfg.App.Version, deps.Store, deps.Queue)
	router.GET("/health", healthHandler.HealthCheck)
	router.GET("/ready", healthHandler.ReadinessCheck)
	router.GET("/live", health.LivenessCheck)

	// API 路由組
	api := router.Group("/api/v1")
	if cfg.RateLimit.Enabled {
		api.Use(middleware.RateLimit(cfg.RateLimit.RPS, cfg.RateLimit.Burst))
	}

	nutritionH := nutritionHandler.NewHandler(deps.Resolver, deps.Writer, cfg.App.Debug)
	nutritionGroup := api.Group("/nutrition")
	{
		nutritionGroup.POST("/resolve", nutritionH.HandleResolve)
		nutritionGroup.POST("/resolve/batch", nutritionH.HandleResolveBatch)
		nutritionGroup.POST("/device", nutritionH.HandleDevice)
		nutritionGroup.POST("/commit", nutritionH.HandleCommit)
	}

	quantityH := quantityHandler.NewHandler(cfg.App.Debug)
	quantityGroup := api.Group("/quantity")
	{
		quantityGroup.POST("/scale", quantityH.HandleScale)
		quantityGroup.POST("/edit", quantityH.HandleEdit)
	}

	mealH := mealHandler.NewHandler(cfg.Meal.CompleteDayCalories, cfg.App.Debug)
	api.POST("/meals/summary", mealH.HandleSummary)

	common.LogInfo("Router setup completed successfully",
		zap.Bool("rate_limit_enabled", cfg.RateLimit.Enabled),
		zap.Int64("max_body_size", cfg.Server.MaxBodyBytes),
	)

	return router, nil
}
