package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// 解析門檻預設值
const (
	DefaultCacheThreshold      = 0.85
	DefaultExternalThreshold   = 0.80
	DefaultCallTimeout         = 30 * time.Second
	DefaultCompleteDayCalories = 1200
)

// Config 應用配置
type Config struct {
	App           AppConfig           `mapstructure:"app"`
	Server        ServerConfig        `mapstructure:"server"`
	OpenRouter    OpenRouterConfig    `mapstructure:"openrouter"`
	OpenFoodFacts OpenFoodFactsConfig `mapstructure:"openfoodfacts"`
	Store         StoreConfig         `mapstructure:"store"`
	Resolver      ResolverConfig      `mapstructure:"resolver"`
	Writeback     WritebackConfig     `mapstructure:"writeback"`
	RateLimit     RateLimitConfig     `mapstructure:"rate_limit"`
	Meal          MealConfig          `mapstructure:"meal"`
	LogLevel      string              `mapstructure:"log_level"`
}

// AppConfig 應用程式設定
type AppConfig struct {
	Env     string `mapstructure:"env"`
	Debug   bool   `mapstructure:"debug"`
	Version string `mapstructure:"version"`
	Name    string `mapstructure:"name"`
}

// ServerConfig 服務器配置
type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	MaxBodyBytes int64         `mapstructure:"max_body_bytes"`
}

// OpenRouterConfig 生成式服務配置
type OpenRouterConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	APIKey    string `mapstructure:"api_key"`
	Model     string `mapstructure:"model"`
	BaseURL   string `mapstructure:"base_url"`
	MaxTokens int    `mapstructure:"max_tokens"`
}

// OpenFoodFactsConfig 外部食品資料庫配置
type OpenFoodFactsConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	BaseURL        string `mapstructure:"base_url"`
	UserAgent      string `mapstructure:"user_agent"`
	SearchPageSize int    `mapstructure:"search_page_size"`
}

// StoreConfig 營養快取儲存配置
type StoreConfig struct {
	Driver           string `mapstructure:"driver"` // memory | redis | postgres
	PostgresDSN      string `mapstructure:"postgres_dsn"`
	RedisAddr        string `mapstructure:"redis_addr"`
	RedisPassword    string `mapstructure:"redis_password"`
	RedisDB          int    `mapstructure:"redis_db"`
	SearchLimit      int    `mapstructure:"search_limit"`
	MemoryMaxEntries int    `mapstructure:"memory_max_entries"`
}

// ResolverConfig 解析門檻與逾時
type ResolverConfig struct {
	CacheThreshold    float64       `mapstructure:"cache_threshold"`
	ExternalThreshold float64       `mapstructure:"external_threshold"`
	CallTimeout       time.Duration `mapstructure:"call_timeout"`
	BatchConcurrency  int           `mapstructure:"batch_concurrency"`
}

// WritebackConfig 快取回寫佇列設定
type WritebackConfig struct {
	Workers int `mapstructure:"workers"`
	MaxSize int `mapstructure:"max_size"`
}

// RateLimitConfig 速率限制配置
type RateLimitConfig struct {
	Enabled bool    `mapstructure:"enabled"`
	RPS     float64 `mapstructure:"rps"`
	Burst   int     `mapstructure:"burst"`
}

// MealConfig 餐點彙總設定
type MealConfig struct {
	CompleteDayCalories float64 `mapstructure:"complete_day_calories"`
}

// LoadConfig 載入設定
func LoadConfig() (*Config, error) {
	// .env 可有可無
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 綁定常用環境變量
	_ = v.BindEnv("openrouter.api_key", "OPENROUTER_API_KEY")
	_ = v.BindEnv("openrouter.model", "OPENROUTER_MODEL")
	_ = v.BindEnv("openrouter.max_tokens", "MODEL_MAX_TOKENS")
	_ = v.BindEnv("store.driver", "STORE_DRIVER")
	_ = v.BindEnv("store.postgres_dsn", "DATABASE_URL")
	_ = v.BindEnv("store.redis_addr", "REDIS_ADDR")
	_ = v.BindEnv("store.redis_password", "REDIS_PASSWORD")
	_ = v.BindEnv("resolver.cache_threshold", "CACHE_THRESHOLD")
	_ = v.BindEnv("resolver.external_threshold", "EXTERNAL_THRESHOLD")
	_ = v.BindEnv("resolver.call_timeout", "RESOLVER_CALL_TIMEOUT")
	_ = v.BindEnv("rate_limit.enabled", "RATE_LIMIT_ENABLED")
	_ = v.BindEnv("log_level", "LOG_LEVEL")

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

// setDefaults 設定預設值
func setDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "development")
	v.SetDefault("app.debug", true)
	v.SetDefault("app.version", "1.0.0")
	v.SetDefault("app.name", "nutrition-resolver")

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	// 單次請求最多串接兩個 30 秒的外部呼叫
	v.SetDefault("server.write_timeout", "75s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.max_body_bytes", 1<<20)

	v.SetDefault("openrouter.enabled", true)
	v.SetDefault("openrouter.model", "openai/gpt-4o-mini")
	v.SetDefault("openrouter.base_url", "https://openrouter.ai/api/v1")
	v.SetDefault("openrouter.max_tokens", 400)

	v.SetDefault("openfoodfacts.enabled", true)
	v.SetDefault("openfoodfacts.base_url", "https://world.openfoodfacts.org")
	v.SetDefault("openfoodfacts.user_agent", "nutrition-resolver/1.0")
	v.SetDefault("openfoodfacts.search_page_size", 10)

	v.SetDefault("store.driver", "memory")
	v.SetDefault("store.redis_addr", "localhost:6379")
	v.SetDefault("store.redis_db", 0)
	v.SetDefault("store.search_limit", 25)
	v.SetDefault("store.memory_max_entries", 10000)

	v.SetDefault("resolver.cache_threshold", DefaultCacheThreshold)
	v.SetDefault("resolver.external_threshold", DefaultExternalThreshold)
	v.SetDefault("resolver.call_timeout", DefaultCallTimeout.String())
	v.SetDefault("resolver.batch_concurrency", 4)

	v.SetDefault("writeback.workers", 2)
	v.SetDefault("writeback.max_size", 256)

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.rps", 5)
	v.SetDefault("rate_limit.burst", 20)

	v.SetDefault("meal.complete_day_calories", DefaultCompleteDayCalories)

	v.SetDefault("log_level", "info")
}

// validateConfig 驗證設定
func validateConfig(config *Config) error {
	if config.Server.Port == 0 {
		return fmt.Errorf("server port is required")
	}

	for name, th := range map[string]float64{
		"cache threshold":    config.Resolver.CacheThreshold,
		"external threshold": config.Resolver.ExternalThreshold,
	} {
		if th <= 0 || th > 1 {
			return fmt.Errorf("%s must be in (0, 1], got %v", name, th)
		}
	}
	if config.Resolver.CallTimeout <= 0 {
		return fmt.Errorf("invalid resolver call timeout")
	}
	if config.Resolver.BatchConcurrency <= 0 {
		return fmt.Errorf("invalid resolver batch concurrency")
	}

	switch config.Store.Driver {
	case "memory":
	case "redis":
		if config.Store.RedisAddr == "" {
			return fmt.Errorf("redis store requires store.redis_addr")
		}
	case "postgres":
		if config.Store.PostgresDSN == "" {
			return fmt.Errorf("postgres store requires store.postgres_dsn")
		}
	default:
		return fmt.Errorf("unknown store driver %q", config.Store.Driver)
	}
	if config.Store.SearchLimit <= 0 {
		return fmt.Errorf("invalid store search limit")
	}

	if config.OpenRouter.Enabled && config.OpenRouter.APIKey == "" {
		return fmt.Errorf("openrouter is enabled but no api key is set")
	}

	if config.Writeback.Workers <= 0 {
		return fmt.Errorf("invalid writeback workers")
	}
	if config.Writeback.MaxSize <= 0 {
		return fmt.Errorf("invalid writeback queue size")
	}

	if config.RateLimit.Enabled && (config.RateLimit.RPS <= 0 || config.RateLimit.Burst <= 0) {
		return fmt.Errorf("invalid rate limit settings")
	}

	return nil
}
