package offacts

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"nutrition-resolver/internal/infrastructure/config"
	"nutrition-resolver/internal/pkg/common"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// ErrProductNotFound 查無此條碼
var ErrProductNotFound = errors.New("product not found")

// Client Open Food Facts 客戶端
type Client struct {
	client   *resty.Client
	pageSize int
}

// productResponse 條碼查詢回應
type productResponse struct {
	Status  int     `json:"status"`
	Product Product `json:"product"`
}

// searchResponse 文字搜尋回應
type searchResponse struct {
	Count    int       `json:"count"`
	Products []Product `json:"products"`
}

// NewClient 創建 Open Food Facts 客戶端
func NewClient(cfg *config.OpenFoodFactsConfig) *Client {
	pageSize := cfg.SearchPageSize
	if pageSize <= 0 {
		pageSize = 10
	}

	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetHeader("User-Agent", cfg.UserAgent).
		SetHeader("Accept", "application/json")

	return &Client{
		client:   client,
		pageSize: pageSize,
	}
}

// ProductByCode 以條碼查詢商品
func (c *Client) ProductByCode(ctx context.Context, code string) (*Product, error) {
	start := time.Now()
	resp, err := c.client.R().
		SetContext(ctx).
		SetPathParam("code", code).
		Get("/api/v2/product/{code}.json")
	if err != nil {
		return nil, fmt.Errorf("failed to send request to Open Food Facts: %w", err)
	}

	common.LogDebug("Open Food Facts product lookup",
		zap.String("code", code),
		zap.Int("status", resp.StatusCode()),
		zap.Duration("duration", time.Since(start)),
	)

	if resp.StatusCode() == http.StatusNotFound {
		return nil, ErrProductNotFound
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("Open Food Facts returned status %d", resp.StatusCode())
	}

	var result productResponse
	if err := common.ParseJSONBytes(resp.Body(), &result); err != nil {
		return nil, fmt.Errorf("failed to parse Open Food Facts response: %w", err)
	}
	if result.Status != 1 {
		return nil, ErrProductNotFound
	}
	if result.Product.Code == "" {
		result.Product.Code = code
	}
	return &result.Product, nil
}

// Search 以文字搜尋商品，最多回傳 pageSize 筆
func (c *Client) Search(ctx context.Context, query string) ([]Product, error) {
	start := time.Now()
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"search_terms":  query,
			"search_simple": "1",
			"action":        "process",
			"json":          "1",
			"page_size":     strconv.Itoa(c.pageSize),
		}).
		Get("/cgi/search.pl")
	if err != nil {
		return nil, fmt.Errorf("failed to send request to Open Food Facts: %w", err)
	}

	common.LogDebug("Open Food Facts search",
		zap.String("query", query),
		zap.Int("status", resp.StatusCode()),
		zap.Duration("duration", time.Since(start)),
	)

	if !resp.IsSuccess() {
		return nil, fmt.Errorf("Open Food Facts returned status %d", resp.StatusCode())
	}

	var result searchResponse
	if err := common.ParseJSONBytes(resp.Body(), &result); err != nil {
		return nil, fmt.Errorf("failed to parse Open Food Facts response: %w", err)
	}
	return result.Products, nil
}
