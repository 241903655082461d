package nutrition

import (
	"context"
	"fmt"
	"net/http"

	"nutrition-resolver/internal/api/handlers"
	nutritionModel "nutrition-resolver/internal/core/nutrition"
	"nutrition-resolver/internal/core/resolver"
	"nutrition-resolver/internal/pkg/common"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// MaxBatchItems 批次解析的項目上限
const MaxBatchItems = 50

// Resolver 解析服務
type Resolver interface {
	Resolve(ctx context.Context, input string) (*nutritionModel.Result, error)
	ResolveMany(ctx context.Context, inputs []string) []resolver.BatchItem
}

// CacheWriter 快取回寫
type CacheWriter interface {
	UpsertCandidates(ctx context.Context, candidates []nutritionModel.CacheCandidate) int
	BumpUsage(names ...string) int
}

// ResolveRequest 解析請求
type ResolveRequest struct {
	FoodNameOrBarcode string `json:"foodNameOrBarcode"`
}

// BatchRequest 批次解析請求
type BatchRequest struct {
	Items []string `json:"items" binding:"required"`
}

// BatchResponse 批次解析回應
type BatchResponse struct {
	Items []resolver.BatchItem `json:"items"`
}

// DeviceRequest 裝置擷取（掃碼、拍攝標籤）後經使用者確認的營養資料
type DeviceRequest struct {
	Source nutritionModel.Source `json:"source" binding:"required"`
	Food   nutritionModel.Fact   `json:"food"`
}

// CommitRequest 儲存紀錄時提交的快取候選與命中
type CommitRequest struct {
	CacheCandidates []nutritionModel.CacheCandidate `json:"cacheCandidates"`
	CacheHits       []string                        `json:"cacheHits"`
}

// CommitResponse 提交結果
type CommitResponse struct {
	Written   int `json:"written"`
	Submitted int `json:"submitted"`
	Bumped    int `json:"bumped"`
}

// Handler 營養解析處理程序
type Handler struct {
	resolver Resolver
	writer   CacheWriter
	debug    bool
}

// NewHandler 創建營養解析處理程序
func NewHandler(r Resolver, w CacheWriter, debug bool) *Handler {
	return &Handler{resolver: r, writer: w, debug: debug}
}

// HandleResolve 解析單一食物名稱或條碼
func (h *Handler) HandleResolve(c *gin.Context) {
	var req ResolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handlers.BadRequest(c, err, h.debug)
		return
	}

	result, err := h.resolver.Resolve(c.Request.Context(), req.FoodNameOrBarcode)
	if err != nil {
		handlers.RespondError(c, err, h.debug)
		return
	}

	c.JSON(http.StatusOK, result)
}

// HandleResolveBatch 平行解析多個項目
func (h *Handler) HandleResolveBatch(c *gin.Context) {
	var req BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handlers.BadRequest(c, err, h.debug)
		return
	}
	if len(req.Items) == 0 || len(req.Items) > MaxBatchItems {
		handlers.RespondError(c, common.NewValidationError(
			fmt.Sprintf("items must contain between 1 and %d entries", MaxBatchItems)), h.debug)
		return
	}

	items := h.resolver.ResolveMany(c.Request.Context(), req.Items)

	c.JSON(http.StatusOK, BatchResponse{Items: items})
}

// HandleDevice 將裝置擷取的資料包裝成解析結果
func (h *Handler) HandleDevice(c *gin.Context) {
	var req DeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handlers.BadRequest(c, err, h.debug)
		return
	}

	result, err := nutritionModel.FromDevice(req.Source, req.Food)
	if err != nil {
		handlers.RespondError(c, common.NewValidationError(err.Error()), h.debug)
		return
	}

	c.JSON(http.StatusOK, result)
}

// HandleCommit 儲存紀錄後回寫快取；寫入失敗不影響回應
func (h *Handler) HandleCommit(c *gin.Context) {
	var req CommitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handlers.BadRequest(c, err, h.debug)
		return
	}

	written := 0
	if len(req.CacheCandidates) > 0 {
		written = h.writer.UpsertCandidates(context.WithoutCancel(c.Request.Context()), req.CacheCandidates)
	}

	bumped := h.writer.BumpUsage(req.CacheHits...)

	if written < len(req.CacheCandidates) {
		common.LogWarn("Some cache candidates were not written",
			zap.Int("submitted", len(req.CacheCandidates)),
			zap.Int("written", written),
		)
	}

	c.JSON(http.StatusAccepted, CommitResponse{
		Written:   written,
		Submitted: len(req.CacheCandidates),
		Bumped:    bumped,
	})
}
