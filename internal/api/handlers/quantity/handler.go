package quantity

import (
	"fmt"
	"net/http"

	"nutrition-resolver/internal/api/handlers"
	"nutrition-resolver/internal/core/nutrition"
	quantityModel "nutrition-resolver/internal/core/quantity"
	"nutrition-resolver/internal/pkg/common"

	"github.com/gin-gonic/gin"
)

// ScaleRequest 由每 100g 資料建立項目
type ScaleRequest struct {
	Food       nutrition.Fact   `json:"food"`
	Serving    string           `json:"serving"`
	Source     nutrition.Source `json:"source"`
	Unverified bool             `json:"unverified"`
}

// EditRequest 編輯項目；一次請求可同時帶多個修改，依 serving、amount、field 的順序套用
type EditRequest struct {
	Item    *quantityModel.ScaledItem `json:"item" binding:"required"`
	Amount  *float64                  `json:"amount"`
	Serving *string                   `json:"serving"`
	Field   string                    `json:"field"`
	Value   *float64                  `json:"value"`
	// Base 為 true 時 field/value 修改單位量，否則修改總量
	Base bool `json:"base"`
}

// Handler 份量換算處理程序
type Handler struct {
	debug bool
}

// NewHandler 創建份量換算處理程序
func NewHandler(debug bool) *Handler {
	return &Handler{debug: debug}
}

// HandleScale 依份量換算營養素
func (h *Handler) HandleScale(c *gin.Context) {
	var req ScaleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handlers.BadRequest(c, err, h.debug)
		return
	}

	req.Food.Sanitize()
	if err := req.Food.Validate(); err != nil {
		handlers.RespondError(c, common.NewValidationError(err.Error()), h.debug)
		return
	}
	if req.Source != "" && !req.Source.Valid() {
		handlers.RespondError(c, common.NewValidationError(fmt.Sprintf("unknown source %q", req.Source)), h.debug)
		return
	}

	item := quantityModel.FromFact(req.Food, req.Serving)
	item.Source = req.Source
	item.Unverified = req.Unverified || req.Source == nutrition.SourceGenerative

	c.JSON(http.StatusOK, item)
}

// HandleEdit 套用使用者編輯並回傳一致的項目
func (h *Handler) HandleEdit(c *gin.Context) {
	var req EditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handlers.BadRequest(c, err, h.debug)
		return
	}
	if req.Item == nil {
		handlers.RespondError(c, common.NewValidationError("item is required"), h.debug)
		return
	}

	item := req.Item
	item.Repair()

	if req.Serving != nil {
		item.SetComposite(*req.Serving)
	}
	if req.Amount != nil {
		item.SetAmount(*req.Amount)
	}
	if req.Field != "" || req.Value != nil {
		if err := applyField(item, req.Field, req.Value, req.Base); err != nil {
			handlers.RespondError(c, common.NewValidationError(err.Error()), h.debug)
			return
		}
	}

	c.JSON(http.StatusOK, item)
}

func applyField(item *quantityModel.ScaledItem, field string, value *float64, base bool) error {
	if field == "" || value == nil {
		return fmt.Errorf("field and value must be given together")
	}
	m, err := quantityModel.ParseMacro(field)
	if err != nil {
		return err
	}
	if base {
		return item.SetBase(m, *value)
	}
	return item.SetAbsolute(m, *value)
}
