package meal

import (
	"fmt"
	"net/http"

	"nutrition-resolver/internal/api/handlers"
	mealModel "nutrition-resolver/internal/core/meal"
	"nutrition-resolver/internal/core/quantity"
	"nutrition-resolver/internal/pkg/common"

	"github.com/gin-gonic/gin"
)

// MealInput 一餐的輸入；id 可省略，省略時產生新的
type MealInput struct {
	ID       string                 `json:"id,omitempty"`
	MealType string                 `json:"mealType"`
	Items    []*quantity.ScaledItem `json:"items"`
}

// SummaryRequest 一天的餐點
type SummaryRequest struct {
	Meals []MealInput `json:"meals"`
}

// SummaryResponse 加總結果，附上修正後的餐點
type SummaryResponse struct {
	mealModel.DaySummary
	Meals []*mealModel.Group `json:"meals"`
}

// Handler 餐點處理程序
type Handler struct {
	completeDayCalories float64
	debug               bool
}

// NewHandler 創建餐點處理程序
func NewHandler(completeDayCalories float64, debug bool) *Handler {
	return &Handler{completeDayCalories: completeDayCalories, debug: debug}
}

// HandleSummary 驗證餐別、修正項目並加總
func (h *Handler) HandleSummary(c *gin.Context) {
	var req SummaryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handlers.BadRequest(c, err, h.debug)
		return
	}

	groups := make([]*mealModel.Group, 0, len(req.Meals))
	for i, m := range req.Meals {
		g := mealModel.RestoreGroup(m.ID, "")
		if err := g.SetType(m.MealType); err != nil {
			handlers.RespondError(c, common.NewValidationError(fmt.Sprintf("meals[%d]: %v", i, err)), h.debug)
			return
		}
		for _, item := range m.Items {
			if item == nil {
				continue
			}
			item.Repair()
			g.Add(item)
		}
		groups = append(groups, g)
	}

	c.JSON(http.StatusOK, SummaryResponse{
		DaySummary: mealModel.Summarize(groups, h.completeDayCalories),
		Meals:      groups,
	})
}
