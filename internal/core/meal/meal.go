package meal

import (
	"fmt"
	"strings"

	"nutrition-resolver/internal/core/quantity"

	"github.com/google/uuid"
)

// Type 餐別
type Type string

const (
	Breakfast Type = "breakfast"
	Lunch     Type = "lunch"
	Dinner    Type = "dinner"
	Snack     Type = "snack"
)

// DefaultCompleteDayCalories 一天被視為「完整記錄」的最低熱量
const DefaultCompleteDayCalories = 1200

// ParseType 解析餐別（不分大小寫）
func ParseType(s string) (Type, error) {
	t := Type(strings.ToLower(strings.TrimSpace(s)))
	switch t {
	case Breakfast, Lunch, Dinner, Snack:
		return t, nil
	}
	return "", fmt.Errorf("unknown meal type %q", s)
}

// Group 同一餐的食物項目
type Group struct {
	ID    string                 `json:"id"`
	Type  Type                   `json:"mealType"`
	Items []*quantity.ScaledItem `json:"items"`
}

// NewGroup 建立新的餐點群組
func NewGroup(mealType Type) *Group {
	return RestoreGroup("", mealType)
}

// RestoreGroup 以既有 id 還原群組；id 為空時產生新的
func RestoreGroup(id string, mealType Type) *Group {
	id = strings.TrimSpace(id)
	if id == "" {
		id = uuid.New().String()
	}
	return &Group{
		ID:    id,
		Type:  mealType,
		Items: []*quantity.ScaledItem{},
	}
}

// SetType 儲存前修正餐別
func (g *Group) SetType(s string) error {
	t, err := ParseType(s)
	if err != nil {
		return err
	}
	g.Type = t
	return nil
}

// Add 加入項目
func (g *Group) Add(item *quantity.ScaledItem) {
	g.Items = append(g.Items, item)
}

// Totals 所有項目總量加總
func (g *Group) Totals() quantity.Macros {
	var total quantity.Macros
	for _, it := range g.Items {
		total = total.Add(it.Absolute)
	}
	return total.Rounded()
}

// HasUnverified 是否含有未驗證的項目
func (g *Group) HasUnverified() bool {
	for _, it := range g.Items {
		if it.Unverified {
			return true
		}
	}
	return false
}

// DaySummary 一天的加總
type DaySummary struct {
	Totals        quantity.Macros          `json:"totals"`
	ByMeal        map[Type]quantity.Macros `json:"byMeal"`
	Complete      bool                     `json:"complete"`
	HasUnverified bool                     `json:"hasUnverified"`
}

// Summarize 加總一天的餐點；總熱量達 completeDayCalories 才算完整
func Summarize(groups []*Group, completeDayCalories float64) DaySummary {
	if completeDayCalories <= 0 {
		completeDayCalories = DefaultCompleteDayCalories
	}

	summary := DaySummary{ByMeal: make(map[Type]quantity.Macros)}
	for _, g := range groups {
		t := g.Totals()
		summary.ByMeal[g.Type] = summary.ByMeal[g.Type].Add(t)
		summary.Totals = summary.Totals.Add(t)
		if g.HasUnverified() {
			summary.HasUnverified = true
		}
	}
	summary.Totals = summary.Totals.Rounded()
	summary.Complete = summary.Totals.Calories >= completeDayCalories
	return summary
}
