package quantity

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"nutrition-resolver/internal/core/nutrition"
)

// ScaledItem 記錄或編輯中的一筆食物，Absolute 永遠等於 Round(Base × Amount)
type ScaledItem struct {
	FoodName         string           `json:"foodName"`
	ServingSizeLabel string           `json:"servingSizeLabel"`
	Amount           float64          `json:"amount"`
	Base             Macros           `json:"base"`
	Absolute         Macros           `json:"absolute"`
	Source           nutrition.Source `json:"source,omitempty"`
	Unverified       bool             `json:"unverified"`
}

// NewScaledItem 由單位量建立項目並推導總量
func NewScaledItem(foodName, servingSizeLabel string, amount float64, base Macros) *ScaledItem {
	item := &ScaledItem{
		FoodName:         foodName,
		ServingSizeLabel: servingSizeLabel,
		Amount:           SafeAmount(amount),
		Base:             base,
	}
	if strings.TrimSpace(item.ServingSizeLabel) == "" {
		item.ServingSizeLabel = DefaultServingLabel
	}
	item.rederiveAbsolute()
	return item
}

// FromFact 將每 100g 資料換算成使用者份量
//
// serving 可為 "N x 份量" 表示法；空字串表示 1 份。份量標籤帶有公克或毫升數時，
// 單位量依該數量換算；否則沿用資料本身的份量（已知克數或毫升數）或 100 g。
func FromFact(fact nutrition.Fact, serving string) *ScaledItem {
	label, factor := unitFor(fact)

	amount := 1.0
	if strings.TrimSpace(serving) != "" {
		c := ParseComposite(serving)
		amount = c.Amount
		if m, ok := ParseMeasure(c.ServingSizeLabel); ok {
			label = c.ServingSizeLabel
			factor = m.Value / 100
		}
	}

	per100 := Macros{
		Calories: fact.CaloriesPer100g,
		Protein:  fact.ProteinPer100g,
		Fat:      fact.FatPer100g,
		Carbs:    fact.CarbsPer100g,
		Fiber:    fact.FiberPer100g,
		Sugar:    fact.SugarPer100g,
		SodiumMg: fact.SodiumMgPer100g,
	}
	return NewScaledItem(fact.Name, label, amount, per100.Scale(factor))
}

// unitFor 回傳單位標籤與相對於 100g 的係數
func unitFor(fact nutrition.Fact) (string, float64) {
	switch {
	case fact.ServingGrams != nil && *fact.ServingGrams > 0:
		label := fact.ServingSizeLabel
		if label == "" {
			label = strconv.FormatFloat(*fact.ServingGrams, 'f', -1, 64) + " g"
		}
		return label, *fact.ServingGrams / 100
	case fact.ServingMilliliters != nil && *fact.ServingMilliliters > 0:
		label := fact.ServingSizeLabel
		if label == "" {
			label = strconv.FormatFloat(*fact.ServingMilliliters, 'f', -1, 64) + " ml"
		}
		return label, *fact.ServingMilliliters / 100
	default:
		return "100 g", 1
	}
}

// rederiveAbsolute 由單位量重新計算全部總量
func (it *ScaledItem) rederiveAbsolute() {
	for _, m := range AllMacros {
		it.Absolute.Set(m, DeriveAbsoluteFromBase(m, it.Base.Get(m), it.Amount))
	}
}

// SetAmount 修改倍數：單位量不變，總量全部重算
func (it *ScaledItem) SetAmount(amount float64) {
	it.Amount = SafeAmount(amount)
	it.rederiveAbsolute()
}

// SetAbsolute 直接修改某欄總量：同時反推該欄單位量
func (it *ScaledItem) SetAbsolute(m Macro, value float64) error {
	if value < 0 {
		return fmt.Errorf("%s cannot be negative", m)
	}
	it.Absolute.Set(m, Round(m, value))
	it.Base.Set(m, DeriveBaseFromAbsolute(value, it.Amount))
	return nil
}

// SetBase 修改某欄單位量並重算該欄總量
func (it *ScaledItem) SetBase(m Macro, value float64) error {
	if value < 0 {
		return fmt.Errorf("%s cannot be negative", m)
	}
	it.Base.Set(m, value)
	it.Absolute.Set(m, DeriveAbsoluteFromBase(m, value, it.Amount))
	return nil
}

// SetComposite 以 "N x 份量" 同時修改標籤與倍數
func (it *ScaledItem) SetComposite(text string) {
	c := ParseComposite(text)
	it.ServingSizeLabel = c.ServingSizeLabel
	it.SetAmount(c.Amount)
}

// Composite 回傳 "N x 份量" 表示法
func (it *ScaledItem) Composite() string {
	return FormatComposite(it.ServingSizeLabel, it.Amount)
}

// Repair 修正外部傳入的項目：倍數不合法時改為 1，負值或非有限的單位量歸零，並由單位量重算總量
func (it *ScaledItem) Repair() {
	it.Amount = SafeAmount(it.Amount)
	if strings.TrimSpace(it.ServingSizeLabel) == "" {
		it.ServingSizeLabel = DefaultServingLabel
	}
	for _, m := range AllMacros {
		if v := it.Base.Get(m); !(v >= 0) || math.IsInf(v, 1) {
			it.Base.Set(m, 0)
		}
	}
	it.rederiveAbsolute()
}
