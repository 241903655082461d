// Package quantity holds the serving-scaling model shared by every editor that
// logs, edits or saves a food item: base per-unit macros times an amount.
package quantity

import (
	"fmt"
	"math"
)

// Macro 巨量營養素欄位
type Macro int

const (
	Calories Macro = iota
	Protein
	Fat
	Carbs
	Fiber
	Sugar
	SodiumMg
)

// AllMacros 七個欄位的固定順序
var AllMacros = []Macro{Calories, Protein, Fat, Carbs, Fiber, Sugar, SodiumMg}

var macroNames = map[Macro]string{
	Calories: "calories",
	Protein:  "protein",
	Fat:      "fat",
	Carbs:    "carbs",
	Fiber:    "fiber",
	Sugar:    "sugar",
	SodiumMg: "sodium",
}

func (m Macro) String() string {
	if name, ok := macroNames[m]; ok {
		return name
	}
	return fmt.Sprintf("macro(%d)", int(m))
}

// ParseMacro 由欄位名稱取得 Macro
func ParseMacro(name string) (Macro, error) {
	for m, n := range macroNames {
		if n == name {
			return m, nil
		}
	}
	if name == "sodiumMg" {
		return SodiumMg, nil
	}
	return 0, fmt.Errorf("unknown macro field %q", name)
}

// SafeAmount 倍數小於等於 0 或非有限值時以 1 代替
func SafeAmount(amount float64) float64 {
	if !(amount > 0) || math.IsInf(amount, 0) {
		return 1
	}
	return amount
}

// Round 依欄位精度取整：熱量與鈉為整數，其餘取到小數一位
func Round(m Macro, v float64) float64 {
	switch m {
	case Calories, SodiumMg:
		return math.Round(v)
	default:
		return math.Round(v*10) / 10
	}
}

// DeriveBaseFromAbsolute 由總量反推單位量
func DeriveBaseFromAbsolute(absoluteValue, amount float64) float64 {
	return absoluteValue / SafeAmount(amount)
}

// DeriveAbsoluteFromBase 由單位量乘上倍數得到總量
func DeriveAbsoluteFromBase(m Macro, baseValue, amount float64) float64 {
	return Round(m, baseValue*SafeAmount(amount))
}

// Macros 七個欄位的數值
type Macros struct {
	Calories float64 `json:"calories"`
	Protein  float64 `json:"protein"`
	Fat      float64 `json:"fat"`
	Carbs    float64 `json:"carbs"`
	Fiber    float64 `json:"fiber"`
	Sugar    float64 `json:"sugar"`
	SodiumMg float64 `json:"sodiumMg"`
}

func (ms *Macros) ptr(m Macro) *float64 {
	switch m {
	case Calories:
		return &ms.Calories
	case Protein:
		return &ms.Protein
	case Fat:
		return &ms.Fat
	case Carbs:
		return &ms.Carbs
	case Fiber:
		return &ms.Fiber
	case Sugar:
		return &ms.Sugar
	case SodiumMg:
		return &ms.SodiumMg
	}
	panic(fmt.Sprintf("quantity: unknown macro %d", int(m)))
}

// Get 取得欄位值
func (ms Macros) Get(m Macro) float64 {
	return *ms.ptr(m)
}

// Set 設定欄位值
func (ms *Macros) Set(m Macro, v float64) {
	*ms.ptr(m) = v
}

// Add 逐欄相加
func (ms Macros) Add(other Macros) Macros {
	for _, m := range AllMacros {
		ms.Set(m, ms.Get(m)+other.Get(m))
	}
	return ms
}

// Scale 逐欄乘上倍數（不取整）
func (ms Macros) Scale(factor float64) Macros {
	for _, m := range AllMacros {
		ms.Set(m, ms.Get(m)*factor)
	}
	return ms
}

// Rounded 逐欄依精度取整
func (ms Macros) Rounded() Macros {
	for _, m := range AllMacros {
		ms.Set(m, Round(m, ms.Get(m)))
	}
	return ms
}
