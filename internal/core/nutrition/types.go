package nutrition

import (
	"fmt"
	"math"
	"strings"
	"time"

	"nutrition-resolver/internal/pkg/textmatch"
)

// Source 營養資料來源
type Source string

const (
	SourceCache      Source = "cache"
	SourceExternal   Source = "external"
	SourceGenerative Source = "generative"
	SourceBarcode    Source = "barcode"
	SourceLabelPhoto Source = "label_photo"
)

// IsDevice 是否為裝置擷取（掃碼或拍攝標籤）的來源
func (s Source) IsDevice() bool {
	return s == SourceBarcode || s == SourceLabelPhoto
}

// Valid 檢查來源是否為已知值
func (s Source) Valid() bool {
	switch s {
	case SourceCache, SourceExternal, SourceGenerative, SourceBarcode, SourceLabelPhoto:
		return true
	}
	return false
}

// GenerativeDescription 生成式估計的固定描述
const GenerativeDescription = "generative estimate (unverified)"

// Fact 每 100 公克的營養資料
type Fact struct {
	Name               string   `json:"name"`
	Brand              string   `json:"brand,omitempty"`
	CaloriesPer100g    float64  `json:"caloriesPer100g"`
	ProteinPer100g     float64  `json:"proteinPer100g"`
	FatPer100g         float64  `json:"fatPer100g"`
	CarbsPer100g       float64  `json:"carbsPer100g"`
	FiberPer100g       float64  `json:"fiberPer100g"`
	SugarPer100g       float64  `json:"sugarPer100g"`
	SodiumMgPer100g    float64  `json:"sodiumMgPer100g"`
	ServingSizeLabel   string   `json:"servingSizeLabel,omitempty"`
	ServingGrams       *float64 `json:"servingGrams,omitempty"`
	ServingMilliliters *float64 `json:"servingMilliliters,omitempty"`
}

// macroFields 依固定順序回傳七個巨量營養素欄位的指標
func (f *Fact) macroFields() []*float64 {
	return []*float64{
		&f.CaloriesPer100g, &f.ProteinPer100g, &f.FatPer100g, &f.CarbsPer100g,
		&f.FiberPer100g, &f.SugarPer100g, &f.SodiumMgPer100g,
	}
}

// Sanitize 將 NaN、Inf 與負值歸零，並整理字串欄位
func (f *Fact) Sanitize() {
	for _, p := range f.macroFields() {
		if math.IsNaN(*p) || math.IsInf(*p, 0) || *p < 0 {
			*p = 0
		}
	}
	f.Name = strings.TrimSpace(f.Name)
	f.Brand = strings.TrimSpace(f.Brand)
	f.ServingSizeLabel = strings.TrimSpace(f.ServingSizeLabel)
	if f.ServingGrams != nil && !(*f.ServingGrams > 0) {
		f.ServingGrams = nil
	}
	if f.ServingMilliliters != nil && !(*f.ServingMilliliters > 0) {
		f.ServingMilliliters = nil
	}
}

// Validate 檢查七個欄位皆為非負有限數值且名稱不為空
func (f *Fact) Validate() error {
	if strings.TrimSpace(f.Name) == "" {
		return fmt.Errorf("food name is empty")
	}
	names := []string{"calories", "protein", "fat", "carbs", "fiber", "sugar", "sodium"}
	for i, p := range f.macroFields() {
		if math.IsNaN(*p) || math.IsInf(*p, 0) || *p < 0 {
			return fmt.Errorf("%s must be a non-negative finite number, got %v", names[i], *p)
		}
	}
	return nil
}

// CacheCandidate 尚未寫入的快取資料，由呼叫端在儲存時提交
type CacheCandidate struct {
	NormalizedName  string    `json:"normalizedName"`
	Fact                      // 內嵌營養資料
	Source          Source    `json:"source"`
	Unverified      bool      `json:"unverified"`
	MatchConfidence float64   `json:"matchConfidence"`
	MatchNotes      string    `json:"matchNotes,omitempty"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// Key 回傳快取鍵，缺少時由名稱推導
func (c *CacheCandidate) Key() string {
	if c.NormalizedName != "" {
		return textmatch.Normalize(c.NormalizedName)
	}
	return textmatch.Normalize(c.Name)
}

// NewCacheCandidate 由解析結果建立快取候選
func NewCacheCandidate(query string, fact Fact, source Source, unverified bool, confidence float64, notes string) *CacheCandidate {
	key := textmatch.Normalize(query)
	if key == "" {
		key = textmatch.Normalize(fact.Name)
	}
	return &CacheCandidate{
		NormalizedName:  key,
		Fact:            fact,
		Source:          source,
		Unverified:      unverified,
		MatchConfidence: confidence,
		MatchNotes:      notes,
	}
}

// Result 統一的解析結果
type Result struct {
	Source           Source          `json:"source"`
	Food             Fact            `json:"food"`
	MatchDescription string          `json:"matchDescription"`
	MatchScore       float64         `json:"matchScore"`
	Unverified       bool            `json:"unverified"`
	CacheCandidate   *CacheCandidate `json:"cacheCandidate"`
	// 快取命中時的鍵，儲存時用來遞增使用次數
	CacheKey string `json:"cacheKey,omitempty"`
}

// FromDevice 將裝置擷取並經使用者確認的資料包裝成解析結果
func FromDevice(source Source, fact Fact) (*Result, error) {
	if !source.IsDevice() {
		return nil, fmt.Errorf("source %q is not a device source", source)
	}
	fact.Sanitize()
	if err := fact.Validate(); err != nil {
		return nil, err
	}

	desc := "scanned barcode"
	if source == SourceLabelPhoto {
		desc = "nutrition label photo"
	}
	return &Result{
		Source:           source,
		Food:             fact,
		MatchDescription: desc,
		MatchScore:       1,
		Unverified:       false,
		CacheCandidate:   NewCacheCandidate(fact.Name, fact, source, false, 1, desc),
	}, nil
}
