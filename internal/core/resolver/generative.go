package resolver

import (
	"context"
	"fmt"
	"math"
	"strings"

	"nutrition-resolver/internal/core/ai/openrouter"
	"nutrition-resolver/internal/core/nutrition"
	"nutrition-resolver/internal/pkg/common"
)

// JSONCompleter 結構化文字生成服務
type JSONCompleter interface {
	CompleteJSON(ctx context.Context, system, prompt string, schema *openrouter.JSONSchema) (string, error)
}

const estimateSystemPrompt = `You estimate nutrition facts. Reply with a single JSON object that matches the schema.
All macro values are per 100 grams of the food as eaten. Sodium is in milligrams.
Use 0 for a nutrient the food does not contain. Never leave a field out.`

// estimateSchema 生成式估計的固定 schema
var estimateSchema = &openrouter.JSONSchema{
	Name:   "nutrition_estimate",
	Strict: true,
	Schema: map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"name":            map[string]interface{}{"type": "string"},
			"brand":           map[string]interface{}{"type": "string"},
			"caloriesPer100g": map[string]interface{}{"type": "number"},
			"proteinPer100g":  map[string]interface{}{"type": "number"},
			"fatPer100g":      map[string]interface{}{"type": "number"},
			"carbsPer100g":    map[string]interface{}{"type": "number"},
			"fiberPer100g":    map[string]interface{}{"type": "number"},
			"sugarPer100g":    map[string]interface{}{"type": "number"},
			"sodiumMgPer100g": map[string]interface{}{"type": "number"},
		},
		"required": []string{
			"name", "brand", "caloriesPer100g", "proteinPer100g", "fatPer100g",
			"carbsPer100g", "fiberPer100g", "sugarPer100g", "sodiumMgPer100g",
		},
		"additionalProperties": false,
	},
}

// estimate 模型輸出；數值用指標以分辨缺少與 0
type estimate struct {
	Name            string   `json:"name"`
	Brand           string   `json:"brand"`
	CaloriesPer100g *float64 `json:"caloriesPer100g"`
	ProteinPer100g  *float64 `json:"proteinPer100g"`
	FatPer100g      *float64 `json:"fatPer100g"`
	CarbsPer100g    *float64 `json:"carbsPer100g"`
	FiberPer100g    *float64 `json:"fiberPer100g"`
	SugarPer100g    *float64 `json:"sugarPer100g"`
	SodiumMgPer100g *float64 `json:"sodiumMgPer100g"`
}

// GenerativeResolver 生成式估計層
type GenerativeResolver struct {
	client JSONCompleter
}

// NewGenerativeResolver 創建生成式估計層
func NewGenerativeResolver(client JSONCompleter) *GenerativeResolver {
	return &GenerativeResolver{client: client}
}

// Name 層級名稱
func (r *GenerativeResolver) Name() string { return string(nutrition.SourceGenerative) }

// Resolve 請模型估計每 100 公克營養素；結果一律標記為未驗證
func (r *GenerativeResolver) Resolve(ctx context.Context, query string) (*nutrition.Result, error) {
	query = strings.TrimSpace(query)
	prompt := fmt.Sprintf("Estimate the nutrition facts per 100 g for: %s", query)

	content, err := r.client.CompleteJSON(ctx, estimateSystemPrompt, prompt, estimateSchema)
	if err != nil {
		return nil, fmt.Errorf("generative estimate failed: %w", err)
	}

	fact, err := parseEstimate(content, query)
	if err != nil {
		return nil, err
	}

	return &nutrition.Result{
		Source:           nutrition.SourceGenerative,
		Food:             fact,
		MatchDescription: nutrition.GenerativeDescription,
		MatchScore:       0,
		Unverified:       true,
		CacheCandidate:   nutrition.NewCacheCandidate(query, fact, nutrition.SourceGenerative, true, 0, nutrition.GenerativeDescription),
	}, nil
}

// parseEstimate 解析並驗證模型輸出
func parseEstimate(content, query string) (nutrition.Fact, error) {
	var est estimate
	if err := common.ParseJSON(content, &est); err != nil {
		return nutrition.Fact{}, fmt.Errorf("malformed generative estimate: %w", err)
	}

	fact := nutrition.Fact{
		Name:  strings.TrimSpace(est.Name),
		Brand: strings.TrimSpace(est.Brand),
	}
	if fact.Name == "" {
		fact.Name = query
	}

	fields := []struct {
		name string
		src  *float64
		dst  *float64
	}{
		{"caloriesPer100g", est.CaloriesPer100g, &fact.CaloriesPer100g},
		{"proteinPer100g", est.ProteinPer100g, &fact.ProteinPer100g},
		{"fatPer100g", est.FatPer100g, &fact.FatPer100g},
		{"carbsPer100g", est.CarbsPer100g, &fact.CarbsPer100g},
		{"fiberPer100g", est.FiberPer100g, &fact.FiberPer100g},
		{"sugarPer100g", est.SugarPer100g, &fact.SugarPer100g},
		{"sodiumMgPer100g", est.SodiumMgPer100g, &fact.SodiumMgPer100g},
	}
	for _, f := range fields {
		if f.src == nil {
			return nutrition.Fact{}, fmt.Errorf("generative estimate is missing %s", f.name)
		}
		if math.IsNaN(*f.src) || math.IsInf(*f.src, 0) || *f.src < 0 {
			return nutrition.Fact{}, fmt.Errorf("generative estimate has invalid %s: %v", f.name, *f.src)
		}
		*f.dst = *f.src
	}

	if err := fact.Validate(); err != nil {
		return nutrition.Fact{}, fmt.Errorf("invalid generative estimate: %w", err)
	}
	return fact, nil
}
