package offacts

import (
	"math"
	"strconv"
	"strings"

	"nutrition-resolver/internal/core/nutrition"
	"nutrition-resolver/internal/core/quantity"
)

// Product Open Food Facts 商品的必要欄位
type Product struct {
	Code                string                 `json:"code"`
	ProductName         string                 `json:"product_name"`
	ProductNameEn       string                 `json:"product_name_en"`
	GenericName         string                 `json:"generic_name"`
	Brands              string                 `json:"brands"`
	Nutriments          map[string]interface{} `json:"nutriments"`
	ServingQuantity     interface{}            `json:"serving_quantity,omitempty"`
	ServingQuantityUnit string                 `json:"serving_quantity_unit,omitempty"`
	ServingSize         string                 `json:"serving_size,omitempty"`
}

// Name 依序取 product_name、product_name_en、generic_name
func (p *Product) Name() string {
	for _, n := range []string{p.ProductName, p.ProductNameEn, p.GenericName} {
		if n = strings.TrimSpace(n); n != "" {
			return n
		}
	}
	return ""
}

// Brand 取第一個品牌
func (p *Product) Brand() string {
	first, _, _ := strings.Cut(p.Brands, ",")
	return strings.TrimSpace(first)
}

// ToFact 轉成每 100 公克營養資料；七項營養素任一缺少時 complete 為 false
func (p *Product) ToFact() (fact nutrition.Fact, complete bool) {
	fact = nutrition.Fact{
		Name:             p.Name(),
		Brand:            p.Brand(),
		ServingSizeLabel: strings.TrimSpace(p.ServingSize),
	}
	fact.ServingGrams, fact.ServingMilliliters = p.classifyServing()

	kcal, ok := p.kcal100g()
	if !ok {
		return fact, false
	}
	fact.CaloriesPer100g = kcal

	fields := []struct {
		key string
		dst *float64
	}{
		{"proteins_100g", &fact.ProteinPer100g},
		{"fat_100g", &fact.FatPer100g},
		{"carbohydrates_100g", &fact.CarbsPer100g},
		{"sugars_100g", &fact.SugarPer100g},
		{"fiber_100g", &fact.FiberPer100g},
		{"sodium_100g", &fact.SodiumMgPer100g},
	}
	for _, f := range fields {
		v, ok := extractFloat(p.Nutriments, f.key)
		if !ok || v < 0 {
			return fact, false
		}
		*f.dst = v
	}

	// 資料庫的鈉以公克計
	fact.SodiumMgPer100g *= 1000

	// 名稱缺漏時以條碼命名
	if fact.Name == "" {
		fact.Name = strings.TrimSpace("product " + p.Code)
	}
	return fact, true
}

// kcal100g 優先取 energy-kcal_100g，否則以 kJ / 4.184 換算
func (p *Product) kcal100g() (float64, bool) {
	if v, ok := extractFloat(p.Nutriments, "energy-kcal_100g"); ok && v >= 0 {
		return v, true
	}
	if v, ok := extractFloat(p.Nutriments, "energy-kj_100g"); ok && v >= 0 {
		return v / 4.184, true
	}
	return 0, false
}

// classifyServing 判斷份量為公克或毫升；無法判斷時兩者皆為 nil
func (p *Product) classifyServing() (grams, milliliters *float64) {
	qty, hasQty := toFloat(p.ServingQuantity)
	if hasQty && !(qty > 0) {
		hasQty = false
	}

	switch quantity.UnitKind(p.ServingQuantityUnit) {
	case "g":
		if hasQty {
			return &qty, nil
		}
	case "ml":
		if hasQty {
			return nil, &qty
		}
	}

	// 從份量標籤判斷單位
	m, ok := quantity.ParseMeasure(p.ServingSize)
	if !ok {
		return nil, nil
	}
	v := m.Value
	if hasQty {
		v = qty
	}
	if m.Kind == "ml" {
		return nil, &v
	}
	return &v, nil
}

// extractFloat 將 nutriments 的值轉為 float64
func extractFloat(m map[string]interface{}, key string) (float64, bool) {
	v, ok := m[key]
	if !ok {
		return 0, false
	}
	return toFloat(v)
}

func toFloat(v interface{}) (float64, bool) {
	switch x := v.(type) {
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return 0, false
		}
		return x, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(strings.Replace(x, ",", ".", 1)), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	}
	return 0, false
}
