package quantity

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"nutrition-resolver/internal/core/nutrition"
	quantityModel "nutrition-resolver/internal/core/quantity"

	"github.com/gin-gonic/gin"
)

func setupTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()

	h := NewHandler(false)
	router.POST("/scale", h.HandleScale)
	router.POST("/edit", h.HandleEdit)
	return router
}

func postJSON(t *testing.T, router http.Handler, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeItem(t *testing.T, w *httptest.ResponseRecorder) quantityModel.ScaledItem {
	t.Helper()
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var item quantityModel.ScaledItem
	if err := json.Unmarshal(w.Body.Bytes(), &item); err != nil {
		t.Fatal(err)
	}
	return item
}

func TestHandleScale(t *testing.T) {
	router := setupTestRouter()
	grams := 30.0
	food := nutrition.Fact{
		Name:            "Granola",
		CaloriesPer100g: 450,
		ProteinPer100g:  10,
		SodiumMgPer100g: 120,
		ServingGrams:    &grams,
	}

	item := decodeItem(t, postJSON(t, router, "/scale", ScaleRequest{
		Food:    food,
		Serving: "2 x 30 g",
		Source:  nutrition.SourceGenerative,
	}))

	if item.ServingSizeLabel != "30 g" || item.Amount != 2 {
		t.Errorf("serving = %q x %v; want 30 g x 2", item.ServingSizeLabel, item.Amount)
	}
	if item.Base.Calories != 135 || item.Absolute.Calories != 270 {
		t.Errorf("calories base=%v abs=%v; want 135/270", item.Base.Calories, item.Absolute.Calories)
	}
	if item.Absolute.SodiumMg != 72 {
		t.Errorf("sodium = %v; want 72", item.Absolute.SodiumMg)
	}
	if !item.Unverified {
		t.Error("generative item must be unverified")
	}
}

func TestHandleScale_MeasuredServing(t *testing.T) {
	router := setupTestRouter()
	rice := nutrition.Fact{Name: "Rice", CaloriesPer100g: 130, ProteinPer100g: 2.6}

	item := decodeItem(t, postJSON(t, router, "/scale", ScaleRequest{
		Food:    rice,
		Serving: "150 g",
		Source:  nutrition.SourceExternal,
	}))
	if item.ServingSizeLabel != "150 g" || item.Amount != 1 {
		t.Errorf("serving = %q x %v; want 150 g x 1", item.ServingSizeLabel, item.Amount)
	}
	if item.Absolute.Calories != 195 {
		t.Errorf("calories = %v; want 195", item.Absolute.Calories)
	}
	if item.Absolute.Protein != 3.9 {
		t.Errorf("protein = %v; want 3.9", item.Absolute.Protein)
	}
	if item.Unverified {
		t.Error("external item must not be unverified")
	}
}

func TestHandleScale_Invalid(t *testing.T) {
	router := setupTestRouter()

	w := postJSON(t, router, "/scale", ScaleRequest{Food: nutrition.Fact{}})
	if w.Code != http.StatusBadRequest {
		t.Errorf("empty food: expected 400, got %d", w.Code)
	}

	w = postJSON(t, router, "/scale", ScaleRequest{
		Food:   nutrition.Fact{Name: "Rice", CaloriesPer100g: 130},
		Source: "guess",
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("unknown source: expected 400, got %d", w.Code)
	}
}

func TestHandleEdit(t *testing.T) {
	router := setupTestRouter()
	base := quantityModel.Macros{Calories: 100, Protein: 4, Fat: 2.5, SodiumMg: 55}
	amount := func(v float64) *float64 { return &v }
	serving := func(s string) *string { return &s }

	tests := []struct {
		name        string
		req         EditRequest
		wantAmount  float64
		wantLabel   string
		wantBaseCal float64
		wantAbsCal  float64
		wantAbsProt float64
	}{
		{
			name:        "repair only",
			req:         EditRequest{Item: &quantityModel.ScaledItem{FoodName: "Toast", Amount: -3, Base: base}},
			wantAmount:  1,
			wantLabel:   quantityModel.DefaultServingLabel,
			wantBaseCal: 100,
			wantAbsCal:  100,
			wantAbsProt: 4,
		},
		{
			name:        "repair clamps negative base",
			req:         EditRequest{Item: &quantityModel.ScaledItem{FoodName: "Toast", ServingSizeLabel: "1 slice", Amount: 2, Base: quantityModel.Macros{Calories: -100, Protein: 4}}},
			wantAmount:  2,
			wantLabel:   "1 slice",
			wantBaseCal: 0,
			wantAbsCal:  0,
			wantAbsProt: 8,
		},
		{
			name:        "double amount",
			req:         EditRequest{Item: quantityModel.NewScaledItem("Toast", "1 slice", 1, base), Amount: amount(2)},
			wantAmount:  2,
			wantLabel:   "1 slice",
			wantBaseCal: 100,
			wantAbsCal:  200,
			wantAbsProt: 8,
		},
		{
			name:        "composite serving",
			req:         EditRequest{Item: quantityModel.NewScaledItem("Toast", "1 slice", 1, base), Serving: serving("3 x 1 slice")},
			wantAmount:  3,
			wantLabel:   "1 slice",
			wantBaseCal: 100,
			wantAbsCal:  300,
			wantAbsProt: 12,
		},
		{
			name: "absolute edit rederives base",
			req: EditRequest{
				Item:  quantityModel.NewScaledItem("Toast", "1 slice", 2, base),
				Field: "calories",
				Value: amount(300),
			},
			wantAmount:  2,
			wantLabel:   "1 slice",
			wantBaseCal: 150,
			wantAbsCal:  300,
			wantAbsProt: 8,
		},
		{
			name: "base edit rederives absolute",
			req: EditRequest{
				Item:  quantityModel.NewScaledItem("Toast", "1 slice", 2, base),
				Field: "protein",
				Value: amount(5),
				Base:  true,
			},
			wantAmount:  2,
			wantLabel:   "1 slice",
			wantBaseCal: 100,
			wantAbsCal:  200,
			wantAbsProt: 10,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := decodeItem(t, postJSON(t, router, "/edit", tt.req))
			if item.Amount != tt.wantAmount || item.ServingSizeLabel != tt.wantLabel {
				t.Errorf("serving = %q x %v; want %q x %v", item.ServingSizeLabel, item.Amount, tt.wantLabel, tt.wantAmount)
			}
			if item.Base.Calories != tt.wantBaseCal || item.Absolute.Calories != tt.wantAbsCal {
				t.Errorf("calories base=%v abs=%v; want %v/%v", item.Base.Calories, item.Absolute.Calories, tt.wantBaseCal, tt.wantAbsCal)
			}
			if item.Absolute.Protein != tt.wantAbsProt {
				t.Errorf("protein abs=%v; want %v", item.Absolute.Protein, tt.wantAbsProt)
			}
		})
	}
}

func TestHandleEdit_Invalid(t *testing.T) {
	router := setupTestRouter()
	item := quantityModel.NewScaledItem("Toast", "1 slice", 1, quantityModel.Macros{Calories: 100})
	neg := -5.0
	val := 10.0

	tests := []struct {
		name string
		req  interface{}
	}{
		{"missing item", map[string]interface{}{"amount": 2}},
		{"field without value", EditRequest{Item: item, Field: "calories"}},
		{"value without field", EditRequest{Item: item, Value: &val}},
		{"unknown field", EditRequest{Item: item, Field: "vitaminC", Value: &val}},
		{"negative value", EditRequest{Item: item, Field: "fat", Value: &neg}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := postJSON(t, router, "/edit", tt.req)
			if w.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d: %s", w.Code, w.Body.String())
			}
		})
	}
}
