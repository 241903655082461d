package resolver

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"nutrition-resolver/internal/core/ai/openrouter"
	"nutrition-resolver/internal/core/cache"
	"nutrition-resolver/internal/core/nutrition"
	"nutrition-resolver/internal/core/offacts"
	"nutrition-resolver/internal/infrastructure/config"
	"nutrition-resolver/internal/pkg/common"
)

// fakeProducts 模擬外部食品資料庫
type fakeProducts struct {
	byCode   map[string]*offacts.Product
	products []offacts.Product
	err      error
}

func (f *fakeProducts) ProductByCode(ctx context.Context, code string) (*offacts.Product, error) {
	if f.err != nil {
		return nil, f.err
	}
	if p, ok := f.byCode[code]; ok {
		return p, nil
	}
	return nil, offacts.ErrProductNotFound
}

func (f *fakeProducts) Search(ctx context.Context, query string) ([]offacts.Product, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.products, nil
}

// fakeCompleter 模擬生成式服務
type fakeCompleter struct {
	content string
	err     error
	calls   int32
}

func (f *fakeCompleter) CompleteJSON(ctx context.Context, system, prompt string, schema *openrouter.JSONSchema) (string, error) {
	atomic.AddInt32(&f.calls, 1)
	return f.content, f.err
}

// fakeTier 可自訂行為的層級
type fakeTier struct {
	name  string
	calls int32
	fn    func(ctx context.Context, q string) (*nutrition.Result, error)
}

func (f *fakeTier) Name() string { return f.name }

func (f *fakeTier) Resolve(ctx context.Context, q string) (*nutrition.Result, error) {
	atomic.AddInt32(&f.calls, 1)
	return f.fn(ctx, q)
}

const toastEstimate = `{"name":"toast","brand":"","caloriesPer100g":265,"proteinPer100g":9,"fatPer100g":3.2,
"carbsPer100g":49,"fiberPer100g":2.7,"sugarPer100g":5,"sodiumMgPer100g":491}`

func nutriments(skip string) map[string]interface{} {
	n := map[string]interface{}{
		"energy-kcal_100g":   89.0,
		"proteins_100g":      1.1,
		"fat_100g":           0.3,
		"carbohydrates_100g": 22.8,
		"sugars_100g":        12.2,
		"fiber_100g":         2.6,
		"sodium_100g":        0.001,
	}
	delete(n, skip)
	return n
}

func cached(name string, source nutrition.Source, unverified bool) nutrition.CacheCandidate {
	fact := nutrition.Fact{Name: name, CaloriesPer100g: 89, ProteinPer100g: 1.1, CarbsPer100g: 22.8}
	return *nutrition.NewCacheCandidate(name, fact, source, unverified, 1, "")
}

func words(from, to int) string {
	parts := make([]string, 0, to-from+1)
	for i := from; i <= to; i++ {
		parts = append(parts, fmt.Sprintf("w%02d", i))
	}
	return strings.Join(parts, " ")
}

func testConfig() *config.ResolverConfig {
	return &config.ResolverConfig{
		CacheThreshold:    config.DefaultCacheThreshold,
		ExternalThreshold: config.DefaultExternalThreshold,
		CallTimeout:       time.Second,
		BatchConcurrency:  4,
	}
}

func TestMeetsThreshold(t *testing.T) {
	tests := []struct {
		score, threshold float64
		want             bool
	}{
		{0.85, 0.85, true},
		{math.Nextafter(0.85, 0), 0.85, false},
		{0.849, 0.85, false},
		{0.80, 0.80, true},
		{math.Nextafter(0.80, 0), 0.80, false},
		{0.799, 0.80, false},
		{1, 0.85, true},
	}
	for _, tc := range tests {
		if got := meetsThreshold(tc.score, tc.threshold); got != tc.want {
			t.Errorf("meetsThreshold(%v, %v) = %v; want %v", tc.score, tc.threshold, got, tc.want)
		}
	}
}

func TestBananaFromCache(t *testing.T) {
	ctx := context.Background()
	store := cache.NewMemoryStore(0)
	if err := store.Upsert(ctx, cached("banana", nutrition.SourceExternal, false)); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 40; i++ {
		_ = store.IncrementUsage(ctx, "banana")
	}

	external := &fakeTier{name: "external", fn: func(context.Context, string) (*nutrition.Result, error) {
		return nil, ErrNoMatch
	}}
	o := NewOrchestrator(testConfig(), NewCacheResolver(store, config.DefaultCacheThreshold, 10), external)

	res, err := o.Resolve(ctx, "banana")
	if err != nil {
		t.Fatal(err)
	}
	if res.Source != nutrition.SourceCache || res.MatchScore < 0.85 {
		t.Errorf("result = %+v", res)
	}
	if res.CacheCandidate != nil {
		t.Error("cache hit must not carry a cache candidate")
	}
	if res.CacheKey != "banana" {
		t.Errorf("cache key = %q", res.CacheKey)
	}
	if res.Unverified {
		t.Error("verified entry came back unverified")
	}
	if external.calls != 0 {
		t.Error("external tier called after a cache hit")
	}
}

func TestCacheAcceptanceBoundary(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name      string
		query     string
		candidate string
		wantHit   bool
	}{
		{"score exactly 0.85", words(1, 17), words(1, 20), true},
		{"score 16/19", words(1, 16), words(1, 19), false},
		{"punctuation and case", "Chicken, Grilled!", "chicken grilled", true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			store := cache.NewMemoryStore(0)
			_ = store.Upsert(ctx, cached(tc.candidate, nutrition.SourceExternal, false))

			r := NewCacheResolver(store, config.DefaultCacheThreshold, 10)
			res, err := r.Resolve(ctx, tc.query)
			if tc.wantHit {
				if err != nil {
					t.Fatalf("expected hit, got %v", err)
				}
				if res.MatchScore < 0.85 {
					t.Errorf("score = %v", res.MatchScore)
				}
				return
			}
			if !errors.Is(err, ErrNoMatch) {
				t.Fatalf("err = %v; want ErrNoMatch", err)
			}
		})
	}
}

func TestCacheUnverifiedPropagates(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name       string
		source     nutrition.Source
		unverified bool
		want       bool
	}{
		{"generative provenance", nutrition.SourceGenerative, false, true},
		{"flagged", nutrition.SourceExternal, true, true},
		{"barcode", nutrition.SourceBarcode, false, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			store := cache.NewMemoryStore(0)
			_ = store.Upsert(ctx, cached("lentil soup", tc.source, tc.unverified))

			res, err := NewCacheResolver(store, 0.85, 10).Resolve(ctx, "Lentil Soup")
			if err != nil {
				t.Fatal(err)
			}
			if res.Unverified != tc.want {
				t.Errorf("unverified = %v; want %v", res.Unverified, tc.want)
			}
		})
	}
}

func TestExternalTextSearch(t *testing.T) {
	ctx := context.Background()

	products := []offacts.Product{
		{ProductName: "plain greek yogurt", Nutriments: nutriments("sugars_100g")},
		{ProductName: "Greek Yogurt", Nutriments: nutriments("")},
		{ProductName: "Plain Greek Yogurt Cup", Nutriments: nutriments("")},
		{ProductName: "Greek Yogurt Plain", Brands: "Fage", Nutriments: nutriments("")},
	}
	r := NewExternalResolver(&fakeProducts{products: products}, config.DefaultExternalThreshold)

	res, err := r.Resolve(ctx, "plain greek yogurt")
	if err != nil {
		t.Fatal(err)
	}
	// 完全相符但缺糖的商品不可被選中
	if res.Food.Name != "Greek Yogurt Plain" || res.MatchScore != 1 {
		t.Errorf("picked %q with score %v", res.Food.Name, res.MatchScore)
	}
	if res.MatchDescription != "Open Food Facts: Greek Yogurt Plain (Fage)" {
		t.Errorf("description = %q", res.MatchDescription)
	}
	if res.Source != nutrition.SourceExternal || res.Unverified || res.CacheCandidate == nil {
		t.Fatalf("unexpected envelope %+v", res)
	}
	if res.CacheCandidate.NormalizedName != "plain greek yogurt" {
		t.Errorf("candidate key = %q", res.CacheCandidate.NormalizedName)
	}
}

func TestExternalTextBoundary(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		query   string
		product string
		wantHit bool
	}{
		{"score exactly 0.80", words(1, 4), words(1, 5), true},
		{"score 0.75", words(1, 3), words(1, 4), false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := NewExternalResolver(&fakeProducts{products: []offacts.Product{
				{ProductName: tc.product, Nutriments: nutriments("")},
			}}, config.DefaultExternalThreshold)

			res, err := r.Resolve(ctx, tc.query)
			if tc.wantHit {
				if err != nil || res.MatchScore != 0.8 {
					t.Fatalf("res=%+v err=%v", res, err)
				}
				return
			}
			if !errors.Is(err, ErrNoMatch) {
				t.Fatalf("err = %v; want ErrNoMatch", err)
			}
		})
	}
}

func TestExternalMissingNutrientRejected(t *testing.T) {
	for _, key := range []string{"energy-kcal_100g", "proteins_100g", "fat_100g", "carbohydrates_100g", "sugars_100g", "fiber_100g", "sodium_100g"} {
		r := NewExternalResolver(&fakeProducts{products: []offacts.Product{
			{ProductName: "banana", Nutriments: nutriments(key)},
		}}, config.DefaultExternalThreshold)
		if _, err := r.Resolve(context.Background(), "banana"); !errors.Is(err, ErrNoMatch) {
			t.Errorf("missing %s: err = %v; want ErrNoMatch", key, err)
		}
	}
}

func TestExternalBarcode(t *testing.T) {
	products := &fakeProducts{byCode: map[string]*offacts.Product{
		"0123456789012": {Code: "0123456789012", ProductName: "Banana", Brands: "Dole", Nutriments: nutriments("")},
	}}
	r := NewExternalResolver(products, config.DefaultExternalThreshold)

	res, err := r.Resolve(context.Background(), " 0123456789012 ")
	if err != nil {
		t.Fatal(err)
	}
	if res.MatchScore != 1 || res.Food.SodiumMgPer100g != 1 {
		t.Errorf("unexpected result %+v", res)
	}
	if res.CacheCandidate.NormalizedName != "0123456789012" {
		t.Errorf("candidate key = %q", res.CacheCandidate.NormalizedName)
	}

	if _, err := r.Resolve(context.Background(), "99999999"); !errors.Is(err, ErrNoMatch) {
		t.Errorf("unknown barcode err = %v; want ErrNoMatch", err)
	}
}

func TestIsBarcode(t *testing.T) {
	tests := map[string]bool{
		"12345678":        true,
		"12345678901234":  true,
		"1234567":         false,
		"123456789012345": false,
		"1234-5678":       false,
		"banana":          false,
	}
	for in, want := range tests {
		if got := IsBarcode(in); got != want {
			t.Errorf("IsBarcode(%q) = %v; want %v", in, got, want)
		}
	}
}

func TestBarcodeMissingSugarsFallsThroughToGenerative(t *testing.T) {
	products := &fakeProducts{byCode: map[string]*offacts.Product{
		"0123456789012": {ProductName: "Mystery Bar", Nutriments: nutriments("sugars_100g")},
	}}
	completer := &fakeCompleter{content: toastEstimate}

	o := NewOrchestrator(testConfig(),
		NewCacheResolver(cache.NewMemoryStore(0), config.DefaultCacheThreshold, 10),
		NewExternalResolver(products, config.DefaultExternalThreshold),
		NewGenerativeResolver(completer),
	)

	res, err := o.Resolve(context.Background(), "0123456789012")
	if err != nil {
		t.Fatal(err)
	}
	if res.Source != nutrition.SourceGenerative || !res.Unverified || res.MatchScore != 0 {
		t.Errorf("unexpected result %+v", res)
	}
	if res.MatchDescription != nutrition.GenerativeDescription {
		t.Errorf("description = %q", res.MatchDescription)
	}
	if res.CacheCandidate == nil || !res.CacheCandidate.Unverified {
		t.Error("generative candidate must be unverified")
	}
}

func TestParseEstimate(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"valid", toastEstimate, ""},
		{"malformed", `{"name": "toast",`, "malformed"},
		{"missing field", `{"name":"toast","caloriesPer100g":265,"proteinPer100g":9,"fatPer100g":3,"carbsPer100g":49,"fiberPer100g":2,"sugarPer100g":5}`, "sodiumMgPer100g"},
		{"negative", strings.Replace(toastEstimate, `"fatPer100g":3.2`, `"fatPer100g":-1`, 1), "invalid fatPer100g"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			fact, err := parseEstimate(tc.content, "toast")
			if tc.wantErr == "" {
				if err != nil {
					t.Fatal(err)
				}
				if fact.CaloriesPer100g != 265 || fact.SodiumMgPer100g != 491 {
					t.Errorf("unexpected fact %+v", fact)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("err = %v; want containing %q", err, tc.wantErr)
			}
		})
	}

	fact, err := parseEstimate(strings.Replace(toastEstimate, `"name":"toast"`, `"name":" "`, 1), "sourdough toast")
	if err != nil || fact.Name != "sourdough toast" {
		t.Errorf("empty name should fall back to the query: %+v, %v", fact, err)
	}
}

func TestGenerativeErrorIsResolutionFailure(t *testing.T) {
	cause := errors.New("model overloaded")
	o := NewOrchestrator(testConfig(), NewGenerativeResolver(&fakeCompleter{err: cause}))

	_, err := o.Resolve(context.Background(), "toast")
	ce, ok := common.AsCustomError(err)
	if !ok {
		t.Fatalf("err = %v; want CustomError", err)
	}
	if ce.Code != common.ErrCodeResolutionFailed || ce.Message != FailureMessage {
		t.Errorf("unexpected error %+v", ce)
	}
	if !errors.Is(err, cause) {
		t.Error("cause not attached")
	}
}

func TestEmptyInputRejectedBeforeTiers(t *testing.T) {
	tier := &fakeTier{name: "cache", fn: func(context.Context, string) (*nutrition.Result, error) {
		return nil, ErrNoMatch
	}}
	o := NewOrchestrator(testConfig(), tier)

	for _, in := range []string{"", "   "} {
		_, err := o.Resolve(context.Background(), in)
		if !common.IsValidationError(err) {
			t.Errorf("Resolve(%q) err = %v; want validation error", in, err)
		}
	}
	if tier.calls != 0 {
		t.Errorf("tier called %d times", tier.calls)
	}
}

func TestPerCallTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.CallTimeout = 100 * time.Millisecond

	slow := &fakeTier{name: "external", fn: func(ctx context.Context, _ string) (*nutrition.Result, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	var remaining time.Duration
	fast := &fakeTier{name: "generative", fn: func(ctx context.Context, _ string) (*nutrition.Result, error) {
		deadline, _ := ctx.Deadline()
		remaining = time.Until(deadline)
		return &nutrition.Result{Source: nutrition.SourceGenerative, Unverified: true}, nil
	}}

	o := NewOrchestrator(cfg, slow, fast)
	res, err := o.Resolve(context.Background(), "toast")
	if err != nil {
		t.Fatal(err)
	}
	if res.Source != nutrition.SourceGenerative {
		t.Errorf("source = %s", res.Source)
	}
	// 下一層拿到完整的逾時，而非剩餘時間
	if remaining < 50*time.Millisecond {
		t.Errorf("next tier deadline too short: %v", remaining)
	}

	o = NewOrchestrator(cfg, slow)
	_, err = o.Resolve(context.Background(), "toast")
	if !errors.Is(err, ErrTierTimeout) {
		t.Errorf("err = %v; want ErrTierTimeout", err)
	}
}

func TestCallerCancellationStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	first := &fakeTier{name: "cache", fn: func(context.Context, string) (*nutrition.Result, error) {
		cancel()
		return nil, ErrNoMatch
	}}
	second := &fakeTier{name: "external", fn: func(context.Context, string) (*nutrition.Result, error) {
		return nil, ErrNoMatch
	}}

	_, err := NewOrchestrator(testConfig(), first, second).Resolve(ctx, "toast")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v; want context.Canceled", err)
	}
	if second.calls != 0 {
		t.Error("next tier called after cancellation")
	}
}

func TestTierErrorFallsThrough(t *testing.T) {
	broken := &fakeTier{name: "cache", fn: func(context.Context, string) (*nutrition.Result, error) {
		return nil, errors.New("connection refused")
	}}
	o := NewOrchestrator(testConfig(), broken, NewGenerativeResolver(&fakeCompleter{content: toastEstimate}))

	res, err := o.Resolve(context.Background(), "toast")
	if err != nil || res.Source != nutrition.SourceGenerative {
		t.Fatalf("res=%+v err=%v", res, err)
	}
}

func TestResolveMany(t *testing.T) {
	ctx := context.Background()
	store := cache.NewMemoryStore(0)
	_ = store.Upsert(ctx, cached("banana", nutrition.SourceExternal, false))

	o := NewOrchestrator(testConfig(),
		NewCacheResolver(store, config.DefaultCacheThreshold, 10),
		NewGenerativeResolver(&fakeCompleter{content: toastEstimate}),
	)

	items := o.ResolveMany(ctx, []string{"banana", "", "toast"})
	if len(items) != 3 {
		t.Fatalf("got %d items", len(items))
	}
	if items[0].Input != "banana" || items[0].Result.Source != nutrition.SourceCache {
		t.Errorf("item 0 = %+v", items[0])
	}
	if items[1].Err == nil || items[1].Result != nil {
		t.Errorf("item 1 should fail: %+v", items[1])
	}
	if items[2].Result == nil || items[2].Result.Source != nutrition.SourceGenerative {
		t.Errorf("item 2 = %+v", items[2])
	}
}
