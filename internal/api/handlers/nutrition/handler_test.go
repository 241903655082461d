package nutrition

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	nutritionModel "nutrition-resolver/internal/core/nutrition"
	"nutrition-resolver/internal/core/resolver"
	"nutrition-resolver/internal/pkg/common"

	"github.com/gin-gonic/gin"
)

type fakeResolver struct {
	resolve func(ctx context.Context, input string) (*nutritionModel.Result, error)
	batches [][]string
}

func (f *fakeResolver) Resolve(ctx context.Context, input string) (*nutritionModel.Result, error) {
	return f.resolve(ctx, input)
}

func (f *fakeResolver) ResolveMany(ctx context.Context, inputs []string) []resolver.BatchItem {
	f.batches = append(f.batches, inputs)
	items := make([]resolver.BatchItem, len(inputs))
	for i, in := range inputs {
		items[i].Input = in
		res, err := f.resolve(ctx, in)
		if err != nil {
			items[i].Error = err.Error()
			continue
		}
		items[i].Result = res
	}
	return items
}

type fakeWriter struct {
	candidates []nutritionModel.CacheCandidate
	hits       []string
	ctxErr     error
}

func (f *fakeWriter) UpsertCandidates(ctx context.Context, candidates []nutritionModel.CacheCandidate) int {
	f.ctxErr = ctx.Err()
	f.candidates = append(f.candidates, candidates...)
	// 名稱空白的視為寫入失敗
	n := 0
	for _, c := range candidates {
		if c.Name != "" {
			n++
		}
	}
	return n
}

func (f *fakeWriter) BumpUsage(names ...string) int {
	f.hits = append(f.hits, names...)
	return len(names)
}

func bananaResult() *nutritionModel.Result {
	fact := nutritionModel.Fact{Name: "Banana", CaloriesPer100g: 89, ProteinPer100g: 1.1, CarbsPer100g: 22.8}
	return &nutritionModel.Result{
		Source:           nutritionModel.SourceCache,
		Food:             fact,
		MatchDescription: "Banana",
		MatchScore:       1,
		CacheKey:         "banana",
	}
}

func setupTestRouter(r Resolver, w CacheWriter, debug bool) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()

	h := NewHandler(r, w, debug)
	router.POST("/resolve", h.HandleResolve)
	router.POST("/resolve/batch", h.HandleResolveBatch)
	router.POST("/device", h.HandleDevice)
	router.POST("/commit", h.HandleCommit)
	return router
}

func postJSON(t *testing.T, router http.Handler, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if s, ok := body.(string); ok {
		buf.WriteString(s)
	} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHandleResolve(t *testing.T) {
	fr := &fakeResolver{resolve: func(_ context.Context, input string) (*nutritionModel.Result, error) {
		if input != "banana" {
			t.Errorf("input = %q; want banana", input)
		}
		return bananaResult(), nil
	}}
	router := setupTestRouter(fr, &fakeWriter{}, false)

	w := postJSON(t, router, "/resolve", ResolveRequest{FoodNameOrBarcode: "banana"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var got nutritionModel.Result
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.Source != nutritionModel.SourceCache || got.Food.Name != "Banana" || got.CacheKey != "banana" {
		t.Errorf("unexpected result %+v", got)
	}
}

func TestHandleResolve_Errors(t *testing.T) {
	failure := common.NewError(common.ErrCodeResolutionFailed, resolver.FailureMessage,
		http.StatusBadGateway, errors.New("openrouter: upstream 503"))

	tests := []struct {
		name        string
		body        interface{}
		err         error
		debug       bool
		wantStatus  int
		wantCode    string
		wantMessage string
		wantDetails bool
	}{
		{
			name:       "malformed body",
			body:       `{"foodNameOrBarcode":`,
			wantStatus: http.StatusBadRequest,
			wantCode:   common.ErrCodeInvalidRequest,
		},
		{
			name:       "empty input",
			body:       ResolveRequest{},
			err:        common.NewValidationError("food name or barcode is required"),
			wantStatus: http.StatusBadRequest,
			wantCode:   common.ErrCodeInvalidRequest,
		},
		{
			name:        "total failure hides cause",
			body:        ResolveRequest{FoodNameOrBarcode: "mystery"},
			err:         failure,
			wantStatus:  http.StatusBadGateway,
			wantCode:    common.ErrCodeResolutionFailed,
			wantMessage: resolver.FailureMessage,
		},
		{
			name:        "total failure with debug details",
			body:        ResolveRequest{FoodNameOrBarcode: "mystery"},
			err:         failure,
			debug:       true,
			wantStatus:  http.StatusBadGateway,
			wantCode:    common.ErrCodeResolutionFailed,
			wantMessage: resolver.FailureMessage,
			wantDetails: true,
		},
		{
			name:       "deadline",
			body:       ResolveRequest{FoodNameOrBarcode: "slow"},
			err:        context.DeadlineExceeded,
			wantStatus: http.StatusGatewayTimeout,
			wantCode:   common.ErrCodeGatewayTimeout,
		},
		{
			name:       "unexpected",
			body:       ResolveRequest{FoodNameOrBarcode: "boom"},
			err:        errors.New("boom"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   common.ErrCodeInternalError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fr := &fakeResolver{resolve: func(context.Context, string) (*nutritionModel.Result, error) {
				return nil, tt.err
			}}
			router := setupTestRouter(fr, &fakeWriter{}, tt.debug)

			w := postJSON(t, router, "/resolve", tt.body)
			if w.Code != tt.wantStatus {
				t.Fatalf("expected %d, got %d: %s", tt.wantStatus, w.Code, w.Body.String())
			}

			var resp common.ErrorResponse
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatal(err)
			}
			if resp.Code != tt.wantCode {
				t.Errorf("code = %q; want %q", resp.Code, tt.wantCode)
			}
			if tt.wantMessage != "" && resp.Error != tt.wantMessage {
				t.Errorf("error = %q; want %q", resp.Error, tt.wantMessage)
			}
			if (resp.Details != "") != tt.wantDetails {
				t.Errorf("details = %q; want present=%v", resp.Details, tt.wantDetails)
			}
		})
	}
}

func TestHandleResolveBatch(t *testing.T) {
	fr := &fakeResolver{resolve: func(_ context.Context, input string) (*nutritionModel.Result, error) {
		if input == "" {
			return nil, common.NewValidationError("food name or barcode is required")
		}
		return bananaResult(), nil
	}}
	router := setupTestRouter(fr, &fakeWriter{}, false)

	w := postJSON(t, router, "/resolve/batch", BatchRequest{Items: []string{"banana", ""}})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp BatchResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Items) != 2 {
		t.Fatalf("items = %d; want 2", len(resp.Items))
	}
	if resp.Items[0].Result == nil || resp.Items[0].Error != "" {
		t.Errorf("first item should succeed: %+v", resp.Items[0])
	}
	if resp.Items[1].Result != nil || resp.Items[1].Error == "" {
		t.Errorf("second item should fail: %+v", resp.Items[1])
	}
}

func TestHandleResolveBatch_Limits(t *testing.T) {
	fr := &fakeResolver{resolve: func(context.Context, string) (*nutritionModel.Result, error) {
		return bananaResult(), nil
	}}
	router := setupTestRouter(fr, &fakeWriter{}, false)

	tooMany := make([]string, MaxBatchItems+1)
	for i := range tooMany {
		tooMany[i] = "banana"
	}

	for _, items := range [][]string{{}, tooMany} {
		w := postJSON(t, router, "/resolve/batch", BatchRequest{Items: items})
		if w.Code != http.StatusBadRequest {
			t.Errorf("%d items: expected 400, got %d", len(items), w.Code)
		}
	}
	if len(fr.batches) != 0 {
		t.Errorf("resolver should not be called, got %d batches", len(fr.batches))
	}
}

func TestHandleDevice(t *testing.T) {
	router := setupTestRouter(&fakeResolver{}, &fakeWriter{}, false)

	food := nutritionModel.Fact{Name: "Oat Milk", CaloriesPer100g: 46, CarbsPer100g: 6.7, SodiumMgPer100g: 42}

	w := postJSON(t, router, "/device", DeviceRequest{Source: nutritionModel.SourceLabelPhoto, Food: food})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var got nutritionModel.Result
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.Source != nutritionModel.SourceLabelPhoto || got.Unverified || got.MatchScore != 1 {
		t.Errorf("unexpected device result %+v", got)
	}
	if got.CacheCandidate == nil || got.CacheCandidate.NormalizedName != "oat milk" {
		t.Errorf("cache candidate = %+v", got.CacheCandidate)
	}

	w = postJSON(t, router, "/device", DeviceRequest{Source: nutritionModel.SourceGenerative, Food: food})
	if w.Code != http.StatusBadRequest {
		t.Errorf("generative source: expected 400, got %d", w.Code)
	}

	w = postJSON(t, router, "/device", DeviceRequest{Source: nutritionModel.SourceBarcode, Food: nutritionModel.Fact{}})
	if w.Code != http.StatusBadRequest {
		t.Errorf("empty food: expected 400, got %d", w.Code)
	}
}

func TestHandleCommit(t *testing.T) {
	fw := &fakeWriter{}
	router := setupTestRouter(&fakeResolver{}, fw, false)

	req := CommitRequest{
		CacheCandidates: []nutritionModel.CacheCandidate{
			*nutritionModel.NewCacheCandidate("greek yogurt", nutritionModel.Fact{Name: "Greek Yogurt", CaloriesPer100g: 59},
				nutritionModel.SourceExternal, false, 1, "Greek Yogurt Plain"),
			{NormalizedName: "broken"},
		},
		CacheHits: []string{"banana"},
	}

	w := postJSON(t, router, "/commit", req)
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}

	var resp CommitResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Submitted != 2 || resp.Written != 1 || resp.Bumped != 1 {
		t.Errorf("unexpected commit response %+v", resp)
	}
	if len(fw.hits) != 1 || fw.hits[0] != "banana" {
		t.Errorf("hits = %v", fw.hits)
	}
	if fw.ctxErr != nil {
		t.Errorf("write context already done: %v", fw.ctxErr)
	}
}
