package resolver

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"nutrition-resolver/internal/core/nutrition"
	"nutrition-resolver/internal/core/offacts"
	"nutrition-resolver/internal/pkg/textmatch"
)

var barcodeRe = regexp.MustCompile(`^\d{8,14}$`)

// IsBarcode 8 到 14 位數字視為條碼
func IsBarcode(s string) bool {
	return barcodeRe.MatchString(strings.TrimSpace(s))
}

// ProductSource 外部食品資料庫
type ProductSource interface {
	ProductByCode(ctx context.Context, code string) (*offacts.Product, error)
	Search(ctx context.Context, query string) ([]offacts.Product, error)
}

// ExternalResolver 外部資料庫層
type ExternalResolver struct {
	source    ProductSource
	threshold float64
}

// NewExternalResolver 創建外部資料庫層
func NewExternalResolver(source ProductSource, threshold float64) *ExternalResolver {
	return &ExternalResolver{source: source, threshold: threshold}
}

// Name 層級名稱
func (r *ExternalResolver) Name() string { return string(nutrition.SourceExternal) }

// Resolve 條碼走條碼查詢，其他走文字搜尋
func (r *ExternalResolver) Resolve(ctx context.Context, query string) (*nutrition.Result, error) {
	query = strings.TrimSpace(query)
	if IsBarcode(query) {
		return r.resolveBarcode(ctx, query)
	}
	return r.resolveText(ctx, query)
}

func (r *ExternalResolver) resolveBarcode(ctx context.Context, code string) (*nutrition.Result, error) {
	product, err := r.source.ProductByCode(ctx, code)
	if err != nil {
		if errors.Is(err, offacts.ErrProductNotFound) {
			return nil, fmt.Errorf("barcode %s: %w", code, ErrNoMatch)
		}
		return nil, err
	}

	fact, complete := product.ToFact()
	if !complete {
		return nil, fmt.Errorf("barcode %s has an incomplete nutrient set: %w", code, ErrNoMatch)
	}

	desc := "barcode " + code + ": " + describe(fact)
	return &nutrition.Result{
		Source:           nutrition.SourceExternal,
		Food:             fact,
		MatchDescription: desc,
		MatchScore:       1,
		Unverified:       false,
		CacheCandidate:   nutrition.NewCacheCandidate(code, fact, nutrition.SourceExternal, false, 1, desc),
	}, nil
}

func (r *ExternalResolver) resolveText(ctx context.Context, query string) (*nutrition.Result, error) {
	products, err := r.source.Search(ctx, query)
	if err != nil {
		return nil, err
	}

	var (
		bestFact  nutrition.Fact
		bestScore = -1.0
	)
	for i := range products {
		fact, complete := products[i].ToFact()
		if !complete {
			continue
		}
		score := textmatch.Similarity(fact.Name, query)
		if !meetsThreshold(score, r.threshold) {
			continue
		}
		if score > bestScore {
			bestFact, bestScore = fact, score
		}
	}

	if bestScore < 0 {
		return nil, ErrNoMatch
	}

	desc := "Open Food Facts: " + describe(bestFact)
	return &nutrition.Result{
		Source:           nutrition.SourceExternal,
		Food:             bestFact,
		MatchDescription: desc,
		MatchScore:       bestScore,
		Unverified:       false,
		CacheCandidate:   nutrition.NewCacheCandidate(query, bestFact, nutrition.SourceExternal, false, bestScore, desc),
	}, nil
}

func describe(f nutrition.Fact) string {
	if f.Brand != "" {
		return f.Name + " (" + f.Brand + ")"
	}
	return f.Name
}
