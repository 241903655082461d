package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"nutrition-resolver/internal/core/nutrition"
	"nutrition-resolver/internal/infrastructure/config"
	"nutrition-resolver/internal/pkg/common"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Tier 單一解析層級；沒有可接受結果時回傳 ErrNoMatch
type Tier interface {
	Name() string
	Resolve(ctx context.Context, query string) (*nutrition.Result, error)
}

// Orchestrator 依序嘗試各層級，第一個成功的結果即為答案
type Orchestrator struct {
	tiers            []Tier
	callTimeout      time.Duration
	batchConcurrency int
}

// BatchItem 批次解析中單一項目的結果
type BatchItem struct {
	Input  string            `json:"input"`
	Result *nutrition.Result `json:"result,omitempty"`
	Error  string            `json:"error,omitempty"`
	Err    error             `json:"-"`
}

// NewOrchestrator 創建解析流程
func NewOrchestrator(cfg *config.ResolverConfig, tiers ...Tier) *Orchestrator {
	timeout := cfg.CallTimeout
	if timeout <= 0 {
		timeout = config.DefaultCallTimeout
	}
	concurrency := cfg.BatchConcurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Orchestrator{
		tiers:            tiers,
		callTimeout:      timeout,
		batchConcurrency: concurrency,
	}
}

// Resolve 解析單一食物名稱或條碼
func (o *Orchestrator) Resolve(ctx context.Context, input string) (*nutrition.Result, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, common.NewValidationError("food name or barcode is required")
	}

	var lastErr error
	for _, tier := range o.tiers {
		res, err := o.callTier(ctx, tier, input)
		if err == nil {
			return res, nil
		}
		// 呼叫端已取消，不再嘗試下一層
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		lastErr = err
	}

	if lastErr == nil {
		lastErr = errors.New("no resolution tiers configured")
	}
	return nil, resolutionFailure(lastErr)
}

// callTier 以獨立的逾時呼叫單一層級並記錄結果
func (o *Orchestrator) callTier(ctx context.Context, tier Tier, input string) (*nutrition.Result, error) {
	tctx, cancel := context.WithTimeout(ctx, o.callTimeout)
	defer cancel()

	start := time.Now()
	res, err := tier.Resolve(tctx, input)
	elapsed := time.Since(start)

	switch {
	case err == nil:
		common.LogTier(tier.Name(), input, "hit", elapsed, zap.Float64("score", res.MatchScore))
		return res, nil
	case errors.Is(err, ErrNoMatch):
		common.LogTier(tier.Name(), input, "miss", elapsed, zap.String("reason", err.Error()))
		return nil, err
	case (errors.Is(err, context.DeadlineExceeded) || errors.Is(tctx.Err(), context.DeadlineExceeded)) && ctx.Err() == nil:
		common.LogTier(tier.Name(), input, "timeout", elapsed, zap.Duration("timeout", o.callTimeout))
		return nil, fmt.Errorf("%s tier after %s: %w", tier.Name(), o.callTimeout, ErrTierTimeout)
	default:
		common.LogTier(tier.Name(), input, "error", elapsed, zap.Error(err))
		return nil, fmt.Errorf("%s tier: %w", tier.Name(), err)
	}
}

// ResolveMany 平行解析多個項目，各項目互不影響
func (o *Orchestrator) ResolveMany(ctx context.Context, inputs []string) []BatchItem {
	items := make([]BatchItem, len(inputs))

	g := new(errgroup.Group)
	g.SetLimit(o.batchConcurrency)
	for i, input := range inputs {
		i, input := i, input
		g.Go(func() error {
			res, err := o.Resolve(ctx, input)
			items[i] = BatchItem{Input: input, Result: res, Err: err}
			if err != nil {
				items[i].Error = userMessage(err)
			}
			return nil
		})
	}
	_ = g.Wait()

	return items
}

// userMessage 取得可顯示給使用者的錯誤訊息
func userMessage(err error) string {
	if ce, ok := common.AsCustomError(err); ok {
		return ce.Message
	}
	return err.Error()
}
