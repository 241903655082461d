package resolver

import (
	"errors"
	"net/http"

	"nutrition-resolver/internal/pkg/common"
)

// 層級結果
var (
	// ErrNoMatch 此層級沒有可接受的結果
	ErrNoMatch = errors.New("no acceptable match")
	// ErrTierTimeout 此層級的呼叫逾時
	ErrTierTimeout = errors.New("tier call timed out")
)

// FailureMessage 所有層級都失敗時顯示給使用者的訊息
const FailureMessage = "could not determine nutrition info, try again"

// resolutionFailure 包裝成使用者可見的解析失敗
func resolutionFailure(cause error) error {
	return common.NewError(common.ErrCodeResolutionFailed, FailureMessage, http.StatusBadGateway, cause)
}
