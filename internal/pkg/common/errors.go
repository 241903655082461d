package common

import (
	"errors"
	"net/http"
)

// ErrorResponse 定義 API 錯誤響應結構
type ErrorResponse struct {
	Error   string `json:"error"`             // 使用者可見的錯誤信息
	Code    string `json:"code,omitempty"`    // 錯誤代碼
	Details string `json:"details,omitempty"` // 詳細信息（僅在 debug 模式顯示）
}

// CustomError 定義自定義錯誤類型
type CustomError struct {
	Code    string // 錯誤代碼
	Message string // 錯誤信息
	Err     error  // 原始錯誤
	Status  int    // HTTP 狀態碼
}

func (e *CustomError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

// Unwrap 回傳原始錯誤
func (e *CustomError) Unwrap() error {
	return e.Err
}

// NewError 創建新的自定義錯誤
func NewError(code string, message string, status int, err error) *CustomError {
	return &CustomError{
		Code:    code,
		Message: message,
		Status:  status,
		Err:     err,
	}
}

// ValidationError 表示驗證錯誤
type ValidationError struct {
	message string
}

func (e *ValidationError) Error() string {
	return e.message
}

// NewValidationError 創建新的驗證錯誤
func NewValidationError(message string) error {
	return &ValidationError{
		message: message,
	}
}

// IsValidationError 檢查是否為驗證錯誤
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// AsCustomError 取出錯誤鏈中的 CustomError
func AsCustomError(err error) (*CustomError, bool) {
	var ce *CustomError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// 預定義錯誤代碼
const (
	ErrCodeInvalidRequest   = "INVALID_REQUEST"   // 400
	ErrCodeNotFound         = "NOT_FOUND"         // 404
	ErrCodePayloadTooLarge  = "PAYLOAD_TOO_LARGE" // 413
	ErrCodeTooManyRequests  = "TOO_MANY_REQUESTS" // 429
	ErrCodeInternalError    = "INTERNAL_ERROR"    // 500
	ErrCodeResolutionFailed = "RESOLUTION_FAILED" // 502
	ErrCodeCacheUnavailable = "CACHE_UNAVAILABLE" // 503
	ErrCodeGatewayTimeout   = "GATEWAY_TIMEOUT"   // 504
)

// 預定義錯誤
var (
	ErrInvalidRequest   = NewError(ErrCodeInvalidRequest, "invalid request", http.StatusBadRequest, nil)
	ErrTooManyRequests  = NewError(ErrCodeTooManyRequests, "too many requests", http.StatusTooManyRequests, nil)
	ErrInternalError    = NewError(ErrCodeInternalError, "internal server error", http.StatusInternalServerError, nil)
	ErrCacheUnavailable = NewError(ErrCodeCacheUnavailable, "nutrition cache unavailable", http.StatusServiceUnavailable, nil)
)
