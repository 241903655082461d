package handlers

import (
	"context"
	"errors"
	"net/http"

	"nutrition-resolver/internal/pkg/common"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RespondError 將錯誤轉為 {error, code, details?}；details 只在 debug 模式輸出
func RespondError(c *gin.Context, err error, debug bool) {
	status := http.StatusInternalServerError
	body := common.ErrorResponse{
		Error: "internal server error",
		Code:  common.ErrCodeInternalError,
	}

	ce, isCustom := common.AsCustomError(err)
	switch {
	case common.IsValidationError(err):
		status = http.StatusBadRequest
		body.Error = err.Error()
		body.Code = common.ErrCodeInvalidRequest
	case isCustom:
		status = ce.Status
		body.Error = ce.Message
		body.Code = ce.Code
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
		body.Error = "request timed out"
		body.Code = common.ErrCodeGatewayTimeout
	}

	if debug {
		body.Details = err.Error()
	}

	_ = c.Error(err)
	if status >= http.StatusInternalServerError {
		common.LogError("Request failed",
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", status),
			zap.Error(err),
		)
	}
	c.AbortWithStatusJSON(status, body)
}

// BadRequest 請求格式錯誤；讀取時超過大小上限回 413
func BadRequest(c *gin.Context, err error, debug bool) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		RespondError(c, common.NewError(common.ErrCodePayloadTooLarge, "request body too large",
			http.StatusRequestEntityTooLarge, err), debug)
		return
	}
	RespondError(c, common.NewValidationError("invalid request: "+err.Error()), debug)
}
