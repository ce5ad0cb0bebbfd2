package api

import (
	"github.com/gin-gonic/gin"

	"nofomo/internal/engine"
)

// Error codes beyond the engine's validation codes.
const (
	CodeInvalidJSON       = engine.CodeInvalidJSON
	CodeInvalidMarketData = engine.CodeInvalidMarketData
	CodeInvalidLimit      = "INVALID_LIMIT"
	CodePayloadTooLarge   = "PAYLOAD_TOO_LARGE"
	CodeRateLimited       = "RATE_LIMITED"
	CodeLogUnavailable    = "LOG_UNAVAILABLE"
	CodeNotFound          = "NOT_FOUND"
	CodeInternal          = "INTERNAL"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	Detail    string `json:"detail,omitempty"`
	RequestID string `json:"requestId"`
}

func abortWithError(c *gin.Context, status int, code, message, detail string) {
	c.AbortWithStatusJSON(status, ErrorResponse{
		Error:     message,
		Code:      code,
		Detail:    detail,
		RequestID: RequestIDFrom(c),
	})
}
