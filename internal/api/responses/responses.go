// internal/api/responses/responses.go
package responses

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var logger = zap.NewNop()

// APIResponse defines the standard envelope for API responses.
type APIResponse struct {
	Status  string      `json:"status"` // "success" or "error"
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
	Errors  []string    `json:"errors,omitempty"`
}

// InitLogger installs the logger used by the envelope helpers. A nil logger
// falls back to a production zap logger.
func InitLogger(l *zap.Logger) {
	if l == nil {
		l, _ = zap.NewProduction()
	}
	if l != nil {
		logger = l
	}
}

// Success sends a 200 response with the provided data and message.
func Success(c *gin.Context, data interface{}, message string) {
	resp := APIResponse{Status: "success", Data: data, Message: message}
	c.JSON(http.StatusOK, resp)
	logger.Debug("API success", zap.String("path", c.Request.URL.Path), zap.Int("status", http.StatusOK))
}

// Error sends an error response with the provided code, message, and optional errors.
func Error(c *gin.Context, code int, message string, errs ...string) {
	resp := APIResponse{Status: "error", Message: message, Errors: errs}
	c.JSON(code, resp)
	fields := []zap.Field{zap.String("path", c.Request.URL.Path), zap.Int("status", code), zap.Strings("errors", errs)}
	if code >= http.StatusInternalServerError {
		logger.Error("API error", fields...)
		return
	}
	logger.Warn("API error", fields...)
}
