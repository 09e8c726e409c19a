// internal/api/response_helpers.go
package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	apperrors "github.com/Corphon/ScriptStudioMCP/internal/errors"
	"github.com/Corphon/ScriptStudioMCP/internal/models"
)

// APIResponse 统一API响应格式
type APIResponse struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Message   string      `json:"message,omitempty"`
	Error     *APIError   `json:"error,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	RequestID string      `json:"request_id,omitempty"`
}

// APIError 响应中的错误详情
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// ResponseHelper 响应助手类
type ResponseHelper struct{}

// NewResponseHelper 创建响应助手
func NewResponseHelper() *ResponseHelper {
	return &ResponseHelper{}
}

// Success 成功响应
func (rh *ResponseHelper) Success(c *gin.Context, data interface{}, message ...string) {
	response := &APIResponse{
		Success:   true,
		Data:      data,
		Timestamp: time.Now(),
		RequestID: rh.getRequestID(c),
	}

	if len(message) > 0 {
		response.Message = message[0]
	}

	c.JSON(http.StatusOK, response)
}

// Created 创建成功响应
func (rh *ResponseHelper) Created(c *gin.Context, data interface{}, message ...string) {
	response := &APIResponse{
		Success:   true,
		Data:      data,
		Timestamp: time.Now(),
		RequestID: rh.getRequestID(c),
	}

	if len(message) > 0 {
		response.Message = message[0]
	} else {
		response.Message = "资源创建成功"
	}

	c.JSON(http.StatusCreated, response)
}

// Error 错误响应
func (rh *ResponseHelper) Error(c *gin.Context, statusCode int, errorCode, message string, details ...string) {
	apiError := &APIError{
		Code:    errorCode,
		Message: message,
	}
	if len(details) > 0 {
		apiError.Details = details[0]
	}

	response := &APIResponse{
		Success:   false,
		Error:     apiError,
		Timestamp: time.Now(),
		RequestID: rh.getRequestID(c),
	}

	c.JSON(statusCode, response)
}

// BadRequest 400错误响应
func (rh *ResponseHelper) BadRequest(c *gin.Context, message string, details ...string) {
	rh.Error(c, http.StatusBadRequest, "INVALID_REQUEST", message, details...)
}

// NotFound 404错误响应
func (rh *ResponseHelper) NotFound(c *gin.Context, resource string, details ...string) {
	rh.Error(c, http.StatusNotFound, "RESOURCE_NOT_FOUND",
		fmt.Sprintf("%s不存在", resource), details...)
}

// Conflict 409错误响应
func (rh *ResponseHelper) Conflict(c *gin.Context, message string, details ...string) {
	rh.Error(c, http.StatusConflict, "RESOURCE_CONFLICT", message, details...)
}

// InternalError 500错误响应
func (rh *ResponseHelper) InternalError(c *gin.Context, message string, details ...string) {
	rh.Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", message, details...)
}

// AppError 按应用错误类型映射HTTP状态码
func (rh *ResponseHelper) AppError(c *gin.Context, err error) {
	switch {
	case apperrors.IsValidationError(err):
		rh.Error(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
	case apperrors.IsNotFoundError(err):
		rh.Error(c, http.StatusNotFound, "RESOURCE_NOT_FOUND", err.Error())
	case apperrors.IsConflictError(err):
		rh.Error(c, http.StatusConflict, "RESOURCE_CONFLICT", err.Error())
	case apperrors.IsAuthQuotaError(err):
		rh.Error(c, http.StatusUnauthorized, "AUTH_OR_QUOTA", err.Error())
	case apperrors.IsTimeoutError(err):
		rh.Error(c, http.StatusGatewayTimeout, "UPSTREAM_TIMEOUT", err.Error())
	case apperrors.IsFormatError(err):
		rh.Error(c, http.StatusBadGateway, "UPSTREAM_FORMAT", err.Error())
	case apperrors.IsGenerationError(err):
		rh.Error(c, http.StatusBadGateway, "GENERATION_FAILED", err.Error())
	default:
		rh.InternalError(c, err.Error())
	}
}

// ExportResponse 导出响应：word形式作为附件下载，print形式内联返回HTML
func (rh *ResponseHelper) ExportResponse(c *gin.Context, result *models.ExportResult) {
	if result.Form == models.ExportFormWord {
		c.Header("Content-Disposition",
			fmt.Sprintf(`attachment; filename="%s"`, result.FileName))
	}
	c.Header("X-Scene-Count", fmt.Sprintf("%d", result.SceneCount))
	c.Header("X-Cut-Count", fmt.Sprintf("%d", result.CutCount))
	c.Data(http.StatusOK, result.ContentType, []byte(result.Content))
}

// getRequestID 获取请求ID
func (rh *ResponseHelper) getRequestID(c *gin.Context) string {
	if requestID := c.GetHeader("X-Request-ID"); requestID != "" {
		return requestID
	}
	if requestID, exists := c.Get("request_id"); exists {
		if id, ok := requestID.(string); ok {
			return id
		}
	}
	return uuid.NewString()
}
