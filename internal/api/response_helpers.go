// internal/api/response_helpers.go
package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/Corphon/EpubTranslator/internal/errors"
	"github.com/Corphon/EpubTranslator/internal/utils"
	"github.com/gin-gonic/gin"
)

// APIResponse 标准API响应格式
type APIResponse struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     *APIError   `json:"error,omitempty"`
	Message   string      `json:"message,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	RequestID string      `json:"request_id,omitempty"` // 用于调试和追踪
}

// APIError 标准错误格式
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// ResponseHelper 响应助手类
type ResponseHelper struct {
	logger *utils.Logger
}

// NewResponseHelper 创建响应助手
func NewResponseHelper() *ResponseHelper {
	return &ResponseHelper{logger: utils.GetLogger()}
}

func (rh *ResponseHelper) respond(c *gin.Context, status int, data interface{}, message []string) {
	response := &APIResponse{
		Success:   true,
		Data:      data,
		Timestamp: time.Now(),
		RequestID: rh.getRequestID(c),
	}
	if len(message) > 0 {
		response.Message = message[0]
	}
	c.JSON(status, response)
}

// Success 成功响应
func (rh *ResponseHelper) Success(c *gin.Context, data interface{}, message ...string) {
	rh.respond(c, http.StatusOK, data, message)
}

// Created 创建成功响应
func (rh *ResponseHelper) Created(c *gin.Context, data interface{}, message ...string) {
	rh.respond(c, http.StatusCreated, data, message)
}

// Accepted 后台任务已接受
func (rh *ResponseHelper) Accepted(c *gin.Context, data interface{}, message ...string) {
	rh.respond(c, http.StatusAccepted, data, message)
}

// sanitizeErrorMessage 隐藏可能包含密钥的错误信息
func sanitizeErrorMessage(message string) string {
	lower := strings.ToLower(message)
	for _, pattern := range []string{"api_key", "api-key", "secret", "token"} {
		if strings.Contains(lower, pattern) {
			return "An internal error occurred"
		}
	}
	return message
}

// Error 错误响应
func (rh *ResponseHelper) Error(c *gin.Context, statusCode int, errorCode, message string, details ...string) {
	apiError := &APIError{
		Code:    errorCode,
		Message: sanitizeErrorMessage(message),
	}
	if len(details) > 0 {
		apiError.Details = sanitizeErrorMessage(details[0])
	}

	c.JSON(statusCode, &APIResponse{
		Success:   false,
		Error:     apiError,
		Timestamp: time.Now(),
		RequestID: rh.getRequestID(c),
	})
}

// BadRequest 400错误响应
func (rh *ResponseHelper) BadRequest(c *gin.Context, message string, details ...string) {
	rh.Error(c, http.StatusBadRequest, ErrorBadRequest, message, details...)
}

// NotFound 404错误响应
func (rh *ResponseHelper) NotFound(c *gin.Context, resource string, details ...string) {
	rh.Error(c, http.StatusNotFound, rh.getResourceNotFoundCode(resource), resource+" not found", details...)
}

// InternalError 500错误响应
func (rh *ResponseHelper) InternalError(c *gin.Context, message string, details ...string) {
	rh.Error(c, http.StatusInternalServerError, ErrorInternalError, message, details...)
}

// Conflict 409错误响应
func (rh *ResponseHelper) Conflict(c *gin.Context, message string, details ...string) {
	rh.Error(c, http.StatusConflict, ErrorConflict, message, details...)
}

// HandleError 按错误类型选择状态码和错误代码
func (rh *ResponseHelper) HandleError(c *gin.Context, err error, resource string) {
	status, code := errorStatus(err, resource)
	if status >= http.StatusInternalServerError {
		rh.logger.Error("请求处理失败", map[string]interface{}{
			"path":       c.FullPath(),
			"request_id": rh.getRequestID(c),
			"error":      err.Error(),
		})
	}
	rh.Error(c, status, code, err.Error())
}

// errorStatus 把应用错误映射为 HTTP 状态码和 API 错误代码
func errorStatus(err error, resource string) (int, string) {
	errType, ok := apperrors.TypeOf(err)
	if !ok {
		return http.StatusInternalServerError, ErrorInternalError
	}
	switch errType {
	case apperrors.ErrorTypeValidation:
		return http.StatusBadRequest, ErrorValidationFailed
	case apperrors.ErrorTypeNotFound:
		return http.StatusNotFound, notFoundCode(resource)
	case apperrors.ErrorTypeConflict:
		return http.StatusConflict, ErrorTranslationInProgress
	case apperrors.ErrorTypeConfiguration:
		return http.StatusServiceUnavailable, ErrorTranslatorNotReady
	case apperrors.ErrorTypeUpstream:
		return http.StatusBadGateway, ErrorTranslationFailed
	case apperrors.ErrorTypeTimeout:
		return http.StatusGatewayTimeout, ErrorTimeout
	default:
		return http.StatusInternalServerError, ErrorInternalError
	}
}

// FileResponse 文件下载响应
func (rh *ResponseHelper) FileResponse(c *gin.Context, data []byte, filename, contentType string) {
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Header("Content-Length", strconv.Itoa(len(data)))
	c.Data(http.StatusOK, contentType, data)
}

// getRequestID 获取请求ID
func (rh *ResponseHelper) getRequestID(c *gin.Context) string {
	return c.GetString(requestIDKey)
}

// getResourceNotFoundCode 根据资源类型生成错误代码
func (rh *ResponseHelper) getResourceNotFoundCode(resource string) string {
	return notFoundCode(resource)
}

func notFoundCode(resource string) string {
	switch resource {
	case ResourceBook:
		return ErrorBookNotFound
	case ResourceChapter:
		return ErrorChapterNotFound
	case ResourceChunk:
		return ErrorChunkNotFound
	case ResourceGlossary:
		return ErrorGlossaryNotFound
	case ResourceTask:
		return ErrorTaskNotFound
	default:
		return ErrorNotFound
	}
}
