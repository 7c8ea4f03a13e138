package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	apperrors "github.com/lk2023060901/filevault-backend/internal/pkg/errors"
)

// Response 统一响应结构
type Response struct {
	Code    int         `json:"code"`              // 业务错误码（0表示成功）
	Message string      `json:"message,omitempty"` // 提示信息
	Data    interface{} `json:"data"`              // 实际数据（可能为空对象 {}）
}

// PageData 分页数据
type PageData struct {
	Items      interface{} `json:"items"`
	Total      int64       `json:"total"`
	Page       int         `json:"page"`
	PageSize   int         `json:"page_size"`
	TotalPages int64       `json:"total_pages"`
}

// Success 成功响应（200）
func Success(c *gin.Context, data interface{}) {
	write(c, http.StatusOK, apperrors.Success, "", data)
}

// Created 创建资源成功（201）
func Created(c *gin.Context, data interface{}) {
	write(c, http.StatusCreated, apperrors.Success, "", data)
}

// NoContent 删除成功（204），无响应体
func NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// HandleError 统一错误处理（使用AppError）
func HandleError(c *gin.Context, err error) {
	if err == nil {
		return
	}

	code := apperrors.ExtractCode(err)
	message := apperrors.GetMessage(code)
	if apperrors.IsClientError(code) {
		// 服务端错误细节只写日志，不返回给客户端
		message = apperrors.FormatError(code, apperrors.GetDetails(err))
	}

	var data interface{}
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		data = appErr.Data
	}

	write(c, apperrors.GetHTTPStatus(code), code, message, data)
}

// ErrorWithCode 使用错误码的错误响应
func ErrorWithCode(c *gin.Context, code int, details ...string) {
	write(c, apperrors.GetHTTPStatus(code), code, apperrors.FormatError(code, details...), nil)
}

func write(c *gin.Context, status, code int, message string, data interface{}) {
	if data == nil {
		data = struct{}{}
	}
	c.JSON(status, Response{
		Code:    code,
		Message: message,
		Data:    data,
	})
}
