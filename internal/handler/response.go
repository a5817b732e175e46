// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"errors"
	"net/http"
	"strconv"

	"docweave-go/internal/apperr"
	"docweave-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// respondOK 以统一的 {code, message, data} 结构返回成功响应。
func respondOK(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": message,
		"data":    data,
	})
}

// respondError 把业务错误映射为 HTTP 状态码。内部原因只写日志，不返回给调用方。
func respondError(c *gin.Context, err error) {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		status := appErr.HTTPStatus()
		if status >= http.StatusInternalServerError {
			log.Errorf("[%s %s] %v", c.Request.Method, c.FullPath(), err)
		} else {
			log.Warnf("[%s %s] %v", c.Request.Method, c.FullPath(), err)
		}
		c.JSON(status, gin.H{"code": appErr.Code, "message": appErr.Message, "data": nil})
		return
	}
	log.Errorf("[%s %s] 未分类错误: %v", c.Request.Method, c.FullPath(), err)
	c.JSON(http.StatusInternalServerError, gin.H{
		"code":    http.StatusInternalServerError,
		"message": "服务器内部错误",
		"data":    nil,
	})
}

// currentUserID 返回认证中间件写入的用户 ID。
func currentUserID(c *gin.Context) (uint, bool) {
	v, ok := c.Get("userID")
	if !ok {
		return 0, false
	}
	id, ok := v.(uint)
	return id, ok && id != 0
}

// uintParam 解析路径参数中的正整数 ID。
func uintParam(c *gin.Context, name string) (uint, error) {
	n, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || n == 0 {
		return 0, apperr.InvalidInput("无效的参数: " + name)
	}
	return uint(n), nil
}

// requireUser 取出当前用户，失败时直接写 401。
func requireUser(c *gin.Context) (uint, bool) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "无法获取用户信息", "data": nil})
		return 0, false
	}
	return userID, true
}
