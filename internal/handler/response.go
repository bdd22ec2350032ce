// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"net/http"

	"ride-chat-go/pkg/apperr"
	"ride-chat-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// success 以统一的结构返回成功响应。
func success(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": message,
		"data":    data,
	})
}

// writeError 把错误归一化为 "kind:scope" 错误码后返回，内部原因只写日志。
func writeError(c *gin.Context, err error) {
	ae := apperr.From(err)
	if ae.Kind == apperr.KindInternal {
		log.Errorw("request failed", "path", c.FullPath(), "code", ae.Code(), "error", err)
	} else {
		log.Debugw("request rejected", "path", c.FullPath(), "code", ae.Code(), "error", err)
	}
	c.AbortWithStatusJSON(ae.StatusCode(), gin.H{
		"code":    ae.Code(),
		"message": ae.Message(),
		"cause":   "",
	})
}
