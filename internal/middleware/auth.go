// Package middleware 提供了处理 HTTP 请求的中间件。
package middleware

import (
	"strings"

	"ride-chat-go/internal/model"
	"ride-chat-go/pkg/apperr"
	"ride-chat-go/pkg/token"

	"github.com/gin-gonic/gin"
)

const identityKey = "identity"

// Identity 返回认证中间件写入上下文的身份，未认证时返回 nil。
func Identity(c *gin.Context) *model.Identity {
	v, ok := c.Get(identityKey)
	if !ok {
		return nil
	}
	id, _ := v.(*model.Identity)
	return id
}

// bearerToken 从 Authorization 请求头或 token 查询参数中取出 token。
// websocket 连接无法自定义请求头，只能通过查询参数传递。
func bearerToken(c *gin.Context) string {
	const bearerPrefix = "Bearer "
	if h := c.GetHeader("Authorization"); strings.HasPrefix(h, bearerPrefix) {
		return strings.TrimPrefix(h, bearerPrefix)
	}
	return c.Query("token")
}

// authenticate 解析 token（如果有），把身份存入上下文。refresh token 不能用于访问接口。
func authenticate(c *gin.Context, jwtManager *token.JWTManager) {
	raw := bearerToken(c)
	if raw == "" {
		return
	}
	claims, err := jwtManager.VerifyToken(raw)
	if err != nil || claims.Refresh {
		return
	}
	c.Set(identityKey, &model.Identity{UserID: claims.UserID, Type: model.UserType(claims.UserType)})
	c.Set("claims", claims)
}

// OptionalAuth 把身份存入上下文，但不拒绝匿名请求。
// 是否必须认证由业务层决定，这样错误码的 scope 才能与具体接口一致。
func OptionalAuth(jwtManager *token.JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		authenticate(c, jwtManager)
		c.Next()
	}
}

// RequireAuth 拒绝没有有效身份的请求。
func RequireAuth(jwtManager *token.JWTManager, scope apperr.Scope) gin.HandlerFunc {
	return func(c *gin.Context) {
		authenticate(c, jwtManager)
		if Identity(c) == nil {
			e := apperr.Unauthorized(scope)
			c.AbortWithStatusJSON(e.StatusCode(), gin.H{"code": e.Code(), "message": e.Message()})
			return
		}
		c.Next()
	}
}
