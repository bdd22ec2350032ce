package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"ride-chat-go/internal/model"
	"ride-chat-go/pkg/apperr"
	"ride-chat-go/pkg/token"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAuthRouter(jwt *token.JWTManager) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	echo := func(c *gin.Context) {
		id := Identity(c)
		if id == nil {
			c.JSON(http.StatusOK, gin.H{"anonymous": true})
			return
		}
		c.JSON(http.StatusOK, gin.H{"userId": id.UserID, "type": id.Type})
	}
	r.GET("/optional", OptionalAuth(jwt), echo)
	r.GET("/required", RequireAuth(jwt, apperr.ScopeHistory), echo)
	return r
}

func do(r http.Handler, path, bearer string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestOptionalAuth(t *testing.T) {
	jwt := token.NewJWTManager("secret", 1, 1)
	r := newAuthRouter(jwt)

	w := do(r, "/optional", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "anonymous")

	access, err := jwt.GenerateToken(7, "guest-x", string(model.UserTypeGuest))
	require.NoError(t, err)
	w = do(r, "/optional", access)
	assert.Contains(t, w.Body.String(), `"userId":7`)

	// websocket 客户端通过查询参数携带 token
	w = do(r, "/optional?token="+access, "")
	assert.Contains(t, w.Body.String(), `"userId":7`)

	// refresh token 不代表身份
	refresh, err := jwt.GenerateRefreshToken(7, "guest-x", string(model.UserTypeGuest))
	require.NoError(t, err)
	w = do(r, "/optional", refresh)
	assert.Contains(t, w.Body.String(), "anonymous")
}

func TestRequireAuth(t *testing.T) {
	jwt := token.NewJWTManager("secret", 1, 1)
	r := newAuthRouter(jwt)

	w := do(r, "/required", "garbage")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "unauthorized:history", body["code"])
	assert.NotContains(t, w.Body.String(), "anonymous")

	access, err := jwt.GenerateToken(3, "alice", string(model.UserTypeRegular))
	require.NoError(t, err)
	w = do(r, "/required", access)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"type":"regular"`)
}
