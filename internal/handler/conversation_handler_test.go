package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"ride-chat-go/internal/middleware"
	"ride-chat-go/internal/model"
	"ride-chat-go/internal/service"
	"ride-chat-go/pkg/apperr"
	"ride-chat-go/pkg/token"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConversationService struct {
	limit      int
	cursor     string
	visibility model.Visibility
	deleted    string
}

func (f *fakeConversationService) Delete(_ context.Context, identity *model.Identity, chatID string) error {
	if identity == nil {
		return apperr.Unauthorized(apperr.ScopeChat)
	}
	f.deleted = chatID
	return nil
}

func (f *fakeConversationService) Messages(_ context.Context, _ *model.Identity, chatID string) ([]model.Message, error) {
	if chatID == "missing" {
		return nil, apperr.NotFound(apperr.ScopeChat)
	}
	return []model.Message{{ID: "m1", ChatID: chatID, Role: model.RoleUser}}, nil
}

func (f *fakeConversationService) UpdateVisibility(_ context.Context, _ *model.Identity, _ string, visibility model.Visibility) error {
	if !visibility.Valid() {
		return apperr.BadRequest(apperr.ScopeAPI, nil)
	}
	f.visibility = visibility
	return nil
}

func (f *fakeConversationService) History(_ context.Context, _ *model.Identity, limit int, endingBefore string) (*service.HistoryPage, error) {
	f.limit = limit
	f.cursor = endingBefore
	return &service.HistoryPage{Chats: []model.Chat{}, HasMore: false}, nil
}

func newConversationRouter(svc service.ConversationService, jwt *token.JWTManager) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewConversationHandler(svc)
	api := r.Group("/api", middleware.OptionalAuth(jwt))
	api.DELETE("/chat/:id", h.Delete)
	api.GET("/chat/:id/messages", h.Messages)
	api.PATCH("/chat/:id/visibility", h.UpdateVisibility)
	api.GET("/history", h.History)
	return r
}

func TestConversationHandler(t *testing.T) {
	jwt := token.NewJWTManager("secret", 1, 1)
	access, err := jwt.GenerateToken(1, "alice", "regular")
	require.NoError(t, err)
	svc := &fakeConversationService{}
	r := newConversationRouter(svc, jwt)

	send := func(method, path, body string, auth bool) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		if auth {
			req.Header.Set("Authorization", "Bearer "+access)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	w := send(http.MethodDelete, "/api/chat/c1", "", false)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w = send(http.MethodDelete, "/api/chat/c1", "", true)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "c1", svc.deleted)

	w = send(http.MethodGet, "/api/chat/c1/messages", "", true)
	assert.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Code int             `json:"code"`
		Data []model.Message `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "m1", resp.Data[0].ID)

	w = send(http.MethodGet, "/api/chat/missing/messages", "", true)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = send(http.MethodPatch, "/api/chat/c1/visibility", `{"visibility":"public"}`, true)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, model.VisibilityPublic, svc.visibility)
	w = send(http.MethodPatch, "/api/chat/c1/visibility", `{}`, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = send(http.MethodGet, "/api/history", "", true)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 10, svc.limit)
	w = send(http.MethodGet, "/api/history?limit=5&ending_before=c9", "", true)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 5, svc.limit)
	assert.Equal(t, "c9", svc.cursor)
	w = send(http.MethodGet, "/api/history?limit=abc", "", true)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
