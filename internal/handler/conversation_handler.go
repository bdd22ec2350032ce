package handler

import (
	"strconv"

	"ride-chat-go/internal/middleware"
	"ride-chat-go/internal/model"
	"ride-chat-go/internal/service"
	"ride-chat-go/pkg/apperr"

	"github.com/gin-gonic/gin"
)

// ConversationHandler 负责对话的查询与管理。
type ConversationHandler struct {
	service service.ConversationService
}

// NewConversationHandler 创建一个新的 ConversationHandler。
func NewConversationHandler(service service.ConversationService) *ConversationHandler {
	return &ConversationHandler{service: service}
}

// Delete 删除一段对话及其消息和流会话。
func (h *ConversationHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), middleware.Identity(c), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	success(c, "success", nil)
}

// Messages 返回对话中按顺序排列的消息。
func (h *ConversationHandler) Messages(c *gin.Context) {
	messages, err := h.service.Messages(c.Request.Context(), middleware.Identity(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	success(c, "success", messages)
}

type visibilityRequest struct {
	Visibility model.Visibility `json:"visibility" binding:"required"`
}

// UpdateVisibility 修改对话的可见性。
func (h *ConversationHandler) UpdateVisibility(c *gin.Context) {
	var req visibilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperr.BadRequest(apperr.ScopeAPI, err))
		return
	}
	if err := h.service.UpdateVisibility(c.Request.Context(), middleware.Identity(c), c.Param("id"), req.Visibility); err != nil {
		writeError(c, err)
		return
	}
	success(c, "success", nil)
}

// History 分页返回调用方的对话列表，ending_before 为上一页最后一条对话的 ID。
func (h *ConversationHandler) History(c *gin.Context) {
	limit := 10
	if raw := c.Query("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			writeError(c, apperr.BadRequest(apperr.ScopeAPI, err))
			return
		}
		limit = v
	}
	page, err := h.service.History(c.Request.Context(), middleware.Identity(c), limit, c.Query("ending_before"))
	if err != nil {
		writeError(c, err)
		return
	}
	success(c, "success", page)
}
