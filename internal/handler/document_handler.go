package handler

import (
	"ride-chat-go/internal/middleware"
	"ride-chat-go/internal/service"

	"github.com/gin-gonic/gin"
)

// DocumentHandler 提供工具生成的文档及修改建议。
type DocumentHandler struct {
	docService service.DocumentService
}

// NewDocumentHandler 创建一个新的 DocumentHandler。
func NewDocumentHandler(docService service.DocumentService) *DocumentHandler {
	return &DocumentHandler{docService: docService}
}

// Versions 返回文档的所有版本。
func (h *DocumentHandler) Versions(c *gin.Context) {
	docs, err := h.docService.Versions(c.Request.Context(), middleware.Identity(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	success(c, "success", docs)
}

// Suggestions 返回文档的修改建议。
func (h *DocumentHandler) Suggestions(c *gin.Context) {
	suggestions, err := h.docService.Suggestions(c.Request.Context(), middleware.Identity(c), c.Query("documentId"))
	if err != nil {
		writeError(c, err)
		return
	}
	success(c, "success", suggestions)
}
