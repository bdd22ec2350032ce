package handler

import (
	"strconv"

	"ride-chat-go/internal/middleware"
	"ride-chat-go/internal/service"

	"github.com/gin-gonic/gin"
)

// SearchHandler 负责历史回合的全文检索。
type SearchHandler struct {
	searchService service.SearchService
}

// NewSearchHandler 创建一个新的 SearchHandler。
func NewSearchHandler(searchService service.SearchService) *SearchHandler {
	return &SearchHandler{searchService: searchService}
}

// Search 按关键词检索调用方自己的历史回合。
func (h *SearchHandler) Search(c *gin.Context) {
	size, _ := strconv.Atoi(c.Query("size"))
	hits, err := h.searchService.Search(c.Request.Context(), middleware.Identity(c), c.Query("q"), size)
	if err != nil {
		writeError(c, err)
		return
	}
	success(c, "success", hits)
}
