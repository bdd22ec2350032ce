package handler

import (
	"errors"

	"ride-chat-go/internal/middleware"
	"ride-chat-go/internal/service"
	"ride-chat-go/pkg/apperr"

	"github.com/gin-gonic/gin"
)

// UploadHandler 负责消息附件的上传。
type UploadHandler struct {
	uploadService service.UploadService
}

// NewUploadHandler 创建一个新的 UploadHandler。
func NewUploadHandler(uploadService service.UploadService) *UploadHandler {
	return &UploadHandler{uploadService: uploadService}
}

// Upload 接收 multipart 表单中的 file 字段，返回可放入消息的附件描述。
func (h *UploadHandler) Upload(c *gin.Context) {
	if middleware.Identity(c) == nil {
		writeError(c, apperr.Unauthorized(apperr.ScopeAPI))
		return
	}
	fileHeader, err := c.FormFile("file")
	if err != nil {
		writeError(c, apperr.BadRequest(apperr.ScopeAPI, errors.New("no file uploaded")))
		return
	}
	if fileHeader.Size > service.MaxUploadSize {
		writeError(c, apperr.BadRequest(apperr.ScopeAPI, errors.New("file size should be less than 5MB")))
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		writeError(c, apperr.BadRequest(apperr.ScopeAPI, err))
		return
	}
	defer file.Close()

	attachment, err := h.uploadService.Upload(c.Request.Context(), middleware.Identity(c), fileHeader.Filename, file)
	if err != nil {
		writeError(c, err)
		return
	}
	success(c, "success", attachment)
}
