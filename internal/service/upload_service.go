package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"regexp"

	"ride-chat-go/internal/model"
	"ride-chat-go/pkg/apperr"
	"ride-chat-go/pkg/log"

	"github.com/oklog/ulid/v2"
)

// MaxUploadSize 是单个附件的大小上限 (5MB)。
const MaxUploadSize = 5 * 1024 * 1024

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// ObjectStore 是附件的对象存储，通常由 *storage.Store 实现。
type ObjectStore interface {
	Put(ctx context.Context, objectName string, r io.Reader, size int64, contentType string) (string, error)
}

// UploadService 处理消息附件的上传。
type UploadService interface {
	Upload(ctx context.Context, identity *model.Identity, fileName string, r io.Reader) (*model.Attachment, error)
}

type uploadService struct {
	store ObjectStore
}

// NewUploadService 创建一个新的 UploadService 实例。
func NewUploadService(store ObjectStore) UploadService {
	return &uploadService{store: store}
}

// Upload 校验并保存一张图片。类型依据文件内容判断，只接受 JPEG 与 PNG。
func (s *uploadService) Upload(ctx context.Context, identity *model.Identity, fileName string, r io.Reader) (*model.Attachment, error) {
	if identity == nil {
		return nil, apperr.Unauthorized(apperr.ScopeAPI)
	}
	data, err := io.ReadAll(io.LimitReader(r, MaxUploadSize+1))
	if err != nil {
		return nil, apperr.BadRequest(apperr.ScopeAPI, fmt.Errorf("read upload: %w", err))
	}
	if len(data) == 0 {
		return nil, apperr.BadRequest(apperr.ScopeAPI, errors.New("file is empty"))
	}
	if len(data) > MaxUploadSize {
		return nil, apperr.BadRequest(apperr.ScopeAPI, errors.New("file size should be less than 5MB"))
	}
	contentType := http.DetectContentType(data)
	if contentType != "image/jpeg" && contentType != "image/png" {
		return nil, apperr.BadRequest(apperr.ScopeAPI, fmt.Errorf("file type should be JPEG or PNG, got %s", contentType))
	}

	name := unsafeNameChars.ReplaceAllString(path.Base(fileName), "_")
	if name == "" || name == "." || name == "_" {
		name = "file"
	}
	objectName := fmt.Sprintf("attachments/%d/%s-%s", identity.UserID, ulid.Make().String(), name)
	url, err := s.store.Put(ctx, objectName, bytes.NewReader(data), int64(len(data)), contentType)
	if err != nil {
		return nil, apperr.Internal(apperr.ScopeAPI, err)
	}
	log.Infow("attachment uploaded", "userId", identity.UserID, "object", objectName, "size", len(data))
	return &model.Attachment{URL: url, Name: name, ContentType: contentType}, nil
}
