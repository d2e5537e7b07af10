package service

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/domusnext/eval/internal/domain"
)

const defaultContentType = "application/octet-stream"

var (
	errMissingUpload     = domain.ValidationError("Missing file upload")
	errInvalidUploadType = domain.ValidationError("Invalid upload type")
)

// UploadInput is one multipart file to store.
type UploadInput struct {
	Type        string
	Filename    string
	ContentType string
	Body        io.Reader
}

// UploadResult describes the stored object.
type UploadResult struct {
	URL      string `json:"url"`
	Key      string `json:"key"`
	Size     int64  `json:"size"`
	MimeType string `json:"mimeType"`
	Name     string `json:"name"`
}

// Upload stores an image or file attachment under a fresh key.
func (s *Service) Upload(ctx context.Context, in UploadInput) (*UploadResult, error) {
	if in.Body == nil {
		return nil, errMissingUpload
	}
	if in.Type != "image" && in.Type != "file" {
		return nil, errInvalidUploadType
	}
	if s.bucket == nil {
		return nil, fmt.Errorf("uploads are not configured")
	}

	contentType := in.ContentType
	if contentType == "" {
		contentType = defaultContentType
	}
	name := filepath.Base(in.Filename)
	if name == "." || name == "/" {
		name = ""
	}

	key := fmt.Sprintf("uploads/%s/%d-%s%s", in.Type, s.now().UnixMilli(), uuid.New().String(), filepath.Ext(name))
	disposition := fmt.Sprintf("inline; filename=%q", name)

	info, err := s.bucket.Put(ctx, key, in.Body, contentType, disposition)
	if err != nil {
		return nil, fmt.Errorf("failed to store upload: %w", err)
	}

	s.logger.Debug("upload stored", zap.String("key", key), zap.Int64("size", info.Size))
	return &UploadResult{
		URL:      s.publicURL(key),
		Key:      key,
		Size:     info.Size,
		MimeType: contentType,
		Name:     name,
	}, nil
}

func (s *Service) publicURL(key string) string {
	base := strings.TrimRight(s.config.PublicUploadBaseURL, "/")
	return base + "/" + key
}
