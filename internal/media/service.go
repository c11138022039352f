package media

import (
	"bytes"
	"context"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/fathima-sithara/school-chat/internal/apperr"
	"github.com/fathima-sithara/school-chat/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const thumbSize = 320

type ObjectStore interface {
	Upload(ctx context.Context, key, contentType string, data []byte) (string, error)
	PresignURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// Uploaded describes a stored chat attachment.
type Uploaded struct {
	URL          string           `json:"url"`
	Key          string           `json:"key"`
	MediaType    models.MediaType `json:"mediaType"`
	ContentType  string           `json:"contentType"`
	Size         int64            `json:"size"`
	ThumbnailURL string           `json:"thumbnailUrl,omitempty"`
}

type Service struct {
	store      ObjectStore
	presignTTL time.Duration
	maxBytes   int64
	log        *zap.SugaredLogger
}

func NewService(store ObjectStore, presignTTL time.Duration, maxBytes int64, log *zap.SugaredLogger) *Service {
	return &Service{store: store, presignTTL: presignTTL, maxBytes: maxBytes, log: log}
}

var documentTypes = []string{
	"application/pdf",
	"application/msword",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"application/vnd.ms-excel",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	"application/vnd.ms-powerpoint",
	"application/vnd.openxmlformats-officedocument.presentationml.presentation",
	"text/plain",
}

// DetectMediaType maps a MIME type onto the chat media kinds.
func DetectMediaType(contentType string) (models.MediaType, bool) {
	ct := strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	switch {
	case strings.HasPrefix(ct, "image/"):
		return models.MediaImage, true
	case strings.HasPrefix(ct, "video/"):
		return models.MediaVideo, true
	case slices.Contains(documentTypes, ct):
		return models.MediaDocument, true
	}
	return "", false
}

// Upload stores a chat attachment for userID. Images also get a JPEG thumbnail; a
// thumbnail failure does not fail the upload.
func (s *Service) Upload(ctx context.Context, userID, filename, contentType string, data []byte) (*Uploaded, error) {
	size := int64(len(data))
	if size == 0 {
		return nil, apperr.Validation("File is empty")
	}
	if s.maxBytes > 0 && size > s.maxBytes {
		return nil, apperr.Validation("File too large")
	}
	mt, ok := DetectMediaType(contentType)
	if !ok {
		return nil, apperr.Validation("Unsupported file type")
	}

	key := objectKey(userID, filename)
	url, err := s.store.Upload(ctx, key, contentType, data)
	if err != nil {
		return nil, apperr.Persistence("Failed to upload file", err)
	}
	if url, err = s.resolve(ctx, key, url); err != nil {
		return nil, err
	}
	out := &Uploaded{URL: url, Key: key, MediaType: mt, ContentType: contentType, Size: size}

	if mt == models.MediaImage {
		out.ThumbnailURL = s.thumbnail(ctx, key, data)
	}
	s.log.Infow("media uploaded", "userId", userID, "key", key, "type", mt, "size", size)
	return out, nil
}

func (s *Service) thumbnail(ctx context.Context, key string, data []byte) string {
	thumb, err := Thumbnail(data)
	if err != nil {
		s.log.Warnw("thumbnail failed", "key", key, "error", err)
		return ""
	}
	thumbKey := key + "_thumb.jpg"
	url, err := s.store.Upload(ctx, thumbKey, "image/jpeg", thumb)
	if err == nil {
		url, err = s.resolve(ctx, thumbKey, url)
	}
	if err != nil {
		s.log.Warnw("thumbnail upload failed", "key", thumbKey, "error", err)
		return ""
	}
	return url
}

func (s *Service) resolve(ctx context.Context, key, url string) (string, error) {
	if url != "" {
		return url, nil
	}
	url, err := s.store.PresignURL(ctx, key, s.presignTTL)
	if err != nil {
		return "", apperr.Persistence("Failed to sign file URL", err)
	}
	return url, nil
}

// Thumbnail scales an image to fit a 320x320 box, never upscaling, and encodes it as
// JPEG.
func Thumbnail(data []byte) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, err
	}
	thumb := imaging.Fit(img, thumbSize, thumbSize, imaging.Lanczos)
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, imaging.JPEG); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func objectKey(userID, filename string) string {
	name := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	if name == "." || name == "/" {
		name = "file"
	}
	name = strings.ReplaceAll(name, " ", "_")
	return "chat/" + userID + "/" + uuid.NewString() + "_" + name
}
