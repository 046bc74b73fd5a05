package services

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/older-wiser/apiserver/internal/storage"
)

// Upload rejection reasons. Anything else is an upstream failure.
var (
	ErrUploadTooLarge  = errors.New("uploaded file too large")
	ErrUploadWrongType = errors.New("not an image")
)

// UploadPolicy parameterizes one upload call site: the avatar and activity
// image endpoints share the mechanics and differ only in these knobs.
type UploadPolicy struct {
	// MaxBytes is the per-file ceiling.
	MaxBytes int64
	// AllowedPrefixes lists accepted content-type prefixes, e.g. "image/".
	AllowedPrefixes []string
	// KeyPrefix namespaces the stored object, e.g. "avatars".
	KeyPrefix string
}

// ImagePolicy is the policy both image call sites start from.
func ImagePolicy(maxBytes int64, keyPrefix string) UploadPolicy {
	return UploadPolicy{
		MaxBytes:        maxBytes,
		AllowedPrefixes: []string{"image/"},
		KeyPrefix:       keyPrefix,
	}
}

// UploadService stores uploaded files in object storage and hands back the
// object key. Callers never touch file bytes beyond the multipart header.
type UploadService struct {
	storage *storage.Storage
}

func NewUploadService(st *storage.Storage) *UploadService {
	return &UploadService{storage: st}
}

// Save validates the upload against the policy and stores it, returning
// the object key to associate with the owning record.
func (s *UploadService) Save(ctx context.Context, policy UploadPolicy, header *multipart.FileHeader) (string, error) {
	if policy.MaxBytes > 0 && header.Size > policy.MaxBytes {
		return "", ErrUploadTooLarge
	}

	contentType := header.Header.Get("Content-Type")
	if !policy.allows(contentType) {
		return "", ErrUploadWrongType
	}

	file, err := header.Open()
	if err != nil {
		return "", fmt.Errorf("open upload: %w", err)
	}
	defer file.Close()

	key := policy.objectKey(header.Filename)
	if err := s.storage.Put(ctx, key, file, header.Size, contentType); err != nil {
		return "", fmt.Errorf("store upload: %w", err)
	}
	return key, nil
}

// Delete removes a previously stored object. Used when replacing avatars.
func (s *UploadService) Delete(ctx context.Context, key string) error {
	return s.storage.Delete(ctx, key)
}

func (p UploadPolicy) allows(contentType string) bool {
	for _, prefix := range p.AllowedPrefixes {
		if strings.HasPrefix(contentType, prefix) {
			return true
		}
	}
	return len(p.AllowedPrefixes) == 0
}

func (p UploadPolicy) objectKey(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	suffix := uuid.NewString()[:8]
	return fmt.Sprintf("%s/%d-%s%s", p.KeyPrefix, time.Now().UnixNano(), suffix, ext)
}
