// Package media hands out presigned upload slots for profile and proof
// images. Files go straight from the client to object storage.
package media

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	dErrors "crowdfund/pkg/domain-errors"
	"crowdfund/pkg/requestcontext"
)

// Presigner signs direct-to-storage uploads.
type Presigner interface {
	PresignPut(ctx context.Context, key, contentType string, size int64, ttl time.Duration) (string, error)
	PublicURL(key string) string
}

// Service grants upload slots.
type Service struct {
	presigner Presigner
	ttl       time.Duration
	logger    *slog.Logger
}

// NewService builds a Service. Presigned URLs expire after ttl.
func NewService(presigner Presigner, ttl time.Duration, logger *slog.Logger) *Service {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{presigner: presigner, ttl: ttl, logger: logger}
}

// Prepare validates req and returns a presigned slot under a fresh key.
func (s *Service) Prepare(ctx context.Context, slot Slot, req UploadRequest) (*Upload, error) {
	if !slot.IsValid() {
		return nil, dErrors.New(dErrors.CodeNotFound, "Unknown upload slot")
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx).UTC()
	key := storageKey(slot, now, req.ContentType)
	uploadURL, err := s.presigner.PresignPut(ctx, key, req.ContentType, req.Size, s.ttl)
	if err != nil {
		s.logger.ErrorContext(ctx, "presign failed", "slot", string(slot), "error", err)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "Failed to prepare upload")
	}

	return &Upload{
		UploadURL: uploadURL,
		Key:       key,
		URL:       s.presigner.PublicURL(key),
		ExpiresAt: now.Add(s.ttl),
	}, nil
}

func storageKey(slot Slot, now time.Time, contentType string) string {
	return fmt.Sprintf("%s/%d/%02d/%02d/%s%s",
		slot, now.Year(), now.Month(), now.Day(), uuid.New(), extensionFor(contentType))
}
