package media

import (
	"mime"
	"strings"
	"time"

	dErrors "crowdfund/pkg/domain-errors"
)

// Slot names an upload destination.
type Slot string

const (
	SlotProfileImage Slot = "profile-image"
	SlotProofImage   Slot = "proof-image"
)

// IsValid reports whether s is a known slot.
func (s Slot) IsValid() bool {
	return s == SlotProfileImage || s == SlotProofImage
}

// MaxImageBytes caps a single uploaded image.
const MaxImageBytes int64 = 4 << 20

// TypeInvalidUpload is the public error type for rejected upload requests.
const TypeInvalidUpload = "INVALID_UPLOAD"

// UploadRequest is the body of POST /uploads/{slot}.
type UploadRequest struct {
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
}

func (r *UploadRequest) Normalize() {
	r.ContentType = strings.ToLower(strings.TrimSpace(r.ContentType))
}

// Validate accepts image/* content up to MaxImageBytes.
func (r *UploadRequest) Validate() error {
	mediaType, _, err := mime.ParseMediaType(r.ContentType)
	if err != nil || !strings.HasPrefix(mediaType, "image/") {
		return dErrors.New(dErrors.CodeValidation, "Only image uploads are allowed").WithType(TypeInvalidUpload)
	}
	if r.Size <= 0 {
		return dErrors.New(dErrors.CodeValidation, "File size is required").WithType(TypeInvalidUpload)
	}
	if r.Size > MaxImageBytes {
		return dErrors.New(dErrors.CodeValidation, "File must be 4MB or smaller").WithType(TypeInvalidUpload)
	}
	return nil
}

// Upload is a granted upload slot. The client PUTs the file to UploadURL and
// later submits URL and Key as its profile picture.
type Upload struct {
	UploadURL string    `json:"uploadUrl"`
	Key       string    `json:"key"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
}

var extensions = map[string]string{
	"image/png":     ".png",
	"image/jpeg":    ".jpg",
	"image/gif":     ".gif",
	"image/webp":    ".webp",
	"image/svg+xml": ".svg",
	"image/avif":    ".avif",
}

func extensionFor(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	return extensions[mediaType]
}
