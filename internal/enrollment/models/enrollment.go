package models

import (
	"strings"
	"time"

	id "crowdfund/pkg/domain"
)

// ProfileImage references media held in external object storage.
type ProfileImage struct {
	URL string `json:"url"`
	Key string `json:"key"`
}

// Enrollment is a persisted directory entry.
//
// Invariants:
//   - Name is 2 to 50 characters after trimming
//   - TwitterHandle matches ^@[A-Za-z0-9_]{1,15}$ and is unique ignoring case
//   - ProfileImage.URL is an absolute URL and ProfileImage.Key is non-empty
//   - ID, CreatedAt, Name, TwitterHandle and ProfileImage never change
//   - PublishedOnChain only moves from false to true
type Enrollment struct {
	ID               id.EnrollmentID `json:"id"`
	Name             string          `json:"name"`
	TwitterHandle    string          `json:"twitter_handle"`
	ProfileImage     ProfileImage    `json:"profile_image"`
	PublishedOnChain bool            `json:"published_on_chain"`
	CreatedAt        time.Time       `json:"created_at"`
}

// NewEnrollment builds an unpublished record from validated input.
// CreatedAt is truncated to microseconds so memory and Postgres stores agree
// on cursor values.
func NewEnrollment(enrollmentID id.EnrollmentID, v Validated, now time.Time) *Enrollment {
	return &Enrollment{
		ID:            enrollmentID,
		Name:          v.Name,
		TwitterHandle: v.TwitterHandle,
		ProfileImage:  v.ProfileImage,
		CreatedAt:     now.UTC().Truncate(time.Microsecond),
	}
}

// HandleKey is the comparison key for handle uniqueness.
func HandleKey(handle string) string {
	return strings.ToLower(strings.TrimSpace(handle))
}

// MarkPublished flags the record as published on chain. It reports whether
// the flag changed.
func (e *Enrollment) MarkPublished() bool {
	if e.PublishedOnChain {
		return false
	}
	e.PublishedOnChain = true
	return true
}

// CreatedEvent is the outbox payload emitted when a record is created.
type CreatedEvent struct {
	EnrollmentID  string    `json:"enrollment_id"`
	Name          string    `json:"name"`
	TwitterHandle string    `json:"twitter_handle"`
	ProfileURL    string    `json:"profile_picture_url"`
	CreatedAt     time.Time `json:"created_at"`
}

// EventTypeCreated names the outbox event for a new record.
const EventTypeCreated = "enrollment.created"

// NewCreatedEvent builds the outbox payload for e.
func NewCreatedEvent(e *Enrollment) CreatedEvent {
	return CreatedEvent{
		EnrollmentID:  e.ID.String(),
		Name:          e.Name,
		TwitterHandle: e.TwitterHandle,
		ProfileURL:    e.ProfileImage.URL,
		CreatedAt:     e.CreatedAt,
	}
}
