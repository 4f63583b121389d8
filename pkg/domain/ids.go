package domain

import (
	"strings"

	"github.com/google/uuid"

	dErrors "crowdfund/pkg/domain-errors"
)

// EnrollmentID identifies an enrollment record. It is assigned by the store
// at insert time and never changes.
type EnrollmentID uuid.UUID

// OutboxID identifies an outbox event row.
type OutboxID uuid.UUID

// NewEnrollmentID returns a fresh random EnrollmentID.
func NewEnrollmentID() EnrollmentID {
	return EnrollmentID(uuid.New())
}

// ParseEnrollmentID parses s as a non-nil UUID.
func ParseEnrollmentID(s string) (EnrollmentID, error) {
	u, err := parseUUID(s, "enrollment id")
	return EnrollmentID(u), err
}

func (id EnrollmentID) String() string { return uuid.UUID(id).String() }

// IsNil reports whether id is the zero UUID.
func (id EnrollmentID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

// MarshalText renders the id in canonical UUID form for JSON.
func (id EnrollmentID) MarshalText() ([]byte, error) {
	return uuid.UUID(id).MarshalText()
}

// UnmarshalText parses a canonical UUID.
func (id *EnrollmentID) UnmarshalText(b []byte) error {
	parsed, err := ParseEnrollmentID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id OutboxID) String() string { return uuid.UUID(id).String() }

func parseUUID(s, label string) (uuid.UUID, error) {
	if strings.TrimSpace(s) == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" is required")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+label)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+label)
	}
	return u, nil
}
