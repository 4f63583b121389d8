package store

import (
	"bytes"
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"crowdfund/internal/enrollment/models"
	id "crowdfund/pkg/domain"
	"crowdfund/pkg/platform/sentinel"
)

// Clock returns the current time.
type Clock func() time.Time

// InMemory keeps enrollments in process memory. It is used in development and
// unit tests; uniqueness is enforced under the write lock.
type InMemory struct {
	mu       sync.RWMutex
	byID     map[id.EnrollmentID]*models.Enrollment
	byHandle map[string]id.EnrollmentID
	clock    Clock
}

// MemoryOption configures an InMemory store.
type MemoryOption func(*InMemory)

// WithClock sets the clock used for creation timestamps.
func WithClock(clock Clock) MemoryOption {
	return func(s *InMemory) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewInMemory constructs an empty in-memory store.
func NewInMemory(opts ...MemoryOption) *InMemory {
	s := &InMemory{
		byID:     make(map[id.EnrollmentID]*models.Enrollment),
		byHandle: make(map[string]id.EnrollmentID),
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Insert stores a new record, assigning its id and creation time.
func (s *InMemory) Insert(ctx context.Context, v models.Validated) (*models.Enrollment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := models.HandleKey(v.TwitterHandle)
	if _, taken := s.byHandle[key]; taken {
		return nil, sentinel.ErrAlreadyUsed
	}
	e := models.NewEnrollment(id.NewEnrollmentID(), v, s.clock())
	s.byID[e.ID] = e
	s.byHandle[key] = e.ID

	cp := *e
	return &cp, nil
}

// FindByID returns a copy of the record with the given id.
func (s *InMemory) FindByID(ctx context.Context, enrollmentID id.EnrollmentID) (*models.Enrollment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.byID[enrollmentID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

// HandleExists reports whether the handle is enrolled, ignoring case.
func (s *InMemory) HandleExists(ctx context.Context, handle string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.byHandle[models.HandleKey(handle)]
	return ok, nil
}

// Scan returns up to p.Limit records strictly after p.After, ordered by
// (p.OrderBy, id) in p.Order.
func (s *InMemory) Scan(ctx context.Context, p models.ScanParams) ([]*models.Enrollment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var after *time.Time
	if p.After != nil && p.OrderBy == models.SortCreatedAt {
		t, err := models.ParseTimeCursor(p.After.Value)
		if err != nil {
			return nil, err
		}
		after = &t
	}

	s.mu.RLock()
	rows := make([]*models.Enrollment, 0, len(s.byID))
	for _, e := range s.byID {
		cp := *e
		rows = append(rows, &cp)
	}
	s.mu.RUnlock()

	desc := p.Order == models.OrderDesc
	sort.Slice(rows, func(i, j int) bool {
		c := compareRows(rows[i], rows[j], p.OrderBy)
		if desc {
			return c > 0
		}
		return c < 0
	})

	out := make([]*models.Enrollment, 0, min(p.Limit, len(rows)))
	for _, e := range rows {
		if p.After != nil && !isAfter(e, p, after) {
			continue
		}
		out = append(out, e)
		if len(out) == p.Limit {
			break
		}
	}
	return out, nil
}

// MarkPublished sets the published flag and returns the updated record.
func (s *InMemory) MarkPublished(ctx context.Context, enrollmentID id.EnrollmentID) (*models.Enrollment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.byID[enrollmentID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	e.MarkPublished()
	cp := *e
	return &cp, nil
}

// Ping always succeeds.
func (s *InMemory) Ping(context.Context) error { return nil }

// compareRows orders by field then id.
func compareRows(a, b *models.Enrollment, field models.SortField) int {
	var c int
	switch field {
	case models.SortName:
		c = strings.Compare(a.Name, b.Name)
	case models.SortTwitterHandle:
		c = strings.Compare(a.TwitterHandle, b.TwitterHandle)
	default:
		c = a.CreatedAt.Compare(b.CreatedAt)
	}
	if c != 0 {
		return c
	}
	return compareIDs(a.ID, b.ID)
}

func compareIDs(a, b id.EnrollmentID) int {
	ua, ub := uuid.UUID(a), uuid.UUID(b)
	return bytes.Compare(ua[:], ub[:])
}

// isAfter reports whether e lies strictly past the cursor in scan order.
// Without a cursor id only the sort value is compared.
func isAfter(e *models.Enrollment, p models.ScanParams, afterTime *time.Time) bool {
	var c int
	switch p.OrderBy {
	case models.SortName:
		c = strings.Compare(e.Name, p.After.Value)
	case models.SortTwitterHandle:
		c = strings.Compare(e.TwitterHandle, p.After.Value)
	default:
		c = e.CreatedAt.Compare(*afterTime)
	}
	if c == 0 && p.After.ID != nil {
		c = compareIDs(e.ID, *p.After.ID)
	}
	if p.Order == models.OrderDesc {
		return c < 0
	}
	return c > 0
}
