package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"crowdfund/internal/enrollment/metrics"
	"crowdfund/internal/enrollment/models"
	id "crowdfund/pkg/domain"
	dErrors "crowdfund/pkg/domain-errors"
	"crowdfund/pkg/platform/sentinel"
)

// Store is the directory store the service orchestrates.
type Store interface {
	Insert(ctx context.Context, v models.Validated) (*models.Enrollment, error)
	FindByID(ctx context.Context, enrollmentID id.EnrollmentID) (*models.Enrollment, error)
	HandleExists(ctx context.Context, handle string) (bool, error)
	Scan(ctx context.Context, p models.ScanParams) ([]*models.Enrollment, error)
	MarkPublished(ctx context.Context, enrollmentID id.EnrollmentID) (*models.Enrollment, error)
	Ping(ctx context.Context) error
}

// Service runs enrollment creation and the read paths. Creation flows
// validator, then handle guard, then a single store insert; listing goes
// straight to the paginator.
type Service struct {
	store     Store
	guard     *handleGuard
	paginator *paginator
	logger    *slog.Logger
	metrics   *metrics.Metrics
	tracer    trace.Tracer
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics records creation, rejection and listing metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithTracer overrides the tracer taken from the global provider.
func WithTracer(t trace.Tracer) Option {
	return func(s *Service) {
		if t != nil {
			s.tracer = t
		}
	}
}

// New builds a Service on top of store.
func New(store Store, opts ...Option) *Service {
	s := &Service{
		store:     store,
		guard:     &handleGuard{store: store},
		paginator: &paginator{store: store},
		logger:    slog.Default(),
		tracer:    otel.Tracer("crowdfund/enrollment"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create validates c, rejects handles already enrolled, and inserts the
// record. The store's unique index decides races the guard cannot see.
func (s *Service) Create(ctx context.Context, c models.Candidate) (*models.Enrollment, error) {
	start := time.Now()
	defer s.metrics.ObserveCreate(start)

	ctx, span := s.tracer.Start(ctx, "enrollment.create")
	defer span.End()

	e, err := s.create(ctx, c)
	if err != nil {
		s.metrics.IncrementRejected(dErrors.TypeOf(err))
		recordError(span, err)
		return nil, err
	}
	span.SetAttributes(attribute.String("enrollment.id", e.ID.String()))
	s.metrics.IncrementCreated()
	s.logger.InfoContext(ctx, "enrollment created",
		"enrollment_id", e.ID.String(),
		"twitter_handle", e.TwitterHandle,
	)
	return e, nil
}

func (s *Service) create(ctx context.Context, c models.Candidate) (*models.Enrollment, error) {
	v, err := models.ValidateCandidate(c)
	if err != nil {
		return nil, err
	}

	taken, err := s.guard.Taken(ctx, v.TwitterHandle)
	if err != nil {
		s.logger.ErrorContext(ctx, "handle lookup failed", "error", err)
		return nil, models.ErrSaveFailed(err)
	}
	if taken {
		return nil, models.ErrDuplicateHandle(nil)
	}

	e, err := s.store.Insert(ctx, v)
	if err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			return nil, models.ErrDuplicateHandle(err)
		}
		s.logger.ErrorContext(ctx, "enrollment insert failed", "error", err)
		return nil, models.ErrSaveFailed(err)
	}
	return e, nil
}

// Get returns a single record.
func (s *Service) Get(ctx context.Context, enrollmentID id.EnrollmentID) (*models.Enrollment, error) {
	ctx, span := s.tracer.Start(ctx, "enrollment.get",
		trace.WithAttributes(attribute.String("enrollment.id", enrollmentID.String())))
	defer span.End()

	e, err := s.store.FindByID(ctx, enrollmentID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, models.ErrNotFound()
		}
		recordError(span, err)
		s.logger.ErrorContext(ctx, "enrollment lookup failed", "enrollment_id", enrollmentID.String(), "error", err)
		return nil, models.ErrFetchFailed(err)
	}
	return e, nil
}

// List returns one page of the directory.
func (s *Service) List(ctx context.Context, p models.ListParams) (*models.Page, error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "enrollment.list", trace.WithAttributes(
		attribute.Int("page.limit", p.Limit),
		attribute.String("page.order_by", p.OrderBy.String()),
		attribute.String("page.order", p.Order.String()),
		attribute.Bool("page.has_cursor", p.Cursor != nil),
	))
	defer span.End()

	page, err := s.paginator.Page(ctx, p)
	if err != nil {
		if errors.Is(err, sentinel.ErrInvalidCursor) {
			return nil, models.ErrInvalidQuery(err)
		}
		recordError(span, err)
		s.logger.ErrorContext(ctx, "enrollment listing failed", "error", err)
		return nil, models.ErrFetchFailed(err)
	}
	span.SetAttributes(
		attribute.Int("page.size", len(page.Items)),
		attribute.Bool("page.has_more", page.HasMore),
	)
	s.metrics.ObserveList(start, len(page.Items))
	return page, nil
}

// MarkPublished records that the settlement layer put the enrollment on
// chain. Repeated calls return the record unchanged.
func (s *Service) MarkPublished(ctx context.Context, enrollmentID id.EnrollmentID) (*models.Enrollment, error) {
	ctx, span := s.tracer.Start(ctx, "enrollment.mark_published",
		trace.WithAttributes(attribute.String("enrollment.id", enrollmentID.String())))
	defer span.End()

	e, err := s.store.MarkPublished(ctx, enrollmentID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, models.ErrNotFound()
		}
		recordError(span, err)
		s.logger.ErrorContext(ctx, "mark published failed", "enrollment_id", enrollmentID.String(), "error", err)
		return nil, models.ErrSaveFailed(err)
	}
	s.metrics.IncrementPublished()
	s.logger.InfoContext(ctx, "enrollment published", "enrollment_id", enrollmentID.String())
	return e, nil
}

// Ready reports whether the store can serve requests.
func (s *Service) Ready(ctx context.Context) error {
	if err := s.store.Ping(ctx); err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "directory store unavailable")
	}
	return nil
}

func recordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
