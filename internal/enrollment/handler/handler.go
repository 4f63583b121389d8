package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"crowdfund/internal/enrollment/models"
	"crowdfund/internal/platform/middleware"
	id "crowdfund/pkg/domain"
	dErrors "crowdfund/pkg/domain-errors"
	"crowdfund/pkg/platform/httputil"
	"crowdfund/pkg/requestcontext"
)

// Service defines the enrollment operations exposed over HTTP.
type Service interface {
	Create(ctx context.Context, c models.Candidate) (*models.Enrollment, error)
	Get(ctx context.Context, enrollmentID id.EnrollmentID) (*models.Enrollment, error)
	List(ctx context.Context, p models.ListParams) (*models.Page, error)
	MarkPublished(ctx context.Context, enrollmentID id.EnrollmentID) (*models.Enrollment, error)
}

// Handler serves the enrollment directory routes.
type Handler struct {
	service  Service
	logger   *slog.Logger
	verifier middleware.TokenVerifier
}

// New creates an enrollment Handler. A nil verifier leaves the settlement
// callback answering 503.
func New(service Service, logger *slog.Logger, verifier middleware.TokenVerifier) *Handler {
	return &Handler{
		service:  service,
		logger:   logger,
		verifier: verifier,
	}
}

// Register registers the enrollment routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	// Content type is not checked; body errors map to enrollment error kinds.
	r.Post("/enrollments", h.HandleCreate)
	r.Get("/enrollments", h.HandleList)
	r.Get("/enrollments/{id}", h.HandleGet)

	if h.verifier == nil {
		r.Post("/enrollments/{id}/published", h.handleSettlementDisabled)
		return
	}
	r.With(middleware.RequireBearer(h.verifier, h.logger)).
		Post("/enrollments/{id}/published", h.HandleMarkPublished)
}

// HandleCreate enrolls a participant.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[CreateEnrollmentRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	e, err := h.service.Create(ctx, req.Candidate())
	if err != nil {
		h.logFailure(ctx, "enrollment rejected", requestID, err)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, toCreated(e))
}

// HandleList returns one page of the directory. Malformed parameters are
// rejected before the service is called.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	params, err := models.ParseListParams(r.URL.Query())
	if err != nil {
		h.logger.WarnContext(ctx, "invalid listing parameters",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, models.ErrInvalidQuery(err))
		return
	}

	page, err := h.service.List(ctx, params)
	if err != nil {
		h.logFailure(ctx, "listing failed", requestID, err)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, toList(page))
}

// HandleGet returns a single record.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	enrollmentID, ok := h.pathID(w, r)
	if !ok {
		return
	}

	e, err := h.service.Get(ctx, enrollmentID)
	if err != nil {
		h.logFailure(ctx, "enrollment lookup failed", requestID, err)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, toDetail(e))
}

// HandleMarkPublished is called by the settlement process once a record is
// on chain.
func (h *Handler) HandleMarkPublished(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	enrollmentID, ok := h.pathID(w, r)
	if !ok {
		return
	}

	e, err := h.service.MarkPublished(ctx, enrollmentID)
	if err != nil {
		h.logFailure(ctx, "mark published failed", requestID, err)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "settlement callback accepted",
		"request_id", requestID,
		"enrollment_id", enrollmentID.String(),
		"subject", requestcontext.Subject(ctx),
	)
	httputil.WriteJSON(w, http.StatusOK, toDetail(e))
}

func (h *Handler) handleSettlementDisabled(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteError(w, dErrors.New(dErrors.CodeUnavailable, "Settlement callbacks are not configured"))
}

// pathID parses the {id} route parameter. Anything that is not a UUID
// cannot name a record, so it is a 404.
func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (id.EnrollmentID, bool) {
	enrollmentID, err := id.ParseEnrollmentID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, models.ErrNotFound())
		return id.EnrollmentID{}, false
	}
	return enrollmentID, true
}

func (h *Handler) logFailure(ctx context.Context, msg, requestID string, err error) {
	level := slog.LevelWarn
	if httputil.StatusFor(codeOf(err)) >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	h.logger.Log(ctx, level, msg,
		"request_id", requestID,
		"error", err,
	)
}

func codeOf(err error) dErrors.Code {
	if de, ok := dErrors.As(err); ok {
		return de.Code
	}
	return dErrors.CodeInternal
}
