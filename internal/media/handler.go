package media

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"crowdfund/internal/platform/middleware"
	dErrors "crowdfund/pkg/domain-errors"
	"crowdfund/pkg/platform/httputil"
	"crowdfund/pkg/requestcontext"
)

// Uploader grants upload slots.
type Uploader interface {
	Prepare(ctx context.Context, slot Slot, req UploadRequest) (*Upload, error)
}

// Handler serves POST /uploads/{slot}.
type Handler struct {
	uploader Uploader
	logger   *slog.Logger
}

// NewHandler creates the upload handler. A nil uploader answers 503.
func NewHandler(uploader Uploader, logger *slog.Logger) *Handler {
	return &Handler{uploader: uploader, logger: logger}
}

type uploadResponse struct {
	Status string  `json:"status"`
	Data   *Upload `json:"data"`
}

// Register registers the upload route with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.With(middleware.RequireJSON).Post("/uploads/{slot}", h.HandleUpload)
}

// HandleUpload returns a presigned upload for the slot in the path.
func (h *Handler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	if h.uploader == nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnavailable, "Uploads are not configured"))
		return
	}

	req, ok := httputil.DecodeAndPrepare[UploadRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	slot := Slot(chi.URLParam(r, "slot"))
	upload, err := h.uploader.Prepare(ctx, slot, *req)
	if err != nil {
		h.logger.WarnContext(ctx, "upload rejected",
			"request_id", requestID,
			"slot", string(slot),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "upload slot granted",
		"request_id", requestID,
		"slot", string(slot),
		"key", upload.Key,
	)
	httputil.WriteJSON(w, http.StatusOK, uploadResponse{Status: "success", Data: upload})
}
