// Package httputil holds the JSON response helpers shared by every HTTP handler.
package httputil

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	dErrors "crowdfund/pkg/domain-errors"
)

// Public error types that are not owned by a single feature.
const (
	TypeServerError = "SERVER_ERROR"
	TypeBadRequest  = "BAD_REQUEST"
)

const serverErrorMessage = "Internal server error"

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

// ErrorResponse is the wire envelope for every failed request.
type ErrorResponse struct {
	Status  string `json:"status"`
	Type    string `json:"type,omitempty"`
	Message string `json:"message"`
}

// Validatable is implemented by request bodies that normalize and check
// themselves after decoding.
type Validatable interface {
	Normalize()
	Validate() error
}

// DecodeErrorMapper is implemented by request bodies that translate their own
// decode failures into domain errors. A nil result keeps the generic
// BAD_REQUEST response.
type DecodeErrorMapper interface {
	DecodeError(err error) error
}

// WriteJSON writes v as a JSON body with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError renders err as an error envelope. Domain errors keep their
// message and type; internal errors without a public type collapse to a
// generic SERVER_ERROR so storage details never reach the client.
func WriteError(w http.ResponseWriter, err error) {
	de, ok := dErrors.As(err)
	if !ok {
		de = dErrors.New(dErrors.CodeInternal, serverErrorMessage)
	}

	status := StatusFor(de.Code)
	resp := ErrorResponse{Status: "error", Type: de.Type, Message: de.Message}
	if status == http.StatusInternalServerError && de.Type == "" {
		resp.Type = TypeServerError
		resp.Message = serverErrorMessage
	}
	WriteJSON(w, status, resp)
}

// StatusFor maps an error code to its HTTP status.
func StatusFor(code dErrors.Code) int {
	switch code {
	case dErrors.CodeBadRequest, dErrors.CodeValidation, dErrors.CodeInvalidInput, dErrors.CodeConflict:
		return http.StatusBadRequest
	case dErrors.CodeNotFound:
		return http.StatusNotFound
	case dErrors.CodeUnauthorized:
		return http.StatusUnauthorized
	case dErrors.CodeForbidden:
		return http.StatusForbidden
	case dErrors.CodeTimeout:
		return http.StatusGatewayTimeout
	case dErrors.CodeTooManyRequests:
		return http.StatusTooManyRequests
	case dErrors.CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// DecodeAndPrepare decodes the JSON body into T, then normalizes and
// validates it. On failure it writes the error response and returns false.
func DecodeAndPrepare[T any, PT interface {
	*T
	Validatable
}](w http.ResponseWriter, r *http.Request, logger *slog.Logger, ctx context.Context, requestID string) (*T, bool) {
	var req T
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		msg := "invalid request body"
		if errors.Is(err, io.EOF) {
			msg = "request body is required"
		}
		logger.WarnContext(ctx, "failed to decode request",
			"request_id", requestID,
			"error", err,
		)
		if m, ok := any(PT(&req)).(DecodeErrorMapper); ok {
			if mapped := m.DecodeError(err); mapped != nil {
				WriteError(w, mapped)
				return nil, false
			}
		}
		WriteError(w, dErrors.New(dErrors.CodeBadRequest, msg).WithType(TypeBadRequest))
		return nil, false
	}

	p := PT(&req)
	p.Normalize()
	if err := p.Validate(); err != nil {
		logger.WarnContext(ctx, "invalid request",
			"request_id", requestID,
			"error", err,
		)
		WriteError(w, err)
		return nil, false
	}
	return &req, true
}
