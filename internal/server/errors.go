package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/maauso/thumbnail-studio/internal/pipeline"
	"github.com/maauso/thumbnail-studio/internal/session"
	"github.com/maauso/thumbnail-studio/internal/storage"
)

// statusFor maps domain errors to an HTTP status and error code.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		return http.StatusNotFound, "SESSION_NOT_FOUND"
	case errors.Is(err, pipeline.ErrFrameNotFound):
		return http.StatusNotFound, "FRAME_NOT_FOUND"
	case errors.Is(err, pipeline.ErrValidation):
		return http.StatusBadRequest, "VALIDATION_ERROR"
	case errors.Is(err, pipeline.ErrPrecondition):
		return http.StatusConflict, "PRECONDITION_FAILED"
	case errors.Is(err, pipeline.ErrFrameCapture):
		return http.StatusUnprocessableEntity, "FRAME_CAPTURE_FAILED"
	case errors.Is(err, pipeline.ErrGeneration):
		return http.StatusBadGateway, "GENERATION_FAILED"
	case errors.Is(err, pipeline.ErrSuperseded):
		return http.StatusConflict, "SUPERSEDED"
	case errors.Is(err, pipeline.ErrSessionClosed):
		return http.StatusGone, "SESSION_CLOSED"
	case errors.Is(err, storage.ErrPublishNotConfigured):
		return http.StatusNotImplemented, "EXPORT_NOT_CONFIGURED"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusGatewayTimeout, "TIMEOUT"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR"
	}
}

// writeDomainError writes err using statusFor. Internal errors are not echoed to the client.
func writeDomainError(w http.ResponseWriter, err error) {
	status, code := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal server error"
	}
	writeError(w, status, msg, code)
}
