package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/render"

	"github.com/tendant/simple-media/pkg/simplemedia"
)

// ErrorResponse is the JSON body of every failed request
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// StatusFor maps a service error to its HTTP status code
func StatusFor(err error) int {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	// Both wrap ErrNotFound but describe a bad request, not a missing resource.
	case errors.Is(err, simplemedia.ErrSourceNotReady):
		return http.StatusConflict
	case errors.Is(err, simplemedia.ErrProviderNotFound):
		return http.StatusBadRequest
	case errors.Is(err, simplemedia.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, simplemedia.ErrAlreadyRetired), errors.Is(err, simplemedia.ErrStreamExists):
		return http.StatusConflict
	case errors.Is(err, simplemedia.ErrInvalidRequest), errors.Is(err, simplemedia.ErrEmptyFile):
		return http.StatusBadRequest
	case errors.Is(err, simplemedia.ErrTranscoderNotConfigured):
		return http.StatusNotImplemented
	case errors.Is(err, simplemedia.ErrGenerationFailed),
		errors.Is(err, simplemedia.ErrConversion),
		errors.Is(err, simplemedia.ErrSourceUnavailable):
		return http.StatusBadGateway
	case errors.Is(err, simplemedia.ErrStoreUnavailable), errors.Is(err, simplemedia.ErrQuotaAdjustmentFailed):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "status", status, "err", err)
	} else {
		h.logger.DebugContext(r.Context(), "request rejected", "method", r.Method, "path", r.URL.Path, "status", status, "err", err)
	}
	h.writeStatus(w, r, status, err.Error())
}

func (h *Handler) badRequest(w http.ResponseWriter, r *http.Request, msg string) {
	h.writeStatus(w, r, http.StatusBadRequest, msg)
}

func (h *Handler) writeStatus(w http.ResponseWriter, r *http.Request, status int, msg string) {
	render.Status(r, status)
	render.JSON(w, r, ErrorResponse{Error: http.StatusText(status), Message: msg})
}
