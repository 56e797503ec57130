package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/habitnest/habitnest/internal/domain"
	"github.com/habitnest/habitnest/internal/logger"
)

// writeDomainError maps service errors onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	var ve *domain.ValidationError
	switch {
	case errors.As(err, &ve):
		writeTypedError(w, http.StatusBadRequest, "validation_error", ve.Error(), ve.Fields)
	case errors.Is(err, domain.ErrAlreadyCheckedIn):
		writeTypedError(w, http.StatusConflict, "already_checked_in", err.Error(), nil)
	case errors.Is(err, domain.ErrAlreadyClaimed):
		writeTypedError(w, http.StatusConflict, "already_claimed", err.Error(), nil)
	case errors.Is(err, domain.ErrLogClosed):
		writeTypedError(w, http.StatusConflict, "log_closed", err.Error(), nil)
	case errors.Is(err, domain.ErrNotCompleted):
		writeTypedError(w, http.StatusUnprocessableEntity, "not_completed", err.Error(), nil)
	case errors.Is(err, domain.ErrNotFound):
		writeTypedError(w, http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.Is(err, domain.ErrTransientStore):
		w.Header().Set("Retry-After", "1")
		writeTypedError(w, http.StatusServiceUnavailable, "unavailable", "temporarily unavailable, retry", nil)
	default:
		logger.Error("request failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// requestLogger logs each request at debug level, and server errors at warn.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		kv := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		}
		if ww.Status() >= http.StatusInternalServerError {
			logger.Warn("http request", kv...)
			return
		}
		logger.Debug("http request", kv...)
	})
}
