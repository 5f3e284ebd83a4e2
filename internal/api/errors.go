package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/starford/monteerly/internal/apperr"
	"github.com/starford/monteerly/internal/storage"
)

// writeError maps the error taxonomy onto HTTP statuses.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		authErr  *apperr.AuthError
		validErr *apperr.ValidationError
		syncErr  *apperr.SyncError
	)
	switch {
	case errors.As(err, &validErr):
		writeJSON(w, http.StatusUnprocessableEntity, errResponse{Error: "validation failed", Fields: validErr.Fields})
	case errors.As(err, &authErr):
		writeJSON(w, http.StatusUnauthorized, errResponse{Error: "authentication failed", Reason: authErr.Reason})
	case errors.Is(err, apperr.ErrNotAuthenticated):
		writeJSON(w, http.StatusUnauthorized, errorBody("unauthorized"))
	case errors.Is(err, apperr.ErrIllegalTransition):
		writeJSON(w, http.StatusConflict, errorBody(err.Error()))
	case errors.Is(err, apperr.ErrAlreadyExists):
		writeJSON(w, http.StatusConflict, errorBody("already exists"))
	case errors.Is(err, apperr.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
	case errors.Is(err, storage.ErrInvalidName):
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
	case errors.As(err, &syncErr):
		slog.Error("sync failed", slog.String("path", r.URL.Path), slog.String("error", err.Error()))
		writeJSON(w, http.StatusServiceUnavailable, errorBody("sync unavailable"))
	default:
		slog.Error("request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}
