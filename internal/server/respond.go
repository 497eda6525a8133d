package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	feed "github.com/eugener/feedcache/internal"
)

type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func errorResponse(msg string) apiError {
	var e apiError
	e.Error.Message = msg
	e.Error.Type = "feed_error"
	return e
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, feed.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, feed.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, feed.ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, feed.ErrConnectivity), errors.Is(err, feed.ErrInvalidData):
		return http.StatusBadGateway
	case errors.Is(err, feed.ErrStoreClosed), errors.Is(err, feed.ErrLoaderClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// writeError logs server-side failures and hides their detail from clients.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := errorStatus(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		slog.LogAttrs(r.Context(), slog.LevelError, "request failed",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
			slog.String("request_id", feed.RequestIDFromContext(r.Context())),
		)
		msg = "internal server error"
	}
	writeJSON(w, status, errorResponse(msg))
}

var jsonCT = []string{"application/json"}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header()["Content-Type"] = jsonCT
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
