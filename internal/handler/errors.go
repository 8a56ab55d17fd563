package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/pavelanni/testgen/internal/i18n"
	"github.com/pavelanni/testgen/internal/model"
	"github.com/pavelanni/testgen/internal/pipeline"
)

// errorMessages names the translation used for each expected outcome of a route.
type errorMessages struct {
	notFound string
	conflict string
}

type errorResponse struct {
	Error string `json:"error"`
	Stage string `json:"stage,omitempty"`
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeError maps domain errors to status codes. Pipeline failures only
// expose their stage; anything unexpected is logged and reported as 500.
func writeError(w http.ResponseWriter, r *http.Request, err error, msgs errorMessages) {
	ctx := r.Context()

	var failure *pipeline.Failure
	switch {
	case errors.As(err, &failure):
		writeJSON(w, http.StatusInternalServerError, errorResponse{
			Error: i18n.T(ctx, "ProcessingFailed"),
			Stage: string(failure.Stage),
		})
	case errors.Is(err, model.ErrTestNotFound):
		writeMessage(w, http.StatusNotFound, i18n.T(ctx, "TestNotFound"))
	case errors.Is(err, model.ErrNotFound):
		writeMessage(w, http.StatusNotFound, i18n.T(ctx, orDefault(msgs.notFound, "SessionNotFound")))
	case errors.Is(err, model.ErrConflict):
		writeMessage(w, http.StatusConflict, i18n.T(ctx, orDefault(msgs.conflict, "SessionConflict")))
	default:
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeMessage(w, http.StatusInternalServerError, i18n.T(ctx, "InternalError"))
	}
}

func orDefault(id, fallback string) string {
	if id == "" {
		return fallback
	}
	return id
}
