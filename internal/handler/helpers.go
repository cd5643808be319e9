package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/boddenberg/sales-pipeline-go/internal/domain"

	"go.uber.org/zap"
)

// ============================================================
// Shared helper functions
// ============================================================

type errorResponse struct {
	Error string `json:"error"`
}

// partialSyncResponse tells the caller which steps were committed. Every step
// is idempotent, so the same request can be sent again.
type partialSyncResponse struct {
	Error     string   `json:"error"`
	Operation string   `json:"operation"`
	Completed []string `json:"completed"`
	Failed    string   `json:"failed"`
	Retryable bool     `json:"retryable"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// decodeJSON reads the request body into v. An empty body leaves v untouched.
func decodeJSON(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	return json.NewDecoder(r.Body).Decode(v)
}

func parsePagination(r *http.Request) (page, pageSize int) {
	page = 1
	pageSize = 20
	if v := r.URL.Query().Get("page"); v != "" {
		if p, err := strconv.Atoi(v); err == nil && p > 0 {
			page = p
		}
	}
	if v := r.URL.Query().Get("page_size"); v != "" {
		if ps, err := strconv.Atoi(v); err == nil && ps > 0 && ps <= 100 {
			pageSize = ps
		}
	}
	return
}

// handleServiceError maps domain errors to HTTP responses.
func handleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	var notFound *domain.ErrNotFound
	var circuitOpen *domain.ErrCircuitOpen
	var validation *domain.ErrValidation
	var transition *domain.ErrInvalidTransition
	var collision *domain.ErrSequencingCollision
	var partial *domain.ErrPartialSync
	var unauthorized *domain.ErrUnauthorized
	var conflict *domain.ErrConflict

	switch {
	case errors.As(err, &partial):
		// Checked first: it wraps the cause of the failed step.
		logger.Error("partial synchronization",
			zap.String("operation", partial.Operation),
			zap.Strings("completed", partial.Completed),
			zap.String("failed", partial.Failed),
			zap.Error(err),
		)
		completed := partial.Completed
		if completed == nil {
			completed = []string{}
		}
		writeJSON(w, http.StatusBadGateway, partialSyncResponse{
			Error:     err.Error(),
			Operation: partial.Operation,
			Completed: completed,
			Failed:    partial.Failed,
			Retryable: true,
		})
	case errors.As(err, &notFound):
		logger.Debug("not found", zap.String("error", err.Error()))
		writeError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &circuitOpen):
		logger.Error("circuit breaker open", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.As(err, &validation):
		logger.Debug("validation error", zap.String("error", err.Error()))
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &transition):
		logger.Debug("invalid transition",
			zap.String("entity", transition.Entity),
			zap.String("from", transition.From),
			zap.String("to", transition.To),
		)
		writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &collision):
		logger.Warn("quote number collision", zap.String("quote_number", collision.Number))
		writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &unauthorized):
		logger.Warn("unauthorized", zap.String("error", err.Error()))
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.As(err, &conflict):
		logger.Debug("conflict", zap.String("error", err.Error()))
		writeError(w, http.StatusConflict, err.Error())
	default:
		logger.Error("unhandled error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
