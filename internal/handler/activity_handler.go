package handler

import (
	"net/http"

	"github.com/boddenberg/sales-pipeline-go/internal/domain"
	"github.com/boddenberg/sales-pipeline-go/internal/service"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

func listActivitiesHandler(svc *service.SalesService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/leads/{leadId}/activities")
		defer span.End()

		leadID := chi.URLParam(r, "leadId")
		span.SetAttributes(attribute.String("lead.id", leadID))

		activities, err := svc.ListActivities(ctx, leadID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, activities)
	}
}

// appendActivityHandler records a manual journal entry. The lead comes from
// the path; a lead_id in the body is ignored.
func appendActivityHandler(svc *service.SalesService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/leads/{leadId}/activities")
		defer span.End()

		leadID := chi.URLParam(r, "leadId")
		span.SetAttributes(attribute.String("lead.id", leadID))

		var req domain.AppendActivityInput
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		req.LeadID = leadID

		op, _ := OperatorFromContext(ctx)
		activity, err := svc.AppendActivity(ctx, op, req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, activity)
	}
}
