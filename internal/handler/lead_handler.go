package handler

import (
	"net/http"

	"github.com/boddenberg/sales-pipeline-go/internal/domain"
	"github.com/boddenberg/sales-pipeline-go/internal/service"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// Leads
// ============================================================

type transitionLeadRequest struct {
	Status domain.LeadStatus `json:"status"`
	Note   string            `json:"note,omitempty"`
}

func createLeadHandler(svc *service.SalesService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/leads")
		defer span.End()

		var req domain.CreateLeadInput
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		op, _ := OperatorFromContext(ctx)
		lead, err := svc.CreateLead(ctx, op, req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, lead)
	}
}

func listLeadsHandler(svc *service.SalesService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/leads")
		defer span.End()

		page, pageSize := parsePagination(r)
		leads, err := svc.ListLeads(ctx, domain.LeadFilter{
			Status:   domain.LeadStatus(r.URL.Query().Get("status")),
			Page:     page,
			PageSize: pageSize,
		})
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, domain.ListResponse[domain.Lead]{
			Data:     leads,
			Page:     page,
			PageSize: pageSize,
			HasMore:  len(leads) == pageSize,
		})
	}
}

func getLeadHandler(svc *service.SalesService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/leads/{leadId}")
		defer span.End()

		leadID := chi.URLParam(r, "leadId")
		span.SetAttributes(attribute.String("lead.id", leadID))

		lead, err := svc.GetLead(ctx, leadID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, lead)
	}
}

func updateLeadHandler(svc *service.SalesService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PATCH /v1/leads/{leadId}")
		defer span.End()

		leadID := chi.URLParam(r, "leadId")
		span.SetAttributes(attribute.String("lead.id", leadID))

		var req domain.UpdateLeadInput
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		op, _ := OperatorFromContext(ctx)
		lead, err := svc.UpdateLead(ctx, op, leadID, req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, lead)
	}
}

func deleteLeadHandler(svc *service.SalesService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "DELETE /v1/leads/{leadId}")
		defer span.End()

		leadID := chi.URLParam(r, "leadId")
		span.SetAttributes(attribute.String("lead.id", leadID))

		op, _ := OperatorFromContext(ctx)
		if err := svc.DeleteLead(ctx, op, leadID); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, domain.SuccessResponse{Message: "lead deleted", ID: leadID})
	}
}

func transitionLeadHandler(svc *service.SalesService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/leads/{leadId}/status")
		defer span.End()

		leadID := chi.URLParam(r, "leadId")
		span.SetAttributes(attribute.String("lead.id", leadID))

		var req transitionLeadRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.Status == "" {
			writeError(w, http.StatusBadRequest, "status is required")
			return
		}
		span.SetAttributes(attribute.String("lead.to", string(req.Status)))

		op, _ := OperatorFromContext(ctx)
		lead, err := svc.TransitionLead(ctx, op, leadID, req.Status, req.Note)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, lead)
	}
}

// leadTimelineResponse is the timeline with quotes decorated for display.
type leadTimelineResponse struct {
	Lead       *domain.Lead      `json:"lead"`
	Quotes     []quoteResponse   `json:"quotes"`
	Activities []domain.Activity `json:"activities"`
}

func leadTimelineHandler(svc *service.SalesService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/leads/{leadId}/timeline")
		defer span.End()

		leadID := chi.URLParam(r, "leadId")
		span.SetAttributes(attribute.String("lead.id", leadID))

		tl, err := svc.LeadTimeline(ctx, leadID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		now := svc.Now()
		quotes := make([]quoteResponse, len(tl.Quotes))
		for i := range tl.Quotes {
			quotes[i] = newQuoteResponse(&tl.Quotes[i], now)
		}
		writeJSON(w, http.StatusOK, leadTimelineResponse{
			Lead:       tl.Lead,
			Quotes:     quotes,
			Activities: tl.Activities,
		})
	}
}

func pipelineSummaryHandler(svc *service.SalesService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/pipeline/summary")
		defer span.End()

		summary, err := svc.PipelineSummary(ctx)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, summary)
	}
}

// ============================================================
// Public contact form
// ============================================================

func contactFormHandler(svc *service.SalesService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/public/contact")
		defer span.End()

		var req domain.ContactFormInput
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		lead, err := svc.SubmitContactForm(ctx, req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, domain.SuccessResponse{Message: "thank you, we will be in touch", ID: lead.ID})
	}
}
