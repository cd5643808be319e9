package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/boddenberg/sales-pipeline-go/internal/domain"
	"github.com/boddenberg/sales-pipeline-go/internal/service"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// Quotes
// ============================================================

// quoteResponse adds the display view to a stored quote. Expiry is computed
// here and never written back.
type quoteResponse struct {
	*domain.Quote
	EffectiveStatus domain.QuoteStatus `json:"effective_status"`
	Expired         bool               `json:"expired"`
	ValidUntil      time.Time          `json:"valid_until"`
	Display         quoteDisplay       `json:"display"`
}

type quoteDisplay struct {
	Subtotal       string `json:"subtotal"`
	DiscountAmount string `json:"discount_amount"`
	VATAmount      string `json:"vat_amount"`
	Total          string `json:"total"`
}

func newQuoteResponse(q *domain.Quote, now time.Time) quoteResponse {
	return quoteResponse{
		Quote:           q,
		EffectiveStatus: q.EffectiveStatus(now),
		Expired:         q.IsExpired(now),
		ValidUntil:      q.ValidUntil(),
		Display: quoteDisplay{
			Subtotal:       domain.FormatMoney(q.Subtotal),
			DiscountAmount: domain.FormatMoney(q.DiscountAmount),
			VATAmount:      domain.FormatMoney(q.VATAmount),
			Total:          domain.FormatMoney(q.Total),
		},
	}
}

type quoteResponseRequest struct {
	Accepted *bool `json:"accepted"`
}

type nextQuoteNumberResponse struct {
	Year        int    `json:"year"`
	QuoteNumber string `json:"quote_number"`
}

func createQuoteHandler(svc *service.SalesService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/quotes")
		defer span.End()

		var req domain.CreateQuoteInput
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		op, _ := OperatorFromContext(ctx)
		q, err := svc.CreateQuote(ctx, op, req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		span.SetAttributes(attribute.String("quote.number", q.QuoteNumber))
		writeJSON(w, http.StatusCreated, newQuoteResponse(q, svc.Now()))
	}
}

func listQuotesHandler(svc *service.SalesService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/quotes")
		defer span.End()

		page, pageSize := parsePagination(r)
		quotes, err := svc.ListQuotes(ctx, domain.QuoteFilter{
			LeadID:   r.URL.Query().Get("lead_id"),
			Status:   domain.QuoteStatus(r.URL.Query().Get("status")),
			Page:     page,
			PageSize: pageSize,
		})
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		now := svc.Now()
		data := make([]quoteResponse, len(quotes))
		for i := range quotes {
			data[i] = newQuoteResponse(&quotes[i], now)
		}
		writeJSON(w, http.StatusOK, domain.ListResponse[quoteResponse]{
			Data:     data,
			Page:     page,
			PageSize: pageSize,
			HasMore:  len(quotes) == pageSize,
		})
	}
}

func getQuoteHandler(svc *service.SalesService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/quotes/{quoteId}")
		defer span.End()

		quoteID := chi.URLParam(r, "quoteId")
		span.SetAttributes(attribute.String("quote.id", quoteID))

		q, err := svc.GetQuote(ctx, quoteID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, newQuoteResponse(q, svc.Now()))
	}
}

func reviseQuoteHandler(svc *service.SalesService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /v1/quotes/{quoteId}")
		defer span.End()

		quoteID := chi.URLParam(r, "quoteId")
		span.SetAttributes(attribute.String("quote.id", quoteID))

		var req domain.ReviseQuoteInput
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		op, _ := OperatorFromContext(ctx)
		q, err := svc.ReviseQuote(ctx, op, quoteID, req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, newQuoteResponse(q, svc.Now()))
	}
}

func sendQuoteHandler(svc *service.SalesService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/quotes/{quoteId}/send")
		defer span.End()

		quoteID := chi.URLParam(r, "quoteId")
		span.SetAttributes(attribute.String("quote.id", quoteID))

		op, _ := OperatorFromContext(ctx)
		q, err := svc.SendQuote(ctx, op, quoteID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, newQuoteResponse(q, svc.Now()))
	}
}

func viewQuoteHandler(svc *service.SalesService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/quotes/{quoteId}/view")
		defer span.End()

		quoteID := chi.URLParam(r, "quoteId")
		span.SetAttributes(attribute.String("quote.id", quoteID))

		q, err := svc.MarkQuoteViewed(ctx, quoteID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, newQuoteResponse(q, svc.Now()))
	}
}

func quoteResponseHandler(svc *service.SalesService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/quotes/{quoteId}/response")
		defer span.End()

		quoteID := chi.URLParam(r, "quoteId")
		span.SetAttributes(attribute.String("quote.id", quoteID))

		var req quoteResponseRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.Accepted == nil {
			writeError(w, http.StatusBadRequest, "accepted is required")
			return
		}

		op, _ := OperatorFromContext(ctx)
		q, err := svc.RecordQuoteResponse(ctx, op, quoteID, *req.Accepted)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, newQuoteResponse(q, svc.Now()))
	}
}

// nextQuoteNumberHandler previews the number the next quote of the year
// would get. It reserves nothing.
func nextQuoteNumberHandler(svc *service.SalesService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/quote-numbers/next")
		defer span.End()

		year := svc.Now().Year()
		if v := r.URL.Query().Get("year"); v != "" {
			y, err := strconv.Atoi(v)
			if err != nil {
				writeError(w, http.StatusBadRequest, "year must be a number")
				return
			}
			year = y
		}

		number, err := svc.NextQuoteNumber(ctx, year)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, nextQuoteNumberResponse{Year: year, QuoteNumber: number})
	}
}
