package handler

import (
	"net/http"
	"time"

	"github.com/boddenberg/sales-pipeline-go/internal/domain"
	"github.com/boddenberg/sales-pipeline-go/internal/infra/observability"
	"github.com/boddenberg/sales-pipeline-go/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("handler")

// NewRouter creates the HTTP router with all routes and middleware.
// Operator routes need a Bearer token signed with jwtSecret; the contact
// form is public.
func NewRouter(svc *service.SalesService, metrics *observability.Metrics, jwtSecret []byte, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.TracingMiddleware)
	r.Use(observability.ZapLoggerMiddleware(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))

	// --- Operational endpoints ---
	r.Get("/healthz", healthzHandler(svc))
	r.Get("/readyz", readyzHandler())
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	r.Route("/v1", func(r chi.Router) {
		r.Post("/public/contact", contactFormHandler(svc, logger))

		r.Group(func(r chi.Router) {
			r.Use(OperatorAuthMiddleware(jwtSecret, logger))

			r.Get("/metrics/pipeline", pipelineMetricsHandler(metrics))
			r.Get("/pipeline/summary", pipelineSummaryHandler(svc, logger))

			r.Route("/leads", func(r chi.Router) {
				r.Post("/", createLeadHandler(svc, logger))
				r.Get("/", listLeadsHandler(svc, logger))
				r.Get("/{leadId}", getLeadHandler(svc, logger))
				r.Patch("/{leadId}", updateLeadHandler(svc, logger))
				r.Delete("/{leadId}", deleteLeadHandler(svc, logger))
				r.Post("/{leadId}/status", transitionLeadHandler(svc, logger))
				r.Get("/{leadId}/timeline", leadTimelineHandler(svc, logger))
				r.Get("/{leadId}/activities", listActivitiesHandler(svc, logger))
				r.Post("/{leadId}/activities", appendActivityHandler(svc, logger))
			})

			r.Route("/quotes", func(r chi.Router) {
				r.Post("/", createQuoteHandler(svc, logger))
				r.Get("/", listQuotesHandler(svc, logger))
				r.Get("/{quoteId}", getQuoteHandler(svc, logger))
				r.Put("/{quoteId}", reviseQuoteHandler(svc, logger))
				r.Post("/{quoteId}/send", sendQuoteHandler(svc, logger))
				r.Post("/{quoteId}/view", viewQuoteHandler(svc, logger))
				r.Post("/{quoteId}/response", quoteResponseHandler(svc, logger))
			})

			r.Get("/quote-numbers/next", nextQuoteNumberHandler(svc, logger))
		})
	})

	return r
}

func healthzHandler(svc *service.SalesService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		now := time.Now().Format(time.RFC3339)

		start := time.Now()
		err := svc.Ping(r.Context())
		latency := time.Since(start).Milliseconds()

		status := "healthy"
		if err != nil {
			status = "degraded"
		}
		writeJSON(w, http.StatusOK, domain.HealthStatus{
			Status: status,
			Services: []domain.ServiceHealth{
				{Name: "pipeline-api", Status: "healthy", LastChecked: now},
				{Name: "store", Status: status, LatencyMs: latency, LastChecked: now},
			},
		})
	}
}

func readyzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func pipelineMetricsHandler(metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, metrics.GetPipelineSnapshot())
	}
}
