// Package service provides the business logic layer (use cases).
// SalesService runs the sales pipeline: leads and their stages, quotes and
// their lifecycle, the activity journal, and the rules that keep the three
// consistent when a quote changes state.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/boddenberg/sales-pipeline-go/internal/domain"
	"github.com/boddenberg/sales-pipeline-go/internal/infra/observability"
	"github.com/boddenberg/sales-pipeline-go/internal/port"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var salesTracer = otel.Tracer("service/sales")

// SalesService orchestrates every pipeline operation over a SalesStore.
type SalesService struct {
	store    port.SalesStore
	cache    port.Cache[*domain.Lead]
	clock    port.Clock
	defaults domain.QuoteDefaults
	metrics  *observability.Metrics
	logger   *zap.Logger
}

// NewSalesService creates a new sales service. cache may be nil.
func NewSalesService(
	store port.SalesStore,
	cache port.Cache[*domain.Lead],
	defaults domain.QuoteDefaults,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *SalesService {
	return &SalesService{
		store:    store,
		cache:    cache,
		clock:    realClock{},
		defaults: defaults,
		metrics:  metrics,
		logger:   logger,
	}
}

// WithClock replaces the wall clock. Used by tests.
func (s *SalesService) WithClock(c port.Clock) *SalesService {
	s.clock = c
	return s
}

// Ping checks the store.
func (s *SalesService) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }

// Now is the service clock. Lifecycle timestamps and expiry use it.
func (s *SalesService) Now() time.Time {
	return s.clock.Now()
}

func leadCacheKey(leadID string) string {
	return "lead:" + leadID
}

func (s *SalesService) invalidateLead(leadID string) {
	if s.cache != nil {
		s.cache.Delete(leadCacheKey(leadID))
	}
}

func (s *SalesService) observe(operation string, start time.Time) {
	s.metrics.RecordRequestDuration(operation, time.Since(start))
}

func (s *SalesService) storeError(operation string, err error) {
	var nf *domain.ErrNotFound
	if !errors.As(err, &nf) {
		s.metrics.IncrStoreError(operation)
	}
}

func validationErr(field, msg string) error {
	return &domain.ErrValidation{Field: field, Message: msg}
}

func strPtr(s string) *string { return &s }
