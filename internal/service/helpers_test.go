package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/boddenberg/sales-pipeline-go/internal/domain"
	"github.com/boddenberg/sales-pipeline-go/internal/infra/cache"
	"github.com/boddenberg/sales-pipeline-go/internal/infra/memory"
	"github.com/boddenberg/sales-pipeline-go/internal/infra/observability"
	"github.com/boddenberg/sales-pipeline-go/internal/service"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var (
	operator  = domain.Operator{ID: "op-1", Name: "Maria"}
	errBroken = errors.New("connection reset by peer")
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// flakyStore wraps the memory store and fails selected writes on demand.
type flakyStore struct {
	*memory.Store

	mu              sync.Mutex
	failAppend      bool
	failUpdateLead  bool
	failUpdateQuote bool
	hideNumbers     bool
}

func (f *flakyStore) set(fn func(f *flakyStore)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *flakyStore) AppendActivity(ctx context.Context, a *domain.Activity) (*domain.Activity, error) {
	f.mu.Lock()
	fail := f.failAppend
	f.mu.Unlock()
	if fail {
		return nil, errBroken
	}
	return f.Store.AppendActivity(ctx, a)
}

func (f *flakyStore) UpdateLead(ctx context.Context, leadID string, updates map[string]any) error {
	f.mu.Lock()
	fail := f.failUpdateLead
	f.mu.Unlock()
	if fail {
		return errBroken
	}
	return f.Store.UpdateLead(ctx, leadID, updates)
}

func (f *flakyStore) UpdateQuote(ctx context.Context, quoteID string, u domain.QuoteUpdate) error {
	f.mu.Lock()
	fail := f.failUpdateQuote
	f.mu.Unlock()
	if fail {
		return errBroken
	}
	return f.Store.UpdateQuote(ctx, quoteID, u)
}

func (f *flakyStore) ListQuoteNumbers(ctx context.Context, prefix string) ([]string, error) {
	f.mu.Lock()
	hide := f.hideNumbers
	f.mu.Unlock()
	if hide {
		return nil, nil
	}
	return f.Store.ListQuoteNumbers(ctx, prefix)
}

type fixture struct {
	svc   *service.SalesService
	store *flakyStore
	clock *fakeClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	clock := &fakeClock{t: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)}
	store := &flakyStore{Store: memory.NewStore().WithClock(clock.Now)}
	defaults := domain.QuoteDefaults{
		VATPercent:   24,
		ValidityDays: 30,
		PaymentTerms: "40% on order",
		DeliveryTime: "6 weeks",
		Warranty:     "5 years",
	}
	svc := service.NewSalesService(store, cache.New[*domain.Lead](ctx, time.Minute), defaults, observability.NewMetrics(), zap.NewNop()).
		WithClock(clock)

	return &fixture{svc: svc, store: store, clock: clock}
}

func (f *fixture) lead(t *testing.T) *domain.Lead {
	t.Helper()
	lead, err := f.svc.CreateLead(context.Background(), operator, domain.CreateLeadInput{
		Name:        "Eleni Papadopoulou",
		Phone:       "+30 210 1234567",
		Email:       "eleni@example.com",
		Address:     "Ermou 12",
		Source:      domain.LeadSourceShowroom,
		ProjectType: domain.ProjectTypeKitchen,
	})
	require.NoError(t, err)
	return lead
}

func kitchenItems() []domain.QuoteItemInput {
	return []domain.QuoteItemInput{
		{Category: domain.ItemCategoryCabinet, Name: "Base cabinet 60cm", Quantity: 2, UnitPrice: 1000},
		{Category: domain.ItemCategoryInstallation, Name: "Installation", Quantity: 1, UnitPrice: 500},
	}
}

func (f *fixture) quote(t *testing.T, leadID *string) *domain.Quote {
	t.Helper()
	q, err := f.svc.CreateQuote(context.Background(), operator, domain.CreateQuoteInput{
		LeadID:          leadID,
		Customer:        &domain.Customer{Name: "Walk-in customer"},
		Title:           "Kitchen renovation",
		Items:           kitchenItems(),
		DiscountPercent: 10,
	})
	require.NoError(t, err)
	return q
}

func (f *fixture) activities(t *testing.T, leadID string, typ domain.ActivityType) []domain.Activity {
	t.Helper()
	all, err := f.store.ListActivities(context.Background(), leadID)
	require.NoError(t, err)
	var out []domain.Activity
	for _, a := range all {
		if a.Type == typ {
			out = append(out, a)
		}
	}
	return out
}

func (f *fixture) leadStatus(t *testing.T, leadID string) domain.LeadStatus {
	t.Helper()
	l, err := f.store.GetLead(context.Background(), leadID)
	require.NoError(t, err)
	return l.Status
}
