package supabase

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/boddenberg/sales-pipeline-go/internal/domain"
	"github.com/boddenberg/sales-pipeline-go/internal/infra/resilience"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := resilience.Config{MaxRetries: 2, InitialBackoff: time.Millisecond, MaxConcurrency: 4}
	return NewClient(srv.Client(), srv.URL, "anon", "service-role", resilience.NewCircuitBreaker("supabase-test"), cfg, zap.NewNop())
}

func TestClient_SendsAuthHeaders(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "anon", r.Header.Get("apikey"))
		assert.Equal(t, "Bearer service-role", r.Header.Get("Authorization"))
		assert.Equal(t, "/rest/v1/leads", r.URL.Path)
		_, _ = w.Write([]byte(`[]`))
	})

	require.NoError(t, c.Ping(context.Background()))
}

func TestClient_GetLead(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("id") == "eq.lead-1" {
			_, _ = w.Write([]byte(`[{"id":"lead-1","name":"Eleni","phone":"210","source":"website","project_type":"kitchen","status":"contacted","created_at":"2026-03-10T09:00:00+00:00","updated_at":"2026-03-10T09:00:00+00:00"}]`))
			return
		}
		_, _ = w.Write([]byte(`[]`))
	})

	lead, err := c.GetLead(context.Background(), "lead-1")
	require.NoError(t, err)
	assert.Equal(t, "Eleni", lead.Name)
	assert.Equal(t, domain.LeadStatusContacted, lead.Status)

	_, err = c.GetLead(context.Background(), "missing")
	var nf *domain.ErrNotFound
	assert.ErrorAs(t, err, &nf)
}

func TestClient_CreateQuoteCollision(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"code":"23505","message":"duplicate key value violates unique constraint \"quotes_quote_number_key\"","details":"Key (quote_number)=(Q-2026-001) already exists."}`))
	})

	_, err := c.CreateQuote(context.Background(), &domain.Quote{QuoteNumber: "Q-2026-001", Status: domain.QuoteStatusDraft})
	var collision *domain.ErrSequencingCollision
	require.ErrorAs(t, err, &collision)
	assert.Equal(t, "Q-2026-001", collision.Number)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "duplicates are not retried")
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		body["created_at"] = "2026-03-10T09:00:00Z"
		_ = json.NewEncoder(w).Encode([]map[string]any{body})
	})

	a, err := c.AppendActivity(context.Background(), &domain.Activity{
		LeadID: "lead-1", Type: domain.ActivityNote, Title: "Called back", CreatedAt: time.Now(),
	})
	require.NoError(t, err)
	assert.Equal(t, "Called back", a.Title)
	assert.NotEmpty(t, a.ID)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestClient_UpdateLead(t *testing.T) {
	var patched map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPatch, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&patched))
		if r.URL.Query().Get("id") == "eq.lead-1" {
			_, _ = w.Write([]byte(`[{"id":"lead-1"}]`))
			return
		}
		_, _ = w.Write([]byte(`[]`))
	})
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	require.NoError(t, c.UpdateLead(ctx, "lead-1", map[string]any{"status": "won", "updated_at": now}))
	assert.Equal(t, "won", patched["status"])
	assert.Equal(t, "2026-03-10T09:00:00Z", patched["updated_at"])

	err := c.UpdateLead(ctx, "missing", map[string]any{"status": "won"})
	var nf *domain.ErrNotFound
	assert.ErrorAs(t, err, &nf)

	err = c.UpdateLead(ctx, "lead-1", map[string]any{"id": "other"})
	var ve *domain.ErrValidation
	assert.ErrorAs(t, err, &ve)
}

func TestClient_ListQuoteNumbersUsesPrefix(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "like.Q-2026-*", r.URL.Query().Get("quote_number"))
		assert.Equal(t, "quote_number", r.URL.Query().Get("select"))
		_, _ = w.Write([]byte(`[{"quote_number":"Q-2026-001"},{"quote_number":"Q-2026-002"}]`))
	})

	numbers, err := c.ListQuoteNumbers(context.Background(), "Q-2026-")
	require.NoError(t, err)
	assert.Equal(t, []string{"Q-2026-001", "Q-2026-002"}, numbers)
}

func TestClient_GetQuoteFlattensCustomer(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/rest/v1/quotes":
			_, _ = w.Write([]byte(`[{"id":"q-1","quote_number":"Q-2026-007","lead_id":"lead-1","customer_name":"Eleni","customer_phone":"210","title":"Kitchen","status":"sent","total":2790,"validity_days":30,"created_at":"2026-03-10T09:00:00Z"}]`))
		case "/rest/v1/quote_items":
			assert.Equal(t, "sort_order.asc", r.URL.Query().Get("order"))
			_, _ = w.Write([]byte(`[{"id":"i-1","quote_id":"q-1","category":"cabinet","name":"Base","quantity":2,"unit_price":1000,"total_price":2000,"sort_order":0}]`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	q, err := c.GetQuote(context.Background(), "q-1")
	require.NoError(t, err)
	assert.Equal(t, "Eleni", q.Customer.Name)
	assert.Equal(t, domain.QuoteStatusSent, q.Status)
	require.NotNil(t, q.LeadID)
	assert.Equal(t, "lead-1", *q.LeadID)
	require.Len(t, q.Items, 1)
	assert.Equal(t, 2000.0, q.Items[0].TotalPrice)
}

func TestClient_CircuitOpens(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	c.cfg.MaxRetries = 0

	var last error
	for i := 0; i < 6; i++ {
		last = c.Ping(context.Background())
	}
	var open *domain.ErrCircuitOpen
	assert.ErrorAs(t, last, &open)
}

func TestClient_ExternalErrorWrapsCause(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":"PGRST100","message":"bad filter"}`))
	})

	_, err := c.ListLeads(context.Background(), domain.LeadFilter{})
	var ext *domain.ErrExternalService
	require.ErrorAs(t, err, &ext)
	assert.Equal(t, "supabase/ListLeads", ext.Service)
	var apiErr *apiError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "PGRST100", apiErr.Code)
}

func TestClient_JournalTable(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/v1/lead_activities", r.URL.Path)
		if r.Method == http.MethodPost {
			var row domain.Activity
			require.NoError(t, json.NewDecoder(r.Body).Decode(&row))
			require.NoError(t, json.NewEncoder(w).Encode([]domain.Activity{row}))
			return
		}
		assert.Equal(t, "eq.quote_sent", r.URL.Query().Get("type"))
		_, _ = w.Write([]byte(`[]`))
	})

	created, err := c.AppendActivity(context.Background(), &domain.Activity{
		LeadID: "lead-1", Type: domain.ActivityNote, Title: "Called back", CreatedAt: time.Now(),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)

	found, err := c.FindActivity(context.Background(), "lead-1", "quote-1", domain.ActivityQuoteSent)
	require.NoError(t, err)
	assert.Nil(t, found)
}
