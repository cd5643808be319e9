package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/boddenberg/sales-pipeline-go/internal/domain"
	"github.com/boddenberg/sales-pipeline-go/internal/handler"
	"github.com/boddenberg/sales-pipeline-go/internal/infra/cache"
	"github.com/boddenberg/sales-pipeline-go/internal/infra/memory"
	"github.com/boddenberg/sales-pipeline-go/internal/infra/observability"
	"github.com/boddenberg/sales-pipeline-go/internal/service"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var secret = []byte("test-secret")

// journalStore fails AppendActivity while failAppend is set.
type journalStore struct {
	*memory.Store
	failAppend atomic.Bool
}

func (s *journalStore) AppendActivity(ctx context.Context, a *domain.Activity) (*domain.Activity, error) {
	if s.failAppend.Load() {
		return nil, errors.New("connection reset by peer")
	}
	return s.Store.AppendActivity(ctx, a)
}

type testServer struct {
	router http.Handler
	store  *journalStore
	token  string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	store := &journalStore{Store: memory.NewStore()}
	metrics := observability.NewMetrics()
	svc := service.NewSalesService(store, cache.New[*domain.Lead](ctx, time.Minute), domain.QuoteDefaults{
		VATPercent:   24,
		ValidityDays: 30,
	}, metrics, zap.NewNop())

	return &testServer{
		router: handler.NewRouter(svc, metrics, secret, zap.NewNop()),
		store:  store,
		token:  mintToken(t, secret, "op-1"),
	}
}

func mintToken(t *testing.T, key []byte, sub string) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  sub,
		"name": "Maria",
		"exp":  time.Now().Add(time.Hour).Unix(),
	})
	s, err := tok.SignedString(key)
	require.NoError(t, err)
	return s
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(buf.Bytes()))
	req.Header.Set("Content-Type", "application/json")
	if ts.token != "" {
		req.Header.Set("Authorization", "Bearer "+ts.token)
	}
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (ts *testServer) createLead(t *testing.T) string {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/v1/leads", map[string]any{
		"name": "Eleni Papadopoulou", "phone": "+30 210 000 0000", "project_type": "kitchen",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[domain.Lead](t, rec).ID
}

func (ts *testServer) createQuote(t *testing.T, leadID string) string {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/v1/quotes", map[string]any{
		"lead_id":          leadID,
		"title":            "Kitchen renovation",
		"discount_percent": 10,
		"items": []map[string]any{
			{"category": "cabinet", "name": "Base cabinet", "quantity": 2, "unit_price": 1000},
			{"category": "installation", "name": "Fitting", "quantity": 1, "unit_price": 500},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[map[string]any](t, rec)["id"].(string)
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, "/healthz", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decode[domain.HealthStatus](t, rec).Status)
}

func TestReadyz(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMetrics(t *testing.T) {
	ts := newTestServer(t)
	ts.createLead(t)

	rec := ts.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "pipeline_operation_duration_seconds")
}

func TestOperatorRoutesRequireToken(t *testing.T) {
	ts := newTestServer(t)

	ts.token = ""
	assert.Equal(t, http.StatusUnauthorized, ts.do(t, http.MethodGet, "/v1/leads", nil).Code)

	ts.token = mintToken(t, []byte("someone-else"), "op-1")
	assert.Equal(t, http.StatusUnauthorized, ts.do(t, http.MethodGet, "/v1/leads", nil).Code)

	ts.token = mintToken(t, secret, "")
	assert.Equal(t, http.StatusUnauthorized, ts.do(t, http.MethodGet, "/v1/leads", nil).Code)
}

func TestContactFormIsPublic(t *testing.T) {
	ts := newTestServer(t)
	token := ts.token
	ts.token = ""

	rec := ts.do(t, http.MethodPost, "/v1/public/contact", map[string]any{
		"name": "Nikos", "phone": "6900000000", "project_type": "closet", "message": "Walk-in closet, 3m wall",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	id := decode[domain.SuccessResponse](t, rec).ID
	require.NotEmpty(t, id)

	ts.token = token
	rec = ts.do(t, http.MethodGet, "/v1/leads/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	lead := decode[domain.Lead](t, rec)
	assert.Equal(t, domain.LeadSourceWebsite, lead.Source)
	assert.Equal(t, domain.LeadStatusNew, lead.Status)
}

func TestCreateLeadValidation(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/v1/leads", map[string]any{"phone": "210"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodGet, "/v1/leads/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLeadTransitions(t *testing.T) {
	ts := newTestServer(t)
	leadID := ts.createLead(t)

	rec := ts.do(t, http.MethodPost, "/v1/leads/"+leadID+"/status", map[string]any{"status": "contacted", "note": "called"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, domain.LeadStatusContacted, decode[domain.Lead](t, rec).Status)

	rec = ts.do(t, http.MethodPost, "/v1/leads/"+leadID+"/status", map[string]any{"status": "archived"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = ts.do(t, http.MethodPost, "/v1/leads/"+leadID+"/status", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodGet, "/v1/leads/"+leadID+"/activities", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	activities := decode[[]domain.Activity](t, rec)
	require.Len(t, activities, 1)
	assert.Equal(t, domain.ActivityStatusChange, activities[0].Type)
	assert.Equal(t, "op-1", activities[0].CreatedBy)
}

func TestQuoteAcceptedWinsLead(t *testing.T) {
	ts := newTestServer(t)
	leadID := ts.createLead(t)
	quoteID := ts.createQuote(t, leadID)

	rec := ts.do(t, http.MethodGet, "/v1/quotes/"+quoteID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.Equal(t, "draft", body["effective_status"])
	assert.Equal(t, "2790.00", body["display"].(map[string]any)["total"])

	rec = ts.do(t, http.MethodPost, "/v1/quotes/"+quoteID+"/send", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "sent", decode[map[string]any](t, rec)["status"])

	rec = ts.do(t, http.MethodPost, "/v1/quotes/"+quoteID+"/response", map[string]any{"accepted": true})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "accepted", decode[map[string]any](t, rec)["status"])

	rec = ts.do(t, http.MethodGet, "/v1/leads/"+leadID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.LeadStatusWon, decode[domain.Lead](t, rec).Status)

	rec = ts.do(t, http.MethodGet, "/v1/leads/"+leadID+"/timeline", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	tl := decode[map[string]any](t, rec)
	assert.Len(t, tl["quotes"], 1)
	assert.Len(t, tl["activities"], 2)

	rec = ts.do(t, http.MethodDelete, "/v1/leads/"+leadID, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestQuoteResponseRequiresDecision(t *testing.T) {
	ts := newTestServer(t)
	quoteID := ts.createQuote(t, ts.createLead(t))

	rec := ts.do(t, http.MethodPost, "/v1/quotes/"+quoteID+"/response", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, "/v1/quotes/"+quoteID+"/response", map[string]any{"accepted": false})
	assert.Equal(t, http.StatusConflict, rec.Code, "a draft cannot be answered")
}

func TestPartialSyncReportsCompletedSteps(t *testing.T) {
	ts := newTestServer(t)
	leadID := ts.createLead(t)
	quoteID := ts.createQuote(t, leadID)

	ts.store.failAppend.Store(true)
	rec := ts.do(t, http.MethodPost, "/v1/quotes/"+quoteID+"/send", nil)
	require.Equal(t, http.StatusBadGateway, rec.Code, rec.Body.String())

	body := decode[map[string]any](t, rec)
	assert.Equal(t, true, body["retryable"])
	assert.Equal(t, "activity", body["failed"])
	assert.Equal(t, []any{"quote", "lead"}, body["completed"])

	ts.store.failAppend.Store(false)
	rec = ts.do(t, http.MethodPost, "/v1/quotes/"+quoteID+"/send", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = ts.do(t, http.MethodGet, "/v1/leads/"+leadID+"/activities", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]domain.Activity](t, rec), 1)
}

func TestNextQuoteNumber(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/v1/quote-numbers/next?year=2031", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Q-2031-001", decode[map[string]any](t, rec)["quote_number"])

	rec = ts.do(t, http.MethodGet, "/v1/quote-numbers/next?year=abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodGet, "/v1/quote-numbers/next?year=99", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPipelineSummary(t *testing.T) {
	ts := newTestServer(t)
	ts.createLead(t)
	ts.createLead(t)

	rec := ts.do(t, http.MethodGet, "/v1/pipeline/summary", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	summary := decode[domain.PipelineSummary](t, rec)
	assert.Equal(t, 2, summary.Total)
	assert.Equal(t, 2, summary.ByStage[domain.LeadStatusNew])

	rec = ts.do(t, http.MethodGet, "/v1/metrics/pipeline", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
