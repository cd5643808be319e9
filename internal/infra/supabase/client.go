// Package supabase provides a client for Supabase (PostgREST).
// It implements port.SalesStore over the leads, quotes, quote_items and
// lead_activities tables.
package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/boddenberg/sales-pipeline-go/internal/domain"
	"github.com/boddenberg/sales-pipeline-go/internal/infra/resilience"
	"github.com/boddenberg/sales-pipeline-go/internal/port"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("supabase")

var _ port.SalesStore = (*Client)(nil)

// Client wraps HTTP calls to Supabase PostgREST API.
type Client struct {
	httpClient     *http.Client
	baseURL        string
	apiKey         string
	serviceRoleKey string
	cb             *gobreaker.CircuitBreaker
	bulkhead       *resilience.Bulkhead
	cfg            resilience.Config
	logger         *zap.Logger
}

// NewClient creates a Supabase client.
func NewClient(httpClient *http.Client, baseURL, apiKey, serviceRoleKey string, cb *gobreaker.CircuitBreaker, cfg resilience.Config, logger *zap.Logger) *Client {
	return &Client{
		httpClient:     httpClient,
		baseURL:        strings.TrimRight(baseURL, "/"),
		apiKey:         apiKey,
		serviceRoleKey: serviceRoleKey,
		cb:             cb,
		bulkhead:       resilience.NewBulkhead(cfg.MaxConcurrency),
		cfg:            cfg,
		logger:         logger,
	}
}

// apiError is a non-2xx PostgREST answer.
type apiError struct {
	Status  int
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
}

func (e *apiError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("supabase returned status %d (%s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("supabase returned status %d: %s", e.Status, e.Message)
}

// uniqueViolation reports a duplicate key on the given column.
func (e *apiError) uniqueViolation(column string) bool {
	if e.Code != "23505" && e.Status != http.StatusConflict {
		return false
	}
	return column == "" || strings.Contains(e.Message+" "+e.Details, column)
}

func newAPIError(status int, body []byte) *apiError {
	e := &apiError{Status: status}
	if err := json.Unmarshal(body, e); err != nil || e.Message == "" {
		e.Message = string(body)
	}
	return e
}

// retryable reports whether a status may succeed on a later attempt.
func retryable(status int) bool {
	return status >= 500 || status == http.StatusRequestTimeout || status == http.StatusTooManyRequests
}

// doRequest executes an authenticated request to Supabase PostgREST.
// A nil payload sends no body. Non-retryable answers come back wrapped with
// resilience.Permanent.
func (c *Client) doRequest(ctx context.Context, method, path string, payload any, prefer string) ([]byte, error) {
	url := fmt.Sprintf("%s/rest/v1/%s", c.baseURL, path)

	var reader io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, resilience.Permanent(err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		c.logger.Error("supabase: failed to create request",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err),
		)
		return nil, resilience.Permanent(err)
	}

	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.serviceRoleKey))
	req.Header.Set("Content-Type", "application/json")
	if prefer != "" {
		req.Header.Set("Prefer", prefer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("supabase: request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err),
		)
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.logger.Error("supabase: failed to read response body",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err),
		)
		return nil, err
	}

	if resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("supabase: non-2xx response",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.String("body", string(body)),
		)
		apiErr := newAPIError(resp.StatusCode, body)
		if retryable(resp.StatusCode) {
			return nil, apiErr
		}
		return nil, resilience.Permanent(apiErr)
	}

	c.logger.Debug("supabase: request OK",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
	)
	return body, nil
}

// call runs fn behind the bulkhead, the circuit breaker and the retry loop,
// and maps the outcome onto domain errors.
func (c *Client) call(ctx context.Context, op string, fn func() error) error {
	ctx, span := tracer.Start(ctx, "Supabase."+op)
	defer span.End()
	span.SetAttributes(attribute.String("db.operation", op))

	if err := c.bulkhead.Acquire(ctx); err != nil {
		return err
	}
	defer c.bulkhead.Release()

	_, err := c.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, c.cfg, fn)
	})
	if err == nil {
		return nil
	}
	span.RecordError(err)

	if resilience.IsCircuitOpen(err) {
		return &domain.ErrCircuitOpen{Service: "supabase"}
	}
	err = resilience.Unwrap(err)

	var (
		nf        *domain.ErrNotFound
		collision *domain.ErrSequencingCollision
		ve        *domain.ErrValidation
	)
	if errors.As(err, &nf) || errors.As(err, &collision) || errors.As(err, &ve) {
		return err
	}
	return &domain.ErrExternalService{Service: "supabase/" + op, Err: err}
}

// doGet fetches rows into out.
func (c *Client) doGet(ctx context.Context, path string, out any) error {
	body, err := c.doRequest(ctx, http.MethodGet, path, nil, "")
	if err != nil {
		return err
	}
	if len(body) == 0 {
		body = []byte("[]")
	}
	if err := json.Unmarshal(body, out); err != nil {
		return resilience.Permanent(fmt.Errorf("decode %s: %w", path, err))
	}
	return nil
}

// Ping checks that PostgREST answers.
func (c *Client) Ping(ctx context.Context) error {
	return c.call(ctx, "Ping", func() error {
		var rows []map[string]any
		return c.doGet(ctx, "leads?select=id&limit=1", &rows)
	})
}
