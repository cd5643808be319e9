package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// ============================================================
// HTTP helpers for POST, PATCH, DELETE
// ============================================================

// doPost inserts one row or a slice of rows and decodes the representation
// into out (when out is non-nil).
func (c *Client) doPost(ctx context.Context, table string, data any, out any) error {
	body, err := c.doRequest(ctx, http.MethodPost, table, data, "return=representation")
	if err != nil {
		return err
	}
	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s insert: %w", table, err)
	}
	return nil
}

// doPatch updates the rows matched by path and returns how many matched.
func (c *Client) doPatch(ctx context.Context, path string, data map[string]any) (int, error) {
	body, err := c.doRequest(ctx, http.MethodPatch, path, data, "return=representation")
	if err != nil {
		return 0, err
	}
	return countRows(body)
}

// doDelete removes the rows matched by path and returns how many matched.
func (c *Client) doDelete(ctx context.Context, path string) (int, error) {
	body, err := c.doRequest(ctx, http.MethodDelete, path, nil, "return=representation")
	if err != nil {
		return 0, err
	}
	return countRows(body)
}

func countRows(body []byte) (int, error) {
	if len(body) == 0 {
		return 0, nil
	}
	var rows []json.RawMessage
	if err := json.Unmarshal(body, &rows); err != nil {
		return 0, fmt.Errorf("decode representation: %w", err)
	}
	return len(rows), nil
}

// query builds a PostgREST path: table?col=op.value&...
type query struct {
	table  string
	params []string
}

func from(table string) *query {
	return &query{table: table}
}

func (q *query) eq(column, value string) *query {
	q.params = append(q.params, column+"=eq."+url.QueryEscape(value))
	return q
}

func (q *query) like(column, pattern string) *query {
	q.params = append(q.params, column+"=like."+url.QueryEscape(pattern))
	return q
}

func (q *query) sel(columns string) *query {
	q.params = append(q.params, "select="+columns)
	return q
}

func (q *query) order(spec string) *query {
	q.params = append(q.params, "order="+spec)
	return q
}

func (q *query) page(page, pageSize int) *query {
	if pageSize <= 0 {
		return q
	}
	if page < 1 {
		page = 1
	}
	q.params = append(q.params, fmt.Sprintf("limit=%d", pageSize), fmt.Sprintf("offset=%d", (page-1)*pageSize))
	return q
}

func (q *query) limit(n int) *query {
	q.params = append(q.params, fmt.Sprintf("limit=%d", n))
	return q
}

func (q *query) String() string {
	if len(q.params) == 0 {
		return q.table
	}
	return q.table + "?" + strings.Join(q.params, "&")
}
