// Package memory provides an in-process implementation of the sales store.
// It backs local development (STORE_BACKEND=memory) and service tests, and
// mirrors the constraints the SQL schema enforces: unique quote numbers and
// an append-only activity journal.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/boddenberg/sales-pipeline-go/internal/domain"
	"github.com/boddenberg/sales-pipeline-go/internal/port"

	"github.com/google/uuid"
)

var _ port.SalesStore = (*Store)(nil)

// Store keeps every table in maps guarded by a single mutex.
type Store struct {
	mu         sync.RWMutex
	leads      map[string]domain.Lead
	quotes     map[string]domain.Quote
	items      map[string][]domain.QuoteItem
	activities []domain.Activity
	now        func() time.Time
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		leads:  make(map[string]domain.Lead),
		quotes: make(map[string]domain.Quote),
		items:  make(map[string][]domain.QuoteItem),
		now:    time.Now,
	}
}

// WithClock makes the store stamp created_at from fn.
func (s *Store) WithClock(fn func() time.Time) *Store {
	s.now = fn
	return s
}

func (s *Store) Ping(context.Context) error { return nil }

// ============================================================
// Leads
// ============================================================

func (s *Store) CreateLead(_ context.Context, lead *domain.Lead) (*domain.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := *lead
	if row.ID == "" {
		row.ID = uuid.NewString()
	}
	if _, exists := s.leads[row.ID]; exists {
		return nil, &domain.ErrConflict{Message: fmt.Sprintf("lead %s already exists", row.ID)}
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = s.now()
	}
	if row.UpdatedAt.IsZero() {
		row.UpdatedAt = row.CreatedAt
	}
	s.leads[row.ID] = row
	out := row
	return &out, nil
}

func (s *Store) GetLead(_ context.Context, leadID string) (*domain.Lead, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row, ok := s.leads[leadID]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "lead", ID: leadID}
	}
	return &row, nil
}

func (s *Store) ListLeads(_ context.Context, filter domain.LeadFilter) ([]domain.Lead, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := make([]domain.Lead, 0, len(s.leads))
	for _, l := range s.leads {
		if filter.Status != "" && l.Status != filter.Status {
			continue
		}
		rows = append(rows, l)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].CreatedAt.Equal(rows[j].CreatedAt) {
			return rows[i].ID < rows[j].ID
		}
		return rows[i].CreatedAt.After(rows[j].CreatedAt)
	})
	return paginate(rows, filter.Page, filter.PageSize), nil
}

func (s *Store) UpdateLead(_ context.Context, leadID string, updates map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.leads[leadID]
	if !ok {
		return &domain.ErrNotFound{Resource: "lead", ID: leadID}
	}
	for k, v := range updates {
		if err := applyLeadColumn(&row, k, v); err != nil {
			return err
		}
	}
	s.leads[leadID] = row
	return nil
}

func (s *Store) DeleteLead(_ context.Context, leadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.leads[leadID]; !ok {
		return &domain.ErrNotFound{Resource: "lead", ID: leadID}
	}
	delete(s.leads, leadID)
	return nil
}

func (s *Store) CountLeadsByStatus(_ context.Context) (map[domain.LeadStatus]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[domain.LeadStatus]int)
	for _, l := range s.leads {
		counts[l.Status]++
	}
	return counts, nil
}

// applyLeadColumn maps a snake_case column onto the struct, the same keys the
// SQL adapters write.
func applyLeadColumn(l *domain.Lead, column string, v any) error {
	switch column {
	case "name":
		l.Name = asString(v)
	case "phone":
		l.Phone = asString(v)
	case "email":
		l.Email = asString(v)
	case "address":
		l.Address = asString(v)
	case "city":
		l.City = asString(v)
	case "source":
		l.Source = domain.LeadSource(asString(v))
	case "project_type":
		l.ProjectType = domain.ProjectType(asString(v))
	case "size_sqm":
		l.SizeSqm = asFloatPtr(v)
	case "budget_range":
		l.BudgetRange = asString(v)
	case "timeline":
		l.Timeline = asString(v)
	case "notes":
		l.Notes = asString(v)
	case "status":
		l.Status = domain.LeadStatus(asString(v))
	case "status_note":
		l.StatusNote = asString(v)
	case "next_follow_up":
		l.NextFollowUp = asTimePtr(v)
	case "meeting_date":
		l.MeetingDate = asTimePtr(v)
	case "updated_at":
		if t := asTimePtr(v); t != nil {
			l.UpdatedAt = *t
		}
	default:
		return &domain.ErrValidation{Field: column, Message: "unknown lead column"}
	}
	return nil
}

// ============================================================
// Quotes
// ============================================================

func (s *Store) CreateQuote(_ context.Context, quote *domain.Quote) (*domain.Quote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, q := range s.quotes {
		if q.QuoteNumber == quote.QuoteNumber {
			return nil, &domain.ErrSequencingCollision{Number: quote.QuoteNumber}
		}
	}

	row := *quote
	row.Items = nil
	if row.ID == "" {
		row.ID = uuid.NewString()
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = s.now()
	}
	s.quotes[row.ID] = row
	out := row
	return &out, nil
}

func (s *Store) GetQuote(_ context.Context, quoteID string) (*domain.Quote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row, ok := s.quotes[quoteID]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "quote", ID: quoteID}
	}
	row.Items = cloneItems(s.items[quoteID])
	return &row, nil
}

func (s *Store) ListQuotes(_ context.Context, filter domain.QuoteFilter) ([]domain.Quote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := make([]domain.Quote, 0, len(s.quotes))
	for _, q := range s.quotes {
		if filter.LeadID != "" && (q.LeadID == nil || *q.LeadID != filter.LeadID) {
			continue
		}
		if filter.Status != "" && q.Status != filter.Status {
			continue
		}
		rows = append(rows, q)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].CreatedAt.Equal(rows[j].CreatedAt) {
			return rows[i].QuoteNumber > rows[j].QuoteNumber
		}
		return rows[i].CreatedAt.After(rows[j].CreatedAt)
	})
	return paginate(rows, filter.Page, filter.PageSize), nil
}

func (s *Store) UpdateQuote(_ context.Context, quoteID string, u domain.QuoteUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.quotes[quoteID]
	if !ok {
		return &domain.ErrNotFound{Resource: "quote", ID: quoteID}
	}
	if u.Status != nil {
		row.Status = *u.Status
	}
	if u.SentAt != nil {
		row.SentAt = timePtr(*u.SentAt)
	}
	if u.ViewedAt != nil {
		row.ViewedAt = timePtr(*u.ViewedAt)
	}
	if u.RespondedAt != nil {
		row.RespondedAt = timePtr(*u.RespondedAt)
	}
	if u.Title != nil {
		row.Title = *u.Title
	}
	if u.Description != nil {
		row.Description = *u.Description
	}
	if u.Notes != nil {
		row.Notes = *u.Notes
	}
	if u.DiscountPercent != nil {
		row.DiscountPercent = *u.DiscountPercent
	}
	if u.Totals != nil {
		row.ApplyTotals(*u.Totals)
	}
	s.quotes[quoteID] = row
	return nil
}

func (s *Store) ReplaceQuoteItems(_ context.Context, quoteID string, items []domain.QuoteItem) ([]domain.QuoteItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.quotes[quoteID]; !ok {
		return nil, &domain.ErrNotFound{Resource: "quote", ID: quoteID}
	}
	rows := make([]domain.QuoteItem, len(items))
	for i, it := range items {
		it.ID = uuid.NewString()
		it.QuoteID = quoteID
		rows[i] = it
	}
	s.items[quoteID] = rows
	return cloneItems(rows), nil
}

func (s *Store) ListQuoteItems(_ context.Context, quoteID string) ([]domain.QuoteItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneItems(s.items[quoteID]), nil
}

func (s *Store) ListQuoteNumbers(_ context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []string
	for _, q := range s.quotes {
		if strings.HasPrefix(q.QuoteNumber, prefix) {
			out = append(out, q.QuoteNumber)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) CountQuotesForLead(_ context.Context, leadID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, q := range s.quotes {
		if q.LeadID != nil && *q.LeadID == leadID {
			n++
		}
	}
	return n, nil
}

// ============================================================
// Activities
// ============================================================

func (s *Store) AppendActivity(_ context.Context, a *domain.Activity) (*domain.Activity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := *a
	if row.ID == "" {
		row.ID = uuid.NewString()
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = s.now()
	}
	s.activities = append(s.activities, row)
	out := row
	return &out, nil
}

func (s *Store) ListActivities(_ context.Context, leadID string) ([]domain.Activity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Activity
	for i := len(s.activities) - 1; i >= 0; i-- {
		if s.activities[i].LeadID == leadID {
			out = append(out, s.activities[i])
		}
	}
	return out, nil
}

func (s *Store) FindActivity(_ context.Context, leadID, quoteID string, t domain.ActivityType) (*domain.Activity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, a := range s.activities {
		if a.LeadID == leadID && a.Type == t && a.QuoteID != nil && *a.QuoteID == quoteID {
			out := a
			return &out, nil
		}
	}
	return nil, nil
}

// ============================================================
// helpers
// ============================================================

func paginate[T any](rows []T, page, pageSize int) []T {
	if pageSize <= 0 {
		return rows
	}
	if page < 1 {
		page = 1
	}
	start := (page - 1) * pageSize
	if start >= len(rows) {
		return []T{}
	}
	end := start + pageSize
	if end > len(rows) {
		end = len(rows)
	}
	return rows[start:end]
}

func cloneItems(items []domain.QuoteItem) []domain.QuoteItem {
	if items == nil {
		return nil
	}
	out := make([]domain.QuoteItem, len(items))
	copy(out, items)
	return out
}

func timePtr(t time.Time) *time.Time { return &t }

func asString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case *string:
		if x != nil {
			return *x
		}
	case fmt.Stringer:
		return x.String()
	}
	return ""
}

func asFloatPtr(v any) *float64 {
	switch x := v.(type) {
	case float64:
		return &x
	case *float64:
		if x != nil {
			f := *x
			return &f
		}
	}
	return nil
}

func asTimePtr(v any) *time.Time {
	switch x := v.(type) {
	case time.Time:
		return &x
	case *time.Time:
		if x != nil {
			t := *x
			return &t
		}
	}
	return nil
}
