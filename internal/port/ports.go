// Package port defines the interfaces (ports) for external dependencies.
// Following hexagonal architecture, these ports decouple the service layer
// from the concrete store adapters (Supabase, Postgres, in-memory).
package port

import (
	"context"
	"time"

	"github.com/boddenberg/sales-pipeline-go/internal/domain"
)

// LeadStore persists leads. Implementations never cascade deletes.
type LeadStore interface {
	CreateLead(ctx context.Context, lead *domain.Lead) (*domain.Lead, error)
	GetLead(ctx context.Context, leadID string) (*domain.Lead, error)
	ListLeads(ctx context.Context, filter domain.LeadFilter) ([]domain.Lead, error)
	// UpdateLead writes the given columns. Keys are snake_case column names.
	UpdateLead(ctx context.Context, leadID string, updates map[string]any) error
	DeleteLead(ctx context.Context, leadID string) error
	CountLeadsByStatus(ctx context.Context) (map[domain.LeadStatus]int, error)
}

// QuoteStore persists quotes and their items.
type QuoteStore interface {
	// CreateQuote inserts the quote header. A duplicate quote number returns
	// *domain.ErrSequencingCollision.
	CreateQuote(ctx context.Context, quote *domain.Quote) (*domain.Quote, error)
	GetQuote(ctx context.Context, quoteID string) (*domain.Quote, error)
	ListQuotes(ctx context.Context, filter domain.QuoteFilter) ([]domain.Quote, error)
	UpdateQuote(ctx context.Context, quoteID string, update domain.QuoteUpdate) error

	// ReplaceQuoteItems deletes the current items of the quote and inserts
	// the given ones, returning them with store-assigned IDs.
	ReplaceQuoteItems(ctx context.Context, quoteID string, items []domain.QuoteItem) ([]domain.QuoteItem, error)
	ListQuoteItems(ctx context.Context, quoteID string) ([]domain.QuoteItem, error)

	// ListQuoteNumbers returns every quote number starting with prefix.
	ListQuoteNumbers(ctx context.Context, prefix string) ([]string, error)
	CountQuotesForLead(ctx context.Context, leadID string) (int, error)
}

// ActivityStore is the append-only journal. There is deliberately no update
// or delete method.
type ActivityStore interface {
	AppendActivity(ctx context.Context, activity *domain.Activity) (*domain.Activity, error)
	ListActivities(ctx context.Context, leadID string) ([]domain.Activity, error)
	// FindActivity returns the entry of the given type tied to the lead and
	// quote, or nil when none exists.
	FindActivity(ctx context.Context, leadID, quoteID string, activityType domain.ActivityType) (*domain.Activity, error)
}

// SalesStore is everything the pipeline engine needs from persistence.
type SalesStore interface {
	LeadStore
	QuoteStore
	ActivityStore
	Ping(ctx context.Context) error
}

// Cache provides generic caching with TTL.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, value T)
	Delete(key string)
}

// Clock abstracts time so lifecycle timestamps are testable.
type Clock interface {
	Now() time.Time
}
