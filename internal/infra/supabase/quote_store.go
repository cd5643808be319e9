package supabase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/boddenberg/sales-pipeline-go/internal/domain"
	"github.com/boddenberg/sales-pipeline-go/internal/infra/resilience"

	"github.com/google/uuid"
)

// ============================================================
// Quotes store
// ============================================================

// quoteRow maps the quotes table. The customer snapshot is flattened into
// customer_* columns.
type quoteRow struct {
	ID              string             `json:"id"`
	QuoteNumber     string             `json:"quote_number"`
	LeadID          *string            `json:"lead_id"`
	CustomerName    string             `json:"customer_name"`
	CustomerEmail   string             `json:"customer_email"`
	CustomerPhone   string             `json:"customer_phone"`
	CustomerAddress string             `json:"customer_address"`
	Title           string             `json:"title"`
	Description     string             `json:"description"`
	Subtotal        float64            `json:"subtotal"`
	DiscountPercent float64            `json:"discount_percent"`
	DiscountAmount  float64            `json:"discount_amount"`
	VATPercent      float64            `json:"vat_percent"`
	VATAmount       float64            `json:"vat_amount"`
	Total           float64            `json:"total"`
	PaymentTerms    string             `json:"payment_terms"`
	DeliveryTime    string             `json:"delivery_time"`
	Warranty        string             `json:"warranty"`
	ValidityDays    int                `json:"validity_days"`
	Notes           string             `json:"notes"`
	Status          domain.QuoteStatus `json:"status"`
	SentAt          *time.Time         `json:"sent_at"`
	ViewedAt        *time.Time         `json:"viewed_at"`
	RespondedAt     *time.Time         `json:"responded_at"`
	CreatedBy       string             `json:"created_by"`
	CreatedAt       time.Time          `json:"created_at"`
}

func toQuoteRow(q *domain.Quote) quoteRow {
	return quoteRow{
		ID:              q.ID,
		QuoteNumber:     q.QuoteNumber,
		LeadID:          q.LeadID,
		CustomerName:    q.Customer.Name,
		CustomerEmail:   q.Customer.Email,
		CustomerPhone:   q.Customer.Phone,
		CustomerAddress: q.Customer.Address,
		Title:           q.Title,
		Description:     q.Description,
		Subtotal:        q.Subtotal,
		DiscountPercent: q.DiscountPercent,
		DiscountAmount:  q.DiscountAmount,
		VATPercent:      q.VATPercent,
		VATAmount:       q.VATAmount,
		Total:           q.Total,
		PaymentTerms:    q.PaymentTerms,
		DeliveryTime:    q.DeliveryTime,
		Warranty:        q.Warranty,
		ValidityDays:    q.ValidityDays,
		Notes:           q.Notes,
		Status:          q.Status,
		SentAt:          q.SentAt,
		ViewedAt:        q.ViewedAt,
		RespondedAt:     q.RespondedAt,
		CreatedBy:       q.CreatedBy,
		CreatedAt:       q.CreatedAt.UTC(),
	}
}

func (r quoteRow) toDomain() domain.Quote {
	return domain.Quote{
		ID:          r.ID,
		QuoteNumber: r.QuoteNumber,
		LeadID:      r.LeadID,
		Customer: domain.Customer{
			Name:    r.CustomerName,
			Email:   r.CustomerEmail,
			Phone:   r.CustomerPhone,
			Address: r.CustomerAddress,
		},
		Title:           r.Title,
		Description:     r.Description,
		Subtotal:        r.Subtotal,
		DiscountPercent: r.DiscountPercent,
		DiscountAmount:  r.DiscountAmount,
		VATPercent:      r.VATPercent,
		VATAmount:       r.VATAmount,
		Total:           r.Total,
		PaymentTerms:    r.PaymentTerms,
		DeliveryTime:    r.DeliveryTime,
		Warranty:        r.Warranty,
		ValidityDays:    r.ValidityDays,
		Notes:           r.Notes,
		Status:          r.Status,
		SentAt:          r.SentAt,
		ViewedAt:        r.ViewedAt,
		RespondedAt:     r.RespondedAt,
		CreatedBy:       r.CreatedBy,
		CreatedAt:       r.CreatedAt,
	}
}

func (c *Client) CreateQuote(ctx context.Context, quote *domain.Quote) (*domain.Quote, error) {
	row := toQuoteRow(quote)
	if row.ID == "" {
		row.ID = uuid.NewString()
	}

	var created *domain.Quote
	err := c.call(ctx, "CreateQuote", func() error {
		var rows []quoteRow
		if err := c.doPost(ctx, "quotes", row, &rows); err != nil {
			var apiErr *apiError
			if errors.As(err, &apiErr) && apiErr.uniqueViolation("quote_number") {
				return resilience.Permanent(&domain.ErrSequencingCollision{Number: quote.QuoteNumber})
			}
			return err
		}
		if len(rows) == 0 {
			return resilience.Permanent(fmt.Errorf("insert into quotes returned no row"))
		}
		q := rows[0].toDomain()
		created = &q
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// GetQuote returns the quote header with its items.
func (c *Client) GetQuote(ctx context.Context, quoteID string) (*domain.Quote, error) {
	var quote *domain.Quote
	err := c.call(ctx, "GetQuote", func() error {
		var rows []quoteRow
		if err := c.doGet(ctx, from("quotes").eq("id", quoteID).limit(1).String(), &rows); err != nil {
			return err
		}
		if len(rows) == 0 {
			return resilience.Permanent(&domain.ErrNotFound{Resource: "quote", ID: quoteID})
		}
		q := rows[0].toDomain()
		quote = &q
		return nil
	})
	if err != nil {
		return nil, err
	}

	items, err := c.ListQuoteItems(ctx, quoteID)
	if err != nil {
		return nil, err
	}
	quote.Items = items
	return quote, nil
}

func (c *Client) ListQuotes(ctx context.Context, filter domain.QuoteFilter) ([]domain.Quote, error) {
	q := from("quotes").order("created_at.desc,quote_number.desc").page(filter.Page, filter.PageSize)
	if filter.LeadID != "" {
		q.eq("lead_id", filter.LeadID)
	}
	if filter.Status != "" {
		q.eq("status", string(filter.Status))
	}

	var rows []quoteRow
	err := c.call(ctx, "ListQuotes", func() error {
		return c.doGet(ctx, q.String(), &rows)
	})
	if err != nil {
		return nil, err
	}

	quotes := make([]domain.Quote, 0, len(rows))
	for _, r := range rows {
		quotes = append(quotes, r.toDomain())
	}
	return quotes, nil
}

func (c *Client) UpdateQuote(ctx context.Context, quoteID string, u domain.QuoteUpdate) error {
	data := map[string]any{}
	if u.Status != nil {
		data["status"] = *u.Status
	}
	if u.SentAt != nil {
		data["sent_at"] = u.SentAt.UTC()
	}
	if u.ViewedAt != nil {
		data["viewed_at"] = u.ViewedAt.UTC()
	}
	if u.RespondedAt != nil {
		data["responded_at"] = u.RespondedAt.UTC()
	}
	if u.Title != nil {
		data["title"] = *u.Title
	}
	if u.Description != nil {
		data["description"] = *u.Description
	}
	if u.Notes != nil {
		data["notes"] = *u.Notes
	}
	if u.DiscountPercent != nil {
		data["discount_percent"] = *u.DiscountPercent
	}
	if u.Totals != nil {
		data["subtotal"] = u.Totals.Subtotal
		data["discount_amount"] = u.Totals.DiscountAmount
		data["vat_amount"] = u.Totals.VATAmount
		data["total"] = u.Totals.Total
	}
	if len(data) == 0 {
		return nil
	}

	return c.call(ctx, "UpdateQuote", func() error {
		n, err := c.doPatch(ctx, from("quotes").eq("id", quoteID).String(), data)
		if err != nil {
			return err
		}
		if n == 0 {
			return resilience.Permanent(&domain.ErrNotFound{Resource: "quote", ID: quoteID})
		}
		return nil
	})
}

// ReplaceQuoteItems deletes the quote's items and inserts the new set. Both
// requests are idempotent for a given item list, so a retry converges.
func (c *Client) ReplaceQuoteItems(ctx context.Context, quoteID string, items []domain.QuoteItem) ([]domain.QuoteItem, error) {
	rows := make([]domain.QuoteItem, len(items))
	for i, it := range items {
		it.ID = uuid.NewString()
		it.QuoteID = quoteID
		rows[i] = it
	}

	var stored []domain.QuoteItem
	err := c.call(ctx, "ReplaceQuoteItems", func() error {
		if _, err := c.doDelete(ctx, from("quote_items").eq("quote_id", quoteID).String()); err != nil {
			return err
		}
		if len(rows) == 0 {
			stored = []domain.QuoteItem{}
			return nil
		}
		return c.doPost(ctx, "quote_items", rows, &stored)
	})
	if err != nil {
		return nil, err
	}
	return stored, nil
}

func (c *Client) ListQuoteItems(ctx context.Context, quoteID string) ([]domain.QuoteItem, error) {
	items := []domain.QuoteItem{}
	err := c.call(ctx, "ListQuoteItems", func() error {
		return c.doGet(ctx, from("quote_items").eq("quote_id", quoteID).order("sort_order.asc").String(), &items)
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (c *Client) ListQuoteNumbers(ctx context.Context, prefix string) ([]string, error) {
	var rows []struct {
		QuoteNumber string `json:"quote_number"`
	}
	err := c.call(ctx, "ListQuoteNumbers", func() error {
		return c.doGet(ctx, from("quotes").sel("quote_number").like("quote_number", prefix+"*").String(), &rows)
	})
	if err != nil {
		return nil, err
	}

	numbers := make([]string, 0, len(rows))
	for _, r := range rows {
		numbers = append(numbers, r.QuoteNumber)
	}
	return numbers, nil
}

func (c *Client) CountQuotesForLead(ctx context.Context, leadID string) (int, error) {
	var rows []struct {
		ID string `json:"id"`
	}
	err := c.call(ctx, "CountQuotesForLead", func() error {
		return c.doGet(ctx, from("quotes").sel("id").eq("lead_id", leadID).String(), &rows)
	})
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}
