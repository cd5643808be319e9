package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/boddenberg/sales-pipeline-go/internal/domain"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// Quotes
// ============================================================

// CreateQuote drafts a numbered quote. The customer block is copied from the
// lead when one is given; otherwise the input customer is used.
func (s *SalesService) CreateQuote(ctx context.Context, op domain.Operator, in domain.CreateQuoteInput) (*domain.Quote, error) {
	ctx, span := salesTracer.Start(ctx, "SalesService.CreateQuote")
	defer span.End()
	defer s.observe("create_quote", time.Now())

	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, validationErr("title", "title is required")
	}
	if in.ValidityDays < 0 {
		return nil, validationErr("validity_days", "must not be negative")
	}
	items, err := buildItems(in.Items)
	if err != nil {
		return nil, err
	}
	totals, err := CalculateTotals(items, in.DiscountPercent, s.defaults.VATPercent)
	if err != nil {
		return nil, err
	}

	var (
		customer domain.Customer
		leadID   *string
	)
	if in.LeadID != nil && *in.LeadID != "" {
		lead, err := s.store.GetLead(ctx, *in.LeadID)
		if err != nil {
			s.storeError("get_lead", err)
			return nil, err
		}
		leadID = strPtr(lead.ID)
		customer = domain.Customer{Name: lead.Name, Email: lead.Email, Phone: lead.Phone, Address: lead.Address}
	} else {
		if in.Customer == nil || strings.TrimSpace(in.Customer.Name) == "" {
			return nil, validationErr("customer.name", "customer name is required when no lead is given")
		}
		customer = *in.Customer
		customer.Name = strings.TrimSpace(customer.Name)
	}

	now := s.Now()
	number, err := s.NextQuoteNumber(ctx, now.Year())
	if err != nil {
		return nil, err
	}

	quote := &domain.Quote{
		QuoteNumber:     number,
		LeadID:          leadID,
		Customer:        customer,
		Title:           title,
		Description:     in.Description,
		DiscountPercent: in.DiscountPercent,
		VATPercent:      s.defaults.VATPercent,
		PaymentTerms:    firstNonEmpty(in.PaymentTerms, s.defaults.PaymentTerms),
		DeliveryTime:    firstNonEmpty(in.DeliveryTime, s.defaults.DeliveryTime),
		Warranty:        firstNonEmpty(in.Warranty, s.defaults.Warranty),
		ValidityDays:    in.ValidityDays,
		Notes:           in.Notes,
		Status:          domain.QuoteStatusDraft,
		CreatedBy:       op.ID,
		CreatedAt:       now,
	}
	if quote.ValidityDays == 0 {
		quote.ValidityDays = s.defaults.ValidityDays
	}
	quote.ApplyTotals(totals)

	created, err := s.store.CreateQuote(ctx, quote)
	if err != nil {
		var collision *domain.ErrSequencingCollision
		if errors.As(err, &collision) {
			s.metrics.IncrCollision()
			s.logger.Warn("quote number collision", zap.String("quote_number", number))
			return nil, err
		}
		s.storeError("create_quote", err)
		return nil, fmt.Errorf("creating quote: %w", err)
	}
	span.SetAttributes(attribute.String("quote.id", created.ID), attribute.String("quote.number", created.QuoteNumber))

	if len(items) > 0 {
		stored, err := s.store.ReplaceQuoteItems(ctx, created.ID, items)
		if err != nil {
			s.storeError("replace_quote_items", err)
			return created, s.partialSync("create_quote", created.ID, derefOr(leadID), []string{stepQuote}, "items", err)
		}
		created.Items = stored
	}

	s.logger.Info("quote created",
		zap.String("quote_id", created.ID),
		zap.String("quote_number", created.QuoteNumber),
		zap.String("lead_id", derefOr(leadID)),
		zap.String("operator", op.ID),
	)
	return created, nil
}

// ReviseQuote replaces the items and/or discount of a draft and recomputes
// its totals. Anything past draft is frozen.
func (s *SalesService) ReviseQuote(ctx context.Context, op domain.Operator, quoteID string, in domain.ReviseQuoteInput) (*domain.Quote, error) {
	ctx, span := salesTracer.Start(ctx, "SalesService.ReviseQuote")
	defer span.End()
	span.SetAttributes(attribute.String("quote.id", quoteID))

	q, err := s.getQuote(ctx, quoteID)
	if err != nil {
		return nil, err
	}
	if q.Status != domain.QuoteStatusDraft {
		return nil, &domain.ErrInvalidTransition{
			Entity: "quote", ID: quoteID, From: string(q.Status), To: string(domain.QuoteStatusDraft),
			Reason: "only draft quotes can be revised",
		}
	}

	items := q.Items
	if in.Items != nil {
		if items, err = buildItems(in.Items); err != nil {
			return nil, err
		}
	}
	discount := q.DiscountPercent
	if in.DiscountPercent != nil {
		discount = *in.DiscountPercent
	}
	totals, err := CalculateTotals(items, discount, q.VATPercent)
	if err != nil {
		return nil, err
	}

	update := domain.QuoteUpdate{DiscountPercent: &discount, Totals: &totals}
	if in.Title != nil {
		title := strings.TrimSpace(*in.Title)
		if title == "" {
			return nil, validationErr("title", "title is required")
		}
		update.Title = &title
	}
	update.Description = in.Description
	update.Notes = in.Notes

	if in.Items != nil {
		if _, err := s.store.ReplaceQuoteItems(ctx, quoteID, items); err != nil {
			s.storeError("replace_quote_items", err)
			return nil, fmt.Errorf("replacing quote items: %w", err)
		}
	}
	if err := s.store.UpdateQuote(ctx, quoteID, update); err != nil {
		s.storeError("update_quote", err)
		if in.Items != nil {
			return nil, s.partialSync("revise_quote", quoteID, derefOr(q.LeadID), []string{"items"}, stepQuote, err)
		}
		return nil, err
	}

	s.logger.Info("quote revised", zap.String("quote_id", quoteID), zap.String("operator", op.ID))
	return s.getQuote(ctx, quoteID)
}

// SendQuote moves a draft to sent and synchronizes its lead. Sending a quote
// that is already sent keeps SentAt and only finishes lead steps a failed
// attempt left behind.
func (s *SalesService) SendQuote(ctx context.Context, op domain.Operator, quoteID string) (*domain.Quote, error) {
	ctx, span := salesTracer.Start(ctx, "SalesService.SendQuote")
	defer span.End()
	defer s.observe("send_quote", time.Now())
	span.SetAttributes(attribute.String("quote.id", quoteID))

	q, err := s.getQuote(ctx, quoteID)
	if err != nil {
		return nil, err
	}

	switch q.Status {
	case domain.QuoteStatusDraft:
		if len(q.Items) == 0 {
			return nil, &domain.ErrInvalidTransition{
				Entity: "quote", ID: quoteID, From: string(q.Status), To: string(domain.QuoteStatusSent),
				Reason: "quote has no items",
			}
		}
		if err := s.writeQuoteStatus(ctx, q, domain.QuoteStatusSent); err != nil {
			return nil, err
		}
	case domain.QuoteStatusSent:
	default:
		return nil, &domain.ErrInvalidTransition{
			Entity: "quote", ID: quoteID, From: string(q.Status), To: string(domain.QuoteStatusSent),
			Reason: "only draft quotes can be sent",
		}
	}

	if err := s.syncLead(ctx, op, q, EventQuoteSent); err != nil {
		return q, err
	}
	return q, nil
}

// MarkQuoteViewed records that the customer opened a sent quote. Repeated
// views and views after a response change nothing.
func (s *SalesService) MarkQuoteViewed(ctx context.Context, quoteID string) (*domain.Quote, error) {
	ctx, span := salesTracer.Start(ctx, "SalesService.MarkQuoteViewed")
	defer span.End()
	span.SetAttributes(attribute.String("quote.id", quoteID))

	q, err := s.getQuote(ctx, quoteID)
	if err != nil {
		return nil, err
	}

	switch q.Status {
	case domain.QuoteStatusDraft:
		return nil, &domain.ErrInvalidTransition{
			Entity: "quote", ID: quoteID, From: string(q.Status), To: string(domain.QuoteStatusViewed),
			Reason: "quote has not been sent",
		}
	case domain.QuoteStatusSent:
		if err := s.writeQuoteStatus(ctx, q, domain.QuoteStatusViewed); err != nil {
			return nil, err
		}
	}
	return q, nil
}

// RecordQuoteResponse stores the customer's answer and synchronizes the lead.
// Recording the same answer again only finishes lead steps a failed attempt
// left behind; the opposite answer is refused.
func (s *SalesService) RecordQuoteResponse(ctx context.Context, op domain.Operator, quoteID string, accepted bool) (*domain.Quote, error) {
	ctx, span := salesTracer.Start(ctx, "SalesService.RecordQuoteResponse")
	defer span.End()
	defer s.observe("record_quote_response", time.Now())
	span.SetAttributes(attribute.String("quote.id", quoteID), attribute.Bool("quote.accepted", accepted))

	target, event := domain.QuoteStatusRejected, EventQuoteRejected
	if accepted {
		target, event = domain.QuoteStatusAccepted, EventQuoteAccepted
	}

	q, err := s.getQuote(ctx, quoteID)
	if err != nil {
		return nil, err
	}

	switch {
	case q.Status == target:
	case q.Status.AwaitingResponse():
		if err := s.writeQuoteStatus(ctx, q, target); err != nil {
			return nil, err
		}
	default:
		reason := fmt.Sprintf("quote is %s", q.Status)
		switch {
		case q.Status == domain.QuoteStatusDraft:
			reason = "quote has not been sent"
		case q.Status.IsResponded():
			reason = fmt.Sprintf("customer already answered: %s", q.Status)
		}
		return nil, &domain.ErrInvalidTransition{
			Entity: "quote", ID: quoteID, From: string(q.Status), To: string(target), Reason: reason,
		}
	}

	if err := s.syncLead(ctx, op, q, event); err != nil {
		return q, err
	}
	return q, nil
}

// writeQuoteStatus persists a status change and stamps the matching
// timestamp unless it is already set. q is updated in place.
func (s *SalesService) writeQuoteStatus(ctx context.Context, q *domain.Quote, to domain.QuoteStatus) error {
	now := s.Now()
	update := domain.QuoteUpdate{Status: &to}
	switch to {
	case domain.QuoteStatusSent:
		if q.SentAt == nil {
			update.SentAt = &now
		}
	case domain.QuoteStatusViewed:
		if q.ViewedAt == nil {
			update.ViewedAt = &now
		}
	case domain.QuoteStatusAccepted, domain.QuoteStatusRejected:
		if q.RespondedAt == nil {
			update.RespondedAt = &now
		}
	}

	if err := s.store.UpdateQuote(ctx, q.ID, update); err != nil {
		s.storeError("update_quote", err)
		return fmt.Errorf("updating quote status: %w", err)
	}

	from := q.Status
	q.Status = to
	if update.SentAt != nil {
		q.SentAt = update.SentAt
	}
	if update.ViewedAt != nil {
		q.ViewedAt = update.ViewedAt
	}
	if update.RespondedAt != nil {
		q.RespondedAt = update.RespondedAt
	}

	s.metrics.IncrQuoteTransition(to)
	if to == domain.QuoteStatusAccepted {
		s.metrics.ObserveQuoteValue(q.Total)
	}
	s.logger.Info("quote transitioned",
		zap.String("quote_id", q.ID),
		zap.String("lead_id", derefOr(q.LeadID)),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
	)
	return nil
}

// GetQuote returns a quote with its items.
func (s *SalesService) GetQuote(ctx context.Context, quoteID string) (*domain.Quote, error) {
	ctx, span := salesTracer.Start(ctx, "SalesService.GetQuote")
	defer span.End()
	span.SetAttributes(attribute.String("quote.id", quoteID))

	return s.getQuote(ctx, quoteID)
}

func (s *SalesService) getQuote(ctx context.Context, quoteID string) (*domain.Quote, error) {
	q, err := s.store.GetQuote(ctx, quoteID)
	if err != nil {
		s.storeError("get_quote", err)
		return nil, err
	}
	if q.Items == nil {
		items, err := s.store.ListQuoteItems(ctx, quoteID)
		if err != nil {
			s.storeError("list_quote_items", err)
			return nil, err
		}
		q.Items = items
	}
	return q, nil
}

// ListQuotes lists quote headers newest first.
func (s *SalesService) ListQuotes(ctx context.Context, filter domain.QuoteFilter) ([]domain.Quote, error) {
	ctx, span := salesTracer.Start(ctx, "SalesService.ListQuotes")
	defer span.End()

	if filter.Status != "" && !filter.Status.Valid() {
		return nil, validationErr("status", fmt.Sprintf("unknown quote status %q", filter.Status))
	}
	quotes, err := s.store.ListQuotes(ctx, filter)
	if err != nil {
		s.storeError("list_quotes", err)
		return nil, err
	}
	return quotes, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func derefOr(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
