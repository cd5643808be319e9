package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/boddenberg/sales-pipeline-go/internal/domain"

	"go.uber.org/zap"
)

// ============================================================
// Quote → lead synchronization
// ============================================================

// QuoteEvent is a lifecycle step that has consequences on the quote's lead.
type QuoteEvent string

const (
	EventQuoteSent     QuoteEvent = "quote_sent"
	EventQuoteAccepted QuoteEvent = "quote_accepted"
	EventQuoteRejected QuoteEvent = "quote_rejected"
)

// Step names reported in ErrPartialSync.
const (
	stepQuote    = "quote"
	stepLead     = "lead"
	stepActivity = "activity"
)

type syncRule struct {
	leadTarget domain.LeadStatus // empty: lead stage untouched
	activity   domain.ActivityType
	title      func(q *domain.Quote) string
}

var syncRules = map[QuoteEvent]syncRule{
	EventQuoteSent: {
		leadTarget: domain.LeadStatusQuoteSent,
		activity:   domain.ActivityQuoteSent,
		title:      func(q *domain.Quote) string { return fmt.Sprintf("Quote %s sent", q.QuoteNumber) },
	},
	EventQuoteAccepted: {
		leadTarget: domain.LeadStatusWon,
		activity:   domain.ActivityQuoteAccepted,
		title:      func(q *domain.Quote) string { return fmt.Sprintf("Quote %s accepted", q.QuoteNumber) },
	},
	EventQuoteRejected: {
		activity: domain.ActivityQuoteRejected,
		title:    func(q *domain.Quote) string { return fmt.Sprintf("Quote %s rejected", q.QuoteNumber) },
	},
}

// syncLead applies the rule for event to the quote's lead. The quote write has
// already committed. Calling this again after a partial failure only performs
// what is still missing; once the rule has completed it is a no-op.
func (s *SalesService) syncLead(ctx context.Context, op domain.Operator, q *domain.Quote, event QuoteEvent) error {
	if !q.HasLead() {
		return nil
	}
	rule, ok := syncRules[event]
	if !ok {
		return fmt.Errorf("no synchronization rule for %s", event)
	}
	leadID := *q.LeadID
	completed := []string{stepQuote}

	lead, err := s.store.GetLead(ctx, leadID)
	if err != nil {
		var nf *domain.ErrNotFound
		if errors.As(err, &nf) {
			s.logger.Warn("quote references a missing lead, skipping synchronization",
				zap.String("quote_id", q.ID), zap.String("lead_id", leadID))
			return nil
		}
		s.storeError("get_lead", err)
		return s.partialSync(string(event), q.ID, leadID, completed, stepLead, err)
	}

	// The activity is written last, so its presence means the rule already
	// ran for this quote. The lead may have been moved by hand since then.
	existing, err := s.store.FindActivity(ctx, leadID, q.ID, rule.activity)
	if err != nil {
		s.storeError("find_activity", err)
		return s.partialSync(string(event), q.ID, leadID, completed, stepLead, err)
	}
	if existing != nil {
		return nil
	}

	if rule.leadTarget != "" {
		if _, err := s.applyAutomaticTransition(ctx, lead, rule.leadTarget, q.ID); err != nil {
			return s.partialSync(string(event), q.ID, leadID, completed, stepLead, err)
		}
		completed = append(completed, stepLead)
	}

	_, err = s.store.AppendActivity(ctx, &domain.Activity{
		LeadID:      leadID,
		Type:        rule.activity,
		Title:       rule.title(q),
		Description: fmt.Sprintf("Total %s", domain.FormatMoney(q.Total)),
		QuoteID:     strPtr(q.ID),
		CreatedBy:   op.ID,
		CreatedAt:   s.Now(),
	})
	if err != nil {
		s.storeError("append_activity", err)
		return s.partialSync(string(event), q.ID, leadID, completed, stepActivity, err)
	}
	return nil
}

func (s *SalesService) partialSync(operation, quoteID, leadID string, completed []string, failed string, err error) error {
	s.metrics.IncrPartialSync(operation, failed)
	s.logger.Error("partial synchronization",
		zap.String("operation", operation),
		zap.String("quote_id", quoteID),
		zap.String("lead_id", leadID),
		zap.Strings("completed", completed),
		zap.String("failed", failed),
		zap.Error(err),
	)
	return &domain.ErrPartialSync{
		Operation: operation,
		QuoteID:   quoteID,
		LeadID:    leadID,
		Completed: completed,
		Failed:    failed,
		Err:       err,
	}
}
