package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/boddenberg/sales-pipeline-go/internal/domain"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// Activity journal
// ============================================================

// AppendActivity records a manual journal entry. A followup entry with a date
// moves the lead's next follow-up; a meeting entry with a date moves its
// meeting date.
func (s *SalesService) AppendActivity(ctx context.Context, op domain.Operator, in domain.AppendActivityInput) (*domain.Activity, error) {
	ctx, span := salesTracer.Start(ctx, "SalesService.AppendActivity")
	defer span.End()
	span.SetAttributes(attribute.String("lead.id", in.LeadID), attribute.String("activity.type", string(in.Type)))

	if !in.Type.Valid() {
		return nil, validationErr("type", fmt.Sprintf("unknown activity type %q", in.Type))
	}
	if !in.Type.IsManual() {
		return nil, validationErr("type", fmt.Sprintf("%s entries are written by the pipeline only", in.Type))
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, validationErr("title", "title is required")
	}
	if in.FollowUpAt != nil && in.Type != domain.ActivityFollowUp {
		return nil, validationErr("follow_up_at", "only allowed on followup entries")
	}
	if in.MeetingAt != nil && in.Type != domain.ActivityMeeting {
		return nil, validationErr("meeting_at", "only allowed on meeting entries")
	}

	if _, err := s.store.GetLead(ctx, in.LeadID); err != nil {
		s.storeError("get_lead", err)
		return nil, err
	}
	if in.QuoteID != nil && *in.QuoteID != "" {
		q, err := s.store.GetQuote(ctx, *in.QuoteID)
		if err != nil {
			s.storeError("get_quote", err)
			return nil, err
		}
		if q.HasLead() && *q.LeadID != in.LeadID {
			return nil, validationErr("quote_id", "quote belongs to another lead")
		}
	}

	now := s.Now()
	entry := &domain.Activity{
		LeadID:      in.LeadID,
		Type:        in.Type,
		Title:       title,
		Description: strings.TrimSpace(in.Description),
		CreatedBy:   op.ID,
		CreatedAt:   now,
	}
	if in.QuoteID != nil && *in.QuoteID != "" {
		entry.QuoteID = strPtr(*in.QuoteID)
	}

	created, err := s.store.AppendActivity(ctx, entry)
	if err != nil {
		s.storeError("append_activity", err)
		return nil, fmt.Errorf("appending activity: %w", err)
	}

	updates := map[string]any{}
	if in.FollowUpAt != nil {
		updates["next_follow_up"] = in.FollowUpAt.UTC()
	}
	if in.MeetingAt != nil {
		updates["meeting_date"] = in.MeetingAt.UTC()
	}
	if len(updates) > 0 {
		updates["updated_at"] = now
		if err := s.store.UpdateLead(ctx, in.LeadID, updates); err != nil {
			s.storeError("update_lead", err)
			return created, s.partialSync("append_activity", "", in.LeadID, []string{"activity"}, "lead_dates", err)
		}
		s.invalidateLead(in.LeadID)
	}

	s.logger.Debug("activity appended",
		zap.String("lead_id", in.LeadID),
		zap.String("type", string(in.Type)),
		zap.String("operator", op.ID),
	)
	return created, nil
}

// ListActivities returns the lead's journal, newest first. Entries of a
// deleted lead are still returned.
func (s *SalesService) ListActivities(ctx context.Context, leadID string) ([]domain.Activity, error) {
	ctx, span := salesTracer.Start(ctx, "SalesService.ListActivities")
	defer span.End()
	span.SetAttributes(attribute.String("lead.id", leadID))

	activities, err := s.store.ListActivities(ctx, leadID)
	if err != nil {
		s.storeError("list_activities", err)
		return nil, err
	}
	if activities == nil {
		activities = []domain.Activity{}
	}
	return activities, nil
}
