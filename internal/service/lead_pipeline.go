package service

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/boddenberg/sales-pipeline-go/internal/domain"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ============================================================
// Leads
// ============================================================

// CreateLead registers a new lead in the "new" stage.
func (s *SalesService) CreateLead(ctx context.Context, op domain.Operator, in domain.CreateLeadInput) (*domain.Lead, error) {
	ctx, span := salesTracer.Start(ctx, "SalesService.CreateLead")
	defer span.End()
	defer s.observe("create_lead", time.Now())

	lead, err := s.newLead(in)
	if err != nil {
		return nil, err
	}

	created, err := s.store.CreateLead(ctx, lead)
	if err != nil {
		s.storeError("create_lead", err)
		return nil, fmt.Errorf("creating lead: %w", err)
	}
	span.SetAttributes(attribute.String("lead.id", created.ID))

	s.logger.Info("lead created",
		zap.String("lead_id", created.ID),
		zap.String("source", string(created.Source)),
		zap.String("operator", op.ID),
	)
	return created, nil
}

// SubmitContactForm turns a public website inquiry into a lead and records the
// visitor's message as a note.
func (s *SalesService) SubmitContactForm(ctx context.Context, in domain.ContactFormInput) (*domain.Lead, error) {
	ctx, span := salesTracer.Start(ctx, "SalesService.SubmitContactForm")
	defer span.End()

	lead, err := s.CreateLead(ctx, domain.System, domain.CreateLeadInput{
		Name:        in.Name,
		Phone:       in.Phone,
		Email:       in.Email,
		City:        in.City,
		Source:      domain.LeadSourceWebsite,
		ProjectType: in.ProjectType,
	})
	if err != nil {
		return nil, err
	}

	title := "Website inquiry"
	if lead.ProjectType != domain.ProjectTypeOther {
		title = fmt.Sprintf("Website inquiry: %s", lead.ProjectType)
	}
	_, err = s.store.AppendActivity(ctx, &domain.Activity{
		LeadID:      lead.ID,
		Type:        domain.ActivityNote,
		Title:       title,
		Description: strings.TrimSpace(in.Message),
		CreatedBy:   domain.System.ID,
		CreatedAt:   s.Now(),
	})
	if err != nil {
		s.storeError("append_activity", err)
		return lead, s.partialSync("submit_contact_form", "", lead.ID, []string{"lead"}, "activity", err)
	}
	return lead, nil
}

func (s *SalesService) newLead(in domain.CreateLeadInput) (*domain.Lead, error) {
	name := strings.TrimSpace(in.Name)
	phone := strings.TrimSpace(in.Phone)
	if name == "" {
		return nil, validationErr("name", "name is required")
	}
	if phone == "" {
		return nil, validationErr("phone", "phone is required")
	}
	email := strings.TrimSpace(in.Email)
	if err := validateEmail(email); err != nil {
		return nil, err
	}

	source := in.Source
	if source == "" {
		source = domain.LeadSourceOther
	}
	if !source.Valid() {
		return nil, validationErr("source", fmt.Sprintf("unknown source %q", source))
	}
	projectType := in.ProjectType
	if projectType == "" {
		projectType = domain.ProjectTypeOther
	}
	if !projectType.Valid() {
		return nil, validationErr("project_type", fmt.Sprintf("unknown project type %q", projectType))
	}
	if in.SizeSqm != nil && *in.SizeSqm <= 0 {
		return nil, validationErr("size_sqm", "must be positive")
	}

	now := s.Now()
	return &domain.Lead{
		Name:        name,
		Phone:       phone,
		Email:       email,
		Address:     strings.TrimSpace(in.Address),
		City:        strings.TrimSpace(in.City),
		Source:      source,
		ProjectType: projectType,
		SizeSqm:     in.SizeSqm,
		BudgetRange: in.BudgetRange,
		Timeline:    in.Timeline,
		Notes:       in.Notes,
		Status:      domain.LeadStatusNew,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

func validateEmail(email string) error {
	if email == "" {
		return nil
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return validationErr("email", "invalid email address")
	}
	return nil
}

// GetLead reads a lead through the cache.
func (s *SalesService) GetLead(ctx context.Context, leadID string) (*domain.Lead, error) {
	ctx, span := salesTracer.Start(ctx, "SalesService.GetLead")
	defer span.End()
	span.SetAttributes(attribute.String("lead.id", leadID))

	if s.cache != nil {
		if cached, ok := s.cache.Get(leadCacheKey(leadID)); ok {
			s.metrics.IncrCacheHit("lead")
			out := *cached
			return &out, nil
		}
		s.metrics.IncrCacheMiss("lead")
	}

	lead, err := s.store.GetLead(ctx, leadID)
	if err != nil {
		s.storeError("get_lead", err)
		return nil, err
	}
	if s.cache != nil {
		stored := *lead
		s.cache.Set(leadCacheKey(leadID), &stored)
	}
	return lead, nil
}

// ListLeads lists leads newest first.
func (s *SalesService) ListLeads(ctx context.Context, filter domain.LeadFilter) ([]domain.Lead, error) {
	ctx, span := salesTracer.Start(ctx, "SalesService.ListLeads")
	defer span.End()

	if filter.Status != "" && !filter.Status.Valid() {
		return nil, validationErr("status", fmt.Sprintf("unknown pipeline stage %q", filter.Status))
	}
	leads, err := s.store.ListLeads(ctx, filter)
	if err != nil {
		s.storeError("list_leads", err)
		return nil, err
	}
	return leads, nil
}

// UpdateLead edits contact and project fields. It never moves the stage and
// never touches the lead's quotes, which keep their customer snapshot.
func (s *SalesService) UpdateLead(ctx context.Context, op domain.Operator, leadID string, in domain.UpdateLeadInput) (*domain.Lead, error) {
	ctx, span := salesTracer.Start(ctx, "SalesService.UpdateLead")
	defer span.End()
	span.SetAttributes(attribute.String("lead.id", leadID))

	updates := make(map[string]any)
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return nil, validationErr("name", "name is required")
		}
		updates["name"] = name
	}
	if in.Phone != nil {
		phone := strings.TrimSpace(*in.Phone)
		if phone == "" {
			return nil, validationErr("phone", "phone is required")
		}
		updates["phone"] = phone
	}
	if in.Email != nil {
		email := strings.TrimSpace(*in.Email)
		if err := validateEmail(email); err != nil {
			return nil, err
		}
		updates["email"] = email
	}
	if in.Source != nil {
		if !in.Source.Valid() {
			return nil, validationErr("source", fmt.Sprintf("unknown source %q", *in.Source))
		}
		updates["source"] = string(*in.Source)
	}
	if in.ProjectType != nil {
		if !in.ProjectType.Valid() {
			return nil, validationErr("project_type", fmt.Sprintf("unknown project type %q", *in.ProjectType))
		}
		updates["project_type"] = string(*in.ProjectType)
	}
	if in.SizeSqm != nil {
		if *in.SizeSqm <= 0 {
			return nil, validationErr("size_sqm", "must be positive")
		}
		updates["size_sqm"] = *in.SizeSqm
	}
	for column, v := range map[string]*string{
		"address":      in.Address,
		"city":         in.City,
		"budget_range": in.BudgetRange,
		"timeline":     in.Timeline,
		"notes":        in.Notes,
	} {
		if v != nil {
			updates[column] = strings.TrimSpace(*v)
		}
	}

	if len(updates) == 0 {
		return s.store.GetLead(ctx, leadID)
	}
	updates["updated_at"] = s.Now()

	if err := s.store.UpdateLead(ctx, leadID, updates); err != nil {
		s.storeError("update_lead", err)
		return nil, err
	}
	s.invalidateLead(leadID)

	s.logger.Info("lead updated", zap.String("lead_id", leadID), zap.String("operator", op.ID), zap.Int("fields", len(updates)-1))
	return s.store.GetLead(ctx, leadID)
}

// DeleteLead removes a lead that no quote references. Its activities stay in
// the journal.
func (s *SalesService) DeleteLead(ctx context.Context, op domain.Operator, leadID string) error {
	ctx, span := salesTracer.Start(ctx, "SalesService.DeleteLead")
	defer span.End()
	span.SetAttributes(attribute.String("lead.id", leadID))

	if _, err := s.store.GetLead(ctx, leadID); err != nil {
		return err
	}
	n, err := s.store.CountQuotesForLead(ctx, leadID)
	if err != nil {
		s.storeError("count_quotes", err)
		return err
	}
	if n > 0 {
		return &domain.ErrConflict{Message: fmt.Sprintf("lead %s is referenced by %d quote(s)", leadID, n)}
	}

	if err := s.store.DeleteLead(ctx, leadID); err != nil {
		s.storeError("delete_lead", err)
		return err
	}
	s.invalidateLead(leadID)

	s.logger.Warn("lead deleted", zap.String("lead_id", leadID), zap.String("operator", op.ID))
	return nil
}

// ============================================================
// Pipeline stages
// ============================================================

// TransitionLead moves a lead to any recognized stage. Manual corrections are
// always allowed, including leaving on_hold or reopening won/lost.
func (s *SalesService) TransitionLead(ctx context.Context, op domain.Operator, leadID string, to domain.LeadStatus, note string) (*domain.Lead, error) {
	ctx, span := salesTracer.Start(ctx, "SalesService.TransitionLead")
	defer span.End()
	defer s.observe("transition_lead", time.Now())
	span.SetAttributes(attribute.String("lead.id", leadID), attribute.String("lead.to", string(to)))

	if !to.Valid() {
		return nil, &domain.ErrInvalidTransition{Entity: "lead", ID: leadID, To: string(to), Reason: "unknown pipeline stage"}
	}

	lead, err := s.store.GetLead(ctx, leadID)
	if err != nil {
		s.storeError("get_lead", err)
		return nil, err
	}
	from := lead.Status
	note = strings.TrimSpace(note)
	if from == to {
		// A previous call may have moved the lead and then failed to journal it.
		prev, missing, err := s.unjournaledStage(ctx, leadID, to)
		if err != nil || !missing {
			return lead, err
		}
		return lead, s.journalStatusChange(ctx, op, leadID, prev, to, note, s.Now())
	}

	now := s.Now()
	err = s.store.UpdateLead(ctx, leadID, map[string]any{
		"status":      string(to),
		"status_note": note,
		"updated_at":  now,
	})
	if err != nil {
		s.storeError("update_lead", err)
		return nil, err
	}
	s.invalidateLead(leadID)
	lead.Status = to
	lead.StatusNote = note
	lead.UpdatedAt = now

	s.metrics.IncrLeadTransition(to, "manual")
	s.logger.Info("lead transitioned",
		zap.String("lead_id", leadID),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
		zap.String("operator", op.ID),
	)

	return lead, s.journalStatusChange(ctx, op, leadID, from, to, note, now)
}

func (s *SalesService) journalStatusChange(ctx context.Context, op domain.Operator, leadID string, from, to domain.LeadStatus, note string, at time.Time) error {
	_, err := s.store.AppendActivity(ctx, &domain.Activity{
		LeadID:      leadID,
		Type:        domain.ActivityStatusChange,
		Title:       statusChangeTitle(from, to),
		Description: note,
		CreatedBy:   op.ID,
		CreatedAt:   at,
	})
	if err != nil {
		s.storeError("append_activity", err)
		return s.partialSync("transition_lead", "", leadID, []string{"lead"}, "activity", err)
	}
	return nil
}

func statusChangeTitle(from, to domain.LeadStatus) string {
	return fmt.Sprintf("Status changed from %s to %s", from, to)
}

// unjournaledStage reports whether the lead sits at stage without a journal
// entry explaining how it got there. The newest stage-moving entry decides:
// a status_change names its target, a quote entry its sync rule's target.
// Quote entries that did not move the lead are skipped. prev is the stage
// the journal last recorded.
func (s *SalesService) unjournaledStage(ctx context.Context, leadID string, stage domain.LeadStatus) (prev domain.LeadStatus, missing bool, err error) {
	activities, err := s.store.ListActivities(ctx, leadID)
	if err != nil {
		s.storeError("list_activities", err)
		return "", false, err
	}
	for _, a := range activities {
		switch a.Type {
		case domain.ActivityStatusChange:
			var from, target string
			if _, err := fmt.Sscanf(a.Title, "Status changed from %s to %s", &from, &target); err != nil {
				continue
			}
			return domain.LeadStatus(target), domain.LeadStatus(target) != stage, nil
		case domain.ActivityQuoteSent, domain.ActivityQuoteAccepted:
			if syncRules[QuoteEvent(a.Type)].leadTarget == stage {
				return stage, false, nil
			}
		}
	}
	return domain.LeadStatusNew, stage != domain.LeadStatusNew, nil
}

// applyAutomaticTransition moves a lead as a consequence of a quote event.
// It never leaves won, lost or on_hold; those only change by hand.
func (s *SalesService) applyAutomaticTransition(ctx context.Context, lead *domain.Lead, to domain.LeadStatus, quoteID string) (bool, error) {
	if lead.Status == to || lead.Status.IsTerminal() || lead.Status == domain.LeadStatusOnHold {
		return false, nil
	}

	from := lead.Status
	now := s.Now()
	err := s.store.UpdateLead(ctx, lead.ID, map[string]any{
		"status":     string(to),
		"updated_at": now,
	})
	if err != nil {
		s.storeError("update_lead", err)
		return false, err
	}
	s.invalidateLead(lead.ID)
	lead.Status = to
	lead.UpdatedAt = now

	s.metrics.IncrLeadTransition(to, "sync")
	s.logger.Info("lead transitioned",
		zap.String("lead_id", lead.ID),
		zap.String("quote_id", quoteID),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
	)
	return true, nil
}

// ============================================================
// Views
// ============================================================

// LeadTimeline loads a lead with its quotes and journal concurrently.
func (s *SalesService) LeadTimeline(ctx context.Context, leadID string) (*domain.LeadTimeline, error) {
	ctx, span := salesTracer.Start(ctx, "SalesService.LeadTimeline")
	defer span.End()
	span.SetAttributes(attribute.String("lead.id", leadID))

	var (
		lead       *domain.Lead
		quotes     []domain.Quote
		activities []domain.Activity
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		lead, err = s.GetLead(gctx, leadID)
		return err
	})
	g.Go(func() error {
		var err error
		quotes, err = s.store.ListQuotes(gctx, domain.QuoteFilter{LeadID: leadID})
		return err
	})
	g.Go(func() error {
		var err error
		activities, err = s.store.ListActivities(gctx, leadID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if quotes == nil {
		quotes = []domain.Quote{}
	}
	if activities == nil {
		activities = []domain.Activity{}
	}
	return &domain.LeadTimeline{Lead: lead, Quotes: quotes, Activities: activities}, nil
}

// PipelineSummary counts leads per stage, with every stage present.
func (s *SalesService) PipelineSummary(ctx context.Context) (*domain.PipelineSummary, error) {
	ctx, span := salesTracer.Start(ctx, "SalesService.PipelineSummary")
	defer span.End()

	counts, err := s.store.CountLeadsByStatus(ctx)
	if err != nil {
		s.storeError("count_leads", err)
		return nil, err
	}

	summary := &domain.PipelineSummary{ByStage: make(map[domain.LeadStatus]int, 9)}
	for _, st := range domain.AllLeadStatuses() {
		summary.ByStage[st] = counts[st]
		summary.Total += counts[st]
	}
	return summary, nil
}
