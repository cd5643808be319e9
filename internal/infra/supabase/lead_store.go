package supabase

import (
	"context"
	"fmt"
	"time"

	"github.com/boddenberg/sales-pipeline-go/internal/domain"
	"github.com/boddenberg/sales-pipeline-go/internal/infra/resilience"

	"github.com/google/uuid"
)

// ============================================================
// Leads store
// ============================================================

// leadColumns lists the columns UpdateLead may write.
var leadColumns = map[string]bool{
	"name": true, "phone": true, "email": true, "address": true, "city": true,
	"source": true, "project_type": true, "size_sqm": true, "budget_range": true,
	"timeline": true, "notes": true, "status": true, "status_note": true,
	"next_follow_up": true, "meeting_date": true, "updated_at": true,
}

func (c *Client) CreateLead(ctx context.Context, lead *domain.Lead) (*domain.Lead, error) {
	id := lead.ID
	if id == "" {
		id = uuid.NewString()
	}
	data := map[string]any{
		"id":             id,
		"name":           lead.Name,
		"phone":          lead.Phone,
		"email":          lead.Email,
		"address":        lead.Address,
		"city":           lead.City,
		"source":         lead.Source,
		"project_type":   lead.ProjectType,
		"size_sqm":       lead.SizeSqm,
		"budget_range":   lead.BudgetRange,
		"timeline":       lead.Timeline,
		"notes":          lead.Notes,
		"status":         lead.Status,
		"status_note":    lead.StatusNote,
		"next_follow_up": lead.NextFollowUp,
		"meeting_date":   lead.MeetingDate,
		"created_at":     lead.CreatedAt.UTC().Format(time.RFC3339Nano),
		"updated_at":     lead.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}

	var created *domain.Lead
	err := c.call(ctx, "CreateLead", func() error {
		var rows []domain.Lead
		if err := c.doPost(ctx, "leads", data, &rows); err != nil {
			return err
		}
		if len(rows) == 0 {
			return resilience.Permanent(fmt.Errorf("insert into leads returned no row"))
		}
		created = &rows[0]
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (c *Client) GetLead(ctx context.Context, leadID string) (*domain.Lead, error) {
	var lead *domain.Lead
	err := c.call(ctx, "GetLead", func() error {
		var rows []domain.Lead
		if err := c.doGet(ctx, from("leads").eq("id", leadID).limit(1).String(), &rows); err != nil {
			return err
		}
		if len(rows) == 0 {
			return resilience.Permanent(&domain.ErrNotFound{Resource: "lead", ID: leadID})
		}
		lead = &rows[0]
		return nil
	})
	if err != nil {
		return nil, err
	}
	return lead, nil
}

func (c *Client) ListLeads(ctx context.Context, filter domain.LeadFilter) ([]domain.Lead, error) {
	q := from("leads").order("created_at.desc,id.asc").page(filter.Page, filter.PageSize)
	if filter.Status != "" {
		q.eq("status", string(filter.Status))
	}

	var rows []domain.Lead
	err := c.call(ctx, "ListLeads", func() error {
		return c.doGet(ctx, q.String(), &rows)
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (c *Client) UpdateLead(ctx context.Context, leadID string, updates map[string]any) error {
	data := make(map[string]any, len(updates))
	for k, v := range updates {
		if !leadColumns[k] {
			return &domain.ErrValidation{Field: k, Message: "unknown lead column"}
		}
		if t, ok := v.(time.Time); ok {
			v = t.UTC().Format(time.RFC3339Nano)
		}
		data[k] = v
	}

	return c.call(ctx, "UpdateLead", func() error {
		n, err := c.doPatch(ctx, from("leads").eq("id", leadID).String(), data)
		if err != nil {
			return err
		}
		if n == 0 {
			return resilience.Permanent(&domain.ErrNotFound{Resource: "lead", ID: leadID})
		}
		return nil
	})
}

func (c *Client) DeleteLead(ctx context.Context, leadID string) error {
	return c.call(ctx, "DeleteLead", func() error {
		n, err := c.doDelete(ctx, from("leads").eq("id", leadID).String())
		if err != nil {
			return err
		}
		if n == 0 {
			return resilience.Permanent(&domain.ErrNotFound{Resource: "lead", ID: leadID})
		}
		return nil
	})
}

func (c *Client) CountLeadsByStatus(ctx context.Context) (map[domain.LeadStatus]int, error) {
	var rows []struct {
		Status domain.LeadStatus `json:"status"`
	}
	err := c.call(ctx, "CountLeadsByStatus", func() error {
		return c.doGet(ctx, from("leads").sel("status").String(), &rows)
	})
	if err != nil {
		return nil, err
	}

	counts := make(map[domain.LeadStatus]int)
	for _, r := range rows {
		counts[r.Status]++
	}
	return counts, nil
}
