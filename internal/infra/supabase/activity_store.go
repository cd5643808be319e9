package supabase

import (
	"context"
	"fmt"

	"github.com/boddenberg/sales-pipeline-go/internal/domain"
	"github.com/boddenberg/sales-pipeline-go/internal/infra/resilience"

	"github.com/google/uuid"
)

// ============================================================
// Activities store (append-only)
// ============================================================

func (c *Client) AppendActivity(ctx context.Context, a *domain.Activity) (*domain.Activity, error) {
	row := *a
	if row.ID == "" {
		row.ID = uuid.NewString()
	}
	row.CreatedAt = row.CreatedAt.UTC()

	var created *domain.Activity
	err := c.call(ctx, "AppendActivity", func() error {
		var rows []domain.Activity
		if err := c.doPost(ctx, "lead_activities", row, &rows); err != nil {
			return err
		}
		if len(rows) == 0 {
			return resilience.Permanent(fmt.Errorf("insert into lead_activities returned no row"))
		}
		created = &rows[0]
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (c *Client) ListActivities(ctx context.Context, leadID string) ([]domain.Activity, error) {
	var rows []domain.Activity
	err := c.call(ctx, "ListActivities", func() error {
		return c.doGet(ctx, from("lead_activities").eq("lead_id", leadID).order("created_at.desc,id.desc").String(), &rows)
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (c *Client) FindActivity(ctx context.Context, leadID, quoteID string, t domain.ActivityType) (*domain.Activity, error) {
	var rows []domain.Activity
	err := c.call(ctx, "FindActivity", func() error {
		q := from("lead_activities").
			eq("lead_id", leadID).
			eq("quote_id", quoteID).
			eq("type", string(t)).
			limit(1)
		return c.doGet(ctx, q.String(), &rows)
	})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}
