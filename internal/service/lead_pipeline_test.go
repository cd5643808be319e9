package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/boddenberg/sales-pipeline-go/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateLead_Defaults(t *testing.T) {
	f := newFixture(t)

	lead, err := f.svc.CreateLead(context.Background(), operator, domain.CreateLeadInput{Name: " Nikos ", Phone: "6900000000"})
	require.NoError(t, err)

	assert.Equal(t, "Nikos", lead.Name)
	assert.Equal(t, domain.LeadStatusNew, lead.Status)
	assert.Equal(t, domain.LeadSourceOther, lead.Source)
	assert.Equal(t, domain.ProjectTypeOther, lead.ProjectType)
	assert.Equal(t, f.clock.Now(), lead.CreatedAt)
	assert.NotEmpty(t, lead.ID)
}

func TestCreateLead_Validation(t *testing.T) {
	f := newFixture(t)
	size := -3.0
	tests := []struct {
		name  string
		in    domain.CreateLeadInput
		field string
	}{
		{"missing name", domain.CreateLeadInput{Phone: "1"}, "name"},
		{"missing phone", domain.CreateLeadInput{Name: "A"}, "phone"},
		{"bad email", domain.CreateLeadInput{Name: "A", Phone: "1", Email: "not-an-email"}, "email"},
		{"bad source", domain.CreateLeadInput{Name: "A", Phone: "1", Source: "billboard"}, "source"},
		{"bad project type", domain.CreateLeadInput{Name: "A", Phone: "1", ProjectType: "garage"}, "project_type"},
		{"bad size", domain.CreateLeadInput{Name: "A", Phone: "1", SizeSqm: &size}, "size_sqm"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreateLead(context.Background(), operator, tt.in)
			var ve *domain.ErrValidation
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestSubmitContactForm(t *testing.T) {
	f := newFixture(t)

	lead, err := f.svc.SubmitContactForm(context.Background(), domain.ContactFormInput{
		Name:        "Katerina",
		Phone:       "6911111111",
		ProjectType: domain.ProjectTypeCloset,
		Message:     "Looking for a walk-in closet, about 6 sqm.",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.LeadSourceWebsite, lead.Source)

	notes := f.activities(t, lead.ID, domain.ActivityNote)
	require.Len(t, notes, 1)
	assert.Equal(t, "Looking for a walk-in closet, about 6 sqm.", notes[0].Description)
	assert.Equal(t, domain.System.ID, notes[0].CreatedBy)
}

func TestTransitionLead(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lead := f.lead(t)

	f.clock.Advance(time.Hour)
	moved, err := f.svc.TransitionLead(ctx, operator, lead.ID, domain.LeadStatusMeetingSet, "Showroom visit Thursday")
	require.NoError(t, err)
	assert.Equal(t, domain.LeadStatusMeetingSet, moved.Status)
	assert.Equal(t, "Showroom visit Thursday", moved.StatusNote)
	assert.Equal(t, f.clock.Now(), moved.UpdatedAt)

	changes := f.activities(t, lead.ID, domain.ActivityStatusChange)
	require.Len(t, changes, 1)
	assert.Equal(t, "Showroom visit Thursday", changes[0].Description)

	_, err = f.svc.TransitionLead(ctx, operator, lead.ID, domain.LeadStatusMeetingSet, "")
	require.NoError(t, err)
	assert.Len(t, f.activities(t, lead.ID, domain.ActivityStatusChange), 1, "same stage is a no-op")
}

func TestTransitionLead_RetryBackfillsJournal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lead := f.lead(t)
	_, err := f.svc.TransitionLead(ctx, operator, lead.ID, domain.LeadStatusContacted, "")
	require.NoError(t, err)

	f.clock.Advance(time.Hour)
	f.store.set(func(s *flakyStore) { s.failAppend = true })
	_, err = f.svc.TransitionLead(ctx, operator, lead.ID, domain.LeadStatusNegotiating, "price talks")
	var ps *domain.ErrPartialSync
	require.ErrorAs(t, err, &ps)
	assert.Equal(t, []string{"lead"}, ps.Completed)
	assert.Equal(t, domain.LeadStatusNegotiating, f.leadStatus(t, lead.ID))
	require.Len(t, f.activities(t, lead.ID, domain.ActivityStatusChange), 1)

	f.clock.Advance(time.Minute)
	f.store.set(func(s *flakyStore) { s.failAppend = false })
	_, err = f.svc.TransitionLead(ctx, operator, lead.ID, domain.LeadStatusNegotiating, "price talks")
	require.NoError(t, err)
	changes := f.activities(t, lead.ID, domain.ActivityStatusChange)
	require.Len(t, changes, 2)
	assert.ElementsMatch(t, []string{
		"Status changed from new to contacted",
		"Status changed from contacted to negotiating",
	}, []string{changes[0].Title, changes[1].Title})

	_, err = f.svc.TransitionLead(ctx, operator, lead.ID, domain.LeadStatusNegotiating, "")
	require.NoError(t, err)
	assert.Len(t, f.activities(t, lead.ID, domain.ActivityStatusChange), 2)
}

func TestTransitionLead_SameStageAfterSync(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lead := f.lead(t)

	_, err := f.svc.TransitionLead(ctx, operator, lead.ID, domain.LeadStatusNew, "")
	require.NoError(t, err)

	q := f.quote(t, &lead.ID)
	_, err = f.svc.SendQuote(ctx, operator, q.ID)
	require.NoError(t, err)
	_, err = f.svc.TransitionLead(ctx, operator, lead.ID, domain.LeadStatusQuoteSent, "")
	require.NoError(t, err)
	assert.Empty(t, f.activities(t, lead.ID, domain.ActivityStatusChange), "the quote_sent entry already explains the stage")
}

func TestTransitionLead_ManualCorrectionsAllowed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lead := f.lead(t)

	for _, to := range []domain.LeadStatus{
		domain.LeadStatusWon, domain.LeadStatusContacted, domain.LeadStatusLost,
		domain.LeadStatusOnHold, domain.LeadStatusNegotiating, domain.LeadStatusNew,
	} {
		_, err := f.svc.TransitionLead(ctx, operator, lead.ID, to, "")
		require.NoError(t, err, to)
		assert.Equal(t, to, f.leadStatus(t, lead.ID))
	}
}

func TestTransitionLead_UnknownStage(t *testing.T) {
	f := newFixture(t)
	lead := f.lead(t)

	_, err := f.svc.TransitionLead(context.Background(), operator, lead.ID, "archived", "")
	var it *domain.ErrInvalidTransition
	require.ErrorAs(t, err, &it)
	assert.Equal(t, domain.LeadStatusNew, f.leadStatus(t, lead.ID))
}

func TestGetLead_CacheInvalidatedOnWrite(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lead := f.lead(t)

	first, err := f.svc.GetLead(ctx, lead.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.LeadStatusNew, first.Status)

	_, err = f.svc.TransitionLead(ctx, operator, lead.ID, domain.LeadStatusContacted, "")
	require.NoError(t, err)

	second, err := f.svc.GetLead(ctx, lead.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.LeadStatusContacted, second.Status)

	q := f.quote(t, &lead.ID)
	_, err = f.svc.SendQuote(ctx, operator, q.ID)
	require.NoError(t, err)

	third, err := f.svc.GetLead(ctx, lead.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.LeadStatusQuoteSent, third.Status)
}

func TestUpdateLead(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lead := f.lead(t)

	city := "Thessaloniki"
	size := 14.5
	updated, err := f.svc.UpdateLead(ctx, operator, lead.ID, domain.UpdateLeadInput{City: &city, SizeSqm: &size})
	require.NoError(t, err)
	assert.Equal(t, "Thessaloniki", updated.City)
	require.NotNil(t, updated.SizeSqm)
	assert.Equal(t, 14.5, *updated.SizeSqm)
	assert.Equal(t, domain.LeadStatusNew, updated.Status)

	empty := " "
	_, err = f.svc.UpdateLead(ctx, operator, lead.ID, domain.UpdateLeadInput{Phone: &empty})
	var ve *domain.ErrValidation
	assert.ErrorAs(t, err, &ve)

	_, err = f.svc.UpdateLead(ctx, operator, "missing", domain.UpdateLeadInput{City: &city})
	var nf *domain.ErrNotFound
	assert.ErrorAs(t, err, &nf)
}

func TestDeleteLead(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	withQuote := f.lead(t)
	f.quote(t, &withQuote.ID)
	err := f.svc.DeleteLead(ctx, operator, withQuote.ID)
	var conflict *domain.ErrConflict
	require.ErrorAs(t, err, &conflict)

	plain := f.lead(t)
	_, err = f.svc.AppendActivity(ctx, operator, domain.AppendActivityInput{LeadID: plain.ID, Type: domain.ActivityCall, Title: "No answer"})
	require.NoError(t, err)

	require.NoError(t, f.svc.DeleteLead(ctx, operator, plain.ID))
	_, err = f.svc.GetLead(ctx, plain.ID)
	var nf *domain.ErrNotFound
	assert.ErrorAs(t, err, &nf)

	history, err := f.svc.ListActivities(ctx, plain.ID)
	require.NoError(t, err)
	assert.Len(t, history, 1, "activities outlive the lead")
}

func TestPipelineSummary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.lead(t)
	f.lead(t)
	_, err := f.svc.TransitionLead(ctx, operator, a.ID, domain.LeadStatusLost, "Went with a competitor")
	require.NoError(t, err)

	summary, err := f.svc.PipelineSummary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Total)
	assert.Len(t, summary.ByStage, 9)
	assert.Equal(t, 1, summary.ByStage[domain.LeadStatusNew])
	assert.Equal(t, 1, summary.ByStage[domain.LeadStatusLost])
	assert.Equal(t, 0, summary.ByStage[domain.LeadStatusWon])
}

func TestLeadTimeline(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lead := f.lead(t)
	q := f.quote(t, &lead.ID)
	_, err := f.svc.SendQuote(ctx, operator, q.ID)
	require.NoError(t, err)

	tl, err := f.svc.LeadTimeline(ctx, lead.ID)
	require.NoError(t, err)
	assert.Equal(t, lead.ID, tl.Lead.ID)
	require.Len(t, tl.Quotes, 1)
	assert.Equal(t, q.ID, tl.Quotes[0].ID)
	require.Len(t, tl.Activities, 1)
	assert.Equal(t, domain.ActivityQuoteSent, tl.Activities[0].Type)

	_, err = f.svc.LeadTimeline(ctx, "missing")
	var nf *domain.ErrNotFound
	assert.ErrorAs(t, err, &nf)
}
