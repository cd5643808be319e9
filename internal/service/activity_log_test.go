package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/boddenberg/sales-pipeline-go/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendActivity_Manual(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lead := f.lead(t)

	a, err := f.svc.AppendActivity(ctx, operator, domain.AppendActivityInput{
		LeadID: lead.ID, Type: domain.ActivityCall, Title: " Discussed layout ", Description: "Prefers an island",
	})
	require.NoError(t, err)
	assert.Equal(t, "Discussed layout", a.Title)
	assert.Equal(t, "op-1", a.CreatedBy)
	assert.Equal(t, f.clock.Now(), a.CreatedAt)
}

func TestAppendActivity_Rejects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lead := f.lead(t)
	when := time.Date(2026, 3, 20, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		in    domain.AppendActivityInput
		field string
	}{
		{"system type", domain.AppendActivityInput{LeadID: lead.ID, Type: domain.ActivityQuoteAccepted, Title: "x"}, "type"},
		{"status change", domain.AppendActivityInput{LeadID: lead.ID, Type: domain.ActivityStatusChange, Title: "x"}, "type"},
		{"unknown type", domain.AppendActivityInput{LeadID: lead.ID, Type: "sms", Title: "x"}, "type"},
		{"no title", domain.AppendActivityInput{LeadID: lead.ID, Type: domain.ActivityNote}, "title"},
		{"follow-up date on a note", domain.AppendActivityInput{LeadID: lead.ID, Type: domain.ActivityNote, Title: "x", FollowUpAt: &when}, "follow_up_at"},
		{"meeting date on a call", domain.AppendActivityInput{LeadID: lead.ID, Type: domain.ActivityCall, Title: "x", MeetingAt: &when}, "meeting_at"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.AppendActivity(ctx, operator, tt.in)
			var ve *domain.ErrValidation
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}

	_, err := f.svc.AppendActivity(ctx, operator, domain.AppendActivityInput{LeadID: "missing", Type: domain.ActivityNote, Title: "x"})
	var nf *domain.ErrNotFound
	assert.ErrorAs(t, err, &nf)

	all, err := f.svc.ListActivities(ctx, lead.ID)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestAppendActivity_MovesLeadDates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lead := f.lead(t)
	followUp := time.Date(2026, 3, 17, 9, 30, 0, 0, time.UTC)
	meeting := time.Date(2026, 3, 19, 16, 0, 0, 0, time.UTC)

	_, err := f.svc.AppendActivity(ctx, operator, domain.AppendActivityInput{
		LeadID: lead.ID, Type: domain.ActivityFollowUp, Title: "Call back next week", FollowUpAt: &followUp,
	})
	require.NoError(t, err)
	_, err = f.svc.AppendActivity(ctx, operator, domain.AppendActivityInput{
		LeadID: lead.ID, Type: domain.ActivityMeeting, Title: "Showroom meeting", MeetingAt: &meeting,
	})
	require.NoError(t, err)

	got, err := f.svc.GetLead(ctx, lead.ID)
	require.NoError(t, err)
	require.NotNil(t, got.NextFollowUp)
	require.NotNil(t, got.MeetingDate)
	assert.True(t, followUp.Equal(*got.NextFollowUp))
	assert.True(t, meeting.Equal(*got.MeetingDate))
	assert.Equal(t, domain.LeadStatusNew, got.Status, "dates never move the stage")
}

func TestAppendActivity_QuoteMustBelongToLead(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.lead(t)
	b := f.lead(t)
	q := f.quote(t, &b.ID)

	_, err := f.svc.AppendActivity(ctx, operator, domain.AppendActivityInput{LeadID: a.ID, Type: domain.ActivityEmail, Title: "x", QuoteID: &q.ID})
	var ve *domain.ErrValidation
	require.ErrorAs(t, err, &ve)

	_, err = f.svc.AppendActivity(ctx, operator, domain.AppendActivityInput{LeadID: b.ID, Type: domain.ActivityEmail, Title: "Sent PDF", QuoteID: &q.ID})
	require.NoError(t, err)
}

func TestAppendActivity_LeadDateFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lead := f.lead(t)
	followUp := time.Date(2026, 3, 17, 9, 30, 0, 0, time.UTC)

	f.store.set(func(s *flakyStore) { s.failUpdateLead = true })
	_, err := f.svc.AppendActivity(ctx, operator, domain.AppendActivityInput{
		LeadID: lead.ID, Type: domain.ActivityFollowUp, Title: "Call back", FollowUpAt: &followUp,
	})
	var ps *domain.ErrPartialSync
	require.ErrorAs(t, err, &ps)
	assert.Equal(t, []string{"activity"}, ps.Completed)
	assert.Equal(t, "lead_dates", ps.Failed)
}

func TestListActivities_NewestFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lead := f.lead(t)

	for _, title := range []string{"first", "second", "third"} {
		_, err := f.svc.AppendActivity(ctx, operator, domain.AppendActivityInput{LeadID: lead.ID, Type: domain.ActivityNote, Title: title})
		require.NoError(t, err)
		f.clock.Advance(time.Minute)
	}

	all, err := f.svc.ListActivities(ctx, lead.ID)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "third", all[0].Title)
	assert.Equal(t, "first", all[2].Title)
}
