package domain

import "time"

// ActivityType classifies a journal entry.
type ActivityType string

const (
	ActivityNote          ActivityType = "note"
	ActivityCall          ActivityType = "call"
	ActivityEmail         ActivityType = "email"
	ActivityMeeting       ActivityType = "meeting"
	ActivityQuoteSent     ActivityType = "quote_sent"
	ActivityQuoteAccepted ActivityType = "quote_accepted"
	ActivityQuoteRejected ActivityType = "quote_rejected"
	ActivityStatusChange  ActivityType = "status_change"
	ActivityFollowUp      ActivityType = "followup"
)

func (t ActivityType) Valid() bool {
	return t.IsManual() || t.IsSystem()
}

// IsManual reports whether an operator may record this type directly.
func (t ActivityType) IsManual() bool {
	switch t {
	case ActivityNote, ActivityCall, ActivityEmail, ActivityMeeting, ActivityFollowUp:
		return true
	}
	return false
}

// IsSystem reports whether only the engine itself writes this type.
func (t ActivityType) IsSystem() bool {
	switch t {
	case ActivityQuoteSent, ActivityQuoteAccepted, ActivityQuoteRejected, ActivityStatusChange:
		return true
	}
	return false
}

// Activity is one append-only journal entry about a lead.
type Activity struct {
	ID          string       `json:"id"`
	LeadID      string       `json:"lead_id"`
	Type        ActivityType `json:"type"`
	Title       string       `json:"title"`
	Description string       `json:"description,omitempty"`
	QuoteID     *string      `json:"quote_id,omitempty"`
	CreatedBy   string       `json:"created_by,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
}

// AppendActivityInput is a manual journal entry. FollowUpAt and MeetingAt
// also move the lead's follow-up and meeting dates.
type AppendActivityInput struct {
	LeadID      string       `json:"lead_id"`
	Type        ActivityType `json:"type"`
	Title       string       `json:"title"`
	Description string       `json:"description,omitempty"`
	QuoteID     *string      `json:"quote_id,omitempty"`
	FollowUpAt  *time.Time   `json:"follow_up_at,omitempty"`
	MeetingAt   *time.Time   `json:"meeting_at,omitempty"`
}

// Operator is the person performing an action. It is passed explicitly into
// every mutating operation.
type Operator struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// System is the operator recorded for entries the engine writes on behalf
// of the public site.
var System = Operator{ID: "system", Name: "System"}
