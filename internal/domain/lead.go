// Package domain defines the core entities of the sales pipeline: leads,
// quotes with their line items, and the activity journal. These types are
// independent of any store and are shared by services, adapters and handlers.
package domain

import "time"

// ============================================================
// Lead pipeline stages
// ============================================================

// LeadStatus is the pipeline stage of a lead.
type LeadStatus string

const (
	LeadStatusNew         LeadStatus = "new"
	LeadStatusContacted   LeadStatus = "contacted"
	LeadStatusMeetingSet  LeadStatus = "meeting_set"
	LeadStatusMeetingDone LeadStatus = "meeting_done"
	LeadStatusQuoteSent   LeadStatus = "quote_sent"
	LeadStatusNegotiating LeadStatus = "negotiating"
	LeadStatusWon         LeadStatus = "won"
	LeadStatusLost        LeadStatus = "lost"
	LeadStatusOnHold      LeadStatus = "on_hold"
)

var leadStatuses = []LeadStatus{
	LeadStatusNew,
	LeadStatusContacted,
	LeadStatusMeetingSet,
	LeadStatusMeetingDone,
	LeadStatusQuoteSent,
	LeadStatusNegotiating,
	LeadStatusWon,
	LeadStatusLost,
	LeadStatusOnHold,
}

// AllLeadStatuses returns the nine pipeline stages in pipeline order.
func AllLeadStatuses() []LeadStatus {
	out := make([]LeadStatus, len(leadStatuses))
	copy(out, leadStatuses)
	return out
}

// Valid reports whether s is one of the nine pipeline stages.
func (s LeadStatus) Valid() bool {
	for _, v := range leadStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no automatic transition may leave s.
func (s LeadStatus) IsTerminal() bool {
	return s == LeadStatusWon || s == LeadStatusLost
}

// LeadSource is how the prospect reached the business.
type LeadSource string

const (
	LeadSourceWebsite  LeadSource = "website"
	LeadSourcePhone    LeadSource = "phone"
	LeadSourceReferral LeadSource = "referral"
	LeadSourceSocial   LeadSource = "social"
	LeadSourceWalkIn   LeadSource = "walk_in"
	LeadSourceShowroom LeadSource = "showroom"
	LeadSourceOther    LeadSource = "other"
)

func (s LeadSource) Valid() bool {
	switch s {
	case LeadSourceWebsite, LeadSourcePhone, LeadSourceReferral, LeadSourceSocial,
		LeadSourceWalkIn, LeadSourceShowroom, LeadSourceOther:
		return true
	}
	return false
}

// ProjectType is the kind of work the prospect is asking about.
type ProjectType string

const (
	ProjectTypeKitchen  ProjectType = "kitchen"
	ProjectTypeCloset   ProjectType = "closet"
	ProjectTypeBathroom ProjectType = "bathroom"
	ProjectTypeOther    ProjectType = "other"
)

func (p ProjectType) Valid() bool {
	switch p {
	case ProjectTypeKitchen, ProjectTypeCloset, ProjectTypeBathroom, ProjectTypeOther:
		return true
	}
	return false
}

// ============================================================
// Lead
// ============================================================

// Lead is a prospective customer inquiry. Quotes and activities point at a
// lead by ID; the lead holds no collection of either.
type Lead struct {
	ID           string      `json:"id"`
	Name         string      `json:"name"`
	Phone        string      `json:"phone"`
	Email        string      `json:"email,omitempty"`
	Address      string      `json:"address,omitempty"`
	City         string      `json:"city,omitempty"`
	Source       LeadSource  `json:"source"`
	ProjectType  ProjectType `json:"project_type"`
	SizeSqm      *float64    `json:"size_sqm,omitempty"`
	BudgetRange  string      `json:"budget_range,omitempty"`
	Timeline     string      `json:"timeline,omitempty"`
	Notes        string      `json:"notes,omitempty"`
	Status       LeadStatus  `json:"status"`
	StatusNote   string      `json:"status_note,omitempty"`
	NextFollowUp *time.Time  `json:"next_follow_up,omitempty"`
	MeetingDate  *time.Time  `json:"meeting_date,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// CreateLeadInput is the payload to register a new lead.
type CreateLeadInput struct {
	Name        string      `json:"name"`
	Phone       string      `json:"phone"`
	Email       string      `json:"email,omitempty"`
	Address     string      `json:"address,omitempty"`
	City        string      `json:"city,omitempty"`
	Source      LeadSource  `json:"source,omitempty"`
	ProjectType ProjectType `json:"project_type,omitempty"`
	SizeSqm     *float64    `json:"size_sqm,omitempty"`
	BudgetRange string      `json:"budget_range,omitempty"`
	Timeline    string      `json:"timeline,omitempty"`
	Notes       string      `json:"notes,omitempty"`
}

// UpdateLeadInput edits contact and project fields. Nil fields are left as-is.
// Status is deliberately absent: it only moves through TransitionLead.
type UpdateLeadInput struct {
	Name        *string      `json:"name,omitempty"`
	Phone       *string      `json:"phone,omitempty"`
	Email       *string      `json:"email,omitempty"`
	Address     *string      `json:"address,omitempty"`
	City        *string      `json:"city,omitempty"`
	Source      *LeadSource  `json:"source,omitempty"`
	ProjectType *ProjectType `json:"project_type,omitempty"`
	SizeSqm     *float64     `json:"size_sqm,omitempty"`
	BudgetRange *string      `json:"budget_range,omitempty"`
	Timeline    *string      `json:"timeline,omitempty"`
	Notes       *string      `json:"notes,omitempty"`
}

// ContactFormInput is what a visitor submits through the public site.
type ContactFormInput struct {
	Name        string      `json:"name"`
	Phone       string      `json:"phone"`
	Email       string      `json:"email,omitempty"`
	City        string      `json:"city,omitempty"`
	ProjectType ProjectType `json:"project_type,omitempty"`
	Message     string      `json:"message,omitempty"`
}

// LeadFilter narrows ListLeads. Zero values mean "any".
type LeadFilter struct {
	Status   LeadStatus
	Page     int
	PageSize int
}

// LeadTimeline is the full history view of a lead.
type LeadTimeline struct {
	Lead       *Lead      `json:"lead"`
	Quotes     []Quote    `json:"quotes"`
	Activities []Activity `json:"activities"`
}

// PipelineSummary counts leads per stage.
type PipelineSummary struct {
	Total   int                `json:"total"`
	ByStage map[LeadStatus]int `json:"by_stage"`
}
