package domain

import "time"

// ============================================================
// Quote lifecycle
// ============================================================

// QuoteStatus is the lifecycle state of a quote.
type QuoteStatus string

const (
	QuoteStatusDraft    QuoteStatus = "draft"
	QuoteStatusSent     QuoteStatus = "sent"
	QuoteStatusViewed   QuoteStatus = "viewed"
	QuoteStatusAccepted QuoteStatus = "accepted"
	QuoteStatusRejected QuoteStatus = "rejected"
	QuoteStatusExpired  QuoteStatus = "expired"
)

func (s QuoteStatus) Valid() bool {
	switch s {
	case QuoteStatusDraft, QuoteStatusSent, QuoteStatusViewed,
		QuoteStatusAccepted, QuoteStatusRejected, QuoteStatusExpired:
		return true
	}
	return false
}

// IsResponded reports whether the customer has already answered.
func (s QuoteStatus) IsResponded() bool {
	return s == QuoteStatusAccepted || s == QuoteStatusRejected
}

// AwaitingResponse reports whether the quote is out with the customer.
func (s QuoteStatus) AwaitingResponse() bool {
	return s == QuoteStatusSent || s == QuoteStatusViewed
}

// ItemCategory classifies a quote line.
type ItemCategory string

const (
	ItemCategoryCabinet      ItemCategory = "cabinet"
	ItemCategoryCountertop   ItemCategory = "countertop"
	ItemCategoryAppliance    ItemCategory = "appliance"
	ItemCategoryAccessory    ItemCategory = "accessory"
	ItemCategoryInstallation ItemCategory = "installation"
	ItemCategoryDesign       ItemCategory = "design"
	ItemCategoryDelivery     ItemCategory = "delivery"
	ItemCategoryOther        ItemCategory = "other"
)

func (c ItemCategory) Valid() bool {
	switch c {
	case ItemCategoryCabinet, ItemCategoryCountertop, ItemCategoryAppliance, ItemCategoryAccessory,
		ItemCategoryInstallation, ItemCategoryDesign, ItemCategoryDelivery, ItemCategoryOther:
		return true
	}
	return false
}

// ============================================================
// Quote
// ============================================================

// Customer is the contact snapshot copied onto a quote when it is created.
// Later edits to the lead never reach an issued quote.
type Customer struct {
	Name    string `json:"name"`
	Email   string `json:"email,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Address string `json:"address,omitempty"`
}

// Quote is a priced, numbered proposal. Subtotal, discount, VAT and total are
// derived from the items and frozen once the quote leaves draft.
type Quote struct {
	ID              string      `json:"id"`
	QuoteNumber     string      `json:"quote_number"`
	LeadID          *string     `json:"lead_id,omitempty"`
	Customer        Customer    `json:"customer"`
	Title           string      `json:"title"`
	Description     string      `json:"description,omitempty"`
	Subtotal        float64     `json:"subtotal"`
	DiscountPercent float64     `json:"discount_percent"`
	DiscountAmount  float64     `json:"discount_amount"`
	VATPercent      float64     `json:"vat_percent"`
	VATAmount       float64     `json:"vat_amount"`
	Total           float64     `json:"total"`
	PaymentTerms    string      `json:"payment_terms,omitempty"`
	DeliveryTime    string      `json:"delivery_time,omitempty"`
	Warranty        string      `json:"warranty,omitempty"`
	ValidityDays    int         `json:"validity_days"`
	Notes           string      `json:"notes,omitempty"`
	Status          QuoteStatus `json:"status"`
	SentAt          *time.Time  `json:"sent_at,omitempty"`
	ViewedAt        *time.Time  `json:"viewed_at,omitempty"`
	RespondedAt     *time.Time  `json:"responded_at,omitempty"`
	CreatedBy       string      `json:"created_by,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
	Items           []QuoteItem `json:"items,omitempty"`
}

// ValidUntil is the end of the validity window.
func (q *Quote) ValidUntil() time.Time {
	return q.CreatedAt.AddDate(0, 0, q.ValidityDays)
}

// IsExpired reports whether a quote still awaiting a response is past its
// validity window. It is a display predicate; nothing stores "expired".
func (q *Quote) IsExpired(now time.Time) bool {
	return q.Status.AwaitingResponse() && now.After(q.ValidUntil())
}

// EffectiveStatus is the status to show at time now.
func (q *Quote) EffectiveStatus(now time.Time) QuoteStatus {
	if q.IsExpired(now) {
		return QuoteStatusExpired
	}
	return q.Status
}

// HasLead reports whether the quote references a lead.
func (q *Quote) HasLead() bool {
	return q.LeadID != nil && *q.LeadID != ""
}

// ApplyTotals copies computed totals onto the quote.
func (q *Quote) ApplyTotals(t Totals) {
	q.Subtotal = t.Subtotal
	q.DiscountAmount = t.DiscountAmount
	q.VATAmount = t.VATAmount
	q.Total = t.Total
}

// QuoteItem is one priced line. TotalPrice is always Quantity × UnitPrice.
type QuoteItem struct {
	ID          string       `json:"id"`
	QuoteID     string       `json:"quote_id"`
	Category    ItemCategory `json:"category"`
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	WidthCm     *float64     `json:"width_cm,omitempty"`
	HeightCm    *float64     `json:"height_cm,omitempty"`
	DepthCm     *float64     `json:"depth_cm,omitempty"`
	Quantity    int          `json:"quantity"`
	UnitPrice   float64      `json:"unit_price"`
	TotalPrice  float64      `json:"total_price"`
	SortOrder   int          `json:"sort_order"`
}

// Totals is the output of the pricing calculator.
type Totals struct {
	Subtotal       float64 `json:"subtotal"`
	DiscountAmount float64 `json:"discount_amount"`
	VATAmount      float64 `json:"vat_amount"`
	Total          float64 `json:"total"`
}

// QuoteDefaults are the terms applied when a quote is created without them.
type QuoteDefaults struct {
	VATPercent   float64
	ValidityDays int
	PaymentTerms string
	DeliveryTime string
	Warranty     string
}

// QuoteItemInput is one line as submitted by the operator. ClientRef is the
// editor's local handle for the row; the store assigns the real ID.
type QuoteItemInput struct {
	ClientRef   string       `json:"client_ref,omitempty"`
	Category    ItemCategory `json:"category"`
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	WidthCm     *float64     `json:"width_cm,omitempty"`
	HeightCm    *float64     `json:"height_cm,omitempty"`
	DepthCm     *float64     `json:"depth_cm,omitempty"`
	Quantity    int          `json:"quantity"`
	UnitPrice   float64      `json:"unit_price"`
}

// CreateQuoteInput is the payload to draft a quote.
type CreateQuoteInput struct {
	LeadID          *string          `json:"lead_id,omitempty"`
	Customer        *Customer        `json:"customer,omitempty"`
	Title           string           `json:"title"`
	Description     string           `json:"description,omitempty"`
	Items           []QuoteItemInput `json:"items"`
	DiscountPercent float64          `json:"discount_percent"`
	PaymentTerms    string           `json:"payment_terms,omitempty"`
	DeliveryTime    string           `json:"delivery_time,omitempty"`
	Warranty        string           `json:"warranty,omitempty"`
	ValidityDays    int              `json:"validity_days,omitempty"`
	Notes           string           `json:"notes,omitempty"`
}

// ReviseQuoteInput replaces the items and/or discount of a draft.
type ReviseQuoteInput struct {
	Items           []QuoteItemInput `json:"items,omitempty"`
	DiscountPercent *float64         `json:"discount_percent,omitempty"`
	Title           *string          `json:"title,omitempty"`
	Description     *string          `json:"description,omitempty"`
	Notes           *string          `json:"notes,omitempty"`
}

// QuoteFilter narrows ListQuotes. Zero values mean "any".
type QuoteFilter struct {
	LeadID   string
	Status   QuoteStatus
	Page     int
	PageSize int
}

// QuoteUpdate is the set of columns a lifecycle step writes. Nil fields are
// left untouched by the store.
type QuoteUpdate struct {
	Status          *QuoteStatus
	SentAt          *time.Time
	ViewedAt        *time.Time
	RespondedAt     *time.Time
	Title           *string
	Description     *string
	Notes           *string
	DiscountPercent *float64
	Totals          *Totals
}
