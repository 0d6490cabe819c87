// Package ticket tracks the support-tracking record opened once per
// conversation.
package ticket

import "time"

// Ticket status constants.
const (
	StatusOpen      = "open"
	StatusResolved  = "resolved"
	StatusEscalated = "escalated"
)

// Ticket priority constants.
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
)

// Ticket category constants.
const (
	CategoryGeneral   = "general"
	CategoryTechnical = "technical"
	CategoryBilling   = "billing"
	CategoryLegal     = "legal"
)

// Ticket is the support-tracking record for one conversation.
type Ticket struct {
	ID              string    `json:"id"`
	ConversationID  string    `json:"conversation_id"`
	CustomerID      string    `json:"customer_id"`
	SourceChannel   string    `json:"source_channel"`
	Category        string    `json:"category"`
	Priority        string    `json:"priority"`
	Status          string    `json:"status"`
	ResolutionNotes string    `json:"resolution_notes,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// CreateInput is the input for EnsureForConversation.
type CreateInput struct {
	ConversationID string
	CustomerID     string
	SourceChannel  string
	Category       string
	Priority       string
}
