// Package conversation manages bounded interaction sessions and their
// lifecycle state machine.
package conversation

import (
	"errors"
	"time"
)

// Conversation status constants. Resolved and escalated are terminal.
const (
	StatusActive    = "active"
	StatusResolved  = "resolved"
	StatusEscalated = "escalated"
)

// ErrConversationClosed is returned when a turn is recorded against a
// conversation in a terminal state. This is a caller logic error, not a
// retryable failure.
var ErrConversationClosed = errors.New("conversation closed")

// Conversation is one bounded interaction session with a customer.
type Conversation struct {
	ID               string     `json:"id"`
	CustomerID       string     `json:"customer_id"`
	Channel          string     `json:"channel"`
	Status           string     `json:"status"`
	SentimentAvg     float64    `json:"sentiment_avg"`
	TurnCount        int        `json:"turn_count"`
	GapCount         int        `json:"gap_count"`
	EscalationReason string     `json:"escalation_reason,omitempty"`
	StartedAt        time.Time  `json:"started_at"`
	EndedAt          *time.Time `json:"ended_at,omitempty"`
}

// Terminal reports whether the conversation can accept further turns.
func (c Conversation) Terminal() bool {
	return c.Status == StatusResolved || c.Status == StatusEscalated
}
