// Package pipeline orchestrates inbound message processing: identity
// resolution, conversation bookkeeping, knowledge lookup, escalation, and
// reply rendering.
package pipeline

import (
	"fmt"
	"time"
)

// Result actions. Exactly one is set on every Process return.
const (
	ActionReply    = "reply"
	ActionEscalate = "escalate"
	ActionFailed   = "failed"
)

// Envelope is the normalized inbound message, independent of origin
// channel. ConversationID is an optional routing hint from the adapter.
type Envelope struct {
	Channel          string    `json:"channel" validate:"required,oneof=email chat web_form"`
	SenderIdentifier string    `json:"sender_identifier" validate:"required"`
	Text             string    `json:"text" validate:"required"`
	ReceivedAt       time.Time `json:"received_at"`
	ChannelMessageID string    `json:"channel_message_id"`
	ConversationID   string    `json:"conversation_id,omitempty"`
	SenderName       string    `json:"sender_name,omitempty"`
}

// Result is the pipeline's outcome for one envelope. RenderedText is set
// for replies and failures (the apology); escalations carry no customer
// reply because the human handoff takes over.
type Result struct {
	Action         string `json:"action"`
	Channel        string `json:"channel"`
	CustomerID     string `json:"customer_id,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	TicketID       string `json:"ticket_id,omitempty"`
	RenderedText   string `json:"rendered_text,omitempty"`
	ReasonCode     string `json:"reason_code,omitempty"`
	TranscriptRef  string `json:"transcript_ref,omitempty"`
}

// ValidationError marks a malformed envelope. It is never retried: the
// envelope goes straight to the dead-letter path.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid envelope: %v", e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }
