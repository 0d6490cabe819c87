// Package message persists the append-only conversation transcript.
package message

import "time"

// Message direction constants.
const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

// Message role constants.
const (
	RoleCustomer = "customer"
	RoleAgent    = "agent"
	RoleSystem   = "system"
)

// Delivery status constants. A message is immutable once created except for
// these transitions.
const (
	DeliveryPending   = "pending"
	DeliverySent      = "sent"
	DeliveryDelivered = "delivered"
	DeliveryFailed    = "failed"
)

// Message is one directed unit of communication within a conversation.
type Message struct {
	ID               string    `json:"id"`
	ConversationID   string    `json:"conversation_id"`
	Channel          string    `json:"channel"`
	Direction        string    `json:"direction"`
	Role             string    `json:"role"`
	Content          string    `json:"content"`
	ChannelMessageID string    `json:"channel_message_id,omitempty"`
	DeliveryStatus   string    `json:"delivery_status"`
	CreatedAt        time.Time `json:"created_at"`
}

// AppendInput is the input for Append.
type AppendInput struct {
	ConversationID   string
	Channel          string
	Direction        string
	Role             string
	Content          string
	ChannelMessageID string
	DeliveryStatus   string
}
