// Package customer resolves inbound channel identifiers to a unified
// customer identity.
package customer

import "time"

// Identifier type constants. An identifier is owned by exactly one customer
// and is never reassigned.
const (
	IdentifierEmail      = "email"
	IdentifierPhone      = "phone"
	IdentifierChatHandle = "chat_handle"
)

// Customer is the stable identity unifying a person across channels.
type Customer struct {
	ID          string    `json:"id"`
	Email       string    `json:"email,omitempty"`
	Phone       string    `json:"phone,omitempty"`
	DisplayName string    `json:"display_name,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Identifier is a (type, value) pair reported by a channel.
type Identifier struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// ResolveInput is the input for ResolveOrCreate. Linked carries secondary
// identifiers the channel happens to know (e.g. an email embedded in a chat
// profile); they are used as linking evidence, never for fuzzy merging.
type ResolveInput struct {
	Identifier  Identifier
	DisplayName string
	Linked      []Identifier
}
