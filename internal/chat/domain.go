// Package chat keeps the console's view of company conversations in sync with
// the business API's push events.
package chat

import (
	"encoding/json"
	"time"

	"github.com/odyssey-erp/odyssey-console/internal/shared"
)

// Push event names broadcast by the business API.
const (
	EventMessageReceived      = "message.received"
	EventMessageSent          = "message.sent"
	EventConversationUpdated  = "conversation.updated"
	EventMessageStatusUpdated = "message.status.updated"
)

// Message statuses reported by the business API.
const (
	StatusSent      = "sent"
	StatusDelivered = "delivered"
	StatusRead      = "read"
)

// Participant is a member of a conversation.
type Participant struct {
	ID     shared.ID `json:"id"`
	Name   string    `json:"name"`
	Email  string    `json:"email,omitempty"`
	Avatar string    `json:"avatar,omitempty"`
}

// Message is a single chat message.
type Message struct {
	ID             shared.ID    `json:"id" validate:"required"`
	ConversationID shared.ID    `json:"conversation_id" validate:"required"`
	SenderID       shared.ID    `json:"sender_id"`
	Sender         *Participant `json:"sender,omitempty"`
	Body           string       `json:"body"`
	Status         string       `json:"status,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
}

// Conversation is a chat thread as listed for a company.
type Conversation struct {
	ID           shared.ID     `json:"id"`
	CompanyID    shared.ID     `json:"company_id,omitempty"`
	Title        string        `json:"title"`
	Participants []Participant `json:"participants,omitempty"`
	LastMessage  *Message      `json:"last_message,omitempty"`
	UnreadCount  int           `json:"unread_count"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// ConversationPatch carries the fields present in a conversation.updated
// event. Absent fields are left untouched by Merge.
type ConversationPatch struct {
	ID           shared.ID      `json:"id" validate:"required"`
	Title        *string        `json:"title,omitempty"`
	Participants *[]Participant `json:"participants,omitempty"`
	LastMessage  *Message       `json:"last_message,omitempty"`
	UnreadCount  *int           `json:"unread_count,omitempty"`
	UpdatedAt    *time.Time     `json:"updated_at,omitempty"`
}

// Merge applies the present fields of p to c.
func (c *Conversation) Merge(p ConversationPatch) {
	if p.Title != nil {
		c.Title = *p.Title
	}
	if p.Participants != nil {
		c.Participants = append([]Participant(nil), (*p.Participants)...)
	}
	if p.LastMessage != nil {
		msg := *p.LastMessage
		c.LastMessage = &msg
	}
	if p.UnreadCount != nil {
		c.UnreadCount = *p.UnreadCount
	}
	if p.UpdatedAt != nil {
		c.UpdatedAt = *p.UpdatedAt
	}
}

func (c Conversation) clone() Conversation {
	out := c
	if c.Participants != nil {
		out.Participants = append([]Participant(nil), c.Participants...)
	}
	if c.LastMessage != nil {
		msg := *c.LastMessage
		out.LastMessage = &msg
	}
	return out
}

// Event is one push event as delivered on a channel.
type Event struct {
	Name    string          `json:"event"`
	Channel string          `json:"channel,omitempty"`
	Data    json.RawMessage `json:"data"`
}

// messagePayload is the body of message.received and message.sent. The API
// sends either `{"message": {...}}` or the message itself.
type messagePayload struct {
	Message      *Message           `json:"message"`
	Conversation *ConversationPatch `json:"conversation"`
}

// statusPayload is the body of message.status.updated.
type statusPayload struct {
	ConversationID shared.ID `json:"conversation_id" validate:"required"`
	MessageID      shared.ID `json:"message_id" validate:"required"`
	Status         string    `json:"status" validate:"required"`
}

// Change is a reconciled update pushed to stream clients.
type Change struct {
	Type         string        `json:"type"`
	Conversation *Conversation `json:"conversation,omitempty"`
	Message      *Message      `json:"message,omitempty"`
}

// Change types.
const (
	ChangeConversation = "conversation"
	ChangeMessage      = "message"
	ChangeStatus       = "status"
)
