package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ConversationStatus is the lifecycle state of a Conversation.
type ConversationStatus string

const (
	ConversationActive   ConversationStatus = "active"
	ConversationPaused   ConversationStatus = "paused"
	ConversationArchived ConversationStatus = "archived"
	ConversationDeleted  ConversationStatus = "deleted"
)

// Conversation is an ordered sequence of Messages plus the metadata the
// daemon and storage layer need to track it.
type Conversation struct {
	ID          string             `json:"id"`
	Title       string             `json:"title,omitempty"`
	Description string             `json:"description,omitempty"`
	Status      ConversationStatus `json:"status"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
	Metadata    map[string]any     `json:"metadata,omitempty"`
	Messages    []Message          `json:"messages"`
}

// NewConversation creates an empty, Active conversation with a fresh id.
func NewConversation(title string) *Conversation {
	now := time.Now().UTC()
	return &Conversation{
		ID:        uuid.NewString(),
		Title:     title,
		Status:    ConversationActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Append adds msg to the conversation, enforcing that msg.ConversationID
// matches c.ID (property 2 of spec.md §8), and bumps UpdatedAt.
func (c *Conversation) Append(msg Message) error {
	if msg.ConversationID != c.ID {
		return fmt.Errorf("domain: message conversation_id %q does not match conversation %q", msg.ConversationID, c.ID)
	}
	c.Messages = append(c.Messages, msg)
	c.UpdatedAt = time.Now().UTC()
	return nil
}

// SetStatus transitions the conversation's status and bumps UpdatedAt.
func (c *Conversation) SetStatus(status ConversationStatus) {
	c.Status = status
	c.UpdatedAt = time.Now().UTC()
}

// Bookmark aliases a human-chosen name to a conversation id.
type Bookmark struct {
	Name           string `json:"name"`
	ConversationID string `json:"conversation_id"`
}
