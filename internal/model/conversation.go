// Package model defines data structures for the messaging platform.
package model

import (
	"strings"
	"time"
)

// Kind distinguishes conversation shapes. Only direct conversations are
// created today; the group kind is reserved in the data model.
type Kind string

const (
	KindDirect Kind = "direct"
	KindGroup  Kind = "group"
)

// Conversation is a persisted conversation record. Participants hold
// storage-internal user identifiers in canonical (sorted) order, which backs
// the at-most-one-direct-conversation-per-pair invariant.
type Conversation struct {
	ID           string     `json:"id"`
	Kind         Kind       `json:"type"`
	Participants []string   `json:"participants"`
	LastMessage  *string    `json:"last_message_id,omitempty"`
	LastText     *string    `json:"last_message,omitempty"`
	LastAt       *time.Time `json:"last_message_time,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// NormalizeID canonicalizes a user or conversation identifier for equality
// testing. Identifiers may arrive as different string representations of the
// same logical id (case, surrounding whitespace).
func NormalizeID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

// CanonicalPair orders a two-participant set deterministically so that {A,B}
// and {B,A} resolve to the same stored conversation.
func CanonicalPair(a, b string) (string, string) {
	a, b = NormalizeID(a), NormalizeID(b)
	if b < a {
		a, b = b, a
	}
	return a, b
}

// HasParticipant reports whether the given internal user id is a member.
func (c *Conversation) HasParticipant(userID string) bool {
	want := NormalizeID(userID)
	for _, p := range c.Participants {
		if NormalizeID(p) == want {
			return true
		}
	}
	return false
}

// Counterpart returns the other participant of a two-party conversation, or
// "" when there is none (self-referential or malformed membership).
func (c *Conversation) Counterpart(userID string) string {
	want := NormalizeID(userID)
	for _, p := range c.Participants {
		if NormalizeID(p) != want {
			return p
		}
	}
	return ""
}

// ConversationSummary is the list/create response shape: the conversation
// augmented with the counterpart's display fields and the last message
// preview. Name is null when the counterpart could not be resolved.
type ConversationSummary struct {
	ID              string     `json:"id"`
	Name            *string    `json:"name"`
	OtherUserID     *string    `json:"other_user_id"`
	LastMessage     *string    `json:"last_message"`
	LastMessageTime *time.Time `json:"last_message_time"`
	UpdatedAt       time.Time  `json:"updated_at"`
	Participants    []string   `json:"participants"`
	Kind            Kind       `json:"type"`
}

// CreateConversationRequest asks for a direct conversation with a
// counterpart, named by external identifier.
type CreateConversationRequest struct {
	RecipientID string `json:"recipient_id"`
}
