// Package store persists conversations, messages, and user records. Both the
// REST gateway and the live session manager write through these interfaces,
// which is what keeps the two paths consistent.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/studyverse/chat-platform/internal/model"
)

var (
	// ErrNotFound indicates an absent conversation, message, or user.
	ErrNotFound = errors.New("store: not found")
	// ErrValidation indicates rejected input (blank text, self-chat,
	// malformed id list, receiver outside the conversation).
	ErrValidation = errors.New("store: validation failed")
)

// ConversationStore persists conversation records and enforces two-party
// uniqueness for direct conversations.
type ConversationStore interface {
	// Get loads a conversation by id.
	Get(ctx context.Context, id string) (*model.Conversation, error)

	// ListForUser returns every conversation the user participates in,
	// augmented with counterpart display fields and the last message
	// preview, most recently active first.
	ListForUser(ctx context.Context, userID string) ([]model.ConversationSummary, error)

	// FindOrCreateDirect returns the direct conversation for the unordered
	// pair, creating it when absent. Idempotent under concurrent invocation
	// for the same pair. Rejects userA == userB with ErrValidation.
	// The boolean reports whether a new conversation was created.
	FindOrCreateDirect(ctx context.Context, userA, userB string) (*model.Conversation, bool, error)

	// RecordLastMessage refreshes the conversation's last-message cache and
	// updatedAt timestamp.
	RecordLastMessage(ctx context.Context, conversationID, messageID, text string, at time.Time) error

	// Delete removes the conversation row only. Messages are not cascaded.
	Delete(ctx context.Context, id string) error
}

// MessageStore persists messages and per-recipient read tracking.
type MessageStore interface {
	// Append persists a message with readBy seeded to the sender and
	// returns it display-resolved. Blank text and a receiver who is not a
	// participant of the conversation are ErrValidation.
	Append(ctx context.Context, conversationID, senderID, receiverID, text string) (*model.Message, error)

	// ListForConversation returns all messages oldest first, each with
	// sender and receiver resolved.
	ListForConversation(ctx context.Context, conversationID string) ([]model.Message, error)

	// MarkRead adds the reader to readBy on each listed message that
	// belongs to the conversation, is addressed to the reader, and is not
	// already read. Returns the number of messages that changed.
	MarkRead(ctx context.Context, conversationID, readerID string, messageIDs []string) (int64, error)
}

// UserStore resolves user records. The messaging core never mutates users;
// Create exists for seeding and tests.
type UserStore interface {
	GetByExternalID(ctx context.Context, externalID string) (*model.User, error)
	GetByID(ctx context.Context, id string) (*model.User, error)
	Create(ctx context.Context, u *model.User) error
}
