package model

import (
	"time"
)

// Message is a persisted message with sender and receiver resolved to their
// display shape. ReadBy holds internal user ids and grows monotonically; the
// sender is present from creation (self-read).
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Sender         UserRef   `json:"sender"`
	Receiver       UserRef   `json:"receiver"`
	Text           string    `json:"text"`
	ReadBy         []string  `json:"read_by"`
	CreatedAt      time.Time `json:"created_at"`
}

// IsReadBy reports whether the given internal user id has acknowledged the
// message.
func (m *Message) IsReadBy(userID string) bool {
	want := NormalizeID(userID)
	for _, id := range m.ReadBy {
		if NormalizeID(id) == want {
			return true
		}
	}
	return false
}

// SendMessageRequest is the REST body for sending a message. ReceiverID is
// the receiver's external identifier.
type SendMessageRequest struct {
	Content    string `json:"content"`
	ReceiverID string `json:"receiver_id"`
}

// MarkReadRequest is the REST body for acknowledging messages.
type MarkReadRequest struct {
	MessageIDs []string `json:"message_ids"`
}

// MarkReadResponse reports how many messages actually changed. Re-marking
// already-read messages is a no-op, not an error.
type MarkReadResponse struct {
	ModifiedCount int64 `json:"modified_count"`
}
