package middleware

import (
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

// ValidateMessageContent validates message text.
func ValidateMessageContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return errors.New("content cannot be empty")
	}
	if len(content) > 100000 { // ~100KB limit
		return errors.New("content exceeds maximum length")
	}
	if !utf8.ValidString(content) {
		return errors.New("content must be valid UTF-8")
	}
	return nil
}

// ValidateConversationID validates a conversation ID.
func ValidateConversationID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return errors.New("invalid conversation ID format")
	}
	return nil
}

// ValidateMessageIDs validates a mark-read ID list.
func ValidateMessageIDs(ids []string) error {
	if len(ids) == 0 {
		return errors.New("message ID list cannot be empty")
	}
	for _, id := range ids {
		if _, err := uuid.Parse(id); err != nil {
			return errors.New("invalid message ID format")
		}
	}
	return nil
}
