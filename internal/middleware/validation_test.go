package middleware

import (
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestValidateMessageContent(t *testing.T) {
	if err := ValidateMessageContent("hello"); err != nil {
		t.Fatalf("valid content rejected: %v", err)
	}
	if err := ValidateMessageContent(""); err == nil {
		t.Fatal("empty content accepted")
	}
	if err := ValidateMessageContent("   \t\n"); err == nil {
		t.Fatal("whitespace-only content accepted")
	}
	if err := ValidateMessageContent(strings.Repeat("a", 100001)); err == nil {
		t.Fatal("oversized content accepted")
	}
	if err := ValidateMessageContent("bad \xff utf8"); err == nil {
		t.Fatal("invalid UTF-8 accepted")
	}
}

func TestValidateConversationID(t *testing.T) {
	if err := ValidateConversationID(uuid.NewString()); err != nil {
		t.Fatalf("valid id rejected: %v", err)
	}
	if err := ValidateConversationID("not-a-uuid"); err == nil {
		t.Fatal("malformed id accepted")
	}
}

func TestValidateMessageIDs(t *testing.T) {
	if err := ValidateMessageIDs([]string{uuid.NewString(), uuid.NewString()}); err != nil {
		t.Fatalf("valid ids rejected: %v", err)
	}
	if err := ValidateMessageIDs(nil); err == nil {
		t.Fatal("empty list accepted")
	}
	if err := ValidateMessageIDs([]string{uuid.NewString(), "nope"}); err == nil {
		t.Fatal("malformed id accepted")
	}
}
