package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/studyverse/chat-platform/internal/model"
	"github.com/studyverse/chat-platform/internal/notify"
	"github.com/studyverse/chat-platform/internal/store"
	"github.com/studyverse/chat-platform/pkg/logger"
	"github.com/studyverse/chat-platform/pkg/metrics"
)

// MessageService handles message operations.
type MessageService struct {
	messages store.MessageStore
	convs    store.ConversationStore
	users    store.UserStore
	notifier notify.Notifier
	logger   *logger.Logger
}

// NewMessageService creates a new message service.
func NewMessageService(
	messages store.MessageStore,
	convs store.ConversationStore,
	users store.UserStore,
	notifier notify.Notifier,
	log *logger.Logger,
) *MessageService {
	return &MessageService{
		messages: messages,
		convs:    convs,
		users:    users,
		notifier: notifier,
		logger:   log,
	}
}

// Send persists a message from the caller to the receiver (named by external
// id), refreshes the conversation's last-message cache, and enqueues a
// best-effort notification. The caller is expected to have passed the access
// guard already; receiver participancy is re-checked in the store.
func (s *MessageService) Send(ctx context.Context, conversationID string, sender model.Identity, receiverExternalID, text string) (*model.Message, error) {
	receiver, err := s.users.GetByExternalID(ctx, receiverExternalID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: unknown receiver", store.ErrValidation)
		}
		return nil, err
	}

	msg, err := s.messages.Append(ctx, conversationID, sender.InternalID, receiver.ID, text)
	if err != nil {
		return nil, err
	}

	// A failure here leaves a persisted message not yet reflected in the
	// conversation preview. Message listing is the source of truth, so
	// log and carry on.
	if err := s.convs.RecordLastMessage(ctx, msg.ConversationID, msg.ID, msg.Text, msg.CreatedAt); err != nil {
		s.logger.Warn("failed to record last message",
			zap.String("conversation_id", msg.ConversationID),
			zap.String("message_id", msg.ID),
			zap.Error(err),
		)
	}

	s.notifier.NewMessage(ctx, receiver.Email, sender.DisplayName, msg.Text)
	return msg, nil
}

// List returns the conversation's messages, oldest first.
func (s *MessageService) List(ctx context.Context, conversationID string) ([]model.Message, error) {
	return s.messages.ListForConversation(ctx, conversationID)
}

// MarkRead acknowledges the listed messages for the reader and returns how
// many actually changed. Re-marking already-read messages is a no-op.
func (s *MessageService) MarkRead(ctx context.Context, conversationID string, reader model.Identity, messageIDs []string) (int64, error) {
	changed, err := s.messages.MarkRead(ctx, conversationID, reader.InternalID, messageIDs)
	if err != nil {
		return 0, err
	}
	if changed > 0 {
		metrics.ReadReceiptsTotal.Add(float64(changed))
	}
	return changed, nil
}
