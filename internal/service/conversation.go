// Package service provides business logic for the messaging platform. Both
// the REST gateway and the live session manager call through here; neither
// duplicates conversation or message rules.
package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/studyverse/chat-platform/internal/model"
	"github.com/studyverse/chat-platform/internal/store"
	"github.com/studyverse/chat-platform/pkg/logger"
	"github.com/studyverse/chat-platform/pkg/metrics"
)

// ErrForbidden indicates an authenticated caller who is not a participant of
// the conversation.
var ErrForbidden = errors.New("service: not a conversation participant")

// ConversationService handles conversation operations and carries the access
// guard used by every per-conversation entry point.
type ConversationService struct {
	convs  store.ConversationStore
	users  store.UserStore
	logger *logger.Logger
}

// NewConversationService creates a new conversation service.
func NewConversationService(convs store.ConversationStore, users store.UserStore, log *logger.Logger) *ConversationService {
	return &ConversationService{convs: convs, users: users, logger: log}
}

// Get loads a conversation by id.
func (s *ConversationService) Get(ctx context.Context, conversationID string) (*model.Conversation, error) {
	return s.convs.Get(ctx, conversationID)
}

// IsParticipant is the access guard: it reports whether the user belongs to
// the conversation, or store.ErrNotFound when the conversation is absent.
// No side effects. Used identically by the REST middleware and the live
// session manager.
func (s *ConversationService) IsParticipant(ctx context.Context, conversationID, userID string) (bool, error) {
	conv, err := s.convs.Get(ctx, conversationID)
	if err != nil {
		return false, err
	}
	return conv.HasParticipant(userID), nil
}

// List returns the caller's conversations, most recently active first.
func (s *ConversationService) List(ctx context.Context, caller model.Identity) ([]model.ConversationSummary, error) {
	return s.convs.ListForUser(ctx, caller.InternalID)
}

// CreateDirect returns the direct conversation between the caller and the
// recipient (named by external id), creating it on first contact. Safe to
// call repeatedly and under race; every call for the same pair yields the
// same conversation.
func (s *ConversationService) CreateDirect(ctx context.Context, caller model.Identity, recipientExternalID string) (*model.ConversationSummary, error) {
	if recipientExternalID == "" ||
		model.NormalizeID(recipientExternalID) == model.NormalizeID(caller.ExternalID) {
		return nil, fmt.Errorf("%w: cannot chat with self", store.ErrValidation)
	}

	recipient, err := s.users.GetByExternalID(ctx, recipientExternalID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: unknown recipient", store.ErrValidation)
		}
		return nil, err
	}

	conv, created, err := s.convs.FindOrCreateDirect(ctx, caller.InternalID, recipient.ID)
	if err != nil {
		return nil, err
	}
	if created {
		metrics.ConversationsTotal.Inc()
		s.logger.Info("conversation created",
			zap.String("conversation_id", conv.ID),
			zap.String("user_id", caller.ExternalID),
			zap.String("other_user_id", recipient.ExternalID),
		)
	}

	name := recipient.Username
	otherID := recipient.ExternalID
	return &model.ConversationSummary{
		ID:              conv.ID,
		Name:            &name,
		OtherUserID:     &otherID,
		LastMessage:     conv.LastText,
		LastMessageTime: conv.LastAt,
		UpdatedAt:       conv.UpdatedAt,
		Participants:    []string{caller.ExternalID, recipient.ExternalID},
		Kind:            conv.Kind,
	}, nil
}

// Delete removes the conversation row if the caller participates in it.
// Messages are not cascade-deleted; they remain retrievable by id.
func (s *ConversationService) Delete(ctx context.Context, conversationID string, caller model.Identity) error {
	conv, err := s.convs.Get(ctx, conversationID)
	if err != nil {
		return err
	}
	if !conv.HasParticipant(caller.InternalID) {
		return ErrForbidden
	}
	return s.convs.Delete(ctx, conv.ID)
}
