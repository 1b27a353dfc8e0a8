package realtime

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/studyverse/chat-platform/internal/model"
	"github.com/studyverse/chat-platform/internal/service"
	"github.com/studyverse/chat-platform/pkg/logger"
	"github.com/studyverse/chat-platform/pkg/metrics"
)

// Session is the authenticated event loop for one live connection. Frames
// arrive one at a time, so persistence happens-before broadcast within a
// conversation and room delivery order matches store order.
//
// Failed joins and failed sends are logged and swallowed: no error frame
// goes back to the offending connection.
type Session struct {
	peer     Peer
	identity model.Identity
	hub      *Hub
	bridge   *Bridge
	convs    *service.ConversationService
	msgs     *service.MessageService
	logger   *logger.Logger
}

// NewSession binds an attached peer to its resolved identity and the shared
// services.
func NewSession(
	peer Peer,
	identity model.Identity,
	hub *Hub,
	bridge *Bridge,
	convs *service.ConversationService,
	msgs *service.MessageService,
	log *logger.Logger,
) *Session {
	return &Session{
		peer:     peer,
		identity: identity,
		hub:      hub,
		bridge:   bridge,
		convs:    convs,
		msgs:     msgs,
		logger:   log.WithConnection(peer.ID(), identity.ExternalID),
	}
}

// HandleFrame dispatches one client frame. Unknown frame types are logged
// and dropped.
func (s *Session) HandleFrame(ctx context.Context, frame model.InboundFrame) {
	// Room keys, store lookups, and broadcasts must all agree on one
	// representation of the conversation id, whatever the client sent.
	frame.ConversationID = model.NormalizeID(frame.ConversationID)

	switch frame.Type {
	case model.FrameJoin:
		s.handleJoin(ctx, frame)
	case model.FrameLeave:
		s.hub.Leave(frame.ConversationID, s.peer)
	case model.FrameSend:
		s.handleSend(ctx, frame)
	case model.FrameMarkRead:
		s.handleMarkRead(ctx, frame)
	case model.FrameTyping:
		s.handleTyping(frame)
	default:
		s.logger.Debug("unknown frame type", zap.String("frame_type", frame.Type))
	}
}

func (s *Session) handleJoin(ctx context.Context, frame model.InboundFrame) {
	ok, err := s.convs.IsParticipant(ctx, frame.ConversationID, s.identity.InternalID)
	if err != nil {
		s.logger.Warn("join failed",
			zap.String("conversation_id", frame.ConversationID), zap.Error(err))
		return
	}
	if !ok {
		s.logger.Warn("unauthorized join attempt",
			zap.String("conversation_id", frame.ConversationID))
		return
	}
	s.hub.Join(frame.ConversationID, s.peer)
}

func (s *Session) handleSend(ctx context.Context, frame model.InboundFrame) {
	conv, err := s.convs.Get(ctx, frame.ConversationID)
	if err != nil {
		s.logger.Warn("send to unknown conversation",
			zap.String("conversation_id", frame.ConversationID), zap.Error(err))
		return
	}
	if !conv.HasParticipant(s.identity.InternalID) {
		s.logger.Warn("unauthorized send attempt",
			zap.String("conversation_id", frame.ConversationID))
		return
	}

	msg, err := s.msgs.Send(ctx, conv.ID, s.identity, frame.ReceiverID, frame.Text)
	if err != nil {
		// The client's optimistic copy stays unconfirmed; detecting the
		// missing delivered event is its responsibility.
		s.logger.Warn("send failed",
			zap.String("conversation_id", frame.ConversationID), zap.Error(err))
		return
	}
	metrics.MessagesTotal.WithLabelValues("ws").Inc()

	s.broadcast(model.FrameMessageDelivered, conv.ID, model.MessageDeliveredFrame{
		Type:          model.FrameMessageDelivered,
		Message:       *msg,
		CorrelationID: frame.CorrelationID,
	}, "")
}

func (s *Session) handleMarkRead(ctx context.Context, frame model.InboundFrame) {
	ok, err := s.convs.IsParticipant(ctx, frame.ConversationID, s.identity.InternalID)
	if err != nil {
		s.logger.Warn("mark-read failed",
			zap.String("conversation_id", frame.ConversationID), zap.Error(err))
		return
	}
	if !ok {
		s.logger.Warn("unauthorized mark-read attempt",
			zap.String("conversation_id", frame.ConversationID))
		return
	}

	changed, err := s.msgs.MarkRead(ctx, frame.ConversationID, s.identity, frame.MessageIDs)
	if err != nil {
		s.logger.Warn("mark-read failed",
			zap.String("conversation_id", frame.ConversationID), zap.Error(err))
		return
	}
	if changed == 0 {
		// Nothing changed; skip the receipt to avoid notification noise.
		return
	}

	s.broadcast(model.FrameReadReceipt, frame.ConversationID, model.ReadReceiptFrame{
		Type:           model.FrameReadReceipt,
		ConversationID: frame.ConversationID,
		ReaderID:       s.identity.ExternalID,
		MessageIDs:     frame.MessageIDs,
	}, "")
}

func (s *Session) handleTyping(frame model.InboundFrame) {
	// Typing is relayed, never persisted. Room membership is required,
	// and joining the room is itself guarded.
	if !s.hub.InRoom(frame.ConversationID, s.peer) {
		return
	}
	s.broadcast(model.FrameTyping, frame.ConversationID, model.TypingFrame{
		Type:           model.FrameTyping,
		ConversationID: frame.ConversationID,
		UserID:         s.identity.ExternalID,
		IsTyping:       frame.IsTyping,
	}, s.identity.ExternalID)
}

// Close discards all room memberships for the peer. Called on transport
// closure for any reason.
func (s *Session) Close() {
	s.hub.Detach(s.peer)
}

func (s *Session) broadcast(event, conversationID string, v any, excludeUserID string) {
	payload, err := json.Marshal(v)
	if err != nil {
		s.logger.Error("failed to encode frame", zap.String("event", event), zap.Error(err))
		return
	}
	n := s.hub.Broadcast(conversationID, payload, excludeUserID)
	metrics.RecordDelivery(event, n)
	s.bridge.Publish(conversationID, payload, excludeUserID)
}
