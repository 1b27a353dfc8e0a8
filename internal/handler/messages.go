package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/studyverse/chat-platform/internal/middleware"
	"github.com/studyverse/chat-platform/internal/model"
	"github.com/studyverse/chat-platform/internal/service"
	"github.com/studyverse/chat-platform/pkg/logger"
	"github.com/studyverse/chat-platform/pkg/metrics"
)

// MessageHandler handles message endpoints.
type MessageHandler struct {
	messages *service.MessageService
	convs    *service.ConversationService
	logger   *logger.Logger
}

// NewMessageHandler creates a new message handler.
func NewMessageHandler(msgs *service.MessageService, convs *service.ConversationService, log *logger.Logger) *MessageHandler {
	return &MessageHandler{
		messages: msgs,
		convs:    convs,
		logger:   log,
	}
}

// List handles GET /api/v1/chats/:id/messages
func (h *MessageHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ident, ok := middleware.GetIdentity(ctx)
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	conversationID := chi.URLParam(r, "id")
	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if !h.requireParticipant(w, r, conversationID, ident) {
		return
	}

	msgs, err := h.messages.List(ctx, conversationID)
	if err != nil {
		h.logger.Error("failed to list messages",
			zap.String("conversation_id", conversationID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list messages")
		return
	}

	writeJSON(w, http.StatusOK, msgs)
}

// Send handles POST /api/v1/chats/:id/messages
//
// Messages created here are persisted but not pushed to open rooms; live
// delivery runs exclusively over the websocket path.
func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ident, ok := middleware.GetIdentity(ctx)
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	conversationID := chi.URLParam(r, "id")
	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req model.SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateMessageContent(req.Content); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if !h.requireParticipant(w, r, conversationID, ident) {
		return
	}

	msg, err := h.messages.Send(ctx, conversationID, ident, req.ReceiverID, req.Content)
	if err != nil {
		status := statusFromError(err)
		if status == http.StatusInternalServerError {
			h.logger.Error("failed to send message",
				zap.String("conversation_id", conversationID), zap.Error(err))
			writeError(w, status, "failed to send message")
			return
		}
		writeError(w, status, err.Error())
		return
	}
	metrics.MessagesTotal.WithLabelValues("rest").Inc()

	writeJSON(w, http.StatusCreated, msg)
}

// MarkRead handles PUT /api/v1/chats/:id/messages/read
func (h *MessageHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ident, ok := middleware.GetIdentity(ctx)
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	conversationID := chi.URLParam(r, "id")
	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req model.MarkReadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateMessageIDs(req.MessageIDs); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if !h.requireParticipant(w, r, conversationID, ident) {
		return
	}

	changed, err := h.messages.MarkRead(ctx, conversationID, ident, req.MessageIDs)
	if err != nil {
		status := statusFromError(err)
		if status == http.StatusInternalServerError {
			h.logger.Error("failed to mark messages read",
				zap.String("conversation_id", conversationID), zap.Error(err))
			writeError(w, status, "failed to mark messages read")
			return
		}
		writeError(w, status, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, model.MarkReadResponse{ModifiedCount: changed})
}

// requireParticipant enforces conversation access. Non-participants get the
// same response shape as a service-level forbidden error.
func (h *MessageHandler) requireParticipant(w http.ResponseWriter, r *http.Request, conversationID string, ident model.Identity) bool {
	ok, err := h.convs.IsParticipant(r.Context(), conversationID, ident.InternalID)
	if err != nil {
		status := statusFromError(err)
		if status == http.StatusInternalServerError {
			h.logger.Error("failed to check participation",
				zap.String("conversation_id", conversationID), zap.Error(err))
			writeError(w, status, "failed to load conversation")
			return false
		}
		writeError(w, status, err.Error())
		return false
	}
	if !ok {
		writeError(w, http.StatusForbidden, "not a participant of this conversation")
		return false
	}
	return true
}
