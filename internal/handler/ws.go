package handler

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/studyverse/chat-platform/internal/identity"
	"github.com/studyverse/chat-platform/internal/realtime"
	"github.com/studyverse/chat-platform/internal/service"
	"github.com/studyverse/chat-platform/pkg/logger"
	"github.com/studyverse/chat-platform/pkg/metrics"
)

// WSHandler upgrades authenticated clients onto the live delivery protocol.
type WSHandler struct {
	resolver identity.Resolver
	hub      *realtime.Hub
	bridge   *realtime.Bridge
	convs    *service.ConversationService
	msgs     *service.MessageService
	logger   *logger.Logger

	upgrader     websocket.Upgrader
	pingInterval time.Duration
	pongTimeout  time.Duration
}

// NewWSHandler creates the websocket endpoint handler.
func NewWSHandler(
	resolver identity.Resolver,
	hub *realtime.Hub,
	bridge *realtime.Bridge,
	convs *service.ConversationService,
	msgs *service.MessageService,
	allowedOrigin string,
	pingInterval, pongTimeout time.Duration,
	log *logger.Logger,
) *WSHandler {
	return &WSHandler{
		resolver: resolver,
		hub:      hub,
		bridge:   bridge,
		convs:    convs,
		msgs:     msgs,
		logger:   log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if allowedOrigin == "" {
					return true
				}
				return r.Header.Get("Origin") == allowedOrigin
			},
		},
		pingInterval: pingInterval,
		pongTimeout:  pongTimeout,
	}
}

// Serve handles GET /ws. Browsers cannot set headers on websocket
// handshakes, so the token rides in the query string.
func (h *WSHandler) Serve(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		writeError(w, http.StatusUnauthorized, "missing token")
		return
	}

	ident, err := h.resolver.Resolve(r.Context(), token)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid token")
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the handshake failure.
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	conn := realtime.NewConnection(*ident, ws, h.pingInterval)
	conn.ConfigureRead(h.pongTimeout)
	conn.Start()

	h.hub.Attach(conn)
	metrics.IncrementWSConnections()

	session := realtime.NewSession(conn, *ident, h.hub, h.bridge, h.convs, h.msgs, h.logger)

	h.logger.Info("websocket connected",
		zap.String("connection_id", conn.ID()),
		zap.String("user_id", ident.ExternalID),
	)

	defer func() {
		session.Close()
		metrics.DecrementWSConnections()
		conn.Close(websocket.CloseNormalClosure, "")
		h.logger.Info("websocket disconnected",
			zap.String("connection_id", conn.ID()),
			zap.String("user_id", ident.ExternalID),
		)
	}()

	for {
		frame, err := conn.ReadFrame()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Warn("websocket read error",
					zap.String("connection_id", conn.ID()), zap.Error(err))
			}
			return
		}
		session.HandleFrame(r.Context(), frame)
	}
}
