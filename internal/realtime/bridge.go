package realtime

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/studyverse/chat-platform/pkg/logger"
)

const bridgeSubject = "chat.rooms"

// Bridge republishes room broadcasts over NATS so peers connected to other
// API instances receive them. A single instance works identically with a
// nil Bridge.
type Bridge struct {
	instanceID string
	conn       *nats.Conn
	hub        *Hub
	sub        *nats.Subscription
	logger     *logger.Logger
}

type bridgeEnvelope struct {
	Origin         string          `json:"origin"`
	ConversationID string          `json:"conversation_id"`
	ExcludeUserID  string          `json:"exclude_user_id,omitempty"`
	Payload        json.RawMessage `json:"payload"`
}

// NewBridge wires a hub to the NATS connection and starts listening for
// broadcasts from other instances.
func NewBridge(conn *nats.Conn, hub *Hub, log *logger.Logger) (*Bridge, error) {
	b := &Bridge{
		instanceID: uuid.NewString(),
		conn:       conn,
		hub:        hub,
		logger:     log,
	}

	sub, err := conn.Subscribe(bridgeSubject, func(msg *nats.Msg) {
		var env bridgeEnvelope
		if err := json.Unmarshal(msg.Data, &env); err != nil {
			b.logger.Warn("malformed bridge envelope", zap.Error(err))
			return
		}
		if env.Origin == b.instanceID {
			return
		}
		b.hub.Broadcast(env.ConversationID, env.Payload, env.ExcludeUserID)
	})
	if err != nil {
		return nil, err
	}
	b.sub = sub
	return b, nil
}

// Publish forwards a room broadcast to other instances. Failures are logged
// and dropped; local delivery has already happened.
func (b *Bridge) Publish(conversationID string, payload []byte, excludeUserID string) {
	if b == nil {
		return
	}
	data, err := json.Marshal(bridgeEnvelope{
		Origin:         b.instanceID,
		ConversationID: conversationID,
		ExcludeUserID:  excludeUserID,
		Payload:        payload,
	})
	if err != nil {
		return
	}
	if err := b.conn.Publish(bridgeSubject, data); err != nil {
		b.logger.Warn("failed to publish room broadcast",
			zap.String("conversation_id", conversationID), zap.Error(err))
	}
}

// Close drains the subscription.
func (b *Bridge) Close() {
	if b == nil || b.sub == nil {
		return
	}
	_ = b.sub.Unsubscribe()
}
