package model

// Live protocol frame types. Client frames before a completed handshake are
// never processed; the connection is simply not established.
const (
	FrameJoin     = "join"
	FrameLeave    = "leave"
	FrameSend     = "send_message"
	FrameMarkRead = "mark_read"
	FrameTyping   = "typing"

	FrameMessageDelivered = "message_delivered"
	FrameReadReceipt      = "read_receipt"
)

// InboundFrame is the superset envelope for client-to-server events. Fields
// are interpreted per Type; identifiers arrive in their external form.
type InboundFrame struct {
	Type           string   `json:"type"`
	ConversationID string   `json:"conversation_id,omitempty"`
	ReceiverID     string   `json:"receiver_id,omitempty"`
	Text           string   `json:"text,omitempty"`
	CorrelationID  string   `json:"correlation_id,omitempty"`
	MessageIDs     []string `json:"message_ids,omitempty"`
	IsTyping       bool     `json:"is_typing,omitempty"`
}

// MessageDeliveredFrame fans a persisted message out to a room. The
// correlation id is echoed unchanged so the originating client can reconcile
// its optimistic local copy.
type MessageDeliveredFrame struct {
	Type          string  `json:"type"`
	Message       Message `json:"message"`
	CorrelationID string  `json:"correlation_id,omitempty"`
}

// ReadReceiptFrame is broadcast to a room when one or more messages changed
// read state. ReaderID is the reader's external identifier.
type ReadReceiptFrame struct {
	Type           string   `json:"type"`
	ConversationID string   `json:"conversation_id"`
	ReaderID       string   `json:"reader_id"`
	MessageIDs     []string `json:"message_ids"`
}

// TypingFrame relays a typing indicator to a room, sender excluded. Not
// persisted.
type TypingFrame struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`
	IsTyping       bool   `json:"is_typing"`
}
