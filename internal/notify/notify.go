// Package notify delivers best-effort new-message notifications. The core
// enqueues and never awaits; a detached worker drains the queue and sends
// the email. Failure anywhere in this package is invisible to message
// delivery by design.
package notify

import (
	"context"
	"encoding/json"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/studyverse/chat-platform/pkg/logger"
	"github.com/studyverse/chat-platform/pkg/metrics"
)

// TaskNewChatMessage is the queue task name for a new-message email.
const TaskNewChatMessage = "notify:chat_message"

// Notifier is the fire-and-forget port the messaging core enqueues into.
type Notifier interface {
	NewMessage(ctx context.Context, recipientEmail, senderName, text string)
}

// NewMessagePayload is the JSON payload transported via the queue.
type NewMessagePayload struct {
	RecipientEmail string `json:"recipient_email"`
	SenderName     string `json:"sender_name"`
	Text           string `json:"text"`
}

// QueueNotifier enqueues notification tasks onto an asynq (Redis-backed)
// queue.
type QueueNotifier struct {
	client *asynq.Client
	logger *logger.Logger
}

// NewQueueNotifier constructs a notifier over the Redis URL.
func NewQueueNotifier(redisURL string, log *logger.Logger) (*QueueNotifier, error) {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, err
	}
	return &QueueNotifier{client: asynq.NewClient(opt), logger: log}, nil
}

var _ Notifier = (*QueueNotifier)(nil)

// NewMessage enqueues a notification. Enqueue failures are logged and
// dropped; they never reach the sender of the message.
func (n *QueueNotifier) NewMessage(ctx context.Context, recipientEmail, senderName, text string) {
	if recipientEmail == "" {
		return
	}
	payload, err := json.Marshal(NewMessagePayload{
		RecipientEmail: recipientEmail,
		SenderName:     senderName,
		Text:           text,
	})
	if err != nil {
		return
	}
	task := asynq.NewTask(TaskNewChatMessage, payload)
	if _, err := n.client.EnqueueContext(ctx, task, asynq.MaxRetry(3)); err != nil {
		metrics.NotificationsTotal.WithLabelValues("enqueue_failed").Inc()
		n.logger.Warn("failed to enqueue chat notification",
			zap.String("recipient", recipientEmail), zap.Error(err))
		return
	}
	metrics.NotificationsTotal.WithLabelValues("enqueued").Inc()
}

// Close releases the queue client.
func (n *QueueNotifier) Close() error {
	return n.client.Close()
}

// NopNotifier drops every notification. Used when no queue is configured.
type NopNotifier struct{}

func (NopNotifier) NewMessage(ctx context.Context, recipientEmail, senderName, text string) {}

// RegisterHandlers binds the notification task handlers to an asynq mux.
// Run by the worker process, not the API server.
func RegisterHandlers(mux *asynq.ServeMux, mailer Mailer, log *logger.Logger) {
	mux.HandleFunc(TaskNewChatMessage, func(ctx context.Context, t *asynq.Task) error {
		var p NewMessagePayload
		if err := json.Unmarshal(t.Payload(), &p); err != nil {
			// Malformed payload: retrying cannot help.
			return nil
		}
		if err := mailer.SendNewMessage(p.RecipientEmail, p.SenderName, p.Text); err != nil {
			metrics.NotificationsTotal.WithLabelValues("send_failed").Inc()
			log.Warn("failed to send chat notification email",
				zap.String("recipient", p.RecipientEmail), zap.Error(err))
			return err
		}
		metrics.NotificationsTotal.WithLabelValues("sent").Inc()
		return nil
	})
}
