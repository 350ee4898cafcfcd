// ABOUTME: Normalizes heterogeneous engine events into wire messages
// ABOUTME: Persists each message before it is pushed, tolerating write failures

package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/2389/weaver-gateway/internal/engine"
	"github.com/2389/weaver-gateway/internal/store"
)

// persistTimeout bounds a single message write. Writes run on a detached
// context so a client disconnect cannot abort persistence mid-stream.
const persistTimeout = 5 * time.Second

// Normalizer converts engine events into the single message shape pushed to
// clients, and records each one before it goes out. Normalization is total:
// every event maps to a message, with unrecognized events becoming
// system-sourced Unknown messages.
type Normalizer struct {
	store         store.Store
	logger        *slog.Logger
	droppedWrites atomic.Int64
}

// NewNormalizer creates a normalizer writing through the given store.
func NewNormalizer(st store.Store, logger *slog.Logger) *Normalizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Normalizer{
		store:  st,
		logger: logger.With("component", "conversation"),
	}
}

// Normalize maps one engine event to a wire message stamped with the current
// time and the session's identity.
func (n *Normalizer) Normalize(ev engine.Event, sessionID, userID string) *store.Message {
	msg := &store.Message{
		Time:        time.Now().Format(store.TimeLayout),
		SessionID:   sessionID,
		SessionUser: userID,
	}

	switch e := ev.(type) {
	case engine.TaskResult:
		msg.Type = store.MessageTypeTaskResult
		msg.Source = "TaskResult"
		if len(e.Messages) > 0 {
			msg.Content = e.Messages[len(e.Messages)-1].Content
		} else {
			msg.Content = "Task finished."
		}
		stop := e.StopReason
		msg.StopReason = &stop

	case engine.TextMessage:
		msg.Type = engine.KindTextMessage
		msg.Source = e.Source
		msg.Content = e.Content

	case engine.MultiModalMessage:
		msg.Type = engine.KindMultiModalMessage
		msg.Source = e.Source
		if len(e.Content) > 0 {
			msg.Content = e.Content[0].Text
		}
		if len(e.Content) > 1 && e.Content[1].DataURI != "" {
			uri := e.Content[1].DataURI
			msg.ContentImage = &uri
		}

	case engine.ToolCallRequestEvent:
		msg.Type = engine.KindToolCallRequest
		msg.Source = e.Source
		if len(e.Calls) > 0 {
			msg.Content = e.Calls[0].Arguments
		}

	case engine.ToolCallExecutionEvent:
		msg.Type = engine.KindToolCallExecution
		msg.Source = e.Source
		if len(e.Results) > 0 {
			msg.Content = e.Results[0].Content
		}

	default:
		msg.Type = store.MessageTypeUnknown
		msg.Source = "System"
		msg.Content = fmt.Sprintf("Received unknown event type: %s", ev.Kind())
		n.logger.Warn("Unknown engine event type", "kind", ev.Kind(), "session_id", sessionID)
	}

	return msg
}

// Persist records a message. Failures are logged and counted but never fatal;
// the stream keeps flowing when the database falls over.
func (n *Normalizer) Persist(msg *store.Message) {
	saveCtx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	_, err := n.store.SaveMessage(saveCtx, &store.SaveMessageParams{
		ID:        uuid.New().String(),
		UserID:    msg.SessionUser,
		SessionID: msg.SessionID,
		Message:   msg,
	})
	if err != nil {
		n.droppedWrites.Add(1)
		n.logger.Error("Failed to save message",
			"session_id", msg.SessionID,
			"source", msg.Source,
			"error", err)
	}
}

// DroppedWrites reports how many message writes have failed since startup.
func (n *Normalizer) DroppedWrites() int64 {
	return n.droppedWrites.Load()
}
