// ABOUTME: Tests for event normalization and write-through persistence
// ABOUTME: Covers every event variant, the unknown fallback, and failed writes

package conversation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/weaver-gateway/internal/engine"
	"github.com/2389/weaver-gateway/internal/store"
)

func TestNormalize_TextMessage(t *testing.T) {
	n := NewNormalizer(newTestStore(t), nil)

	msg := n.Normalize(engine.TextMessage{Source: "Coder", Content: "working on it"}, "s1", "user123")
	assert.Equal(t, "TextMessage", msg.Type)
	assert.Equal(t, "Coder", msg.Source)
	assert.Equal(t, "working on it", msg.Content)
	assert.Equal(t, "s1", msg.SessionID)
	assert.Equal(t, "user123", msg.SessionUser)
	assert.NotEmpty(t, msg.Time)
	assert.Nil(t, msg.ContentImage)
	assert.Nil(t, msg.StopReason)
}

func TestNormalize_TaskResult(t *testing.T) {
	n := NewNormalizer(newTestStore(t), nil)

	msg := n.Normalize(engine.TaskResult{
		Messages:   []engine.ChatMessage{{Source: "user", Content: "task"}, {Source: "Coder", Content: "final answer"}},
		StopReason: "task complete",
	}, "s1", "user123")

	assert.Equal(t, store.MessageTypeTaskResult, msg.Type)
	assert.Equal(t, "TaskResult", msg.Source)
	assert.Equal(t, "final answer", msg.Content)
	require.NotNil(t, msg.StopReason)
	assert.Equal(t, "task complete", *msg.StopReason)
}

func TestNormalize_TaskResult_NoMessages(t *testing.T) {
	n := NewNormalizer(newTestStore(t), nil)

	msg := n.Normalize(engine.TaskResult{StopReason: "stopped"}, "s1", "user123")
	assert.Equal(t, "Task finished.", msg.Content)
}

func TestNormalize_MultiModalMessage(t *testing.T) {
	n := NewNormalizer(newTestStore(t), nil)

	msg := n.Normalize(engine.MultiModalMessage{
		Source: "WebSurfer",
		Content: []engine.MultiModalPart{
			{Text: "here is the page"},
			{DataURI: "data:image/png;base64,AAAA"},
		},
	}, "s1", "user123")

	assert.Equal(t, "MultiModalMessage", msg.Type)
	assert.Equal(t, "here is the page", msg.Content)
	require.NotNil(t, msg.ContentImage)
	assert.Equal(t, "data:image/png;base64,AAAA", *msg.ContentImage)
}

func TestNormalize_MultiModalMessage_TextOnly(t *testing.T) {
	n := NewNormalizer(newTestStore(t), nil)

	msg := n.Normalize(engine.MultiModalMessage{
		Source:  "WebSurfer",
		Content: []engine.MultiModalPart{{Text: "no screenshot this time"}},
	}, "s1", "user123")

	assert.Equal(t, "no screenshot this time", msg.Content)
	assert.Nil(t, msg.ContentImage)
}

func TestNormalize_ToolCallEvents(t *testing.T) {
	n := NewNormalizer(newTestStore(t), nil)

	msg := n.Normalize(engine.ToolCallRequestEvent{
		Source: "Executor",
		Calls:  []engine.FunctionCall{{Name: "run_shell", Arguments: `{"cmd":"ls"}`}},
	}, "s1", "user123")
	assert.Equal(t, "ToolCallRequestEvent", msg.Type)
	assert.Equal(t, `{"cmd":"ls"}`, msg.Content)

	msg = n.Normalize(engine.ToolCallExecutionEvent{
		Source:  "Executor",
		Results: []engine.FunctionExecutionResult{{Content: "file.txt"}},
	}, "s1", "user123")
	assert.Equal(t, "ToolCallExecutionEvent", msg.Type)
	assert.Equal(t, "file.txt", msg.Content)
}

func TestNormalize_UnknownEvent(t *testing.T) {
	n := NewNormalizer(newTestStore(t), nil)

	msg := n.Normalize(engine.UnknownEvent{RawKind: "SelectorEvent"}, "s1", "user123")
	assert.Equal(t, store.MessageTypeUnknown, msg.Type)
	assert.Equal(t, "System", msg.Source)
	assert.Contains(t, msg.Content, "SelectorEvent")
}

func TestPersist_WritesThrough(t *testing.T) {
	st := newTestStore(t)
	n := NewNormalizer(st, nil)

	msg := n.Normalize(engine.TextMessage{Source: "Coder", Content: "hello"}, "s1", "user123")
	n.Persist(msg)

	conv, err := st.GetConversation(context.Background(), "user123", "s1")
	require.NoError(t, err)
	require.Len(t, conv.Messages, 1)
	assert.Equal(t, "hello", conv.Messages[0].Content)
	assert.Equal(t, int64(0), n.DroppedWrites())
}

func TestPersist_FailureIsCountedNotFatal(t *testing.T) {
	st, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	n := NewNormalizer(st, nil)

	// A closed store makes every write fail
	require.NoError(t, st.Close())

	msg := n.Normalize(engine.TextMessage{Source: "Coder", Content: "lost"}, "s1", "user123")
	n.Persist(msg)
	n.Persist(msg)

	assert.Equal(t, int64(2), n.DroppedWrites())
}
