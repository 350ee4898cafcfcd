// ABOUTME: Contract for the external multi-agent runtime consumed by the gateway
// ABOUTME: Defines the typed event set, cancellation token, and Runner interface

package engine

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/2389/weaver-gateway/internal/store"
)

// Event kind tags. The engine event set is open-ended; these are the variants
// the gateway understands. Anything else decodes to UnknownEvent.
const (
	KindTaskResult        = "TaskResult"
	KindTextMessage       = "TextMessage"
	KindMultiModalMessage = "MultiModalMessage"
	KindToolCallRequest   = "ToolCallRequestEvent"
	KindToolCallExecution = "ToolCallExecutionEvent"
)

// Event is one item of an engine run's event sequence.
type Event interface {
	Kind() string
}

// ChatMessage is a sub-message carried inside a TaskResult.
type ChatMessage struct {
	Source  string `json:"source"`
	Content string `json:"content"`
}

// TaskResult is the terminal summary event of a run.
type TaskResult struct {
	Messages   []ChatMessage `json:"messages"`
	StopReason string        `json:"stop_reason"`
}

func (TaskResult) Kind() string { return KindTaskResult }

// TextMessage is a plain text utterance from one agent.
type TextMessage struct {
	Source  string `json:"source"`
	Content string `json:"content"`
}

func (TextMessage) Kind() string { return KindTextMessage }

// MultiModalPart is one item of a MultiModalMessage: text or an image data URI.
type MultiModalPart struct {
	Text    string `json:"text,omitempty"`
	DataURI string `json:"data_uri,omitempty"`
}

// MultiModalMessage carries mixed text/image content from one agent.
type MultiModalMessage struct {
	Source  string           `json:"source"`
	Content []MultiModalPart `json:"content"`
}

func (MultiModalMessage) Kind() string { return KindMultiModalMessage }

// FunctionCall is one requested tool invocation.
type FunctionCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolCallRequestEvent reports that an agent requested tool calls.
type ToolCallRequestEvent struct {
	Source string         `json:"source"`
	Calls  []FunctionCall `json:"content"`
}

func (ToolCallRequestEvent) Kind() string { return KindToolCallRequest }

// FunctionExecutionResult is the outcome of one tool call.
type FunctionExecutionResult struct {
	CallID  string `json:"call_id"`
	Content string `json:"content"`
	IsError bool   `json:"is_error"`
}

// ToolCallExecutionEvent reports the results of executed tool calls.
type ToolCallExecutionEvent struct {
	Source  string                    `json:"source"`
	Results []FunctionExecutionResult `json:"content"`
}

func (ToolCallExecutionEvent) Kind() string { return KindToolCallExecution }

// UnknownEvent preserves an event the gateway does not recognize. The raw
// payload is kept so nothing is silently dropped.
type UnknownEvent struct {
	RawKind string
	Payload json.RawMessage
}

func (e UnknownEvent) Kind() string { return e.RawKind }

// CancellationToken is the cooperative cancellation handle for one run.
// Cancel is idempotent and safe for concurrent use. The run observes the
// signal at its own suspension points; nothing is force-killed.
type CancellationToken struct {
	once sync.Once
	done chan struct{}
}

// NewCancellationToken creates an uncancelled token.
func NewCancellationToken() *CancellationToken {
	return &CancellationToken{done: make(chan struct{})}
}

// Cancel requests cooperative termination. Safe to call multiple times.
func (t *CancellationToken) Cancel() {
	t.once.Do(func() { close(t.done) })
}

// Done returns a channel closed once cancellation has been requested.
func (t *CancellationToken) Done() <-chan struct{} {
	return t.done
}

// Cancelled reports whether cancellation has been requested.
func (t *CancellationToken) Cancelled() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// StartRunRequest describes one run for the external runtime.
type StartRunRequest struct {
	SessionID  string            `json:"session_id"`
	Task       string            `json:"task"`
	Agents     []store.AgentSpec `json:"agents"`
	RunLocally bool              `json:"run_locally"`
}

// Runner starts runs against the multi-agent runtime. The returned event
// channel is a lazy, finite, non-restartable sequence that closes when the
// run ends; the error channel carries at most one terminal runtime failure.
// Cancelling the token ends the sequence early at the runtime's next
// suspension point.
type Runner interface {
	StartRun(ctx context.Context, req *StartRunRequest) (<-chan Event, <-chan error, *CancellationToken, error)
}
