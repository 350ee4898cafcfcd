// ABOUTME: Tests for the SSE streaming transport
// ABOUTME: Covers frame accounting, terminal frames, cancellation, and races

package gateway

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/weaver-gateway/internal/engine"
)

// readFrames reads data-only SSE frames until the stream closes.
func readFrames(t *testing.T, body io.Reader) []map[string]interface{} {
	t.Helper()
	var frames []map[string]interface{}
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var frame map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &frame))
		frames = append(frames, frame)
	}
	return frames
}

func streamURL(srv *httptest.Server, sessionID, userID string) string {
	return srv.URL + "/chat-stream?session_id=" + sessionID + "&user_id=" + userID
}

func TestChatStream_HappyPath(t *testing.T) {
	runner := &fakeRunner{events: []engine.Event{
		engine.TextMessage{Source: "Coder", Content: "thinking"},
		engine.MultiModalMessage{Source: "WebSurfer", Content: []engine.MultiModalPart{
			{Text: "page"}, {DataURI: "data:image/png;base64,AAAA"},
		}},
		engine.TaskResult{
			Messages:   []engine.ChatMessage{{Source: "Coder", Content: "the answer"}},
			StopReason: "task complete",
		},
	}}
	g := newTestGateway(t, runner)
	srv := httptest.NewServer(g.routes())
	defer srv.Close()

	sessionID := startSession(t, g, "user123", "do the thing")

	resp, err := http.Get(streamURL(srv, sessionID, "user123"))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	frames := readFrames(t, resp.Body)
	require.Len(t, frames, 4)

	assert.Equal(t, "TextMessage", frames[0]["type"])
	assert.Equal(t, "thinking", frames[0]["content"])
	assert.Equal(t, "MultiModalMessage", frames[1]["type"])
	assert.Equal(t, "data:image/png;base64,AAAA", frames[1]["content_image"])
	assert.Equal(t, "TaskResult", frames[2]["type"])
	assert.Equal(t, "the answer", frames[2]["content"])
	assert.Equal(t, "task complete", frames[2]["stop_reason"])

	// Terminal frame
	assert.Equal(t, "completed", frames[3]["status"])
	assert.Equal(t, sessionID, frames[3]["session_id"])

	// Everything pushed was also persisted, after the initial user message
	conv, err := g.store.GetConversation(context.Background(), "user123", sessionID)
	require.NoError(t, err)
	require.Len(t, conv.Messages, 4)
	assert.Equal(t, "user", conv.Messages[0].Type)
	assert.Equal(t, "thinking", conv.Messages[1].Content)

	// Registry entry released
	assert.Equal(t, 0, g.registry.Len())
}

func TestChatStream_ConversationNotFound(t *testing.T) {
	g := newTestGateway(t, &fakeRunner{})
	srv := httptest.NewServer(g.routes())
	defer srv.Close()

	resp, err := http.Get(streamURL(srv, "no-such-session", "user123"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestChatStream_TaskMissing(t *testing.T) {
	g := newTestGateway(t, &fakeRunner{})
	srv := httptest.NewServer(g.routes())
	defer srv.Close()

	// A session whose stored task is blank cannot stream
	result, err := g.service.Start(context.Background(), "user123", "", "", false)
	require.NoError(t, err)

	resp, err := http.Get(streamURL(srv, result.SessionID, "user123"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestChatStream_MissingSessionID(t *testing.T) {
	g := newTestGateway(t, &fakeRunner{})
	srv := httptest.NewServer(g.routes())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/chat-stream?user_id=user123")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestChatStream_DuplicateSession(t *testing.T) {
	g := newTestGateway(t, &fakeRunner{holdOpen: true})
	srv := httptest.NewServer(g.routes())
	defer srv.Close()

	sessionID := startSession(t, g, "user123", "long task")

	// First stream holds the session
	first, err := http.Get(streamURL(srv, sessionID, "user123"))
	require.NoError(t, err)
	defer first.Body.Close()
	require.Equal(t, http.StatusOK, first.StatusCode)

	// Second attach must be rejected, not silently replace the handle
	require.Eventually(t, func() bool { return g.registry.Len() == 1 }, time.Second, 10*time.Millisecond)
	second, err := http.Get(streamURL(srv, sessionID, "user123"))
	require.NoError(t, err)
	defer second.Body.Close()
	assert.Equal(t, http.StatusConflict, second.StatusCode)
}

func TestChatStream_StopProducesCancelledFrame(t *testing.T) {
	runner := &fakeRunner{
		events:   []engine.Event{engine.TextMessage{Source: "Coder", Content: "started"}},
		holdOpen: true,
	}
	g := newTestGateway(t, runner)
	srv := httptest.NewServer(g.routes())
	defer srv.Close()

	sessionID := startSession(t, g, "user123", "cancel me")

	resp, err := http.Get(streamURL(srv, sessionID, "user123"))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	reader := bufio.NewReader(resp.Body)

	// Consume the first event so the run is known to be in flight
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(line, "data: "))
	_, err = reader.ReadString('\n') // frame separator
	require.NoError(t, err)

	stopResp, err := http.Get(srv.URL + "/stop?session_id=" + sessionID)
	require.NoError(t, err)
	var status StatusResponse
	require.NoError(t, json.NewDecoder(stopResp.Body).Decode(&status))
	stopResp.Body.Close()
	assert.Equal(t, "success", status.Status)

	frames := readFrames(t, reader)
	require.NotEmpty(t, frames)
	last := frames[len(frames)-1]
	assert.Equal(t, "cancelled", last["status"])
	assert.Equal(t, sessionID, last["session_id"])
}

func TestChatStream_EngineFailureProducesErrorFrame(t *testing.T) {
	runner := &fakeRunner{
		events:   []engine.Event{engine.TextMessage{Source: "Coder", Content: "partial"}},
		finalErr: errors.New("runtime exploded"),
	}
	g := newTestGateway(t, runner)
	srv := httptest.NewServer(g.routes())
	defer srv.Close()

	sessionID := startSession(t, g, "user123", "doomed task")

	resp, err := http.Get(streamURL(srv, sessionID, "user123"))
	require.NoError(t, err)
	defer resp.Body.Close()

	frames := readFrames(t, resp.Body)
	require.Len(t, frames, 2)
	assert.Equal(t, "partial", frames[0]["content"])
	assert.Equal(t, "Streaming error occurred", frames[1]["error"])
	assert.Contains(t, frames[1]["details"], "runtime exploded")
}

// abruptRunner fails the way a real engine read does: the error lands on
// the error channel and the event channel closes right behind it.
type abruptRunner struct {
	events []engine.Event
	err    error
}

func (r *abruptRunner) StartRun(ctx context.Context, req *engine.StartRunRequest) (<-chan engine.Event, <-chan error, *engine.CancellationToken, error) {
	token := engine.NewCancellationToken()
	events := make(chan engine.Event, len(r.events))
	errs := make(chan error, 1)
	for _, ev := range r.events {
		events <- ev
	}
	errs <- r.err
	close(events)
	return events, errs, token, nil
}

func TestChatStream_ErrorOutranksCompletion(t *testing.T) {
	runner := &abruptRunner{
		events: []engine.Event{engine.TextMessage{Source: "Coder", Content: "partial"}},
		err:    errors.New("connection reset"),
	}
	g := newTestGateway(t, runner)
	srv := httptest.NewServer(g.routes())
	defer srv.Close()

	sessionID := startSession(t, g, "user123", "flaky task")

	// Both channels are ready the moment the loop starts; the terminal
	// frame must report the failure every time, never a completion.
	for i := 0; i < 25; i++ {
		resp, err := http.Get(streamURL(srv, sessionID, "user123"))
		require.NoError(t, err)
		frames := readFrames(t, resp.Body)
		resp.Body.Close()

		require.NotEmpty(t, frames)
		last := frames[len(frames)-1]
		require.Equal(t, "Streaming error occurred", last["error"], "run %d reported %v", i, last)
		assert.Contains(t, last["details"], "connection reset")
	}
}

func TestChatStream_StartRunFailure(t *testing.T) {
	g := newTestGateway(t, &fakeRunner{startErr: errors.New("engine unreachable")})
	srv := httptest.NewServer(g.routes())
	defer srv.Close()

	sessionID := startSession(t, g, "user123", "task")

	resp, err := http.Get(streamURL(srv, sessionID, "user123"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, 0, g.registry.Len())
}

func TestChatStream_UnknownEventDegradesGracefully(t *testing.T) {
	runner := &fakeRunner{events: []engine.Event{
		engine.UnknownEvent{RawKind: "SelectorEvent"},
		engine.TaskResult{StopReason: "done"},
	}}
	g := newTestGateway(t, runner)
	srv := httptest.NewServer(g.routes())
	defer srv.Close()

	sessionID := startSession(t, g, "user123", "task")

	resp, err := http.Get(streamURL(srv, sessionID, "user123"))
	require.NoError(t, err)
	defer resp.Body.Close()

	frames := readFrames(t, resp.Body)
	require.Len(t, frames, 3)
	assert.Equal(t, "Unknown", frames[0]["type"])
	assert.Equal(t, "System", frames[0]["source"])
	assert.Contains(t, frames[0]["content"], "SelectorEvent")
	assert.Equal(t, "completed", frames[2]["status"])
}

func TestChatStream_SessionReusableAfterCompletion(t *testing.T) {
	runner := &fakeRunner{events: []engine.Event{engine.TaskResult{StopReason: "done"}}}
	g := newTestGateway(t, runner)
	srv := httptest.NewServer(g.routes())
	defer srv.Close()

	sessionID := startSession(t, g, "user123", "task")

	for i := 0; i < 2; i++ {
		resp, err := http.Get(streamURL(srv, sessionID, "user123"))
		require.NoError(t, err)
		frames := readFrames(t, resp.Body)
		resp.Body.Close()
		require.Len(t, frames, 2)
		assert.Equal(t, "completed", frames[1]["status"])
	}
}
