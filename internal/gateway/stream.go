// ABOUTME: SSE streaming transport for session runs
// ABOUTME: Pulls engine events, persists each message, then pushes the frame

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/2389/weaver-gateway/internal/conversation"
	"github.com/2389/weaver-gateway/internal/engine"
	"github.com/2389/weaver-gateway/internal/registry"
	"github.com/2389/weaver-gateway/internal/store"
)

// handleChatStream handles GET /chat-stream requests. It launches the run
// for a started session and pushes its events as SSE frames.
//
// Responsibilities:
//  1. Validate query parameters - session_id and user_id are required
//  2. Load the session snapshot - task, roster, run mode (404/400 on bad state)
//  3. Start the engine run on a context detached from the client connection
//  4. Claim the session in the registry - duplicate streams are rejected
//  5. Pull, normalize, persist, push each event in a single loop
//  6. End with exactly one terminal frame and release the registry entry
func (g *Gateway) handleChatStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		g.sendJSONError(w, http.StatusBadRequest, "session_id is required")
		return
	}

	userID, err := g.resolver.Resolve(r, r.URL.Query().Get("user_id"))
	if err != nil {
		g.sendJSONError(w, http.StatusUnauthorized, "invalid token")
		return
	}

	setup, err := g.service.PrepareRun(r.Context(), userID, sessionID)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound), errors.Is(err, conversation.ErrEmptyConversation):
			g.sendJSONError(w, http.StatusNotFound, "Conversation not found or is empty.")
		case errors.Is(err, conversation.ErrTaskMissing):
			g.sendJSONError(w, http.StatusBadRequest, "Task content missing in conversation.")
		default:
			g.logger.Error("failed to prepare run", "session_id", sessionID, "error", err)
			g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}

	// Check streaming support before starting the run (fail fast)
	flusher, ok := w.(http.Flusher)
	if !ok {
		g.logger.Error("streaming not supported")
		g.sendJSONError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	// The run outlives the client connection: a disconnect cancels the
	// token but the loop keeps draining and persisting until the engine
	// stops, so the stored transcript stays complete.
	runCtx := context.WithoutCancel(r.Context())
	events, errs, token, err := g.runner.StartRun(runCtx, &engine.StartRunRequest{
		SessionID:  sessionID,
		Task:       setup.Task,
		Agents:     setup.Agents,
		RunLocally: setup.RunLocally,
	})
	if err != nil {
		g.logger.Error("failed to start run", "session_id", sessionID, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "Failed to initialize chat stream.")
		return
	}

	if err := g.registry.Register(sessionID, token); err != nil {
		// The run already started; kill it before rejecting the stream
		token.Cancel()
		if errors.Is(err, registry.ErrDuplicateSession) {
			g.sendJSONError(w, http.StatusConflict, "Session already has an active stream.")
			return
		}
		g.logger.Error("failed to register session", "session_id", sessionID, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	defer g.registry.Unregister(sessionID)

	// Once the stream is over the run has either finished or failed; cancel
	// so the engine releases anything still held for it.
	defer token.Cancel()

	g.activeStreams.Add(1)
	defer g.activeStreams.Add(-1)

	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	// Push headers out before the first event so the client sees the stream open
	flusher.Flush()

	g.logger.Info("Stream started", "session_id", sessionID, "user_id", userID, "num_agents", len(setup.Agents))
	g.streamRun(w, flusher, r.Context(), sessionID, userID, events, errs, token)
}

// streamRun is the pull loop for one attached stream. It ends with exactly
// one terminal frame: completed, cancelled, or an error object.
func (g *Gateway) streamRun(
	w http.ResponseWriter,
	flusher http.Flusher,
	clientCtx context.Context,
	sessionID, userID string,
	events <-chan engine.Event,
	errs <-chan error,
	token *engine.CancellationToken,
) {
	clientGone := clientCtx.Done()
	disconnected := false
	messageCount := 0

	for {
		select {
		case <-clientGone:
			// Drain without writing from here on; frames are unwritable
			disconnected = true
			clientGone = nil
			token.Cancel()
			g.logger.Warn("Client disconnected, cancelling run", "session_id", sessionID, "messages_sent", messageCount)

		case err := <-errs:
			g.logger.Error("Run failed", "session_id", sessionID, "error", err)
			if !disconnected {
				g.writeFrame(w, map[string]string{
					"error":   "Streaming error occurred",
					"details": err.Error(),
				})
				flusher.Flush()
			}
			return

		case ev, ok := <-events:
			if !ok {
				// A failing runner buffers its error and closes the event
				// channel in the same breath; a pending error outranks a
				// completion frame.
				select {
				case err := <-errs:
					g.logger.Error("Run failed", "session_id", sessionID, "error", err)
					if !disconnected {
						g.writeFrame(w, map[string]string{
							"error":   "Streaming error occurred",
							"details": err.Error(),
						})
						flusher.Flush()
					}
					return
				default:
				}

				status := "completed"
				if token.Cancelled() {
					status = "cancelled"
				}
				g.logger.Info("Stream finished", "session_id", sessionID, "status", status, "messages_sent", messageCount)
				if !disconnected {
					g.writeFrame(w, map[string]string{
						"status":     status,
						"session_id": sessionID,
					})
					flusher.Flush()
				}
				return
			}

			messageCount++
			msg := g.normalizer.Normalize(ev, sessionID, userID)
			g.normalizer.Persist(msg)
			if !disconnected {
				g.writeFrame(w, msg)
				flusher.Flush()
			}
		}
	}
}

// writeFrame writes a single data-only SSE frame. A payload that cannot be
// marshaled degrades to an inline error frame so the stream keeps its shape.
func (g *Gateway) writeFrame(w http.ResponseWriter, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		g.logger.Error("failed to marshal SSE frame", "error", err)
		data, _ = json.Marshal(map[string]string{
			"error":   "Failed to process message",
			"details": err.Error(),
		})
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
}
