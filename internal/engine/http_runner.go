// ABOUTME: HTTP implementation of the Runner contract
// ABOUTME: Streams NDJSON events from the external runtime and decodes them

package engine

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// maxEventSize bounds a single NDJSON line. Screenshots arrive as base64
// data URIs, so lines can be large.
const maxEventSize = 16 * 1024 * 1024

// HTTPRunner talks to the multi-agent runtime over HTTP. A run is a single
// POST whose response body is a newline-delimited JSON event stream.
type HTTPRunner struct {
	endpoint string
	client   *http.Client
	logger   *slog.Logger
}

// NewHTTPRunner creates a runner for the runtime at endpoint. requestTimeout
// bounds how long the runtime may take to start streaming; the stream itself
// has no deadline.
func NewHTTPRunner(endpoint string, requestTimeout time.Duration, logger *slog.Logger) *HTTPRunner {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPRunner{
		endpoint: endpoint,
		client: &http.Client{
			Transport: &http.Transport{
				ResponseHeaderTimeout: requestTimeout,
			},
		},
		logger: logger.With("component", "engine"),
	}
}

// StartRun begins a run and returns its event stream. The event channel
// closes when the runtime finishes; the error channel carries at most one
// terminal failure. Cancelling the token aborts the underlying request,
// which the runtime treats as a cooperative stop.
func (r *HTTPRunner) StartRun(ctx context.Context, req *StartRunRequest) (<-chan Event, <-chan error, *CancellationToken, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to encode run request: %w", err)
	}

	runCtx, cancelRun := context.WithCancel(ctx)
	httpReq, err := http.NewRequestWithContext(runCtx, http.MethodPost, r.endpoint+"/runs", bytes.NewReader(body))
	if err != nil {
		cancelRun()
		return nil, nil, nil, fmt.Errorf("failed to build run request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(httpReq)
	if err != nil {
		cancelRun()
		return nil, nil, nil, fmt.Errorf("failed to reach engine: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancelRun()
		return nil, nil, nil, fmt.Errorf("engine rejected run: status %d", resp.StatusCode)
	}

	token := NewCancellationToken()
	events := make(chan Event)
	errs := make(chan error, 1)

	// Aborting the request context unblocks the stream reader mid-read.
	go func() {
		select {
		case <-token.Done():
			cancelRun()
		case <-runCtx.Done():
		}
	}()

	go func() {
		defer close(events)
		defer resp.Body.Close()
		defer cancelRun()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 64*1024), maxEventSize)
		for scanner.Scan() {
			line := bytes.TrimSpace(scanner.Bytes())
			if len(line) == 0 {
				continue
			}
			ev := decodeEvent(line)
			select {
			case events <- ev:
			case <-runCtx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil && !token.Cancelled() && runCtx.Err() == nil {
			r.logger.Error("Engine stream failed", "session_id", req.SessionID, "error", err)
			errs <- fmt.Errorf("engine stream failed: %w", err)
		}
	}()

	return events, errs, token, nil
}

// decodeEvent maps one wire event to its typed variant. Decoding is total:
// unrecognized kinds and malformed payloads come back as UnknownEvent so the
// stream never stalls on a surprising line.
func decodeEvent(line []byte) Event {
	raw := make(json.RawMessage, len(line))
	copy(raw, line)

	var envelope struct {
		Kind string `json:"kind"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return UnknownEvent{RawKind: "", Payload: raw}
	}

	switch envelope.Kind {
	case KindTaskResult:
		var ev TaskResult
		if err := json.Unmarshal(raw, &ev); err != nil {
			return UnknownEvent{RawKind: envelope.Kind, Payload: raw}
		}
		return ev
	case KindTextMessage:
		var ev TextMessage
		if err := json.Unmarshal(raw, &ev); err != nil {
			return UnknownEvent{RawKind: envelope.Kind, Payload: raw}
		}
		return ev
	case KindMultiModalMessage:
		var ev MultiModalMessage
		if err := json.Unmarshal(raw, &ev); err != nil {
			return UnknownEvent{RawKind: envelope.Kind, Payload: raw}
		}
		return ev
	case KindToolCallRequest:
		var ev ToolCallRequestEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			return UnknownEvent{RawKind: envelope.Kind, Payload: raw}
		}
		return ev
	case KindToolCallExecution:
		var ev ToolCallExecutionEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			return UnknownEvent{RawKind: envelope.Kind, Payload: raw}
		}
		return ev
	default:
		return UnknownEvent{RawKind: envelope.Kind, Payload: raw}
	}
}
