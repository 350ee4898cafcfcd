// Package gateway serves the session streaming HTTP API.
//
// # Session Lifecycle
//
// A client starts a session with POST /start, which persists the task and
// run configuration and returns a session ID. Attaching to GET /chat-stream
// launches the run and pushes its events as data-only SSE frames:
//
//	data: {"time":"...","session_id":"...","type":"TextMessage",...}
//
// Each stream ends with exactly one terminal frame: a completed or cancelled
// status object, or an error object if the engine failed.
//
// # Ordering and Persistence
//
// A single pull loop per stream normalizes, persists, and then pushes each
// event, so frame order, persisted order, and engine emission order are the
// same sequence. Persistence failures are logged and counted but do not
// interrupt the stream.
//
// # Cancellation
//
// GET /stop cancels a run through the process-wide registry. Cancellation is
// cooperative and fire-and-forget; the stream reports the outcome with its
// terminal frame. A client disconnect also cancels the run, but the loop
// keeps draining and persisting events until the engine stops so the stored
// transcript stays complete.
//
// # Other Endpoints
//
//   - POST /conversations, /conversations/user, /conversations/delete: history
//   - GET /conversations/view: HTML transcript with markdown rendering
//   - /teams: named agent roster CRUD
//   - GET /health, /health/ready: liveness and stream accounting
package gateway
