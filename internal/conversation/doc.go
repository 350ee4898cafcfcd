// Package conversation implements the session lifecycle: starting sessions,
// preparing runs from stored conversations, and normalizing engine events
// into the single message shape clients consume.
//
// A session start is a pure persistence operation. The task, agent roster,
// and run mode are captured in one write; execution begins only when a
// client attaches to the stream. The Normalizer then records each engine
// event before it is pushed, so the stored transcript matches what clients
// saw even if they disconnect mid-run.
package conversation
