// Package engine defines the contract with the external multi-agent runtime
// and an HTTP implementation of it.
//
// A run is requested once and observed as a finite stream of typed events
// (TextMessage, MultiModalMessage, tool call events, and a terminal
// TaskResult). Unrecognized events decode to UnknownEvent rather than
// failing, so the gateway keeps up with runtime additions.
//
// Each run carries a CancellationToken. Cancellation is cooperative: the
// runtime stops at its next suspension point, and in-flight events keep
// flowing until the stream closes.
package engine
