// Package store provides persistent storage for the gateway using SQLite.
//
// # Data Models
//
//   - Conversation: One session's message log plus the run configuration
//     (agent roster, run mode) captured at session start
//   - Message: The canonical wire/persisted unit pushed to clients
//   - AgentSpec: One participant in a run
//   - Team: A named, reusable agent roster
//
// # SQLite Configuration
//
// The store uses SQLite with WAL mode for concurrent reads:
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA foreign_keys=ON;
//
// Messages carry an AUTOINCREMENT sequence column so that arrival order is
// preserved independently of wire timestamps.
//
// # Error Handling
//
// Common errors:
//
//   - ErrNotFound: Requested entity does not exist
//   - ErrDuplicateTeam: Team already exists
//
// All methods accept context.Context for cancellation support.
//
// # Testing
//
// Use NewSQLiteStore(":memory:") for integration tests with real SQLite.
package store
