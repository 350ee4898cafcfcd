// ABOUTME: Store interface and data types for weaver-gateway persistence
// ABOUTME: Defines Conversation, Message, AgentSpec, Team and the Store interface

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicateTeam is returned when trying to create a team that already exists
var ErrDuplicateTeam = errors.New("team already exists")

// TimeLayout is the timestamp format used on the wire and in the messages table.
const TimeLayout = "2006-01-02 15:04:05"

// MessageType constants for well-known message types. The set is open on the
// engine side; these are the ones the gateway itself produces or inspects.
const (
	MessageTypeUser       = "user"       // Initial task message submitted by a user
	MessageTypeTaskResult = "TaskResult" // Final result emitted by the engine
	MessageTypeUnknown    = "Unknown"    // Fallback for unrecognized engine events
)

// AgentSpec describes one participant in a run. The roster of a session is an
// ordered list of these, immutable once the session starts.
type AgentSpec struct {
	InputKey      string `json:"input_key"`
	Type          string `json:"type"`
	Name          string `json:"name"`
	SystemMessage string `json:"system_message"`
	Description   string `json:"description"`
	Icon          string `json:"icon"`
}

// Message is the canonical unit pushed to clients and appended to a
// conversation. Immutable after creation.
type Message struct {
	Time         string  `json:"time"`
	SessionID    string  `json:"session_id"`
	SessionUser  string  `json:"session_user"`
	Type         string  `json:"type"`
	Source       string  `json:"source"`
	Content      string  `json:"content"`
	ContentImage *string `json:"content_image,omitempty"`
	StopReason   *string `json:"stop_reason,omitempty"`
}

// Conversation is the persisted aggregate for one session: the message log in
// arrival order plus the run configuration captured at session start.
type Conversation struct {
	UserID         string      `json:"user_id"`
	SessionID      string      `json:"session_id"`
	Messages       []*Message  `json:"messages"`
	Agents         []AgentSpec `json:"agents"`
	RunModeLocally bool        `json:"run_mode_locally"`
	CreatedAt      time.Time   `json:"created_at"`
}

// ConversationSummary is the list-view projection of a conversation.
type ConversationSummary struct {
	SessionID    string    `json:"session_id"`
	UserID       string    `json:"user_id"`
	MessageCount int       `json:"message_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Team is a named, reusable agent roster.
type Team struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	Agents    []AgentSpec `json:"agents"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// SaveMessageParams carries one message append. Agents and RunModeLocally are
// only consulted when the append creates the conversation; later appends leave
// the stored run configuration untouched.
type SaveMessageParams struct {
	ID             string
	UserID         string
	SessionID      string
	Message        *Message
	Agents         []AgentSpec
	RunModeLocally bool
}

// Store defines the persistence contract for conversations and teams.
type Store interface {
	// SaveMessage appends a message to a conversation, creating the
	// conversation on first write. Returns the conversation after the append.
	SaveMessage(ctx context.Context, params *SaveMessageParams) (*Conversation, error)

	// GetConversation returns the full conversation snapshot, messages in
	// arrival order. Returns ErrNotFound if it does not exist.
	GetConversation(ctx context.Context, userID, sessionID string) (*Conversation, error)

	// ListConversations returns summaries for every stored conversation.
	ListConversations(ctx context.Context) ([]*ConversationSummary, error)

	// ListConversationsForUser returns summaries for one user's conversations.
	ListConversationsForUser(ctx context.Context, userID string) ([]*ConversationSummary, error)

	// DeleteConversation removes a whole conversation atomically. The boolean
	// reports whether anything was deleted.
	DeleteConversation(ctx context.Context, userID, sessionID string) (bool, error)

	// Teams
	CreateTeam(ctx context.Context, team *Team) error
	GetTeam(ctx context.Context, id string) (*Team, error)
	ListTeams(ctx context.Context) ([]*Team, error)
	UpdateTeam(ctx context.Context, team *Team) error
	DeleteTeam(ctx context.Context, id string) error

	// Close releases any resources held by the store
	Close() error
}
