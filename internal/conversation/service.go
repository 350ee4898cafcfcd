// ABOUTME: Session lifecycle service: starting sessions and preparing runs
// ABOUTME: Captures the user task and run configuration in a single write

package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/2389/weaver-gateway/internal/store"
)

// ErrTaskMissing is returned when a conversation exists but holds no task to
// run, so a stream cannot be started from it.
var ErrTaskMissing = errors.New("conversation has no task")

// ErrEmptyConversation is returned when a conversation exists but has no
// messages at all. Callers treat this like a missing conversation.
var ErrEmptyConversation = errors.New("conversation is empty")

// StartResult is what a successful session start hands back to the client.
// SessionID is the handle for the subsequent stream request.
type StartResult struct {
	ID        string `json:"id"`
	Content   string `json:"content"`
	SessionID string `json:"response"`
	Timestamp string `json:"timestamp"`
	UserID    string `json:"user_id"`
}

// RunSetup is everything the streaming endpoint needs to launch a run for an
// existing session.
type RunSetup struct {
	Task       string
	Agents     []store.AgentSpec
	RunLocally bool
}

// Service owns session lifecycle operations against the store.
type Service struct {
	store  store.Store
	logger *slog.Logger
}

// NewService creates a session service.
func NewService(st store.Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  st,
		logger: logger.With("component", "conversation"),
	}
}

// Start creates a session: generates its ID, resolves the roster, and
// persists the initial user message together with the run configuration in
// one write. Nothing executes yet; the run starts when the client attaches
// to the stream.
func (s *Service) Start(ctx context.Context, userID, content, agentsRaw string, runLocally bool) (*StartResult, error) {
	agents, err := ParseRoster(agentsRaw)
	if err != nil {
		return nil, err
	}

	sessionID := GenerateSessionName()
	s.logger.Info("Starting session", "session_id", sessionID, "user_id", userID, "num_agents", len(agents))

	now := time.Now().Format(store.TimeLayout)
	_, err = s.store.SaveMessage(ctx, &store.SaveMessageParams{
		ID:        uuid.New().String(),
		UserID:    userID,
		SessionID: sessionID,
		Message: &store.Message{
			Time:        now,
			SessionID:   sessionID,
			SessionUser: userID,
			Type:        store.MessageTypeUser,
			Source:      "user",
			Content:     content,
		},
		Agents:         agents,
		RunModeLocally: runLocally,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save initial message: %w", err)
	}

	return &StartResult{
		ID:        uuid.New().String(),
		Content:   content,
		SessionID: sessionID,
		Timestamp: now,
		UserID:    userID,
	}, nil
}

// PrepareRun loads the session and extracts what a run needs. The task is
// the first message of the conversation. Returns store.ErrNotFound when the
// conversation does not exist, ErrEmptyConversation when it has no messages,
// and ErrTaskMissing when the first message has no usable task.
func (s *Service) PrepareRun(ctx context.Context, userID, sessionID string) (*RunSetup, error) {
	conv, err := s.store.GetConversation(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	if len(conv.Messages) == 0 {
		return nil, ErrEmptyConversation
	}

	task := conv.Messages[0].Content
	if task == "" {
		return nil, ErrTaskMissing
	}

	agents := conv.Agents
	if len(agents) == 0 {
		agents = DefaultAgents()
	}

	return &RunSetup{
		Task:       task,
		Agents:     agents,
		RunLocally: conv.RunModeLocally,
	}, nil
}
