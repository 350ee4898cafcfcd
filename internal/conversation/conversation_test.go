// ABOUTME: Tests for roster parsing, session names, and the session service
// ABOUTME: Uses an in-memory SQLite store for lifecycle coverage

package conversation

import (
	"context"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/weaver-gateway/internal/store"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	s, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestParseRoster_EmptySelectsDefaults(t *testing.T) {
	agents, err := ParseRoster("")
	require.NoError(t, err)
	require.Len(t, agents, 4)
	assert.Equal(t, "Coder", agents[0].Name)
	assert.Equal(t, "0001", agents[0].InputKey)
	assert.Equal(t, "MagenticOne", agents[0].Type)
	assert.Equal(t, "WebSurfer", agents[3].Name)
}

func TestParseRoster_CustomAgents(t *testing.T) {
	agents, err := ParseRoster(`[{"input_key":"0001","type":"MagenticOne","name":"Coder"},{"input_key":"0005","type":"Custom","name":"Researcher"}]`)
	require.NoError(t, err)
	require.Len(t, agents, 2)
	assert.Equal(t, "Researcher", agents[1].Name)
}

func TestParseRoster_Invalid(t *testing.T) {
	_, err := ParseRoster(`{"not":"an array"`)
	assert.ErrorIs(t, err, ErrInvalidRoster)
}

func TestParseRoster_EmptyArraySelectsDefaults(t *testing.T) {
	agents, err := ParseRoster(`[]`)
	require.NoError(t, err)
	assert.Len(t, agents, 4)
}

func TestGenerateSessionName_Format(t *testing.T) {
	pattern := regexp.MustCompile(`^[a-z]+-[a-z]+-[0-9a-f]{6}$`)
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		name := GenerateSessionName()
		assert.Regexp(t, pattern, name)
		seen[name] = true
	}
	// The hex suffix should make collisions vanishingly rare
	assert.Greater(t, len(seen), 95)
}

func TestAgentIcon(t *testing.T) {
	assert.Equal(t, "🎻", AgentIcon("MagenticOneOrchestrator"))
	assert.Equal(t, "👤", AgentIcon("user"))
	assert.Equal(t, "🤖", AgentIcon("SomethingNew"))
}

func TestService_Start(t *testing.T) {
	st := newTestStore(t)
	svc := NewService(st, nil)
	ctx := context.Background()

	result, err := svc.Start(ctx, "user123", "summarize the report", "", false)
	require.NoError(t, err)
	assert.NotEmpty(t, result.SessionID)
	assert.Equal(t, "summarize the report", result.Content)
	assert.Equal(t, "user123", result.UserID)

	conv, err := st.GetConversation(ctx, "user123", result.SessionID)
	require.NoError(t, err)
	require.Len(t, conv.Messages, 1)
	assert.Equal(t, store.MessageTypeUser, conv.Messages[0].Type)
	assert.Equal(t, "user", conv.Messages[0].Source)
	assert.Len(t, conv.Agents, 4)
	assert.False(t, conv.RunModeLocally)
}

func TestService_Start_InvalidRoster(t *testing.T) {
	svc := NewService(newTestStore(t), nil)

	_, err := svc.Start(context.Background(), "user123", "task", "garbage", false)
	assert.ErrorIs(t, err, ErrInvalidRoster)
}

func TestService_PrepareRun(t *testing.T) {
	st := newTestStore(t)
	svc := NewService(st, nil)
	ctx := context.Background()

	result, err := svc.Start(ctx, "user123", "find the bug", "", true)
	require.NoError(t, err)

	setup, err := svc.PrepareRun(ctx, "user123", result.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "find the bug", setup.Task)
	assert.Len(t, setup.Agents, 4)
	assert.True(t, setup.RunLocally)
}

func TestService_PrepareRun_NotFound(t *testing.T) {
	svc := NewService(newTestStore(t), nil)

	_, err := svc.PrepareRun(context.Background(), "user123", "no-such-session")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestService_PrepareRun_EmptyTask(t *testing.T) {
	st := newTestStore(t)
	svc := NewService(st, nil)
	ctx := context.Background()

	result, err := svc.Start(ctx, "user123", "", "", false)
	require.NoError(t, err)

	_, err = svc.PrepareRun(ctx, "user123", result.SessionID)
	assert.ErrorIs(t, err, ErrTaskMissing)
}
