// ABOUTME: Agent roster handling for session starts
// ABOUTME: Default Magentic-One roster, roster parsing, and agent icons

package conversation

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/2389/weaver-gateway/internal/store"
)

// ErrInvalidRoster is returned when a submitted roster cannot be parsed.
var ErrInvalidRoster = errors.New("invalid agent roster")

// DefaultAgents returns the roster used when a session start names no agents.
func DefaultAgents() []store.AgentSpec {
	return []store.AgentSpec{
		{InputKey: "0001", Type: "MagenticOne", Name: "Coder", Icon: "👨‍💻"},
		{InputKey: "0002", Type: "MagenticOne", Name: "Executor", Icon: "💻"},
		{InputKey: "0003", Type: "MagenticOne", Name: "FileSurfer", Icon: "📂"},
		{InputKey: "0004", Type: "MagenticOne", Name: "WebSurfer", Icon: "🏄‍♂️"},
	}
}

// ParseRoster decodes a roster submitted as a JSON array string. An empty
// string selects the default roster. Anything unparseable is ErrInvalidRoster.
func ParseRoster(raw string) ([]store.AgentSpec, error) {
	if raw == "" {
		return DefaultAgents(), nil
	}

	var agents []store.AgentSpec
	if err := json.Unmarshal([]byte(raw), &agents); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRoster, err)
	}
	if len(agents) == 0 {
		return DefaultAgents(), nil
	}
	return agents, nil
}

// AgentIcon returns the display icon for a named agent.
func AgentIcon(agentName string) string {
	switch agentName {
	case "MagenticOneOrchestrator":
		return "🎻"
	case "WebSurfer":
		return "🏄‍♂️"
	case "Coder":
		return "👨‍💻"
	case "FileSurfer":
		return "📂"
	case "Executor":
		return "💻"
	case "user":
		return "👤"
	default:
		return "🤖"
	}
}
