// ABOUTME: HTTP API handlers for session lifecycle, history, and teams
// ABOUTME: Provides /start, /stop, /conversations, and /teams endpoints

package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/2389/weaver-gateway/internal/conversation"
	"github.com/2389/weaver-gateway/internal/store"
)

// StartRequest is the JSON request body for POST /start. Agents is a JSON
// array string; empty selects the default roster.
type StartRequest struct {
	Content        string `json:"content"`
	UserID         string `json:"user_id,omitempty"`
	Agents         string `json:"agents,omitempty"`
	RunModeLocally bool   `json:"run_mode_locally,omitempty"`
}

// StatusResponse is the JSON shape for fire-and-forget operations like
// /stop and /conversations/delete.
type StatusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// UserConversationsRequest is the JSON request body for POST /conversations/user.
type UserConversationsRequest struct {
	UserID    string `json:"user_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

// handleStart handles POST /start requests. It creates a session, persists
// the initial user message with the run configuration, and returns the
// session ID the client uses to attach to the stream.
func (g *Gateway) handleStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	req, err := parseStartRequest(r.Body)
	if err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	userID, err := g.resolver.Resolve(r, req.UserID)
	if err != nil {
		g.sendJSONError(w, http.StatusUnauthorized, "invalid token")
		return
	}

	result, err := g.service.Start(r.Context(), userID, req.Content, req.Agents, req.RunModeLocally)
	if err != nil {
		if errors.Is(err, conversation.ErrInvalidRoster) {
			g.sendJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		g.logger.Error("failed to start session", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// handleStop handles GET /stop requests. Cancellation is fire-and-forget:
// the response only reports whether a cancellation was requested, never
// whether the run has stopped yet. A missing token is reported in-band with
// status 200 since the run may simply have finished already.
func (g *Gateway) handleStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		g.sendJSONError(w, http.StatusBadRequest, "session_id is required")
		return
	}

	w.Header().Set("Content-Type", "application/json")

	token, err := g.registry.Lookup(sessionID)
	if err != nil {
		json.NewEncoder(w).Encode(StatusResponse{
			Status:  "error",
			Message: "Cancellation token not found.",
		})
		return
	}

	token.Cancel()
	g.logger.Info("Cancellation requested", "session_id", sessionID)
	json.NewEncoder(w).Encode(StatusResponse{
		Status:  "success",
		Message: fmt.Sprintf("Session %s cancelled successfully.", sessionID),
	})
}

// handleListConversations handles POST /conversations requests, returning
// summaries for every stored conversation.
func (g *Gateway) handleListConversations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	summaries, err := g.store.ListConversations(r.Context())
	if err != nil {
		g.logger.Error("failed to list conversations", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(summaries)
}

// handleUserConversations handles POST /conversations/user requests. With a
// session_id it returns that full conversation; without one it returns the
// user's conversation summaries.
func (g *Gateway) handleUserConversations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req UserConversationsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		g.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	userID, err := g.resolver.Resolve(r, req.UserID)
	if err != nil {
		g.sendJSONError(w, http.StatusUnauthorized, "invalid token")
		return
	}

	w.Header().Set("Content-Type", "application/json")

	if req.SessionID != "" {
		conv, err := g.store.GetConversation(r.Context(), userID, req.SessionID)
		if errors.Is(err, store.ErrNotFound) {
			g.sendJSONError(w, http.StatusNotFound, "conversation not found")
			return
		}
		if err != nil {
			g.logger.Error("failed to get conversation", "error", err)
			g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		json.NewEncoder(w).Encode(conv)
		return
	}

	summaries, err := g.store.ListConversationsForUser(r.Context(), userID)
	if err != nil {
		g.logger.Error("failed to list user conversations", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	json.NewEncoder(w).Encode(summaries)
}

// handleDeleteConversation handles POST /conversations/delete requests.
// Outcome is reported in-band with status 200 either way.
func (g *Gateway) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
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

	deleted, err := g.store.DeleteConversation(r.Context(), userID, sessionID)
	w.Header().Set("Content-Type", "application/json")
	if err != nil {
		g.logger.Error("failed to delete conversation", "session_id", sessionID, "error", err)
		json.NewEncoder(w).Encode(StatusResponse{
			Status:  "error",
			Message: fmt.Sprintf("Error deleting conversation: %v", err),
		})
		return
	}
	if !deleted {
		json.NewEncoder(w).Encode(StatusResponse{
			Status:  "error",
			Message: fmt.Sprintf("Conversation %s not found.", sessionID),
		})
		return
	}
	json.NewEncoder(w).Encode(StatusResponse{
		Status:  "success",
		Message: fmt.Sprintf("Conversation %s deleted successfully.", sessionID),
	})
}

// handleTeams handles GET (list) and POST (create) on /teams.
func (g *Gateway) handleTeams(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		teams, err := g.store.ListTeams(r.Context())
		if err != nil {
			g.logger.Error("failed to list teams", "error", err)
			g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(teams)

	case http.MethodPost:
		var team store.Team
		if err := json.NewDecoder(r.Body).Decode(&team); err != nil {
			g.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if team.Name == "" {
			g.sendJSONError(w, http.StatusBadRequest, "name is required")
			return
		}
		if team.ID == "" {
			team.ID = uuid.New().String()
		}
		if len(team.Agents) == 0 {
			team.Agents = conversation.DefaultAgents()
		}
		now := time.Now().UTC()
		team.CreatedAt = now
		team.UpdatedAt = now

		if err := g.store.CreateTeam(r.Context(), &team); err != nil {
			if errors.Is(err, store.ErrDuplicateTeam) {
				g.sendJSONError(w, http.StatusConflict, "team already exists")
				return
			}
			g.logger.Error("failed to create team", "error", err)
			g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(team)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// handleTeamByID handles GET, PUT, and DELETE on /teams/{id}.
func (g *Gateway) handleTeamByID(w http.ResponseWriter, r *http.Request) {
	teamID := strings.TrimPrefix(r.URL.Path, "/teams/")
	if teamID == "" || strings.Contains(teamID, "/") {
		g.sendJSONError(w, http.StatusNotFound, "team not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		team, err := g.store.GetTeam(r.Context(), teamID)
		if errors.Is(err, store.ErrNotFound) {
			g.sendJSONError(w, http.StatusNotFound, "team not found")
			return
		}
		if err != nil {
			g.logger.Error("failed to get team", "team_id", teamID, "error", err)
			g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(team)

	case http.MethodPut:
		var team store.Team
		if err := json.NewDecoder(r.Body).Decode(&team); err != nil {
			g.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		team.ID = teamID
		team.UpdatedAt = time.Now().UTC()

		if err := g.store.UpdateTeam(r.Context(), &team); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				g.sendJSONError(w, http.StatusNotFound, "team not found")
				return
			}
			g.logger.Error("failed to update team", "team_id", teamID, "error", err)
			g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(team)

	case http.MethodDelete:
		if err := g.store.DeleteTeam(r.Context(), teamID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				g.sendJSONError(w, http.StatusNotFound, "team not found")
				return
			}
			g.logger.Error("failed to delete team", "team_id", teamID, "error", err)
			g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// sendJSONError writes a JSON error response.
func (g *Gateway) sendJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// parseStartRequest parses and validates a StartRequest from the given reader.
// Returns an error if the JSON is invalid or content is missing.
func parseStartRequest(r io.Reader) (*StartRequest, error) {
	var req StartRequest
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return nil, errors.New("invalid JSON body")
	}
	if req.Content == "" {
		return nil, errors.New("content is required")
	}
	return &req, nil
}
