// ABOUTME: HTML transcript view for stored conversations
// ABOUTME: Renders message content as markdown via goldmark

package gateway

import (
	"bytes"
	"errors"
	"html/template"
	"net/http"

	"github.com/yuin/goldmark"

	"github.com/2389/weaver-gateway/internal/conversation"
	"github.com/2389/weaver-gateway/internal/store"
)

var markdown = goldmark.New()

var transcriptTemplate = template.Must(template.New("transcript").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Session {{.SessionID}}</title>
<style>
body { font-family: sans-serif; max-width: 56rem; margin: 2rem auto; padding: 0 1rem; }
.message { border: 1px solid #ddd; border-radius: 8px; padding: 0.75rem 1rem; margin-bottom: 1rem; }
.meta { color: #666; font-size: 0.85rem; margin-bottom: 0.5rem; }
.message img { max-width: 100%; }
</style>
</head>
<body>
<h1>Session {{.SessionID}}</h1>
{{range .Messages}}
<div class="message">
  <div class="meta">{{.Icon}} <strong>{{.Source}}</strong> · {{.Type}} · {{.Time}}</div>
  <div class="content">{{.Content}}</div>
  {{if .Image}}<img src="{{.Image}}" alt="attachment">{{end}}
</div>
{{end}}
</body>
</html>
`))

type transcriptMessage struct {
	Icon    string
	Source  string
	Type    string
	Time    string
	Content template.HTML
	Image   string
}

type transcriptPage struct {
	SessionID string
	Messages  []transcriptMessage
}

// handleConversationView handles GET /conversations/view requests, returning
// the stored transcript as an HTML page.
func (g *Gateway) handleConversationView(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
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

	conv, err := g.store.GetConversation(r.Context(), userID, sessionID)
	if errors.Is(err, store.ErrNotFound) {
		g.sendJSONError(w, http.StatusNotFound, "conversation not found")
		return
	}
	if err != nil {
		g.logger.Error("failed to load conversation", "session_id", sessionID, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	page := transcriptPage{SessionID: sessionID}
	for _, msg := range conv.Messages {
		var rendered bytes.Buffer
		if err := markdown.Convert([]byte(msg.Content), &rendered); err != nil {
			rendered.Reset()
			rendered.WriteString(template.HTMLEscapeString(msg.Content))
		}

		tm := transcriptMessage{
			Icon:    conversation.AgentIcon(msg.Source),
			Source:  msg.Source,
			Type:    msg.Type,
			Time:    msg.Time,
			Content: template.HTML(rendered.String()),
		}
		if msg.ContentImage != nil {
			tm.Image = *msg.ContentImage
		}
		page.Messages = append(page.Messages, tm)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := transcriptTemplate.Execute(w, page); err != nil {
		g.logger.Error("failed to render transcript", "session_id", sessionID, "error", err)
	}
}
