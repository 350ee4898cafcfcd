// ABOUTME: Request identity resolution for HTTP handlers
// ABOUTME: Prefers a verified bearer token, falls back to explicit user IDs

package auth

import (
	"net/http"
	"strings"
)

// AnonymousUser is the identity assigned when no other identity is available.
const AnonymousUser = "anonymous"

// Resolver determines the acting user for a request. When a verifier is
// configured, a valid bearer token always wins over request parameters so a
// client cannot read another user's conversations by spoofing user_id.
type Resolver struct {
	verifier TokenVerifier
}

// NewResolver creates a resolver. verifier may be nil, in which case identity
// comes from the request's explicit user ID alone.
func NewResolver(verifier TokenVerifier) *Resolver {
	return &Resolver{verifier: verifier}
}

// Resolve returns the acting user ID for a request. explicitID is the
// user_id taken from the query string or request body. Returns an error only
// when a bearer token is present but fails verification.
func (r *Resolver) Resolve(req *http.Request, explicitID string) (string, error) {
	if r.verifier != nil {
		if token := bearerToken(req.Header.Get("Authorization")); token != "" {
			userID, err := r.verifier.Verify(token)
			if err != nil {
				return "", err
			}
			return userID, nil
		}
	}

	if explicitID != "" {
		return explicitID, nil
	}
	return AnonymousUser, nil
}

// bearerToken extracts the token from an Authorization header, or "" when
// the header is absent or not a bearer scheme.
func bearerToken(authHeader string) string {
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(authHeader, "Bearer ")
}
