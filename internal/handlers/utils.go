package handlers

import (
	"net/http"
	"strings"
)

const authCookieName = "auth_token"

// extractCookieToken extracts a named cookie value from "Cookie" header, or returns empty if not found.
func extractCookieToken(cookieHeader, cookieName string) string {
	parts := strings.Split(cookieHeader, cookieName+"=")
	if len(parts) < 2 {
		return ""
	}
	token := parts[1]
	if idx := strings.Index(token, ";"); idx != -1 {
		token = token[:idx]
	}
	return token
}

// requestToken reads the credential from the auth cookie, falling back to a
// bearer Authorization header.
func requestToken(r *http.Request) string {
	if tok := extractCookieToken(r.Header.Get("Cookie"), authCookieName); tok != "" {
		return tok
	}
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}
