// internal/handlers/ws_codes.go
package handlers

// Custom WebSocket close codes used by the room gateway.
const (
	BadSubprotocolError   = 3000 // Client connected with an unsupported subprotocol.
	InvalidAuthTokenError = 3001 // Provided auth token was missing, invalid or expired.
	InvalidUserIDError    = 3002 // User ID derived from token was malformed or invalid.
	SessionReplacedError  = 3003 // The user opened a newer connection.
)
