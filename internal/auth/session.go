// internal/auth/session.go
package auth

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrInvalidToken wraps every reason a connection credential is rejected.
var ErrInvalidToken = errors.New("invalid auth token")

// Tokens signs and verifies EdDSA JWTs whose subject is a user id.
type Tokens struct {
	private ed25519.PrivateKey
	public  ed25519.PublicKey
	ttl     time.Duration
}

// NewTokens generates a fresh ed25519 key pair. A zero ttl issues tokens without exp.
func NewTokens(ttl time.Duration) (*Tokens, error) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to generate ed25519 key pair: %w", err)
	}
	return &Tokens{private: priv, public: pub, ttl: ttl}, nil
}

// NewTokensFromPath reads a raw ed25519 key pair from disk.
func NewTokensFromPath(privatePath, publicPath string, ttl time.Duration) (*Tokens, error) {
	priv, err := os.ReadFile(privatePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key file: %w", err)
	}
	pub, err := os.ReadFile(publicPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read public key file: %w", err)
	}
	if len(priv) != ed25519.PrivateKeySize || len(pub) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("ed25519 key files have unexpected sizes (%d, %d)", len(priv), len(pub))
	}
	return &Tokens{private: ed25519.PrivateKey(priv), public: ed25519.PublicKey(pub), ttl: ttl}, nil
}

// ParseTTL understands "never", "0" and empty as no expiry, otherwise a Go duration.
func ParseTTL(s string) (time.Duration, error) {
	if s == "" || s == "0" || s == "never" {
		return 0, nil
	}
	return time.ParseDuration(s)
}

// Issue creates a signed token for userID.
func (t *Tokens) Issue(userID uuid.UUID) (string, error) {
	claims := jwt.MapClaims{"sub": userID.String()}
	if t.ttl > 0 {
		claims["exp"] = time.Now().Add(t.ttl).Unix()
	}
	return jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims).SignedString(t.private)
}

// Verify checks the signature and expiry and returns the subject as a user id.
func (t *Tokens) Verify(tokenString string) (uuid.UUID, error) {
	tok, err := jwt.Parse(tokenString, func(tok *jwt.Token) (interface{}, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", tok.Header["alg"])
		}
		return t.public, nil
	})
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok || !tok.Valid {
		return uuid.Nil, ErrInvalidToken
	}
	sub, ok := claims["sub"].(string)
	if !ok {
		return uuid.Nil, fmt.Errorf("%w: missing sub", ErrInvalidToken)
	}
	id, err := uuid.Parse(sub)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: malformed sub: %v", ErrInvalidToken, err)
	}
	return id, nil
}
