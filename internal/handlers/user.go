package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jason-s-yu/coderoom/internal/models"
)

const maxNicknameLength = 32

// UserRegistry stores profiles created by the guest endpoint.
type UserRegistry interface {
	UpsertUser(ctx context.Context, u models.User) error
}

type guestRequest struct {
	Nickname string `json:"nickname"`
	Level    int    `json:"level"`
}

type guestResponse struct {
	ID    uuid.UUID `json:"id"`
	Token string    `json:"token"`
}

// GuestHandler serves POST /user/guest: it creates an ephemeral user, sets the
// auth cookie and returns the token for clients that prefer a bearer header.
func (s *RoomServer) GuestHandler(users UserRegistry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req guestRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			http.Error(w, "bad guest request payload", http.StatusBadRequest)
			return
		}
		req.Nickname = strings.TrimSpace(req.Nickname)
		if utf8.RuneCountInString(req.Nickname) > maxNicknameLength || req.Level < 0 {
			http.Error(w, "invalid nickname or level", http.StatusBadRequest)
			return
		}

		u := models.User{ID: uuid.New(), Nickname: req.Nickname, Level: req.Level}
		if u.Nickname == "" {
			u.Nickname = "Guest"
		}
		if err := users.UpsertUser(r.Context(), u); err != nil {
			s.logger.Errorf("failed to create guest user: %v", err)
			http.Error(w, "failed to create user", http.StatusInternalServerError)
			return
		}
		token, err := s.tokens.Issue(u.ID)
		if err != nil {
			s.logger.Errorf("failed to issue token: %v", err)
			http.Error(w, "failed to issue token", http.StatusInternalServerError)
			return
		}

		http.SetCookie(w, &http.Cookie{
			Name:     authCookieName,
			Value:    token,
			HttpOnly: true,
			Path:     "/",
		})
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(guestResponse{ID: u.ID, Token: token})
	}
}
