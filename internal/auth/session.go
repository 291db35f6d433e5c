// Package auth holds the signed-in user's bearer token.
//
// Tokens come from an external identity provider; this package only keeps
// the current one and persists it to local storage so a restart stays
// signed in.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"chatdesk/internal/storage"
)

// SessionKey is the local storage key of the persisted token
const SessionKey = "chatdesk-session"

// ErrEmptyToken is returned when signing in without a token
var ErrEmptyToken = errors.New("token is required")

// Session is the current authentication state. It implements api.TokenSource.
type Session struct {
	mu    sync.RWMutex
	token string
	store storage.Local
}

// NewSession restores a persisted token from store, if any
func NewSession(store storage.Local) (*Session, error) {
	s := &Session{store: store}
	token, ok, err := store.GetItem(SessionKey)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if ok {
		s.token = token
	}
	return s, nil
}

// Token returns the bearer token, or "" when signed out
func (s *Session) Token(ctx context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token, nil
}

// SignedIn reports whether a token is present
func (s *Session) SignedIn() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token != ""
}

// SignIn replaces the token and persists it
func (s *Session) SignIn(token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrEmptyToken
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.SetItem(SessionKey, token); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	s.token = token
	return nil
}

// SignOut forgets the token
func (s *Session) SignOut() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	if err := s.store.RemoveItem(SessionKey); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}
