package auth

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrAuthenticationRequired is returned when no usable credential can be
// resolved for a protected endpoint.
var ErrAuthenticationRequired = errors.New("authentication required")

const (
	sessionTokenFile    = "session_token"
	persistentTokenFile = "access_token"
)

// TokenStore resolves the bearer credential for API requests.
//
// Resolution order mirrors the product behavior: the in-memory token wins,
// then the short-lived session file, then the long-lived persistent file.
// An expired token is still returned when nothing better exists, leaving the
// backend to reject it; only a fully empty store yields
// ErrAuthenticationRequired.
type TokenStore struct {
	dir    string
	logger *slog.Logger

	mu     sync.RWMutex
	memory string
}

// NewTokenStore creates a TokenStore rooted at dir.
func NewTokenStore(dir string, logger *slog.Logger) *TokenStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &TokenStore{dir: dir, logger: logger}
}

// SetToken stores the token in memory and in both token files, so a later
// process (or another tab, in browser terms) can pick it up.
func (s *TokenStore) SetToken(token string) {
	if token == "" {
		return
	}

	s.mu.Lock()
	s.memory = token
	s.mu.Unlock()

	for _, name := range []string{sessionTokenFile, persistentTokenFile} {
		path := filepath.Join(s.dir, name)
		if err := os.WriteFile(path, []byte(token), 0600); err != nil {
			s.logger.Warn("failed to persist token", "path", path, "err", err)
		}
	}
}

// Token returns the best available credential.
func (s *TokenStore) Token() (string, error) {
	var fallback string

	s.mu.RLock()
	memory := s.memory
	s.mu.RUnlock()

	for _, candidate := range []string{memory, s.readFile(sessionTokenFile), s.readFile(persistentTokenFile)} {
		if candidate == "" {
			continue
		}
		if TokenValid(candidate) {
			return candidate, nil
		}
		if fallback == "" {
			fallback = candidate
		}
	}

	if fallback != "" {
		s.logger.Warn("no unexpired token available, using expired fallback")
		return fallback, nil
	}
	return "", ErrAuthenticationRequired
}

// Clear removes the credential from memory and from both token files.
func (s *TokenStore) Clear() {
	s.mu.Lock()
	s.memory = ""
	s.mu.Unlock()

	for _, name := range []string{sessionTokenFile, persistentTokenFile} {
		if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("failed to remove token file", "file", name, "err", err)
		}
	}
}

func (s *TokenStore) readFile(name string) string {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// TokenValid reports whether the token parses as a JWT that has not expired.
// The signature is not verified; the backend is the authority on that.
func TokenValid(token string) bool {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return false
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return exp.After(time.Now())
}
