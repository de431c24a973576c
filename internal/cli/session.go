package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

var ErrNoSession = errors.New("not logged in")

// Session is what kp remembers between runs. Static is set for tokens
// handed out by the operator (KINGPOT_STATIC_TOKENS) rather than obtained
// from a password login; those have no refresh token or email.
type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	Email        string    `json:"email,omitempty"`
	Identity     string    `json:"identity"`
	Static       bool      `json:"static,omitempty"`
	SavedAt      time.Time `json:"saved_at"`
}

// Who names the player for display.
func (s Session) Who() string {
	switch {
	case s.Email != "":
		return s.Email
	case s.Identity != "":
		return s.Identity
	}
	return "(unknown)"
}

// BaseDir is the kp state directory, $KP_HOME or ~/.kp.
func BaseDir() (string, error) {
	dir := strings.TrimSpace(os.Getenv("KP_HOME"))
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dir = filepath.Join(home, ".kp")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	return dir, nil
}

func sessionPath() (string, error) {
	dir, err := BaseDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "session.json"), nil
}

// SaveSession writes s through a temp file so a crash never leaves a torn
// session behind.
func SaveSession(s Session) error {
	s.AccessToken = strings.TrimSpace(s.AccessToken)
	if s.AccessToken == "" {
		return fmt.Errorf("save session: access token is empty")
	}
	if s.SavedAt.IsZero() {
		s.SavedAt = time.Now().UTC()
	}
	path, err := sessionPath()
	if err != nil {
		return err
	}
	body, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, body, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func LoadSession() (Session, error) {
	path, err := sessionPath()
	if err != nil {
		return Session{}, err
	}
	body, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Session{}, ErrNoSession
	}
	if err != nil {
		return Session{}, err
	}
	var s Session
	if err := json.Unmarshal(body, &s); err != nil {
		return Session{}, fmt.Errorf("read session %s: %w", path, err)
	}
	if strings.TrimSpace(s.AccessToken) == "" {
		return Session{}, ErrNoSession
	}
	return s, nil
}

func ClearSession() error {
	path, err := sessionPath()
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
