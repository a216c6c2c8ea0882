package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/lexcodex/thinkloop/framework"
)

// Turn is one answered prompt in a named session.
type Turn struct {
	Mode    string           `json:"mode"`
	Prompt  string           `json:"prompt"`
	Content string           `json:"content"`
	Usage   *framework.Usage `json:"usage,omitempty"`
	At      time.Time        `json:"at"`
}

// SessionStore persists the turns of named sessions.
type SessionStore interface {
	Append(ctx context.Context, sessionID string, turns ...Turn) error
	History(ctx context.Context, sessionID string) ([]Turn, error)
	Clear(ctx context.Context, sessionID string) error
}

// FileSessionStore keeps one JSON file per session.
type FileSessionStore struct {
	root string
	mu   sync.RWMutex
}

// NewFileSessionStore builds a store in root, creating it if needed.
func NewFileSessionStore(root string) (*FileSessionStore, error) {
	if root == "" {
		return nil, errors.New("session store root required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &FileSessionStore{root: root}, nil
}

func (s *FileSessionStore) pathFor(id string) string {
	return filepath.Join(s.root, filepath.Base(id)+".session.json")
}

// Append adds turns to a session.
func (s *FileSessionStore) Append(ctx context.Context, sessionID string, turns ...Turn) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if sessionID == "" {
		return errors.New("session id required")
	}
	if len(turns) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, err := s.read(sessionID)
	if err != nil {
		return err
	}
	existing = append(existing, turns...)
	data, err := json.MarshalIndent(existing, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.pathFor(sessionID), data, 0o644)
}

// History returns the turns of a session, oldest first. Unknown sessions
// have no turns.
func (s *FileSessionStore) History(ctx context.Context, sessionID string) ([]Turn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read(sessionID)
}

// Clear forgets a session.
func (s *FileSessionStore) Clear(ctx context.Context, sessionID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	err := os.Remove(s.pathFor(sessionID))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func (s *FileSessionStore) read(sessionID string) ([]Turn, error) {
	data, err := os.ReadFile(s.pathFor(sessionID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var turns []Turn
	if err := json.Unmarshal(data, &turns); err != nil {
		return nil, err
	}
	return turns, nil
}
