package file

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"quiz-runner/internal/domain"
)

// SessionStore persists sessions as one JSON file per user under dir,
// the file-system counterpart of the browser's local storage record.
// Writes go through a temp file and rename so a crash mid-write never
// leaves a truncated session behind.
type SessionStore struct {
	dir string
	mu  sync.Mutex
}

func NewSessionStore(dir string) (*SessionStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}
	return &SessionStore{dir: dir}, nil
}

func (s *SessionStore) Load(userID string) (domain.Session, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path(userID))
	if errors.Is(err, fs.ErrNotExist) {
		return domain.Session{}, false, nil
	}
	if err != nil {
		return domain.Session{}, false, fmt.Errorf("read session: %w", err)
	}
	var sess domain.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		// An unreadable file is treated as no session rather than a
		// fatal error; the caller falls back to a fresh fetch.
		return domain.Session{}, false, nil
	}
	return sess, true, nil
}

func (s *SessionStore) Save(sess domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	tmp := s.path(sess.UserID) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	if err := os.Rename(tmp, s.path(sess.UserID)); err != nil {
		return fmt.Errorf("rename session: %w", err)
	}
	return nil
}

func (s *SessionStore) Clear(userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path(userID))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

func (s *SessionStore) path(userID string) string {
	return filepath.Join(s.dir, "quiz-session-"+sanitize(userID)+".json")
}

// sanitize keeps user IDs from escaping the session directory.
func sanitize(userID string) string {
	out := make([]rune, 0, len(userID))
	for _, r := range userID {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}
