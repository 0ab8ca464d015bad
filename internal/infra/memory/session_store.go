package memory

import (
	"sync"

	"quiz-runner/internal/domain"
)

// SessionStore is an in-memory implementation of session.SessionStore,
// used in tests and as the default when no persistence is configured.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]domain.Session
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]domain.Session),
	}
}

func (s *SessionStore) Load(userID string) (domain.Session, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[userID]
	if !ok {
		return domain.Session{}, false, nil
	}
	return copySession(sess), true, nil
}

func (s *SessionStore) Save(sess domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.UserID] = copySession(sess)
	return nil
}

func (s *SessionStore) Clear(userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, userID)
	return nil
}

// copySession detaches the question slice so callers never alias the
// stored state.
func copySession(sess domain.Session) domain.Session {
	out := sess
	out.Questions = make([]domain.Question, len(sess.Questions))
	copy(out.Questions, sess.Questions)
	return out
}
