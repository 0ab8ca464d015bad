package devbackend

import (
	"context"
	"sort"
	"sync"
	"time"

	"quiz-runner/internal/domain"
)

// QuestionRepository loads quiz content (from cache/backing store).
type QuestionRepository interface {
	GetQuestionSet(ctx context.Context, setID string) (domain.QuestionSet, error)
}

// Service implements the backend contract the client consumes: serve
// unanswered questions per user, record submissions, and rank the
// leaderboard. It exists so the client can be run and tested without
// the production backend.
type Service struct {
	questions QuestionRepository
	setID     string
	now       func() time.Time

	mu          sync.RWMutex
	players     map[string]*player
	subscribers map[chan domain.Leaderboard]struct{}
}

type player struct {
	userID      string
	username    string
	score       int
	answers     map[string]domain.AnswerSubmission
	lastUpdated time.Time
}

func NewService(questions QuestionRepository, setID string) *Service {
	return NewServiceWithClock(questions, setID, time.Now)
}

// NewServiceWithClock allows deterministic timestamps in tests.
func NewServiceWithClock(questions QuestionRepository, setID string, now func() time.Time) *Service {
	return &Service{
		questions:   questions,
		setID:       setID,
		now:         now,
		players:     make(map[string]*player),
		subscribers: make(map[chan domain.Leaderboard]struct{}),
	}
}

// Questions returns the user's unanswered questions in client shape,
// correct answers stripped. First contact registers the player; name
// is optional and defaults to the user ID.
func (s *Service) Questions(ctx context.Context, userID, name string) ([]domain.Question, error) {
	set, err := s.questions.GetQuestionSet(ctx, s.setID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	p := s.registerLocked(userID, name)
	answered := make(map[string]bool, len(p.answers))
	for id := range p.answers {
		answered[id] = true
	}
	s.mu.Unlock()

	out := make([]domain.Question, 0, len(set.Questions))
	for _, q := range set.Questions {
		if answered[q.ID] {
			continue
		}
		out = append(out, domain.Question{
			ID:      q.ID,
			Prompt:  q.Prompt,
			Options: append([]string(nil), q.Options...),
		})
	}
	return out, nil
}

// Submit records one answer. A duplicate questionId for the same user
// is ignored, matching the client's idempotent answering.
func (s *Service) Submit(ctx context.Context, userID string, sub domain.AnswerSubmission) error {
	set, err := s.questions.GetQuestionSet(ctx, s.setID)
	if err != nil {
		return err
	}
	var question *domain.QuizQuestion
	for i := range set.Questions {
		if set.Questions[i].ID == sub.QuestionID {
			question = &set.Questions[i]
			break
		}
	}
	if question == nil {
		return domain.ErrQuestionNotFound
	}

	s.mu.Lock()
	p := s.registerLocked(userID, "")
	if _, dup := p.answers[sub.QuestionID]; dup {
		s.mu.Unlock()
		return nil
	}
	p.answers[sub.QuestionID] = sub
	p.score += score(*question, sub)
	p.lastUpdated = s.now()
	lb := s.leaderboardLocked("")
	s.broadcastLocked(lb)
	s.mu.Unlock()
	return nil
}

// Leaderboard returns the ranked board plus userID's own rank.
func (s *Service) Leaderboard(_ context.Context, userID string) domain.Leaderboard {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.leaderboardLocked(userID)
}

// Subscribe returns a channel receiving leaderboard updates whenever a
// score changes. The caller must invoke cancel to avoid leaks.
func (s *Service) Subscribe() (<-chan domain.Leaderboard, func()) {
	ch := make(chan domain.Leaderboard, 8)

	s.mu.Lock()
	s.subscribers[ch] = struct{}{}
	initial := s.leaderboardLocked("")
	s.mu.Unlock()

	ch <- initial

	cancel := func() {
		s.mu.Lock()
		if _, ok := s.subscribers[ch]; ok {
			delete(s.subscribers, ch)
			close(ch)
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

func (s *Service) registerLocked(userID, name string) *player {
	p, ok := s.players[userID]
	if !ok {
		p = &player{
			userID:      userID,
			username:    userID,
			answers:     make(map[string]domain.AnswerSubmission),
			lastUpdated: s.now(),
		}
		s.players[userID] = p
	}
	if name != "" {
		p.username = name
	}
	return p
}

// leaderboardLocked ranks players by score descending; ties go to the
// earlier submitter, then to the lexically smaller name.
func (s *Service) leaderboardLocked(userID string) domain.Leaderboard {
	entries := make([]domain.LeaderboardEntry, 0, len(s.players))
	for _, p := range s.players {
		entries = append(entries, domain.LeaderboardEntry{
			UserID:   p.userID,
			Username: p.username,
			Score:    p.score,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		pi := s.players[entries[i].UserID]
		pj := s.players[entries[j].UserID]
		if !pi.lastUpdated.Equal(pj.lastUpdated) {
			return pi.lastUpdated.Before(pj.lastUpdated)
		}
		return entries[i].Username < entries[j].Username
	})

	lb := domain.Leaderboard{Entries: entries, UpdatedAt: s.now()}
	for i := range entries {
		entries[i].Rank = i + 1
		if entries[i].UserID == userID {
			lb.UserRank = entries[i].Rank
		}
	}
	return lb
}

func (s *Service) broadcastLocked(lb domain.Leaderboard) {
	for ch := range s.subscribers {
		select {
		case ch <- lb:
		default:
			// Drop the stale snapshot so a slow consumer never blocks
			// score recording.
			select {
			case <-ch:
			default:
			}
			ch <- lb
		}
	}
}

// score awards points x remaining seconds for a correct answer; wrong
// answers and the timeout sentinel award nothing.
func score(q domain.QuizQuestion, sub domain.AnswerSubmission) int {
	if sub.SelectedOption == domain.TimeoutSentinel || sub.SelectedOption != q.Answer {
		return 0
	}
	points := q.Points
	if points == 0 {
		points = 1
	}
	timeLeft := sub.TimeLeft
	if timeLeft < 1 {
		timeLeft = 1
	}
	return points * timeLeft
}
