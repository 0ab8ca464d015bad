package session

import (
	"context"
	"log"
	"sync"
	"time"

	"quiz-runner/internal/domain"
)

// Backend is the remote quiz API the controller talks to.
type Backend interface {
	FetchQuestions(ctx context.Context, userID string) ([]domain.Question, error)
	SubmitAnswer(ctx context.Context, userID string, sub domain.AnswerSubmission) error
	FetchLeaderboard(ctx context.Context, userID string) (domain.Leaderboard, error)
}

// SessionStore persists the in-flight session so a restarted client
// resumes where it left off.
type SessionStore interface {
	Load(userID string) (domain.Session, bool, error)
	Save(sess domain.Session) error
	Clear(userID string) error
}

// Ticker abstracts time.Ticker so tests can fire ticks by hand.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type realTicker struct{ t *time.Ticker }

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

// Phase is the controller's position in the quiz state machine.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseLoading
	PhaseQuestion
	PhaseLeaderboard
	PhaseCompleted
	PhaseError
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseLoading:
		return "loading"
	case PhaseQuestion:
		return "question"
	case PhaseLeaderboard:
		return "leaderboard"
	case PhaseCompleted:
		return "completed"
	case PhaseError:
		return "error"
	}
	return "unknown"
}

// Snapshot is the read model handed to the rendering layer.
type Snapshot struct {
	Phase               Phase
	Session             domain.Session
	CurrentIndex        int
	QuestionTimeLeft    int
	LeaderboardTimeLeft int
	Leaderboard         domain.Leaderboard
	Err                 string
}

// CurrentQuestion returns the active question, or false outside the
// Question phase.
func (s Snapshot) CurrentQuestion() (domain.Question, bool) {
	if s.Phase != PhaseQuestion || s.CurrentIndex >= len(s.Session.Questions) {
		return domain.Question{}, false
	}
	return s.Session.Questions[s.CurrentIndex], true
}

// Option configures a Controller.
type Option func(*Controller)

// WithClock injects a deterministic time source.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// WithTickerFactory injects the ticker constructor used for both
// countdowns.
func WithTickerFactory(f func(time.Duration) Ticker) Option {
	return func(c *Controller) { c.newTicker = f }
}

// WithBudgets overrides the question and intermission countdowns,
// in seconds.
func WithBudgets(question, intermission int) Option {
	return func(c *Controller) {
		c.questionBudget = question
		c.intermissionBudget = intermission
	}
}

// WithSubmitRetry configures the bounded retry applied to failed
// answer submissions.
func WithSubmitRetry(retries int, backoff time.Duration) Option {
	return func(c *Controller) {
		c.submitRetries = retries
		c.submitBackoff = backoff
	}
}

// Controller owns the per-question countdown, answer submission, the
// leaderboard intermission, and question advancement. Timers are the
// sole authority over phase transitions; network outcomes never block
// or reorder them.
type Controller struct {
	backend   Backend
	store     SessionStore
	now       func() time.Time
	newTicker func(time.Duration) Ticker

	questionBudget     int
	intermissionBudget int
	submitRetries      int
	submitBackoff      time.Duration

	mu          sync.Mutex
	phase       Phase
	sess        *domain.Session
	index       int
	timeLeft    int
	lbTimeLeft  int
	leaderboard domain.Leaderboard
	lastErr     string
	closed      bool

	// At most one countdown runs at a time. gen invalidates ticks and
	// async completions from a cancelled timer epoch.
	timer     Ticker
	timerDone chan struct{}
	gen       int

	subscribers map[chan Snapshot]struct{}
}

// New builds an idle controller. Load must be called once the user
// identity is known.
func New(backend Backend, store SessionStore, opts ...Option) *Controller {
	c := &Controller{
		backend:            backend,
		store:              store,
		now:                time.Now,
		newTicker:          func(d time.Duration) Ticker { return realTicker{time.NewTicker(d)} },
		questionBudget:     20,
		intermissionBudget: 10,
		submitRetries:      1,
		submitBackoff:      2 * time.Second,
		phase:              PhaseIdle,
		subscribers:        make(map[chan Snapshot]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Load resumes a persisted session for userID or fetches unanswered
// questions from the backend. An empty userID leaves the controller
// idle with no network activity.
func (c *Controller) Load(ctx context.Context, userID string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	if userID == "" {
		c.phase = PhaseIdle
		c.broadcastLocked()
		c.mu.Unlock()
		return nil
	}
	c.phase = PhaseLoading
	c.lastErr = ""
	c.broadcastLocked()
	c.mu.Unlock()

	if sess, ok, err := c.store.Load(userID); err == nil && ok && sess.Version == domain.SessionVersion && sess.UserID == userID {
		if idx, open := sess.FirstUnanswered(); open {
			c.mu.Lock()
			defer c.mu.Unlock()
			if c.closed {
				return nil
			}
			c.sess = &sess
			c.index = idx
			c.enterQuestionLocked()
			return nil
		}
	}

	questions, err := c.backend.FetchQuestions(ctx, userID)
	if err != nil {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.closed {
			return nil
		}
		c.phase = PhaseError
		c.lastErr = "failed to fetch questions"
		c.broadcastLocked()
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}

	sess := domain.Session{
		Version:   domain.SessionVersion,
		UserID:    userID,
		Questions: normalizeQuestions(questions, c.questionBudget),
		FetchedAt: c.now(),
	}
	idx, open := sess.FirstUnanswered()
	if len(sess.Questions) == 0 || !open {
		c.completeLocked(userID)
		return nil
	}

	c.sess = &sess
	c.index = idx
	c.persistLocked()
	c.enterQuestionLocked()
	return nil
}

// Answer records the user's selection for the current question. It is
// a no-op when no question is active or the question was already
// answered, so double-clicks dispatch a single submission. Answering
// never advances the phase; the countdown does.
func (c *Controller) Answer(option string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.sess == nil || c.phase != PhaseQuestion || c.index >= len(c.sess.Questions) {
		return
	}
	q := &c.sess.Questions[c.index]
	if q.Answered {
		return
	}
	now := c.now()
	q.Answered = true
	q.SelectedOption = option
	q.AnsweredAt = &now
	q.TimeLeft = c.timeLeft
	c.persistLocked()
	c.submitAsync(c.sess.UserID, domain.AnswerSubmission{
		QuestionID:     q.ID,
		SelectedOption: q.SelectedOption,
		TimeLeft:       q.TimeLeft,
	})
	c.broadcastLocked()
}

// Subscribe returns a channel of state snapshots, primed with the
// current one. The cancel function must be called to avoid leaks.
func (c *Controller) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 8)

	c.mu.Lock()
	c.subscribers[ch] = struct{}{}
	initial := c.snapshotLocked()
	c.mu.Unlock()

	ch <- initial

	cancel := func() {
		c.mu.Lock()
		if _, ok := c.subscribers[ch]; ok {
			delete(c.subscribers, ch)
			close(ch)
		}
		c.mu.Unlock()
	}
	return ch, cancel
}

// Snapshot returns the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// ClearError drops the last recoverable error message after the
// rendering layer has shown it.
func (c *Controller) ClearError() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastErr = ""
}

// Close cancels any running countdown and detaches subscribers. No
// tick or async completion mutates state afterwards.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.stopTimerLocked()
	for ch := range c.subscribers {
		delete(c.subscribers, ch)
		close(ch)
	}
}

func (c *Controller) enterQuestionLocked() {
	q := &c.sess.Questions[c.index]
	if q.DisplayedAt == nil {
		now := c.now()
		q.DisplayedAt = &now
		c.persistLocked()
	}
	c.timeLeft = c.remainingLocked(q)
	c.phase = PhaseQuestion
	c.startTimerLocked(c.questionTick)
	c.broadcastLocked()
}

// remainingLocked derives the countdown from wall-clock elapsed time,
// not tick count, so a suspended or throttled process still expires on
// schedule.
func (c *Controller) remainingLocked(q *domain.Question) int {
	elapsed := int(c.now().Sub(*q.DisplayedAt) / time.Second)
	if remaining := c.questionBudget - elapsed; remaining > 0 {
		return remaining
	}
	return 0
}

// questionTick runs once per second during the Question phase. It
// returns false when this timer epoch is over.
func (c *Controller) questionTick(gen int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || gen != c.gen || c.sess == nil || c.index >= len(c.sess.Questions) {
		return false
	}
	q := &c.sess.Questions[c.index]
	c.timeLeft = c.remainingLocked(q)
	if c.timeLeft > 0 {
		c.broadcastLocked()
		return true
	}

	c.stopTimerLocked()
	if !q.Answered {
		now := c.now()
		q.Answered = true
		q.SelectedOption = domain.TimeoutSentinel
		q.AnsweredAt = &now
		q.TimeLeft = 0
		c.persistLocked()
		c.submitAsync(c.sess.UserID, domain.AnswerSubmission{
			QuestionID:     q.ID,
			SelectedOption: domain.TimeoutSentinel,
			TimeLeft:       0,
		})
	}
	c.fetchLeaderboardAsync(c.sess.UserID)
	c.lbTimeLeft = c.intermissionBudget
	c.phase = PhaseLeaderboard
	c.startTimerLocked(c.leaderboardTick)
	c.broadcastLocked()
	return false
}

// leaderboardTick counts the intermission down and advances to the
// next question, or to Completed after the last one.
func (c *Controller) leaderboardTick(gen int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || gen != c.gen || c.sess == nil {
		return false
	}
	c.lbTimeLeft--
	if c.lbTimeLeft > 0 {
		c.broadcastLocked()
		return true
	}
	c.lbTimeLeft = 0

	c.stopTimerLocked()
	if c.index+1 >= len(c.sess.Questions) {
		c.completeLocked(c.sess.UserID)
		return false
	}
	c.index++
	c.enterQuestionLocked()
	return false
}

func (c *Controller) completeLocked(userID string) {
	c.stopTimerLocked()
	c.phase = PhaseCompleted
	if err := c.store.Clear(userID); err != nil {
		log.Printf("clearing persisted session: %v", err)
	}
	c.broadcastLocked()
}

// startTimerLocked replaces the active countdown. Bumping gen first
// guarantees a tick from the outgoing timer can never fire a second
// transition.
func (c *Controller) startTimerLocked(tick func(gen int) bool) {
	c.stopTimerLocked()
	c.gen++
	gen := c.gen
	t := c.newTicker(time.Second)
	done := make(chan struct{})
	c.timer = t
	c.timerDone = done
	go func() {
		for {
			select {
			case <-done:
				return
			case <-t.C():
				if !tick(gen) {
					return
				}
			}
		}
	}()
}

func (c *Controller) stopTimerLocked() {
	c.gen++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	if c.timerDone != nil {
		close(c.timerDone)
		c.timerDone = nil
	}
}

// submitAsync dispatches the answer without blocking the state
// machine. Failures are retried a bounded number of times, then
// surfaced as a recoverable error; the local answered mark is kept
// (optimistic, not reconciled).
func (c *Controller) submitAsync(userID string, sub domain.AnswerSubmission) {
	go func() {
		var err error
		for attempt := 0; attempt <= c.submitRetries; attempt++ {
			if attempt > 0 {
				time.Sleep(c.submitBackoff)
			}
			if err = c.backend.SubmitAnswer(context.Background(), userID, sub); err == nil {
				return
			}
		}
		log.Printf("submitting answer for question %s: %v", sub.QuestionID, err)
		c.reportError("failed to submit answer")
	}()
}

// fetchLeaderboardAsync refreshes the leaderboard. On failure the
// previous snapshot is kept; the intermission proceeds regardless.
func (c *Controller) fetchLeaderboardAsync(userID string) {
	go func() {
		lb, err := c.backend.FetchLeaderboard(context.Background(), userID)
		if err != nil {
			log.Printf("fetching leaderboard: %v", err)
			c.reportError("failed to fetch leaderboard")
			return
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.closed {
			return
		}
		c.leaderboard = lb
		c.broadcastLocked()
	}()
}

func (c *Controller) reportError(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.lastErr = msg
	c.broadcastLocked()
}

func (c *Controller) persistLocked() {
	if err := c.store.Save(*c.sess); err != nil {
		log.Printf("persisting session: %v", err)
		c.lastErr = "failed to persist session"
	}
}

func (c *Controller) snapshotLocked() Snapshot {
	snap := Snapshot{
		Phase:               c.phase,
		CurrentIndex:        c.index,
		QuestionTimeLeft:    c.timeLeft,
		LeaderboardTimeLeft: c.lbTimeLeft,
		Leaderboard:         c.leaderboard,
		Err:                 c.lastErr,
	}
	if c.sess != nil {
		snap.Session = *c.sess
		snap.Session.Questions = make([]domain.Question, len(c.sess.Questions))
		copy(snap.Session.Questions, c.sess.Questions)
	}
	return snap
}

func (c *Controller) broadcastLocked() {
	snap := c.snapshotLocked()
	for ch := range c.subscribers {
		select {
		case ch <- snap:
		default:
			// Drop the stale snapshot so a slow consumer never blocks
			// a timer tick.
			select {
			case <-ch:
			default:
			}
			ch <- snap
		}
	}
}

// normalizeQuestions applies the natural defaults the backend may omit.
func normalizeQuestions(questions []domain.Question, budget int) []domain.Question {
	out := make([]domain.Question, len(questions))
	copy(out, questions)
	for i := range out {
		if out[i].TimeLeft == 0 && !out[i].Answered {
			out[i].TimeLeft = budget
		}
	}
	return out
}
