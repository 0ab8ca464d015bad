package domain

import "time"

// SessionVersion is stamped into persisted sessions. A persisted
// session carrying a different version is discarded on load.
const SessionVersion = 1

// TimeoutSentinel is recorded as the selected option when a question's
// countdown expires before the user answers.
const TimeoutSentinel = "Timeout"

// Question is one quiz item as seen by the client.
type Question struct {
	ID             string     `json:"questionId"`
	Prompt         string     `json:"question"`
	Options        []string   `json:"options"`
	Answered       bool       `json:"answered"`
	SelectedOption string     `json:"selectedOption,omitempty"`
	DisplayedAt    *time.Time `json:"displayedAt,omitempty"`
	AnsweredAt     *time.Time `json:"answeredAt,omitempty"`
	TimeLeft       int        `json:"timeLeft"`
}

// Session is one user's quiz attempt.
type Session struct {
	Version   int        `json:"version"`
	UserID    string     `json:"userId"`
	Questions []Question `json:"questions"`
	FetchedAt time.Time  `json:"lastFetchedAt"`
}

// FirstUnanswered returns the index of the first unanswered question,
// or false when every question has already been answered.
func (s Session) FirstUnanswered() (int, bool) {
	for i := range s.Questions {
		if !s.Questions[i].Answered {
			return i, true
		}
	}
	return 0, false
}

// AnswerSubmission is the payload sent to the backend when a question
// is answered or times out.
type AnswerSubmission struct {
	QuestionID     string `json:"questionId"`
	SelectedOption string `json:"selectedOption"`
	TimeLeft       int    `json:"timeLeft"`
}

// LeaderboardEntry is one ranked row. Rank is assigned by the backend
// and is never recomputed client-side.
type LeaderboardEntry struct {
	UserID   string `json:"userId"`
	Rank     int    `json:"rank"`
	Username string `json:"username"`
	Score    int    `json:"score"`
}

// Leaderboard is a ranked snapshot plus the caller's own rank.
type Leaderboard struct {
	Entries   []LeaderboardEntry `json:"leaderboard"`
	UserRank  int                `json:"userRank"`
	UpdatedAt time.Time          `json:"updatedAt"`
}

// QuizQuestion is the backend-side form of a question, including the
// correct answer. It is never sent to clients in this form.
type QuizQuestion struct {
	ID      string   `json:"id"`
	Prompt  string   `json:"prompt"`
	Options []string `json:"options"`
	Answer  string   `json:"answer"`
	Points  int      `json:"points"` // defaults to 1 if zero
}

// QuestionSet is a named collection of questions served to players.
type QuestionSet struct {
	ID        string         `json:"id"`
	Questions []QuizQuestion `json:"questions"`
}
