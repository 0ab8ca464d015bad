package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"quiz-runner/internal/domain"
)

// Client talks to the quiz backend over HTTP+JSON. Response shapes are
// decoded strictly: a payload missing the expected envelope fails
// closed with domain.ErrMalformedResponse instead of propagating zero
// values into the session.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type ClientOption func(*Client)

// WithHTTPClient replaces the underlying transport.
func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *Client) { c.http = h }
}

type questionsEnvelope struct {
	Data *struct {
		UnansweredQuestions *[]domain.Question `json:"unansweredQuestions"`
	} `json:"data"`
}

type leaderboardEnvelope struct {
	Data *struct {
		Leaderboard *[]domain.LeaderboardEntry `json:"leaderboard"`
		User        *struct {
			Rank int `json:"rank"`
		} `json:"user"`
	} `json:"data"`
}

// FetchQuestions loads the user's unanswered questions.
func (c *Client) FetchQuestions(ctx context.Context, userID string) ([]domain.Question, error) {
	var envelope questionsEnvelope
	if err := c.getJSON(ctx, "/api/question/user/"+url.PathEscape(userID), &envelope); err != nil {
		return nil, err
	}
	if envelope.Data == nil || envelope.Data.UnansweredQuestions == nil {
		return nil, domain.ErrMalformedResponse
	}
	return *envelope.Data.UnansweredQuestions, nil
}

// SubmitAnswer posts one answer; the response body is ignored.
func (c *Client) SubmitAnswer(ctx context.Context, userID string, sub domain.AnswerSubmission) error {
	body, err := json.Marshal(sub)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/submit/"+url.PathEscape(userID), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("submit answer: %w", err)
	}
	defer drain(res)
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return fmt.Errorf("submit answer: status %d", res.StatusCode)
	}
	return nil
}

// FetchLeaderboard loads ranked entries plus the caller's own rank.
func (c *Client) FetchLeaderboard(ctx context.Context, userID string) (domain.Leaderboard, error) {
	var envelope leaderboardEnvelope
	if err := c.getJSON(ctx, "/api/leaderboard/"+url.PathEscape(userID), &envelope); err != nil {
		return domain.Leaderboard{}, err
	}
	if envelope.Data == nil || envelope.Data.Leaderboard == nil {
		return domain.Leaderboard{}, domain.ErrMalformedResponse
	}
	lb := domain.Leaderboard{
		Entries:   *envelope.Data.Leaderboard,
		UpdatedAt: time.Now(),
	}
	if envelope.Data.User != nil {
		lb.UserRank = envelope.Data.User.Rank
	}
	return lb, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("get %s: %w", path, err)
	}
	defer drain(res)
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return fmt.Errorf("get %s: status %d", path, res.StatusCode)
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrMalformedResponse, err)
	}
	return nil
}

func drain(res *http.Response) {
	_, _ = io.Copy(io.Discard, res.Body)
	_ = res.Body.Close()
}
