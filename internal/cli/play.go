package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"quiz-runner/internal/backend"
	"quiz-runner/internal/config"
	filestore "quiz-runner/internal/infra/file"
	"quiz-runner/internal/infra/memory"
	redisstore "quiz-runner/internal/infra/redis"
	"quiz-runner/internal/session"
)

// NewPlayCmd builds the subcommand that runs the interactive quiz
// client against a backend.
func NewPlayCmd(configPath, backendURL, userID, playerName *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "play",
		Short: "Take the quiz",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlay(cmd.Context(), *configPath, *backendURL, *userID, *playerName)
		},
	}
	cmd.Flags().StringVar(backendURL, "backend", "", "backend base URL (overrides config)")
	cmd.Flags().StringVar(userID, "user", "", "user identifier from the identity provider")
	cmd.Flags().StringVar(playerName, "name", "", "display name on the leaderboard")
	return cmd
}

func runPlay(ctx context.Context, configPath, backendFlag, userID, playerName string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	baseURL := backendFlag
	if baseURL == "" {
		baseURL = cfg.Backend.URL
	}
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}

	store, err := newSessionStore(cfg)
	if err != nil {
		return err
	}

	client := backend.NewClient(baseURL)
	ctrl := session.New(client, store,
		session.WithBudgets(
			config.Seconds(cfg.Quiz.QuestionSeconds, 20),
			config.Seconds(cfg.Quiz.IntermissionSeconds, 10),
		),
	)
	defer ctrl.Close()

	updates, cancel := ctrl.Subscribe()
	defer cancel()

	go readAnswers(ctrl)

	if err := ctrl.Load(ctx, userID); err != nil {
		fmt.Fprintf(os.Stderr, "could not load quiz: %v\n", err)
	}

	render(ctx, ctrl, updates, userID)
	return nil
}

// readAnswers turns stdin lines ("1".."n") into answer selections for
// the question currently on screen.
func readAnswers(ctrl *session.Controller) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		choice, err := strconv.Atoi(strings.TrimSpace(scanner.Text()))
		if err != nil {
			continue
		}
		q, ok := ctrl.Snapshot().CurrentQuestion()
		if !ok || choice < 1 || choice > len(q.Options) {
			continue
		}
		ctrl.Answer(q.Options[choice-1])
	}
}

func render(ctx context.Context, ctrl *session.Controller, updates <-chan session.Snapshot, userID string) {
	var lastPhase session.Phase = -1
	lastIndex := -1
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-updates:
			if !ok {
				return
			}
			if snap.Err != "" {
				fmt.Fprintf(os.Stderr, "\nwarning: %s\n", snap.Err)
				ctrl.ClearError()
			}
			phaseChanged := snap.Phase != lastPhase || snap.CurrentIndex != lastIndex
			lastPhase, lastIndex = snap.Phase, snap.CurrentIndex

			switch snap.Phase {
			case session.PhaseIdle:
				// The subscription's initial snapshot precedes Load.
				if userID == "" {
					fmt.Println("Sign in to take the quiz (pass --user).")
					return
				}
			case session.PhaseLoading:
				if phaseChanged {
					fmt.Println("Loading quiz...")
				}
			case session.PhaseQuestion:
				q, ok := snap.CurrentQuestion()
				if !ok {
					continue
				}
				if phaseChanged {
					fmt.Printf("\nQuestion %d/%d: %s\n", snap.CurrentIndex+1, len(snap.Session.Questions), q.Prompt)
					for i, opt := range q.Options {
						fmt.Printf("  %d) %s\n", i+1, opt)
					}
				}
				if q.Answered {
					fmt.Printf("\rAnswered %q, waiting for everyone (%2ds) ", q.SelectedOption, snap.QuestionTimeLeft)
				} else {
					fmt.Printf("\rTime left: %2ds ", snap.QuestionTimeLeft)
				}
			case session.PhaseLeaderboard:
				if phaseChanged {
					fmt.Println("\n\nLeaderboard")
					printLeaderboard(snap)
				}
				fmt.Printf("\rNext question in %2ds ", snap.LeaderboardTimeLeft)
			case session.PhaseCompleted:
				fmt.Println("\n\nQuiz complete! Final standings:")
				printLeaderboard(snap)
				return
			case session.PhaseError:
				fmt.Fprintln(os.Stderr, "quiz could not be loaded, try again later")
				return
			}
		}
	}
}

func printLeaderboard(snap session.Snapshot) {
	if len(snap.Leaderboard.Entries) == 0 {
		fmt.Println("  no leaderboard data available")
		return
	}
	for _, entry := range snap.Leaderboard.Entries {
		fmt.Printf("  #%d %s (%d)\n", entry.Rank, entry.Username, entry.Score)
	}
	if snap.Leaderboard.UserRank > 0 {
		fmt.Printf("  your position: %d\n", snap.Leaderboard.UserRank)
	}
}

func newSessionStore(cfg config.Config) (session.SessionStore, error) {
	switch cfg.Store.Backend {
	case "", "file":
		dir := cfg.Store.Dir
		if dir == "" {
			cacheDir, err := os.UserCacheDir()
			if err != nil {
				cacheDir = "."
			}
			dir = cacheDir + "/quiz-runner"
		}
		return filestore.NewSessionStore(dir)
	case "memory":
		return memory.NewSessionStore(), nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		ttl := config.TTLDuration(cfg.Redis.TTL, 24*time.Hour)
		return redisstore.NewSessionStore(client, ttl), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}
