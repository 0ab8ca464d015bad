package redis

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"quiz-runner/internal/domain"
	"quiz-runner/internal/infra/memory"
)

func TestQuestionRepositoryCachesInRedis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	source := &countingSource{
		QuestionSource: memory.NewStaticQuestionSource(map[string]domain.QuestionSet{
			"set-1": sampleSet(),
		}),
	}
	repo := NewQuestionRepository(client, source, time.Minute)

	set, err := repo.GetQuestionSet(context.Background(), "set-1")
	if err != nil {
		t.Fatalf("get set: %v", err)
	}
	if len(set.Questions) != 1 || set.Questions[0].Answer != "4" {
		t.Fatalf("unexpected set %+v", set)
	}
	if source.calls != 1 {
		t.Fatalf("expected source called once, got %d", source.calls)
	}
	if !mr.Exists("quiz:questions:set-1") {
		t.Fatalf("expected cache key set")
	}

	// Second call should hit the Redis cache.
	if _, err := repo.GetQuestionSet(context.Background(), "set-1"); err != nil {
		t.Fatalf("get set 2: %v", err)
	}
	if source.calls != 1 {
		t.Fatalf("expected cache hit, source calls=%d", source.calls)
	}
}

func TestQuestionRepositoryFallsThroughOnMiss(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	repo := NewQuestionRepository(client, memory.NewStaticQuestionSource(nil), time.Minute)

	if _, err := repo.GetQuestionSet(context.Background(), "missing"); err != domain.ErrQuestionSetNotFound {
		t.Fatalf("expected not-found, got %v", err)
	}
}

type countingSource struct {
	memory.QuestionSource
	calls int
}

func (s *countingSource) LoadQuestionSet(ctx context.Context, setID string) (domain.QuestionSet, error) {
	s.calls++
	return s.QuestionSource.LoadQuestionSet(ctx, setID)
}

func sampleSet() domain.QuestionSet {
	return domain.QuestionSet{
		ID: "set-1",
		Questions: []domain.QuizQuestion{
			{ID: "q1", Prompt: "What is 2 + 2?", Options: []string{"3", "4"}, Answer: "4", Points: 1},
		},
	}
}
