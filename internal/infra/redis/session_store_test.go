package redis

import (
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"quiz-runner/internal/domain"
)

func TestSessionStoreRoundTrip(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewSessionStore(client, time.Minute)

	if _, ok, err := store.Load("u1"); ok || err != nil {
		t.Fatalf("expected no session, ok=%v err=%v", ok, err)
	}

	sess := domain.Session{
		Version: domain.SessionVersion,
		UserID:  "u1",
		Questions: []domain.Question{
			{ID: "q1", Prompt: "What is 2 + 2?", Options: []string{"3", "4"}, TimeLeft: 20},
		},
	}
	if err := store.Save(sess); err != nil {
		t.Fatalf("save: %v", err)
	}
	if !mr.Exists("quiz:session:u1") {
		t.Fatalf("expected redis key to be set")
	}

	loaded, ok, err := store.Load("u1")
	if err != nil || !ok {
		t.Fatalf("load: ok=%v err=%v", ok, err)
	}
	if loaded.Questions[0].ID != "q1" {
		t.Fatalf("unexpected session %+v", loaded)
	}

	if err := store.Clear("u1"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if mr.Exists("quiz:session:u1") {
		t.Fatalf("expected redis key removed")
	}
}

func TestSessionStoreExpires(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewSessionStore(client, time.Minute)

	if err := store.Save(domain.Session{Version: domain.SessionVersion, UserID: "u1"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	mr.FastForward(2 * time.Minute)
	if _, ok, _ := store.Load("u1"); ok {
		t.Fatalf("expected session expired")
	}
}
