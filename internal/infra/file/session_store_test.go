package file

import (
	"os"
	"path/filepath"
	"testing"

	"quiz-runner/internal/domain"
)

func TestFileSessionStoreRoundTrip(t *testing.T) {
	store, err := NewSessionStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

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

	loaded, ok, err := store.Load("u1")
	if err != nil || !ok {
		t.Fatalf("load: ok=%v err=%v", ok, err)
	}
	if loaded.UserID != "u1" || loaded.Questions[0].ID != "q1" || loaded.Version != domain.SessionVersion {
		t.Fatalf("unexpected session %+v", loaded)
	}

	if err := store.Clear("u1"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, ok, _ := store.Load("u1"); ok {
		t.Fatalf("expected session cleared")
	}
	if err := store.Clear("u1"); err != nil {
		t.Fatalf("clear twice: %v", err)
	}
}

func TestFileSessionStoreIgnoresCorruptFile(t *testing.T) {
	dir := t.TempDir()
	store, err := NewSessionStore(dir)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "quiz-session-u1.json"), []byte("{not json"), 0o644); err != nil {
		t.Fatalf("seed corrupt file: %v", err)
	}

	if _, ok, err := store.Load("u1"); ok || err != nil {
		t.Fatalf("expected corrupt file treated as missing, ok=%v err=%v", ok, err)
	}
}

func TestFileSessionStoreSanitizesUserID(t *testing.T) {
	dir := t.TempDir()
	store, err := NewSessionStore(dir)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if err := store.Save(domain.Session{Version: domain.SessionVersion, UserID: "../evil"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected one file inside dir, got %d", len(entries))
	}
}
