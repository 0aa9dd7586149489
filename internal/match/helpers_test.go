package match

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hpungsan/jot/internal/db"
	"github.com/hpungsan/jot/internal/note"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	database, err := db.Init(t.TempDir())
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return database
}

func seedTask(t *testing.T, database *sql.DB, id, title string, createdAt time.Time, mutate ...func(*note.Task)) *note.Task {
	t.Helper()
	task := &note.Task{
		ID:             id,
		CreatedAt:      createdAt.Unix(),
		UpdatedAt:      createdAt.Unix(),
		Title:          title,
		CanonicalTitle: note.Normalize(title),
		DueDate:        createdAt.Format(note.DateLayout),
		Status:         note.StatusOpen,
		Category:       note.CategoryPersonal,
		MentionCount:   1,
	}
	for _, m := range mutate {
		m(task)
	}
	if err := db.InsertTask(context.Background(), database, task); err != nil {
		t.Fatalf("InsertTask failed: %v", err)
	}
	return task
}

func seedThought(t *testing.T, database *sql.DB, id, text string, createdAt time.Time) *note.Thought {
	t.Helper()
	th := &note.Thought{
		ID:            id,
		CreatedAt:     createdAt.Unix(),
		UpdatedAt:     createdAt.Unix(),
		Text:          text,
		CanonicalText: note.Normalize(text),
		Category:      note.CategoryBusiness,
		MentionCount:  1,
	}
	if err := db.InsertThought(context.Background(), database, th); err != nil {
		t.Fatalf("InsertThought failed: %v", err)
	}
	return th
}

// stubEmbedder returns fixed vectors per text and counts calls.
type stubEmbedder struct {
	mu      sync.Mutex
	vectors map[string][]float32
	calls   map[string]int
	err     error
}

func newStubEmbedder(vectors map[string][]float32) *stubEmbedder {
	return &stubEmbedder{vectors: vectors, calls: make(map[string]int)}
}

func (s *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[text]++
	if s.err != nil {
		return nil, s.err
	}
	vec, ok := s.vectors[text]
	if !ok {
		return nil, errors.New("no stub vector for " + text)
	}
	return vec, nil
}

func (s *stubEmbedder) Calls(text string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[text]
}

// stubCompleter returns a canned reply and records prompts.
type stubCompleter struct {
	reply      string
	err        error
	calls      int
	lastSystem string
	lastUser   string
}

func (s *stubCompleter) Complete(ctx context.Context, system, user string) (string, error) {
	s.calls++
	s.lastSystem, s.lastUser = system, user
	return s.reply, s.err
}
