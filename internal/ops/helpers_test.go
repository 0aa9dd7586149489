package ops

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/hpungsan/jot/internal/db"
	"github.com/hpungsan/jot/internal/note"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	database, err := db.Init(t.TempDir())
	if err != nil {
		t.Fatalf("db.Init failed: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return database
}

func stringPtr(s string) *string {
	return &s
}

func seedCapture(t *testing.T, database *sql.DB, id, transcript string) *note.Capture {
	t.Helper()
	c := &note.Capture{
		ID:         id,
		CreatedAt:  time.Now().Unix(),
		Transcript: stringPtr(transcript),
		Stage:      note.StageTranscribed,
	}
	if err := db.InsertCapture(context.Background(), database, c); err != nil {
		t.Fatalf("InsertCapture failed: %v", err)
	}
	return c
}

func seedTask(t *testing.T, database *sql.DB, id, title, due string, status note.Status, category note.Category) *note.Task {
	t.Helper()
	now := time.Now().Unix()
	task := &note.Task{
		ID:             id,
		CreatedAt:      now,
		UpdatedAt:      now,
		Title:          title,
		CanonicalTitle: note.Normalize(title),
		DueDate:        due,
		Status:         status,
		Category:       category,
		MentionCount:   1,
	}
	if err := db.InsertTask(context.Background(), database, task); err != nil {
		t.Fatalf("InsertTask failed: %v", err)
	}
	return task
}

func seedThought(t *testing.T, database *sql.DB, id, text string, category note.Category) *note.Thought {
	t.Helper()
	now := time.Now().Unix()
	th := &note.Thought{
		ID:            id,
		CreatedAt:     now,
		UpdatedAt:     now,
		Text:          text,
		CanonicalText: note.Normalize(text),
		Category:      category,
		MentionCount:  1,
	}
	if err := db.InsertThought(context.Background(), database, th); err != nil {
		t.Fatalf("InsertThought failed: %v", err)
	}
	return th
}

type countingInvalidator struct {
	calls int
}

func (c *countingInvalidator) Invalidate() { c.calls++ }

type recordingRemover struct {
	removed []string
}

func (r *recordingRemover) Remove(path string) error {
	r.removed = append(r.removed, path)
	return nil
}
