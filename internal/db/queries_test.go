package db

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/hpungsan/jot/internal/errors"
	"github.com/hpungsan/jot/internal/note"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := Init(t.TempDir())
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// newTestTask creates an open task with default values for testing.
func newTestTask(id, title string, createdAt int64) *note.Task {
	return &note.Task{
		ID:             id,
		CreatedAt:      createdAt,
		UpdatedAt:      createdAt,
		Title:          title,
		CanonicalTitle: note.Normalize(title),
		DueDate:        "2026-10-16",
		Status:         note.StatusOpen,
		Category:       note.CategoryPersonal,
		MentionCount:   1,
	}
}

func newTestThought(id, text string, createdAt int64) *note.Thought {
	return &note.Thought{
		ID:            id,
		CreatedAt:     createdAt,
		UpdatedAt:     createdAt,
		Text:          text,
		CanonicalText: note.Normalize(text),
		Category:      note.CategoryBusiness,
		MentionCount:  1,
	}
}

// stringPtr returns a pointer to the given string.
func stringPtr(s string) *string {
	return &s
}

func TestEmbeddingEncoding(t *testing.T) {
	vec := []float32{0.25, -1.5, 3.0e-5, 0}
	got := decodeEmbedding(encodeEmbedding(vec))
	if len(got) != len(vec) {
		t.Fatalf("len = %d, want %d", len(got), len(vec))
	}
	for i := range vec {
		if got[i] != vec[i] {
			t.Errorf("got[%d] = %v, want %v", i, got[i], vec[i])
		}
	}
	if decodeEmbedding(nil) != nil {
		t.Errorf("decodeEmbedding(nil) should be nil")
	}
	if embeddingValue(nil) != nil {
		t.Errorf("embeddingValue(nil) should be nil")
	}
}

func TestCaptureLifecycle(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	c := &note.Capture{ID: "01CAP", CreatedAt: time.Now().Unix(), AudioPath: stringPtr("/tmp/a.m4a")}
	if err := InsertCapture(ctx, db, c); err != nil {
		t.Fatalf("InsertCapture failed: %v", err)
	}

	got, err := GetCapture(ctx, db, "01CAP")
	if err != nil {
		t.Fatalf("GetCapture failed: %v", err)
	}
	if got.Stage != note.StageReceived {
		t.Errorf("Stage = %q, want received", got.Stage)
	}
	if got.Transcript != nil || got.Classification != nil || got.Done() {
		t.Errorf("new capture should have no transcript or classification: %+v", got)
	}

	if err := SetCaptureTranscript(ctx, db, "01CAP", "buy milk"); err != nil {
		t.Fatalf("SetCaptureTranscript failed: %v", err)
	}
	if err := SetCaptureRawOutput(ctx, db, "01CAP", `{"type":"thought"}`); err != nil {
		t.Fatalf("SetCaptureRawOutput failed: %v", err)
	}

	got, _ = GetCapture(ctx, db, "01CAP")
	if got.Classification != nil {
		t.Errorf("raw output must not set classification, got %v", *got.Classification)
	}
	if got.RawLLMOutput == nil || *got.RawLLMOutput != `{"type":"thought"}` {
		t.Errorf("RawLLMOutput = %v", got.RawLLMOutput)
	}
	if got.Stage != note.StageClassified {
		t.Errorf("Stage = %q, want classified", got.Stage)
	}

	if err := CompleteCapture(ctx, db, "01CAP", note.ClassTaskCreate, note.CategoryBusiness); err != nil {
		t.Fatalf("CompleteCapture failed: %v", err)
	}
	got, _ = GetCapture(ctx, db, "01CAP")
	if !got.Done() || *got.Classification != note.ClassTaskCreate {
		t.Errorf("Classification = %v, want task_create", got.Classification)
	}
	if got.Category == nil || *got.Category != note.CategoryBusiness {
		t.Errorf("Category = %v, want business", got.Category)
	}
	if got.Stage != note.StageDone {
		t.Errorf("Stage = %q, want done", got.Stage)
	}
	if got.Transcript == nil || *got.Transcript != "buy milk" {
		t.Errorf("Transcript = %v, want buy milk", got.Transcript)
	}
}

func TestCompleteCapture_ErrorHasNoCategory(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	if err := InsertCapture(ctx, db, &note.Capture{ID: "01ERR", CreatedAt: 1}); err != nil {
		t.Fatalf("InsertCapture failed: %v", err)
	}
	if err := CompleteCapture(ctx, db, "01ERR", note.ClassError, note.CategoryUnknown); err != nil {
		t.Fatalf("CompleteCapture failed: %v", err)
	}
	got, _ := GetCapture(ctx, db, "01ERR")
	if got.Category != nil {
		t.Errorf("Category = %v, want nil", *got.Category)
	}
	if got.Stage != note.StageError {
		t.Errorf("Stage = %q, want error", got.Stage)
	}
}

func TestCapture_NotFound(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	if _, err := GetCapture(ctx, db, "missing"); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("GetCapture should return NOT_FOUND, got: %v", err)
	}
	if err := SetCaptureStage(ctx, db, "missing", note.StageClassifying); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("SetCaptureStage should return NOT_FOUND, got: %v", err)
	}
	if err := DeleteCapture(ctx, db, "missing"); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("DeleteCapture should return NOT_FOUND, got: %v", err)
	}
}

func TestDeleteCapture_NullsReferences(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	if err := InsertCapture(ctx, db, &note.Capture{ID: "01CAP", CreatedAt: 1}); err != nil {
		t.Fatalf("InsertCapture failed: %v", err)
	}
	task := newTestTask("01TASK", "Call mom", 1)
	task.CaptureID = stringPtr("01CAP")
	if err := InsertTask(ctx, db, task); err != nil {
		t.Fatalf("InsertTask failed: %v", err)
	}
	thought := newTestThought("01TH", "Mornings are best", 1)
	thought.CaptureID = stringPtr("01CAP")
	if err := InsertThought(ctx, db, thought); err != nil {
		t.Fatalf("InsertThought failed: %v", err)
	}

	if err := DeleteCapture(ctx, db, "01CAP"); err != nil {
		t.Fatalf("DeleteCapture failed: %v", err)
	}

	gotTask, err := GetTask(ctx, db, "01TASK")
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if gotTask.CaptureID != nil {
		t.Errorf("task CaptureID = %q, want nil", *gotTask.CaptureID)
	}
	gotThought, err := GetThought(ctx, db, "01TH")
	if err != nil {
		t.Fatalf("GetThought failed: %v", err)
	}
	if gotThought.CaptureID != nil {
		t.Errorf("thought CaptureID = %q, want nil", *gotThought.CaptureID)
	}
}

func TestListCaptures_NewestFirst(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	for i, id := range []string{"01A", "01B", "01C"} {
		if err := InsertCapture(ctx, db, &note.Capture{ID: id, CreatedAt: int64(100 + i)}); err != nil {
			t.Fatalf("InsertCapture failed: %v", err)
		}
	}

	got, total, err := ListCaptures(ctx, db, Pagination{Limit: 2})
	if err != nil {
		t.Fatalf("ListCaptures failed: %v", err)
	}
	if total != 3 {
		t.Errorf("total = %d, want 3", total)
	}
	if len(got) != 2 || got[0].ID != "01C" || got[1].ID != "01B" {
		t.Errorf("got %v, want [01C 01B]", got)
	}
}

func TestPendingCaptures(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	for i, id := range []string{"01A", "01B", "01C"} {
		if err := InsertCapture(ctx, db, &note.Capture{ID: id, CreatedAt: int64(100 + i)}); err != nil {
			t.Fatalf("InsertCapture failed: %v", err)
		}
	}
	if err := CompleteCapture(ctx, db, "01B", note.ClassThought, note.CategoryPersonal); err != nil {
		t.Fatalf("CompleteCapture failed: %v", err)
	}

	got, err := PendingCaptures(ctx, db)
	if err != nil {
		t.Fatalf("PendingCaptures failed: %v", err)
	}
	if len(got) != 2 || got[0].ID != "01A" || got[1].ID != "01C" {
		t.Errorf("PendingCaptures = %v, want [01A 01C]", got)
	}
}

func TestClaimCapture(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	if err := InsertClaimedCapture(ctx, db, &note.Capture{ID: "01HELD", CreatedAt: 100}, "owner-a", 100); err != nil {
		t.Fatalf("InsertClaimedCapture failed: %v", err)
	}
	if err := InsertCapture(ctx, db, &note.Capture{ID: "01FREE", CreatedAt: 100}); err != nil {
		t.Fatalf("InsertCapture failed: %v", err)
	}

	tests := []struct {
		name        string
		id          string
		owner       string
		now         int64
		staleBefore int64
		want        bool
	}{
		{"foreign fresh claim", "01HELD", "owner-b", 110, 50, false},
		{"owner renews", "01HELD", "owner-a", 120, 50, true},
		{"foreign stale claim", "01HELD", "owner-b", 700, 600, true},
		{"previous owner locked out", "01HELD", "owner-a", 710, 600, false},
		{"unclaimed", "01FREE", "owner-b", 110, 50, true},
		{"missing", "01NONE", "owner-b", 110, 50, false},
	}
	for _, tt := range tests {
		got, err := ClaimCapture(ctx, db, tt.id, tt.owner, tt.now, tt.staleBefore)
		if err != nil {
			t.Fatalf("%s: ClaimCapture failed: %v", tt.name, err)
		}
		if got != tt.want {
			t.Errorf("%s: ClaimCapture = %v, want %v", tt.name, got, tt.want)
		}
	}

	if err := CompleteCapture(ctx, db, "01FREE", note.ClassThought, note.CategoryPersonal); err != nil {
		t.Fatalf("CompleteCapture failed: %v", err)
	}
	got, err := ClaimCapture(ctx, db, "01FREE", "owner-b", 110, 50)
	if err != nil {
		t.Fatalf("ClaimCapture failed: %v", err)
	}
	if got {
		t.Errorf("ClaimCapture on tagged capture = true, want false")
	}
}

func TestThought_InsertIncrementEmbedding(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	th := newTestThought("01TH", "Pricing feels too low", 10)
	if err := InsertThought(ctx, db, th); err != nil {
		t.Fatalf("InsertThought failed: %v", err)
	}

	got, err := IncrementThoughtMention(ctx, db, "01TH", 20)
	if err != nil {
		t.Fatalf("IncrementThoughtMention failed: %v", err)
	}
	if got.MentionCount != 2 {
		t.Errorf("MentionCount = %d, want 2", got.MentionCount)
	}
	if got.UpdatedAt != 20 {
		t.Errorf("UpdatedAt = %d, want 20", got.UpdatedAt)
	}

	if err := SetThoughtEmbedding(ctx, db, "01TH", []float32{1, 2}); err != nil {
		t.Fatalf("SetThoughtEmbedding failed: %v", err)
	}
	got, _ = GetThought(ctx, db, "01TH")
	if len(got.Embedding) != 2 || got.Embedding[1] != 2 {
		t.Errorf("Embedding = %v, want [1 2]", got.Embedding)
	}

	if _, err := IncrementThoughtMention(ctx, db, "missing", 1); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("IncrementThoughtMention(missing) should return NOT_FOUND, got: %v", err)
	}
}

func TestTopThoughts_OrderedByMentionsThenRecency(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	a := newTestThought("01A", "a thought", 1)
	b := newTestThought("01B", "b thought", 2)
	b.MentionCount = 3
	c := newTestThought("01C", "c thought", 3)
	c.Category = note.CategoryPersonal
	for _, th := range []*note.Thought{a, b, c} {
		if err := InsertThought(ctx, db, th); err != nil {
			t.Fatalf("InsertThought failed: %v", err)
		}
	}

	got, err := TopThoughts(ctx, db, 2)
	if err != nil {
		t.Fatalf("TopThoughts failed: %v", err)
	}
	if len(got) != 2 || got[0].ID != "01B" || got[1].ID != "01C" {
		t.Errorf("TopThoughts = %v, want [01B 01C]", got)
	}

	list, total, err := ListThoughts(ctx, db, ThoughtFilter{Category: note.CategoryBusiness})
	if err != nil {
		t.Fatalf("ListThoughts failed: %v", err)
	}
	if total != 2 || len(list) != 2 || list[0].ID != "01B" {
		t.Errorf("ListThoughts(business) = %v (total %d)", list, total)
	}
}

func TestPagination_Normalized(t *testing.T) {
	tests := []struct {
		in   Pagination
		want Pagination
	}{
		{Pagination{}, Pagination{Limit: DefaultListLimit}},
		{Pagination{Limit: 10, Offset: -5}, Pagination{Limit: 10}},
		{Pagination{Limit: 10000, Offset: 3}, Pagination{Limit: MaxListLimit, Offset: 3}},
	}
	for _, tt := range tests {
		if got := tt.in.normalized(); got != tt.want {
			t.Errorf("%+v.normalized() = %+v, want %+v", tt.in, got, tt.want)
		}
	}
}
