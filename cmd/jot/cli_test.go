package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/hpungsan/jot/internal/config"
	"github.com/hpungsan/jot/internal/db"
	"github.com/hpungsan/jot/internal/logger"
	"github.com/hpungsan/jot/internal/note"
	"github.com/hpungsan/jot/internal/ops"
)

// fakeModel answers classification from a fixed table and embeds by letter counts.
type fakeModel struct {
	replies map[string]string
}

func (m *fakeModel) Transcribe(ctx context.Context, audio io.Reader, filename string) (string, error) {
	_, _ = io.Copy(io.Discard, audio)
	return "buy milk", nil
}

func (m *fakeModel) Classify(ctx context.Context, text string) (string, error) {
	if reply, ok := m.replies[text]; ok {
		return reply, nil
	}
	return "", fmt.Errorf("no reply for %q", text)
}

func (m *fakeModel) Complete(ctx context.Context, system, user string) (string, error) {
	return `{"match_id": null, "confidence": 0}`, nil
}

func (m *fakeModel) Embed(ctx context.Context, text string) ([]float32, error) {
	vec := make([]float32, 26)
	for _, r := range strings.ToLower(text) {
		if r >= 'a' && r <= 'z' {
			vec[r-'a']++
		}
	}
	return vec, nil
}

// setupTestEnv creates a temporary jot home with a lexical matcher and a fake model.
func setupTestEnv(t *testing.T) *cliEnv {
	t.Helper()
	tmpDir := t.TempDir()
	database, err := db.Init(tmpDir)
	if err != nil {
		t.Fatalf("failed to init test db: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	cfg := config.DefaultConfig()
	cfg.Matcher = config.MatcherLexical
	cfg.Timezone = "UTC"
	cfg.WaitTimeoutSeconds = 5

	model := &fakeModel{replies: map[string]string{
		"send the invoice": `{"type":"task_create","category":"business","payload":{"title":"Send the invoice","due_date":"2026-10-20"}}`,
		"buy milk":         `{"type":"task_create","category":"personal","payload":{"title":"Buy milk"}}`,
		"what a nice day":  `{"type":"thought","category":"personal","payload":{"text":"What a nice day"}}`,
	}}

	return &cliEnv{
		db:      database,
		cfg:     cfg,
		baseDir: tmpDir,
		log:     logger.Nop(),
		newLLM: func(*config.Config) (languageModel, error) {
			return model, nil
		},
	}
}

// run executes the CLI with args and returns what it wrote to stdout.
func run(t *testing.T, e *cliEnv, stdin string, args ...string) (string, error) {
	t.Helper()
	app := newCLIApp(e)
	var out bytes.Buffer
	app.Writer = &out
	app.ErrWriter = io.Discard
	app.Reader = strings.NewReader(stdin)
	err := app.Run(append([]string{"jot"}, args...))
	return out.String(), err
}

func mustRun[T any](t *testing.T, e *cliEnv, stdin string, args ...string) T {
	t.Helper()
	out, err := run(t, e, stdin, args...)
	if err != nil {
		t.Fatalf("jot %s failed: %v", strings.Join(args, " "), err)
	}
	var v T
	if err := json.Unmarshal([]byte(out), &v); err != nil {
		t.Fatalf("failed to parse output: %v\nOutput: %s", err, out)
	}
	return v
}

func TestCLICaptureWait(t *testing.T) {
	e := setupTestEnv(t)

	output := mustRun[ops.WaitCaptureOutput](t, e, "", "capture", "--wait", "send", "the", "invoice")
	if output.ID == "" {
		t.Error("expected capture id")
	}
	if output.TimedOut {
		t.Fatal("capture timed out")
	}
	if output.Result.Classification != note.ClassTaskCreate || output.Result.Category != note.CategoryBusiness {
		t.Errorf("result = %+v, want task_create/business", output.Result)
	}

	tasks := mustRun[ops.ListTasksOutput](t, e, "", "tasks", "--status", "open")
	if len(tasks.Items) != 1 {
		t.Fatalf("expected 1 task, got %d", len(tasks.Items))
	}
	if tasks.Items[0].Title != "Send the invoice" || tasks.Items[0].DueDate != "2026-10-20" {
		t.Errorf("task = %+v", tasks.Items[0])
	}
}

func TestCLICaptureStdin(t *testing.T) {
	e := setupTestEnv(t)

	accepted := mustRun[map[string]string](t, e, "  buy milk\n", "capture")
	if accepted["status"] != "processing" || accepted["id"] == "" {
		t.Fatalf("accepted = %v", accepted)
	}

	// capture drains the pipeline before returning
	status := mustRun[ops.FetchCaptureOutput](t, e, "", "status", accepted["id"])
	if !status.Done {
		t.Fatalf("capture not done after command returned: stage=%s", status.Stage)
	}
	if status.Transcript == nil || *status.Transcript != "buy milk" {
		t.Errorf("transcript = %v", status.Transcript)
	}
	if status.RawLLMOutput != nil {
		t.Error("raw output should be hidden without --raw")
	}

	status = mustRun[ops.FetchCaptureOutput](t, e, "", "status", "--raw", accepted["id"])
	if status.RawLLMOutput == nil {
		t.Error("expected raw output with --raw")
	}
}

func TestCLICaptureEmptyStdin(t *testing.T) {
	e := setupTestEnv(t)

	if _, err := run(t, e, "   ", "capture"); err == nil {
		t.Fatal("expected error for empty capture")
	}
}

func TestCLIStatusPoll(t *testing.T) {
	e := setupTestEnv(t)
	accepted := mustRun[map[string]string](t, e, "", "capture", "what", "a", "nice", "day")

	output := mustRun[ops.WaitCaptureOutput](t, e, "", "status", "--poll", "--max-wait", "2s", accepted["id"])
	if output.TimedOut {
		t.Fatal("poll timed out on a finished capture")
	}
	if output.Result.Classification != note.ClassThought {
		t.Errorf("classification = %s, want thought", output.Result.Classification)
	}

	thoughts := mustRun[ops.ListThoughtsOutput](t, e, "", "thoughts", "--category", "personal")
	if len(thoughts.Items) != 1 || thoughts.Items[0].Text != "What a nice day" {
		t.Errorf("thoughts = %+v", thoughts.Items)
	}
}

func TestCLITaskEdits(t *testing.T) {
	e := setupTestEnv(t)
	mustRun[ops.WaitCaptureOutput](t, e, "", "capture", "--wait", "buy", "milk")
	tasks := mustRun[ops.ListTasksOutput](t, e, "", "tasks")
	if len(tasks.Items) != 1 {
		t.Fatalf("expected 1 task, got %d", len(tasks.Items))
	}
	id := tasks.Items[0].ID

	t.Run("postpone defaults to tomorrow", func(t *testing.T) {
		out := mustRun[ops.UpdateTaskOutput](t, e, "", "task", "postpone", id)
		want := note.Tomorrow(time.Now(), time.UTC)
		if out.Task.DueDate != want {
			t.Errorf("due_date = %s, want %s", out.Task.DueDate, want)
		}
	})

	t.Run("postpone to date", func(t *testing.T) {
		out := mustRun[ops.UpdateTaskOutput](t, e, "", "task", "postpone", "--to", "2027-01-05", id)
		if out.Task.DueDate != "2027-01-05" {
			t.Errorf("due_date = %s", out.Task.DueDate)
		}
	})

	t.Run("edit title", func(t *testing.T) {
		out := mustRun[ops.UpdateTaskOutput](t, e, "", "task", "edit", "--title", "Buy oat milk", id)
		if out.Task.Title != "Buy oat milk" || out.Task.CanonicalTitle != "buy oat milk" {
			t.Errorf("task = %+v", out.Task)
		}
	})

	t.Run("done", func(t *testing.T) {
		out := mustRun[ops.UpdateTaskOutput](t, e, "", "task", "done", id)
		if out.Task.Status != note.StatusDone {
			t.Errorf("status = %s, want done", out.Task.Status)
		}
		open := mustRun[ops.ListTasksOutput](t, e, "", "tasks", "--status", "open")
		if len(open.Items) != 0 {
			t.Errorf("expected no open tasks, got %d", len(open.Items))
		}
	})

	t.Run("reopen", func(t *testing.T) {
		out := mustRun[ops.UpdateTaskOutput](t, e, "", "task", "reopen", id)
		if out.Task.Status != note.StatusOpen {
			t.Errorf("status = %s, want open", out.Task.Status)
		}
	})

	t.Run("edit without flags", func(t *testing.T) {
		if _, err := run(t, e, "", "task", "edit", id); err == nil {
			t.Error("expected error when nothing changes")
		}
	})
}

func TestCLIDelete(t *testing.T) {
	e := setupTestEnv(t)
	captured := mustRun[ops.WaitCaptureOutput](t, e, "", "capture", "--wait", "buy", "milk")

	out := mustRun[ops.DeleteCaptureOutput](t, e, "", "delete", captured.ID)
	if !out.Deleted || out.ID != captured.ID {
		t.Errorf("delete output = %+v", out)
	}

	if _, err := run(t, e, "", "status", captured.ID); err == nil {
		t.Error("expected not found after delete")
	}

	tasks := mustRun[ops.ListTasksOutput](t, e, "", "tasks")
	if len(tasks.Items) != 1 || tasks.Items[0].CaptureID != nil {
		t.Errorf("task should survive with its capture reference cleared: %+v", tasks.Items)
	}
}

func TestCLIBackfill(t *testing.T) {
	e := setupTestEnv(t)
	now := time.Now().Unix()
	err := db.InsertTask(context.Background(), e.db, &note.Task{
		ID: "t1", CreatedAt: now, UpdatedAt: now,
		Title: "Call mom", CanonicalTitle: "call mom", DueDate: "2026-10-20",
		Status: note.StatusOpen, Category: note.CategoryPersonal, MentionCount: 1,
	})
	if err != nil {
		t.Fatalf("InsertTask failed: %v", err)
	}

	t.Run("lexical matcher refuses", func(t *testing.T) {
		if _, err := run(t, e, "", "backfill"); err == nil {
			t.Error("expected error with the lexical matcher")
		}
	})

	t.Run("embedding matcher persists vectors", func(t *testing.T) {
		e.cfg.Matcher = config.MatcherEmbedding
		out := mustRun[map[string]any](t, e, "", "backfill")
		if out["matcher"] != "embedding" {
			t.Errorf("matcher = %v", out["matcher"])
		}
		task, err := db.GetTask(context.Background(), e.db, "t1")
		if err != nil {
			t.Fatalf("GetTask failed: %v", err)
		}
		if len(task.Embedding) != 26 {
			t.Errorf("embedding length = %d, want 26", len(task.Embedding))
		}
	})
}

func TestCLIDigest(t *testing.T) {
	e := setupTestEnv(t)
	mustRun[ops.WaitCaptureOutput](t, e, "", "capture", "--wait", "what", "a", "nice", "day")

	out, err := run(t, e, "", "digest")
	if err != nil {
		t.Fatalf("digest failed: %v", err)
	}
	if !strings.HasPrefix(out, "# Digest for ") || !strings.Contains(out, "What a nice day") {
		t.Errorf("markdown digest = %q", out)
	}

	out, err = run(t, e, "", "digest", "--html")
	if err != nil {
		t.Fatalf("digest --html failed: %v", err)
	}
	if !strings.Contains(out, "<h1>") {
		t.Errorf("html digest = %q", out)
	}
}

// TestCLIErrorHandling tests error handling in CLI commands.
func TestCLIErrorHandling(t *testing.T) {
	e := setupTestEnv(t)

	tests := []struct {
		name string
		args []string
	}{
		{name: "status not found", args: []string{"status", "nonexistent"}},
		{name: "status without id", args: []string{"status"}},
		{name: "task done not found", args: []string{"task", "done", "nonexistent"}},
		{name: "invalid status filter", args: []string{"tasks", "--status", "someday"}},
		{name: "invalid due date", args: []string{"task", "postpone", "--to", "next week", "x"}},
		{name: "delete not found", args: []string{"delete", "nonexistent"}},
		{name: "missing audio file", args: []string{"capture", "--audio", "/nonexistent/memo.m4a"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := run(t, e, "", tt.args...); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestCLIRuntimeRequiresAPIKey(t *testing.T) {
	e := setupTestEnv(t)
	e.newLLM = defaultLLM

	_, err := run(t, e, "", "capture", "buy", "milk")
	if err == nil || !strings.Contains(err.Error(), "api key") {
		t.Fatalf("expected api key error, got %v", err)
	}
}

func TestIsHelpOrVersion(t *testing.T) {
	tests := []struct {
		args []string
		want bool
	}{
		{[]string{"jot"}, true},
		{[]string{"jot", "--help"}, true},
		{[]string{"jot", "-v"}, true},
		{[]string{"jot", "help"}, true},
		{[]string{"jot", "tasks"}, false},
		{[]string{"jot", "capture", "--help"}, false},
	}
	for _, tt := range tests {
		if got := isHelpOrVersion(tt.args); got != tt.want {
			t.Errorf("isHelpOrVersion(%v) = %v, want %v", tt.args, got, tt.want)
		}
	}
}

func TestBaseDir(t *testing.T) {
	t.Setenv("JOT_HOME", "/tmp/jot-home")
	dir, err := baseDir()
	if err != nil {
		t.Fatalf("baseDir() error = %v", err)
	}
	if dir != "/tmp/jot-home" {
		t.Errorf("baseDir() = %q", dir)
	}

	t.Setenv("JOT_HOME", "")
	t.Setenv("HOME", "/tmp/someone")
	dir, err = baseDir()
	if err != nil {
		t.Fatalf("baseDir() error = %v", err)
	}
	if dir != "/tmp/someone/.jot" {
		t.Errorf("baseDir() = %q, want /tmp/someone/.jot", dir)
	}
}

func TestReadWithLimit(t *testing.T) {
	t.Run("within limit", func(t *testing.T) {
		got, err := readWithLimit(strings.NewReader("  small content \n"), 1000)
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		if got != "small content" {
			t.Errorf("got %q", got)
		}
	})

	t.Run("exceeds limit", func(t *testing.T) {
		if _, err := readWithLimit(strings.NewReader(strings.Repeat("x", 100)), 50); err == nil {
			t.Error("expected error for content exceeding limit, got nil")
		}
	})
}
