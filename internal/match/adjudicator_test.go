package match

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/hpungsan/jot/internal/note"
)

func newTestAdjudicator(t *testing.T, completer Completer) *LLMAdjudicated {
	t.Helper()
	return NewLLMAdjudicated(openTestDB(t), completer, AdjudicatorOptions{
		AcceptConfidence: 0.5,
		PromptConfidence: 0.7,
		Candidates:       30,
	}, nil)
}

func TestAdjudicator_Replies(t *testing.T) {
	tests := []struct {
		name   string
		reply  string
		wantID string // empty means no match
	}{
		{"confident match", `{"match_id":"01LI","confidence":0.92,"reason":"same post"}`, "01LI"},
		{"accepted below prompt threshold", `{"match_id":"01LI","confidence":0.55,"reason":"probably"}`, "01LI"},
		{"exactly accept threshold", `{"match_id":"01LI","confidence":0.5,"reason":"coin flip"}`, "01LI"},
		{"below accept threshold", `{"match_id":"01LI","confidence":0.49,"reason":"weak"}`, ""},
		{"null match", `{"match_id":null,"confidence":0.1,"reason":"nothing similar"}`, ""},
		{"unknown id", `{"match_id":"01NOPE","confidence":0.99,"reason":"hallucinated"}`, ""},
		{"malformed", `I think it's the LinkedIn one`, ""},
		{"confidence out of range", `{"match_id":"01LI","confidence":7}`, ""},
		{"fenced json", "```json\n{\"match_id\":\"01LI\",\"confidence\":0.8,\"reason\":\"x\"}\n```", "01LI"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			completer := &stubCompleter{reply: tt.reply}
			a := newTestAdjudicator(t, completer)
			clock := newFakeClock()
			seedTask(t, a.db, "01LI", "Post LinkedIn update", clock.Now())

			m, err := a.FindDuplicate(context.Background(), note.KindTask, "LinkedIn post")
			if err != nil {
				t.Fatalf("FindDuplicate() error = %v", err)
			}
			switch {
			case tt.wantID == "" && m != nil:
				t.Errorf("FindDuplicate() = %v, want nil", m)
			case tt.wantID != "" && (m == nil || m.ID != tt.wantID):
				t.Errorf("FindDuplicate() = %v, want %s", m, tt.wantID)
			}
		})
	}
}

func TestAdjudicator_PromptListsCandidatesAcrossCategories(t *testing.T) {
	completer := &stubCompleter{reply: `{"match_id":null,"confidence":0,"reason":""}`}
	a := newTestAdjudicator(t, completer)
	clock := newFakeClock()
	seedTask(t, a.db, "01P", "Call accountant", clock.Now())
	seedTask(t, a.db, "01B", "Send invoice", clock.Now(), func(task *note.Task) {
		task.Category = note.CategoryBusiness
	})
	seedTask(t, a.db, "01X", "Old closed task", clock.Now(), func(task *note.Task) {
		task.Status = note.StatusDone
	})

	if _, err := a.FindDuplicate(context.Background(), note.KindTask, "invoice the client"); err != nil {
		t.Fatalf("FindDuplicate() error = %v", err)
	}
	for _, want := range []string{"[01P] Call accountant", "[01B] Send invoice", "New: invoice the client"} {
		if !strings.Contains(completer.lastUser, want) {
			t.Errorf("user prompt missing %q:\n%s", want, completer.lastUser)
		}
	}
	if strings.Contains(completer.lastUser, "01X") {
		t.Errorf("user prompt should not list closed tasks")
	}
	if !strings.Contains(completer.lastSystem, "0.70") {
		t.Errorf("system prompt should state the prompt confidence:\n%s", completer.lastSystem)
	}
}

func TestAdjudicator_Thoughts(t *testing.T) {
	completer := &stubCompleter{reply: `{"match_id":"01TH","confidence":0.8,"reason":"same idea"}`}
	a := newTestAdjudicator(t, completer)
	seedThought(t, a.db, "01TH", "Mornings are my best hours", newFakeClock().Now())

	m, err := a.FindDuplicate(context.Background(), note.KindThought, "I work best early")
	if err != nil {
		t.Fatalf("FindDuplicate() error = %v", err)
	}
	if m == nil || m.ID != "01TH" || m.Reason != "same idea" {
		t.Errorf("FindDuplicate() = %+v, want 01TH", m)
	}
}

func TestAdjudicator_NoCandidatesSkipsModel(t *testing.T) {
	completer := &stubCompleter{}
	a := newTestAdjudicator(t, completer)

	m, err := a.FindDuplicate(context.Background(), note.KindTask, "anything")
	if err != nil || m != nil {
		t.Fatalf("FindDuplicate() = %v, %v; want nil, nil", m, err)
	}
	if completer.calls != 0 {
		t.Errorf("completer called %d times, want 0", completer.calls)
	}
}

func TestAdjudicator_TransportErrorReturned(t *testing.T) {
	completer := &stubCompleter{err: errors.New("timeout")}
	a := newTestAdjudicator(t, completer)
	seedTask(t, a.db, "01A", "Something", newFakeClock().Now())

	if _, err := a.FindDuplicate(context.Background(), note.KindTask, "something"); err == nil {
		t.Errorf("FindDuplicate() expected transport error")
	}
}
