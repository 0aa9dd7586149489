package match

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hpungsan/jot/internal/db"
	"github.com/hpungsan/jot/internal/logger"
	"github.com/hpungsan/jot/internal/note"
)

// AdjudicatorOptions configures an LLMAdjudicated matcher.
type AdjudicatorOptions struct {
	// AcceptConfidence is the lowest reported confidence treated as a match.
	AcceptConfidence float64

	// PromptConfidence is the confidence the prompt tells the model to require.
	// It is kept separate from AcceptConfidence on purpose.
	PromptConfidence float64

	// Candidates caps the list shown to the model.
	Candidates int
}

// LLMAdjudicated asks the chat model to pick the best semantic match from the
// most-mentioned existing items, across both categories.
type LLMAdjudicated struct {
	db        *sql.DB
	completer Completer
	opts      AdjudicatorOptions
	log       *logger.Logger
}

// NewLLMAdjudicated returns an LLMAdjudicated matcher.
func NewLLMAdjudicated(database *sql.DB, completer Completer, opts AdjudicatorOptions, log *logger.Logger) *LLMAdjudicated {
	if log == nil {
		log = logger.Nop()
	}
	return &LLMAdjudicated{
		db:        database,
		completer: completer,
		opts:      opts,
		log:       log.With("component", "match.adjudicator"),
	}
}

func (a *LLMAdjudicated) Name() string { return "llm" }

// Invalidate is a no-op; candidates are read fresh on every call.
func (a *LLMAdjudicated) Invalidate() {}

type adjudication struct {
	MatchID    *string `json:"match_id"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}

// FindDuplicate returns the model's pick when it names a listed candidate with
// confidence at or above AcceptConfidence. Transport errors are returned;
// malformed answers mean no match.
func (a *LLMAdjudicated) FindDuplicate(ctx context.Context, kind note.Kind, text string) (*Match, error) {
	candidates, err := a.candidates(ctx, kind)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	system := adjudicatorSystemPrompt(kind, a.opts.PromptConfidence)
	user := adjudicatorUserPrompt(text, candidates)

	reply, err := a.completer.Complete(ctx, system, user)
	if err != nil {
		return nil, fmt.Errorf("adjudicate: %w", err)
	}

	verdict, err := parseAdjudication(reply)
	if err != nil {
		a.log.Warn("malformed adjudication, treating as no match", "kind", kind, "error", err)
		return nil, nil
	}
	if verdict.MatchID == nil || *verdict.MatchID == "" {
		return nil, nil
	}
	if _, ok := candidates.lookup(*verdict.MatchID); !ok {
		a.log.Warn("adjudicator named an unknown id", "kind", kind, "match_id", *verdict.MatchID)
		return nil, nil
	}
	if verdict.Confidence < a.opts.AcceptConfidence {
		return nil, nil
	}
	return &Match{ID: *verdict.MatchID, Score: verdict.Confidence, Reason: verdict.Reason}, nil
}

type adjCandidate struct {
	id       string
	text     string
	category note.Category
	mentions int
}

type adjCandidates []adjCandidate

func (cs adjCandidates) lookup(id string) (adjCandidate, bool) {
	for _, c := range cs {
		if c.id == id {
			return c, true
		}
	}
	return adjCandidate{}, false
}

func (a *LLMAdjudicated) candidates(ctx context.Context, kind note.Kind) (adjCandidates, error) {
	var out adjCandidates
	switch kind {
	case note.KindTask:
		tasks, err := db.TopOpenTasks(ctx, a.db, a.opts.Candidates)
		if err != nil {
			return nil, err
		}
		for _, t := range tasks {
			out = append(out, adjCandidate{id: t.ID, text: t.Title, category: t.Category, mentions: t.MentionCount})
		}
	case note.KindThought:
		thoughts, err := db.TopThoughts(ctx, a.db, a.opts.Candidates)
		if err != nil {
			return nil, err
		}
		for _, t := range thoughts {
			out = append(out, adjCandidate{id: t.ID, text: t.Text, category: t.Category, mentions: t.MentionCount})
		}
	}
	return out, nil
}

func adjudicatorSystemPrompt(kind note.Kind, confidence float64) string {
	return fmt.Sprintf(`You detect duplicate %[1]ss in a personal notes app.
Given a new %[1]s and a numbered list of existing %[1]ss, decide whether the new one
restates an existing one (same commitment or idea, even if worded differently or
filed under a different category).

Reply with a single JSON object and nothing else:
{"match_id": "<id of the best match, or null>", "confidence": <number between 0 and 1>, "reason": "<short explanation>"}

Only return a match_id when your confidence is at least %.2f. Otherwise return "match_id": null.`, kind, confidence)
}

func adjudicatorUserPrompt(text string, candidates adjCandidates) string {
	var b strings.Builder
	fmt.Fprintf(&b, "New: %s\n\nExisting:\n", strings.TrimSpace(text))
	for i, c := range candidates {
		fmt.Fprintf(&b, "%d. [%s] %s (%s, mentioned %d times)\n", i+1, c.id, c.text, c.category, c.mentions)
	}
	return b.String()
}

// parseAdjudication decodes the model reply, tolerating a fenced code block.
func parseAdjudication(reply string) (*adjudication, error) {
	body := strings.TrimSpace(reply)
	if strings.HasPrefix(body, "```") {
		body = strings.TrimPrefix(body, "```json")
		body = strings.TrimPrefix(body, "```")
		body = strings.TrimSuffix(strings.TrimSpace(body), "```")
	}
	var v adjudication
	if err := json.Unmarshal([]byte(body), &v); err != nil {
		return nil, err
	}
	if v.Confidence < 0 || v.Confidence > 1 {
		return nil, fmt.Errorf("confidence %v out of range", v.Confidence)
	}
	return &v, nil
}
