// Package match decides whether a new thought or task restates an existing one.
//
// Three strategies implement DuplicateMatcher: Lexical (trigram similarity),
// LLMAdjudicated (the chat model picks from a candidate list) and Embedding
// (cosine similarity against a TTL-bounded vector cache). Update-target
// resolution always stays lexical; see Lexical.ResolveTarget.
package match

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hpungsan/jot/internal/config"
	"github.com/hpungsan/jot/internal/logger"
	"github.com/hpungsan/jot/internal/note"
)

// Match identifies the existing entity a new utterance duplicates.
type Match struct {
	ID     string  `json:"id"`
	Score  float64 `json:"score"`
	Reason string  `json:"reason,omitempty"`
}

// DuplicateMatcher finds an existing thought or task equivalent to text.
// A nil Match with a nil error means no confident match.
type DuplicateMatcher interface {
	Name() string
	FindDuplicate(ctx context.Context, kind note.Kind, text string) (*Match, error)

	// Invalidate discards any cached candidate state after a write.
	Invalidate()
}

// Embedder turns text into a fixed-dimension vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Completer runs one chat completion and returns the raw assistant text.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Clock returns the current time. Tests inject fixed clocks.
type Clock func() time.Time

// New builds the matcher named by cfg.Matcher. Embedding falls back to lexical
// when the embedding collaborator fails.
func New(cfg *config.Config, db *sql.DB, embedder Embedder, completer Completer, log *logger.Logger, now Clock) (DuplicateMatcher, error) {
	if now == nil {
		now = time.Now
	}
	lexical := NewLexical(db, LexicalOptions{
		DuplicateThreshold: cfg.LexicalDuplicateThreshold,
		TargetThreshold:    cfg.LexicalTargetThreshold,
		Window:             cfg.DuplicateWindow(),
		Now:                now,
	})

	switch cfg.Matcher {
	case config.MatcherLexical:
		return lexical, nil
	case config.MatcherLLM:
		if completer == nil {
			return nil, fmt.Errorf("matcher %q requires a chat completer", cfg.Matcher)
		}
		return NewLLMAdjudicated(db, completer, AdjudicatorOptions{
			AcceptConfidence: cfg.AdjudicatorAcceptConfidence,
			PromptConfidence: cfg.AdjudicatorPromptConfidence,
			Candidates:       cfg.AdjudicatorCandidates,
		}, log), nil
	case config.MatcherEmbedding:
		if embedder == nil {
			return nil, fmt.Errorf("matcher %q requires an embedder", cfg.Matcher)
		}
		return NewEmbedding(db, embedder, EmbeddingOptions{
			Threshold:  cfg.EmbeddingThreshold,
			Candidates: cfg.EmbeddingCandidates,
			TTL:        cfg.EmbeddingCacheTTL(),
			Now:        now,
		}, lexical, log), nil
	default:
		return nil, fmt.Errorf("unknown matcher %q", cfg.Matcher)
	}
}
