package match

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hpungsan/jot/internal/db"
	"github.com/hpungsan/jot/internal/logger"
	"github.com/hpungsan/jot/internal/note"
)

// EmbeddingOptions configures an Embedding matcher.
type EmbeddingOptions struct {
	// Threshold is the cosine similarity the best candidate must exceed.
	Threshold float64

	// Candidates caps how many items each cache holds.
	Candidates int

	TTL time.Duration
	Now Clock
}

// Embedding matches by cosine similarity against cached candidate vectors.
// Open tasks and thoughts each get their own cache.
type Embedding struct {
	db       *sql.DB
	embedder Embedder
	opts     EmbeddingOptions
	fallback DuplicateMatcher
	log      *logger.Logger

	tasks    *Cache
	thoughts *Cache
}

// NewEmbedding returns an Embedding matcher. When the embedder fails, lookups
// are delegated to fallback (which may be nil for plain "no match").
func NewEmbedding(database *sql.DB, embedder Embedder, opts EmbeddingOptions, fallback DuplicateMatcher, log *logger.Logger) *Embedding {
	if log == nil {
		log = logger.Nop()
	}
	e := &Embedding{
		db:       database,
		embedder: embedder,
		opts:     opts,
		fallback: fallback,
		log:      log.With("component", "match.embedding"),
	}
	e.tasks = NewCache(opts.TTL, e.loadTasks, opts.Now)
	e.thoughts = NewCache(opts.TTL, e.loadThoughts, opts.Now)
	return e
}

func (e *Embedding) Name() string { return "embedding" }

// Invalidate resets both caches so the next lookup rebuilds them.
func (e *Embedding) Invalidate() {
	e.tasks.Invalidate()
	e.thoughts.Invalidate()
}

// Refresh rebuilds both caches now, persisting any missing vectors.
func (e *Embedding) Refresh(ctx context.Context) error {
	if err := e.tasks.Refresh(ctx); err != nil {
		return fmt.Errorf("refresh task embeddings: %w", err)
	}
	if err := e.thoughts.Refresh(ctx); err != nil {
		return fmt.Errorf("refresh thought embeddings: %w", err)
	}
	return nil
}

// TaskCache exposes the task cache for inspection.
func (e *Embedding) TaskCache() *Cache { return e.tasks }

// FindDuplicate embeds text and returns the cached candidate with the highest
// cosine similarity if it exceeds the threshold. Ties keep the first-seen entry.
func (e *Embedding) FindDuplicate(ctx context.Context, kind note.Kind, text string) (*Match, error) {
	cache := e.tasks
	if kind == note.KindThought {
		cache = e.thoughts
	}

	vec, err := e.embedder.Embed(ctx, text)
	if err != nil {
		return e.degrade(ctx, kind, text, fmt.Errorf("embed query: %w", err))
	}
	entries, err := cache.Entries(ctx)
	if err != nil {
		return e.degrade(ctx, kind, text, fmt.Errorf("load %s cache: %w", kind, err))
	}

	var best *Match
	for _, entry := range entries {
		score := CosineSimilarity(vec, entry.Vector)
		if best == nil || score > best.Score {
			best = &Match{ID: entry.ID, Score: score}
		}
	}
	if best == nil || best.Score <= e.opts.Threshold {
		return nil, nil
	}
	e.log.Debug("embedding match", "kind", kind, "match_id", best.ID, "score", best.Score)
	return best, nil
}

func (e *Embedding) degrade(ctx context.Context, kind note.Kind, text string, cause error) (*Match, error) {
	if e.fallback == nil {
		e.log.Warn("embedding matcher unavailable, treating as no match", "kind", kind, "error", cause)
		return nil, nil
	}
	e.log.Warn("embedding matcher unavailable, falling back", "kind", kind, "fallback", e.fallback.Name(), "error", cause)
	return e.fallback.FindDuplicate(ctx, kind, text)
}

func (e *Embedding) loadTasks(ctx context.Context) ([]CacheEntry, error) {
	tasks, err := db.TopOpenTasks(ctx, e.db, e.opts.Candidates)
	if err != nil {
		return nil, err
	}
	entries := make([]CacheEntry, 0, len(tasks))
	for _, t := range tasks {
		vec := t.Embedding
		if len(vec) == 0 {
			if vec, err = e.embedder.Embed(ctx, t.Title); err != nil {
				return nil, fmt.Errorf("embed task %s: %w", t.ID, err)
			}
			if err := db.SetTaskEmbedding(ctx, e.db, t.ID, vec); err != nil {
				return nil, err
			}
		}
		entries = append(entries, CacheEntry{ID: t.ID, Text: t.Title, Vector: vec})
	}
	e.log.Debug("task embedding cache rebuilt", "entries", len(entries))
	return entries, nil
}

func (e *Embedding) loadThoughts(ctx context.Context) ([]CacheEntry, error) {
	thoughts, err := db.TopThoughts(ctx, e.db, e.opts.Candidates)
	if err != nil {
		return nil, err
	}
	entries := make([]CacheEntry, 0, len(thoughts))
	for _, t := range thoughts {
		vec := t.Embedding
		if len(vec) == 0 {
			if vec, err = e.embedder.Embed(ctx, t.Text); err != nil {
				return nil, fmt.Errorf("embed thought %s: %w", t.ID, err)
			}
			if err := db.SetThoughtEmbedding(ctx, e.db, t.ID, vec); err != nil {
				return nil, err
			}
		}
		entries = append(entries, CacheEntry{ID: t.ID, Text: t.Text, Vector: vec})
	}
	e.log.Debug("thought embedding cache rebuilt", "entries", len(entries))
	return entries, nil
}
