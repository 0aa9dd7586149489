package match

import (
	"context"
	"database/sql"
	"time"

	"github.com/hpungsan/jot/internal/db"
	"github.com/hpungsan/jot/internal/note"
)

// LexicalOptions configures a Lexical matcher.
type LexicalOptions struct {
	// DuplicateThreshold is the score a candidate must exceed to count as a duplicate.
	DuplicateThreshold float64

	// TargetThreshold is the looser score used by ResolveTarget's fuzzy tier.
	TargetThreshold float64

	// Window bounds duplicate candidates to items created this recently.
	Window time.Duration

	Now Clock
}

// Lexical matches on trigram similarity of canonical text.
type Lexical struct {
	db   *sql.DB
	opts LexicalOptions
}

// NewLexical returns a Lexical matcher backed by db.
func NewLexical(database *sql.DB, opts LexicalOptions) *Lexical {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Lexical{db: database, opts: opts}
}

func (l *Lexical) Name() string { return "lexical" }

// Invalidate is a no-op; Lexical reads the store on every call.
func (l *Lexical) Invalidate() {}

// FindDuplicate returns the highest-scoring candidate created inside the window
// whose similarity exceeds DuplicateThreshold. Tasks are limited to open ones.
func (l *Lexical) FindDuplicate(ctx context.Context, kind note.Kind, text string) (*Match, error) {
	canonical := note.Normalize(text)
	if canonical == "" {
		return nil, nil
	}
	since := l.opts.Now().Add(-l.opts.Window).Unix()

	var candidates []candidate
	switch kind {
	case note.KindTask:
		tasks, err := db.RecentOpenTasks(ctx, l.db, since)
		if err != nil {
			return nil, err
		}
		for _, t := range tasks {
			candidates = append(candidates, candidate{id: t.ID, canonical: t.CanonicalTitle})
		}
	case note.KindThought:
		thoughts, err := db.RecentThoughts(ctx, l.db, since)
		if err != nil {
			return nil, err
		}
		for _, t := range thoughts {
			candidates = append(candidates, candidate{id: t.ID, canonical: t.CanonicalText})
		}
	}

	return bestTrigram(canonical, candidates, l.opts.DuplicateThreshold), nil
}

// ResolveTarget finds the open task an update hint refers to. The most recently
// created open task whose canonical title contains the normalized hint wins;
// otherwise the best trigram match above TargetThreshold; otherwise nil.
func (l *Lexical) ResolveTarget(ctx context.Context, hint string) (*note.Task, error) {
	canonical := note.Normalize(hint)
	if canonical == "" {
		return nil, nil
	}

	task, err := db.FindOpenTaskContaining(ctx, l.db, canonical)
	if err != nil || task != nil {
		return task, err
	}

	open, err := db.OpenTasks(ctx, l.db)
	if err != nil {
		return nil, err
	}
	candidates := make([]candidate, 0, len(open))
	for _, t := range open {
		candidates = append(candidates, candidate{id: t.ID, canonical: t.CanonicalTitle})
	}
	best := bestTrigram(canonical, candidates, l.opts.TargetThreshold)
	if best == nil {
		return nil, nil
	}
	for i := range open {
		if open[i].ID == best.ID {
			return &open[i], nil
		}
	}
	return nil, nil
}

type candidate struct {
	id        string
	canonical string
}

// bestTrigram keeps the strict maximum, so the first candidate wins ties.
func bestTrigram(canonical string, candidates []candidate, threshold float64) *Match {
	var best *Match
	for _, c := range candidates {
		score := Similarity(canonical, c.canonical)
		if best == nil || score > best.Score {
			best = &Match{ID: c.id, Score: score}
		}
	}
	if best == nil || best.Score <= threshold {
		return nil
	}
	return best
}
