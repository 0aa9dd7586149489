// Package resolve turns a classified capture into a created or mutated thought or task.
package resolve

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/hpungsan/jot/internal/db"
	"github.com/hpungsan/jot/internal/logger"
	"github.com/hpungsan/jot/internal/match"
	"github.com/hpungsan/jot/internal/note"
)

// TargetResolver locates the open task an update hint refers to.
type TargetResolver interface {
	ResolveTarget(ctx context.Context, hint string) (*note.Task, error)
}

// Outcome describes what Resolve did.
type Outcome struct {
	Classification note.Classification `json:"classification"`
	Category       note.Category       `json:"category"`
	Kind           note.Kind           `json:"kind"`
	EntityID       string              `json:"entity_id"`

	// Duplicate is true when an existing entity's mention count was incremented.
	Duplicate bool `json:"duplicate"`

	// Matched is false when a task_update hint matched nothing and a new task was created.
	Matched   bool           `json:"matched"`
	Operation note.Operation `json:"operation,omitempty"`

	Thought *note.Thought `json:"thought,omitempty"`
	Task    *note.Task    `json:"task,omitempty"`
}

// Options configures a Resolver.
type Options struct {
	Now      func() time.Time
	Location *time.Location
	NewID    func() string
}

// Resolver applies classification results to the store.
type Resolver struct {
	db      *sql.DB
	matcher match.DuplicateMatcher
	targets TargetResolver
	opts    Options
	log     *logger.Logger
}

// New returns a Resolver. Duplicate detection uses matcher; update targets
// always go through targets.
func New(database *sql.DB, matcher match.DuplicateMatcher, targets TargetResolver, opts Options, log *logger.Logger) *Resolver {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.NewID == nil {
		opts.NewID = func() string { return ulid.Make().String() }
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Resolver{
		db:      database,
		matcher: matcher,
		targets: targets,
		opts:    opts,
		log:     log.With("component", "resolve"),
	}
}

// Resolve creates or mutates exactly one entity for res and invalidates the
// matcher's cache afterwards. captureID is recorded on created entities.
func (r *Resolver) Resolve(ctx context.Context, captureID string, res *note.ClassificationResult) (*Outcome, error) {
	var (
		out *Outcome
		err error
	)
	switch res.Type {
	case note.ClassThought:
		out, err = r.resolveThought(ctx, captureID, res)
	case note.ClassTaskCreate:
		out, err = r.resolveTaskCreate(ctx, captureID, res)
	case note.ClassTaskUpdate:
		out, err = r.resolveTaskUpdate(ctx, captureID, res)
	default:
		return nil, fmt.Errorf("cannot resolve classification %q", res.Type)
	}
	if err != nil {
		return nil, err
	}
	out.Classification = res.Type
	out.Category = res.Category
	return out, nil
}

func (r *Resolver) resolveThought(ctx context.Context, captureID string, res *note.ClassificationResult) (*Outcome, error) {
	text := res.Thought.Text
	out := &Outcome{Kind: note.KindThought, Matched: true}

	if m := r.findDuplicate(ctx, note.KindThought, text); m != nil {
		th, err := db.IncrementThoughtMention(ctx, r.db, m.ID, r.opts.Now().Unix())
		if err != nil {
			return nil, fmt.Errorf("increment thought mention: %w", err)
		}
		r.matcher.Invalidate()
		out.Duplicate, out.EntityID, out.Thought = true, th.ID, th
		return out, nil
	}

	now := r.opts.Now().Unix()
	th := &note.Thought{
		ID:            r.opts.NewID(),
		CreatedAt:     now,
		UpdatedAt:     now,
		Text:          text,
		CanonicalText: note.Normalize(text),
		Category:      res.Category,
		MentionCount:  1,
		CaptureID:     optional(captureID),
	}
	if err := db.InsertThought(ctx, r.db, th); err != nil {
		return nil, fmt.Errorf("insert thought: %w", err)
	}
	r.matcher.Invalidate()
	out.EntityID, out.Thought = th.ID, th
	return out, nil
}

func (r *Resolver) resolveTaskCreate(ctx context.Context, captureID string, res *note.ClassificationResult) (*Outcome, error) {
	p := res.TaskCreate
	out := &Outcome{Kind: note.KindTask, Matched: true}

	if m := r.findDuplicate(ctx, note.KindTask, p.Title); m != nil {
		task, err := db.IncrementTaskMention(ctx, r.db, m.ID, r.opts.Now().Unix())
		if err != nil {
			return nil, fmt.Errorf("increment task mention: %w", err)
		}
		r.matcher.Invalidate()
		out.Duplicate, out.EntityID, out.Task = true, task.ID, task
		return out, nil
	}

	due := p.DueDate
	if due == "" {
		due = note.Today(r.opts.Now(), r.opts.Location)
	}
	task, err := r.insertTask(ctx, captureID, p.Title, due, res.Category)
	if err != nil {
		return nil, err
	}
	out.EntityID, out.Task = task.ID, task
	return out, nil
}

func (r *Resolver) resolveTaskUpdate(ctx context.Context, captureID string, res *note.ClassificationResult) (*Outcome, error) {
	p := res.TaskUpdate
	out := &Outcome{Kind: note.KindTask, Operation: p.Operation}

	target, err := r.targets.ResolveTarget(ctx, p.TargetHint)
	if err != nil {
		r.log.Warn("target resolution failed, treating as no match", "capture_id", captureID, "error", err)
		target = nil
	}

	if target == nil {
		// Unmatched updates become new commitments rather than being dropped.
		due := p.NewDueDate
		if due == "" {
			due = note.Today(r.opts.Now(), r.opts.Location)
		}
		task, err := r.insertTask(ctx, captureID, p.TargetHint, due, res.Category)
		if err != nil {
			return nil, err
		}
		r.log.Info("update target not found, created task", "capture_id", captureID, "task_id", task.ID)
		out.EntityID, out.Task = task.ID, task
		return out, nil
	}

	out.Matched = true
	out.EntityID = target.ID

	var patch db.TaskPatch
	switch p.Operation {
	case note.OpComplete:
		s := note.StatusDone
		patch.Status = &s
	case note.OpCancel:
		s := note.StatusCancelled
		patch.Status = &s
	case note.OpPostpone, note.OpSetDueDate:
		due := p.NewDueDate
		if due == "" {
			due = note.Tomorrow(r.opts.Now(), r.opts.Location)
		}
		patch.DueDate = &due
	case note.OpRename:
		// Renaming by voice is not supported yet; the task is returned unchanged.
		out.Task = target
		return out, nil
	default:
		return nil, fmt.Errorf("unknown operation %q", p.Operation)
	}

	task, err := db.PatchTask(ctx, r.db, target.ID, patch, r.opts.Now().Unix())
	if err != nil {
		return nil, fmt.Errorf("apply %s: %w", p.Operation, err)
	}
	r.matcher.Invalidate()
	out.Task = task
	return out, nil
}

func (r *Resolver) insertTask(ctx context.Context, captureID, title, due string, category note.Category) (*note.Task, error) {
	now := r.opts.Now().Unix()
	task := &note.Task{
		ID:             r.opts.NewID(),
		CreatedAt:      now,
		UpdatedAt:      now,
		Title:          strings.TrimSpace(title),
		CanonicalTitle: note.Normalize(title),
		DueDate:        due,
		Status:         note.StatusOpen,
		Category:       category,
		MentionCount:   1,
		CaptureID:      optional(captureID),
	}
	if err := db.InsertTask(ctx, r.db, task); err != nil {
		return nil, fmt.Errorf("insert task: %w", err)
	}
	r.matcher.Invalidate()
	return task, nil
}

// findDuplicate asks the matcher and degrades any failure to "no match".
func (r *Resolver) findDuplicate(ctx context.Context, kind note.Kind, text string) *match.Match {
	m, err := r.matcher.FindDuplicate(ctx, kind, text)
	if err != nil {
		r.log.Warn("duplicate matcher failed, treating as no match", "matcher", r.matcher.Name(), "kind", kind, "error", err)
		return nil
	}
	return m
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
