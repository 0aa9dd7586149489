package db

import (
	"context"
	"database/sql"
	stderrors "errors"
	"strings"

	"github.com/hpungsan/jot/internal/errors"
	"github.com/hpungsan/jot/internal/note"
)

const taskColumns = `id, created_at, updated_at, title, canonical_title, due_date, status, category, mention_count, embedding, capture_id`

// TaskFilter narrows ListTasks. Empty fields match everything.
type TaskFilter struct {
	Status   note.Status
	Category note.Category
	Pagination
}

// TaskPatch lists the task fields to change. Nil fields are left alone.
type TaskPatch struct {
	Title          *string
	CanonicalTitle *string
	DueDate        *string
	Status         *note.Status
}

// InsertTask stores a new task.
func InsertTask(ctx context.Context, db *sql.DB, t *note.Task) error {
	if t.MentionCount < 1 {
		t.MentionCount = 1
	}
	if t.Status == "" {
		t.Status = note.StatusOpen
	}
	query := `
		INSERT INTO tasks (` + taskColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := db.ExecContext(ctx, query,
		t.ID, t.CreatedAt, t.UpdatedAt, t.Title, t.CanonicalTitle, t.DueDate, string(t.Status),
		string(t.Category), t.MentionCount, embeddingValue(t.Embedding), toNullString(t.CaptureID),
	)
	if err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// GetTask retrieves a task by id.
func GetTask(ctx context.Context, db *sql.DB, id string) (*note.Task, error) {
	row := db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFound("task", id)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return t, nil
}

// IncrementTaskMention bumps mention_count by exactly one, refreshes updated_at
// and returns the updated row.
func IncrementTaskMention(ctx context.Context, db *sql.DB, id string, now int64) (*note.Task, error) {
	result, err := db.ExecContext(ctx,
		`UPDATE tasks SET mention_count = mention_count + 1, updated_at = ? WHERE id = ?`, now, id)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	if err := checkTaskAffected(result, id); err != nil {
		return nil, err
	}
	return GetTask(ctx, db, id)
}

// PatchTask applies p in a single UPDATE, refreshes updated_at and returns the updated row.
// An empty patch still refreshes updated_at.
func PatchTask(ctx context.Context, db *sql.DB, id string, p TaskPatch, now int64) (*note.Task, error) {
	sets := []string{"updated_at = ?"}
	args := []any{now}

	if p.Title != nil {
		sets = append(sets, "title = ?")
		args = append(args, *p.Title)
	}
	if p.CanonicalTitle != nil {
		sets = append(sets, "canonical_title = ?")
		args = append(args, *p.CanonicalTitle)
	}
	if p.DueDate != nil {
		sets = append(sets, "due_date = ?")
		args = append(args, *p.DueDate)
	}
	if p.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*p.Status))
	}
	// A new title invalidates the stored vector.
	if p.Title != nil || p.CanonicalTitle != nil {
		sets = append(sets, "embedding = NULL")
	}

	query := `UPDATE tasks SET ` + strings.Join(sets, ", ") + ` WHERE id = ?`
	result, err := db.ExecContext(ctx, query, append(args, id)...)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	if err := checkTaskAffected(result, id); err != nil {
		return nil, err
	}
	return GetTask(ctx, db, id)
}

// SetTaskEmbedding persists a computed embedding.
func SetTaskEmbedding(ctx context.Context, db *sql.DB, id string, vec []float32) error {
	result, err := db.ExecContext(ctx, `UPDATE tasks SET embedding = ? WHERE id = ?`, embeddingValue(vec), id)
	if err != nil {
		return errors.NewInternal(err)
	}
	return checkTaskAffected(result, id)
}

// TopOpenTasks returns open tasks across all categories ordered by mention count,
// then most recent update.
func TopOpenTasks(ctx context.Context, db *sql.DB, limit int) ([]note.Task, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+taskColumns+` FROM tasks
		 WHERE status = 'open'
		 ORDER BY mention_count DESC, updated_at DESC, id DESC
		 LIMIT ?`, limit)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return collectTasks(rows)
}

// RecentOpenTasks returns open tasks created at or after since, newest first.
func RecentOpenTasks(ctx context.Context, db *sql.DB, since int64) ([]note.Task, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+taskColumns+` FROM tasks
		 WHERE status = 'open' AND created_at >= ?
		 ORDER BY created_at DESC, id DESC`, since)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return collectTasks(rows)
}

// OpenTasks returns every open task, newest first.
func OpenTasks(ctx context.Context, db *sql.DB) ([]note.Task, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+taskColumns+` FROM tasks
		 WHERE status = 'open'
		 ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return collectTasks(rows)
}

// FindOpenTaskContaining returns the most recently created open task whose canonical
// title contains fragment, or nil if none does. fragment must already be normalized.
func FindOpenTaskContaining(ctx context.Context, db *sql.DB, fragment string) (*note.Task, error) {
	if fragment == "" {
		return nil, nil
	}
	row := db.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM tasks
		 WHERE status = 'open' AND instr(canonical_title, ?) > 0
		 ORDER BY created_at DESC, id DESC
		 LIMIT 1`, fragment)
	t, err := scanTask(row)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return t, nil
}

// ListTasks returns tasks ordered by due date then creation, with the total matching count.
func ListTasks(ctx context.Context, db *sql.DB, f TaskFilter) ([]note.Task, int, error) {
	page := f.Pagination.normalized()

	var conds []string
	var args []any
	if f.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.Category != "" {
		conds = append(conds, "category = ?")
		args = append(args, string(f.Category))
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tasks`+where, args...).Scan(&total); err != nil {
		return nil, 0, errors.NewInternal(err)
	}

	rows, err := db.QueryContext(ctx,
		`SELECT `+taskColumns+` FROM tasks`+where+` ORDER BY due_date ASC, created_at DESC, id DESC LIMIT ? OFFSET ?`,
		append(args, page.Limit, page.Offset)...)
	if err != nil {
		return nil, 0, errors.NewInternal(err)
	}
	tasks, err := collectTasks(rows)
	if err != nil {
		return nil, 0, err
	}
	return tasks, total, nil
}

func checkTaskAffected(result sql.Result, id string) error {
	if err := checkAffected(result); err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return errors.NewNotFound("task", id)
		}
		return errors.NewInternal(err)
	}
	return nil
}

func collectTasks(rows *sql.Rows) ([]note.Task, error) {
	defer rows.Close()
	var out []note.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, errors.NewInternal(err)
		}
		out = append(out, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return out, nil
}

func scanTask(row rowScanner) (*note.Task, error) {
	var (
		t         note.Task
		status    string
		category  string
		embedding []byte
		captureID sql.NullString
	)
	err := row.Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt, &t.Title, &t.CanonicalTitle, &t.DueDate,
		&status, &category, &t.MentionCount, &embedding, &captureID)
	if err != nil {
		return nil, err
	}
	t.Status = note.Status(status)
	t.Category = note.Category(category)
	t.Embedding = decodeEmbedding(embedding)
	t.CaptureID = fromNullString(captureID)
	return &t, nil
}
