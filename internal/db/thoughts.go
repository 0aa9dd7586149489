package db

import (
	"context"
	"database/sql"
	stderrors "errors"

	"github.com/hpungsan/jot/internal/errors"
	"github.com/hpungsan/jot/internal/note"
)

const thoughtColumns = `id, created_at, updated_at, text, canonical_text, category, mention_count, embedding, capture_id`

// ThoughtFilter narrows ListThoughts.
type ThoughtFilter struct {
	Category note.Category // empty means any
	Pagination
}

// InsertThought stores a new thought.
func InsertThought(ctx context.Context, db *sql.DB, t *note.Thought) error {
	if t.MentionCount < 1 {
		t.MentionCount = 1
	}
	query := `
		INSERT INTO thoughts (` + thoughtColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := db.ExecContext(ctx, query,
		t.ID, t.CreatedAt, t.UpdatedAt, t.Text, t.CanonicalText, string(t.Category),
		t.MentionCount, embeddingValue(t.Embedding), toNullString(t.CaptureID),
	)
	if err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// GetThought retrieves a thought by id.
func GetThought(ctx context.Context, db *sql.DB, id string) (*note.Thought, error) {
	row := db.QueryRowContext(ctx, `SELECT `+thoughtColumns+` FROM thoughts WHERE id = ?`, id)
	t, err := scanThought(row)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFound("thought", id)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return t, nil
}

// IncrementThoughtMention bumps mention_count by exactly one and returns the updated row.
func IncrementThoughtMention(ctx context.Context, db *sql.DB, id string, now int64) (*note.Thought, error) {
	result, err := db.ExecContext(ctx,
		`UPDATE thoughts SET mention_count = mention_count + 1, updated_at = ? WHERE id = ?`, now, id)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	if err := checkAffected(result); err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, errors.NewNotFound("thought", id)
		}
		return nil, errors.NewInternal(err)
	}
	return GetThought(ctx, db, id)
}

// SetThoughtEmbedding persists a computed embedding.
func SetThoughtEmbedding(ctx context.Context, db *sql.DB, id string, vec []float32) error {
	result, err := db.ExecContext(ctx, `UPDATE thoughts SET embedding = ? WHERE id = ?`, embeddingValue(vec), id)
	if err != nil {
		return errors.NewInternal(err)
	}
	if err := checkAffected(result); err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return errors.NewNotFound("thought", id)
		}
		return errors.NewInternal(err)
	}
	return nil
}

// TopThoughts returns the most-mentioned thoughts across all categories,
// ties broken by most recent update.
func TopThoughts(ctx context.Context, db *sql.DB, limit int) ([]note.Thought, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+thoughtColumns+` FROM thoughts
		 ORDER BY mention_count DESC, updated_at DESC, id DESC
		 LIMIT ?`, limit)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return collectThoughts(rows)
}

// RecentThoughts returns thoughts created at or after since, newest first.
func RecentThoughts(ctx context.Context, db *sql.DB, since int64) ([]note.Thought, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+thoughtColumns+` FROM thoughts
		 WHERE created_at >= ?
		 ORDER BY created_at DESC, id DESC`, since)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return collectThoughts(rows)
}

// ListThoughts returns thoughts newest first with the total matching count.
func ListThoughts(ctx context.Context, db *sql.DB, f ThoughtFilter) ([]note.Thought, int, error) {
	page := f.Pagination.normalized()

	where := ""
	var args []any
	if f.Category != "" {
		where = " WHERE category = ?"
		args = append(args, string(f.Category))
	}

	var total int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM thoughts`+where, args...).Scan(&total); err != nil {
		return nil, 0, errors.NewInternal(err)
	}

	rows, err := db.QueryContext(ctx,
		`SELECT `+thoughtColumns+` FROM thoughts`+where+` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		append(args, page.Limit, page.Offset)...)
	if err != nil {
		return nil, 0, errors.NewInternal(err)
	}
	thoughts, err := collectThoughts(rows)
	if err != nil {
		return nil, 0, err
	}
	return thoughts, total, nil
}

func collectThoughts(rows *sql.Rows) ([]note.Thought, error) {
	defer rows.Close()
	var out []note.Thought
	for rows.Next() {
		t, err := scanThought(rows)
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

func scanThought(row rowScanner) (*note.Thought, error) {
	var (
		t         note.Thought
		category  string
		embedding []byte
		captureID sql.NullString
	)
	err := row.Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt, &t.Text, &t.CanonicalText, &category,
		&t.MentionCount, &embedding, &captureID)
	if err != nil {
		return nil, err
	}
	t.Category = note.Category(category)
	t.Embedding = decodeEmbedding(embedding)
	t.CaptureID = fromNullString(captureID)
	return &t, nil
}
