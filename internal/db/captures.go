package db

import (
	"context"
	"database/sql"
	stderrors "errors"

	"github.com/hpungsan/jot/internal/errors"
	"github.com/hpungsan/jot/internal/note"
)

const captureColumns = `id, created_at, audio_path, transcript, classification, category, raw_llm_output, stage`

// InsertCapture stores a new capture row.
func InsertCapture(ctx context.Context, db *sql.DB, c *note.Capture) error {
	return insertCapture(ctx, db, c, sql.NullString{}, sql.NullInt64{})
}

// InsertClaimedCapture stores a new capture row already claimed by owner, so
// no other process can pick it up between the insert and processing.
func InsertClaimedCapture(ctx context.Context, db *sql.DB, c *note.Capture, owner string, now int64) error {
	return insertCapture(ctx, db, c,
		sql.NullString{String: owner, Valid: true},
		sql.NullInt64{Int64: now, Valid: true})
}

func insertCapture(ctx context.Context, db *sql.DB, c *note.Capture, owner sql.NullString, claimedAt sql.NullInt64) error {
	if c.Stage == "" {
		c.Stage = note.StageReceived
	}
	query := `
		INSERT INTO captures (` + captureColumns + `, claimed_by, claimed_at)
		VALUES (?, ?, ?, ?, NULL, NULL, NULL, ?, ?, ?)
	`
	_, err := db.ExecContext(ctx, query,
		c.ID, c.CreatedAt, toNullString(c.AudioPath), toNullString(c.Transcript), string(c.Stage),
		owner, claimedAt,
	)
	if err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// ClaimCapture takes the processing lease on an untagged capture for owner.
// It succeeds when the capture is unclaimed, already held by owner, or held by
// a lease older than staleBefore. It reports false for tagged, missing or
// foreign-held captures.
func ClaimCapture(ctx context.Context, db *sql.DB, id, owner string, now, staleBefore int64) (bool, error) {
	result, err := db.ExecContext(ctx, `
		UPDATE captures SET claimed_by = ?, claimed_at = ?
		WHERE id = ? AND classification IS NULL
		  AND (claimed_by IS NULL OR claimed_by = ? OR claimed_at < ?)
	`, owner, now, id, owner, staleBefore)
	if err != nil {
		return false, errors.NewInternal(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, errors.NewInternal(err)
	}
	return n == 1, nil
}

// GetCapture retrieves a capture by id.
func GetCapture(ctx context.Context, db *sql.DB, id string) (*note.Capture, error) {
	row := db.QueryRowContext(ctx, `SELECT `+captureColumns+` FROM captures WHERE id = ?`, id)
	c, err := scanCapture(row)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFound("capture", id)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return c, nil
}

// SetCaptureStage records pipeline progress.
func SetCaptureStage(ctx context.Context, db *sql.DB, id string, stage note.Stage) error {
	return execCapture(ctx, db, id, `UPDATE captures SET stage = ? WHERE id = ?`, string(stage), id)
}

// SetCaptureTranscript stores the transcript and advances the stage to transcribed.
func SetCaptureTranscript(ctx context.Context, db *sql.DB, id, transcript string) error {
	return execCapture(ctx, db, id,
		`UPDATE captures SET transcript = ?, stage = ? WHERE id = ?`,
		transcript, string(note.StageTranscribed), id)
}

// SetCaptureRawOutput stores the unparsed classifier payload and advances the stage to classified.
// It never touches the classification tag.
func SetCaptureRawOutput(ctx context.Context, db *sql.DB, id, raw string) error {
	return execCapture(ctx, db, id,
		`UPDATE captures SET raw_llm_output = ?, stage = ? WHERE id = ?`,
		raw, string(note.StageClassified), id)
}

// CompleteCapture writes the terminal classification tag and category in one statement.
// Callers must only invoke it after the resolved entity is persisted.
func CompleteCapture(ctx context.Context, db *sql.DB, id string, class note.Classification, category note.Category) error {
	stage := note.StageDone
	if class == note.ClassError {
		stage = note.StageError
	}
	var cat sql.NullString
	if category.Valid() {
		cat = sql.NullString{String: string(category), Valid: true}
	}
	return execCapture(ctx, db, id,
		`UPDATE captures SET classification = ?, category = ?, stage = ? WHERE id = ?`,
		string(class), cat, string(stage), id)
}

// DeleteCapture hard-deletes a capture. Thought and task references become NULL.
func DeleteCapture(ctx context.Context, db *sql.DB, id string) error {
	return execCapture(ctx, db, id, `DELETE FROM captures WHERE id = ?`, id)
}

// ListCaptures returns captures newest first.
func ListCaptures(ctx context.Context, db *sql.DB, page Pagination) ([]note.Capture, int, error) {
	page = page.normalized()

	var total int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM captures`).Scan(&total); err != nil {
		return nil, 0, errors.NewInternal(err)
	}

	rows, err := db.QueryContext(ctx,
		`SELECT `+captureColumns+` FROM captures ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		page.Limit, page.Offset)
	if err != nil {
		return nil, 0, errors.NewInternal(err)
	}
	defer rows.Close()

	var out []note.Capture
	for rows.Next() {
		c, err := scanCapture(rows)
		if err != nil {
			return nil, 0, errors.NewInternal(err)
		}
		out = append(out, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, errors.NewInternal(err)
	}
	return out, total, nil
}

// PendingCaptures returns captures that never received a classification tag,
// oldest first. Claimed captures are included; ClaimCapture decides ownership.
func PendingCaptures(ctx context.Context, db *sql.DB) ([]note.Capture, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+captureColumns+` FROM captures WHERE classification IS NULL ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	var out []note.Capture
	for rows.Next() {
		c, err := scanCapture(rows)
		if err != nil {
			return nil, errors.NewInternal(err)
		}
		out = append(out, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return out, nil
}

func execCapture(ctx context.Context, db *sql.DB, id, query string, args ...any) error {
	result, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return errors.NewInternal(err)
	}
	if err := checkAffected(result); err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return errors.NewNotFound("capture", id)
		}
		return errors.NewInternal(err)
	}
	return nil
}

func scanCapture(row rowScanner) (*note.Capture, error) {
	var (
		c          note.Capture
		audioPath  sql.NullString
		transcript sql.NullString
		class      sql.NullString
		category   sql.NullString
		raw        sql.NullString
		stage      string
	)
	if err := row.Scan(&c.ID, &c.CreatedAt, &audioPath, &transcript, &class, &category, &raw, &stage); err != nil {
		return nil, err
	}
	c.AudioPath = fromNullString(audioPath)
	c.Transcript = fromNullString(transcript)
	c.RawLLMOutput = fromNullString(raw)
	c.Stage = note.Stage(stage)
	if class.Valid {
		v := note.Classification(class.String)
		c.Classification = &v
	}
	if category.Valid {
		v := note.Category(category.String)
		c.Category = &v
	}
	return &c, nil
}
