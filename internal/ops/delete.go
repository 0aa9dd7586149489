package ops

import (
	"context"
	"database/sql"

	"github.com/hpungsan/jot/internal/db"
	"github.com/hpungsan/jot/internal/logger"
)

// AudioRemover deletes stored recordings.
type AudioRemover interface {
	Remove(path string) error
}

// DeleteCaptureInput contains parameters for the DeleteCapture operation.
type DeleteCaptureInput struct {
	ID string
}

// DeleteCaptureOutput contains the result of the DeleteCapture operation.
type DeleteCaptureOutput struct {
	Deleted bool   `json:"deleted"`
	ID      string `json:"id"`
}

// DeleteCapture hard-deletes a capture and its recording. Thoughts and tasks
// it produced stay, with their capture reference cleared.
func DeleteCapture(ctx context.Context, database *sql.DB, audio AudioRemover, log *logger.Logger, input DeleteCaptureInput) (*DeleteCaptureOutput, error) {
	id, err := ValidateID("capture", input.ID)
	if err != nil {
		return nil, err
	}

	// Verify it exists (GetCapture returns ErrNotFound if not)
	c, err := db.GetCapture(ctx, database, id)
	if err != nil {
		return nil, err
	}

	if err := db.DeleteCapture(ctx, database, id); err != nil {
		return nil, err
	}

	if c.AudioPath != nil && audio != nil {
		// The row is gone; a leftover file is only wasted space.
		if err := audio.Remove(*c.AudioPath); err != nil && log != nil {
			log.Warn("failed to remove audio", "capture_id", id, "error", err)
		}
	}

	return &DeleteCaptureOutput{
		Deleted: true,
		ID:      id,
	}, nil
}
