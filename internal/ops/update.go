package ops

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/hpungsan/jot/internal/db"
	"github.com/hpungsan/jot/internal/errors"
	"github.com/hpungsan/jot/internal/note"
)

// UpdateTaskInput contains parameters for the UpdateTask operation.
type UpdateTaskInput struct {
	ID string

	// Editable fields (nil = don't change)
	Status  *string
	Title   *string
	DueDate *string // YYYY-MM-DD

	// Now stamps updated_at. Zero means the current time.
	Now time.Time
}

// UpdateTaskOutput contains the result of the UpdateTask operation.
type UpdateTaskOutput struct {
	Task note.Task `json:"task"`
}

// UpdateTask applies a direct user edit to a task and invalidates the
// duplicate matcher so the change is visible to the next capture.
func UpdateTask(ctx context.Context, database *sql.DB, inv Invalidator, input UpdateTaskInput) (*UpdateTaskOutput, error) {
	id, err := ValidateID("task", input.ID)
	if err != nil {
		return nil, err
	}

	// Validate at least one editable field is provided
	if input.Status == nil && input.Title == nil && input.DueDate == nil {
		return nil, errors.NewInvalidRequest("at least one of status, title or due_date must be provided")
	}

	var patch db.TaskPatch
	if input.Status != nil {
		status, err := ParseStatus(*input.Status)
		if err != nil {
			return nil, err
		}
		if status == "" {
			return nil, errors.NewInvalidRequest("status must not be empty")
		}
		patch.Status = &status
	}
	if input.Title != nil {
		title := strings.TrimSpace(*input.Title)
		if title == "" {
			return nil, errors.NewInvalidRequest("title must not be empty")
		}
		canonical := note.Normalize(title)
		patch.Title = &title
		patch.CanonicalTitle = &canonical
	}
	if input.DueDate != nil {
		due := strings.TrimSpace(*input.DueDate)
		if !note.ValidDate(due) {
			return nil, errors.NewInvalidRequest("due_date must be YYYY-MM-DD")
		}
		patch.DueDate = &due
	}

	now := input.Now
	if now.IsZero() {
		now = time.Now()
	}
	task, err := db.PatchTask(ctx, database, id, patch, now.Unix())
	if err != nil {
		return nil, err
	}
	if inv != nil {
		inv.Invalidate()
	}

	return &UpdateTaskOutput{Task: *task}, nil
}
