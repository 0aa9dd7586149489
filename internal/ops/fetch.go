package ops

import (
	"context"
	"database/sql"

	"github.com/hpungsan/jot/internal/db"
	"github.com/hpungsan/jot/internal/note"
	"github.com/hpungsan/jot/internal/notify"
)

// FetchCaptureInput contains parameters for the FetchCapture operation.
type FetchCaptureInput struct {
	ID         string
	IncludeRaw bool // include raw classifier output and audio path
}

// FetchCaptureOutput contains the result of the FetchCapture operation.
type FetchCaptureOutput struct {
	// embedded (copy, not pointer)
	note.Capture
	Done   bool           `json:"done"`
	Result *notify.Result `json:"result,omitempty"`
}

// FetchCapture retrieves a capture and, once finished, its completion result.
func FetchCapture(ctx context.Context, database *sql.DB, input FetchCaptureInput) (*FetchCaptureOutput, error) {
	id, err := ValidateID("capture", input.ID)
	if err != nil {
		return nil, err
	}

	c, err := db.GetCapture(ctx, database, id)
	if err != nil {
		return nil, err
	}

	output := &FetchCaptureOutput{
		Capture: *c,
		Done:    c.Done(),
	}
	if !input.IncludeRaw {
		output.RawLLMOutput = nil
		output.AudioPath = nil
	}
	if output.Done {
		res := notify.ResultFor(c)
		output.Result = &res
	}
	return output, nil
}
