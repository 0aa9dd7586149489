// Package note defines captures and the thoughts and tasks they resolve into.
package note

// Classification is the outcome tag written on a capture once processing ends.
type Classification string

const (
	ClassThought    Classification = "thought"
	ClassTaskCreate Classification = "task_create"
	ClassTaskUpdate Classification = "task_update"
	ClassError      Classification = "error"

	// ClassTimeout is never persisted; it is delivered to waiters whose bound expired.
	ClassTimeout Classification = "timeout"
)

// Category is the life area a classified capture belongs to.
type Category string

const (
	CategoryPersonal Category = "personal"
	CategoryBusiness Category = "business"
	CategoryUnknown  Category = "unknown"
)

// Valid reports whether c is one of the persisted categories.
func (c Category) Valid() bool {
	return c == CategoryPersonal || c == CategoryBusiness
}

// Status is a task's lifecycle state.
type Status string

const (
	StatusOpen      Status = "open"
	StatusDone      Status = "done"
	StatusCancelled Status = "cancelled"
)

// Valid reports whether s is a known task status.
func (s Status) Valid() bool {
	return s == StatusOpen || s == StatusDone || s == StatusCancelled
}

// Stage tracks where a capture is in the pipeline.
type Stage string

const (
	StageReceived     Stage = "received"
	StageTranscribing Stage = "transcribing"
	StageTranscribed  Stage = "transcribed"
	StageClassifying  Stage = "classifying"
	StageClassified   Stage = "classified"
	StageResolving    Stage = "resolving"
	StageDone         Stage = "done"
	StageError        Stage = "error"
)

// Capture is one raw voice or text submission and its processing history.
type Capture struct {
	ID        string `json:"id"`
	CreatedAt int64  `json:"created_at"`

	// AudioPath references the stored audio blob (nil for text captures).
	AudioPath *string `json:"audio_path,omitempty"`

	Transcript *string `json:"transcript,omitempty"`

	// Classification stays nil until the resolved entity is queryable.
	Classification *Classification `json:"classification,omitempty"`
	Category       *Category       `json:"category,omitempty"`

	// RawLLMOutput is the unparsed classifier payload, kept for audit.
	RawLLMOutput *string `json:"raw_llm_output,omitempty"`

	Stage Stage `json:"stage"`
}

// Done reports whether the capture has a terminal classification tag.
func (c *Capture) Done() bool {
	return c.Classification != nil
}

// Thought is a persisted non-actionable reflection.
type Thought struct {
	ID            string   `json:"id"`
	CreatedAt     int64    `json:"created_at"`
	UpdatedAt     int64    `json:"updated_at"`
	Text          string   `json:"text"`
	CanonicalText string   `json:"canonical_text"`
	Category      Category `json:"category"`
	MentionCount  int      `json:"mention_count"`

	// CaptureID is nil once the owning capture is deleted.
	CaptureID *string `json:"capture_id,omitempty"`

	Embedding []float32 `json:"-"`
}

// Task is a persisted actionable commitment.
type Task struct {
	ID             string   `json:"id"`
	CreatedAt      int64    `json:"created_at"`
	UpdatedAt      int64    `json:"updated_at"`
	Title          string   `json:"title"`
	CanonicalTitle string   `json:"canonical_title"`
	DueDate        string   `json:"due_date"` // YYYY-MM-DD
	Status         Status   `json:"status"`
	Category       Category `json:"category"`
	MentionCount   int      `json:"mention_count"`
	CaptureID      *string  `json:"capture_id,omitempty"`

	// Embedding is populated lazily by the embedding matcher.
	Embedding []float32 `json:"-"`
}
