package note

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Kind selects which entity set a duplicate search runs against.
type Kind string

const (
	KindThought Kind = "thought"
	KindTask    Kind = "task"
)

// Operation is the mutation a task_update utterance asks for.
type Operation string

const (
	OpComplete   Operation = "complete"
	OpCancel     Operation = "cancel"
	OpPostpone   Operation = "postpone"
	OpSetDueDate Operation = "set_due_date"
	OpRename     Operation = "rename"
)

func (o Operation) valid() bool {
	switch o {
	case OpComplete, OpCancel, OpPostpone, OpSetDueDate, OpRename:
		return true
	}
	return false
}

// ThoughtPayload is the body of a thought classification.
type ThoughtPayload struct {
	Text string `json:"text"`
}

// TaskCreatePayload is the body of a task_create classification.
type TaskCreatePayload struct {
	Title   string `json:"title"`
	DueDate string `json:"due_date,omitempty"`
}

// TaskUpdatePayload is the body of a task_update classification.
type TaskUpdatePayload struct {
	Operation  Operation `json:"operation"`
	TargetHint string    `json:"target_hint"`
	NewDueDate string    `json:"new_due_date,omitempty"`
}

// ClassificationResult is the classifier's structured intent for one transcript.
// Exactly one payload pointer is set, matching Type.
type ClassificationResult struct {
	Type     Classification
	Category Category

	Thought    *ThoughtPayload
	TaskCreate *TaskCreatePayload
	TaskUpdate *TaskUpdatePayload
}

type wireClassification struct {
	Type     Classification  `json:"type"`
	Category Category        `json:"category"`
	Payload  json.RawMessage `json:"payload"`
}

// ParseClassification decodes and validates a raw classifier payload.
// Unknown type tags, a missing category and empty required fields are errors.
func ParseClassification(raw []byte) (*ClassificationResult, error) {
	var w wireClassification
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("decode classification: %w", err)
	}
	w.Category = Category(strings.ToLower(strings.TrimSpace(string(w.Category))))
	if !w.Category.Valid() {
		return nil, fmt.Errorf("invalid category %q", w.Category)
	}
	if len(w.Payload) == 0 || string(w.Payload) == "null" {
		return nil, fmt.Errorf("classification %q has no payload", w.Type)
	}

	res := &ClassificationResult{Type: w.Type, Category: w.Category}
	switch w.Type {
	case ClassThought:
		var p ThoughtPayload
		if err := json.Unmarshal(w.Payload, &p); err != nil {
			return nil, fmt.Errorf("decode thought payload: %w", err)
		}
		p.Text = strings.TrimSpace(p.Text)
		if p.Text == "" {
			return nil, fmt.Errorf("thought payload missing text")
		}
		res.Thought = &p

	case ClassTaskCreate:
		var p TaskCreatePayload
		if err := json.Unmarshal(w.Payload, &p); err != nil {
			return nil, fmt.Errorf("decode task_create payload: %w", err)
		}
		p.Title = strings.TrimSpace(p.Title)
		if p.Title == "" {
			return nil, fmt.Errorf("task_create payload missing title")
		}
		if p.DueDate = strings.TrimSpace(p.DueDate); p.DueDate != "" && !ValidDate(p.DueDate) {
			return nil, fmt.Errorf("task_create due_date %q is not YYYY-MM-DD", p.DueDate)
		}
		res.TaskCreate = &p

	case ClassTaskUpdate:
		var p TaskUpdatePayload
		if err := json.Unmarshal(w.Payload, &p); err != nil {
			return nil, fmt.Errorf("decode task_update payload: %w", err)
		}
		if !p.Operation.valid() {
			return nil, fmt.Errorf("unknown task_update operation %q", p.Operation)
		}
		p.TargetHint = strings.TrimSpace(p.TargetHint)
		if p.TargetHint == "" {
			return nil, fmt.Errorf("task_update payload missing target_hint")
		}
		if p.NewDueDate = strings.TrimSpace(p.NewDueDate); p.NewDueDate != "" && !ValidDate(p.NewDueDate) {
			return nil, fmt.Errorf("task_update new_due_date %q is not YYYY-MM-DD", p.NewDueDate)
		}
		res.TaskUpdate = &p

	default:
		return nil, fmt.Errorf("unknown classification type %q", w.Type)
	}
	return res, nil
}
