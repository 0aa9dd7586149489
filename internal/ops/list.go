package ops

import (
	"context"
	"database/sql"

	"github.com/hpungsan/jot/internal/db"
	"github.com/hpungsan/jot/internal/note"
)

// ListTasksInput contains parameters for the ListTasks operation.
type ListTasksInput struct {
	Status   string // open, done, cancelled; empty means any
	Category string // personal, business; empty means any
	Limit    int    // default: 20, max: 100
	Offset   int    // default: 0
}

// ListTasksOutput contains the result of the ListTasks operation.
type ListTasksOutput struct {
	Items      []note.Task `json:"items"`
	Pagination Pagination  `json:"pagination"`
	Sort       string      `json:"sort"`
}

// ListTasks retrieves tasks ordered by due date with pagination.
func ListTasks(ctx context.Context, database *sql.DB, input ListTasksInput) (*ListTasksOutput, error) {
	status, err := ParseStatus(input.Status)
	if err != nil {
		return nil, err
	}
	category, err := ParseCategory(input.Category)
	if err != nil {
		return nil, err
	}
	p := page(input.Limit, input.Offset)

	tasks, total, err := db.ListTasks(ctx, database, db.TaskFilter{
		Status:     status,
		Category:   category,
		Pagination: p,
	})
	if err != nil {
		return nil, err
	}

	// Ensure we return an empty array rather than nil
	if tasks == nil {
		tasks = []note.Task{}
	}

	return &ListTasksOutput{
		Items:      tasks,
		Pagination: pagination(p, len(tasks), total),
		Sort:       "due_date_asc",
	}, nil
}

// ListThoughtsInput contains parameters for the ListThoughts operation.
type ListThoughtsInput struct {
	Category string
	Limit    int
	Offset   int
}

// ListThoughtsOutput contains the result of the ListThoughts operation.
type ListThoughtsOutput struct {
	Items      []note.Thought `json:"items"`
	Pagination Pagination     `json:"pagination"`
	Sort       string         `json:"sort"`
}

// ListThoughts retrieves thoughts, newest first.
func ListThoughts(ctx context.Context, database *sql.DB, input ListThoughtsInput) (*ListThoughtsOutput, error) {
	category, err := ParseCategory(input.Category)
	if err != nil {
		return nil, err
	}
	p := page(input.Limit, input.Offset)

	thoughts, total, err := db.ListThoughts(ctx, database, db.ThoughtFilter{
		Category:   category,
		Pagination: p,
	})
	if err != nil {
		return nil, err
	}
	if thoughts == nil {
		thoughts = []note.Thought{}
	}

	return &ListThoughtsOutput{
		Items:      thoughts,
		Pagination: pagination(p, len(thoughts), total),
		Sort:       "created_at_desc",
	}, nil
}
