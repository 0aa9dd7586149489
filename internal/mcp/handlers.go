package mcp

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/jot/internal/config"
	"github.com/hpungsan/jot/internal/errors"
	"github.com/hpungsan/jot/internal/logger"
	"github.com/hpungsan/jot/internal/notify"
	"github.com/hpungsan/jot/internal/ops"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	db       *sql.DB
	cfg      *config.Config
	capturer TextCapturer
	registry *notify.Registry
	matcher  ops.Invalidator
	log      *logger.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(deps Deps) *Handlers {
	log := deps.Log
	if log == nil {
		log = logger.Nop()
	}
	return &Handlers{
		db:       deps.DB,
		cfg:      deps.Config,
		capturer: deps.Capturer,
		registry: deps.Registry,
		matcher:  deps.Matcher,
		log:      log.With("component", "mcp"),
	}
}

// Request types for each tool

// CaptureTextRequest represents the arguments for capture_text.
type CaptureTextRequest struct {
	Text string `json:"text"`
}

// CaptureStatusRequest represents the arguments for capture_status.
type CaptureStatusRequest struct {
	ID         string `json:"id"`
	IncludeRaw bool   `json:"include_raw,omitempty"`
}

// CaptureWaitRequest represents the arguments for capture_wait.
type CaptureWaitRequest struct {
	ID string `json:"id"`
}

// TaskListRequest represents the arguments for task_list.
type TaskListRequest struct {
	Status   string `json:"status,omitempty"`
	Category string `json:"category,omitempty"`
	Limit    int    `json:"limit,omitempty"`
	Offset   int    `json:"offset,omitempty"`
}

// TaskUpdateRequest represents the arguments for task_update.
type TaskUpdateRequest struct {
	ID      string  `json:"id"`
	Status  *string `json:"status,omitempty"`
	Title   *string `json:"title,omitempty"`
	DueDate *string `json:"due_date,omitempty"`
}

// ThoughtListRequest represents the arguments for thought_list.
type ThoughtListRequest struct {
	Category string `json:"category,omitempty"`
	Limit    int    `json:"limit,omitempty"`
	Offset   int    `json:"offset,omitempty"`
}

// DigestRequest represents the arguments for digest.
type DigestRequest struct {
	Thoughts int `json:"thoughts,omitempty"`
}

// Handler implementations

// HandleCaptureText handles the capture_text tool call.
func (h *Handlers) HandleCaptureText(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[CaptureTextRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	c, err := h.capturer.SubmitText(ctx, input.Text)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(map[string]any{
		"id":     c.ID,
		"status": "processing",
	})
}

// HandleCaptureStatus handles the capture_status tool call.
func (h *Handlers) HandleCaptureStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[CaptureStatusRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.FetchCapture(ctx, h.db, ops.FetchCaptureInput{
		ID:         input.ID,
		IncludeRaw: input.IncludeRaw,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleCaptureWait handles the capture_wait tool call.
func (h *Handlers) HandleCaptureWait(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[CaptureWaitRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.AwaitCapture(ctx, h.db, h.registry, ops.PollSchedule(h.cfg, ops.WaitCaptureInput{ID: input.ID}))
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleTaskList handles the task_list tool call.
func (h *Handlers) HandleTaskList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[TaskListRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.ListTasks(ctx, h.db, ops.ListTasksInput{
		Status:   input.Status,
		Category: input.Category,
		Limit:    input.Limit,
		Offset:   input.Offset,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleTaskUpdate handles the task_update tool call.
func (h *Handlers) HandleTaskUpdate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[TaskUpdateRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.UpdateTask(ctx, h.db, h.matcher, ops.UpdateTaskInput{
		ID:      input.ID,
		Status:  input.Status,
		Title:   input.Title,
		DueDate: input.DueDate,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleThoughtList handles the thought_list tool call.
func (h *Handlers) HandleThoughtList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ThoughtListRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.ListThoughts(ctx, h.db, ops.ListThoughtsInput{
		Category: input.Category,
		Limit:    input.Limit,
		Offset:   input.Offset,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleDigest handles the digest tool call.
func (h *Handlers) HandleDigest(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[DigestRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Digest(ctx, h.db, ops.DigestInput{
		Now:         time.Now(),
		Location:    h.cfg.Location(),
		TopThoughts: input.Thoughts,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// decode unmarshals MCP request arguments into a typed struct by
// round-tripping through JSON, so numbers and optional fields land safely.
func decode[T any](req mcp.CallToolRequest) (T, error) {
	var result T
	b, err := json.Marshal(req.GetArguments())
	if err != nil {
		return result, fmt.Errorf("marshal args: %w", err)
	}
	if err := json.Unmarshal(b, &result); err != nil {
		return result, fmt.Errorf("unmarshal args: %w", err)
	}
	return result, nil
}

// Result helpers

// errorResult creates an MCP error result from any error.
// Uses IsError: true so MCP clients recognize failures properly.
// Internal error details are never exposed.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	if jErr, ok := errors.As(err); ok {
		errorObj := map[string]any{
			"code":    jErr.Code,
			"message": jErr.Message,
			"status":  jErr.Status,
		}
		if jErr.Code != errors.ErrInternal && jErr.Details != nil {
			errorObj["details"] = jErr.Details
		}
		payload = map[string]any{"error": errorObj}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":    errors.ErrInternal,
				"message": "an internal error occurred",
				"status":  500,
			},
		}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
