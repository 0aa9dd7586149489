package mcp

import "github.com/mark3labs/mcp-go/mcp"

var captureTextToolDef = mcp.NewTool("capture_text",
	mcp.WithDescription("Capture a short note. It is classified as a thought, a new task or an update to an existing task, and deduplicated against what is already stored. Returns immediately with the capture id; use capture_wait for the outcome."),
	mcp.WithString("text",
		mcp.Required(),
		mcp.Description("The note as the user said or typed it"),
	),
)

var captureStatusToolDef = mcp.NewTool("capture_status",
	mcp.WithDescription("Get a capture's processing stage and, once finished, its classification and category."),
	mcp.WithReadOnlyHintAnnotation(true),
	mcp.WithString("id",
		mcp.Required(),
		mcp.Description("Capture id returned by capture_text"),
	),
	mcp.WithBoolean("include_raw",
		mcp.Description("Include the raw classifier output (default: false)"),
	),
)

var captureWaitToolDef = mcp.NewTool("capture_wait",
	mcp.WithDescription("Block until a capture finishes and return {classification, category}. Returns classification \"timeout\" if processing takes longer than the configured wait."),
	mcp.WithReadOnlyHintAnnotation(true),
	mcp.WithString("id",
		mcp.Required(),
		mcp.Description("Capture id returned by capture_text"),
	),
)

var taskListToolDef = mcp.NewTool("task_list",
	mcp.WithDescription("List tasks ordered by due date."),
	mcp.WithReadOnlyHintAnnotation(true),
	mcp.WithString("status",
		mcp.Description("Filter by status (default: any)"),
		mcp.Enum("open", "done", "cancelled"),
	),
	mcp.WithString("category",
		mcp.Description("Filter by category (default: any)"),
		mcp.Enum("personal", "business"),
	),
	mcp.WithNumber("limit",
		mcp.Description("Maximum number of tasks (default: 20, max: 100)"),
	),
	mcp.WithNumber("offset",
		mcp.Description("Number of tasks to skip"),
	),
)

var taskUpdateToolDef = mcp.NewTool("task_update",
	mcp.WithDescription("Edit a task directly: change its status, title or due date."),
	mcp.WithDestructiveHintAnnotation(false),
	mcp.WithString("id",
		mcp.Required(),
		mcp.Description("Task id"),
	),
	mcp.WithString("status",
		mcp.Description("New status"),
		mcp.Enum("open", "done", "cancelled"),
	),
	mcp.WithString("title",
		mcp.Description("New title"),
	),
	mcp.WithString("due_date",
		mcp.Description("New due date as YYYY-MM-DD"),
	),
)

var thoughtListToolDef = mcp.NewTool("thought_list",
	mcp.WithDescription("List captured thoughts, newest first, with how often each was mentioned."),
	mcp.WithReadOnlyHintAnnotation(true),
	mcp.WithString("category",
		mcp.Description("Filter by category (default: any)"),
		mcp.Enum("personal", "business"),
	),
	mcp.WithNumber("limit",
		mcp.Description("Maximum number of thoughts (default: 20, max: 100)"),
	),
	mcp.WithNumber("offset",
		mcp.Description("Number of thoughts to skip"),
	),
)

var digestToolDef = mcp.NewTool("digest",
	mcp.WithDescription("Summarize overdue and due-today tasks plus the most mentioned thoughts as markdown."),
	mcp.WithReadOnlyHintAnnotation(true),
	mcp.WithNumber("thoughts",
		mcp.Description("How many thoughts to include (default: 5)"),
	),
)
