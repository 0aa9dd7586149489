package main

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/hpungsan/jot/internal/cron"
	"github.com/hpungsan/jot/internal/errors"
	"github.com/hpungsan/jot/internal/mcp"
	"github.com/hpungsan/jot/internal/note"
	"github.com/hpungsan/jot/internal/ops"
	"github.com/hpungsan/jot/internal/telegram"
	"github.com/hpungsan/jot/internal/web"
)

// maxStdinBytes bounds text read from stdin for a capture.
const maxStdinBytes = 64 << 10

// backfillTimeout bounds one backfill pass.
const backfillTimeout = 5 * time.Minute

// newCLIApp creates the CLI application with all commands.
func newCLIApp(e *cliEnv) *cli.App {
	app := &cli.App{
		Name:    "jot",
		Usage:   "Capture voice and text notes as tasks and thoughts",
		Version: Version,
		Commands: []*cli.Command{
			serveCmd(e),
			mcpCmd(e),
			captureCmd(e),
			statusCmd(e),
			tasksCmd(e),
			thoughtsCmd(e),
			taskCmd(e),
			deleteCmd(e),
			backfillCmd(e),
			digestCmd(e),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// serveCmd runs the HTTP API, the Telegram channel and the backfill schedule.
func serveCmd(e *cliEnv) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP API (plus Telegram and the backfill schedule when configured)",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "bind", Usage: "Bind address (overrides config)"},
			&cli.IntFlag{Name: "port", Aliases: []string{"p"}, Usage: "Port (overrides config)"},
		},
		Action: func(c *cli.Context) error {
			rt, err := e.runtime()
			if err != nil {
				return outputError(err)
			}

			ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			resumed, err := rt.pipeline.Resume(ctx)
			if err != nil {
				return outputError(err)
			}
			if resumed > 0 {
				e.log.Info("resumed unfinished captures", "count", resumed)
			}

			var scheduler *cron.Scheduler
			if bf, ok := rt.matcher.(cron.Backfiller); ok {
				scheduler, err = cron.New(e.cfg.BackfillSchedule, bf, backfillTimeout, e.log)
				if err != nil {
					return outputError(errors.NewInvalidRequest(fmt.Sprintf("backfill_schedule: %v", err)))
				}
			}
			scheduler.Start(ctx)

			tgDone := make(chan struct{})
			if e.cfg.Telegram.Token != "" {
				ch, err := telegram.New(telegram.Deps{
					DB:       e.db,
					Config:   e.cfg,
					Capturer: rt.pipeline,
					Registry: rt.registry,
					Log:      e.log,
				})
				if err != nil {
					return outputError(err)
				}
				go func() {
					defer close(tgDone)
					if err := ch.Run(ctx); err != nil {
						e.log.Error("telegram stopped", "error", err)
					}
				}()
			} else {
				close(tgDone)
			}

			bind := e.cfg.Web.Bind
			if c.IsSet("bind") {
				bind = c.String("bind")
			}
			port := e.cfg.Web.Port
			if c.IsSet("port") {
				port = c.Int("port")
			}
			h := web.NewHandlers(web.Deps{
				DB:       e.db,
				Config:   e.cfg,
				Capturer: rt.pipeline,
				Registry: rt.registry,
				Matcher:  rt.matcher,
				Audio:    rt.audio,
				Log:      e.log,
				Version:  Version,
			})
			runErr := web.Run(web.NewServer(h, bind, port), e.log)

			stop()
			scheduler.Stop()
			<-tgDone
			rt.pipeline.Wait()
			if runErr != nil {
				return outputError(runErr)
			}
			return nil
		},
	}
}

// mcpCmd serves the MCP tools over stdio.
func mcpCmd(e *cliEnv) *cli.Command {
	return &cli.Command{
		Name:  "mcp",
		Usage: "Serve MCP tools over stdio",
		Action: func(c *cli.Context) error {
			if unknown := mcp.ValidateDisabledTools(e.cfg.DisabledTools); len(unknown) > 0 {
				e.log.Warn("unknown tools in disabled_tools", "tools", strings.Join(unknown, ","))
			}
			rt, err := e.runtime()
			if err != nil {
				return outputError(err)
			}
			if _, err := rt.pipeline.Resume(c.Context); err != nil {
				return outputError(err)
			}

			err = mcp.Run(mcp.Deps{
				DB:       e.db,
				Config:   e.cfg,
				Capturer: rt.pipeline,
				Registry: rt.registry,
				Matcher:  rt.matcher,
				Log:      e.log,
			}, Version)
			rt.pipeline.Wait()
			return err
		},
	}
}

// captureCmd submits a text or audio capture and drains processing before exiting.
func captureCmd(e *cliEnv) *cli.Command {
	return &cli.Command{
		Name:      "capture",
		Usage:     "Capture a note (text from arguments or stdin, or --audio FILE)",
		ArgsUsage: "[text...]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "audio", Aliases: []string{"a"}, Usage: "Path to an audio recording"},
			&cli.BoolFlag{Name: "wait", Aliases: []string{"w"}, Usage: "Wait for the classification result"},
		},
		Action: func(c *cli.Context) error {
			rt, err := e.runtime()
			if err != nil {
				return outputError(err)
			}
			defer rt.pipeline.Wait()

			ctx := c.Context
			var capture *note.Capture
			if path := c.String("audio"); path != "" {
				f, err := os.Open(path)
				if err != nil {
					return outputError(errors.NewInvalidRequest(fmt.Sprintf("open audio: %v", err)))
				}
				defer f.Close()
				capture, err = rt.pipeline.SubmitAudio(ctx, f, filepath.Base(path))
				if err != nil {
					return outputError(err)
				}
			} else {
				text, err := captureText(c)
				if err != nil {
					return outputError(err)
				}
				capture, err = rt.pipeline.SubmitText(ctx, text)
				if err != nil {
					return outputError(err)
				}
			}

			if !c.Bool("wait") {
				return outputJSON(c.App.Writer, map[string]string{"id": capture.ID, "status": "processing"})
			}
			output, err := ops.AwaitCapture(ctx, e.db, rt.registry, ops.PollSchedule(e.cfg, ops.WaitCaptureInput{ID: capture.ID}))
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c.App.Writer, output)
		},
	}
}

// statusCmd shows a capture, optionally polling until it completes.
func statusCmd(e *cliEnv) *cli.Command {
	return &cli.Command{
		Name:      "status",
		Usage:     "Show a capture's processing status",
		ArgsUsage: "<capture-id>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "raw", Usage: "Include the raw classifier output"},
			&cli.BoolFlag{Name: "poll", Usage: "Poll until the capture completes (for captures processed by another jot process)"},
			&cli.DurationFlag{Name: "max-wait", Usage: "Polling bound (defaults to poll_max_wait_seconds)"},
		},
		Action: func(c *cli.Context) error {
			id := c.Args().First()
			if c.Bool("poll") {
				input := ops.PollSchedule(e.cfg, ops.WaitCaptureInput{ID: id, MaxWait: c.Duration("max-wait")})
				output, err := ops.WaitCapture(c.Context, e.db, input)
				if err != nil {
					return outputError(err)
				}
				return outputJSON(c.App.Writer, output)
			}

			output, err := ops.FetchCapture(c.Context, e.db, ops.FetchCaptureInput{
				ID:         id,
				IncludeRaw: c.Bool("raw"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c.App.Writer, output)
		},
	}
}

// tasksCmd lists tasks.
func tasksCmd(e *cliEnv) *cli.Command {
	return &cli.Command{
		Name:  "tasks",
		Usage: "List tasks by due date",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "status", Aliases: []string{"s"}, Usage: "Filter by status: open|done|cancelled"},
			&cli.StringFlag{Name: "category", Aliases: []string{"c"}, Usage: "Filter by category: personal|business"},
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: ops.DefaultListLimit, Usage: "Maximum results"},
			&cli.IntFlag{Name: "offset", Usage: "Skip first N results"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.ListTasks(c.Context, e.db, ops.ListTasksInput{
				Status:   c.String("status"),
				Category: c.String("category"),
				Limit:    c.Int("limit"),
				Offset:   c.Int("offset"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c.App.Writer, output)
		},
	}
}

// thoughtsCmd lists thoughts.
func thoughtsCmd(e *cliEnv) *cli.Command {
	return &cli.Command{
		Name:  "thoughts",
		Usage: "List thoughts, newest first",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "category", Aliases: []string{"c"}, Usage: "Filter by category: personal|business"},
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: ops.DefaultListLimit, Usage: "Maximum results"},
			&cli.IntFlag{Name: "offset", Usage: "Skip first N results"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.ListThoughts(c.Context, e.db, ops.ListThoughtsInput{
				Category: c.String("category"),
				Limit:    c.Int("limit"),
				Offset:   c.Int("offset"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c.App.Writer, output)
		},
	}
}

// taskCmd groups the direct task edits.
func taskCmd(e *cliEnv) *cli.Command {
	status := func(name, usage string, s note.Status) *cli.Command {
		return &cli.Command{
			Name:      name,
			Usage:     usage,
			ArgsUsage: "<task-id>",
			Action: func(c *cli.Context) error {
				value := string(s)
				return e.updateTask(c, ops.UpdateTaskInput{ID: c.Args().First(), Status: &value})
			},
		}
	}

	return &cli.Command{
		Name:  "task",
		Usage: "Edit a task",
		Subcommands: []*cli.Command{
			status("done", "Mark a task done", note.StatusDone),
			status("cancel", "Cancel a task", note.StatusCancelled),
			status("reopen", "Reopen a task", note.StatusOpen),
			{
				Name:      "postpone",
				Usage:     "Move a task's due date (default: tomorrow)",
				ArgsUsage: "<task-id>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "to", Usage: "New due date (YYYY-MM-DD)"},
				},
				Action: func(c *cli.Context) error {
					due := c.String("to")
					if due == "" {
						due = note.Tomorrow(time.Now(), e.cfg.Location())
					}
					return e.updateTask(c, ops.UpdateTaskInput{ID: c.Args().First(), DueDate: &due})
				},
			},
			{
				Name:      "edit",
				Usage:     "Change a task's title or due date",
				ArgsUsage: "<task-id>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "title", Aliases: []string{"t"}, Usage: "New title"},
					&cli.StringFlag{Name: "due", Aliases: []string{"d"}, Usage: "New due date (YYYY-MM-DD)"},
				},
				Action: func(c *cli.Context) error {
					input := ops.UpdateTaskInput{ID: c.Args().First()}
					if c.IsSet("title") {
						title := c.String("title")
						input.Title = &title
					}
					if c.IsSet("due") {
						due := c.String("due")
						input.DueDate = &due
					}
					return e.updateTask(c, input)
				},
			},
		},
	}
}

// updateTask applies a direct edit. Match caches live in server processes, so
// there is nothing to invalidate here.
func (e *cliEnv) updateTask(c *cli.Context, input ops.UpdateTaskInput) error {
	output, err := ops.UpdateTask(c.Context, e.db, nil, input)
	if err != nil {
		return outputError(err)
	}
	return outputJSON(c.App.Writer, output)
}

// deleteCmd removes a capture and its audio.
func deleteCmd(e *cliEnv) *cli.Command {
	return &cli.Command{
		Name:      "delete",
		Usage:     "Delete a capture and its recording (derived tasks and thoughts are kept)",
		ArgsUsage: "<capture-id>",
		Action: func(c *cli.Context) error {
			output, err := ops.DeleteCapture(c.Context, e.db, e.audioStore(), e.log, ops.DeleteCaptureInput{
				ID: c.Args().First(),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c.App.Writer, output)
		},
	}
}

// backfillCmd computes missing embeddings now.
func backfillCmd(e *cliEnv) *cli.Command {
	return &cli.Command{
		Name:  "backfill",
		Usage: "Compute missing embeddings for open tasks and thoughts",
		Action: func(c *cli.Context) error {
			rt, err := e.runtime()
			if err != nil {
				return outputError(err)
			}
			bf, ok := rt.matcher.(cron.Backfiller)
			if !ok {
				return outputError(errors.NewInvalidRequest(
					fmt.Sprintf("backfill requires the embedding matcher (configured: %s)", rt.matcher.Name())))
			}
			if err := cron.RunOnce(c.Context, bf, backfillTimeout, e.log); err != nil {
				return outputError(err)
			}
			return outputJSON(c.App.Writer, map[string]any{"matcher": rt.matcher.Name(), "backfilled": true})
		},
	}
}

// digestCmd prints today's digest.
func digestCmd(e *cliEnv) *cli.Command {
	return &cli.Command{
		Name:  "digest",
		Usage: "Print overdue and due-today tasks plus top thoughts",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "thoughts", Value: ops.DefaultDigestThoughts, Usage: "How many thoughts to include"},
			&cli.BoolFlag{Name: "html", Usage: "Print HTML instead of markdown"},
			&cli.BoolFlag{Name: "json", Usage: "Print the full digest as JSON"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.Digest(c.Context, e.db, ops.DigestInput{
				Now:         time.Now(),
				Location:    e.cfg.Location(),
				TopThoughts: c.Int("thoughts"),
				HTML:        c.Bool("html"),
			})
			if err != nil {
				return outputError(err)
			}
			switch {
			case c.Bool("json"):
				return outputJSON(c.App.Writer, output)
			case c.Bool("html"):
				_, err = io.WriteString(c.App.Writer, output.HTML)
			default:
				_, err = io.WriteString(c.App.Writer, output.Markdown)
			}
			return err
		},
	}
}

// Helper functions

// outputJSON writes result as indented JSON.
func outputJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	if jErr, ok := errors.As(err); ok {
		return cli.Exit(fmt.Sprintf("[%s] %s", jErr.Code, jErr.Message), 1)
	}
	if stderrors.Is(err, context.Canceled) {
		return cli.Exit("interrupted", 130)
	}
	return cli.Exit(err.Error(), 1)
}

// captureText joins positional arguments, or reads piped stdin when there are none.
func captureText(c *cli.Context) (string, error) {
	if c.NArg() > 0 {
		return strings.Join(c.Args().Slice(), " "), nil
	}
	if c.App.Reader == os.Stdin && !stdinHasData() {
		return "", errors.NewInvalidRequest("text must be given as arguments or piped via stdin")
	}
	return readWithLimit(c.App.Reader, maxStdinBytes)
}

// stdinHasData returns true if stdin has piped data (not a terminal).
func stdinHasData() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}

// readWithLimit reads r up to limit bytes and trims surrounding whitespace.
func readWithLimit(r io.Reader, limit int64) (string, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return "", errors.NewInternal(err)
	}
	if int64(len(data)) > limit {
		return "", errors.NewPayloadTooLarge(limit, int64(len(data)))
	}
	return strings.TrimSpace(string(data)), nil
}
