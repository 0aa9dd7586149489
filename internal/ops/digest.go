package ops

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/yuin/goldmark"

	"github.com/hpungsan/jot/internal/db"
	"github.com/hpungsan/jot/internal/note"
)

// DefaultDigestThoughts is how many thoughts a digest lists when unset.
const DefaultDigestThoughts = 5

// DigestInput contains parameters for the Digest operation.
type DigestInput struct {
	Now         time.Time
	Location    *time.Location
	TopThoughts int
	HTML        bool // also render the markdown to HTML
}

// DigestOutput contains the result of the Digest operation.
type DigestOutput struct {
	Date        string         `json:"date"`
	Overdue     []note.Task    `json:"overdue"`
	DueToday    []note.Task    `json:"due_today"`
	TopThoughts []note.Thought `json:"top_thoughts"`
	Markdown    string         `json:"markdown"`
	HTML        string         `json:"html,omitempty"`
}

// Digest summarizes open tasks that are overdue or due today, plus the most
// mentioned thoughts, as markdown.
func Digest(ctx context.Context, database *sql.DB, input DigestInput) (*DigestOutput, error) {
	if input.Now.IsZero() {
		input.Now = time.Now()
	}
	if input.Location == nil {
		input.Location = time.Local
	}
	if input.TopThoughts <= 0 {
		input.TopThoughts = DefaultDigestThoughts
	}
	today := note.Today(input.Now, input.Location)

	open, err := db.OpenTasks(ctx, database)
	if err != nil {
		return nil, err
	}
	out := &DigestOutput{
		Date:     today,
		Overdue:  []note.Task{},
		DueToday: []note.Task{},
	}
	for _, t := range open {
		switch {
		case t.DueDate < today:
			out.Overdue = append(out.Overdue, t)
		case t.DueDate == today:
			out.DueToday = append(out.DueToday, t)
		}
	}
	// Oldest due date first; ISO dates sort lexically.
	sort.SliceStable(out.Overdue, func(i, j int) bool { return out.Overdue[i].DueDate < out.Overdue[j].DueDate })

	thoughts, err := db.TopThoughts(ctx, database, input.TopThoughts)
	if err != nil {
		return nil, err
	}
	if thoughts == nil {
		thoughts = []note.Thought{}
	}
	out.TopThoughts = thoughts

	out.Markdown = digestMarkdown(out)
	if input.HTML {
		var buf bytes.Buffer
		if err := goldmark.Convert([]byte(out.Markdown), &buf); err != nil {
			return nil, fmt.Errorf("render digest: %w", err)
		}
		out.HTML = buf.String()
	}
	return out, nil
}

func digestMarkdown(d *DigestOutput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Digest for %s\n", d.Date)

	writeTasks := func(heading string, tasks []note.Task, showDue bool) {
		fmt.Fprintf(&b, "\n## %s\n\n", heading)
		if len(tasks) == 0 {
			b.WriteString("Nothing here.\n")
			return
		}
		for _, t := range tasks {
			fmt.Fprintf(&b, "- %s", escapeMarkdown(t.Title))
			if showDue {
				fmt.Fprintf(&b, " (due %s)", t.DueDate)
			}
			if t.MentionCount > 1 {
				fmt.Fprintf(&b, " ×%d", t.MentionCount)
			}
			b.WriteByte('\n')
		}
	}
	writeTasks("Overdue", d.Overdue, true)
	writeTasks("Due today", d.DueToday, false)

	b.WriteString("\n## On your mind\n\n")
	if len(d.TopThoughts) == 0 {
		b.WriteString("Nothing here.\n")
	}
	for _, th := range d.TopThoughts {
		fmt.Fprintf(&b, "- %s", escapeMarkdown(th.Text))
		if th.MentionCount > 1 {
			fmt.Fprintf(&b, " ×%d", th.MentionCount)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

var markdownEscaper = strings.NewReplacer(
	`\`, `\\`, "*", `\*`, "_", `\_`, "`", "\\`", "[", `\[`, "]", `\]`, "<", "&lt;", ">", "&gt;",
)

// escapeMarkdown keeps user text from being read as markup.
func escapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}
