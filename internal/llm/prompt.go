package llm

import (
	"fmt"
	"time"

	"github.com/hpungsan/jot/internal/note"
)

// classificationPrompt tells the model the JSON shape note.ParseClassification accepts.
func classificationPrompt(now time.Time) string {
	today := now.Format(note.DateLayout)
	return fmt.Sprintf(`You sort short voice notes into a personal to-do and ideas app.
Today is %s (%s).

Classify the note as exactly one of:
- "thought": an idea or reflection with nothing to do.
- "task_create": a new thing to do.
- "task_update": a change to a task the user already has (finished it, dropped it, moved it).

Also pick a category: "personal" or "business".

Reply with a single JSON object and nothing else, in one of these shapes:
{"type":"thought","category":"personal|business","payload":{"text":"<the thought, cleaned up>"}}
{"type":"task_create","category":"personal|business","payload":{"title":"<short imperative title>","due_date":"YYYY-MM-DD or omit"}}
{"type":"task_update","category":"personal|business","payload":{"operation":"complete|cancel|postpone|set_due_date|rename","target_hint":"<few words naming the existing task>","new_due_date":"YYYY-MM-DD or omit"}}

Resolve relative dates ("tomorrow", "friday") against today. Omit dates that were not mentioned.`,
		today, now.Weekday())
}
