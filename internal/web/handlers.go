package web

import (
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hpungsan/jot/internal/errors"
	"github.com/hpungsan/jot/internal/ops"
)

// maxJSONBody bounds JSON request bodies.
const maxJSONBody = 64 << 10

// captureAccepted is the immediate answer to a capture submission.
type captureAccepted struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// HandleHealth handles GET /healthz.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	renderJSON(w, http.StatusOK, map[string]any{"ok": true, "version": h.version})
}

// HandleCapture handles POST /captures. It accepts text or audio and responds
// before processing starts.
func (h *Handlers) HandleCapture(w http.ResponseWriter, r *http.Request) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	switch mediaType {
	case "multipart/form-data":
		h.captureAudio(w, r)
	case "application/json", "":
		h.captureText(w, r)
	default:
		h.renderError(w, r, errors.NewInvalidRequest("content type must be application/json or multipart/form-data"))
	}
}

func (h *Handlers) captureText(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody)).Decode(&body); err != nil {
		h.renderError(w, r, errors.NewInvalidRequest("invalid JSON body"))
		return
	}

	c, err := h.capturer.SubmitText(r.Context(), body.Text)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusAccepted, captureAccepted{ID: c.ID, Status: "processing"})
}

func (h *Handlers) captureAudio(w http.ResponseWriter, r *http.Request) {
	mr, err := r.MultipartReader()
	if err != nil {
		h.renderError(w, r, errors.NewInvalidRequest("invalid multipart body"))
		return
	}

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			h.renderError(w, r, errors.NewInvalidRequest("invalid multipart body"))
			return
		}
		if part.FormName() != "audio" {
			part.Close()
			continue
		}

		// The audio store enforces the size limit while streaming, before any row exists.
		c, err := h.capturer.SubmitAudio(r.Context(), part, part.FileName())
		part.Close()
		if err != nil {
			h.renderError(w, r, err)
			return
		}
		renderJSON(w, http.StatusAccepted, captureAccepted{ID: c.ID, Status: "processing"})
		return
	}
	h.renderError(w, r, errors.NewInvalidRequest("audio file field is required"))
}

// HandleCaptureStatus handles GET /captures/{id}, a single poll of a capture.
func (h *Handlers) HandleCaptureStatus(w http.ResponseWriter, r *http.Request) {
	out, err := ops.FetchCapture(r.Context(), h.db, ops.FetchCaptureInput{
		ID:         r.PathValue("id"),
		IncludeRaw: parseBoolParam(r, "include_raw"),
	})
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, out)
}

// HandleCaptureEvents handles GET /captures/{id}/events with a one-shot stream
// that emits a single "complete" event and closes.
func (h *Handlers) HandleCaptureEvents(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	// Resolve unknown ids to a plain 404 before switching to event-stream.
	if _, err := ops.FetchCapture(r.Context(), h.db, ops.FetchCaptureInput{ID: id}); err != nil {
		h.renderError(w, r, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.renderError(w, r, errors.NewInternal(nil))
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	out, err := ops.AwaitCapture(r.Context(), h.db, h.registry, ops.PollSchedule(h.cfg, ops.WaitCaptureInput{ID: id}))
	if err != nil {
		// Client went away or the store failed; nothing useful can be sent.
		h.log.Debug("event stream ended", "capture_id", id, "error", err)
		return
	}
	if err := writeEvent(w, flusher, "complete", out.Result); err != nil {
		h.log.Debug("failed to write event", "capture_id", id, "error", err)
	}
}

// HandleCaptureDelete handles DELETE /captures/{id}.
func (h *Handlers) HandleCaptureDelete(w http.ResponseWriter, r *http.Request) {
	out, err := ops.DeleteCapture(r.Context(), h.db, h.audio, h.log, ops.DeleteCaptureInput{ID: r.PathValue("id")})
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, out)
}

// HandleTaskList handles GET /tasks.
func (h *Handlers) HandleTaskList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	out, err := ops.ListTasks(r.Context(), h.db, ops.ListTasksInput{
		Status:   q.Get("status"),
		Category: q.Get("category"),
		Limit:    parseIntParam(r, "limit", ops.DefaultListLimit),
		Offset:   parseIntParam(r, "offset", 0),
	})
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, out)
}

// HandleTaskUpdate handles PATCH /tasks/{id} with direct status/title/due edits.
func (h *Handlers) HandleTaskUpdate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Status  *string `json:"status"`
		Title   *string `json:"title"`
		DueDate *string `json:"due_date"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody)).Decode(&body); err != nil {
		h.renderError(w, r, errors.NewInvalidRequest("invalid JSON body"))
		return
	}

	out, err := ops.UpdateTask(r.Context(), h.db, h.matcher, ops.UpdateTaskInput{
		ID:      r.PathValue("id"),
		Status:  body.Status,
		Title:   body.Title,
		DueDate: body.DueDate,
	})
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, out)
}

// HandleThoughtList handles GET /thoughts.
func (h *Handlers) HandleThoughtList(w http.ResponseWriter, r *http.Request) {
	out, err := ops.ListThoughts(r.Context(), h.db, ops.ListThoughtsInput{
		Category: r.URL.Query().Get("category"),
		Limit:    parseIntParam(r, "limit", ops.DefaultListLimit),
		Offset:   parseIntParam(r, "offset", 0),
	})
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, out)
}

// HandleDigest handles GET /digest: overdue and due-today tasks plus top thoughts.
func (h *Handlers) HandleDigest(w http.ResponseWriter, r *http.Request) {
	out, err := ops.Digest(r.Context(), h.db, ops.DigestInput{
		Now:         time.Now(),
		Location:    h.cfg.Location(),
		TopThoughts: parseIntParam(r, "thoughts", ops.DefaultDigestThoughts),
		HTML:        strings.EqualFold(r.URL.Query().Get("format"), "html"),
	})
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, out)
}

// parseIntParam parses an integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	s := r.URL.Query().Get(name)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}

// parseBoolParam parses a boolean query parameter.
func parseBoolParam(r *http.Request, name string) bool {
	s := r.URL.Query().Get(name)
	return s == "true" || s == "1"
}
