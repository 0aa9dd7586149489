package web

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/hpungsan/jot/internal/errors"
)

// renderJSON writes a JSON response.
func renderJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// renderError writes err as {"error": {code, message, status}}.
// Errors without a code are reported as internal.
func (h *Handlers) renderError(w http.ResponseWriter, r *http.Request, err error) {
	jErr, ok := errors.As(err)
	if !ok {
		jErr = errors.NewInternal(err)
	}
	if jErr.Status >= http.StatusInternalServerError {
		h.log.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}

	renderJSON(w, jErr.Status, map[string]any{
		"error": map[string]any{
			"code":    string(jErr.Code),
			"message": jErr.Message,
			"status":  jErr.Status,
		},
	})
}

// writeEvent writes one server-sent event and flushes it.
func writeEvent(w http.ResponseWriter, flusher http.Flusher, event string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\n", event); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
