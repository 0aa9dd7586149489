// Package ops implements the read and edit operations shared by the HTTP,
// MCP, CLI and Telegram surfaces.
package ops

import (
	"strings"

	"github.com/hpungsan/jot/internal/db"
	"github.com/hpungsan/jot/internal/errors"
	"github.com/hpungsan/jot/internal/note"
)

// Pagination limits
const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// Pagination contains pagination metadata for list operations.
type Pagination struct {
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"has_more"`
	Total   int  `json:"total"`
}

// Invalidator is notified after a direct edit changes the candidate set.
type Invalidator interface {
	Invalidate()
}

// ValidateID trims id and rejects an empty value.
func ValidateID(kind, id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", errors.NewInvalidRequest(kind + " id is required")
	}
	return id, nil
}

// ParseCategory accepts "", "personal" or "business" in any case.
func ParseCategory(s string) (note.Category, error) {
	c := note.Category(strings.ToLower(strings.TrimSpace(s)))
	if c == "" || c.Valid() {
		return c, nil
	}
	return "", errors.NewInvalidRequest("category must be personal or business")
}

// ParseStatus accepts "", "open", "done" or "cancelled" in any case.
func ParseStatus(s string) (note.Status, error) {
	st := note.Status(strings.ToLower(strings.TrimSpace(s)))
	if st == "" || st.Valid() {
		return st, nil
	}
	return "", errors.NewInvalidRequest("status must be open, done or cancelled")
}

// page applies limit defaults and bounds.
func page(limit, offset int) db.Pagination {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	return db.Pagination{Limit: limit, Offset: max(offset, 0)}
}

func pagination(p db.Pagination, n, total int) Pagination {
	return Pagination{
		Limit:   p.Limit,
		Offset:  p.Offset,
		HasMore: p.Offset+n < total,
		Total:   total,
	}
}
