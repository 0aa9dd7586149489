package ops

import (
	"testing"

	"github.com/hpungsan/jot/internal/errors"
	"github.com/hpungsan/jot/internal/note"
)

func TestValidateID(t *testing.T) {
	id, err := ValidateID("task", "  01ABC123 ")
	if err != nil {
		t.Fatalf("ValidateID failed: %v", err)
	}
	if id != "01ABC123" {
		t.Errorf("id = %q, want %q", id, "01ABC123")
	}

	_, err = ValidateID("task", "   ")
	if !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("ValidateID(blank) error = %v, want INVALID_REQUEST", err)
	}
}

func TestParseCategory(t *testing.T) {
	tests := []struct {
		in      string
		want    note.Category
		wantErr bool
	}{
		{"", "", false},
		{"Personal", note.CategoryPersonal, false},
		{" business ", note.CategoryBusiness, false},
		{"unknown", "", true},
		{"work", "", true},
	}
	for _, tt := range tests {
		got, err := ParseCategory(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseCategory(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseCategory(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseStatus(t *testing.T) {
	if got, err := ParseStatus("DONE"); err != nil || got != note.StatusDone {
		t.Errorf("ParseStatus(DONE) = %q, %v", got, err)
	}
	if _, err := ParseStatus("archived"); !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("ParseStatus(archived) error = %v, want INVALID_REQUEST", err)
	}
}

func TestPage_Bounds(t *testing.T) {
	if p := page(0, -3); p.Limit != DefaultListLimit || p.Offset != 0 {
		t.Errorf("page(0,-3) = %+v", p)
	}
	if p := page(1000, 5); p.Limit != MaxListLimit || p.Offset != 5 {
		t.Errorf("page(1000,5) = %+v", p)
	}
}
