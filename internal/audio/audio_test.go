package audio

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hpungsan/jot/internal/errors"
)

func TestStore_SaveOpenRemove(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "audio"), 1024)

	path, err := s.Save("01CAP", "memo.M4A", strings.NewReader("fake audio"))
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if filepath.Base(path) != "01CAP.m4a" {
		t.Errorf("path = %s, want 01CAP.m4a", path)
	}

	f, err := s.Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	data, _ := io.ReadAll(f)
	f.Close()
	if string(data) != "fake audio" {
		t.Errorf("content = %q", data)
	}

	if err := s.Remove(path); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("file still exists after Remove")
	}
	if err := s.Remove(path); err != nil {
		t.Errorf("Remove() of missing file error = %v", err)
	}
	if _, err := s.Open(path); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("Open() of missing file error = %v, want NOT_FOUND", err)
	}
}

func TestStore_TooLarge(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir, 8)

	_, err := s.Save("01BIG", "big.ogg", bytes.NewReader(make([]byte, 64)))
	if !errors.Is(err, errors.ErrPayloadTooLarge) {
		t.Fatalf("Save() error = %v, want PAYLOAD_TOO_LARGE", err)
	}
	if _, statErr := os.Stat(filepath.Join(dir, "01BIG.ogg")); !os.IsNotExist(statErr) {
		t.Errorf("oversized upload left a file behind")
	}
}

func TestExtension(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"voice.ogg", ".ogg"},
		{"Voice.WAV", ".wav"},
		{"noext", ".bin"},
		{"weird.m4a;rm", ".bin"},
		{"../../etc/passwd", ".bin"},
		{"clip.webm", ".webm"},
	}
	for _, tt := range tests {
		if got := extension(tt.in); got != tt.want {
			t.Errorf("extension(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
