package note

import "testing"

func TestIsNoise(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"you", true},
		{"You.", true},
		{"Bye!", true},
		{"Thanks for watching!", true},
		{"thank you", true},
		{".", true},
		{"?", true},
		{"", true},
		{"a", true},
		{"  !  ", true},
		{"ok", false},
		{"Buy groceries today", false},
		{"you should call mom", false},
	}
	for _, tt := range tests {
		if got := IsNoise(tt.input); got != tt.want {
			t.Errorf("IsNoise(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}
