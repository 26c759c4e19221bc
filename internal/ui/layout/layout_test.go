package layout

import (
	"strings"
	"testing"
)

func TestTail(t *testing.T) {
	lines := []string{"a", "b", "c", "d"}

	tests := []struct {
		n    int
		want string
	}{
		{0, ""},
		{2, "c,d"},
		{4, "a,b,c,d"},
		{10, "a,b,c,d"},
	}
	for _, tt := range tests {
		if got := strings.Join(Tail(lines, tt.n), ","); got != tt.want {
			t.Errorf("Tail(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}

func TestIsTooSmall(t *testing.T) {
	if !IsTooSmall(MinWidth-1, MinHeight) {
		t.Error("expected narrow terminal to be too small")
	}
	if !IsTooSmall(MinWidth, MinHeight-1) {
		t.Error("expected short terminal to be too small")
	}
	if IsTooSmall(MinWidth, MinHeight) {
		t.Error("expected minimum size to fit")
	}
}

func TestRenderHeaderShowsStatus(t *testing.T) {
	h := RenderHeader("Encounter", "case_uti_001 · in progress", 100)
	for _, want := range []string{"MediSim", "Encounter", "case_uti_001"} {
		if !strings.Contains(h, want) {
			t.Errorf("header missing %q", want)
		}
	}
}
