package prune

import (
	"strconv"
	"strings"
	"testing"
)

func makeLines(n int) string {
	lines := make([]string, n)
	for i := 0; i < n; i++ {
		lines[i] = "line " + strconv.Itoa(i)
	}
	return strings.Join(lines, "\n")
}

// Invariant 4 (spec.md §8): KeptHead + KeptTail + Omitted == TotalLines.
func TestPrune_InvariantHolds(t *testing.T) {
	cases := []int{10, 100, 600, 601, 5000}
	for _, n := range cases {
		out := Prune(makeLines(n), DefaultOptions())
		if out.KeptHead+out.KeptTail+out.Omitted != out.TotalLines {
			t.Errorf("n=%d: %d+%d+%d != %d", n, out.KeptHead, out.KeptTail, out.Omitted, out.TotalLines)
		}
	}
}

func TestPrune_UnderThresholdUnchanged(t *testing.T) {
	text := makeLines(50)
	out := Prune(text, DefaultOptions())
	if out.Text != text {
		t.Errorf("expected unchanged text for small logs")
	}
	if out.Omitted != 0 {
		t.Errorf("expected no omission for small logs")
	}
}

func TestPrune_OverThresholdHasOneMarker(t *testing.T) {
	out := Prune(makeLines(1000), Options{Head: 100, Tail: 500})
	markerCount := strings.Count(out.Text, "lines omitted")
	if markerCount != 1 {
		t.Fatalf("expected exactly one omission marker, found %d", markerCount)
	}
	if out.KeptHead != 100 || out.KeptTail != 500 || out.Omitted != 400 {
		t.Errorf("unexpected split: head=%d tail=%d omitted=%d", out.KeptHead, out.KeptTail, out.Omitted)
	}
	if !strings.HasPrefix(out.Text, "line 0\n") {
		t.Errorf("expected head block to start with first line")
	}
	if !strings.HasSuffix(out.Text, "line 999") {
		t.Errorf("expected tail block to end with last line")
	}
}

func TestPrune_ExactBoundaryUnchanged(t *testing.T) {
	out := Prune(makeLines(600), Options{Head: 100, Tail: 500})
	if out.Omitted != 0 {
		t.Errorf("expected no omission exactly at head+tail boundary")
	}
}
