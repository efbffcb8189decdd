package diff

import (
	"strings"
	"testing"

	"github.com/neopilotai/FORGE/pkg/types"
)

func TestCompute_SimpleModification(t *testing.T) {
	old := "line1\nline2\nline3\nline4\nline5\n"
	new_ := "line1\nline2\nCHANGED\nline4\nline5\n"
	patch := Compute("f.txt", old, new_, false, false)
	if len(patch.Hunks) != 1 {
		t.Fatalf("expected one hunk, got %d", len(patch.Hunks))
	}
}

func TestApplyPatch_RoundTripsToNewText(t *testing.T) {
	old := "alpha\nbeta\ngamma\ndelta\nepsilon\n"
	newText := "alpha\nbeta\nGAMMA\ndelta\nepsilon\n"
	patch := Compute("f.txt", old, newText, false, false)

	got, err := ApplyPatch(old, patch)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != strings.TrimRight(newText, "\n") {
		t.Errorf("expected applied patch to reconstruct new text.\ngot:  %q\nwant: %q", got, strings.TrimRight(newText, "\n"))
	}
}

func TestReversePatch_AppliedUndoesForwardPatch(t *testing.T) {
	old := "one\ntwo\nthree\nfour\n"
	newText := "one\nTWO\nthree\nfour\n"
	patch := Compute("f.txt", old, newText, false, false)

	forward, err := ApplyPatch(old, patch)
	if err != nil {
		t.Fatalf("unexpected error applying forward patch: %v", err)
	}

	reversed := ReversePatch(patch)
	back, err := ApplyPatch(forward, reversed)
	if err != nil {
		t.Fatalf("unexpected error applying reverse patch: %v", err)
	}
	if back != strings.TrimRight(old, "\n") {
		t.Errorf("expected reverse patch to restore original.\ngot:  %q\nwant: %q", back, strings.TrimRight(old, "\n"))
	}
}

func TestReversePatch_SwapsNewAndDeletedFlags(t *testing.T) {
	patch := Compute("f.txt", "", "content\n", true, false)
	reversed := ReversePatch(patch)
	if !reversed.IsDeleted || reversed.IsNew {
		t.Errorf("expected reversed new-file patch to become a deletion")
	}
}

func TestSerializeParse_RoundTrips(t *testing.T) {
	old := "a\nb\nc\nd\ne\n"
	newText := "a\nB\nc\nd\ne\n"
	patch := Compute("f.txt", old, newText, false, false)

	text := Serialize(patch)
	parsed, err := Parse(text)
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	if parsed.Filename != patch.Filename {
		t.Errorf("expected filename to round-trip, got %q", parsed.Filename)
	}
	if len(parsed.Hunks) != len(patch.Hunks) {
		t.Fatalf("expected %d hunks, got %d", len(patch.Hunks), len(parsed.Hunks))
	}
	if parsed.Hunks[0].OldStart != patch.Hunks[0].OldStart {
		t.Errorf("expected oldStart to round-trip")
	}
}

func TestSerialize_NewFileUsesDevNull(t *testing.T) {
	patch := Compute("new.txt", "", "hello\n", true, false)
	text := Serialize(patch)
	if !strings.Contains(text, "--- /dev/null") {
		t.Errorf("expected /dev/null on missing old side, got: %s", text)
	}
}

func TestHunkInvariants_OldLinesEqualsContextPlusRemove(t *testing.T) {
	old := "1\n2\n3\n4\n5\n6\n7\n8\n"
	newText := "1\n2\n3\nCHANGED\n5\n6\n7\n8\n"
	patch := Compute("f.txt", old, newText, false, false)

	for _, h := range patch.Hunks {
		context, add, remove := 0, 0, 0
		for _, l := range h.Lines {
			switch l.Tag {
			case types.LineContext:
				context++
			case types.LineAdd:
				add++
			case types.LineRemove:
				remove++
			}
		}
		if h.OldLines != context+remove {
			t.Errorf("oldLines invariant violated: %d != %d+%d", h.OldLines, context, remove)
		}
		if h.NewLines != context+add {
			t.Errorf("newLines invariant violated: %d != %d+%d", h.NewLines, context, add)
		}
	}
}
