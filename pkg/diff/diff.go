/*
Copyright 2026 The Forge Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package diff implements the Diff Engine (C11): a bounded-lookahead
// line-level diff, hunk generation with configurable context, unified-diff
// serialization, patch application, and patch reversal. No pack library
// ships a line-diff with this exact bounded-lookahead/hunk-envelope shape
// (see DESIGN.md), so this is hand-rolled per spec.md §4.9 & §9.
package diff

import (
	"fmt"
	"strings"

	"github.com/neopilotai/FORGE/pkg/types"
)

const (
	DefaultContext   = 3
	lookaheadWindow = 10
)

// op tags one computed diff operation prior to hunk assembly.
type op struct {
	tag  types.LineTag
	text string
}

// Compute produces a UnifiedPatch for filename, transforming oldText into
// newText. isNew/isDeleted short-circuit to a single hunk covering the
// whole file.
func Compute(filename string, oldText, newText string, isNew, isDeleted bool) types.UnifiedPatch {
	if isNew {
		lines := splitLines(newText)
		return types.UnifiedPatch{
			Filename: filename, IsNew: true,
			Hunks: []types.Hunk{singleHunk(0, 0, len(lines), addAll(lines))},
		}
	}
	if isDeleted {
		lines := splitLines(oldText)
		return types.UnifiedPatch{
			Filename: filename, IsDeleted: true,
			Hunks: []types.Hunk{singleHunk(0, len(lines), 0, removeAll(lines))},
		}
	}

	oldLines := splitLines(oldText)
	newLines := splitLines(newText)
	ops := boundedDiff(oldLines, newLines)
	hunks := buildHunks(ops, DefaultContext)

	return types.UnifiedPatch{Filename: filename, Hunks: hunks}
}

func addAll(lines []string) []types.HunkLine {
	out := make([]types.HunkLine, len(lines))
	for i, l := range lines {
		out[i] = types.HunkLine{Tag: types.LineAdd, Payload: l}
	}
	return out
}

func removeAll(lines []string) []types.HunkLine {
	out := make([]types.HunkLine, len(lines))
	for i, l := range lines {
		out[i] = types.HunkLine{Tag: types.LineRemove, Payload: l}
	}
	return out
}

func singleHunk(oldStart, oldLines, newLines int, hlines []types.HunkLine) types.Hunk {
	newStart := 0
	if newLines > 0 {
		newStart = 0
	}
	return types.Hunk{OldStart: oldStart, OldLines: oldLines, NewStart: newStart, NewLines: newLines, Lines: hlines}
}

// boundedDiff computes a line-level edit script using a bounded-lookahead
// longest-common-subsequence search: at each divergence it looks ahead at
// most lookaheadWindow lines to resynchronise, falling back to a
// remove+add pair if no resync point is found within the window.
func boundedDiff(oldLines, newLines []string) []op {
	ops := []op{}
	i, j := 0, 0
	for i < len(oldLines) && j < len(newLines) {
		if oldLines[i] == newLines[j] {
			ops = append(ops, op{types.LineContext, oldLines[i]})
			i++
			j++
			continue
		}

		oi, nj, found := findResync(oldLines, newLines, i, j)
		if !found {
			ops = append(ops, op{types.LineRemove, oldLines[i]})
			ops = append(ops, op{types.LineAdd, newLines[j]})
			i++
			j++
			continue
		}
		for ; i < oi; i++ {
			ops = append(ops, op{types.LineRemove, oldLines[i]})
		}
		for ; j < nj; j++ {
			ops = append(ops, op{types.LineAdd, newLines[j]})
		}
	}
	for ; i < len(oldLines); i++ {
		ops = append(ops, op{types.LineRemove, oldLines[i]})
	}
	for ; j < len(newLines); j++ {
		ops = append(ops, op{types.LineAdd, newLines[j]})
	}
	return ops
}

// findResync searches up to lookaheadWindow lines ahead in both old and new
// for a matching line, preferring the closest match (smallest total
// offset).
func findResync(oldLines, newLines []string, i, j int) (oi, nj int, found bool) {
	bestCost := lookaheadWindow*2 + 1
	bestOI, bestNJ := -1, -1

	maxOI := i + lookaheadWindow
	if maxOI > len(oldLines) {
		maxOI = len(oldLines)
	}
	maxNJ := j + lookaheadWindow
	if maxNJ > len(newLines) {
		maxNJ = len(newLines)
	}

	for a := i; a < maxOI; a++ {
		for b := j; b < maxNJ; b++ {
			if oldLines[a] == newLines[b] {
				cost := (a - i) + (b - j)
				if cost < bestCost {
					bestCost = cost
					bestOI, bestNJ = a, b
				}
			}
		}
	}
	if bestOI < 0 {
		return 0, 0, false
	}
	return bestOI, bestNJ, true
}

// buildHunks groups a flat op list into hunks, including up to contextLines
// of surrounding context and merging runs of changes that are within
// 2*contextLines of each other into a single hunk.
func buildHunks(ops []op, contextLines int) []types.Hunk {
	changeIdx := []int{}
	for idx, o := range ops {
		if o.tag != types.LineContext {
			changeIdx = append(changeIdx, idx)
		}
	}
	if len(changeIdx) == 0 {
		return nil
	}

	groups := [][2]int{}
	start := changeIdx[0]
	end := changeIdx[0]
	for _, idx := range changeIdx[1:] {
		if idx-end <= contextLines*2 {
			end = idx
			continue
		}
		groups = append(groups, [2]int{start, end})
		start, end = idx, idx
	}
	groups = append(groups, [2]int{start, end})

	hunks := make([]types.Hunk, 0, len(groups))
	for _, g := range groups {
		lo := g[0] - contextLines
		if lo < 0 {
			lo = 0
		}
		hi := g[1] + contextLines
		if hi >= len(ops) {
			hi = len(ops) - 1
		}
		hunks = append(hunks, hunkFromSlice(ops, lo, hi))
	}
	return hunks
}

func hunkFromSlice(ops []op, lo, hi int) types.Hunk {
	oldStart, newStart := -1, -1
	oldCount, newCount := 0, 0
	lines := make([]types.HunkLine, 0, hi-lo+1)

	oldCursor, newCursor := countBefore(ops, lo)
	oldStart, newStart = oldCursor, newCursor

	for idx := lo; idx <= hi; idx++ {
		o := ops[idx]
		lines = append(lines, types.HunkLine{Tag: o.tag, Payload: o.text})
		switch o.tag {
		case types.LineContext:
			oldCount++
			newCount++
		case types.LineRemove:
			oldCount++
		case types.LineAdd:
			newCount++
		}
	}
	return types.Hunk{OldStart: oldStart, OldLines: oldCount, NewStart: newStart, NewLines: newCount, Lines: lines}
}

// countBefore returns (oldLineNumber, newLineNumber) immediately before
// ops[upTo], 0-indexed, used as a hunk's starting offsets.
func countBefore(ops []op, upTo int) (int, int) {
	o, n := 0, 0
	for idx := 0; idx < upTo; idx++ {
		switch ops[idx].tag {
		case types.LineContext:
			o++
			n++
		case types.LineRemove:
			o++
		case types.LineAdd:
			n++
		}
	}
	return o, n
}

// ApplyPatch applies patch's hunks to original in descending newStart
// order, so earlier hunk offsets remain valid as later ones are applied.
func ApplyPatch(original string, patch types.UnifiedPatch) (string, error) {
	if patch.IsDeleted {
		return "", nil
	}
	lines := splitLines(original)
	if patch.IsNew {
		lines = nil
	}

	hunks := make([]types.Hunk, len(patch.Hunks))
	copy(hunks, patch.Hunks)
	sortHunksDescending(hunks)

	for _, h := range hunks {
		removed := 0
		added := make([]string, 0, len(h.Lines))
		for _, l := range h.Lines {
			switch l.Tag {
			case types.LineRemove:
				removed++
			case types.LineAdd:
				added = append(added, l.Payload)
			case types.LineContext:
				added = append(added, l.Payload)
				removed++
			}
		}
		if h.OldStart+removed > len(lines) {
			return "", fmt.Errorf("diff: hunk at %d exceeds file length %d", h.OldStart, len(lines))
		}
		out := make([]string, 0, len(lines)-removed+len(added))
		out = append(out, lines[:h.OldStart]...)
		out = append(out, added...)
		out = append(out, lines[h.OldStart+removed:]...)
		lines = out
	}
	return strings.Join(lines, "\n"), nil
}

func sortHunksDescending(hunks []types.Hunk) {
	for i := 1; i < len(hunks); i++ {
		for j := i; j > 0 && hunks[j-1].NewStart < hunks[j].NewStart; j-- {
			hunks[j-1], hunks[j] = hunks[j], hunks[j-1]
		}
	}
}

// ReversePatch swaps adds/removes, oldStart/newStart, oldLines/newLines,
// and isNew/isDeleted, producing the inverse patch.
func ReversePatch(patch types.UnifiedPatch) types.UnifiedPatch {
	reversed := types.UnifiedPatch{
		Filename:  patch.Filename,
		IsNew:     patch.IsDeleted,
		IsDeleted: patch.IsNew,
		Hunks:     make([]types.Hunk, len(patch.Hunks)),
	}
	for i, h := range patch.Hunks {
		lines := make([]types.HunkLine, len(h.Lines))
		for j, l := range h.Lines {
			lines[j] = l
			switch l.Tag {
			case types.LineAdd:
				lines[j].Tag = types.LineRemove
			case types.LineRemove:
				lines[j].Tag = types.LineAdd
			}
		}
		reversed.Hunks[i] = types.Hunk{
			OldStart: h.NewStart, OldLines: h.NewLines,
			NewStart: h.OldStart, NewLines: h.OldLines,
			Lines: lines,
		}
	}
	return reversed
}

// Serialize renders patch in the standard unified-diff envelope.
func Serialize(patch types.UnifiedPatch) string {
	var b strings.Builder
	oldPath := "a/" + patch.Filename
	newPath := "b/" + patch.Filename
	if patch.IsNew {
		oldPath = "/dev/null"
	}
	if patch.IsDeleted {
		newPath = "/dev/null"
	}
	fmt.Fprintf(&b, "--- %s\n", oldPath)
	fmt.Fprintf(&b, "+++ %s\n", newPath)

	for _, h := range patch.Hunks {
		fmt.Fprintf(&b, "@@ -%d,%d +%d,%d @@\n", h.OldStart+1, h.OldLines, h.NewStart+1, h.NewLines)
		for _, l := range h.Lines {
			switch l.Tag {
			case types.LineContext:
				b.WriteString(" ")
			case types.LineAdd:
				b.WriteString("+")
			case types.LineRemove:
				b.WriteString("-")
			}
			b.WriteString(l.Payload)
			b.WriteString("\n")
		}
	}
	return b.String()
}

// Parse reverses Serialize, reconstructing a UnifiedPatch from its textual
// envelope.
func Parse(text string) (types.UnifiedPatch, error) {
	lines := strings.Split(text, "\n")
	if len(lines) < 2 {
		return types.UnifiedPatch{}, fmt.Errorf("diff: envelope too short")
	}
	oldHeader := strings.TrimPrefix(lines[0], "--- ")
	newHeader := strings.TrimPrefix(lines[1], "+++ ")

	patch := types.UnifiedPatch{
		IsNew:     oldHeader == "/dev/null",
		IsDeleted: newHeader == "/dev/null",
	}
	if patch.IsNew {
		patch.Filename = strings.TrimPrefix(newHeader, "b/")
	} else {
		patch.Filename = strings.TrimPrefix(oldHeader, "a/")
	}

	var hunks []types.Hunk
	var current *types.Hunk
	for _, line := range lines[2:] {
		if strings.HasPrefix(line, "@@") {
			if current != nil {
				hunks = append(hunks, *current)
			}
			var oldStart, oldLines, newStart, newLines int
			if _, err := fmt.Sscanf(line, "@@ -%d,%d +%d,%d @@", &oldStart, &oldLines, &newStart, &newLines); err != nil {
				return types.UnifiedPatch{}, fmt.Errorf("diff: malformed hunk header %q: %w", line, err)
			}
			current = &types.Hunk{OldStart: oldStart - 1, OldLines: oldLines, NewStart: newStart - 1, NewLines: newLines}
			continue
		}
		if current == nil || line == "" {
			continue
		}
		tag, text := parseHunkLine(line)
		current.Lines = append(current.Lines, types.HunkLine{Tag: tag, Payload: text})
	}
	if current != nil {
		hunks = append(hunks, *current)
	}
	patch.Hunks = hunks
	return patch, nil
}

func parseHunkLine(line string) (types.LineTag, string) {
	if line == "" {
		return types.LineContext, ""
	}
	switch line[0] {
	case '+':
		return types.LineAdd, line[1:]
	case '-':
		return types.LineRemove, line[1:]
	default:
		return types.LineContext, strings.TrimPrefix(line, " ")
	}
}

func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}
