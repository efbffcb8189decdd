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

// Package prune implements the Pruner (C2): a head/tail trim for oversized
// logs. Pure arithmetic over lines; stdlib only (see DESIGN.md).
package prune

import (
	"fmt"
	"strings"

	"github.com/neopilotai/FORGE/pkg/types"
)

const (
	DefaultHead = 100
	DefaultTail = 500
)

// Options configures Prune's head/tail counts.
type Options struct {
	Head int
	Tail int
}

// DefaultOptions returns the spec.md §4.2 defaults (100/500).
func DefaultOptions() Options {
	return Options{Head: DefaultHead, Tail: DefaultTail}
}

// Prune trims text to its first Head and last Tail lines, inserting exactly
// one omission marker between them when anything was omitted. If
// totalLines <= Head+Tail, text is returned unchanged.
func Prune(text string, opts Options) types.PrunedLog {
	if opts.Head <= 0 {
		opts.Head = DefaultHead
	}
	if opts.Tail <= 0 {
		opts.Tail = DefaultTail
	}

	lines := splitLines(text)
	total := len(lines)

	if total <= opts.Head+opts.Tail {
		return types.PrunedLog{
			Text:       text,
			TotalLines: total,
			KeptHead:   total,
			KeptTail:   0,
			Omitted:    0,
		}
	}

	head := lines[:opts.Head]
	tail := lines[total-opts.Tail:]
	omitted := total - opts.Head - opts.Tail

	var b strings.Builder
	b.WriteString(strings.Join(head, "\n"))
	b.WriteString("\n")
	b.WriteString(omissionMarker(omitted))
	b.WriteString("\n")
	b.WriteString(strings.Join(tail, "\n"))

	return types.PrunedLog{
		Text:       b.String(),
		TotalLines: total,
		KeptHead:   opts.Head,
		KeptTail:   opts.Tail,
		Omitted:    omitted,
	}
}

func omissionMarker(omitted int) string {
	return fmt.Sprintf("... [%d lines omitted] ...", omitted)
}

func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}
