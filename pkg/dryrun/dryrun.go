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

// Package dryrun implements the Dry-Run Simulator (C14): it produces an
// application plan for a patch set without performing any I/O against the
// working tree.
package dryrun

import (
	"context"
	"fmt"
	"os"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/neopilotai/FORGE/pkg/diff"
	"github.com/neopilotai/FORGE/pkg/patchvalidate"
	"github.com/neopilotai/FORGE/pkg/types"
)

const largeChangeLineThreshold = 100

// Candidate is one patch to simulate against root, paired with its current
// on-disk content (empty for a patch that creates a new file).
type Candidate struct {
	Patch          types.UnifiedPatch
	CurrentContent string
	Exists         bool
}

// Plan runs the per-patch plan step plus the three independent optional
// passes (syntax validation, conflict detection, performance estimate)
// concurrently, merging them into one DryRunPlan.
func Plan(ctx context.Context, root string, candidates []Candidate) types.DryRunPlan {
	steps := make([]types.PlanStep, len(candidates))
	for i, c := range candidates {
		steps[i] = planStep(i, c)
	}

	var conflictSteps []types.PlanStep
	var syntaxSteps []types.PlanStep
	var perfSteps []types.PlanStep

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := gctx.Err(); err != nil {
			return err
		}
		conflictSteps = detectConflicts(candidates)
		return nil
	})
	g.Go(func() error {
		if err := gctx.Err(); err != nil {
			return err
		}
		syntaxSteps = validateSyntax(candidates)
		return nil
	})
	g.Go(func() error {
		if err := gctx.Err(); err != nil {
			return err
		}
		perfSteps = estimatePerformance(candidates)
		return nil
	})

	cancelled := false
	if err := g.Wait(); err != nil {
		cancelled = true
	}

	all := append(steps, conflictSteps...)
	all = append(all, syntaxSteps...)
	all = append(all, perfSteps...)
	for i := range all {
		all[i].Index = i
	}

	summary := summarize(candidates, all)
	success := !cancelled
	for _, s := range all {
		if s.Status == types.PlanError {
			success = false
		}
	}

	return types.DryRunPlan{
		Steps:        all,
		Summary:      summary,
		Success:      success,
		RollbackPlan: rollbackPlan(candidates),
		Impact:       impactOf(summary, all),
		Cancelled:    cancelled,
	}
}

func planStep(index int, c Candidate) types.PlanStep {
	p := c.Patch
	switch {
	case p.IsNew:
		if c.Exists {
			return types.PlanStep{Index: index, Action: types.PlanCreate, Target: p.Filename, Status: types.PlanError, Message: "target already exists for a create action"}
		}
		return downgradeIfLarge(types.PlanStep{Index: index, Action: types.PlanCreate, Target: p.Filename, Status: types.PlanSuccess, Message: "file will be created"}, linesChanged(p))
	case p.IsDeleted:
		if !c.Exists {
			return types.PlanStep{Index: index, Action: types.PlanDelete, Target: p.Filename, Status: types.PlanError, Message: "target absent for a delete action"}
		}
		return types.PlanStep{Index: index, Action: types.PlanDelete, Target: p.Filename, Status: types.PlanSuccess, Message: "file will be deleted"}
	default:
		if !c.Exists {
			return types.PlanStep{Index: index, Action: types.PlanModify, Target: p.Filename, Status: types.PlanError, Message: "target absent for a modify action"}
		}
		if _, err := diff.ApplyPatch(c.CurrentContent, p); err != nil {
			return types.PlanStep{Index: index, Action: types.PlanModify, Target: p.Filename, Status: types.PlanError, Message: "patch does not apply: " + err.Error()}
		}
		return downgradeIfLarge(types.PlanStep{Index: index, Action: types.PlanModify, Target: p.Filename, Status: types.PlanSuccess, Message: "patch applies cleanly"}, linesChanged(p))
	}
}

func downgradeIfLarge(step types.PlanStep, lines int) types.PlanStep {
	if lines > largeChangeLineThreshold {
		step.Status = types.PlanWarning
		step.Message = fmt.Sprintf("%s (large change: %d lines)", step.Message, lines)
	}
	step.Details = map[string]any{"linesChanged": lines}
	return step
}

func linesChanged(p types.UnifiedPatch) int {
	n := 0
	for _, h := range p.Hunks {
		for _, l := range h.Lines {
			if l.Tag == types.LineAdd || l.Tag == types.LineRemove {
				n++
			}
		}
	}
	return n
}

func detectConflicts(candidates []Candidate) []types.PlanStep {
	byTarget := map[string][]int{}
	for i, c := range candidates {
		byTarget[c.Patch.Filename] = append(byTarget[c.Patch.Filename], i)
	}
	var steps []types.PlanStep
	for target, idxs := range byTarget {
		if len(idxs) <= 1 {
			continue
		}
		deleted, modified := false, false
		for _, i := range idxs {
			if candidates[i].Patch.IsDeleted {
				deleted = true
			} else {
				modified = true
			}
		}
		status := types.PlanError
		message := fmt.Sprintf("%d patches target the same file", len(idxs))
		if deleted && modified {
			message = "file is simultaneously deleted and modified"
		}
		steps = append(steps, types.PlanStep{
			Action:  types.PlanCheckConflicts,
			Target:  target,
			Status:  status,
			Message: message,
		})
	}
	return steps
}

func validateSyntax(candidates []Candidate) []types.PlanStep {
	var steps []types.PlanStep
	for _, c := range candidates {
		if c.Patch.IsDeleted {
			continue
		}
		postImage, err := diff.ApplyPatch(c.CurrentContent, c.Patch)
		if err != nil {
			continue
		}
		report := patchvalidate.Validate(c.Patch.Filename, postImage)
		if len(report.Errors) > 0 {
			steps = append(steps, types.PlanStep{
				Action:  types.PlanValidateSyntax,
				Target:  c.Patch.Filename,
				Status:  types.PlanError,
				Message: strings.Join(report.Errors, "; "),
			})
		} else if len(report.Warnings) > 0 {
			steps = append(steps, types.PlanStep{
				Action:  types.PlanValidateSyntax,
				Target:  c.Patch.Filename,
				Status:  types.PlanWarning,
				Message: strings.Join(report.Warnings, "; "),
			})
		}
	}
	return steps
}

func estimatePerformance(candidates []Candidate) []types.PlanStep {
	var steps []types.PlanStep
	for _, c := range candidates {
		lines := linesChanged(c.Patch)
		if lines <= largeChangeLineThreshold {
			continue
		}
		steps = append(steps, types.PlanStep{
			Action:  types.PlanEstimatePerformance,
			Target:  c.Patch.Filename,
			Status:  types.PlanWarning,
			Message: fmt.Sprintf("large patch (%d lines changed) may take noticeably longer to apply and review", lines),
			Details: map[string]any{"linesChanged": lines},
		})
	}
	return steps
}

func summarize(candidates []Candidate, steps []types.PlanStep) types.PlanSummary {
	files := map[string]bool{}
	linesTotal := 0
	for _, c := range candidates {
		files[c.Patch.Filename] = true
		linesTotal += linesChanged(c.Patch)
	}
	return types.PlanSummary{
		Totals:        len(steps),
		FilesAffected: len(files),
		LinesChanged:  linesTotal,
	}
}

func impactOf(summary types.PlanSummary, steps []types.PlanStep) types.ImpactLevel {
	for _, s := range steps {
		if s.Status == types.PlanError {
			return types.ImpactHigh
		}
	}
	switch {
	case summary.FilesAffected > 10 || summary.LinesChanged > 500:
		return types.ImpactHigh
	case summary.FilesAffected > 3 || summary.LinesChanged > largeChangeLineThreshold:
		return types.ImpactMedium
	default:
		return types.ImpactLow
	}
}

func rollbackPlan(candidates []Candidate) string {
	var b strings.Builder
	b.WriteString("rollback will be applied in reverse patch order:\n")
	for i := len(candidates) - 1; i >= 0; i-- {
		p := candidates[i].Patch
		switch {
		case p.IsNew:
			fmt.Fprintf(&b, "- delete %s (created by this application)\n", p.Filename)
		case p.IsDeleted:
			fmt.Fprintf(&b, "- restore %s from the recorded backup\n", p.Filename)
		default:
			fmt.Fprintf(&b, "- reverse the patch applied to %s\n", p.Filename)
		}
	}
	b.WriteString("the applicator's recorded before/after hashes enable integrity-checked restoration\n")
	return b.String()
}

// LoadCandidate reads target's current content from disk relative to root,
// producing the Candidate diff.Compute needs to build a Patch against.
func LoadCandidate(root, target string) (content string, exists bool, err error) {
	data, err := os.ReadFile(root + "/" + target)
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, err
	}
	return string(data), true, nil
}
