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

// Package apply implements the Applicator & Rollback (C15): the only
// component that writes to the working tree, with hash-verified,
// journaled apply and reverse-order rollback.
package apply

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	forgeerrors "github.com/neopilotai/FORGE/internal/errors"
	"github.com/neopilotai/FORGE/pkg/diff"
	"github.com/neopilotai/FORGE/pkg/types"
)

// Options overrides the applicator's default pre-conditions.
type Options struct {
	AutoApply bool
}

// Result is rollback's outcome.
type Result struct {
	Restored   []string
	Errors     []string
	DurationMs int64
}

// Applicator applies and rolls back patch sets against a working-tree
// root, serialised per root by Locker and journaled under StateDir.
type Applicator struct {
	Locker   Locker
	StateDir string
}

func New(locker Locker, stateDir string) *Applicator {
	return &Applicator{Locker: locker, StateDir: stateDir}
}

func hashOf(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

func backupName(applicationID, filename string) string {
	return strings.ReplaceAll(filename, "/", "__") + ".bak"
}

func (a *Applicator) recordDir(applicationID string) string {
	return filepath.Join(a.StateDir, applicationID)
}

// ApplyPatches writes patches to root's working tree. decision.action must
// be auto-apply unless opts.AutoApply overrides it. Once snapshotting
// begins the operation is not cancellable (spec.md §5): ctx governs lock
// acquisition only.
func (a *Applicator) ApplyPatches(ctx context.Context, root string, patches []types.UnifiedPatch, decision types.GateDecision, opts Options) (types.ApplicationRecord, error) {
	if decision.Action != types.GateAutoApply && !opts.AutoApply {
		return types.ApplicationRecord{}, forgeerrors.New(forgeerrors.ErrorTypeApplyConflict, "gate decision does not authorize application")
	}

	release, err := a.Locker.Acquire(ctx, root)
	if err != nil {
		return types.ApplicationRecord{}, err
	}
	defer release(context.Background())

	applicationID := uuid.New().String()
	record := types.ApplicationRecord{
		ID:       applicationID,
		Timestamp: time.Now(),
		Decision: decision,
	}

	if err := os.MkdirAll(a.recordDir(applicationID), 0o755); err != nil {
		return types.ApplicationRecord{}, forgeerrors.New(forgeerrors.ErrorTypeApplyFailed, "could not create record directory: "+err.Error())
	}

	type snapshot struct {
		filename string
		path     string
		existed  bool
		content  string
	}
	var snapshots []snapshot

	for _, p := range patches {
		path := filepath.Join(root, p.Filename)
		if p.IsNew {
			continue
		}
		content, existErr := os.ReadFile(path)
		existed := existErr == nil
		var contentStr string
		if existed {
			contentStr = string(content)
			if err := os.WriteFile(filepath.Join(a.recordDir(applicationID), backupName(applicationID, p.Filename)), content, 0o644); err != nil {
				return types.ApplicationRecord{}, forgeerrors.New(forgeerrors.ErrorTypeApplyFailed, "could not snapshot "+p.Filename+": "+err.Error())
			}
		}
		snapshots = append(snapshots, snapshot{filename: p.Filename, path: path, existed: existed, content: contentStr})
	}

	var applyErr error
	for _, p := range patches {
		path := filepath.Join(root, p.Filename)
		switch {
		case p.IsNew:
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				applyErr = err
				break
			}
			if err := os.WriteFile(path, []byte(singleHunkContent(p)), 0o644); err != nil {
				applyErr = err
				break
			}
			record.Patches = append(record.Patches, types.AppliedPatch{
				Filename:  p.Filename,
				BeforeHash: hashOf(""),
				AfterHash:  hashOf(singleHunkContent(p)),
				Timestamp:  time.Now(),
				Patch:      p,
			})
		case p.IsDeleted:
			before, _ := os.ReadFile(path)
			if err := os.Remove(path); err != nil {
				applyErr = err
				break
			}
			record.Patches = append(record.Patches, types.AppliedPatch{
				Filename:  p.Filename,
				BeforeHash: hashOf(string(before)),
				AfterHash:  hashOf(""),
				Timestamp:  time.Now(),
				Patch:      p,
			})
		default:
			before, err := os.ReadFile(path)
			if err != nil {
				applyErr = err
				break
			}
			after, err := diff.ApplyPatch(string(before), p)
			if err != nil {
				applyErr = err
				break
			}
			if err := os.WriteFile(path, []byte(after), 0o644); err != nil {
				applyErr = err
				break
			}
			record.Patches = append(record.Patches, types.AppliedPatch{
				Filename:  p.Filename,
				BeforeHash: hashOf(string(before)),
				AfterHash:  hashOf(after),
				Timestamp:  time.Now(),
				Patch:      p,
			})
		}
		if applyErr != nil {
			break
		}
	}

	if applyErr != nil {
		restoreErrs := restoreSnapshots(snapshots)
		if len(restoreErrs) == 0 {
			record.Status = types.StatusRolledBack
		} else {
			record.Status = types.StatusPartial
		}
		record.Error = applyErr.Error()
		a.persist(record)
		return record, forgeerrors.New(forgeerrors.ErrorTypeApplyFailed, "apply failed and was restored: "+applyErr.Error())
	}

	record.Status = types.StatusApplied
	a.persist(record)
	return record, nil
}

func singleHunkContent(p types.UnifiedPatch) string {
	var b strings.Builder
	for _, h := range p.Hunks {
		for _, l := range h.Lines {
			if l.Tag == types.LineAdd || l.Tag == types.LineContext {
				b.WriteString(l.Payload)
				b.WriteString("\n")
			}
		}
	}
	return b.String()
}

func restoreSnapshots(snapshots []struct {
	filename string
	path     string
	existed  bool
	content  string
}) []string {
	var errs []string
	for i := len(snapshots) - 1; i >= 0; i-- {
		s := snapshots[i]
		if s.existed {
			if err := os.WriteFile(s.path, []byte(s.content), 0o644); err != nil {
				errs = append(errs, s.filename+": "+err.Error())
			}
		} else {
			if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
				errs = append(errs, s.filename+": "+err.Error())
			}
		}
	}
	return errs
}

func (a *Applicator) persist(record types.ApplicationRecord) error {
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(a.recordDir(record.ID), "record.json"), data, 0o644)
}

// LoadRecord reads a previously persisted ApplicationRecord.
func (a *Applicator) LoadRecord(applicationID string) (types.ApplicationRecord, error) {
	data, err := os.ReadFile(filepath.Join(a.recordDir(applicationID), "record.json"))
	if err != nil {
		return types.ApplicationRecord{}, err
	}
	var record types.ApplicationRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return types.ApplicationRecord{}, err
	}
	return record, nil
}

// Rollback reverses applicationID's patches in reverse order: created
// files are deleted, everything else is restored from its backup blob.
func (a *Applicator) Rollback(ctx context.Context, root, applicationID string) (Result, error) {
	start := time.Now()
	release, err := a.Locker.Acquire(ctx, root)
	if err != nil {
		return Result{}, err
	}
	defer release(context.Background())

	record, err := a.LoadRecord(applicationID)
	if err != nil {
		return Result{}, forgeerrors.New(forgeerrors.ErrorTypeApplyFailed, "could not load application record: "+err.Error())
	}

	result := Result{}
	for i := len(record.Patches) - 1; i >= 0; i-- {
		ap := record.Patches[i]
		path := filepath.Join(root, ap.Filename)
		if ap.BeforeHash == hashOf("") {
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				result.Errors = append(result.Errors, ap.Filename+": "+err.Error())
				continue
			}
			result.Restored = append(result.Restored, ap.Filename)
			continue
		}
		backupPath := filepath.Join(a.recordDir(applicationID), backupName(applicationID, ap.Filename))
		data, err := os.ReadFile(backupPath)
		if err != nil {
			result.Errors = append(result.Errors, ap.Filename+": missing backup: "+err.Error())
			continue
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			result.Errors = append(result.Errors, ap.Filename+": "+err.Error())
			continue
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			result.Errors = append(result.Errors, ap.Filename+": "+err.Error())
			continue
		}
		result.Restored = append(result.Restored, ap.Filename)
	}

	record.Status = types.StatusRolledBack
	if len(result.Errors) > 0 {
		record.Status = types.StatusPartial
	}
	a.persist(record)

	result.DurationMs = time.Since(start).Milliseconds()
	return result, nil
}
