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

// Package audit implements the Audit Journal (C16): an append-only event
// stream behind one Store interface, with a file-backed default and an
// optional SQL-backed implementation for query-heavy deployments.
package audit

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/neopilotai/FORGE/pkg/types"
)

// DefaultRetention bounds the in-memory window FileStore keeps for Query
// without a full disk scan (spec.md §4.14: "bounded in-memory retention,
// default 10 000 entries").
const DefaultRetention = 10000

// ExportFormat selects Store.Export's output encoding.
type ExportFormat string

const (
	ExportNative ExportFormat = "native"
	ExportCSV    ExportFormat = "csv"
)

// QueryFilter narrows Store.Query / Store.Purge / Store.Export.
type QueryFilter struct {
	Resource string
	Status   types.AuditStatus
	Event    types.AuditEventType
	From     time.Time
	To       time.Time
	Limit    int
	Offset   int
}

// Store is the journal's storage contract; FileStore and SQLStore both
// satisfy it so callers can swap deployments without touching the
// pipeline driver.
type Store interface {
	Append(ctx context.Context, entry types.AuditEntry) error
	Query(ctx context.Context, filter QueryFilter) ([]types.AuditEntry, error)
	Purge(ctx context.Context, olderThan time.Time) (int, error)
	Export(ctx context.Context, filter QueryFilter, format ExportFormat) ([]byte, error)
	Close() error
}

// NewEntry fills in ID and Timestamp for a freshly observed event.
func NewEntry(event types.AuditEventType, actor, resource, action string, status types.AuditStatus) types.AuditEntry {
	return types.AuditEntry{
		ID:        uuid.New().String(),
		Timestamp: time.Now(),
		Event:     event,
		Actor:     actor,
		Resource:  resource,
		Action:    action,
		Status:    status,
	}
}

func matches(e types.AuditEntry, f QueryFilter) bool {
	if f.Resource != "" && e.Resource != f.Resource {
		return false
	}
	if f.Status != "" && e.Status != f.Status {
		return false
	}
	if f.Event != "" && e.Event != f.Event {
		return false
	}
	if !f.From.IsZero() && e.Timestamp.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && e.Timestamp.After(f.To) {
		return false
	}
	return true
}

func paginate(entries []types.AuditEntry, f QueryFilter) []types.AuditEntry {
	sort.Slice(entries, func(i, j int) bool { return entries[i].Timestamp.After(entries[j].Timestamp) })
	if f.Offset > 0 {
		if f.Offset >= len(entries) {
			return nil
		}
		entries = entries[f.Offset:]
	}
	if f.Limit > 0 && f.Limit < len(entries) {
		entries = entries[:f.Limit]
	}
	return entries
}

func encodeExport(entries []types.AuditEntry, format ExportFormat) ([]byte, error) {
	switch format {
	case ExportCSV:
		return encodeCSV(entries)
	default:
		return json.MarshalIndent(entries, "", "  ")
	}
}

func encodeCSV(entries []types.AuditEntry) ([]byte, error) {
	buf := &csvBuffer{}
	w := csv.NewWriter(buf)
	if err := w.Write([]string{"id", "timestamp", "event", "actor", "resource", "action", "status", "details"}); err != nil {
		return nil, err
	}
	for _, e := range entries {
		if err := w.Write([]string{
			e.ID,
			e.Timestamp.Format(time.RFC3339),
			string(e.Event),
			e.Actor,
			e.Resource,
			e.Action,
			string(e.Status),
			e.Details,
		}); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type csvBuffer struct {
	mu   sync.Mutex
	data []byte
}

func (b *csvBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data = append(b.data, p...)
	return len(p), nil
}

func (b *csvBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.data
}

var (
	globalMu    sync.RWMutex
	globalStore Store
)

// Init installs the process-wide journal singleton (spec.md §4.14: "the
// journal is singleton-per-process").
func Init(store Store) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalStore = store
}

// Global returns the process-wide journal, or nil if Init was never
// called.
func Global() Store {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalStore
}
