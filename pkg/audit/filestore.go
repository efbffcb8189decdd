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

package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/neopilotai/FORGE/pkg/types"
)

const writeQueueDepth = 256

// FileStore persists entries as newline-delimited JSON, the dependency-free
// default journal (spec.md §4.14). Writes are queued and flushed by a
// background goroutine so Append never blocks the caller; if the queue
// saturates, the store degrades gracefully by dropping the entry and
// marking Degraded instead of blocking or panicking.
type FileStore struct {
	path      string
	mu        sync.Mutex
	buffer    []types.AuditEntry
	retention int

	queue chan types.AuditEntry
	done  chan struct{}
	wg    sync.WaitGroup

	degraded atomic.Bool
}

// NewFileStore opens (creating if absent) path for append and starts the
// background flush loop.
func NewFileStore(path string, retention int) (*FileStore, error) {
	if retention <= 0 {
		retention = DefaultRetention
	}
	s := &FileStore{
		path:      path,
		retention: retention,
		queue:     make(chan types.AuditEntry, writeQueueDepth),
		done:      make(chan struct{}),
	}
	if err := s.loadExisting(); err != nil {
		return nil, err
	}
	s.wg.Add(1)
	go s.flushLoop()
	return s, nil
}

func (s *FileStore) loadExisting() error {
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_RDONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	dec := json.NewDecoder(f)
	for {
		var entry types.AuditEntry
		if err := dec.Decode(&entry); err != nil {
			break
		}
		s.buffer = append(s.buffer, entry)
	}
	if len(s.buffer) > s.retention {
		s.buffer = s.buffer[len(s.buffer)-s.retention:]
	}
	return nil
}

func (s *FileStore) flushLoop() {
	defer s.wg.Done()
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	defer w.Flush()

	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case entry, ok := <-s.queue:
			if !ok {
				w.Flush()
				return
			}
			data, err := json.Marshal(entry)
			if err == nil {
				w.Write(data)
				w.WriteByte('\n')
			}
			s.mu.Lock()
			s.buffer = append(s.buffer, entry)
			if len(s.buffer) > s.retention {
				s.buffer = s.buffer[len(s.buffer)-s.retention:]
			}
			s.mu.Unlock()
		case <-ticker.C:
			w.Flush()
		case <-s.done:
			w.Flush()
			return
		}
	}
}

// Degraded reports whether Append has dropped entries because the write
// queue saturated.
func (s *FileStore) Degraded() bool {
	return s.degraded.Load()
}

func (s *FileStore) Append(ctx context.Context, entry types.AuditEntry) error {
	select {
	case s.queue <- entry:
		return nil
	default:
		s.degraded.Store(true)
		return nil
	}
}

func (s *FileStore) Query(ctx context.Context, filter QueryFilter) ([]types.AuditEntry, error) {
	s.mu.Lock()
	snapshot := make([]types.AuditEntry, len(s.buffer))
	copy(snapshot, s.buffer)
	s.mu.Unlock()

	var matched []types.AuditEntry
	for _, e := range snapshot {
		if matches(e, filter) {
			matched = append(matched, e)
		}
	}
	return paginate(matched, filter), nil
}

func (s *FileStore) Purge(ctx context.Context, olderThan time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var kept []types.AuditEntry
	purged := 0
	for _, e := range s.buffer {
		if e.Timestamp.Before(olderThan) {
			purged++
			continue
		}
		kept = append(kept, e)
	}
	s.buffer = kept

	f, err := os.Create(s.path)
	if err != nil {
		return purged, err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	for _, e := range kept {
		if err := enc.Encode(e); err != nil {
			return purged, err
		}
	}
	return purged, nil
}

func (s *FileStore) Export(ctx context.Context, filter QueryFilter, format ExportFormat) ([]byte, error) {
	entries, err := s.Query(ctx, filter)
	if err != nil {
		return nil, err
	}
	return encodeExport(entries, format)
}

func (s *FileStore) Close() error {
	close(s.done)
	s.wg.Wait()
	return nil
}
