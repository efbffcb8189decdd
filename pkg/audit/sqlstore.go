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
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
	_ "github.com/lib/pq"              // registers the "postgres" driver

	"github.com/neopilotai/FORGE/pkg/types"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLStore backs the journal with Postgres, for deployments that want
// by-resource/by-date-range/by-status queries and scheduled purge to run
// as real SQL rather than a file scan (spec.md §4.14).
type SQLStore struct {
	db *sqlx.DB
}

// NewSQLStore wraps db, applies pending goose migrations, and returns a
// ready-to-use Store. driverName must be "pgx" or "postgres" (the drivers
// this package registers).
func NewSQLStore(db *sql.DB, driverName string) (*SQLStore, error) {
	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("postgres"); err != nil {
		return nil, fmt.Errorf("audit: goose dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return nil, fmt.Errorf("audit: migration failed: %w", err)
	}
	return &SQLStore{db: sqlx.NewDb(db, driverName)}, nil
}

type auditRow struct {
	EventID        string    `db:"event_id"`
	EventTimestamp time.Time `db:"event_timestamp"`
	EventType      string    `db:"event_type"`
	ActorID        string    `db:"actor_id"`
	ResourceID     string    `db:"resource_id"`
	EventAction    string    `db:"event_action"`
	EventOutcome   string    `db:"event_outcome"`
	Details        string    `db:"details"`
	Metadata       []byte    `db:"metadata"`
}

func toRow(e types.AuditEntry) (auditRow, error) {
	var metadata []byte
	if e.Metadata != nil {
		var err error
		metadata, err = json.Marshal(e.Metadata)
		if err != nil {
			return auditRow{}, err
		}
	}
	return auditRow{
		EventID:        e.ID,
		EventTimestamp: e.Timestamp,
		EventType:      string(e.Event),
		ActorID:        e.Actor,
		ResourceID:     e.Resource,
		EventAction:    e.Action,
		EventOutcome:   string(e.Status),
		Details:        e.Details,
		Metadata:       metadata,
	}, nil
}

func (r auditRow) toEntry() types.AuditEntry {
	entry := types.AuditEntry{
		ID:        r.EventID,
		Timestamp: r.EventTimestamp,
		Event:     types.AuditEventType(r.EventType),
		Actor:     r.ActorID,
		Resource:  r.ResourceID,
		Action:    r.EventAction,
		Status:    types.AuditStatus(r.EventOutcome),
		Details:   r.Details,
	}
	if len(r.Metadata) > 0 {
		var m map[string]any
		if json.Unmarshal(r.Metadata, &m) == nil {
			entry.Metadata = m
		}
	}
	return entry
}

func (s *SQLStore) Append(ctx context.Context, entry types.AuditEntry) error {
	row, err := toRow(entry)
	if err != nil {
		return err
	}
	_, err = s.db.NamedExecContext(ctx, `
		INSERT INTO audit_events
			(event_id, event_timestamp, event_type, actor_id, resource_id, event_action, event_outcome, details, metadata)
		VALUES
			(:event_id, :event_timestamp, :event_type, :actor_id, :resource_id, :event_action, :event_outcome, :details, :metadata)
		ON CONFLICT (event_id) DO NOTHING
	`, row)
	return err
}

func (s *SQLStore) Query(ctx context.Context, filter QueryFilter) ([]types.AuditEntry, error) {
	query := `SELECT event_id, event_timestamp, event_type, actor_id, resource_id, event_action, event_outcome, details, metadata
		FROM audit_events WHERE 1=1`
	args := []interface{}{}
	argN := 0
	next := func() string { argN++; return fmt.Sprintf("$%d", argN) }

	if filter.Resource != "" {
		query += " AND resource_id = " + next()
		args = append(args, filter.Resource)
	}
	if filter.Status != "" {
		query += " AND event_outcome = " + next()
		args = append(args, string(filter.Status))
	}
	if filter.Event != "" {
		query += " AND event_type = " + next()
		args = append(args, string(filter.Event))
	}
	if !filter.From.IsZero() {
		query += " AND event_timestamp >= " + next()
		args = append(args, filter.From)
	}
	if !filter.To.IsZero() {
		query += " AND event_timestamp <= " + next()
		args = append(args, filter.To)
	}
	query += " ORDER BY event_timestamp DESC"
	if filter.Limit > 0 {
		query += " LIMIT " + next()
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		query += " OFFSET " + next()
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryxContext(ctx, s.db.Rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []types.AuditEntry
	for rows.Next() {
		var row auditRow
		if err := rows.StructScan(&row); err != nil {
			return nil, err
		}
		entries = append(entries, row.toEntry())
	}
	return entries, rows.Err()
}

func (s *SQLStore) Purge(ctx context.Context, olderThan time.Time) (int, error) {
	result, err := s.db.ExecContext(ctx, s.db.Rebind("DELETE FROM audit_events WHERE event_timestamp < ?"), olderThan)
	if err != nil {
		return 0, err
	}
	n, err := result.RowsAffected()
	return int(n), err
}

func (s *SQLStore) Export(ctx context.Context, filter QueryFilter, format ExportFormat) ([]byte, error) {
	entries, err := s.Query(ctx, filter)
	if err != nil {
		return nil, err
	}
	return encodeExport(entries, format)
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}
