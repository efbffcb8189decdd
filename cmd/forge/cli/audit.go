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

package cli

import (
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/neopilotai/FORGE/internal/config"
	"github.com/neopilotai/FORGE/internal/validation"
	"github.com/neopilotai/FORGE/pkg/audit"
	"github.com/neopilotai/FORGE/pkg/types"
)

func newAuditCommand(logger *zap.Logger, configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect the audit journal",
	}
	cmd.AddCommand(newAuditQueryCommand(logger, configPath))
	return cmd
}

func newAuditQueryCommand(logger *zap.Logger, configPath *string) *cobra.Command {
	var (
		resource string
		status   string
		since    string
		limit    int
		format   string
	)

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Query the audit journal by resource, status, and time range",
		RunE: func(cmd *cobra.Command, args []string) error {
			if since != "" {
				if err := validation.ValidateTimeRange(since); err != nil {
					return err
				}
			}
			if err := validation.ValidateLimit(limit); err != nil {
				return err
			}

			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			store, err := audit.NewFileStore(journalPath(*configPath), audit.DefaultRetention)
			if err != nil {
				return fmt.Errorf("opening audit journal: %w", err)
			}
			defer store.Close()

			filter := audit.QueryFilter{Resource: resource, Limit: limit}
			if status != "" {
				filter.Status = types.AuditStatus(status)
			}
			if since != "" {
				from, err := sinceToTime(since)
				if err != nil {
					return err
				}
				filter.From = from
			}

			exportFormat := audit.ExportNative
			if format == "csv" {
				exportFormat = audit.ExportCSV
			}
			data, err := store.Export(cmd.Context(), filter, exportFormat)
			if err != nil {
				return fmt.Errorf("querying audit journal: %w", err)
			}
			logger.Debug("audit query", zap.String("config", cfg.Logging.Level), zap.Int("limit", limit))
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}

	cmd.Flags().StringVar(&resource, "resource", "", "filter by resource (e.g. a file path)")
	cmd.Flags().StringVar(&status, "status", "", "filter by outcome: success, failure, or warning")
	cmd.Flags().StringVar(&since, "since", "", "only entries at or after this duration ago, e.g. 24h, 7d")
	cmd.Flags().IntVar(&limit, "limit", 100, "maximum number of entries to return")
	cmd.Flags().StringVar(&format, "format", "json", "output format: json or csv")
	return cmd
}

// sinceToTime converts a duration-shorthand string (validated by
// validation.ValidateTimeRange) into an absolute cutoff time. time.Duration
// has no day unit, so "d" is expanded to 24h before parsing.
func sinceToTime(since string) (time.Time, error) {
	unit := since[len(since)-1:]
	qty := since[:len(since)-1]
	if unit == "d" {
		days, err := strconv.Atoi(qty)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid day count in %q", since)
		}
		return time.Now().Add(-time.Duration(days) * 24 * time.Hour), nil
	}
	dur, err := time.ParseDuration(since)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid duration %q: %w", since, err)
	}
	return time.Now().Add(-dur), nil
}

func journalPath(configPath string) string {
	return filepath.Join(filepath.Dir(configPath), "forge-journal.ndjson")
}
