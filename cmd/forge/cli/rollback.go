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

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newRollbackCommand(logger *zap.Logger, configPath *string) *cobra.Command {
	var root string

	cmd := &cobra.Command{
		Use:   "rollback <application-id>",
		Short: "Restore the files touched by a previously applied patch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			driver, _, err := buildDriverWithLogger(*configPath, logger)
			if err != nil {
				return err
			}

			result, err := driver.Applicator.Rollback(cmd.Context(), root, args[0])
			if err != nil {
				return fmt.Errorf("rollback failed: %w", err)
			}
			if driver.Metrics != nil {
				driver.Metrics.FixRevertedTotal.Inc()
			}
			logger.Info("rollback complete",
				zap.Strings("restored", result.Restored),
				zap.Strings("errors", result.Errors),
				zap.Int64("duration_ms", result.DurationMs),
			)
			fmt.Fprintf(cmd.OutOrStdout(), "restored %d file(s)\n", len(result.Restored))
			return nil
		},
	}

	cmd.Flags().StringVar(&root, "root", ".", "working-tree root the patch was applied against")
	return cmd
}
