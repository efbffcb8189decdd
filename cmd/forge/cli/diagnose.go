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
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/neopilotai/FORGE/pkg/pipeline"
)

func newDiagnoseCommand(logger *zap.Logger, configPath *string) *cobra.Command {
	var (
		logPath       string
		workflowPath  string
		changeSetPath string
		root          string
		model         string
		autoApply     bool
		skipDryRun    bool
	)

	cmd := &cobra.Command{
		Use:   "diagnose",
		Short: "Run the full analysis-to-application pipeline once against a failed CI run",
		RunE: func(cmd *cobra.Command, args []string) error {
			driver, _, err := buildDriverWithLogger(*configPath, logger)
			if err != nil {
				return err
			}

			rawLog, err := os.ReadFile(logPath)
			if err != nil {
				return fmt.Errorf("reading log file: %w", err)
			}
			var workflowConfig, changeSet string
			if workflowPath != "" {
				b, err := os.ReadFile(workflowPath)
				if err != nil {
					return fmt.Errorf("reading workflow config: %w", err)
				}
				workflowConfig = string(b)
			}
			if changeSetPath != "" {
				b, err := os.ReadFile(changeSetPath)
				if err != nil {
					return fmt.Errorf("reading change set: %w", err)
				}
				changeSet = string(b)
			}

			result, err := driver.Run(cmd.Context(), pipeline.Request{
				RawLog:         string(rawLog),
				WorkflowConfig: workflowConfig,
				ChangeSet:      changeSet,
				Model:          model,
				Root:           root,
				AutoApply:      autoApply,
				SkipDryRun:     skipDryRun,
			})
			logger.Info("pipeline finished",
				zap.String("stage", result.Stage),
				zap.String("decision", string(result.Decision.Action)),
				zap.Bool("cancelled", result.Cancelled),
			)
			if err != nil {
				return fmt.Errorf("pipeline stopped at stage %q: %w", result.Stage, err)
			}
			if result.Stage == "awaiting-review" {
				fmt.Fprintf(cmd.OutOrStdout(), "patch for %s awaits manual review (confidence=%.2f, action=%s)\n",
					result.Patch.Filename, result.Analysis.Confidence.Score, result.Decision.Action)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "applied patch for %s (application id=%s)\n", result.Patch.Filename, result.Application.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&logPath, "log", "", "path to the failed CI run's log")
	cmd.Flags().StringVar(&workflowPath, "workflow", "", "path to the workflow config artifact")
	cmd.Flags().StringVar(&changeSetPath, "changeset", "", "path to a unified diff of the triggering change")
	cmd.Flags().StringVar(&root, "root", ".", "working-tree root the patch applies against")
	cmd.Flags().StringVar(&model, "model", "", "model name passed to the agent backend")
	cmd.Flags().BoolVar(&autoApply, "auto-apply", false, "apply even when the gate recommends manual review")
	cmd.Flags().BoolVar(&skipDryRun, "skip-dry-run", false, "skip the dry-run simulation step")
	cmd.MarkFlagRequired("log")

	return cmd
}
