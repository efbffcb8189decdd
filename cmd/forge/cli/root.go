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

// Package cli assembles forge's cobra command tree.
package cli

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// NewRootCommand builds the forge root command and attaches its subcommands.
func NewRootCommand(logger *zap.Logger) *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "forge",
		Short: "Diagnose and patch CI failures with LLM-driven expert review",
		Long: "forge reads a failed CI run's log, a workflow configuration, and the\n" +
			"relevant change set, runs them through a rule-based classifier and a\n" +
			"multi-expert LLM pipeline, and applies the resulting patch when the\n" +
			"confidence gate authorizes it.",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "forge.yaml", "path to forge's config file")

	root.AddCommand(newDiagnoseCommand(logger, &configPath))
	root.AddCommand(newRollbackCommand(logger, &configPath))
	root.AddCommand(newAuditCommand(logger, &configPath))

	return root
}
