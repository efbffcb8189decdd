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

// Command forge is the one-shot CLI entrypoint: point it at a failed CI
// log, a workflow config, and a working-tree root, and it runs the full
// analysis-to-application pipeline once and exits.
package main

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/neopilotai/FORGE/cmd/forge/cli"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintln(os.Stderr, "forge: failed to initialize logger:", err)
		os.Exit(1)
	}
	defer logger.Sync()

	root := cli.NewRootCommand(logger)
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
