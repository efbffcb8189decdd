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
	"path/filepath"

	"github.com/go-logr/zapr"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/neopilotai/FORGE/internal/config"
	"github.com/neopilotai/FORGE/pkg/agent"
	"github.com/neopilotai/FORGE/pkg/apply"
	"github.com/neopilotai/FORGE/pkg/audit"
	"github.com/neopilotai/FORGE/pkg/gate"
	"github.com/neopilotai/FORGE/pkg/metrics"
	"github.com/neopilotai/FORGE/pkg/notify"
	"github.com/neopilotai/FORGE/pkg/orchestrator"
	"github.com/neopilotai/FORGE/pkg/pipeline"
	"github.com/neopilotai/FORGE/pkg/retry"
)

// buildDriver loads configPath and wires a pipeline.Driver from it: an
// agent backend behind the Multi-Agent Orchestrator, an Applicator backed
// by a Redis lock when REDIS_ADDR is set (otherwise in-process), and a
// file-backed audit journal alongside the config file.
func buildDriver(configPath string) (*pipeline.Driver, *config.Config, error) {
	return buildDriverWithLogger(configPath, zap.NewNop())
}

func buildDriverWithLogger(configPath string, zlog *zap.Logger) (*pipeline.Driver, *config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}

	backend, err := agent.NewBackend(agent.Config{
		Provider:    cfg.Agent.Provider,
		Model:       cfg.Agent.Model,
		Endpoint:    cfg.Agent.Endpoint,
		Region:      cfg.Agent.Region,
		Temperature: cfg.Agent.Temperature,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("constructing agent backend: %w", err)
	}
	orch := orchestrator.New(backend, retry.DefaultOptions())

	locker := resolveLocker()
	stateDir := filepath.Join(filepath.Dir(configPath), ".forge-state")
	applicator := apply.New(locker, stateDir)

	store, err := audit.NewFileStore(journalPath(configPath), audit.DefaultRetention)
	if err != nil {
		return nil, nil, fmt.Errorf("opening audit journal: %w", err)
	}

	driver := pipeline.New(orch, applicator, store)
	driver.Logger = zapr.NewLogger(zlog)
	driver.Notifier = notify.New(cfg.Notify.SlackToken, cfg.Notify.SlackChannel)
	driver.Metrics, _ = metrics.New()
	driver.GateConfig = gate.Config{
		AutoApplyThreshold:       cfg.Gate.AutoApplyThreshold,
		ManualReviewThreshold:    cfg.Gate.ManualReviewThreshold,
		EscalateThreshold:        cfg.Gate.EscalateThreshold,
		AllowAutoApplyOnCritical:  cfg.Gate.AllowAutoApplyOnCritical,
		RequiresSecurityReview:    cfg.Gate.RequiresSecurityReview,
		RequiresPerformanceReview: cfg.Gate.RequiresPerformanceReview,
	}
	return driver, cfg, nil
}

func resolveLocker() apply.Locker {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		return apply.NewInProcessLocker()
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	return apply.NewRedisLocker(client)
}
