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

package server

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/neopilotai/FORGE/internal/config"
	"github.com/neopilotai/FORGE/pkg/gate"
)

// WatchConfig watches configPath's directory and hot-reloads the driver's
// gate thresholds whenever the file is rewritten, so operators can tune
// AutoApplyThreshold and friends without a restart. The directory, not the
// file, is watched: ConfigMap mounts and most editors replace the file via
// rename rather than an in-place write, which a direct file watch misses.
// The watcher goroutine exits when ctx is cancelled.
func (s *Server) WatchConfig(ctx context.Context, configPath string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(configPath)); err != nil {
		watcher.Close()
		return err
	}

	target := filepath.Clean(configPath)
	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != target {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				s.reloadGateConfig(configPath)
			case werr, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.logger.Warn("config watcher error", zap.Error(werr))
			}
		}
	}()
	return nil
}

func (s *Server) reloadGateConfig(configPath string) {
	cfg, err := config.Load(configPath)
	if err != nil {
		s.logger.Warn("config reload failed, keeping previous gate thresholds",
			zap.String("path", configPath), zap.Error(err))
		return
	}
	s.driver.SetGateConfig(gate.Config{
		AutoApplyThreshold:        cfg.Gate.AutoApplyThreshold,
		ManualReviewThreshold:     cfg.Gate.ManualReviewThreshold,
		EscalateThreshold:         cfg.Gate.EscalateThreshold,
		AllowAutoApplyOnCritical:  cfg.Gate.AllowAutoApplyOnCritical,
		RequiresSecurityReview:    cfg.Gate.RequiresSecurityReview,
		RequiresPerformanceReview: cfg.Gate.RequiresPerformanceReview,
	})
	s.cfg = cfg
	s.logger.Info("gate thresholds reloaded", zap.String("path", configPath))
}
