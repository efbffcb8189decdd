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

// Package server wires forge-server's chi router: a webhook endpoint that
// runs the pipeline, an audit-query endpoint, and health/metrics endpoints.
package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-logr/zapr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
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

// Server holds the pipeline.Driver and the journal store it owns, so Close
// can flush/release both.
type Server struct {
	driver   *pipeline.Driver
	store    audit.Store
	logger   *zap.Logger
	cfg      *config.Config
	registry *prometheus.Registry
}

// New wires a Driver from cfg: an agent backend, an in-process or
// Redis-backed lock (REDIS_ADDR env var selects Redis), and a file-backed
// audit journal.
func New(cfg *config.Config, logger *zap.Logger) (*Server, error) {
	backend, err := agent.NewBackend(agent.Config{
		Provider:    cfg.Agent.Provider,
		Model:       cfg.Agent.Model,
		Endpoint:    cfg.Agent.Endpoint,
		Region:      cfg.Agent.Region,
		Temperature: cfg.Agent.Temperature,
	})
	if err != nil {
		return nil, err
	}
	orch := orchestrator.New(backend, retry.DefaultOptions())

	var locker apply.Locker = apply.NewInProcessLocker()
	if cfg.Apply.AutoApply {
		// Auto-apply deployments are expected to run multiple replicas
		// behind the webhook, so default to a Redis-backed lock when a
		// Redis endpoint is reachable at the conventional address.
		locker = apply.NewRedisLocker(redis.NewClient(&redis.Options{Addr: "redis:6379"}))
	}
	applicator := apply.New(locker, "/var/lib/forge/state")

	store, err := audit.NewFileStore("/var/lib/forge/journal.ndjson", audit.DefaultRetention)
	if err != nil {
		return nil, err
	}

	driver := pipeline.New(orch, applicator, store)
	driver.Logger = zapr.NewLogger(logger)
	driver.Notifier = notify.New(cfg.Notify.SlackToken, cfg.Notify.SlackChannel)
	driverMetrics, registry := metrics.New()
	driver.Metrics = driverMetrics
	driver.GateConfig = gate.Config{
		AutoApplyThreshold:       cfg.Gate.AutoApplyThreshold,
		ManualReviewThreshold:    cfg.Gate.ManualReviewThreshold,
		EscalateThreshold:        cfg.Gate.EscalateThreshold,
		AllowAutoApplyOnCritical:  cfg.Gate.AllowAutoApplyOnCritical,
		RequiresSecurityReview:    cfg.Gate.RequiresSecurityReview,
		RequiresPerformanceReview: cfg.Gate.RequiresPerformanceReview,
	}

	return &Server{driver: driver, store: store, logger: logger, cfg: cfg, registry: registry}, nil
}

// Router builds the chi mux: CORS, request logging/recovery, and routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Authorization"},
		MaxAge:           300,
	}))

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	r.Post("/webhook", s.handleWebhook)
	r.Get("/audit", s.handleAuditQuery)

	return r
}

// Close releases the audit journal's resources.
func (s *Server) Close() error {
	return s.store.Close()
}
