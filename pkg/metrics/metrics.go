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

// Package metrics holds the pipeline's Prometheus collectors, registered on
// a dedicated registry rather than the global default so an embedding
// process's own metrics aren't clobbered.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds every collector the pipeline updates as it runs.
type Metrics struct {
	registry *prometheus.Registry

	// PipelineRunsTotal counts pipeline invocations by terminal stage
	// (done, awaiting-review, rejected, no-failure-detected, ...).
	PipelineRunsTotal *prometheus.CounterVec

	// FixAppliedTotal counts successful applications.
	FixAppliedTotal prometheus.Counter

	// FixRevertedTotal counts rollbacks.
	FixRevertedTotal prometheus.Counter

	// GateDecisionsTotal counts Confidence Gate outcomes by action.
	GateDecisionsTotal *prometheus.CounterVec

	// PipelineDurationSeconds records end-to-end Run latency.
	PipelineDurationSeconds prometheus.Histogram

	// ConfidenceScore records the distribution of C4 scores observed.
	ConfidenceScore prometheus.Histogram
}

// New builds a Metrics bound to its own registry and returns both, so a
// caller can mount registry via promhttp.HandlerFor.
func New() (*Metrics, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		PipelineRunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "forge_pipeline_runs_total",
			Help: "Pipeline invocations by terminal stage.",
		}, []string{"stage"}),
		FixAppliedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "forge_fix_applied_total",
			Help: "Patches successfully applied.",
		}),
		FixRevertedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "forge_fix_reverted_total",
			Help: "Patches rolled back.",
		}),
		GateDecisionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "forge_gate_decisions_total",
			Help: "Confidence Gate decisions by action.",
		}, []string{"action"}),
		PipelineDurationSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "forge_pipeline_duration_seconds",
			Help:    "End-to-end pipeline Run latency.",
			Buckets: prometheus.DefBuckets,
		}),
		ConfidenceScore: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "forge_confidence_score",
			Help:    "Confidence Scorer (C4) output distribution.",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		}),
	}
	reg.MustRegister(
		m.PipelineRunsTotal,
		m.FixAppliedTotal,
		m.FixRevertedTotal,
		m.GateDecisionsTotal,
		m.PipelineDurationSeconds,
		m.ConfidenceScore,
	)
	return m, reg
}

// Registry returns the registry New bound m to.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
