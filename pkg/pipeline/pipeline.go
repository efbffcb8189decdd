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

// Package pipeline implements the Pipeline Driver (C17): it glues C1–C15
// in the order spec.md §2 lays out, injects cancellation and per-hop
// timeouts, tees every hop to the Audit Journal (C16), and decides
// whether to surface a partial result or abort on each hop's failure.
package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	forgeerrors "github.com/neopilotai/FORGE/internal/errors"
	"github.com/neopilotai/FORGE/pkg/apply"
	"github.com/neopilotai/FORGE/pkg/audit"
	"github.com/neopilotai/FORGE/pkg/blastradius"
	"github.com/neopilotai/FORGE/pkg/classify"
	"github.com/neopilotai/FORGE/pkg/confidence"
	"github.com/neopilotai/FORGE/pkg/diff"
	"github.com/neopilotai/FORGE/pkg/dryrun"
	"github.com/neopilotai/FORGE/pkg/gate"
	"github.com/neopilotai/FORGE/pkg/metrics"
	"github.com/neopilotai/FORGE/pkg/notify"
	"github.com/neopilotai/FORGE/pkg/orchestrator"
	"github.com/neopilotai/FORGE/pkg/patchvalidate"
	"github.com/neopilotai/FORGE/pkg/prune"
	"github.com/neopilotai/FORGE/pkg/redact"
	"github.com/neopilotai/FORGE/pkg/types"
)

// Request is one pipeline invocation's input.
type Request struct {
	RawLog         string
	WorkflowConfig string
	ChangeSet      string
	Model          string
	Root           string
	Metadata       types.WorkflowMetadata
	AutoApply      bool
	SkipDryRun     bool
	Deadline       time.Time
}

// Result is the pipeline's terminal output. Exactly one of Applied,
// Escalated, or Rejected describes what happened; Analysis and Plan are
// populated as far as the pipeline got before stopping.
type Result struct {
	Analysis     types.FailureAnalysis
	Summary      types.SummaryResponse
	Patch        types.UnifiedPatch
	Validation   patchvalidate.FileReport
	Decision     types.GateDecision
	Plan         types.DryRunPlan
	Application  types.ApplicationRecord
	Stage        string
	Cancelled    bool
}

// Driver wires the Multi-Agent Orchestrator, Confidence Gate, and
// Applicator together with an audit Store tee'd at every hop.
type Driver struct {
	Orchestrator  *orchestrator.Orchestrator
	Applicator    *apply.Applicator
	GateConfig    gate.Config
	Store         audit.Store
	RuleCatalogue []classify.Rule
	Logger        logr.Logger
	Notifier      notify.Notifier
	Metrics       *metrics.Metrics

	gateMu sync.RWMutex
}

// SetGateConfig swaps the gate thresholds the driver evaluates against.
// Safe to call concurrently with Run, so a caller can hot-reload config
// (see cmd/forge-server's file watcher) without restarting the process.
func (d *Driver) SetGateConfig(cfg gate.Config) {
	d.gateMu.Lock()
	defer d.gateMu.Unlock()
	d.GateConfig = cfg
}

func (d *Driver) currentGateConfig() gate.Config {
	d.gateMu.RLock()
	defer d.gateMu.RUnlock()
	return d.GateConfig
}

func New(orch *orchestrator.Orchestrator, applicator *apply.Applicator, store audit.Store) *Driver {
	return &Driver{
		Orchestrator:  orch,
		Applicator:    applicator,
		GateConfig:    gate.DefaultConfig(),
		Store:         store,
		RuleCatalogue: classify.DefaultCatalogue,
		Logger:        logr.Discard(),
		Notifier:      notify.NopNotifier{},
	}
}

// notifyEscalation pages a human on escalate/manual-review decisions. The
// notifier's own errors are logged, never surfaced to the caller: a missing
// Slack webhook must not turn a successful diagnosis into a pipeline error.
func (d *Driver) notifyEscalation(ctx context.Context, resource string, decision types.GateDecision, metrics types.ConfidenceMetrics, radius types.BlastRadius) {
	if d.Notifier == nil {
		return
	}
	if decision.Action != types.GateEscalate && decision.Action != types.GateManualReview {
		return
	}
	err := d.Notifier.Notify(ctx, notify.Escalation{
		Resource:    resource,
		Decision:    decision,
		Confidence:  metrics,
		BlastRadius: radius,
		Reason:      decision.Reasoning,
	})
	if err != nil {
		d.Logger.V(0).Info("escalation notification failed", "resource", resource, "error", err.Error())
	}
}

func (d *Driver) tee(ctx context.Context, event types.AuditEventType, resource, action string, status types.AuditStatus) {
	d.Logger.V(1).Info("pipeline hop", "event", event, "resource", resource, "action", action, "status", status)
	if d.Store == nil {
		return
	}
	_ = d.Store.Append(ctx, audit.NewEntry(event, "pipeline", resource, action, status))
}

// Run executes the full analysis-to-application pipeline, stopping early
// and surfacing a partial Result whenever a hop can't proceed (no failure
// detected, budget exceeded, gate rejection, and so on). It records the
// run's latency and terminal stage to d.Metrics when set.
func (d *Driver) Run(ctx context.Context, req Request) (Result, error) {
	ctx, span := otel.Tracer("forge/pipeline").Start(ctx, "Driver.Run")
	defer span.End()

	start := time.Now()
	result, err := d.run(ctx, req)
	span.SetAttributes(attribute.String("forge.stage", result.Stage))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	if d.Metrics != nil {
		d.Metrics.PipelineDurationSeconds.Observe(time.Since(start).Seconds())
		d.Metrics.PipelineRunsTotal.WithLabelValues(result.Stage).Inc()
	}
	return result, err
}

func (d *Driver) run(ctx context.Context, req Request) (Result, error) {
	if !req.Deadline.IsZero() {
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(ctx, req.Deadline)
		defer cancel()
	}

	result := Result{Stage: "redact"}
	if err := ctx.Err(); err != nil {
		result.Cancelled = true
		return result, forgeerrors.New(forgeerrors.ErrorTypeCancelled, "pipeline cancelled before start")
	}

	redacted := redact.Redact(req.RawLog, redact.DefaultCatalogue)
	d.tee(ctx, types.AuditSecretsScan, "log", "redact", types.AuditSuccess)

	result.Stage = "prune"
	pruned := prune.Prune(redacted.Text, prune.DefaultOptions())

	result.Stage = "classify"
	events := classify.Classify(pruned.Text, d.RuleCatalogue)
	if len(events) == 0 {
		d.tee(ctx, types.AuditValidationCheck, "log", "classify", types.AuditWarning)
		return result, forgeerrors.New(forgeerrors.ErrorTypeNoFailureDetected, "rule engine found no matching failure pattern")
	}
	primary := events[0]

	result.Stage = "score"
	metrics := confidence.Score(primary, primary.RuleConfidenceModifier, nil)
	radius := blastradius.Estimate(primary, req.Metadata)

	analysis := types.FailureAnalysis{
		ID:          uuid.New().String(),
		Events:      events,
		Primary:     primary,
		Confidence:  metrics,
		BlastRadius: radius,
		Redaction:   redacted.Stats,
		Pruning:     pruned,
	}
	result.Analysis = analysis

	if ctx.Err() != nil {
		result.Cancelled = true
		result.Stage = "cancelled-before-orchestrator"
		return result, forgeerrors.New(forgeerrors.ErrorTypeCancelled, "pipeline cancelled before orchestrator")
	}

	result.Stage = "orchestrate"
	orchestrateCtx, orchestrateSpan := otel.Tracer("forge/pipeline").Start(ctx, "orchestrate")
	summary, err := d.Orchestrator.Run(orchestrateCtx, orchestrator.Input{
		LogSnippet:     pruned.Text,
		ConfigArtifact: req.WorkflowConfig,
		ChangeSet:      req.ChangeSet,
		Model:          req.Model,
	})
	if err != nil {
		orchestrateSpan.RecordError(err)
		orchestrateSpan.SetStatus(codes.Error, err.Error())
		orchestrateSpan.End()
		d.tee(ctx, types.AuditValidationCheck, "orchestrator", "run", types.AuditFailure)
		if forgeerrors.IsType(err, forgeerrors.ErrorTypeCancelled) {
			result.Cancelled = true
		}
		return result, err
	}
	orchestrateSpan.End()
	result.Summary = summary
	d.tee(ctx, types.AuditFixGenerated, summary.Agents.FixGenerator.FixFile, "generate", types.AuditSuccess)

	result.Stage = "diff"
	fix := summary.Agents.FixGenerator
	original, exists, err := dryrun.LoadCandidate(req.Root, fix.FixFile)
	if err != nil {
		return result, forgeerrors.New(forgeerrors.ErrorTypeInternal, "could not read candidate file: "+err.Error())
	}
	patch := diff.Compute(fix.FixFile, original, fix.FixContent, !exists, false)
	result.Patch = patch

	result.Stage = "validate"
	postImage, err := diff.ApplyPatch(original, patch)
	if err != nil {
		d.tee(ctx, types.AuditValidationCheck, fix.FixFile, "validate", types.AuditFailure)
		return result, forgeerrors.New(forgeerrors.ErrorTypeValidationFailed, "patch does not apply cleanly: "+err.Error())
	}
	report := patchvalidate.Validate(fix.FixFile, postImage)
	result.Validation = report
	if len(report.Errors) > 0 {
		d.tee(ctx, types.AuditValidationCheck, fix.FixFile, "validate", types.AuditFailure)
		return result, forgeerrors.New(forgeerrors.ErrorTypeValidationFailed, "post-image failed structural validation")
	}
	d.tee(ctx, types.AuditValidationCheck, fix.FixFile, "validate", types.AuditSuccess)

	result.Stage = "gate"
	decision, err := gate.Evaluate(ctx, gate.Input{
		Confidence:        metrics,
		IsCriticalFailure: radius.Level == types.BlastHigh,
		ValidationErrors:  len(report.Errors),
		TouchedPaths:      []string{fix.FixFile},
		NewFiles:          boolToInt(!exists),
	}, d.currentGateConfig())
	if err != nil {
		return result, forgeerrors.New(forgeerrors.ErrorTypeInternal, "gate evaluation failed: "+err.Error())
	}
	result.Decision = decision
	d.tee(ctx, types.AuditValidationCheck, fix.FixFile, string(decision.Action), types.AuditSuccess)
	d.notifyEscalation(ctx, fix.FixFile, decision, metrics, radius)
	if d.Metrics != nil {
		d.Metrics.GateDecisionsTotal.WithLabelValues(string(decision.Action)).Inc()
		d.Metrics.ConfidenceScore.Observe(metrics.Score)
	}

	if decision.Action == types.GateReject {
		return result, forgeerrors.New(forgeerrors.ErrorTypeApplyConflict, "confidence gate rejected the patch")
	}

	result.Stage = "dry-run"
	if !req.SkipDryRun {
		plan := dryrun.Plan(ctx, req.Root, []dryrun.Candidate{{Patch: patch, CurrentContent: original, Exists: exists}})
		result.Plan = plan
		if plan.Cancelled {
			result.Cancelled = true
			return result, forgeerrors.New(forgeerrors.ErrorTypeCancelled, "dry run cancelled")
		}
		if !plan.Success {
			return result, forgeerrors.New(forgeerrors.ErrorTypeApplyConflict, "dry run predicts a conflict")
		}
	}

	if decision.Action != types.GateAutoApply && !req.AutoApply {
		result.Stage = "awaiting-review"
		return result, nil
	}

	result.Stage = "apply"
	record, err := d.Applicator.ApplyPatches(ctx, req.Root, []types.UnifiedPatch{patch}, decision, apply.Options{AutoApply: req.AutoApply})
	result.Application = record
	if err != nil {
		d.tee(ctx, types.AuditFixApplied, fix.FixFile, "apply", types.AuditFailure)
		return result, err
	}
	d.tee(ctx, types.AuditFixApplied, fix.FixFile, "apply", types.AuditSuccess)
	if d.Metrics != nil {
		d.Metrics.FixAppliedTotal.Inc()
	}
	result.Stage = "done"
	return result, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
