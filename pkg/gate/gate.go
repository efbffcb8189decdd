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

// Package gate implements the Confidence Gate (C13): a state-free decision
// function evaluated as a Rego policy over the patch's risk profile.
package gate

import (
	"context"
	"fmt"
	"strings"

	"github.com/open-policy-agent/opa/rego"

	"github.com/neopilotai/FORGE/pkg/redact"
	"github.com/neopilotai/FORGE/pkg/types"
)

const policyModule = `
package forge.gate

default decision = "reject"

decision = "reject" if {
	input.validation_errors > 0
}

decision = "manual-review" if {
	input.validation_errors == 0
	input.requires_security_review
	input.touches_security_lexicon
}

decision = "manual-review" if {
	input.validation_errors == 0
	not (input.requires_security_review and input.touches_security_lexicon)
	input.requires_performance_review
	input.touches_performance_lexicon
}

decision = "auto-apply" if {
	input.validation_errors == 0
	not (input.requires_security_review and input.touches_security_lexicon)
	not (input.requires_performance_review and input.touches_performance_lexicon)
	input.score >= input.auto_apply_threshold
	not (input.is_critical_failure and not input.allow_auto_apply_on_critical)
}

decision = "manual-review" if {
	input.validation_errors == 0
	not (input.requires_security_review and input.touches_security_lexicon)
	not (input.requires_performance_review and input.touches_performance_lexicon)
	input.score >= input.auto_apply_threshold
	input.is_critical_failure
	not input.allow_auto_apply_on_critical
}

decision = "manual-review" if {
	input.validation_errors == 0
	not (input.requires_security_review and input.touches_security_lexicon)
	not (input.requires_performance_review and input.touches_performance_lexicon)
	input.score < input.auto_apply_threshold
	input.score >= input.manual_review_threshold
}

decision = "escalate" if {
	input.validation_errors == 0
	not (input.requires_security_review and input.touches_security_lexicon)
	not (input.requires_performance_review and input.touches_performance_lexicon)
	input.score < input.manual_review_threshold
	input.score >= input.escalate_threshold
}
`

var securityLexicon = []string{"auth", "secret", "password", "token", "credential", "permission", "access", "security"}
var performanceLexicon = []string{"cache", "database", "query", "optimization", "performance", "index"}

var criticalPathMarkers = []string{"package-lock.json", "go.sum", "yarn.lock", ".github/workflows/", "Pipfile.lock"}

// Config carries the gate's thresholds and review flags.
type Config struct {
	AutoApplyThreshold        float64
	ManualReviewThreshold     float64
	EscalateThreshold         float64
	AllowAutoApplyOnCritical  bool
	RequiresSecurityReview    bool
	RequiresPerformanceReview bool
}

// DefaultConfig returns spec.md §4.11's default thresholds.
func DefaultConfig() Config {
	return Config{
		AutoApplyThreshold:    0.9,
		ManualReviewThreshold: 0.6,
		EscalateThreshold:     0.3,
	}
}

// Input is everything the gate needs about one candidate application.
type Input struct {
	Confidence        types.ConfidenceMetrics
	IsCriticalFailure bool
	ValidationErrors  int
	TouchedPaths      []string
	Deletions         int
	NewFiles          int
}

var query = rego.New(
	rego.Query("data.forge.gate.decision"),
	rego.Module("gate.rego", policyModule),
)

// Evaluate runs the Rego policy over in and cfg, returning a GateDecision
// with risk enrichment and recommendations attached.
func Evaluate(ctx context.Context, in Input, cfg Config) (types.GateDecision, error) {
	pq, err := query.PrepareForEval(ctx)
	if err != nil {
		return types.GateDecision{}, fmt.Errorf("gate: policy preparation failed: %w", err)
	}

	regoInput := map[string]interface{}{
		"validation_errors":            in.ValidationErrors,
		"requires_security_review":    cfg.RequiresSecurityReview,
		"touches_security_lexicon":    touchesLexicon(in.TouchedPaths, securityLexicon),
		"requires_performance_review": cfg.RequiresPerformanceReview,
		"touches_performance_lexicon": touchesLexicon(in.TouchedPaths, performanceLexicon),
		"score":                        in.Confidence.Score,
		"auto_apply_threshold":        cfg.AutoApplyThreshold,
		"manual_review_threshold":     cfg.ManualReviewThreshold,
		"escalate_threshold":          cfg.EscalateThreshold,
		"is_critical_failure":         in.IsCriticalFailure,
		"allow_auto_apply_on_critical": cfg.AllowAutoApplyOnCritical,
	}

	results, err := pq.Eval(ctx, rego.EvalInput(regoInput))
	if err != nil {
		return types.GateDecision{}, fmt.Errorf("gate: policy evaluation failed: %w", err)
	}
	action := "reject"
	if len(results) > 0 && len(results[0].Expressions) > 0 {
		if s, ok := results[0].Expressions[0].Value.(string); ok {
			action = s
		}
	}

	risks, recommendations := enrichRisk(in)
	return types.GateDecision{
		Action:          types.GateAction(action),
		Confidence:      in.Confidence,
		Reasoning:       reasoningFor(types.GateAction(action), in),
		Risks:           risks,
		Recommendations: recommendations,
	}, nil
}

func touchesLexicon(paths []string, lexicon []string) bool {
	for _, p := range paths {
		if redact.ContainsKeyword(p, lexicon) {
			return true
		}
	}
	return false
}

func enrichRisk(in Input) (risks, recommendations []string) {
	if len(in.TouchedPaths) > 5 {
		risks = append(risks, "change set touches more than 5 files")
	}
	if in.Deletions > 0 {
		risks = append(risks, fmt.Sprintf("patch deletes %d file(s)", in.Deletions))
	}
	if in.NewFiles > 3 {
		risks = append(risks, "patch introduces more than 3 new files")
	}
	for _, p := range in.TouchedPaths {
		for _, marker := range criticalPathMarkers {
			if strings.Contains(p, marker) {
				risks = append(risks, "touches critical path: "+p)
			}
		}
	}
	if len(risks) > 0 {
		recommendations = append(recommendations, "review touched critical paths before applying")
	}
	return risks, recommendations
}

func reasoningFor(action types.GateAction, in Input) string {
	return fmt.Sprintf("decision=%s based on score=%.2f, validationErrors=%d, criticalFailure=%v", action, in.Confidence.Score, in.ValidationErrors, in.IsCriticalFailure)
}
