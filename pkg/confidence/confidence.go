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

// Package confidence implements the Confidence Scorer (C4): a pure
// arithmetic combination of five signals about a FailureEvent into a
// suggested action. No third-party library does weighted-mean scoring
// over a handful of scalars (see DESIGN.md), so this is plain math.
package confidence

import (
	"math"

	"github.com/neopilotai/FORGE/pkg/types"
)

var severityTable = map[types.Severity]float64{
	types.SeverityInfo:     0.40,
	types.SeverityWarning:  0.65,
	types.SeverityError:    0.85,
	types.SeverityCritical: 0.95,
}

var typeCertaintyTable = map[types.FailureType]float64{
	types.FailureAuth:    0.95,
	types.FailureEnv:     0.92,
	types.FailureBuild:   0.90,
	types.FailureDeploy:  0.88,
	types.FailureTest:    0.85,
	types.FailureTimeout: 0.80,
	types.FailureLint:    0.75,
	types.FailureNetwork: 0.70,
	types.FailureUnknown: 0.30,
}

const (
	fallbackRuleModifier   = 0.5
	contextKeyWeight       = 0.1
	contextKeyCap          = 0.3
	stackTraceBoost        = 0.20
	minNonTrivialTraceLen  = 50
	autoFixThreshold       = 0.9
	escalateThreshold      = 0.6
	boostCap               = 0.20
)

// Score computes a ConfidenceMetrics for one FailureEvent. ruleModifier is
// the matched rule's confidenceModifier, or fallbackRuleModifier (0.5) if
// the caller used a fallback/generic rule. boostSignals are externally
// supplied booleans (e.g. "tests previously green", "single-line diff")
// that can add up to boostCap extra score.
func Score(ev types.FailureEvent, ruleModifier float64, boostSignals map[string]bool) types.ConfidenceMetrics {
	factors := make([]types.ConfidenceFactor, 0, 6)

	ruleFactor := ruleModifier
	if ruleFactor <= 0 {
		ruleFactor = fallbackRuleModifier
	}
	factors = append(factors, types.ConfidenceFactor{
		Name: "rule-match", Weight: ruleFactor, Matched: ruleModifier > 0,
		Reason: "matched rule's confidenceModifier, or 0.5 fallback",
	})

	sevFactor, sevKnown := severityTable[ev.Severity]
	if !sevKnown {
		sevFactor = severityTable[types.SeverityInfo]
	}
	factors = append(factors, types.ConfidenceFactor{
		Name: "severity-alignment", Weight: sevFactor, Matched: sevKnown,
		Reason: "fixed severity-to-confidence table",
	})

	ctxFactor := math.Min(contextKeyWeight*float64(len(ev.Context)), contextKeyCap)
	factors = append(factors, types.ConfidenceFactor{
		Name: "context-richness", Weight: ctxFactor, Matched: len(ev.Context) > 0,
		Reason: "0.1 per context key, capped at 0.3",
	})

	typeFactor, typeKnown := typeCertaintyTable[ev.Type]
	if !typeKnown {
		typeFactor = typeCertaintyTable[types.FailureUnknown]
	}
	factors = append(factors, types.ConfidenceFactor{
		Name: "type-certainty", Weight: typeFactor, Matched: typeKnown,
		Reason: "per-failure-type certainty table",
	})

	traceFactor := 0.0
	traceMatched := len(ev.StackTrace) > minNonTrivialTraceLen
	if traceMatched {
		traceFactor = stackTraceBoost
	}
	factors = append(factors, types.ConfidenceFactor{
		Name: "stack-trace-presence", Weight: traceFactor, Matched: traceMatched,
		Reason: "0.20 if a non-trivial (>50 char) trace is attached",
	})

	sum := ruleFactor + sevFactor + ctxFactor + typeFactor + traceFactor
	score := sum / 5.0

	boost := externalBoost(boostSignals)
	if boost > 0 {
		factors = append(factors, types.ConfidenceFactor{
			Name: "external-boost", Weight: boost, Matched: true,
			Reason: "externally supplied boolean signals, capped at 0.20",
		})
		score += boost
	}

	if score > 1.0 {
		score = 1.0
	}
	score = math.Round(score*100) / 100

	return types.ConfidenceMetrics{
		Score:           score,
		Factors:         factors,
		SuggestedAction: suggestedAction(score),
	}
}

func externalBoost(signals map[string]bool) float64 {
	if len(signals) == 0 {
		return 0
	}
	n := 0
	for _, v := range signals {
		if v {
			n++
		}
	}
	boost := float64(n) * 0.05
	if boost > boostCap {
		boost = boostCap
	}
	return boost
}

func suggestedAction(score float64) types.SuggestedAction {
	switch {
	case score >= autoFixThreshold:
		return types.ActionAutoFix
	case score < escalateThreshold:
		return types.ActionEscalate
	default:
		return types.ActionManualReview
	}
}
