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

// Package blastradius implements the Blast-Radius Estimator (C5): a base
// level per failure type, escalated by step-name keywords and optional
// caller-supplied workflow metadata. Image references mentioned in the
// failing line are parsed with go-containerregistry to enrich
// affectedAreas with registry/repository context.
package blastradius

import (
	"regexp"
	"strings"

	"github.com/google/go-containerregistry/pkg/name"

	"github.com/neopilotai/FORGE/pkg/types"
)

var baseLevel = map[types.FailureType]types.BlastLevel{
	types.FailureBuild:   types.BlastHigh,
	types.FailureDeploy:  types.BlastHigh,
	types.FailureAuth:    types.BlastHigh,
	types.FailureTest:    types.BlastMedium,
	types.FailureEnv:     types.BlastMedium,
	types.FailureNetwork: types.BlastMedium,
	types.FailureTimeout: types.BlastMedium,
	types.FailureUnknown: types.BlastMedium,
	types.FailureLint:    types.BlastLow,
}

var escalationKeywords = []string{
	"setup", "build", "compile", "deploy", "publish", "release", "authenticate", "login",
}

var imageRefPattern = regexp.MustCompile(`\b[a-zA-Z0-9][a-zA-Z0-9_.\-]*(?:/[a-zA-Z0-9_.\-]+)*:[a-zA-Z0-9_.\-]+\b`)

var levelOrder = map[types.BlastLevel]int{
	types.BlastLow:    0,
	types.BlastMedium: 1,
	types.BlastHigh:   2,
}

// Estimate computes the BlastRadius for a classified failure event. meta is
// optional caller-supplied workflow context; pass a zero-value
// types.WorkflowMetadata when none is available.
func Estimate(ev types.FailureEvent, meta types.WorkflowMetadata) types.BlastRadius {
	level, ok := baseLevel[ev.Type]
	if !ok {
		level = types.BlastMedium
	}
	reasons := []string{"base level for failure type " + string(ev.Type)}
	areas := []string{}
	riskFactors := []string{}
	dependents := []string{}

	if stepContainsKeyword(ev.Step, escalationKeywords) {
		level = escalate(level)
		reasons = append(reasons, "step name matches escalation keyword")
		riskFactors = append(riskFactors, "escalation-keyword-in-step")
	}

	if meta.MatrixDimensions > 1 {
		for i := 0; i < meta.MatrixDimensions; i++ {
			areas = append(areas, "matrix-shard")
		}
		reasons = append(reasons, "matrix parallelism widens affected areas")
		riskFactors = append(riskFactors, "matrix-build")
	}
	if len(meta.DependentJobs) > 0 {
		dependents = append(dependents, meta.DependentJobs...)
	}
	if meta.CriticalPath {
		level = escalate(level)
		reasons = append(reasons, "critical-path flag escalates one level")
		riskFactors = append(riskFactors, "critical-path")
	}

	switch ev.Type {
	case types.FailureAuth:
		areas = append(areas, "authentication-layer")
	case types.FailureBuild:
		areas = append(areas, "build-pipeline")
	case types.FailureDeploy:
		level = types.BlastHigh
		areas = append(areas, "deployment-pipeline")
		reasons = append(reasons, "deploy failures always pin level to high")
	}

	if ref, ok := extractImageRef(ev.Message); ok {
		areas = append(areas, "registry:"+ref)
	}

	return types.BlastRadius{
		Level:         level,
		AffectedAreas: dedupe(areas),
		Dependents:    dedupe(dependents),
		RiskFactors:   dedupe(riskFactors),
		Reasoning:     strings.Join(reasons, "; "),
	}
}

func escalate(level types.BlastLevel) types.BlastLevel {
	switch level {
	case types.BlastLow:
		return types.BlastMedium
	case types.BlastMedium:
		return types.BlastHigh
	default:
		return types.BlastHigh
	}
}

func stepContainsKeyword(step string, keywords []string) bool {
	lower := strings.ToLower(step)
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// extractImageRef finds the first container image reference in message and
// returns its registry/repository, parsed via go-containerregistry.
func extractImageRef(message string) (string, bool) {
	candidate := imageRefPattern.FindString(message)
	if candidate == "" {
		return "", false
	}
	ref, err := name.ParseReference(candidate)
	if err != nil {
		return "", false
	}
	return ref.Context().RepositoryStr(), true
}

func dedupe(items []string) []string {
	if len(items) == 0 {
		return items
	}
	seen := map[string]bool{}
	out := make([]string, 0, len(items))
	for _, it := range items {
		if seen[it] {
			continue
		}
		seen[it] = true
		out = append(out, it)
	}
	return out
}
