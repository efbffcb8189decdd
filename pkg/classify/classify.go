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

// Package classify implements the Rule Engine (C3): an ordered catalogue of
// line-matching rules that turns a pruned log into FailureEvents. First
// matching rule per line wins; catalogue order is therefore a behavioural
// contract (see DESIGN.md Open Question decisions).
package classify

import (
	"regexp"
	"strings"

	"github.com/itchyny/gojq"

	"github.com/neopilotai/FORGE/pkg/types"
)

// Rule is one entry in the classification catalogue.
type Rule struct {
	ID                string
	Name              string
	Pattern           *regexp.Regexp
	FailureType       types.FailureType
	Severity          types.Severity
	ConfidenceModifier float64
	// ContextExtractor is an optional jq program run against a JSON object
	// built from the matched line's named capture groups. Its result is
	// flattened into FailureEvent.Context as string values.
	ContextExtractor string
}

const (
	stepLookback       = 20
	traceLinesBefore   = 5
	traceLinesAfter    = 15
)

var stepPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^##\[group\]Run (.+)$`),
	regexp.MustCompile(`^##\[([a-zA-Z0-9_-]+)\](.+)$`),
	regexp.MustCompile(`^\[([^\]]+)\]`),
	regexp.MustCompile(`^([A-Za-z0-9_.\-/ ]{1,80}):\s`),
}

var traceKeywords = []string{"at ", "error:", "stack", "traceback", "exception"}

// DefaultCatalogue covers the nine FailureType categories with common CI
// log shapes. Order encodes precedence: more specific patterns first.
var DefaultCatalogue = []Rule{
	{
		ID: "auth-401", Name: "unauthorized response",
		Pattern: regexp.MustCompile(`(?i)\b(401 unauthorized|authentication failed|invalid credentials|permission denied \(publickey\))\b`),
		FailureType: types.FailureAuth, Severity: types.SeverityError, ConfidenceModifier: 0.8,
	},
	{
		ID: "auth-403", Name: "forbidden response",
		Pattern: regexp.MustCompile(`(?i)\b(403 forbidden|access denied|not authorized|denied: denied|unauthorized: authentication required)\b`),
		FailureType: types.FailureAuth, Severity: types.SeverityError, ConfidenceModifier: 0.75,
	},
	{
		ID: "build-compile", Name: "compiler error",
		Pattern: regexp.MustCompile(`(?i)\b(compilation failed|syntax error|cannot find symbol|undefined reference|undefined: \w+)\b`),
		FailureType: types.FailureBuild, Severity: types.SeverityError, ConfidenceModifier: 0.85,
	},
	{
		ID: "build-runtime-eol", Name: "end-of-life runtime API",
		Pattern: regexp.MustCompile(`(?i)\b(\S+ is not available in node \d+|not supported on node \d+|unsupported node(\.js)? version)\b`),
		FailureType: types.FailureBuild, Severity: types.SeverityError, ConfidenceModifier: 0.8,
	},
	{
		ID: "build-dependency", Name: "dependency resolution error",
		Pattern: regexp.MustCompile(`(?i)\b(module not found|cannot resolve dependency|no matching version found|package .* not found)\b`),
		FailureType: types.FailureBuild, Severity: types.SeverityError, ConfidenceModifier: 0.7,
	},
	{
		ID: "test-failure", Name: "assertion/test failure",
		Pattern: regexp.MustCompile(`(?i)\b(\d+ (failed|failing)|assertionerror|expect\(.*\)\.to|test failed|FAIL\b)`),
		FailureType: types.FailureTest, Severity: types.SeverityError, ConfidenceModifier: 0.8,
	},
	{
		ID: "lint-violation", Name: "lint/style violation",
		Pattern: regexp.MustCompile(`(?i)\b(eslint|golangci-lint|flake8|rubocop).*(error|warning)\b`),
		FailureType: types.FailureLint, Severity: types.SeverityWarning, ConfidenceModifier: 0.6,
	},
	{
		ID: "deploy-failure", Name: "deployment failure",
		Pattern: regexp.MustCompile(`(?i)\b(deployment failed|rollout failed|helm upgrade failed|failed to deploy)\b`),
		FailureType: types.FailureDeploy, Severity: types.SeverityCritical, ConfidenceModifier: 0.85,
	},
	{
		ID: "network-error", Name: "network/connection error",
		Pattern: regexp.MustCompile(`(?i)\b(connection refused|connection reset|dial tcp.*timeout|no route to host|dns lookup failed)\b`),
		FailureType: types.FailureNetwork, Severity: types.SeverityError, ConfidenceModifier: 0.65,
	},
	{
		ID: "timeout", Name: "operation timeout",
		Pattern: regexp.MustCompile(`(?i)\b(timed out|timeout exceeded|context deadline exceeded|job timed out after)\b`),
		FailureType: types.FailureTimeout, Severity: types.SeverityError, ConfidenceModifier: 0.6,
	},
	{
		ID: "env-missing-var", Name: "missing environment/config",
		Pattern: regexp.MustCompile(`(?i)\b(environment variable .* (not set|is required)|missing required (env|config)|\.env file not found|secret '[^']+' is not defined)\b`),
		FailureType: types.FailureEnv, Severity: types.SeverityError, ConfidenceModifier: 0.7,
	},
}

// Classify scans a pruned log line by line against catalogue (nil uses
// DefaultCatalogue) and returns ordered FailureEvents. An empty result
// signals NoFailureDetected to the caller (spec.md §4.3), which must treat
// it as fatal to the run.
func Classify(prunedText string, catalogue []Rule) []types.FailureEvent {
	if catalogue == nil {
		catalogue = DefaultCatalogue
	}
	lines := strings.Split(prunedText, "\n")
	events := make([]types.FailureEvent, 0)

	for i, line := range lines {
		rule, match := firstMatch(line, catalogue)
		if rule == nil {
			continue
		}
		ev := types.FailureEvent{
			Type:                   rule.FailureType,
			Severity:               rule.Severity,
			Message:                strings.TrimSpace(line),
			LineNumber:             i + 1,
			Step:                   resolveStep(lines, i),
			Context:                extractContext(rule, match),
			RuleConfidenceModifier: rule.ConfidenceModifier,
		}
		if trace, ok := stackTraceWindow(lines, i); ok {
			ev.StackTrace = trace
		}
		events = append(events, ev)
	}
	return events
}

func firstMatch(line string, catalogue []Rule) (*Rule, []string) {
	for idx := range catalogue {
		r := &catalogue[idx]
		if m := r.Pattern.FindStringSubmatch(line); m != nil {
			return r, m
		}
	}
	return nil, nil
}

// resolveStep scans up to stepLookback preceding lines for a recognised
// step-delimiter token, returning "unknown" if none is found.
func resolveStep(lines []string, idx int) string {
	start := idx - stepLookback
	if start < 0 {
		start = 0
	}
	for i := idx; i >= start; i-- {
		line := strings.TrimSpace(lines[i])
		for _, p := range stepPatterns {
			if m := p.FindStringSubmatch(line); m != nil {
				return strings.TrimSpace(m[len(m)-1])
			}
		}
	}
	return "unknown"
}

// stackTraceWindow reports whether the lines surrounding idx resemble a
// stack trace, and if so returns the joined window.
func stackTraceWindow(lines []string, idx int) (string, bool) {
	start := idx - traceLinesBefore
	if start < 0 {
		start = 0
	}
	end := idx + traceLinesAfter
	if end >= len(lines) {
		end = len(lines) - 1
	}

	window := lines[start : end+1]
	hit := false
	for _, l := range window {
		lower := strings.ToLower(l)
		for _, kw := range traceKeywords {
			if strings.Contains(lower, kw) {
				hit = true
				break
			}
		}
		if hit {
			break
		}
	}
	if !hit {
		return "", false
	}
	return strings.Join(window, "\n"), true
}

// extractContext runs the rule's optional jq contextExtractor against the
// matched submatches (indexed as "$1".."$N") and flattens the result into
// a string map. Extraction errors are swallowed; context stays empty.
func extractContext(rule *Rule, match []string) map[string]string {
	ctx := map[string]string{}
	if rule.ContextExtractor == "" || len(match) <= 1 {
		return ctx
	}

	input := map[string]interface{}{}
	for i := 1; i < len(match); i++ {
		input[groupKey(i)] = match[i]
	}

	query, err := gojq.Parse(rule.ContextExtractor)
	if err != nil {
		return ctx
	}
	iter := query.Run(input)
	if v, ok := iter.Next(); ok {
		if errv, isErr := v.(error); isErr {
			_ = errv
			return ctx
		}
		if m, ok := v.(map[string]interface{}); ok {
			for k, val := range m {
				if s, ok := val.(string); ok {
					ctx[k] = s
				}
			}
		}
	}
	return ctx
}

func groupKey(i int) string {
	return "g" + itoa(i)
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	digits := []byte{}
	for i > 0 {
		digits = append([]byte{byte('0' + i%10)}, digits...)
		i /= 10
	}
	return string(digits)
}
