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

// Package budget implements the Token Budgeter (C6): per-model token caps,
// a word/char heuristic estimator, and truncation strategies that keep a
// prompt within its model's budget. Pure arithmetic (see DESIGN.md).
package budget

import "strings"

const (
	wordTokenFactor = 1.3
	charTokenFactor = 0.25

	defaultSafetyFraction = 0.80
	outputReservationFrac = 0.20

	maxTruncateIterations = 20

	optimizeHead = 100
	optimizeTail = 200
)

// Strategy selects where truncateToFit drops lines from.
type Strategy string

const (
	StrategyStart  Strategy = "start"
	StrategyEnd    Strategy = "end"
	StrategyMiddle Strategy = "middle"
)

// ModelCaps is the total-token cap for one backend model.
var ModelCaps = map[string]int{
	"claude-3-5-sonnet": 200000,
	"claude-3-opus":     200000,
	"claude-3-haiku":    200000,
	"bedrock-titan":     32000,
	"local-llama3":      8192,
}

// EstimateTokens averages the word-based and char-based heuristics.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	words := len(strings.Fields(text))
	chars := len(text)
	wordEstimate := float64(words) * wordTokenFactor
	charEstimate := float64(chars) * charTokenFactor
	return int((wordEstimate + charEstimate) / 2.0)
}

// BudgetCheck is checkBudget's result.
type BudgetCheck struct {
	InputTokens        int
	OutputReservation  int
	BudgetCeiling      int
	RemainingBudget    int
	Pass               bool
}

// CheckBudget computes whether system+user+context fits within model's
// safety-fraction-adjusted ceiling, reserving outputReservationFrac of the
// cap for the model's response.
func CheckBudget(model, system, user, context string) BudgetCheck {
	cap := ModelCaps[model]
	ceiling := int(float64(cap) * defaultSafetyFraction)
	input := EstimateTokens(system) + EstimateTokens(user) + EstimateTokens(context)
	output := int(float64(cap) * outputReservationFrac)
	remaining := ceiling - input - output

	return BudgetCheck{
		InputTokens:       input,
		OutputReservation: output,
		BudgetCeiling:     ceiling,
		RemainingBudget:   remaining,
		Pass:              remaining >= 0,
	}
}

// TruncateToFit iteratively drops lines from text (per strategy) until its
// estimated token count is at or under cap, giving up after
// maxTruncateIterations and hard-truncating by character count instead.
func TruncateToFit(text string, cap int, strategy Strategy) string {
	if EstimateTokens(text) <= cap {
		return text
	}

	lines := strings.Split(text, "\n")
	for i := 0; i < maxTruncateIterations && len(lines) > 1; i++ {
		lines = dropFraction(lines, strategy)
		candidate := strings.Join(lines, "\n")
		if EstimateTokens(candidate) <= cap {
			return candidate
		}
	}

	// Hard char-count fallback: tokens ~= chars * 0.25, so target chars.
	maxChars := int(float64(cap) / charTokenFactor)
	joined := strings.Join(lines, "\n")
	if len(joined) <= maxChars {
		return joined
	}
	return hardTruncate(joined, maxChars, strategy)
}

func dropFraction(lines []string, strategy Strategy) []string {
	if len(lines) <= 1 {
		return lines
	}
	drop := len(lines) / 10
	if drop < 1 {
		drop = 1
	}
	switch strategy {
	case StrategyStart:
		if drop >= len(lines) {
			return lines[len(lines)-1:]
		}
		return lines[drop:]
	case StrategyEnd:
		if drop >= len(lines) {
			return lines[:1]
		}
		return lines[:len(lines)-drop]
	default: // middle
		half := drop / 2
		if half < 1 {
			half = 1
		}
		mid := len(lines) / 2
		lo := mid - half
		hi := mid + half
		if lo < 0 {
			lo = 0
		}
		if hi > len(lines) {
			hi = len(lines)
		}
		out := make([]string, 0, len(lines)-(hi-lo))
		out = append(out, lines[:lo]...)
		out = append(out, lines[hi:]...)
		return out
	}
}

func hardTruncate(s string, maxChars int, strategy Strategy) string {
	if maxChars <= 0 || len(s) <= maxChars {
		return s
	}
	switch strategy {
	case StrategyStart:
		return s[len(s)-maxChars:]
	case StrategyEnd:
		return s[:maxChars]
	default:
		half := maxChars / 2
		return s[:half] + s[len(s)-(maxChars-half):]
	}
}

// OptimizeLogSnippet builds a head+omission-marker+tail window sized to
// cap, falling back to middle-strategy truncation if still over budget.
func OptimizeLogSnippet(text string, cap int) string {
	lines := strings.Split(text, "\n")
	if len(lines) <= optimizeHead+optimizeTail {
		candidate := text
		if EstimateTokens(candidate) > cap {
			return TruncateToFit(candidate, cap, StrategyMiddle)
		}
		return candidate
	}

	omitted := len(lines) - optimizeHead - optimizeTail
	var b strings.Builder
	b.WriteString(strings.Join(lines[:optimizeHead], "\n"))
	b.WriteString("\n... [")
	b.WriteString(itoa(omitted))
	b.WriteString(" lines omitted] ...\n")
	b.WriteString(strings.Join(lines[len(lines)-optimizeTail:], "\n"))

	candidate := b.String()
	if EstimateTokens(candidate) > cap {
		return TruncateToFit(candidate, cap, StrategyMiddle)
	}
	return candidate
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	digits := []byte{}
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	if neg {
		return "-" + string(digits)
	}
	return string(digits)
}
