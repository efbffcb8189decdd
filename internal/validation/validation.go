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

// Package validation hardens the pipeline's untrusted-input surfaces: patch
// target paths, CLI/webhook query parameters, and free-form log fields.
// These checks are deliberately independent of internal/config's struct-tag
// validation — they run against values that arrive at request time, not at
// config-load time.
package validation

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/neopilotai/FORGE/pkg/types"
)

const (
	maxFilePathLength = 4096
	maxWindowMinutes  = 7 * 24 * 60 // 10080
	maxQueryLimit     = 10000
)

var unsafePatternRe = regexp.MustCompile(`(?i)(union\s+select|drop\s+table|--|;\s*drop|<script|</script)`)

var timeRangeRe = regexp.MustCompile(`^\d+(h|m|d)$`)

// ValidateFilePath checks a patch's target path is non-empty, bounded, does
// not escape its working-tree root, and carries no control characters.
func ValidateFilePath(path string) error {
	var errs []string
	if path == "" {
		errs = append(errs, "path is required")
	}
	if len(path) > maxFilePathLength {
		errs = append(errs, fmt.Sprintf("path must be %d characters or less", maxFilePathLength))
	}
	if strings.Contains(path, "..") {
		errs = append(errs, "path must not contain parent-directory references")
	}
	if strings.HasPrefix(path, "/") {
		errs = append(errs, "path must be relative to the working-tree root")
	}
	if hasControlChars(path) {
		errs = append(errs, "path contains invalid control characters")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// ValidateStringInput checks field against maxLen and rejects values that
// look like injection attempts or carry raw control characters.
func ValidateStringInput(field, value string, maxLen int) error {
	if len(value) > maxLen {
		return fmt.Errorf("%s must be %d characters or less", field, maxLen)
	}
	if unsafePatternRe.MatchString(value) {
		return fmt.Errorf("%s contains potentially unsafe characters", field)
	}
	if hasControlChars(value) {
		return fmt.Errorf("%s contains invalid control characters", field)
	}
	return nil
}

// ValidateGateAction checks action is one of the Confidence Gate's
// recognized decision actions.
func ValidateGateAction(action string) error {
	if err := ValidateStringInput("action", action, 64); err != nil {
		return err
	}
	switch types.GateAction(action) {
	case types.GateAutoApply, types.GateManualReview, types.GateEscalate, types.GateReject:
		return nil
	default:
		return fmt.Errorf("%q is not a recognized gate action", action)
	}
}

// ValidateTimeRange checks a duration-shorthand string like "24h", "7d", or
// "60m", used by audit-journal query flags.
func ValidateTimeRange(timeRange string) error {
	if err := ValidateStringInput("time range", timeRange, 16); err != nil {
		return err
	}
	if !timeRangeRe.MatchString(timeRange) {
		return fmt.Errorf("time range must be in format like '1h', '24h', '7d'")
	}
	return nil
}

// ValidateWindowMinutes bounds a pruning/retention window to (0, 7 days].
func ValidateWindowMinutes(minutes int) error {
	if minutes <= 0 {
		return fmt.Errorf("window minutes must be greater than 0")
	}
	if minutes > maxWindowMinutes {
		return fmt.Errorf("window minutes must be 7 days (%d minutes) or less", maxWindowMinutes)
	}
	return nil
}

// ValidateLimit bounds an audit-query page size to (0, 10000].
func ValidateLimit(limit int) error {
	if limit <= 0 {
		return fmt.Errorf("limit must be greater than 0")
	}
	if limit > maxQueryLimit {
		return fmt.Errorf("limit must be %d or less", maxQueryLimit)
	}
	return nil
}

// SanitizeForLogging replaces control characters with '?' and truncates to
// 200 characters (with a "..." suffix) so untrusted strings are safe to
// write into structured log fields.
func SanitizeForLogging(input string) string {
	var b strings.Builder
	for _, r := range input {
		if isControlRune(r) {
			b.WriteRune('?')
		} else {
			b.WriteRune(r)
		}
	}
	out := b.String()
	if len(out) > 200 {
		out = out[:197] + "..."
	}
	return out
}

func hasControlChars(s string) bool {
	for _, r := range s {
		if isControlRune(r) {
			return true
		}
	}
	return false
}

func isControlRune(r rune) bool {
	switch r {
	case '\t', '\n', '\r':
		return false
	}
	return r < 0x20 || r == 0x7f
}
