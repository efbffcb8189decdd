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

// Package redact implements the Redactor (C1): an ordered catalogue of
// secret recognizers that scrub a raw CI log before anything derived from
// it leaves the host. No third-party library in the retrieval pack does
// secret-catalogue redaction (see DESIGN.md), so this is stdlib regexp.
package redact

import (
	"regexp"
	"strings"

	"github.com/neopilotai/FORGE/pkg/types"
)

// Recognizer is one entry in the redaction catalogue.
type Recognizer struct {
	Category    types.Category
	Severity    types.Severity
	Pattern     *regexp.Regexp
	Placeholder string
}

func placeholder(tag string) string {
	return "[REDACTED_" + tag + "]"
}

// DefaultCatalogue is the ordered recognizer list applied by Redact. Order
// matters only for preview truncation bookkeeping; every recognizer scans
// independently over the whole text.
var DefaultCatalogue = []Recognizer{
	{
		Category:    types.CategorySourceForgeToken,
		Severity:    types.SeverityCritical,
		Pattern:     regexp.MustCompile(`\bgh[pousr]_[A-Za-z0-9]{20,}\b`),
		Placeholder: placeholder("SOURCE_FORGE_TOKEN"),
	},
	{
		Category:    types.CategoryCloudAccessKey,
		Severity:    types.SeverityCritical,
		Pattern:     regexp.MustCompile(`\b(AKIA|ASIA)[0-9A-Z]{16}\b`),
		Placeholder: placeholder("CLOUD_ACCESS_KEY"),
	},
	{
		Category:    types.CategoryCloudAccessKey,
		Severity:    types.SeverityCritical,
		Pattern:     regexp.MustCompile(`(?i)\b(aws_secret_access_key|secret[_-]?access[_-]?key)\s*[:=]\s*\S+`),
		Placeholder: placeholder("CLOUD_ACCESS_KEY"),
	},
	{
		Category:    types.CategoryBearerToken,
		Severity:    types.SeverityCritical,
		Pattern:     regexp.MustCompile(`(?i)\b(authorization|bearer)\s*[:=]?\s*bearer\s+[A-Za-z0-9._\-]+`),
		Placeholder: placeholder("BEARER_TOKEN"),
	},
	{
		Category:    types.CategoryBasicAuthURL,
		Severity:    types.SeverityError,
		Pattern:     regexp.MustCompile(`\b[a-zA-Z][a-zA-Z0-9+.\-]*://[^\s/:@]+:[^\s/:@]+@[^\s/]+`),
		Placeholder: placeholder("BASIC_AUTH_URL"),
	},
	{
		Category:    types.CategoryPrivateKey,
		Severity:    types.SeverityCritical,
		Pattern:     regexp.MustCompile(`-----BEGIN (RSA |EC )?PRIVATE KEY-----[\s\S]*?-----END (RSA |EC )?PRIVATE KEY-----`),
		Placeholder: placeholder("PRIVATE_KEY"),
	},
	{
		Category:    types.CategoryDBConnectionString,
		Severity:    types.SeverityCritical,
		Pattern:     regexp.MustCompile(`(?i)\b(postgres|postgresql|mysql|mongodb(\+srv)?|redis)://[^\s]+`),
		Placeholder: placeholder("DB_CONNECTION_STRING"),
	},
	{
		Category:    types.CategoryRegistryToken,
		Severity:    types.SeverityCritical,
		Pattern:     regexp.MustCompile(`(?i)\b(npm_token|NODE_AUTH_TOKEN|registry[_-]?token)\s*[:=]\s*\S+`),
		Placeholder: placeholder("REGISTRY_TOKEN"),
	},
	{
		Category:    types.CategoryGenericSecret,
		Severity:    types.SeverityError,
		Pattern:     regexp.MustCompile(`(?i)\b(password|api_key|apikey|token|secret)\s*[:=]\s*["']?[^\s"']{4,}["']?`),
		Placeholder: placeholder("GENERIC_SECRET"),
	},
	{
		Category:    types.CategoryEmail,
		Severity:    types.SeverityWarning,
		Pattern:     regexp.MustCompile(`\b[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}\b`),
		Placeholder: placeholder("EMAIL"),
	},
	{
		Category:    types.CategorySessionID,
		Severity:    types.SeverityWarning,
		Pattern:     regexp.MustCompile(`(?i)\b(session[_-]?id|sessionid|JSESSIONID)\s*[:=]\s*[A-Za-z0-9\-._]{8,}`),
		Placeholder: placeholder("SESSION_ID"),
	},
}

const previewLen = 20

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// Redact scrubs raw according to the given catalogue (nil uses
// DefaultCatalogue) and returns the resulting RedactedLog.
//
// Idempotence (spec.md §8 invariant 1): re-running Redact on its own output
// must yield zero additional hits. This holds because the placeholder
// ("[REDACTED_<CATEGORY>]") contains no digits, no "@", no "://", and no
// recognized keyword/value separator shape that any recognizer matches.
func Redact(raw string, catalogue []Recognizer) types.RedactedLog {
	if catalogue == nil {
		catalogue = DefaultCatalogue
	}

	text := raw
	byCategory := map[types.Category]int{}
	previews := map[types.Category][]string{}
	order := []types.Category{}
	seen := map[types.Category]bool{}

	for _, r := range catalogue {
		matches := r.Pattern.FindAllString(text, -1)
		if len(matches) == 0 {
			continue
		}
		byCategory[r.Category] += len(matches)
		if !seen[r.Category] {
			seen[r.Category] = true
			order = append(order, r.Category)
		}
		for _, m := range matches {
			if len(previews[r.Category]) < 2 {
				previews[r.Category] = append(previews[r.Category], truncate(m, previewLen))
			}
		}
		text = r.Pattern.ReplaceAllString(text, r.Placeholder)
	}

	total := 0
	hits := make([]types.PatternHit, 0, len(order))
	for _, cat := range order {
		total += byCategory[cat]
		hits = append(hits, types.PatternHit{
			Category: cat,
			Count:    byCategory[cat],
			Previews: previews[cat],
		})
	}

	return types.RedactedLog{
		Text: text,
		Stats: types.RedactionStats{
			SecretsFound: total,
			ByCategory:   byCategory,
			Risk:         riskFor(byCategory),
		},
		PatternHits: hits,
	}
}

func riskFor(byCategory map[types.Category]int) types.RiskLevel {
	if len(byCategory) == 0 {
		return types.RiskNone
	}
	critical := 0
	for cat, n := range byCategory {
		if n == 0 {
			continue
		}
		switch cat {
		case types.CategoryPrivateKey, types.CategoryCloudAccessKey, types.CategorySourceForgeToken,
			types.CategoryDBConnectionString, types.CategoryRegistryToken, types.CategoryBearerToken:
			critical++
		}
	}
	total := 0
	for _, n := range byCategory {
		total += n
	}
	switch {
	case critical >= 2:
		return types.RiskCritical
	case critical == 1:
		return types.RiskHigh
	case total > 0:
		return types.RiskMedium
	default:
		return types.RiskNone
	}
}

// ContainsKeyword reports whether s contains any of the security lexicon
// keywords the Confidence Gate (C13) uses for its security-review check.
func ContainsKeyword(s string, keywords []string) bool {
	lower := strings.ToLower(s)
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
