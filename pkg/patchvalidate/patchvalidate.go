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

// Package patchvalidate implements the Patch Validator (C12): per-extension
// structural checks run against a patch's post-image content.
package patchvalidate

import (
	"encoding/json"
	"path/filepath"
	"regexp"
	"strings"

	tektonv1 "github.com/tektoncd/pipeline/pkg/apis/pipeline/v1"
	sigsyaml "sigs.k8s.io/yaml"
	"gopkg.in/yaml.v3"
)

// FileReport is one file's validation result.
type FileReport struct {
	Filename string
	Errors   []string
	Warnings []string
	Fixes    []string
}

// Report aggregates FileReports for a set of changed files.
type Report struct {
	Files []FileReport
}

// IssueCount returns the total errors+warnings across all files, used to
// order the aggregated report.
func (r Report) IssueCount(i int) int {
	return len(r.Files[i].Errors) + len(r.Files[i].Warnings)
}

// Validate dispatches content to the checker matching filename's
// extension and shape.
func Validate(filename, content string) FileReport {
	report := FileReport{Filename: filename}
	ext := strings.ToLower(filepath.Ext(filename))

	switch {
	case ext == ".yml" || ext == ".yaml":
		validateYAML(filename, content, &report)
	case ext == ".json":
		validateJSON(filename, content, &report)
	case ext == ".ts" || ext == ".tsx" || ext == ".js" || ext == ".jsx":
		validateJSOrTS(content, &report)
	case ext == ".py":
		validatePython(content, &report)
	case ext == ".sh" || ext == ".bash":
		validateShell(content, &report)
	}
	return report
}

func validateYAML(filename, content string, report *FileReport) {
	var generic interface{}
	if err := yaml.Unmarshal([]byte(content), &generic); err != nil {
		report.Errors = append(report.Errors, "unparseable YAML: "+err.Error())
		return
	}
	if strings.Contains(content, "\t") {
		report.Errors = append(report.Errors, "tab indentation is not allowed in YAML")
	}
	for _, line := range strings.Split(content, "\n") {
		leading := len(line) - len(strings.TrimLeft(line, " "))
		if leading%2 != 0 && strings.TrimSpace(line) != "" {
			report.Warnings = append(report.Warnings, "indentation not a multiple of 2: "+strings.TrimSpace(line))
		}
	}
	if unbalancedQuotes(content) {
		report.Errors = append(report.Errors, "unmatched quotes in YAML")
	}

	switch {
	case looksLikeTekton(content):
		report.Errors = append(report.Errors, ValidateTektonShape(content)...)
	case looksLikeWorkflow(filename, content):
		validateWorkflowShape(content, report)
	}
}

func looksLikeWorkflow(filename, content string) bool {
	return strings.Contains(filename, "workflows/") || strings.Contains(content, "\njobs:") || strings.HasPrefix(content, "jobs:")
}

func looksLikeTekton(content string) bool {
	return strings.Contains(content, "tekton.dev/")
}

func validateWorkflowShape(content string, report *FileReport) {
	var doc map[string]interface{}
	if err := yaml.Unmarshal([]byte(content), &doc); err != nil {
		return
	}
	if _, ok := doc["name"]; !ok {
		report.Errors = append(report.Errors, "workflow missing top-level 'name'")
	}
	if _, hasOn := doc["on"]; !hasOn {
		report.Errors = append(report.Errors, "workflow missing trigger clause ('on')")
	}
	jobsRaw, ok := doc["jobs"]
	if !ok {
		report.Errors = append(report.Errors, "workflow missing 'jobs' mapping")
		return
	}
	jobs, ok := jobsRaw.(map[string]interface{})
	if !ok {
		report.Errors = append(report.Errors, "'jobs' is not a mapping")
		return
	}
	for name, raw := range jobs {
		job, ok := raw.(map[string]interface{})
		if !ok {
			report.Errors = append(report.Errors, "job '"+name+"' is not a mapping")
			continue
		}
		if _, ok := job["runs-on"]; !ok {
			report.Errors = append(report.Errors, "job '"+name+"' missing a runner declaration")
		}
		steps, ok := job["steps"].([]interface{})
		if !ok || len(steps) == 0 {
			report.Errors = append(report.Errors, "job '"+name+"' has no steps")
			continue
		}
		for i, rawStep := range steps {
			step, ok := rawStep.(map[string]interface{})
			if !ok {
				continue
			}
			_, hasUses := step["uses"]
			_, hasRun := step["run"]
			if !hasUses && !hasRun {
				report.Errors = append(report.Errors, "job '"+name+"' step "+itoa(i)+" has neither an action reference nor a run command")
			}
		}
	}
}

// ValidateTektonShape decodes content as a Tekton v1 Pipeline or Task,
// surfacing apimachinery decode errors as structural violations. Validate
// calls this automatically once a YAML file sniffs as tekton.dev-shaped;
// it is also exported for callers that know a file is Tekton-shaped ahead
// of time.
func ValidateTektonShape(content string) []string {
	errs := []string{}
	jsonBytes, err := sigsyaml.YAMLToJSON([]byte(content))
	if err != nil {
		return []string{"could not convert YAML to JSON for Tekton decode: " + err.Error()}
	}

	var pipeline tektonv1.Pipeline
	if err := json.Unmarshal(jsonBytes, &pipeline); err == nil && pipeline.Kind == "Pipeline" {
		if len(pipeline.Spec.Tasks) == 0 {
			errs = append(errs, "Tekton Pipeline has no tasks")
		}
		return errs
	}

	var task tektonv1.Task
	if err := json.Unmarshal(jsonBytes, &task); err == nil && task.Kind == "Task" {
		if len(task.Spec.Steps) == 0 {
			errs = append(errs, "Tekton Task has no steps")
		}
		return errs
	}
	return errs
}

func validateJSON(filename, content string, report *FileReport) {
	if hasTrailingComma(content) {
		report.Errors = append(report.Errors, "trailing comma in JSON")
	}
	var doc map[string]interface{}
	if err := json.Unmarshal([]byte(content), &doc); err != nil {
		report.Errors = append(report.Errors, "unparseable JSON: "+err.Error())
		return
	}
	if strings.Contains(filename, "package.json") {
		if _, ok := doc["name"]; !ok {
			report.Errors = append(report.Errors, "package manifest missing 'name'")
		}
		if _, ok := doc["version"]; !ok {
			report.Errors = append(report.Errors, "package manifest missing 'version'")
		}
	}
}

var trailingCommaPattern = regexp.MustCompile(`,\s*[}\]]`)

func hasTrailingComma(content string) bool {
	return trailingCommaPattern.MatchString(content)
}

func validateJSOrTS(content string, report *FileReport) {
	if !balanced(content, '{', '}') || !balanced(content, '(', ')') {
		report.Errors = append(report.Errors, "unbalanced braces or parentheses")
	}
	if strings.Contains(content, " as any") || strings.Contains(content, ": any") {
		report.Warnings = append(report.Warnings, "use of 'any' escapes type checking")
	}
	if regexp.MustCompile(`\bvar\s+\w+`).MatchString(content) {
		report.Warnings = append(report.Warnings, "legacy 'var' declaration; prefer let/const")
	}
}

func balanced(s string, open, close rune) bool {
	depth := 0
	for _, r := range s {
		switch r {
		case open:
			depth++
		case close:
			depth--
		}
		if depth < 0 {
			return false
		}
	}
	return depth == 0
}

func validatePython(content string, report *FileReport) {
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimLeft(line, " ")
		leading := len(line) - len(trimmed)
		if leading%4 != 0 && trimmed != "" {
			report.Warnings = append(report.Warnings, "indentation not a multiple of 4: "+strings.TrimSpace(line))
		}
	}
	if regexp.MustCompile(`:\s*:`).MatchString(content) {
		report.Warnings = append(report.Warnings, "suspicious colon placement")
	}
}

func validateShell(content string, report *FileReport) {
	if !strings.HasPrefix(strings.TrimSpace(content), "#!") {
		report.Warnings = append(report.Warnings, "missing shebang line")
	}
	if regexp.MustCompile(`\$[A-Za-z_][A-Za-z0-9_]*\b`).MatchString(content) &&
		!regexp.MustCompile(`"\$\{?[A-Za-z_][A-Za-z0-9_]*\}?"`).MatchString(content) {
		report.Warnings = append(report.Warnings, "unquoted variable reference")
	}
}

func unbalancedQuotes(content string) bool {
	single := strings.Count(content, "'")
	double := strings.Count(content, "\"")
	return single%2 != 0 || double%2 != 0
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
