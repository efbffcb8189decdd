package schema

import (
	"strings"
	"testing"
)

func TestExtractJSON_Bare(t *testing.T) {
	raw := `{"a": 1}`
	if got := ExtractJSON(raw); got != raw {
		t.Errorf("expected unchanged, got %q", got)
	}
}

func TestExtractJSON_MarkdownFenced(t *testing.T) {
	raw := "Here is the result:\n```json\n{\"a\": 1}\n```\n"
	got := ExtractJSON(raw)
	if got != `{"a": 1}` {
		t.Errorf("expected fenced JSON extracted, got %q", got)
	}
}

func TestValidate_LogAnalystValid(t *testing.T) {
	raw := `{
		"failureType": "build",
		"severity": "high",
		"summary": "compilation failed",
		"rootCauseLines": ["line 10"],
		"contextLines": ["line 9", "line 10"],
		"suggestedSearchTerms": ["undefined reference"]
	}`
	result := Validate(KindLogAnalyst, raw)
	if !result.Valid {
		t.Fatalf("expected valid, violations: %v", result.Violations)
	}
}

func TestValidate_LogAnalystInvalidEnum(t *testing.T) {
	raw := `{"failureType": "not-a-real-type", "severity": "high", "summary": "x"}`
	result := Validate(KindLogAnalyst, raw)
	if result.Valid {
		t.Fatalf("expected invalid due to bad enum value")
	}
	if len(result.Violations) == 0 {
		t.Errorf("expected violations to be populated")
	}
}

func TestValidate_FixGeneratorMissingRequired(t *testing.T) {
	raw := `{"confidence": 0.9}`
	result := Validate(KindFixGenerator, raw)
	if result.Valid {
		t.Fatalf("expected invalid due to missing required fields")
	}
}

func TestCorrectionDirective_ListsViolationsAndDemandsJSON(t *testing.T) {
	directive := CorrectionDirective([]Violation{{Path: "$/severity", Reason: "value is not one of enum values"}})
	if !strings.Contains(directive, "$/severity") {
		t.Errorf("expected directive to reference violation path")
	}
	if !strings.Contains(directive, "pure JSON") {
		t.Errorf("expected directive to demand pure JSON")
	}
}
