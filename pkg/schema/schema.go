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

// Package schema implements the Schema Validator (C7): tolerant JSON
// extraction from an agent's raw text response, and OpenAPI-schema
// validation of the five AgentResponse wire contracts (spec.md §6).
package schema

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/go-faster/jx"
)

// Kind identifies which of the five agent response schemas to validate
// against.
type Kind string

const (
	KindLogAnalyst     Kind = "log-analyst"
	KindWorkflowExpert Kind = "workflow-expert"
	KindCodeReviewer   Kind = "code-reviewer"
	KindFixGenerator   Kind = "fix-generator"
	KindSummary        Kind = "summary"
)

// Violation is one path-qualified schema mismatch.
type Violation struct {
	Path   string
	Reason string
}

// Result is the Schema Validator's output: either valid with a parsed JSON
// document, or a list of violations.
type Result struct {
	Valid      bool
	Document   map[string]interface{}
	Violations []Violation
}

var fencePattern = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(.*?)\\n?```")

// ExtractJSON pulls a JSON object out of raw text, accepting either a bare
// JSON document or one fenced in a markdown code block. Returns the raw
// JSON substring.
func ExtractJSON(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if m := fencePattern.FindStringSubmatch(trimmed); m != nil {
		return strings.TrimSpace(m[1])
	}
	return trimmed
}

// ParseTolerant extracts and decodes a JSON object from raw text using
// go-faster/jx, salvaging whatever top-level fields parse even if the
// document as a whole is malformed past some point.
func ParseTolerant(raw string) (map[string]interface{}, error) {
	candidate := ExtractJSON(raw)
	d := jx.DecodeStr(candidate)

	result := map[string]interface{}{}
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		val, decodeErr := decodeAny(d)
		if decodeErr != nil {
			return decodeErr
		}
		result[string(key)] = val
		return nil
	})
	if err != nil && len(result) == 0 {
		return nil, fmt.Errorf("schema: could not parse any fields from response: %w", err)
	}
	return result, nil
}

func decodeAny(d *jx.Decoder) (interface{}, error) {
	switch d.Next() {
	case jx.String:
		return d.Str()
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return nil, err
		}
		f, _ := n.Float64()
		return f, nil
	case jx.Bool:
		return d.Bool()
	case jx.Null:
		return nil, d.Null()
	case jx.Array:
		items := []interface{}{}
		err := d.Arr(func(d *jx.Decoder) error {
			v, err := decodeAny(d)
			if err != nil {
				return err
			}
			items = append(items, v)
			return nil
		})
		return items, err
	case jx.Object:
		obj := map[string]interface{}{}
		err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
			v, err := decodeAny(d)
			if err != nil {
				return err
			}
			obj[string(key)] = v
			return nil
		})
		return obj, err
	default:
		return nil, fmt.Errorf("schema: unsupported JSON token")
	}
}

// Validate parses raw and checks the result against kind's OpenAPI schema,
// returning path-qualified violations on failure.
func Validate(kind Kind, raw string) Result {
	doc, err := ParseTolerant(raw)
	if err != nil {
		return Result{Valid: false, Violations: []Violation{{Path: "$", Reason: err.Error()}}}
	}

	sc, ok := schemas[kind]
	if !ok {
		return Result{Valid: false, Violations: []Violation{{Path: "$", Reason: "unknown schema kind"}}}
	}

	if err := sc.VisitJSON(doc); err != nil {
		return Result{Valid: false, Document: doc, Violations: violationsFrom(err)}
	}
	return Result{Valid: true, Document: doc}
}

func violationsFrom(err error) []Violation {
	if schErr, ok := err.(*openapi3.SchemaError); ok {
		path := "$"
		if len(schErr.JSONPointer()) > 0 {
			path = "$/" + strings.Join(schErr.JSONPointer(), "/")
		}
		return []Violation{{Path: path, Reason: schErr.Reason}}
	}
	return []Violation{{Path: "$", Reason: err.Error()}}
}

// CorrectionDirective builds the text the retry orchestrator (C8) injects
// between attempts on a schema failure: a listing of violations and a
// demand for pure JSON.
func CorrectionDirective(violations []Violation) string {
	var b strings.Builder
	b.WriteString("Your previous response did not match the required schema:\n")
	for _, v := range violations {
		b.WriteString(fmt.Sprintf("- %s: %s\n", v.Path, v.Reason))
	}
	b.WriteString("Respond with pure JSON only, matching the schema exactly. Do not include prose or markdown fencing.")
	return b.String()
}

func strSchema() *openapi3.Schema {
	return openapi3.NewStringSchema()
}

func arrSchema(items *openapi3.Schema) *openapi3.Schema {
	return openapi3.NewArraySchema().WithItems(items)
}

func enumSchema(values ...interface{}) *openapi3.Schema {
	return openapi3.NewStringSchema().WithEnum(values...)
}

var schemas = map[Kind]*openapi3.Schema{
	KindLogAnalyst: openapi3.NewObjectSchema().WithProperties(map[string]*openapi3.Schema{
		"failureType":          enumSchema("auth", "build", "test", "deploy", "network", "timeout", "env", "unknown"),
		"severity":             enumSchema("critical", "high", "medium", "low"),
		"summary":              openapi3.NewStringSchema().WithMaxLength(200),
		"rootCauseLines":       arrSchema(strSchema()),
		"contextLines":         arrSchema(strSchema()).WithMaxItems(5),
		"suggestedSearchTerms": arrSchema(strSchema()).WithMaxItems(3),
	}).WithRequired([]string{"failureType", "severity", "summary"}),

	KindWorkflowExpert: openapi3.NewObjectSchema().WithProperties(map[string]*openapi3.Schema{
		"issueType":      enumSchema("permissions", "secrets", "env-vars", "matrix", "cache", "concurrency", "none"),
		"recommendation": openapi3.NewStringSchema().WithMaxLength(300),
		"yamlChanges": arrSchema(openapi3.NewObjectSchema().WithProperties(map[string]*openapi3.Schema{
			"path":     strSchema(),
			"oldValue": strSchema(),
			"newValue": strSchema(),
			"reason":   strSchema(),
		})),
		"riskLevel": enumSchema("low", "medium", "high"),
	}).WithRequired([]string{"issueType", "recommendation", "riskLevel"}),

	KindCodeReviewer: openapi3.NewObjectSchema().WithProperties(map[string]*openapi3.Schema{
		"issuesFound": arrSchema(openapi3.NewObjectSchema().WithProperties(map[string]*openapi3.Schema{
			"type":       enumSchema("security", "performance", "style", "logic", "testing"),
			"severity":   enumSchema("critical", "major", "minor"),
			"file":       strSchema(),
			"line":       openapi3.NewIntegerSchema(),
			"message":    strSchema(),
			"suggestion": strSchema(),
		})),
		"overallScore": openapi3.NewIntegerSchema().WithMin(0).WithMax(100),
		"blockers":     arrSchema(strSchema()),
	}).WithRequired([]string{"issuesFound", "overallScore"}),

	KindFixGenerator: openapi3.NewObjectSchema().WithProperties(map[string]*openapi3.Schema{
		"confidence":     openapi3.NewFloat64Schema().WithMin(0).WithMax(1),
		"fixFile":        strSchema(),
		"fixStartLine":   openapi3.NewIntegerSchema(),
		"fixContent":     strSchema(),
		"explanation":    openapi3.NewStringSchema().WithMaxLength(500),
		"testSuggestion": strSchema(),
		"rollbackSteps":  strSchema(),
	}).WithRequired([]string{"confidence", "fixFile", "fixStartLine", "fixContent", "explanation"}),

	KindSummary: openapi3.NewObjectSchema().WithProperties(map[string]*openapi3.Schema{
		"title":             openapi3.NewStringSchema().WithMaxLength(100),
		"summary":           openapi3.NewStringSchema().WithMaxLength(500),
		"agents":            openapi3.NewObjectSchema(),
		"overallConfidence": openapi3.NewFloat64Schema().WithMin(0).WithMax(1),
		"actionItems":       arrSchema(strSchema()),
	}).WithRequired([]string{"title", "summary", "overallConfidence"}),
}
