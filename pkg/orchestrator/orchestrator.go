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

// Package orchestrator implements the Multi-Agent Orchestrator (C10): it
// sequences the four expert roles strictly in order, threading a running
// priorContext and budget/schema/retry checks through each call, and
// exposes a cancellable streaming variant.
package orchestrator

import (
	"context"
	"encoding/json"

	forgeerrors "github.com/neopilotai/FORGE/internal/errors"
	"github.com/neopilotai/FORGE/pkg/agent"
	"github.com/neopilotai/FORGE/pkg/budget"
	"github.com/neopilotai/FORGE/pkg/retry"
	"github.com/neopilotai/FORGE/pkg/schema"
	"github.com/neopilotai/FORGE/pkg/types"
)

// Role identifies one expert in the fixed pipeline order.
type Role string

const (
	RoleLogAnalyst     Role = "log-analyst"
	RoleWorkflowExpert Role = "workflow-expert"
	RoleCodeReviewer   Role = "code-reviewer"
	RoleFixGenerator   Role = "fix-generator"
)

var roleOrder = []Role{RoleLogAnalyst, RoleWorkflowExpert, RoleCodeReviewer, RoleFixGenerator}

var roleSchema = map[Role]schema.Kind{
	RoleLogAnalyst:     schema.KindLogAnalyst,
	RoleWorkflowExpert: schema.KindWorkflowExpert,
	RoleCodeReviewer:   schema.KindCodeReviewer,
	RoleFixGenerator:   schema.KindFixGenerator,
}

// Input is the material available to the orchestrator for one pipeline
// invocation.
type Input struct {
	LogSnippet       string
	ConfigArtifact   string
	ChangeSet        string
	Model            string
}

// ChunkType tags one streamed chunk.
type ChunkType string

const (
	ChunkStatus ChunkType = "status"
	ChunkDelta  ChunkType = "delta"
	ChunkFix    ChunkType = "fix"
	ChunkDone   ChunkType = "done"
)

// Chunk is one unit of the streaming variant's output.
type Chunk struct {
	Type  ChunkType
	Agent Role
	Text  string
	Fix   *types.FixGeneratorResponse
}

// Orchestrator sequences the four experts using backend as the LLM and
// retryOpts for C8's retry policy.
type Orchestrator struct {
	backend   agent.Backend
	retryOpts retry.Options
}

// New constructs an Orchestrator. retryOpts defaults to
// retry.PipelinePerAttemptTimeout-adjusted intra-pipeline settings when
// zero-valued.
func New(backend agent.Backend, retryOpts retry.Options) *Orchestrator {
	if retryOpts.MaxAttempts == 0 {
		retryOpts = retry.DefaultOptions()
		retryOpts.PerAttemptTimeout = retry.PipelinePerAttemptTimeout
	}
	return &Orchestrator{backend: backend, retryOpts: retryOpts}
}

// Run executes all four experts in order and returns the final Summary.
// priorContext accumulates each expert's structured output for the next.
func (o *Orchestrator) Run(ctx context.Context, in Input) (types.SummaryResponse, error) {
	priorContext := map[string]interface{}{}
	var logAnalyst types.LogAnalystResponse
	var workflowExpert types.WorkflowExpertResponse
	var codeReviewer types.CodeReviewerResponse
	var fixGenerator types.FixGeneratorResponse
	totalRetries := 0

	for _, role := range roleOrder {
		if err := ctx.Err(); err != nil {
			return types.SummaryResponse{}, forgeerrors.New(forgeerrors.ErrorTypeCancelled, "orchestration cancelled")
		}

		system, user := buildDirectives(role, in, priorContext)

		if !budget.CheckBudget(in.Model, system, user, "").Pass {
			return types.SummaryResponse{}, forgeerrors.New(forgeerrors.ErrorTypeBudgetExceeded, "prompt exceeds model budget for role "+string(role))
		}

		orc := retry.NewOrchestrator(string(role), o.retryOpts)
		result, attempts, err := orc.RunAndValidate(ctx, roleSchema[role], func(attemptCtx context.Context, correction string) (string, error) {
			attemptUser := user
			if correction != "" {
				attemptUser = user + "\n\n" + correction
			}
			return o.backend.Complete(attemptCtx, system, attemptUser)
		})
		if err != nil {
			return types.SummaryResponse{}, err
		}
		if attempts > 0 {
			totalRetries += attempts - 1
		}

		switch role {
		case RoleLogAnalyst:
			if err := decodeInto(result.Document, &logAnalyst); err != nil {
				return types.SummaryResponse{}, err
			}
			priorContext["logAnalyst"] = logAnalyst
		case RoleWorkflowExpert:
			if err := decodeInto(result.Document, &workflowExpert); err != nil {
				return types.SummaryResponse{}, err
			}
			priorContext["workflowExpert"] = workflowExpert
		case RoleCodeReviewer:
			if err := decodeInto(result.Document, &codeReviewer); err != nil {
				return types.SummaryResponse{}, err
			}
			priorContext["codeReviewer"] = codeReviewer
		case RoleFixGenerator:
			if err := decodeInto(result.Document, &fixGenerator); err != nil {
				return types.SummaryResponse{}, err
			}
			priorContext["fixGenerator"] = fixGenerator
		}
	}

	summary := types.SummaryResponse{
		Title:   "Automated fix for " + string(logAnalyst.FailureType),
		Summary: fixGenerator.Explanation,
		Agents: types.AgentSummaries{
			LogAnalyst:     logAnalyst,
			WorkflowExpert: workflowExpert,
			CodeReviewer:   codeReviewer,
			FixGenerator:   fixGenerator,
		},
		OverallConfidence: fixGenerator.Confidence,
		ActionItems:       deriveActionItems(workflowExpert, codeReviewer),
		RetriesUsed:       totalRetries,
	}
	return summary, nil
}

// Stream runs the same sequence as Run but yields typed chunks as each
// expert completes. The returned channel is closed after a done chunk or
// on cancellation/error. Buffering is at most one chunk per agent when no
// consumer drains promptly, per spec.md §5's backpressure rule.
func (o *Orchestrator) Stream(ctx context.Context, in Input) <-chan Chunk {
	out := make(chan Chunk, len(roleOrder))

	go func() {
		defer close(out)
		priorContext := map[string]interface{}{}
		var fixGenerator types.FixGeneratorResponse

		for _, role := range roleOrder {
			select {
			case <-ctx.Done():
				return
			default:
			}

			send(ctx, out, Chunk{Type: ChunkStatus, Agent: role, Text: "starting " + string(role)})

			system, user := buildDirectives(role, in, priorContext)
			orc := retry.NewOrchestrator(string(role)+"-stream", o.retryOpts)
			result, _, err := orc.RunAndValidate(ctx, roleSchema[role], func(attemptCtx context.Context, correction string) (string, error) {
				attemptUser := user
				if correction != "" {
					attemptUser = user + "\n\n" + correction
				}
				return o.backend.Complete(attemptCtx, system, attemptUser)
			})
			if err != nil {
				return
			}

			switch role {
			case RoleLogAnalyst:
				var r types.LogAnalystResponse
				_ = decodeInto(result.Document, &r)
				priorContext["logAnalyst"] = r
			case RoleWorkflowExpert:
				var r types.WorkflowExpertResponse
				_ = decodeInto(result.Document, &r)
				priorContext["workflowExpert"] = r
			case RoleCodeReviewer:
				var r types.CodeReviewerResponse
				_ = decodeInto(result.Document, &r)
				priorContext["codeReviewer"] = r
			case RoleFixGenerator:
				_ = decodeInto(result.Document, &fixGenerator)
				priorContext["fixGenerator"] = fixGenerator
				send(ctx, out, Chunk{
					Type: ChunkFix, Agent: role,
					Fix: &fixGenerator,
				})
			}
		}

		send(ctx, out, Chunk{Type: ChunkDone})
	}()

	return out
}

func send(ctx context.Context, out chan<- Chunk, c Chunk) {
	select {
	case out <- c:
	case <-ctx.Done():
	}
}

func buildDirectives(role Role, in Input, priorContext map[string]interface{}) (system, user string) {
	switch role {
	case RoleLogAnalyst:
		return "You are the Log Analyst. Identify the failure type and root cause from the CI log.", in.LogSnippet
	case RoleWorkflowExpert:
		return "You are the Workflow Expert. Identify configuration issues in the workflow definition.", in.ConfigArtifact
	case RoleCodeReviewer:
		return "You are the Code Reviewer. Review the proposed change set for issues.", in.ChangeSet
	case RoleFixGenerator:
		ctxBytes, _ := json.Marshal(priorContext)
		return "You are the Fix Generator. Produce a concrete fix given prior analysis.", string(ctxBytes) + "\n\n" + in.LogSnippet
	default:
		return "", ""
	}
}

func decodeInto(doc map[string]interface{}, target interface{}) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return forgeerrors.Wrap(forgeerrors.ErrorTypeSchemaViolation, "failed to re-marshal validated document", err)
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return forgeerrors.Wrap(forgeerrors.ErrorTypeSchemaViolation, "failed to decode validated document", err)
	}
	return nil
}

func deriveActionItems(we types.WorkflowExpertResponse, cr types.CodeReviewerResponse) []string {
	items := []string{}
	if we.Recommendation != "" {
		items = append(items, we.Recommendation)
	}
	for _, issue := range cr.IssuesFound {
		if issue.Severity == "critical" || issue.Severity == "major" {
			items = append(items, issue.Suggestion)
		}
	}
	return items
}
