package orchestrator

import (
	"context"
	"testing"

	"github.com/neopilotai/FORGE/pkg/retry"
)

type scriptedBackend struct {
	responses []string
	calls     int
}

func (s *scriptedBackend) Complete(ctx context.Context, system, user string) (string, error) {
	r := s.responses[s.calls%len(s.responses)]
	s.calls++
	return r, nil
}

const logAnalystJSON = `{"failureType":"build","severity":"high","summary":"compile error"}`
const workflowExpertJSON = `{"issueType":"env-vars","recommendation":"set NODE_ENV","riskLevel":"low"}`
const codeReviewerJSON = `{"issuesFound":[],"overallScore":90}`
const fixGeneratorJSON = `{"confidence":0.95,"fixFile":"src/a.go","fixStartLine":10,"fixContent":"fixed","explanation":"applied fix"}`

func TestRun_SequencesAllFourExpertsInOrder(t *testing.T) {
	backend := &scriptedBackend{responses: []string{
		logAnalystJSON, workflowExpertJSON, codeReviewerJSON, fixGeneratorJSON,
	}}
	o := New(backend, retry.Options{MaxAttempts: 2, InitialInterval: 0, MaxInterval: 0, PerAttemptTimeout: 1e9})

	summary, err := o.Run(context.Background(), Input{
		LogSnippet:     "error: compile failed",
		ConfigArtifact: "name: ci",
		ChangeSet:      "diff --git a b",
		Model:          "local-llama3",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.OverallConfidence != 0.95 {
		t.Errorf("expected overall confidence to equal fix generator's, got %v", summary.OverallConfidence)
	}
	if backend.calls != 4 {
		t.Errorf("expected exactly 4 backend calls, got %d", backend.calls)
	}
}

func TestRun_CancelledBeforeStart(t *testing.T) {
	backend := &scriptedBackend{responses: []string{logAnalystJSON}}
	o := New(backend, retry.Options{MaxAttempts: 1, InitialInterval: 0, MaxInterval: 0, PerAttemptTimeout: 1e9})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := o.Run(ctx, Input{Model: "local-llama3"})
	if err == nil {
		t.Fatalf("expected cancellation error")
	}
}

func TestStream_EmitsDoneChunkLast(t *testing.T) {
	backend := &scriptedBackend{responses: []string{
		logAnalystJSON, workflowExpertJSON, codeReviewerJSON, fixGeneratorJSON,
	}}
	o := New(backend, retry.Options{MaxAttempts: 2, InitialInterval: 0, MaxInterval: 0, PerAttemptTimeout: 1e9})

	ch := o.Stream(context.Background(), Input{Model: "local-llama3"})
	var chunks []Chunk
	for c := range ch {
		chunks = append(chunks, c)
	}
	if len(chunks) == 0 {
		t.Fatalf("expected at least one chunk")
	}
	last := chunks[len(chunks)-1]
	if last.Type != ChunkDone {
		t.Errorf("expected final chunk to be done, got %s", last.Type)
	}
}
