package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/neopilotai/FORGE/pkg/apply"
	"github.com/neopilotai/FORGE/pkg/audit"
	"github.com/neopilotai/FORGE/pkg/orchestrator"
	"github.com/neopilotai/FORGE/pkg/retry"
	"github.com/neopilotai/FORGE/pkg/types"
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

const buildLog = `##[group]Run go build ./...
main.go:10:2: compilation failed: undefined: Foo
##[endgroup]
`

func fixGeneratorJSON(file, content string) string {
	return `{"confidence":0.95,"fixFile":"` + file + `","fixStartLine":1,"fixContent":"` + content + `","explanation":"applied fix"}`
}

const logAnalystJSON = `{"failureType":"build","severity":"high","summary":"compile error"}`
const workflowExpertJSON = `{"issueType":"build","recommendation":"fix the symbol reference","riskLevel":"low"}`
const codeReviewerJSON = `{"issuesFound":[],"overallScore":90}`

func newTestDriver(t *testing.T, root string, responses []string) (*Driver, *audit.FileStore) {
	t.Helper()
	backend := &scriptedBackend{responses: responses}
	orch := orchestrator.New(backend, retry.Options{MaxAttempts: 1, InitialInterval: 0, MaxInterval: 0, PerAttemptTimeout: 1e9})
	applicator := apply.New(apply.NewInProcessLocker(), t.TempDir())
	store, err := audit.NewFileStore(filepath.Join(t.TempDir(), "journal.ndjson"), 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return New(orch, applicator, store), store
}

func TestRun_AutoAppliesHighConfidenceFix(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "main.go"), []byte("package main\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	d, _ := newTestDriver(t, root, []string{
		logAnalystJSON, workflowExpertJSON, codeReviewerJSON, fixGeneratorJSON("main.go", "package main\\nfunc Foo() {}\\n"),
	})

	result, err := d.Run(context.Background(), Request{
		RawLog:    buildLog,
		ChangeSet: "diff --git a b",
		Model:     "local-llama3",
		Root:      root,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Stage != "done" {
		t.Errorf("expected pipeline to complete, stopped at stage %q (decision=%v)", result.Stage, result.Decision)
	}
	if result.Application.Status != types.StatusApplied {
		t.Errorf("expected applied status, got %s", result.Application.Status)
	}
}

func TestRun_NoFailureDetectedStopsAtClassify(t *testing.T) {
	d, _ := newTestDriver(t, t.TempDir(), []string{logAnalystJSON})
	result, err := d.Run(context.Background(), Request{
		RawLog: "everything is fine, build succeeded\n",
		Root:   t.TempDir(),
	})
	if err == nil {
		t.Fatalf("expected no-failure-detected error")
	}
	if result.Stage != "classify" {
		t.Errorf("expected to stop at classify, got %s", result.Stage)
	}
}

func TestRun_LowConfidenceFixAwaitsReview(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "main.go"), []byte("package main\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	lowConfidenceFix := `{"confidence":0.2,"fixFile":"main.go","fixStartLine":1,"fixContent":"package main\nfunc Foo() {}\n","explanation":"guess"}`

	d, _ := newTestDriver(t, root, []string{
		logAnalystJSON, workflowExpertJSON, codeReviewerJSON, lowConfidenceFix,
	})

	result, err := d.Run(context.Background(), Request{
		RawLog: buildLog,
		Root:   root,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Decision.Action == types.GateAutoApply {
		t.Errorf("expected a low-confidence fix not to auto-apply")
	}
	if result.Application.ID != "" {
		t.Errorf("expected no application record when awaiting review")
	}
}

func TestRun_CancelledContextStopsBeforeOrchestrator(t *testing.T) {
	root := t.TempDir()
	d, _ := newTestDriver(t, root, []string{logAnalystJSON})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result, err := d.Run(ctx, Request{RawLog: buildLog, Root: root})
	if err == nil {
		t.Fatalf("expected cancellation error")
	}
	if !result.Cancelled {
		t.Errorf("expected result to report cancellation")
	}
}

func TestRun_DeadlineExceededSurfacesTimedOut(t *testing.T) {
	root := t.TempDir()
	d, _ := newTestDriver(t, root, []string{logAnalystJSON})
	_, err := d.Run(context.Background(), Request{
		RawLog:   buildLog,
		Root:     root,
		Deadline: time.Now().Add(-1 * time.Hour),
	})
	if err == nil {
		t.Fatalf("expected an error for an already-exceeded deadline")
	}
}

func TestRun_JournalsEveryHop(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "main.go"), []byte("package main\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	d, store := newTestDriver(t, root, []string{
		logAnalystJSON, workflowExpertJSON, codeReviewerJSON, fixGeneratorJSON("main.go", "package main\\nfunc Foo() {}\\n"),
	})
	_, err := d.Run(context.Background(), Request{RawLog: buildLog, Root: root})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	time.Sleep(20 * time.Millisecond)
	entries, _ := store.Query(context.Background(), audit.QueryFilter{})
	if len(entries) == 0 {
		t.Errorf("expected the audit journal to have recorded pipeline hops")
	}
}
