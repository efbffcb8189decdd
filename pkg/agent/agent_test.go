package agent

import (
	"context"
	"testing"
)

type fakeBackend struct {
	response string
	err      error
	calls    int
}

func (f *fakeBackend) Complete(ctx context.Context, system, user string) (string, error) {
	f.calls++
	return f.response, f.err
}

func TestNewBackend_RejectsUnsupportedProvider(t *testing.T) {
	_, err := NewBackend(Config{Provider: "not-a-provider"})
	if err == nil {
		t.Fatalf("expected error for unsupported provider")
	}
}

func TestNewBackend_LocalDefaultsApplied(t *testing.T) {
	b, err := NewBackend(Config{Provider: "local"})
	if err != nil {
		t.Fatalf("unexpected error constructing local backend: %v", err)
	}
	if b == nil {
		t.Fatalf("expected non-nil backend")
	}
}

func TestFakeBackend_SatisfiesInterface(t *testing.T) {
	var b Backend = &fakeBackend{response: `{"ok":true}`}
	out, err := b.Complete(context.Background(), "system", "user")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != `{"ok":true}` {
		t.Errorf("unexpected output: %s", out)
	}
}
