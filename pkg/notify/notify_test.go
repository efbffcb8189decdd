package notify

import (
	"context"
	"testing"

	"github.com/neopilotai/FORGE/pkg/types"
)

func TestNew_EmptyTokenOrChannelReturnsNop(t *testing.T) {
	n := New("", "#ci-alerts")
	if _, ok := n.(NopNotifier); !ok {
		t.Fatalf("expected a NopNotifier when token is empty, got %T", n)
	}
	n = New("xoxb-token", "")
	if _, ok := n.(NopNotifier); !ok {
		t.Fatalf("expected a NopNotifier when channel is empty, got %T", n)
	}
}

func TestNopNotifier_NeverErrors(t *testing.T) {
	var n Notifier = NopNotifier{}
	err := n.Notify(context.Background(), Escalation{
		Resource: "main.go",
		Decision: types.GateDecision{Action: types.GateEscalate},
	})
	if err != nil {
		t.Fatalf("expected no error from NopNotifier, got %v", err)
	}
}

func TestNew_TokenAndChannelReturnsSlackNotifier(t *testing.T) {
	n := New("xoxb-token", "#ci-alerts")
	if _, ok := n.(*SlackNotifier); !ok {
		t.Fatalf("expected a *SlackNotifier, got %T", n)
	}
}
