package blastradius

import (
	"testing"

	"github.com/neopilotai/FORGE/pkg/types"
)

func TestEstimate_BaseLevels(t *testing.T) {
	cases := map[types.FailureType]types.BlastLevel{
		types.FailureBuild: types.BlastHigh,
		types.FailureAuth:  types.BlastHigh,
		types.FailureTest:  types.BlastMedium,
		types.FailureLint:  types.BlastLow,
	}
	for ft, want := range cases {
		ev := types.FailureEvent{Type: ft, Step: "unknown"}
		got := Estimate(ev, types.WorkflowMetadata{})
		if got.Level != want {
			t.Errorf("type %s: expected level %s, got %s", ft, want, got.Level)
		}
	}
}

func TestEstimate_DeployAlwaysHigh(t *testing.T) {
	ev := types.FailureEvent{Type: types.FailureDeploy, Step: "test"}
	got := Estimate(ev, types.WorkflowMetadata{})
	if got.Level != types.BlastHigh {
		t.Errorf("expected high level for deploy, got %s", got.Level)
	}
}

func TestEstimate_StepKeywordEscalates(t *testing.T) {
	ev := types.FailureEvent{Type: types.FailureLint, Step: "Build frontend assets"}
	got := Estimate(ev, types.WorkflowMetadata{})
	if got.Level != types.BlastMedium {
		t.Errorf("expected escalation from low to medium, got %s", got.Level)
	}
}

func TestEstimate_CriticalPathEscalatesAndBoundedAtHigh(t *testing.T) {
	ev := types.FailureEvent{Type: types.FailureBuild, Step: "build"}
	got := Estimate(ev, types.WorkflowMetadata{CriticalPath: true})
	if got.Level != types.BlastHigh {
		t.Errorf("expected bounded at high, got %s", got.Level)
	}
}

func TestEstimate_AuthTagsAuthenticationLayer(t *testing.T) {
	ev := types.FailureEvent{Type: types.FailureAuth, Step: "login"}
	got := Estimate(ev, types.WorkflowMetadata{})
	found := false
	for _, a := range got.AffectedAreas {
		if a == "authentication-layer" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected authentication-layer in affected areas, got %v", got.AffectedAreas)
	}
}

func TestEstimate_DependentJobsAppended(t *testing.T) {
	ev := types.FailureEvent{Type: types.FailureTest}
	got := Estimate(ev, types.WorkflowMetadata{DependentJobs: []string{"deploy-staging", "notify-slack"}})
	if len(got.Dependents) != 2 {
		t.Errorf("expected 2 dependents, got %v", got.Dependents)
	}
}

func TestEstimate_ImageRefParsed(t *testing.T) {
	ev := types.FailureEvent{
		Type:    types.FailureAuth,
		Message: "denied: requested access to ghcr.io/acme/widget:v1.2.3 was denied",
	}
	got := Estimate(ev, types.WorkflowMetadata{})
	found := false
	for _, a := range got.AffectedAreas {
		if a == "registry:acme/widget" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected registry affected area, got %v", got.AffectedAreas)
	}
}
