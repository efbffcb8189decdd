package retry

import (
	"context"
	"errors"
	"testing"

	forgeerrors "github.com/neopilotai/FORGE/internal/errors"
	"github.com/neopilotai/FORGE/pkg/schema"
)

const validLogAnalystJSON = `{
	"failureType": "build",
	"severity": "high",
	"summary": "compilation failed"
}`

func TestRunAndValidate_SucceedsFirstTry(t *testing.T) {
	o := NewOrchestrator("test-valid", DefaultOptions())
	calls := 0
	res, attempts, err := o.RunAndValidate(context.Background(), schema.KindLogAnalyst, func(ctx context.Context, correction string) (string, error) {
		calls++
		return validLogAnalystJSON, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Valid {
		t.Fatalf("expected valid result")
	}
	if calls != 1 {
		t.Errorf("expected exactly one call, got %d", calls)
	}
	if attempts != 1 {
		t.Errorf("expected attempts == 1, got %d", attempts)
	}
}

func TestRunAndValidate_RetriesOnSchemaFailureThenSucceeds(t *testing.T) {
	o := NewOrchestrator("test-schema-retry", Options{
		MaxAttempts: 3, InitialInterval: 0, MaxInterval: 0, PerAttemptTimeout: 1e9,
	})
	attempt := 0
	res, attempts, err := o.RunAndValidate(context.Background(), schema.KindLogAnalyst, func(ctx context.Context, correction string) (string, error) {
		attempt++
		if attempt == 1 {
			return `{"failureType": "bogus"}`, nil
		}
		if correction == "" {
			t.Errorf("expected a correction directive on the second attempt")
		}
		return validLogAnalystJSON, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Valid {
		t.Fatalf("expected eventual success")
	}
	if attempt != 2 {
		t.Errorf("expected 2 attempts, got %d", attempt)
	}
	if attempts != 2 {
		t.Errorf("expected reported attempts == 2, got %d", attempts)
	}
}

func TestRunAndValidate_ExhaustsRetriesSurfacesSchemaViolation(t *testing.T) {
	o := NewOrchestrator("test-exhaust", Options{
		MaxAttempts: 2, InitialInterval: 0, MaxInterval: 0, PerAttemptTimeout: 1e9,
	})
	_, _, err := o.RunAndValidate(context.Background(), schema.KindLogAnalyst, func(ctx context.Context, correction string) (string, error) {
		return `{"failureType": "bogus"}`, nil
	})
	if err == nil {
		t.Fatalf("expected an error after exhausting retries")
	}
	var appErr *forgeerrors.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected an AppError, got %v", err)
	}
	if appErr.Type != forgeerrors.ErrorTypeSchemaViolation {
		t.Errorf("expected SchemaViolation, got %s", appErr.Type)
	}
}

func TestRunAndValidate_CancelledNotCountedAsAttempt(t *testing.T) {
	o := NewOrchestrator("test-cancel", DefaultOptions())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	_, _, err := o.RunAndValidate(ctx, schema.KindLogAnalyst, func(ctx context.Context, correction string) (string, error) {
		calls++
		return validLogAnalystJSON, nil
	})
	if err == nil {
		t.Fatalf("expected cancellation error")
	}
	if calls != 0 {
		t.Errorf("expected zero calls when context already cancelled, got %d", calls)
	}
}
