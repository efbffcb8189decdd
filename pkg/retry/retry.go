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

// Package retry implements the Retry Orchestrator (C8): exponential
// backoff around each agent call, a circuit breaker guarding the LLM
// backend, and correction-directive injection on schema failures.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sony/gobreaker"

	forgeerrors "github.com/neopilotai/FORGE/internal/errors"
	"github.com/neopilotai/FORGE/pkg/schema"
)

const (
	DefaultMaxAttempts      = 3
	DefaultInitialInterval  = 1 * time.Second
	DefaultBackoffFactor    = 2.0
	DefaultMaxInterval      = 10 * time.Second
	DefaultPerAttemptTimeout = 30 * time.Second
	PipelinePerAttemptTimeout = 15 * time.Second
)

// Options configures one Orchestrator.
type Options struct {
	MaxAttempts      uint
	InitialInterval  time.Duration
	MaxInterval      time.Duration
	PerAttemptTimeout time.Duration
}

// DefaultOptions returns spec.md §4.7's defaults.
func DefaultOptions() Options {
	return Options{
		MaxAttempts:       DefaultMaxAttempts,
		InitialInterval:   DefaultInitialInterval,
		MaxInterval:       DefaultMaxInterval,
		PerAttemptTimeout: DefaultPerAttemptTimeout,
	}
}

// Call is one attempt at invoking the backend: it sends prompt (the system
// and user directives, with any prior correction directive appended to
// user) and returns the raw text response.
type Call func(ctx context.Context, correction string) (raw string, err error)

// Orchestrator wraps Call attempts with exponential backoff, a circuit
// breaker, and schema validation/correction-directive injection.
type Orchestrator struct {
	opts    Options
	breaker *gobreaker.CircuitBreaker
}

// NewOrchestrator builds an Orchestrator guarding calls with a circuit
// breaker named name.
func NewOrchestrator(name string, opts Options) *Orchestrator {
	if opts.MaxAttempts == 0 {
		opts = DefaultOptions()
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    0,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	return &Orchestrator{opts: opts, breaker: cb}
}

// RunAndValidate retries call, validating each response against kind's
// schema, injecting a correction directive on schema failure and simply
// retrying on transport failure. Cancellation is not counted as a retry
// attempt; it is surfaced immediately as forgeerrors.ErrorTypeCancelled.
// attempts reports how many calls RunAndValidate made before returning,
// so callers can surface retriesUsed = attempts-1 on success.
func (o *Orchestrator) RunAndValidate(ctx context.Context, kind schema.Kind, call Call) (result schema.Result, attempts int, err error) {
	correction := ""

	operation := func() (schema.Result, error) {
		attempts++
		if ctx.Err() != nil {
			return schema.Result{}, backoff.Permanent(forgeerrors.New(forgeerrors.ErrorTypeCancelled, "call cancelled"))
		}

		attemptCtx, cancel := context.WithTimeout(ctx, o.opts.PerAttemptTimeout)
		defer cancel()

		res, err := o.breaker.Execute(func() (interface{}, error) {
			return call(attemptCtx, correction)
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return schema.Result{}, forgeerrors.Wrap(forgeerrors.ErrorTypeBackendUnavailable, "circuit breaker open", err)
			}
			if attemptCtx.Err() != nil {
				return schema.Result{}, forgeerrors.Wrap(forgeerrors.ErrorTypeTimedOut, "agent call timed out", err)
			}
			return schema.Result{}, forgeerrors.Wrap(forgeerrors.ErrorTypeBackendUnavailable, "agent call failed", err)
		}

		raw, _ := res.(string)
		validated := schema.Validate(kind, raw)
		if !validated.Valid {
			correction = schema.CorrectionDirective(validated.Violations)
			return schema.Result{}, forgeerrors.New(forgeerrors.ErrorTypeSchemaViolation, "response failed schema validation").
				WithDetails(formatViolations(validated.Violations))
		}
		return validated, nil
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = o.opts.InitialInterval
	eb.Multiplier = DefaultBackoffFactor
	eb.MaxInterval = o.opts.MaxInterval

	result, err = backoff.Retry(ctx, operation,
		backoff.WithBackOff(eb),
		backoff.WithMaxTries(o.opts.MaxAttempts),
	)
	if err != nil {
		return schema.Result{}, attempts, classifyExhaustion(err)
	}
	return result, attempts, nil
}

func classifyExhaustion(err error) error {
	var appErr *forgeerrors.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return forgeerrors.Wrap(forgeerrors.ErrorTypeBackendUnavailable, "retries exhausted", err)
}

func formatViolations(violations []schema.Violation) string {
	out := ""
	for _, v := range violations {
		out += v.Path + ": " + v.Reason + "; "
	}
	return out
}
