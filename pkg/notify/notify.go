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

// Package notify sends an optional Slack message when the Confidence Gate
// decides escalate or manual-review, since a failure a bot can't safely
// auto-apply still needs a human to know about it. Notification failures
// never fail the pipeline itself; Notifier.Notify only ever returns an
// error for callers that want to log it.
package notify

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"

	"github.com/neopilotai/FORGE/pkg/types"
)

// Escalation is the subset of a pipeline Result a notifier needs to build a
// human-readable message.
type Escalation struct {
	Resource    string
	Decision    types.GateDecision
	Confidence  types.ConfidenceMetrics
	BlastRadius types.BlastRadius
	Reason      string
}

// Notifier pages a human about a gate decision that needs one.
type Notifier interface {
	Notify(ctx context.Context, esc Escalation) error
}

// NopNotifier is the default Notifier: disabled unless a token/channel is
// configured.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, Escalation) error { return nil }

// SlackNotifier posts a Block Kit message to a single channel.
type SlackNotifier struct {
	client  *slack.Client
	channel string
}

// New builds a SlackNotifier, or a NopNotifier when token or channel is
// empty so callers can wire this unconditionally without a nil check.
func New(token, channel string) Notifier {
	if token == "" || channel == "" {
		return NopNotifier{}
	}
	return &SlackNotifier{client: slack.New(token), channel: channel}
}

func (n *SlackNotifier) Notify(ctx context.Context, esc Escalation) error {
	icon := ":large_yellow_circle:"
	if esc.Decision.Action == types.GateEscalate {
		icon = ":red_circle:"
	}

	header := slack.NewHeaderBlock(slack.NewTextBlockObject(slack.PlainTextType,
		fmt.Sprintf("%s Patch for %s needs attention", icon, esc.Resource), false, false))

	details := slack.NewSectionBlock(
		slack.NewTextBlockObject(slack.MarkdownType, fmt.Sprintf(
			"*Action:* %s\n*Confidence:* %.2f\n*Blast radius:* %s\n*Reason:* %s",
			esc.Decision.Action, esc.Confidence.Score, esc.BlastRadius.Level, esc.Reason,
		), false, false),
		nil, nil,
	)

	_, _, err := n.client.PostMessageContext(ctx, n.channel,
		slack.MsgOptionBlocks(header, details),
	)
	if err != nil {
		return fmt.Errorf("notify: posting slack message: %w", err)
	}
	return nil
}

var _ Notifier = (*SlackNotifier)(nil)
var _ Notifier = NopNotifier{}
