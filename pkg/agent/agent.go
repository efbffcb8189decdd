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

// Package agent implements the Agent Runner (C9): a Backend interface with
// three concrete drivers (native Anthropic, AWS Bedrock, local/offline via
// langchaingo), each a thin chat-completion call pinned at low temperature.
package agent

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"

	forgeerrors "github.com/neopilotai/FORGE/internal/errors"
)

// DefaultTemperature is pinned low per spec.md §6 to favour deterministic,
// schema-conformant output.
const DefaultTemperature = 0.3

// Config selects and configures a Backend.
type Config struct {
	Provider    string // "anthropic" | "bedrock" | "local"
	Model       string
	Endpoint    string // local provider only
	Region      string // bedrock provider only
	Temperature float32
}

// Backend is a chat-completion-style interface: system + user directive in,
// a single raw string response out (spec.md §6's LLM backend interface).
type Backend interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// NewBackend constructs the Backend named by cfg.Provider.
func NewBackend(cfg Config) (Backend, error) {
	if cfg.Temperature == 0 {
		cfg.Temperature = DefaultTemperature
	}
	switch cfg.Provider {
	case "anthropic":
		return newAnthropicBackend(cfg), nil
	case "bedrock":
		return newBedrockBackend(cfg)
	case "local":
		return newLocalBackend(cfg)
	default:
		return nil, forgeerrors.New(forgeerrors.ErrorTypeInputInvalid, fmt.Sprintf("unsupported provider: %s", cfg.Provider))
	}
}

// ---- Anthropic native ----

type anthropicBackend struct {
	client *anthropic.Client
	model  string
	temp   float32
}

func newAnthropicBackend(cfg Config) *anthropicBackend {
	client := anthropic.NewClient(option.WithAPIKey(""))
	model := cfg.Model
	if model == "" {
		model = "claude-3-5-sonnet-latest"
	}
	return &anthropicBackend{client: &client, model: model, temp: cfg.Temperature}
}

func (b *anthropicBackend) Complete(ctx context.Context, system, user string) (string, error) {
	msg, err := b.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(b.model),
		MaxTokens:   4096,
		Temperature: anthropic.Float(float64(b.temp)),
		System: []anthropic.TextBlockParam{
			{Text: system},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(user)),
		},
	})
	if err != nil {
		return "", forgeerrors.Wrap(forgeerrors.ErrorTypeBackendUnavailable, "anthropic backend call failed", err)
	}
	var out string
	for _, block := range msg.Content {
		if block.Type == "text" {
			out += block.Text
		}
	}
	return out, nil
}

// ---- AWS Bedrock ----

type bedrockBackend struct {
	client *bedrockruntime.Client
	model  string
	temp   float32
}

func newBedrockBackend(cfg Config) (*bedrockBackend, error) {
	ctx := context.Background()
	opts := []func(*awsconfig.LoadOptions) error{}
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, forgeerrors.Wrap(forgeerrors.ErrorTypeBackendUnavailable, "failed to load aws config", err)
	}
	model := cfg.Model
	if model == "" {
		model = "anthropic.claude-3-5-sonnet-20241022-v2:0"
	}
	return &bedrockBackend{
		client: bedrockruntime.NewFromConfig(awsCfg),
		model:  model,
		temp:   cfg.Temperature,
	}, nil
}

func (b *bedrockBackend) Complete(ctx context.Context, system, user string) (string, error) {
	body := bedrockInvokePayload(system, user, b.temp)
	out, err := b.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(b.model),
		Body:        body,
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", forgeerrors.Wrap(forgeerrors.ErrorTypeBackendUnavailable, "bedrock backend call failed", err)
	}
	return string(out.Body), nil
}

func bedrockInvokePayload(system, user string, temp float32) []byte {
	return []byte(fmt.Sprintf(
		`{"anthropic_version":"bedrock-2023-05-31","max_tokens":4096,"temperature":%.2f,"system":%q,"messages":[{"role":"user","content":%q}]}`,
		temp, system, user,
	))
}

// ---- local / offline via langchaingo ----

type localBackend struct {
	model llms.Model
	temp  float32
}

func newLocalBackend(cfg Config) (*localBackend, error) {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = "http://localhost:11434"
	}
	model := cfg.Model
	if model == "" {
		model = "llama3"
	}
	llm, err := ollama.New(ollama.WithModel(model), ollama.WithServerURL(endpoint))
	if err != nil {
		return nil, forgeerrors.Wrap(forgeerrors.ErrorTypeBackendUnavailable, "failed to construct local backend", err)
	}
	return &localBackend{model: llm, temp: cfg.Temperature}, nil
}

func (b *localBackend) Complete(ctx context.Context, system, user string) (string, error) {
	resp, err := b.model.GenerateContent(ctx, []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, system),
		llms.TextParts(llms.ChatMessageTypeHuman, user),
	}, llms.WithTemperature(float64(b.temp)))
	if err != nil {
		return "", forgeerrors.Wrap(forgeerrors.ErrorTypeBackendUnavailable, "local backend call failed", err)
	}
	if len(resp.Choices) == 0 {
		return "", forgeerrors.New(forgeerrors.ErrorTypeBackendUnavailable, "local backend returned no choices")
	}
	return resp.Choices[0].Content, nil
}
