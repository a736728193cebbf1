package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"

	iriscore "github.com/petal-labs/iris/core"
	"github.com/petal-labs/iris/providers"
	// Auto-register common backends.
	_ "github.com/petal-labs/iris/providers/anthropic"
	_ "github.com/petal-labs/iris/providers/ollama"
	_ "github.com/petal-labs/iris/providers/openai"

	"github.com/quillworks/relay"
)

// modelPayload is the provider-specific input a model request carries.
type modelPayload struct {
	Model  string `json:"model,omitempty"`
	System string `json:"system,omitempty"`
	Prompt string `json:"prompt"`
}

// chatFunc matches iris core.Provider.Chat; injectable for tests.
type chatFunc func(ctx context.Context, req *iriscore.ChatRequest) (*iriscore.ChatResponse, error)

// ModelAdapter invokes a language-model backend through the iris provider
// registry and maps its success and failure shapes into ExecutionResults.
// Model endpoints report errors as opaque Go errors rather than a
// structured body, so classification here is by error shape and text.
type ModelAdapter struct {
	tag          relay.Provider
	defaultModel string
	chat         chatFunc
}

// NewModelAdapter creates a model adapter from settings. The backend name
// must be registered with iris (openai, anthropic, ollama).
func NewModelAdapter(s Settings) (*ModelAdapter, error) {
	backend := strings.TrimSpace(s.Backend)
	if backend == "" {
		return nil, fmt.Errorf("provider: model backend is empty")
	}
	p, err := providers.Create(backend, s.APIKey)
	if err != nil {
		return nil, fmt.Errorf("provider: creating model backend %q: %w", backend, err)
	}
	return &ModelAdapter{
		tag:          s.Tag,
		defaultModel: s.Model,
		chat:         p.Chat,
	}, nil
}

// Name returns the provider tag this adapter serves.
func (a *ModelAdapter) Name() relay.Provider {
	return a.tag
}

// Invoke performs one model call.
func (a *ModelAdapter) Invoke(ctx context.Context, req relay.ExecutionRequest) relay.ExecutionResult {
	var payload modelPayload
	if len(req.Payload) > 0 {
		if err := json.Unmarshal(req.Payload, &payload); err != nil {
			return relay.Failure(
				fmt.Sprintf("model payload is not valid JSON: %v", err),
				relay.ErrorKindValidation,
			)
		}
	}
	if strings.TrimSpace(payload.Prompt) == "" {
		return relay.Failure("prompt: is required", relay.ErrorKindValidation)
	}

	model := payload.Model
	if model == "" {
		model = a.defaultModel
	}
	if model == "" {
		return relay.Failure("model: is required", relay.ErrorKindValidation)
	}

	messages := make([]iriscore.Message, 0, 2)
	if payload.System != "" {
		messages = append(messages, iriscore.Message{
			Role:    iriscore.RoleSystem,
			Content: payload.System,
		})
	}
	messages = append(messages, iriscore.Message{
		Role:    iriscore.RoleUser,
		Content: payload.Prompt,
	})

	resp, err := a.chat(ctx, &iriscore.ChatRequest{
		Model:    iriscore.ModelID(model),
		Messages: messages,
	})
	if err != nil {
		return classifyModelError(err)
	}

	output := strings.TrimSpace(resp.Output)
	if output == "" {
		return relay.Success(fmt.Sprintf("model %s completed with empty output", resp.Model))
	}
	return relay.Success(output)
}

// classifyModelError maps a backend error to a failure result. Model SDKs
// surface HTTP status only inside error text, so matching is best-effort;
// anything unrecognized stays Unknown and keeps the raw detail for
// diagnosis.
func classifyModelError(err error) relay.ExecutionResult {
	if errors.Is(err, context.DeadlineExceeded) {
		return relay.Failure("model call timed out", relay.ErrorKindTransient)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return relay.Failure(
			fmt.Sprintf("model endpoint unreachable: %v", netErr),
			relay.ErrorKindTransient,
		)
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, "401", "403", "unauthorized", "forbidden", "invalid api key", "permission"):
		return relay.Failure(
			"model endpoint rejected credentials: "+err.Error(),
			relay.ErrorKindAuth,
		)
	case containsAny(msg, "404", "not found", "no such model"):
		return relay.Failure(
			"model not found: "+err.Error(),
			relay.ErrorKindNotFound,
		)
	case containsAny(msg, "429", "rate limit", "overloaded", "unavailable", "timeout", "connection refused", "connection reset"):
		return relay.Failure(
			"model endpoint unavailable: "+err.Error(),
			relay.ErrorKindTransient,
		)
	default:
		return relay.Failure(err.Error(), relay.ErrorKindUnknown)
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// Close releases any adapter resources.
func (a *ModelAdapter) Close(ctx context.Context) error {
	return nil
}

var _ Adapter = (*ModelAdapter)(nil)
