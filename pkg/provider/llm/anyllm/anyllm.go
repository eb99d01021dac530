// Package anyllm provides an LLM provider backed by
// github.com/mozilla-ai/any-llm-go, a unified multi-provider client. It is the
// binding used for Anthropic and for any other backend selected by name in the
// configuration.
//
// Usage:
//
//	p, err := anyllm.NewAnthropic("claude-sonnet-4-20250514", anyllmlib.WithAPIKey("sk-ant-..."))
package anyllm

import (
	"context"
	"fmt"
	"strings"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/anthropic"
	"github.com/mozilla-ai/any-llm-go/providers/gemini"
	"github.com/mozilla-ai/any-llm-go/providers/mistral"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"
	anyllmoai "github.com/mozilla-ai/any-llm-go/providers/openai"

	"github.com/MrWong99/greffier/pkg/llmerr"
	"github.com/MrWong99/greffier/pkg/provider/llm"
	"github.com/MrWong99/greffier/pkg/types"
)

// DefaultAnthropicModel is used by NewAnthropic when model is empty.
const DefaultAnthropicModel = "claude-sonnet-4-20250514"

var _ llm.Provider = (*Provider)(nil)

// Provider implements llm.Provider by wrapping github.com/mozilla-ai/any-llm-go.
type Provider struct {
	backend anyllmlib.Provider
	name    string
	model   string
}

// New creates a new Provider backed by the given LLM provider name.
//
// providerName is one of: "anthropic", "openai", "gemini", "mistral", "ollama".
// opts are any-llm-go configuration options (anyllmlib.WithAPIKey,
// anyllmlib.WithBaseURL, …).
func New(providerName string, model string, opts ...anyllmlib.Option) (*Provider, error) {
	if providerName == "" {
		return nil, fmt.Errorf("anyllm: providerName must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("anyllm: model must not be empty")
	}

	backend, err := createBackend(providerName, opts...)
	if err != nil {
		return nil, fmt.Errorf("anyllm: create %q backend: %w", providerName, err)
	}

	return &Provider{backend: backend, name: strings.ToLower(providerName), model: model}, nil
}

// NewAnthropic creates a Provider backed by Anthropic.
func NewAnthropic(model string, opts ...anyllmlib.Option) (*Provider, error) {
	if model == "" {
		model = DefaultAnthropicModel
	}
	return New("anthropic", model, opts...)
}

func createBackend(providerName string, opts ...anyllmlib.Option) (anyllmlib.Provider, error) {
	switch strings.ToLower(providerName) {
	case "anthropic":
		return anthropic.New(opts...)
	case "openai":
		return anyllmoai.New(opts...)
	case "gemini":
		return gemini.New(opts...)
	case "mistral":
		return mistral.New(opts...)
	case "ollama":
		return ollama.New(opts...)
	default:
		return nil, fmt.Errorf("unsupported provider %q; supported: anthropic, openai, gemini, mistral, ollama", providerName)
	}
}

// Name implements llm.Provider.
func (p *Provider) Name() string { return p.name }

// Model returns the configured model name.
func (p *Provider) Model() string { return p.model }

// Complete implements llm.Provider.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	resp, err := p.backend.Completion(ctx, p.buildParams(req))
	if err != nil {
		return nil, p.normalize(err)
	}
	if len(resp.Choices) == 0 {
		return nil, llmerr.New(llmerr.InvalidResponse, p.name, "Aucun choix dans la réponse.")
	}

	choice := resp.Choices[0]
	result := &llm.CompletionResponse{
		Content:      choice.Message.ContentString(),
		FinishReason: finishReason(string(choice.FinishReason)),
	}
	if resp.Usage != nil {
		result.Usage = llm.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		}
	}
	if err := llm.CheckReply(p.name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// finishReason folds provider-native stop reasons into the llm.Finish* set.
func finishReason(r string) string {
	switch strings.ToLower(r) {
	case "length", "max_tokens":
		return llm.FinishLength
	case "content_filter", "refusal", "safety":
		return llm.FinishContentFilter
	case "", "stop", "end_turn", "stop_sequence":
		return llm.FinishStop
	default:
		return r
	}
}

// normalize maps a backend error onto the taxonomy. any-llm does not expose
// the HTTP status in a structured way, so the status is recovered from the
// message, with a few well-known phrases as a fallback.
func (p *Provider) normalize(err error) error {
	if llmerr.StatusFromMessage(err.Error()) == 0 {
		lower := strings.ToLower(err.Error())
		switch {
		case strings.Contains(lower, "invalid x-api-key"), strings.Contains(lower, "authentication"), strings.Contains(lower, "unauthorized"):
			return llmerr.New(llmerr.CredentialInvalid, p.name, "Clé API refusée par le fournisseur.", llmerr.WithCause(err))
		case strings.Contains(lower, "rate limit"):
			return llmerr.New(llmerr.RateLimited, p.name, "Limite de requêtes atteinte.", llmerr.WithCause(err))
		case strings.Contains(lower, "overloaded"):
			return llmerr.New(llmerr.GenerationFailed, p.name, "Fournisseur surchargé.", llmerr.WithCause(err), llmerr.WithRetryable(true))
		}
	}
	return llmerr.Normalize(p.name, llmerr.GenerationFailed, err, 0, 0)
}

// buildParams converts our CompletionRequest into anyllm CompletionParams.
func (p *Provider) buildParams(req llm.CompletionRequest) anyllmlib.CompletionParams {
	var messages []anyllmlib.Message

	if req.SystemPrompt != "" {
		messages = append(messages, anyllmlib.Message{
			Role:    anyllmlib.RoleSystem,
			Content: req.SystemPrompt,
		})
	}
	for _, m := range req.Messages {
		messages = append(messages, convertMessage(m))
	}

	params := anyllmlib.CompletionParams{
		Model:    p.model,
		Messages: messages,
	}
	if req.Temperature != 0 {
		t := req.Temperature
		params.Temperature = &t
	}
	if req.MaxTokens > 0 {
		mt := req.MaxTokens
		params.MaxTokens = &mt
	}
	return params
}

func convertMessage(m types.Message) anyllmlib.Message {
	return anyllmlib.Message{Role: m.Role, Content: m.Content}
}
