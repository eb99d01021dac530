// Package keycheck verifies provider credentials against the live APIs and
// reports which engines are configured.
package keycheck

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	oai "github.com/openai/openai-go"

	"github.com/MrWong99/greffier/internal/credential"
	"github.com/MrWong99/greffier/internal/gateway"
	"github.com/MrWong99/greffier/internal/resilience"
	"github.com/MrWong99/greffier/pkg/llmerr"
	"github.com/MrWong99/greffier/pkg/provider/llm"
	"github.com/MrWong99/greffier/pkg/provider/llm/openai"
	"github.com/MrWong99/greffier/pkg/types"
)

// Provider names accepted by [Checker.Test].
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderWhisper   = "whisper"
)

// ErrUnknownProvider is returned by [Checker.Test] for unsupported names.
var ErrUnknownProvider = errors.New("keycheck: unknown provider")

// Result is the outcome of a key test. Success means the provider
// authenticated the key; Warning flags an authenticated key that still
// cannot be used as is.
type Result struct {
	Provider string `json:"provider"`
	Success  bool   `json:"success"`
	Warning  bool   `json:"warning,omitempty"`
	Message  string `json:"message,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Probe exercises apiKey against a provider.
type Probe func(ctx context.Context, apiKey string) Result

// Target is a testable provider.
type Target struct {
	Name          string
	Label         string
	CredentialKey string
	Kind          credential.Kind
	Probe         Probe
}

// ModelsProbe lists the OpenAI models visible to the key. The Whisper key
// is an OpenAI key and is tested the same way.
func ModelsProbe(opts ...openai.Option) Probe {
	return func(ctx context.Context, apiKey string) Result {
		client := oai.NewClient(openai.RequestOptions(apiKey, opts...)...)
		if _, err := client.Models.List(ctx); err != nil {
			msg := err.Error()
			var apiErr *oai.Error
			if errors.As(err, &apiErr) {
				msg = fmt.Sprintf("OpenAI a répondu %d", apiErr.StatusCode)
				if apiErr.Message != "" {
					msg = apiErr.Message
				}
			}
			return Result{Error: msg}
		}
		return Result{Success: true, Message: "Clé OpenAI valide."}
	}
}

// CompletionProbe sends a 10-token completion through a client built by
// factory. Rate limiting and overload prove the key authenticated; an
// exhausted credit balance is reported as a warning.
func CompletionProbe(factory gateway.Factory) Probe {
	return func(ctx context.Context, apiKey string) Result {
		p, err := factory(apiKey)
		if err != nil {
			return Result{Error: err.Error()}
		}
		_, err = p.Complete(ctx, llm.CompletionRequest{
			Messages:  []types.Message{{Role: "user", Content: "Say OK"}},
			MaxTokens: 10,
		})
		return completionResult(err)
	}
}

func completionResult(err error) Result {
	if err == nil {
		return Result{Success: true, Message: "Clé Anthropic valide."}
	}
	e, ok := llmerr.As(err)
	if !ok {
		return Result{Error: err.Error()}
	}
	switch {
	case e.StatusCode == http.StatusUnauthorized || e.Code == llmerr.CredentialInvalid:
		return Result{Error: "Clé Anthropic invalide : " + err.Error()}
	case e.StatusCode == http.StatusTooManyRequests || e.StatusCode == 529 || e.Code == llmerr.RateLimited:
		return Result{Success: true, Message: "Clé Anthropic valide (limite de requêtes atteinte mais authentifiée)."}
	case strings.Contains(strings.ToLower(err.Error()), "credit balance"):
		return Result{
			Success: true,
			Warning: true,
			Message: "Clé valide mais crédits insuffisants sur le compte. Ajoutez des crédits sur console.anthropic.com.",
		}
	case e.Code == llmerr.InvalidResponse || e.Code == llmerr.ContentFiltered:
		// The model answered, so the key authenticated.
		return Result{Success: true, Message: "Clé Anthropic valide."}
	}
	return Result{Error: err.Error()}
}

// ActiveProvider reports the generation provider the next request will use.
type ActiveProvider interface {
	ActiveProvider(ctx context.Context) string
}

// Status summarises engine readiness for the settings page.
type Status struct {
	// Configured is true when both transcription and generation can run.
	Configured        bool                      `json:"configured"`
	WhisperConfigured bool                      `json:"whisperConfigured"`
	ReportConfigured  bool                      `json:"reportConfigured"`
	ActiveProvider    string                    `json:"activeProvider"`
	Breakers          []resilience.BreakerState `json:"breakers"`
}

// Checker is safe for concurrent use.
type Checker struct {
	resolver *credential.Resolver
	targets  map[string]Target
	active   ActiveProvider
	breakers *resilience.Registry
}

// New creates a [Checker]. active and breakers may be nil.
func New(resolver *credential.Resolver, active ActiveProvider, breakers *resilience.Registry, targets ...Target) *Checker {
	c := &Checker{
		resolver: resolver,
		targets:  make(map[string]Target, len(targets)),
		active:   active,
		breakers: breakers,
	}
	for _, t := range targets {
		c.targets[t.Name] = t
	}
	return c
}

// DefaultTargets returns the three production targets. opts point the
// OpenAI probes at a different endpoint; anthropic builds the Anthropic
// client.
func DefaultTargets(anthropic gateway.Factory, opts ...openai.Option) []Target {
	return []Target{
		{Name: ProviderOpenAI, Label: "OpenAI", CredentialKey: credential.KeyOpenAI, Kind: credential.KindOpenAI, Probe: ModelsProbe(opts...)},
		{Name: ProviderWhisper, Label: "Whisper", CredentialKey: credential.KeyWhisper, Kind: credential.KindOpenAI, Probe: ModelsProbe(opts...)},
		{Name: ProviderAnthropic, Label: "Anthropic", CredentialKey: credential.KeyAnthropic, Kind: credential.KindAnthropic, Probe: CompletionProbe(anthropic)},
	}
}

// Test resolves the credential of provider exactly like the core does and
// probes it. Only an unknown provider is reported as an error; every other
// failure is described in the [Result].
func (c *Checker) Test(ctx context.Context, provider string) (Result, error) {
	t, ok := c.targets[strings.ToLower(provider)]
	if !ok {
		return Result{}, fmt.Errorf("%w: %q", ErrUnknownProvider, provider)
	}

	key := c.resolver.Resolve(ctx, t.CredentialKey)
	if key == "" {
		return Result{Provider: t.Name, Error: "Aucune clé " + t.Label + " configurée."}, nil
	}
	if err := credential.Validate(key, t.Kind); err != nil {
		e, _ := llmerr.As(err)
		return Result{Provider: t.Name, Error: e.Message}, nil
	}

	r := t.Probe(ctx, key)
	r.Provider = t.Name
	return r, nil
}

// Status reports which credentials are present, without network calls.
func (c *Checker) Status(ctx context.Context) Status {
	has := func(key string) bool { return c.resolver.Resolve(ctx, key) != "" }

	s := Status{
		WhisperConfigured: has(credential.KeyWhisper),
		ReportConfigured:  has(credential.KeyOpenAI) || has(credential.KeyAnthropic),
		Breakers:          []resilience.BreakerState{},
	}
	s.Configured = s.WhisperConfigured && s.ReportConfigured
	if c.active != nil {
		s.ActiveProvider = c.active.ActiveProvider(ctx)
	}
	if c.breakers != nil {
		s.Breakers = c.breakers.States()
	}
	return s
}
