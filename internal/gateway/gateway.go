// Package gateway issues structured-generation requests to the configured
// text-generation provider and returns a validated JSON object.
//
// A [Gateway] owns provider selection (preference stored under
// llm_provider, with a fallback to the primary when the secondary has no
// credential), credential checks, client reuse, retry with backoff, the
// per-provider circuit breaker and a single reinforced re-issue when the
// reply is not parseable JSON.
package gateway

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/greffier/internal/clientcache"
	"github.com/MrWong99/greffier/internal/credential"
	"github.com/MrWong99/greffier/internal/extract"
	"github.com/MrWong99/greffier/internal/observe"
	"github.com/MrWong99/greffier/internal/resilience"
	"github.com/MrWong99/greffier/internal/retry"
	"github.com/MrWong99/greffier/pkg/llmerr"
	"github.com/MrWong99/greffier/pkg/provider/llm"
	"github.com/MrWong99/greffier/pkg/types"
)

// Reinforcement is appended to the user prompt when the first reply could
// not be parsed.
const Reinforcement = "\n\n⚠️ RAPPEL : Répondez UNIQUEMENT en JSON valide. Commencez par { et terminez par }. Aucun texte autour."

// DefaultTemperature keeps replies close to deterministic.
const DefaultTemperature = 0.2

// reinforceAttempts bounds the retry budget of the reinforced request.
const reinforceAttempts = 2

// SecondaryAlias selects the secondary binding regardless of its name.
const SecondaryAlias = "secondary"

// Factory builds a provider client from a validated credential.
type Factory func(apiKey string) (llm.Provider, error)

// Binding ties a provider name to the credential it needs and the
// constructor of its client.
type Binding struct {
	Name          string
	CredentialKey string
	Kind          credential.Kind
	Factory       Factory
}

// Request is a single structured-generation request.
type Request struct {
	System    string
	User      string
	MaxTokens int
}

// Result is a validated generation outcome.
type Result struct {
	Object   map[string]any
	Provider string
	Usage    llm.Usage

	// Reinforced is true when the object came from the re-issued request.
	Reinforced bool
}

// Generator is the narrow view of a [Gateway] used by the synthesizers.
type Generator interface {
	Generate(ctx context.Context, req Request) (*Result, error)
}

// Gateway is safe for concurrent use.
type Gateway struct {
	primary     Binding
	secondary   *Binding
	resolver    *credential.Resolver
	breakers    *resilience.Registry
	metrics     *observe.Metrics
	temperature float64
	retryOpts   []retry.Option
	cacheSize   int
	clients     map[string]*clientcache.Cache[llm.Provider]
}

// Option configures a [Gateway].
type Option func(*Gateway)

// WithSecondary registers the alternative provider selectable through the
// llm_provider preference.
func WithSecondary(b Binding) Option {
	return func(g *Gateway) { g.secondary = &b }
}

// WithBreakers shares a breaker registry with other components.
func WithBreakers(r *resilience.Registry) Option {
	return func(g *Gateway) { g.breakers = r }
}

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(g *Gateway) { g.metrics = m }
}

// WithTemperature overrides [DefaultTemperature].
func WithTemperature(t float64) Option {
	return func(g *Gateway) { g.temperature = t }
}

// WithRetryOptions appends options to every retry loop the gateway runs.
func WithRetryOptions(opts ...retry.Option) Option {
	return func(g *Gateway) { g.retryOpts = append(g.retryOpts, opts...) }
}

// WithClientCacheSize bounds the clients kept per provider. Non-positive
// values use the cache default.
func WithClientCacheSize(n int) Option {
	return func(g *Gateway) { g.cacheSize = n }
}

// New creates a [Gateway] whose default provider is primary.
func New(primary Binding, resolver *credential.Resolver, opts ...Option) *Gateway {
	g := &Gateway{
		primary:     primary,
		resolver:    resolver,
		temperature: DefaultTemperature,
	}
	for _, o := range opts {
		o(g)
	}
	if g.breakers == nil {
		g.breakers = resilience.NewRegistry(resilience.CircuitBreakerConfig{})
	}
	if g.metrics == nil {
		g.metrics = observe.DefaultMetrics()
	}
	g.clients = map[string]*clientcache.Cache[llm.Provider]{
		primary.Name: clientcache.New[llm.Provider](g.cacheSize),
	}
	if g.secondary != nil {
		g.clients[g.secondary.Name] = clientcache.New[llm.Provider](g.cacheSize)
	}
	return g
}

// ActiveProvider returns the name of the provider the next request will use.
func (g *Gateway) ActiveProvider(ctx context.Context) string {
	return g.selectBinding(ctx).Name
}

func (g *Gateway) selectBinding(ctx context.Context) Binding {
	if g.secondary == nil {
		return g.primary
	}
	pref := strings.ToLower(g.resolver.Resolve(ctx, credential.KeyLLMProvider))
	if pref != strings.ToLower(g.secondary.Name) && pref != SecondaryAlias {
		return g.primary
	}
	if g.resolver.Resolve(ctx, g.secondary.CredentialKey) == "" {
		slog.Warn("gateway: preferred provider has no credential, using primary",
			"preferred", g.secondary.Name,
			"primary", g.primary.Name)
		return g.primary
	}
	return *g.secondary
}

// GenerateStructured is [Gateway.Generate] returning only the object.
func (g *Gateway) GenerateStructured(ctx context.Context, system, user string, maxTokens int) (map[string]any, error) {
	res, err := g.Generate(ctx, Request{System: system, User: user, MaxTokens: maxTokens})
	if err != nil {
		return nil, err
	}
	return res.Object, nil
}

// Generate sends req to the active provider and returns the parsed object.
// Every failure is an *llmerr.Error.
func (g *Gateway) Generate(ctx context.Context, req Request) (*Result, error) {
	ctx = observe.WithRequestID(ctx, uuid.NewString())
	ctx, span := observe.StartSpan(ctx, "gateway.generate",
		trace.WithAttributes(attribute.Int("max_tokens", req.MaxTokens)))
	defer span.End()

	start := time.Now()
	b := g.selectBinding(ctx)
	span.SetAttributes(attribute.String("provider", b.Name))

	res, err := g.generate(ctx, b, req)
	g.metrics.GenerationDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(attribute.String("provider", b.Name)))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(llmerr.CodeOf(err)))
		observe.Logger(ctx).Warn("gateway: generation failed",
			"provider", b.Name,
			"code", llmerr.CodeOf(err),
			"err", err)
		return nil, err
	}
	span.SetAttributes(attribute.Bool("reinforced", res.Reinforced))
	return res, nil
}

func (g *Gateway) generate(ctx context.Context, b Binding, req Request) (*Result, error) {
	key, err := g.resolver.Require(ctx, b.CredentialKey, b.Kind)
	if err != nil {
		return nil, err
	}
	client, err := g.clients[b.Name].Get(key, func(k string) (llm.Provider, error) { return b.Factory(k) })
	if err != nil {
		return nil, llmerr.New(llmerr.GenerationFailed, b.Name, "impossible d'initialiser le client",
			llmerr.WithCause(err))
	}

	creq := llm.CompletionRequest{
		SystemPrompt: req.System,
		Messages:     []types.Message{{Role: "user", Content: req.User}},
		Temperature:  g.temperature,
		MaxTokens:    req.MaxTokens,
		JSONMode:     true,
	}

	resp, err := g.complete(ctx, b.Name, client, creq)
	if err != nil {
		return nil, err
	}
	obj, perr := extract.ObjectFrom(resp.Content)
	if perr == nil {
		return &Result{Object: obj, Provider: b.Name, Usage: resp.Usage}, nil
	}
	firstErr := withProvider(perr, b.Name)
	if llmerr.CodeOf(perr) != llmerr.ParseError {
		return nil, firstErr
	}

	observe.Logger(ctx).Warn("gateway: reply is not valid JSON, re-issuing with reminder",
		"provider", b.Name,
		"raw_length", len([]rune(resp.Content)))
	creq.Messages = []types.Message{{Role: "user", Content: req.User + Reinforcement}}

	resp2, err := g.complete(ctx, b.Name, client, creq, retry.WithMaxAttempts(reinforceAttempts))
	if err != nil {
		g.metrics.RecordReinforcement(ctx, b.Name, false)
		return nil, err
	}
	obj, perr = extract.ObjectFrom(resp2.Content)
	g.metrics.RecordReinforcement(ctx, b.Name, perr == nil)
	if perr != nil {
		return nil, firstErr
	}
	return &Result{
		Object:     obj,
		Provider:   b.Name,
		Usage:      addUsage(resp.Usage, resp2.Usage),
		Reinforced: true,
	}, nil
}

// complete runs one provider call under retry and the provider's breaker.
func (g *Gateway) complete(ctx context.Context, name string, p llm.Provider, req llm.CompletionRequest, extra ...retry.Option) (*llm.CompletionResponse, error) {
	cb := g.breakers.Get(name)
	opts := make([]retry.Option, 0, len(g.retryOpts)+len(extra)+1)
	opts = append(opts, g.retryOpts...)
	opts = append(opts, extra...)
	opts = append(opts, retry.WithNotify(func(_ int, err error, _ time.Duration) {
		g.metrics.RecordRetry(ctx, "generation", string(llmerr.CodeOf(err)))
	}))

	return retry.Do(ctx, "generation:"+name, func(ctx context.Context) (*llm.CompletionResponse, error) {
		resp, err := resilience.Call(cb, func() (*llm.CompletionResponse, error) {
			return p.Complete(ctx, req)
		})
		if err != nil {
			if errors.Is(err, resilience.ErrCircuitOpen) {
				err = llmerr.New(llmerr.GenerationFailed, name,
					"Fournisseur temporairement indisponible après plusieurs échecs consécutifs.",
					llmerr.WithCause(err), llmerr.WithRetryable(false))
			} else {
				err = llmerr.Normalize(name, llmerr.GenerationFailed, err, 0, 0)
			}
			g.metrics.RecordProviderRequest(ctx, name, "llm", "error")
			g.metrics.RecordProviderError(ctx, name, string(llmerr.CodeOf(err)))
			return nil, err
		}
		g.metrics.RecordProviderRequest(ctx, name, "llm", "ok")
		if resp.Truncated() {
			observe.Logger(ctx).Warn("gateway: reply truncated at token limit",
				"provider", name,
				"max_tokens", req.MaxTokens,
				"completion_tokens", resp.Usage.CompletionTokens)
		}
		return resp, nil
	}, opts...)
}

// withProvider stamps the provider name on an extractor error, which is
// raised without one.
func withProvider(err error, provider string) error {
	e, ok := llmerr.As(err)
	if !ok || e.Provider != "" {
		return err
	}
	opts := []llmerr.Option{llmerr.WithCause(e), llmerr.WithRetryable(e.Retryable)}
	for k, v := range e.Context {
		opts = append(opts, llmerr.WithContext(k, v))
	}
	return llmerr.New(e.Code, provider, e.Message, opts...)
}

func addUsage(a, b llm.Usage) llm.Usage {
	return llm.Usage{
		PromptTokens:     a.PromptTokens + b.PromptTokens,
		CompletionTokens: a.CompletionTokens + b.CompletionTokens,
		TotalTokens:      a.TotalTokens + b.TotalTokens,
	}
}
