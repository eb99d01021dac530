// Package app wires the greffier subsystems into a running HTTP service.
//
// The App struct owns the full lifecycle: New builds the credential resolver,
// the generation gateway and every pipeline on top of it, Run serves HTTP and
// sweeps the rate limiter until the context ends, and Shutdown releases the
// settings connection pool.
//
// For testing, inject doubles via functional options (WithStore,
// WithMetrics). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/greffier/internal/config"
	"github.com/MrWong99/greffier/internal/credential"
	"github.com/MrWong99/greffier/internal/gateway"
	"github.com/MrWong99/greffier/internal/health"
	"github.com/MrWong99/greffier/internal/httpapi"
	"github.com/MrWong99/greffier/internal/inbound"
	"github.com/MrWong99/greffier/internal/keycheck"
	"github.com/MrWong99/greffier/internal/metadata"
	"github.com/MrWong99/greffier/internal/observe"
	"github.com/MrWong99/greffier/internal/ratelimit"
	"github.com/MrWong99/greffier/internal/report"
	"github.com/MrWong99/greffier/internal/resilience"
	"github.com/MrWong99/greffier/internal/retry"
	"github.com/MrWong99/greffier/internal/settings"
	"github.com/MrWong99/greffier/internal/transcribe"
	"github.com/MrWong99/greffier/pkg/provider/llm/openai"
)

const defaultShutdownTimeout = 10 * time.Second

// SettingsStore is the persisted key/value store read by the resolver.
type SettingsStore interface {
	credential.Store
	Ping(ctx context.Context) error
}

// App owns all subsystem lifetimes.
type App struct {
	cfg      *config.Config
	env      config.Env
	registry *config.Registry

	store          SettingsStore
	resolver       *credential.Resolver
	breakers       *resilience.Registry
	metrics        *observe.Metrics
	metricsHandler http.Handler
	limiter        *ratelimit.Limiter
	gateway        *gateway.Gateway
	keys           *keycheck.Checker
	handler        http.Handler

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithStore injects a settings store instead of connecting to PostgreSQL.
func WithStore(s SettingsStore) Option {
	return func(a *App) { a.store = s }
}

// WithEnv supplies the process environment read at startup.
func WithEnv(e config.Env) Option {
	return func(a *App) { a.env = e }
}

// WithMetrics replaces [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithMetricsHandler mounts h on /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.metricsHandler = h }
}

// New creates an App. reg must hold a factory for every provider named in
// cfg.Providers.
func New(ctx context.Context, cfg *config.Config, reg *config.Registry, opts ...Option) (*App, error) {
	a := &App{cfg: cfg, registry: reg}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	if err := a.initStore(ctx); err != nil {
		return nil, fmt.Errorf("app: init settings: %w", err)
	}
	a.resolver = credential.NewResolver(
		credential.WithSource("settings", credential.StoreSource(a.store)),
		credential.WithSource("environment", credential.StaticSource(config.Credentials(cfg, a.env))),
	)
	a.breakers = resilience.NewRegistry(resilience.CircuitBreakerConfig{
		MaxFailures:  cfg.CircuitBreaker.MaxFailures,
		ResetTimeout: cfg.CircuitBreaker.ResetTimeout,
		HalfOpenMax:  cfg.CircuitBreaker.HalfOpenMax,
	})
	a.limiter = ratelimit.New(ratelimit.Config{
		Requests:      cfg.RateLimit.Requests,
		Window:        cfg.RateLimit.Window,
		IdleTTL:       cfg.RateLimit.IdleTTL,
		SweepInterval: cfg.RateLimit.SweepInterval,
	})

	if err := a.initPipelines(); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *App) initStore(ctx context.Context) error {
	if a.store != nil {
		return nil
	}
	dsn := a.cfg.Settings.PostgresDSN
	if dsn == "" {
		slog.Warn("no settings database configured; using an in-memory store")
		a.store = settings.NewMemStore(nil)
		return nil
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	a.closers = append(a.closers, func() error {
		pool.Close()
		return nil
	})
	store := settings.NewPostgresStore(pool)
	if a.cfg.Settings.Migrate {
		if err := store.Migrate(ctx); err != nil {
			pool.Close()
			return err
		}
	}
	a.store = store
	slog.Info("settings store connected")
	return nil
}

func (a *App) binding(entry config.ProviderEntry) gateway.Binding {
	return gateway.Binding{
		Name:          entry.Name,
		CredentialKey: config.CredentialKey(entry.Name),
		Kind:          config.CredentialKind(entry.Name),
		Factory:       a.registry.LLMFactory(entry),
	}
}

func (a *App) initPipelines() error {
	cfg := a.cfg
	retryOpts := []retry.Option{retry.WithPolicy(retry.Policy{
		MaxAttempts: cfg.Retry.MaxAttempts,
		BaseDelay:   cfg.Retry.BaseDelay,
		Multiplier:  cfg.Retry.Multiplier,
		MaxDelay:    cfg.Retry.MaxDelay,
		Jitter:      cfg.Retry.Jitter,
	})}

	if !a.registry.HasLLM(cfg.Providers.Primary.Name) {
		return fmt.Errorf("app: %w: llm/%q", config.ErrProviderNotRegistered, cfg.Providers.Primary.Name)
	}
	gwOpts := []gateway.Option{
		gateway.WithBreakers(a.breakers),
		gateway.WithMetrics(a.metrics),
		gateway.WithRetryOptions(retryOpts...),
		gateway.WithClientCacheSize(cfg.Generation.ClientCacheSize),
	}
	if t := cfg.Generation.Temperature; t != nil {
		gwOpts = append(gwOpts, gateway.WithTemperature(*t))
	}
	switch sec := cfg.Providers.Secondary; {
	case sec.Name == "":
	case a.registry.HasLLM(sec.Name):
		gwOpts = append(gwOpts, gateway.WithSecondary(a.binding(sec)))
	default:
		slog.Warn("secondary provider not registered; generation uses the primary only", "name", sec.Name)
	}
	a.gateway = gateway.New(a.binding(cfg.Providers.Primary), a.resolver, gwOpts...)

	tr := cfg.Transcription
	transcriber := transcribe.New(a.registry.STTFactory(cfg.Providers.Speech), a.resolver,
		transcribe.WithConfig(transcribe.Config{
			MinBytes:      tr.MinBytes,
			MaxBytes:      tr.MaxBytes,
			Language:      tr.Language,
			Prompt:        tr.Prompt,
			Fillers:       tr.Fillers,
			LowConfidence: tr.LowConfidence,
		}),
		transcribe.WithProviderName(cfg.Providers.Speech.Name),
		transcribe.WithBreakers(a.breakers),
		transcribe.WithMetrics(a.metrics),
		transcribe.WithRetryOptions(retryOpts...),
		transcribe.WithClientCacheSize(cfg.Generation.ClientCacheSize),
	)

	reports := report.New(a.gateway, report.WithConfig(report.Config{
		BriefTokens:    cfg.Report.BriefTokens,
		StandardTokens: cfg.Report.StandardTokens,
		DetailedTokens: cfg.Report.DetailedTokens,
		MinChars:       cfg.Report.MinChars,
	}))
	meta := metadata.New(a.gateway, metadata.Config{
		MinChars:  cfg.Metadata.MinChars,
		MaxTokens: cfg.Metadata.MaxTokens,
	})
	messages := inbound.NewService(a.gateway,
		inbound.WithConfig(inbound.Config{
			MinChars:         cfg.Inbound.MinChars,
			AcceptConfidence: cfg.Inbound.AcceptConfidence,
			ClassifyTokens:   cfg.Inbound.ClassifyTokens,
			ParseTokens:      cfg.Inbound.ParseTokens,
		}),
		inbound.WithMetrics(a.metrics),
	)

	a.keys = keycheck.New(a.resolver, a.gateway, a.breakers, keycheck.DefaultTargets(
		a.registry.LLMFactory(a.providerEntry("anthropic")),
		a.openAIOptions()...,
	)...)

	a.handler = httpapi.NewServer(httpapi.Dependencies{
		Transcriber: transcriber,
		Reports:     reports,
		Metadata:    meta,
		Inbound:     messages,
		Keys:        a.keys,
		Health: health.New(
			health.PingCheck("settings", a.store),
			health.CredentialCheck("generation", a.resolver, credential.KeyOpenAI, credential.KeyAnthropic),
			health.CredentialCheck("transcription", a.resolver, credential.KeyWhisper),
		),
		Limiter:        a.limiter,
		Metrics:        a.metrics,
		MetricsHandler: a.metricsHandler,
		MaxUploadBytes: int64(maxUpload(tr.MaxBytes)),
	})
	return nil
}

// providerEntry returns the configured entry for name, or a bare entry.
func (a *App) providerEntry(name string) config.ProviderEntry {
	for _, p := range []config.ProviderEntry{a.cfg.Providers.Primary, a.cfg.Providers.Secondary} {
		if p.Name == name {
			return p
		}
	}
	return config.ProviderEntry{Name: name}
}

// openAIOptions points the key checker at the configured OpenAI endpoint.
func (a *App) openAIOptions() []openai.Option {
	e := a.providerEntry("openai")
	var opts []openai.Option
	if e.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(e.BaseURL))
	}
	if e.Timeout > 0 {
		opts = append(opts, openai.WithTimeout(e.Timeout))
	}
	return opts
}

// maxUpload leaves room for the multipart envelope above the audio limit.
func maxUpload(maxAudio int) int {
	if maxAudio <= 0 {
		maxAudio = transcribe.DefaultConfig().MaxBytes
	}
	return maxAudio + 1<<20
}

// Handler returns the HTTP surface.
func (a *App) Handler() http.Handler { return a.handler }

// Run serves HTTP on cfg.Server.ListenAddr and sweeps the rate limiter until
// ctx is cancelled, then drains in-flight requests within
// cfg.Server.ShutdownTimeout.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    a.cfg.Server.ListenAddr,
		Handler: a.handler,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("app: serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return a.limiter.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		timeout := a.cfg.Server.ShutdownTimeout
		if timeout <= 0 {
			timeout = defaultShutdownTimeout
		}
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("app: drain: %w", err)
		}
		return nil
	})
	return g.Wait()
}

// Shutdown releases every resource acquired by New. It respects the context
// deadline: if ctx expires before all closers finish, remaining closers are
// skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var err error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		var errs []error
		for i, closer := range a.closers {
			if ctx.Err() != nil {
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				errs = append(errs, ctx.Err())
				break
			}
			if cerr := closer(); cerr != nil {
				errs = append(errs, cerr)
			}
		}
		err = errors.Join(errs...)
	})
	return err
}
