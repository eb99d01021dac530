package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm": {"openai", "anthropic", "gemini", "mistral", "ollama"},
	"stt": {"whisper"},
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and validates
// the result. An empty document yields the defaults. Unknown keys are rejected.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills the server and provider fields left empty. Component
// sections keep their zero values; each component substitutes its own
// defaults for zero fields.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = ":8080"
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Server.ShutdownTimeout <= 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Providers.Primary.Name == "" {
		cfg.Providers.Primary.Name = "openai"
	}
	if cfg.Providers.Secondary.Name == "" {
		cfg.Providers.Secondary.Name = "anthropic"
	}
	if cfg.Providers.Speech.Name == "" {
		cfg.Providers.Speech.Name = "whisper"
	}
	if cfg.Generation.Temperature == nil {
		t := 0.2
		cfg.Generation.Temperature = &t
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Providers
	validateProviderName("llm", cfg.Providers.Primary.Name)
	validateProviderName("llm", cfg.Providers.Secondary.Name)
	validateProviderName("stt", cfg.Providers.Speech.Name)
	if cfg.Providers.Primary.Name == "" {
		errs = append(errs, errors.New("providers.primary.name is required"))
	}
	if cfg.Providers.Primary.Name != "" && cfg.Providers.Primary.Name == cfg.Providers.Secondary.Name {
		errs = append(errs, fmt.Errorf("providers.secondary.name %q duplicates providers.primary.name", cfg.Providers.Secondary.Name))
	}
	for field, p := range map[string]ProviderEntry{
		"primary":   cfg.Providers.Primary,
		"secondary": cfg.Providers.Secondary,
		"speech":    cfg.Providers.Speech,
	} {
		if p.Timeout < 0 {
			errs = append(errs, fmt.Errorf("providers.%s.timeout must not be negative", field))
		}
	}

	if cfg.Settings.PostgresDSN == "" {
		slog.Warn("settings.postgres_dsn is empty; credentials come from the environment only")
	}

	// Retry
	if cfg.Retry.MaxAttempts < 0 {
		errs = append(errs, fmt.Errorf("retry.max_attempts %d must not be negative", cfg.Retry.MaxAttempts))
	}
	if cfg.Retry.Multiplier != 0 && cfg.Retry.Multiplier < 1 {
		errs = append(errs, fmt.Errorf("retry.multiplier %.2f must be at least 1", cfg.Retry.Multiplier))
	}
	if cfg.Retry.Jitter < 0 || cfg.Retry.Jitter >= 1 {
		errs = append(errs, fmt.Errorf("retry.jitter %.2f is out of range [0, 1)", cfg.Retry.Jitter))
	}
	if cfg.Retry.BaseDelay > 0 && cfg.Retry.MaxDelay > 0 && cfg.Retry.BaseDelay > cfg.Retry.MaxDelay {
		errs = append(errs, fmt.Errorf("retry.base_delay %s exceeds retry.max_delay %s", cfg.Retry.BaseDelay, cfg.Retry.MaxDelay))
	}

	// Generation
	if t := cfg.Generation.Temperature; t != nil && (*t < 0 || *t > 2) {
		errs = append(errs, fmt.Errorf("generation.temperature %.2f is out of range [0, 2]", *t))
	}

	// Transcription
	tr := cfg.Transcription
	if tr.MinBytes < 0 || tr.MaxBytes < 0 {
		errs = append(errs, errors.New("transcription.min_bytes and max_bytes must not be negative"))
	}
	if tr.MinBytes > 0 && tr.MaxBytes > 0 && tr.MinBytes >= tr.MaxBytes {
		errs = append(errs, fmt.Errorf("transcription.min_bytes %d must be below max_bytes %d", tr.MinBytes, tr.MaxBytes))
	}
	if c := tr.LowConfidence; c != nil && (*c < 0 || *c > 1) {
		errs = append(errs, fmt.Errorf("transcription.low_confidence %.2f is out of range [0, 1]", *c))
	}

	// Inbound
	if c := cfg.Inbound.AcceptConfidence; c != nil && (*c < 0 || *c > 1) {
		errs = append(errs, fmt.Errorf("inbound.accept_confidence %.2f is out of range [0, 1]", *c))
	}

	// Rate limit and breaker
	if cfg.RateLimit.Requests < 0 {
		errs = append(errs, fmt.Errorf("rate_limit.requests %d must not be negative", cfg.RateLimit.Requests))
	}
	if cfg.CircuitBreaker.MaxFailures < 0 {
		errs = append(errs, fmt.Errorf("circuit_breaker.max_failures %d must not be negative", cfg.CircuitBreaker.MaxFailures))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name; may be a typo or a third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
