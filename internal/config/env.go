package config

import (
	"fmt"
	"strings"

	cenv "github.com/caarlos0/env/v11"

	"github.com/MrWong99/greffier/internal/credential"
)

// Env holds the process environment read at startup. Credentials found here
// rank below persisted settings and above the YAML api_key fields.
type Env struct {
	ConfigPath  string `env:"GREFFIER_CONFIG"`
	ListenAddr  string `env:"GREFFIER_LISTEN_ADDR"`
	LogLevel    string `env:"GREFFIER_LOG_LEVEL"`
	DatabaseURL string `env:"DATABASE_URL"`

	OpenAIKey    string `env:"OPENAI_API_KEY"`
	AnthropicKey string `env:"ANTHROPIC_API_KEY"`
	WhisperKey   string `env:"WHISPER_API_KEY"`
	LLMProvider  string `env:"LLM_PROVIDER"`
}

// LoadEnv parses the process environment into an [Env].
func LoadEnv() (Env, error) {
	var e Env
	if err := cenv.Parse(&e); err != nil {
		return Env{}, fmt.Errorf("config: parse environment: %w", err)
	}
	return e, nil
}

// LoadEnvFrom parses vars instead of the process environment.
func LoadEnvFrom(vars map[string]string) (Env, error) {
	var e Env
	if err := cenv.ParseWithOptions(&e, cenv.Options{Environment: vars}); err != nil {
		return Env{}, fmt.Errorf("config: parse environment: %w", err)
	}
	return e, nil
}

// ApplyEnv overrides cfg with the non-empty server and settings values of e.
func ApplyEnv(cfg *Config, e Env) {
	if v := strings.TrimSpace(e.ListenAddr); v != "" {
		cfg.Server.ListenAddr = v
	}
	if v := strings.ToLower(strings.TrimSpace(e.LogLevel)); v != "" {
		cfg.Server.LogLevel = LogLevel(v)
	}
	if v := strings.TrimSpace(e.DatabaseURL); v != "" {
		cfg.Settings.PostgresDSN = v
	}
}

// Credentials returns the ordered process-level candidates for every
// credential key, suitable for [credential.StaticSource]. The Whisper key
// falls back to the OpenAI key.
func Credentials(cfg *Config, e Env) map[string][]string {
	byName := func(name string) string {
		for _, p := range []ProviderEntry{cfg.Providers.Primary, cfg.Providers.Secondary, cfg.Providers.Speech} {
			if p.Name == name && p.APIKey != "" {
				return p.APIKey
			}
		}
		return ""
	}
	out := map[string][]string{
		credential.KeyOpenAI:      {e.OpenAIKey, byName("openai")},
		credential.KeyAnthropic:   {e.AnthropicKey, byName("anthropic")},
		credential.KeyWhisper:     {e.WhisperKey, byName("whisper"), e.OpenAIKey, byName("openai")},
		credential.KeyLLMProvider: {e.LLMProvider},
	}
	for _, p := range []ProviderEntry{cfg.Providers.Primary, cfg.Providers.Secondary} {
		if key := CredentialKey(p.Name); out[key] == nil {
			out[key] = []string{p.APIKey}
		}
	}
	return out
}

// CredentialKey returns the settings key holding the credential of the
// named provider.
func CredentialKey(name string) string {
	switch name {
	case "openai":
		return credential.KeyOpenAI
	case "anthropic":
		return credential.KeyAnthropic
	case "whisper":
		return credential.KeyWhisper
	}
	return name + "_api_key"
}

// CredentialKind returns the format rules for the named provider's key.
// Providers without known rules only need a non-empty key.
func CredentialKind(name string) credential.Kind {
	switch name {
	case "openai", "whisper":
		return credential.KindOpenAI
	case "anthropic":
		return credential.KindAnthropic
	}
	return credential.Kind(name)
}
