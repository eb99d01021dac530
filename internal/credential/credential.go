// Package credential resolves provider secrets and validates their format
// before any network call is attempted.
//
// Resolution walks an ordered list of [Source] values (persisted settings
// first, then process configuration) and returns the first usable value. A
// failing source never aborts resolution: it is logged and skipped.
package credential

import (
	"context"
	"log/slog"
	"strings"

	"github.com/MrWong99/greffier/pkg/llmerr"
)

// Settings keys understood by the resolver.
const (
	KeyWhisper   = "whisper_api_key"
	KeyOpenAI    = "openai_api_key"
	KeyAnthropic = "anthropic_api_key"

	// KeyLLMProvider holds the generation provider preference.
	KeyLLMProvider = "llm_provider"
)

// Placeholder is the value shipped in example environment files. It is
// treated as absent.
const Placeholder = "your-openai-api-key-here"

// Kind selects the format rules applied by [Validate].
type Kind string

const (
	KindOpenAI    Kind = "openai"
	KindAnthropic Kind = "anthropic"
)

// Store is a persisted key/value store holding secrets and preferences.
type Store interface {
	// Get returns the value for key. ok is false when the key is absent.
	Get(ctx context.Context, key string) (value string, ok bool, err error)
}

// Source yields a candidate value for key, or "" when it has none.
type Source func(ctx context.Context, key string) (string, error)

// StoreSource adapts a [Store] into a [Source].
func StoreSource(s Store) Source {
	return func(ctx context.Context, key string) (string, error) {
		v, ok, err := s.Get(ctx, key)
		if err != nil || !ok {
			return "", err
		}
		return v, nil
	}
}

// StaticSource serves values fixed at startup. Each key maps to an ordered
// list of candidates; the first usable one wins. This expresses fallbacks
// such as whisper_api_key → [WHISPER_API_KEY, OPENAI_API_KEY].
func StaticSource(values map[string][]string) Source {
	return func(_ context.Context, key string) (string, error) {
		for _, v := range values[key] {
			if usable(v) {
				return strings.TrimSpace(v), nil
			}
		}
		return "", nil
	}
}

type namedSource struct {
	name string
	src  Source
}

// Resolver looks credentials up across its sources in order.
type Resolver struct {
	sources []namedSource
}

// Option configures a [Resolver].
type Option func(*Resolver)

// WithSource appends a named source. Order of options is resolution order.
func WithSource(name string, src Source) Option {
	return func(r *Resolver) {
		r.sources = append(r.sources, namedSource{name: name, src: src})
	}
}

// NewResolver creates a [Resolver] over the given sources.
func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Resolve returns the first usable value for key, or "" when no source has
// one. Source failures are logged at warn level and skipped.
func (r *Resolver) Resolve(ctx context.Context, key string) string {
	for _, s := range r.sources {
		v, err := s.src(ctx, key)
		if err != nil {
			slog.Warn("credential: source unavailable, trying next",
				"source", s.name,
				"key", key,
				"err", err)
			continue
		}
		if usable(v) {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// Require resolves key and validates the result for kind.
func (r *Resolver) Require(ctx context.Context, key string, kind Kind) (string, error) {
	v := r.Resolve(ctx, key)
	if err := Validate(v, kind); err != nil {
		return "", err
	}
	return v, nil
}

func usable(v string) bool {
	v = strings.TrimSpace(v)
	return v != "" && v != Placeholder
}

// Validate checks that credential is present and well-formed for kind. It
// never touches the network.
func Validate(credential string, kind Kind) error {
	provider := string(kind)
	if strings.TrimSpace(credential) == "" {
		return llmerr.New(llmerr.CredentialMissing, provider,
			"Clé API non configurée. Renseignez-la dans Administration → Moteur LLM.")
	}
	switch kind {
	case KindAnthropic:
		if !strings.HasPrefix(credential, "sk-ant-") {
			return llmerr.New(llmerr.CredentialInvalid, provider,
				"Format de clé Anthropic invalide (doit commencer par sk-ant-).")
		}
	case KindOpenAI:
		if !strings.HasPrefix(credential, "sk-") {
			return llmerr.New(llmerr.CredentialInvalid, provider,
				"Format de clé OpenAI invalide (doit commencer par sk-).")
		}
	}
	return nil
}
