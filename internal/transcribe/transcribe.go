// Package transcribe turns recorded audio into a cleaned transcript with a
// confidence score.
//
// The pipeline validates the recording size before touching the network,
// resolves the speech credential, calls the provider under retry and the
// provider's circuit breaker, then post-processes the text. Empty provider
// output fails fast: inaudible audio does not improve on a second attempt.
package transcribe

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/greffier/internal/clientcache"
	"github.com/MrWong99/greffier/internal/credential"
	"github.com/MrWong99/greffier/internal/observe"
	"github.com/MrWong99/greffier/internal/resilience"
	"github.com/MrWong99/greffier/internal/retry"
	"github.com/MrWong99/greffier/pkg/llmerr"
	"github.com/MrWong99/greffier/pkg/provider/stt"
	"github.com/MrWong99/greffier/pkg/types"
)

// Hint biases recognition towards the legal vocabulary used at the firm.
const Hint = "Transcription d'une consultation juridique au Cabinet HOK, Cotonou, Bénin. Vocabulaire juridique : OHADA, Acte uniforme, AUDCG, AUSCGIE, AUPSRVE, mise en demeure, assignation, ordonnance de référé, jugement, arrêt, pourvoi en cassation, CCJA, Cour Suprême, Barreau du Bénin, confrère, Maître, Tribunal de Commerce, Cour d'Appel, Tribunal de Première Instance, Code foncier et domanial, Code des personnes et de la famille, CRIET, APDP, greffe, audience, plaidoirie, réquisitoire, délibéré, grosse, expédition, signification, huissier, exploit, saisie, hypothèque, nantissement, gage, caution solidaire, société anonyme, SARL, SAS, GIE, registre du commerce, RCCM, quitus, bilan, compte de résultat."

func ptr(f float64) *float64 { return &f }

// defaultAvgLogprob is assumed when the provider reports no log
// probabilities.
const defaultAvgLogprob = -0.5

// Config tunes the pipeline. Zero values take the defaults from
// [DefaultConfig].
type Config struct {
	MinBytes int
	MaxBytes int

	// Language is used when the caller passes none.
	Language string
	FileName string
	Prompt   string

	// Fillers replaces [DefaultFillers] when non-nil. An empty, non-nil
	// slice disables filler removal.
	Fillers []string

	// LowConfidence is the score under which a warning is logged. Nil takes
	// the default; 0 never warns.
	LowConfidence *float64
}

// DefaultConfig returns the production settings.
func DefaultConfig() Config {
	return Config{
		MinBytes:      1024,
		MaxBytes:      25_000_000,
		Language:      "fr",
		FileName:      "audio.webm",
		Prompt:        Hint,
		Fillers:       DefaultFillers,
		LowConfidence: ptr(0.3),
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MinBytes <= 0 {
		c.MinBytes = d.MinBytes
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = d.MaxBytes
	}
	if c.Language == "" {
		c.Language = d.Language
	}
	if c.FileName == "" {
		c.FileName = d.FileName
	}
	if c.Prompt == "" {
		c.Prompt = d.Prompt
	}
	if c.Fillers == nil {
		c.Fillers = d.Fillers
	}
	if c.LowConfidence == nil {
		c.LowConfidence = d.LowConfidence
	}
	return c
}

// Factory builds a speech client from a validated credential.
type Factory func(apiKey string) (stt.Provider, error)

// Transcriber is safe for concurrent use.
type Transcriber struct {
	name      string
	factory   Factory
	resolver  *credential.Resolver
	cfg       Config
	fillers   *regexp.Regexp
	clients   *clientcache.Cache[stt.Provider]
	breakers  *resilience.Registry
	metrics   *observe.Metrics
	retryOpts []retry.Option
	cacheSize int
}

// Option configures a [Transcriber].
type Option func(*Transcriber)

// WithConfig replaces the pipeline settings.
func WithConfig(c Config) Option {
	return func(t *Transcriber) { t.cfg = c }
}

// WithProviderName sets the label used for the breaker, metrics and errors.
// Default: "whisper".
func WithProviderName(name string) Option {
	return func(t *Transcriber) { t.name = name }
}

// WithBreakers shares a breaker registry with other components.
func WithBreakers(r *resilience.Registry) Option {
	return func(t *Transcriber) { t.breakers = r }
}

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(t *Transcriber) { t.metrics = m }
}

// WithRetryOptions appends options to the provider retry loop.
func WithRetryOptions(opts ...retry.Option) Option {
	return func(t *Transcriber) { t.retryOpts = append(t.retryOpts, opts...) }
}

// WithClientCacheSize bounds the speech clients kept alive.
func WithClientCacheSize(n int) Option {
	return func(t *Transcriber) { t.cacheSize = n }
}

// New creates a [Transcriber] whose clients are built by factory.
func New(factory Factory, resolver *credential.Resolver, opts ...Option) *Transcriber {
	t := &Transcriber{
		name:     "whisper",
		factory:  factory,
		resolver: resolver,
		cfg:      DefaultConfig(),
	}
	for _, o := range opts {
		o(t)
	}
	t.clients = clientcache.New[stt.Provider](t.cacheSize)
	t.cfg = t.cfg.withDefaults()
	t.fillers = fillerPattern(t.cfg.Fillers)
	if t.breakers == nil {
		t.breakers = resilience.NewRegistry(resilience.CircuitBreakerConfig{})
	}
	if t.metrics == nil {
		t.metrics = observe.DefaultMetrics()
	}
	return t
}

// Validate checks the recording size without any I/O.
func (t *Transcriber) Validate(audio []byte) error {
	switch {
	case len(audio) == 0:
		return llmerr.New(llmerr.InputTooShort, t.name, "Le fichier audio est vide. Veuillez réenregistrer.")
	case len(audio) < t.cfg.MinBytes:
		return llmerr.New(llmerr.InputTooShort, t.name,
			"Enregistrement trop court. Minimum quelques secondes d'audio requis.",
			llmerr.WithContext("bytes", len(audio)))
	case len(audio) > t.cfg.MaxBytes:
		return llmerr.New(llmerr.OutputTooLarge, t.name,
			fmt.Sprintf("Fichier audio trop volumineux (%dMB). Maximum : %dMB.",
				int(math.Round(float64(len(audio))/1e6)), t.cfg.MaxBytes/1_000_000),
			llmerr.WithContext("bytes", len(audio)))
	}
	return nil
}

// Transcribe validates audio, sends it to the speech provider and returns the
// post-processed transcript. An empty language uses the configured default.
// Every failure is an *llmerr.Error.
func (t *Transcriber) Transcribe(ctx context.Context, audio []byte, language string) (*types.Transcription, error) {
	if language == "" {
		language = t.cfg.Language
	}
	ctx, span := observe.StartSpan(ctx, "transcribe",
		trace.WithAttributes(
			attribute.Int("audio_bytes", len(audio)),
			attribute.String("language", language),
		))
	defer span.End()

	start := time.Now()
	res, err := t.transcribe(ctx, audio, language)
	t.metrics.TranscriptionDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(attribute.String("provider", t.name)))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(llmerr.CodeOf(err)))
		return nil, err
	}
	span.SetAttributes(attribute.Float64("confidence", res.Confidence))
	return res, nil
}

func (t *Transcriber) transcribe(ctx context.Context, audio []byte, language string) (*types.Transcription, error) {
	log := observe.Logger(ctx)
	log.Info("transcribe: start", "audio_bytes", len(audio), "language", language)

	if err := t.Validate(audio); err != nil {
		return nil, err
	}
	key, err := t.resolver.Require(ctx, credential.KeyWhisper, credential.KindOpenAI)
	if err != nil {
		return nil, err
	}
	client, err := t.clients.Get(key, func(k string) (stt.Provider, error) { return t.factory(k) })
	if err != nil {
		return nil, llmerr.New(llmerr.TranscriptionFailed, t.name, "impossible d'initialiser le client",
			llmerr.WithCause(err))
	}

	req := stt.Request{
		Audio:         audio,
		FileName:      t.cfg.FileName,
		Language:      language,
		Prompt:        t.cfg.Prompt,
		Granularities: []string{stt.GranularitySegment},
	}
	raw, err := t.call(ctx, client, req)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(raw.Text) == "" {
		return nil, llmerr.New(llmerr.TranscriptionFailed, t.name,
			"Transcription vide. L'audio ne contient peut-être pas de parole audible. Vérifiez la qualité de l'enregistrement.",
			llmerr.WithRetryable(false))
	}

	out := &types.Transcription{
		Text:       postProcess(raw.Text, t.fillers),
		Segments:   make([]types.Segment, 0, len(raw.Segments)),
		Duration:   raw.Duration,
		Confidence: Confidence(raw.Segments),
	}
	for _, s := range raw.Segments {
		out.Segments = append(out.Segments, types.Segment{
			Start: s.Start,
			End:   s.End,
			Text:  strings.TrimSpace(s.Text),
		})
	}
	if n := len(out.Segments); n > 0 {
		out.Duration = out.Segments[n-1].End
	}

	log.Info("transcribe: done",
		"duration", math.Round(out.Duration),
		"chars", len([]rune(out.Text)),
		"segments", len(out.Segments),
		"confidence", math.Round(out.Confidence*100)/100)
	if out.Confidence < *t.cfg.LowConfidence {
		log.Warn("transcribe: low confidence, audio quality is probably poor",
			"confidence", out.Confidence,
			"threshold", *t.cfg.LowConfidence)
	}
	return out, nil
}

func (t *Transcriber) call(ctx context.Context, client stt.Provider, req stt.Request) (*stt.Result, error) {
	cb := t.breakers.Get(t.name)
	opts := append([]retry.Option{}, t.retryOpts...)
	opts = append(opts, retry.WithNotify(func(_ int, err error, _ time.Duration) {
		t.metrics.RecordRetry(ctx, "transcription", string(llmerr.CodeOf(err)))
	}))

	return retry.Do(ctx, "transcription", func(ctx context.Context) (*stt.Result, error) {
		res, err := resilience.Call(cb, func() (*stt.Result, error) {
			return client.Transcribe(ctx, req)
		})
		switch {
		case errors.Is(err, resilience.ErrCircuitOpen):
			err = llmerr.New(llmerr.TranscriptionFailed, t.name,
				"Service de transcription temporairement indisponible après plusieurs échecs consécutifs.",
				llmerr.WithCause(err), llmerr.WithRetryable(false))
		case err != nil:
			err = llmerr.Normalize(t.name, llmerr.TranscriptionFailed, err, 0, 0)
		case res == nil:
			err = llmerr.New(llmerr.InvalidResponse, t.name, "Réponse vide du service de transcription.")
		}
		if err != nil {
			t.metrics.RecordProviderRequest(ctx, t.name, "stt", "error")
			t.metrics.RecordProviderError(ctx, t.name, string(llmerr.CodeOf(err)))
			return nil, err
		}
		t.metrics.RecordProviderRequest(ctx, t.name, "stt", "ok")
		return res, nil
	}, opts...)
}

// Confidence maps the mean of the segments' average log probabilities onto
// [0,1] as 1 + mean/1.5. Segments without a log probability are ignored;
// with none at all the mean is taken as -0.5.
func Confidence(segments []stt.Segment) float64 {
	var sum float64
	var n int
	for _, s := range segments {
		if s.AvgLogprob != nil {
			sum += *s.AvgLogprob
			n++
		}
	}
	avg := defaultAvgLogprob
	if n > 0 {
		avg = sum / float64(n)
	}
	return math.Max(0, math.Min(1, 1+avg/1.5))
}
