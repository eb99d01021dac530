package transcribe

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"go.opentelemetry.io/otel/metric/noop"

	"github.com/MrWong99/greffier/internal/credential"
	"github.com/MrWong99/greffier/internal/observe"
	"github.com/MrWong99/greffier/internal/resilience"
	"github.com/MrWong99/greffier/internal/retry"
	"github.com/MrWong99/greffier/pkg/llmerr"
	"github.com/MrWong99/greffier/pkg/provider/stt"
	"github.com/MrWong99/greffier/pkg/provider/stt/mock"
)


func newTestTranscriber(t *testing.T, p *mock.Provider, keys map[string][]string, opts ...Option) (*Transcriber, *[]time.Duration) {
	t.Helper()
	metrics, err := observe.NewMetrics(noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	var sleeps []time.Duration
	resolver := credential.NewResolver(credential.WithSource("env", credential.StaticSource(keys)))
	base := []Option{
		WithMetrics(metrics),
		WithRetryOptions(retry.WithSleep(func(_ context.Context, d time.Duration) error {
			sleeps = append(sleeps, d)
			return nil
		})),
	}
	tr := New(func(string) (stt.Provider, error) { return p, nil }, resolver, append(base, opts...)...)
	return tr, &sleeps
}

var whisperKey = map[string][]string{credential.KeyWhisper: {"", "sk-openai-fallback"}}

func TestValidate(t *testing.T) {
	tr, _ := newTestTranscriber(t, &mock.Provider{}, whisperKey)
	tests := []struct {
		name string
		size int
		want llmerr.Code
	}{
		{"empty", 0, llmerr.InputTooShort},
		{"one byte short", 1023, llmerr.InputTooShort},
		{"exactly minimum", 1024, ""},
		{"exactly maximum", 25_000_000, ""},
		{"too large", 25_000_001, llmerr.OutputTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tr.Validate(make([]byte, tt.size))
			if got := llmerr.CodeOf(err); got != tt.want {
				t.Errorf("CodeOf = %q, want %q (err=%v)", got, tt.want, err)
			}
		})
	}
}

func TestValidate_Messages(t *testing.T) {
	tr, _ := newTestTranscriber(t, &mock.Provider{}, whisperKey)
	if err := tr.Validate(nil); !strings.Contains(err.Error(), "Le fichier audio est vide") {
		t.Errorf("empty message = %q", err)
	}
	if err := tr.Validate(make([]byte, 10)); !strings.Contains(err.Error(), "Enregistrement trop court") {
		t.Errorf("short message = %q", err)
	}
	if err := tr.Validate(make([]byte, 30_000_000)); !strings.Contains(err.Error(), "(30MB)") {
		t.Errorf("large message = %q", err)
	}
}

func TestTranscribe_ValidationSkipsProvider(t *testing.T) {
	p := &mock.Provider{}
	tr, _ := newTestTranscriber(t, p, whisperKey)
	_, err := tr.Transcribe(context.Background(), make([]byte, 100), "fr")
	if llmerr.CodeOf(err) != llmerr.InputTooShort {
		t.Fatalf("err = %v, want INPUT_TOO_SHORT", err)
	}
	if p.Calls() != 0 {
		t.Errorf("provider calls = %d, want 0", p.Calls())
	}
}

func TestTranscribe_Success(t *testing.T) {
	p := &mock.Provider{Result: &stt.Result{
		Text: "  bonjour maître.. euh je viens pour un litige foncier . ",
		Segments: []stt.Segment{
			{Start: 0, End: 3.2, Text: " bonjour maître. ", AvgLogprob: ptr(-0.3)},
			{Start: 3.2, End: 7.5, Text: "je viens pour un litige foncier.", AvgLogprob: ptr(-0.6)},
		},
		Duration: 8,
	}}
	tr, _ := newTestTranscriber(t, p, whisperKey)

	got, err := tr.Transcribe(context.Background(), make([]byte, 4096), "")
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if want := "bonjour maître. Je viens pour un litige foncier."; got.Text != want {
		t.Errorf("Text = %q, want %q", got.Text, want)
	}
	if got.Duration != 7.5 {
		t.Errorf("Duration = %v, want 7.5 (last segment end)", got.Duration)
	}
	if got.Segments[0].Text != "bonjour maître." {
		t.Errorf("segment text not trimmed: %q", got.Segments[0].Text)
	}
	if want := 1 + (-0.45)/1.5; math.Abs(got.Confidence-want) > 1e-9 {
		t.Errorf("Confidence = %v, want %v", got.Confidence, want)
	}

	req := p.TranscribeCalls[0].Req
	if req.Language != "fr" || req.FileName != "audio.webm" || req.Prompt != Hint {
		t.Errorf("request = {%q %q %q}", req.Language, req.FileName, req.Prompt[:20])
	}
	if len(req.Granularities) != 1 || req.Granularities[0] != stt.GranularitySegment {
		t.Errorf("Granularities = %v", req.Granularities)
	}
}

func TestTranscribe_DurationFallsBackToProvider(t *testing.T) {
	p := &mock.Provider{Result: &stt.Result{Text: "Bonjour.", Duration: 4.2}}
	tr, _ := newTestTranscriber(t, p, whisperKey)

	got, err := tr.Transcribe(context.Background(), make([]byte, 2048), "en")
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if got.Duration != 4.2 {
		t.Errorf("Duration = %v, want 4.2", got.Duration)
	}
	if got.Segments == nil {
		t.Error("Segments is nil, want empty slice")
	}
	if want := Confidence(nil); math.Abs(got.Confidence-want) > 1e-9 {
		t.Errorf("Confidence = %v, want default %v", got.Confidence, want)
	}
}

func TestTranscribe_EmptyTextNotRetried(t *testing.T) {
	p := &mock.Provider{Result: &stt.Result{Text: "   "}}
	tr, sleeps := newTestTranscriber(t, p, whisperKey)

	_, err := tr.Transcribe(context.Background(), make([]byte, 2048), "fr")
	e, ok := llmerr.As(err)
	if !ok || e.Code != llmerr.TranscriptionFailed || e.Retryable {
		t.Fatalf("err = %v, want non-retryable TRANSCRIPTION_FAILED", err)
	}
	if p.Calls() != 1 || len(*sleeps) != 0 {
		t.Errorf("calls = %d, sleeps = %v", p.Calls(), *sleeps)
	}
}

func TestTranscribe_RetriesTransientFailures(t *testing.T) {
	p := &mock.Provider{
		Errs: []error{
			llmerr.New(llmerr.Timeout, "whisper", "slow"),
			llmerr.New(llmerr.RateLimited, "whisper", "busy", llmerr.WithRetryAfter(3*time.Second)),
		},
		Result: &stt.Result{Text: "Bonjour."},
	}
	tr, sleeps := newTestTranscriber(t, p, whisperKey)

	if _, err := tr.Transcribe(context.Background(), make([]byte, 2048), "fr"); err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if p.Calls() != 3 {
		t.Errorf("calls = %d, want 3", p.Calls())
	}
	if len(*sleeps) != 2 || (*sleeps)[1] < 3*time.Second {
		t.Errorf("sleeps = %v, want second >= 3s", *sleeps)
	}
}

func TestTranscribe_NormalizesRawErrors(t *testing.T) {
	p := &mock.Provider{Err: errors.New("something odd")}
	tr, _ := newTestTranscriber(t, p, whisperKey)

	_, err := tr.Transcribe(context.Background(), make([]byte, 2048), "fr")
	e, ok := llmerr.As(err)
	if !ok || e.Code != llmerr.TranscriptionFailed || e.Provider != "whisper" {
		t.Fatalf("err = %v, want TRANSCRIPTION_FAILED from whisper", err)
	}
}

func TestTranscribe_Credentials(t *testing.T) {
	tests := []struct {
		name string
		keys map[string][]string
		want llmerr.Code
	}{
		{"missing", nil, llmerr.CredentialMissing},
		{"placeholder only", map[string][]string{credential.KeyWhisper: {credential.Placeholder}}, llmerr.CredentialMissing},
		{"anthropic key", map[string][]string{credential.KeyWhisper: {"ant-123"}}, llmerr.CredentialInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &mock.Provider{}
			tr, _ := newTestTranscriber(t, p, tt.keys)
			_, err := tr.Transcribe(context.Background(), make([]byte, 2048), "fr")
			if got := llmerr.CodeOf(err); got != tt.want {
				t.Errorf("CodeOf = %s, want %s", got, tt.want)
			}
			if p.Calls() != 0 {
				t.Errorf("provider calls = %d, want 0", p.Calls())
			}
		})
	}
}

func TestTranscribe_CircuitOpen(t *testing.T) {
	p := &mock.Provider{Err: llmerr.New(llmerr.TranscriptionFailed, "whisper", "upstream 500")}
	breakers := resilience.NewRegistry(resilience.CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: time.Hour})
	tr, _ := newTestTranscriber(t, p, whisperKey, WithBreakers(breakers))

	_, _ = tr.Transcribe(context.Background(), make([]byte, 2048), "fr")
	_, err := tr.Transcribe(context.Background(), make([]byte, 2048), "fr")
	if !errors.Is(err, resilience.ErrCircuitOpen) || llmerr.CodeOf(err) != llmerr.TranscriptionFailed {
		t.Fatalf("err = %v, want TRANSCRIPTION_FAILED wrapping ErrCircuitOpen", err)
	}
	if p.Calls() != 1 {
		t.Errorf("calls = %d, want 1", p.Calls())
	}
}

func TestConfig_LowConfidence(t *testing.T) {
	tests := []struct {
		name string
		in   *float64
		want float64
	}{
		{"unset takes default", nil, 0.3},
		{"zero disables warning", ptr(0), 0},
		{"explicit", ptr(0.5), 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Config{LowConfidence: tt.in}.withDefaults().LowConfidence
			if got == nil || *got != tt.want {
				t.Errorf("LowConfidence = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestConfidence(t *testing.T) {
	tests := []struct {
		name string
		segs []stt.Segment
		want float64
	}{
		{"no segments", nil, 1 - 0.5/1.5},
		{"missing logprobs", []stt.Segment{{Text: "a"}}, 1 - 0.5/1.5},
		{"perfect", []stt.Segment{{AvgLogprob: ptr(0)}}, 1},
		{"positive clamps", []stt.Segment{{AvgLogprob: ptr(0.4)}}, 1},
		{"very poor clamps", []stt.Segment{{AvgLogprob: ptr(-3)}}, 0},
		{"mixed ignores nil", []stt.Segment{{AvgLogprob: ptr(-0.75)}, {}}, 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Confidence(tt.segs); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Confidence = %v, want %v", got, tt.want)
			}
		})
	}
}
