package inbound

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/metric/noop"

	"github.com/MrWong99/greffier/internal/gateway/mock"
	"github.com/MrWong99/greffier/internal/observe"
	"github.com/MrWong99/greffier/pkg/llmerr"
	"github.com/MrWong99/greffier/pkg/types"
)

const informalReport = "Audience ce matin au TPI, dossier Dupont c/ SCI Immo, renvoyé au 25 mars 2026."

func testMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	m, err := observe.NewMetrics(noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m
}

func TestClassify_Prefilter(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		wantConf float64
	}{
		{"short", "ok merci", 1.0},
		{"empty", "", 1.0},
		{"greeting", "Bonsoir à tous les confrères", 0.95},
		{"wishes", "Joyeux anniversaire Maître !", 0.95},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &mock.Generator{}
			got := NewClassifier(gen, Config{}, testMetrics(t)).Classify(context.Background(), tt.text)
			if got.IsReport {
				t.Error("IsReport = true, want false")
			}
			if got.Confidence != tt.wantConf {
				t.Errorf("Confidence = %v, want %v", got.Confidence, tt.wantConf)
			}
			if got.Source != types.SourcePrefilter {
				t.Errorf("Source = %q, want %q", got.Source, types.SourcePrefilter)
			}
			if gen.Calls() != 0 {
				t.Errorf("generator calls = %d, want 0", gen.Calls())
			}
		})
	}
}

func TestClassify_AIVerdict(t *testing.T) {
	tests := []struct {
		name       string
		obj        map[string]any
		wantReport bool
		wantConf   float64
	}{
		{"accepted", map[string]any{"isHearingReport": true, "confidence": 0.85, "reason": "renvoi mentionné"}, true, 0.85},
		{"at threshold", map[string]any{"isHearingReport": true, "confidence": 0.6}, true, 0.6},
		{"low confidence", map[string]any{"isHearingReport": true, "confidence": 0.5}, false, 0.5},
		{"negative", map[string]any{"isHearingReport": false, "confidence": 0.9}, false, 0.9},
		{"string fields", map[string]any{"isHearingReport": "true", "confidence": "0.7"}, true, 0.7},
		{"missing confidence", map[string]any{"isHearingReport": true}, false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &mock.Generator{Script: []mock.Reply{mock.Object(tt.obj)}}
			got := NewClassifier(gen, Config{}, testMetrics(t)).Classify(context.Background(), informalReport)
			if got.IsReport != tt.wantReport || got.Confidence != tt.wantConf {
				t.Errorf("Classify = {%v, %v}, want {%v, %v}", got.IsReport, got.Confidence, tt.wantReport, tt.wantConf)
			}
			if got.Source != types.SourceAI {
				t.Errorf("Source = %q, want %q", got.Source, types.SourceAI)
			}
			req := gen.LastRequest()
			if req.MaxTokens != 256 {
				t.Errorf("MaxTokens = %d, want 256", req.MaxTokens)
			}
			if !strings.Contains(req.User, informalReport) {
				t.Errorf("User prompt does not quote the message: %q", req.User)
			}
		})
	}
}

func TestClassify_ConfigurableThreshold(t *testing.T) {
	gen := &mock.Generator{Result: mock.Object(map[string]any{"isHearingReport": true, "confidence": 0.7}).Result}
	c := NewClassifier(gen, Config{AcceptConfidence: floatPtr(0.8)}, testMetrics(t))
	if got := c.Classify(context.Background(), informalReport); got.IsReport {
		t.Error("IsReport = true below a 0.8 threshold")
	}
}

func TestClassify_ZeroThresholdAcceptsAnyPositive(t *testing.T) {
	gen := &mock.Generator{Result: mock.Object(map[string]any{"isHearingReport": true, "confidence": 0.1}).Result}
	c := NewClassifier(gen, Config{AcceptConfidence: floatPtr(0)}, testMetrics(t))
	if got := c.Classify(context.Background(), informalReport); !got.IsReport {
		t.Error("IsReport = false with a zero threshold")
	}
	if got := *(Config{}).withDefaults().AcceptConfidence; got != 0.6 {
		t.Errorf("default AcceptConfidence = %v, want 0.6", got)
	}
}

func TestClassify_FallsBackToKeywords(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		text     string
		want     bool
		wantConf float64
	}{
		{"no credential", llmerr.New(llmerr.CredentialMissing, "openai", "clé absente"), informalReport, true, 0.6},
		{"no credential, chatter", llmerr.New(llmerr.CredentialMissing, "openai", "clé absente"), "On se retrouve demain au cabinet pour le déjeuner ?", false, 0.6},
		{"provider down", llmerr.New(llmerr.GenerationFailed, "openai", "503"), informalReport, true, 0.5},
		{"unparseable", llmerr.New(llmerr.ParseError, "openai", "pas de JSON"), informalReport, true, 0.5},
		{"plain error", errors.New("boom"), informalReport, true, 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &mock.Generator{Err: tt.err}
			got := NewClassifier(gen, Config{}, testMetrics(t)).Classify(context.Background(), tt.text)
			if got.IsReport != tt.want || got.Confidence != tt.wantConf {
				t.Errorf("Classify = {%v, %v}, want {%v, %v}", got.IsReport, got.Confidence, tt.want, tt.wantConf)
			}
			if got.Source != types.SourceKeywords {
				t.Errorf("Source = %q, want %q", got.Source, types.SourceKeywords)
			}
		})
	}
}

func TestClassify_Deterministic(t *testing.T) {
	gen := &mock.Generator{Err: llmerr.New(llmerr.Timeout, "openai", "délai")}
	c := NewClassifier(gen, Config{}, nil)
	first := c.Classify(context.Background(), informalReport)
	for range 3 {
		if got := c.Classify(context.Background(), informalReport); got != first {
			t.Fatalf("Classify = %+v, want %+v", got, first)
		}
	}
}
