package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/greffier/pkg/llmerr"
)

func TestProviderFault(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"canceled", context.Canceled, false},
		{"credential invalid", llmerr.New(llmerr.CredentialInvalid, "openai", "x"), false},
		{"content filtered", llmerr.New(llmerr.ContentFiltered, "openai", "x"), false},
		{"rate limited", llmerr.New(llmerr.RateLimited, "openai", "x"), true},
		{"timeout", llmerr.New(llmerr.Timeout, "openai", "x"), true},
		{"generation failed", llmerr.New(llmerr.GenerationFailed, "anthropic", "x"), true},
		{"plain", errors.New("boom"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ProviderFault(tt.err); got != tt.want {
				t.Errorf("ProviderFault() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRegistry_GetIsStable(t *testing.T) {
	r := NewRegistry(CircuitBreakerConfig{MaxFailures: 1})
	a := r.Get("openai")
	if a != r.Get("openai") {
		t.Error("Get returned different breakers for the same name")
	}
	if a == r.Get("anthropic") {
		t.Error("Get returned the same breaker for different names")
	}
	if a.Name() != "openai" {
		t.Errorf("Name() = %q, want openai", a.Name())
	}
}

func TestRegistry_States(t *testing.T) {
	r := NewRegistry(CircuitBreakerConfig{MaxFailures: 1})
	_ = r.Get("whisper").Execute(func() error { return llmerr.New(llmerr.Timeout, "whisper", "x") })
	_ = r.Get("openai").Execute(func() error { return llmerr.New(llmerr.CredentialInvalid, "openai", "x") })

	got := r.States()
	want := []BreakerState{{"openai", "closed"}, {"whisper", "open"}}
	if len(got) != len(want) {
		t.Fatalf("States() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("States()[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}
