// Package mock provides a test double for the stt.Provider interface.
//
// Example:
//
//	p := &mock.Provider{Result: &stt.Result{Text: "bonjour"}}
//	res, err := p.Transcribe(ctx, stt.Request{Audio: audio})
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/greffier/pkg/provider/stt"
)

// TranscribeCall records a single invocation of Transcribe.
type TranscribeCall struct {
	Ctx context.Context
	Req stt.Request
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// ProviderName is returned by Name. Defaults to "mock".
	ProviderName string

	// Errs are returned one per call, front to back, before Result/Err apply.
	// A nil entry lets that call fall through to Result/Err.
	Errs []error

	// Result is returned by Transcribe. May be nil.
	Result *stt.Result

	// Err, if non-nil, is returned by Transcribe.
	Err error

	// TranscribeCalls records every invocation in order.
	TranscribeCalls []TranscribeCall
}

// Name implements stt.Provider.
func (p *Provider) Name() string {
	if p.ProviderName == "" {
		return "mock"
	}
	return p.ProviderName
}

// Transcribe records the call and returns the configured outcome.
func (p *Provider) Transcribe(ctx context.Context, req stt.Request) (*stt.Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := len(p.TranscribeCalls)
	p.TranscribeCalls = append(p.TranscribeCalls, TranscribeCall{Ctx: ctx, Req: req})
	if n < len(p.Errs) && p.Errs[n] != nil {
		return nil, p.Errs[n]
	}
	if p.Err != nil {
		return nil, p.Err
	}
	return p.Result, nil
}

// Calls returns the number of Transcribe invocations so far.
func (p *Provider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.TranscribeCalls)
}

var _ stt.Provider = (*Provider)(nil)
