// Package mock provides a test double for the llm.Provider interface.
//
// Replies are served from Script in order; once the script is exhausted every
// further call returns CompleteResponse and CompleteErr. All fields are safe to
// set before calling any method; mutating them during a concurrent call is the
// caller's responsibility.
//
// Example:
//
//	p := &mock.Provider{
//	    Script: []mock.Reply{
//	        {Response: &llm.CompletionResponse{Content: "not json"}},
//	        {Response: &llm.CompletionResponse{Content: `{"a":1}`}},
//	    },
//	}
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/greffier/pkg/provider/llm"
)

// CompleteCall records a single invocation of Complete.
type CompleteCall struct {
	Ctx context.Context
	Req llm.CompletionRequest
}

// Reply is one scripted outcome of Complete.
type Reply struct {
	Response *llm.CompletionResponse
	Err      error
}

// Text is shorthand for a successful Reply with the given content.
func Text(content string) Reply {
	return Reply{Response: &llm.CompletionResponse{Content: content, FinishReason: llm.FinishStop}}
}

// Fail is shorthand for a failed Reply.
func Fail(err error) Reply {
	return Reply{Err: err}
}

// Provider is a mock implementation of llm.Provider.
type Provider struct {
	mu sync.Mutex

	// ProviderName is returned by Name. Defaults to "mock".
	ProviderName string

	// Script is consumed front to back, one entry per Complete call.
	Script []Reply

	// CompleteResponse is returned once Script is exhausted. May be nil.
	CompleteResponse *llm.CompletionResponse

	// CompleteErr, if non-nil, is returned once Script is exhausted.
	CompleteErr error

	// CompleteCalls records every invocation of Complete in order.
	CompleteCalls []CompleteCall
}

// Name implements llm.Provider.
func (p *Provider) Name() string {
	if p.ProviderName == "" {
		return "mock"
	}
	return p.ProviderName
}

// Complete records the call and returns the next scripted reply.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := len(p.CompleteCalls)
	p.CompleteCalls = append(p.CompleteCalls, CompleteCall{Ctx: ctx, Req: req})
	if n < len(p.Script) {
		r := p.Script[n]
		return r.Response, r.Err
	}
	return p.CompleteResponse, p.CompleteErr
}

// Calls returns the number of Complete invocations so far. Thread-safe.
func (p *Provider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.CompleteCalls)
}

// LastRequest returns the most recent request, or the zero value.
func (p *Provider) LastRequest() llm.CompletionRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.CompleteCalls) == 0 {
		return llm.CompletionRequest{}
	}
	return p.CompleteCalls[len(p.CompleteCalls)-1].Req
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CompleteCalls = nil
}

// Ensure Provider implements llm.Provider at compile time.
var _ llm.Provider = (*Provider)(nil)
