// Package mock provides a test double for gateway.Generator.
//
// Replies are served from Script in order; once it is exhausted every call
// returns Result and Err.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/greffier/internal/gateway"
)

// Reply is one scripted outcome of Generate.
type Reply struct {
	Result *gateway.Result
	Err    error
}

// Object is shorthand for a successful Reply from provider "openai".
func Object(obj map[string]any) Reply {
	return Reply{Result: &gateway.Result{Object: obj, Provider: "openai"}}
}

// Fail is shorthand for a failed Reply.
func Fail(err error) Reply {
	return Reply{Err: err}
}

// Generator is a mock implementation of gateway.Generator.
type Generator struct {
	mu sync.Mutex

	Script []Reply
	Result *gateway.Result
	Err    error

	// Requests records every request in order.
	Requests []gateway.Request
}

// Generate records req and returns the next scripted reply.
func (g *Generator) Generate(_ context.Context, req gateway.Request) (*gateway.Result, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := len(g.Requests)
	g.Requests = append(g.Requests, req)
	if n < len(g.Script) {
		return g.Script[n].Result, g.Script[n].Err
	}
	return g.Result, g.Err
}

// Calls returns the number of Generate invocations so far.
func (g *Generator) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.Requests)
}

// LastRequest returns the most recent request, or the zero value.
func (g *Generator) LastRequest() gateway.Request {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.Requests) == 0 {
		return gateway.Request{}
	}
	return g.Requests[len(g.Requests)-1]
}

var _ gateway.Generator = (*Generator)(nil)
