// Package llm defines the Provider interface for text-generation backends.
//
// A provider wraps a remote model API (OpenAI, Anthropic, …) and exposes a
// single blocking completion call. Bindings are responsible for normalising
// SDK failures into [llmerr.Error] values before they leave the package, so
// that nothing above this layer has to know which SDK produced a failure.
//
// Binding contract:
//   - a safety-filter stop surfaces as CONTENT_FILTERED (not retryable);
//   - an empty body surfaces as INVALID_RESPONSE (retryable);
//   - a truncated reply (token limit) is returned as-is with its FinishReason
//     set, and the caller decides whether to warn.
//
// Implementors must be safe for concurrent use.
package llm

import (
	"context"
	"strings"

	"github.com/MrWong99/greffier/pkg/llmerr"
	"github.com/MrWong99/greffier/pkg/types"
)

// Finish reasons reported in [CompletionResponse.FinishReason].
const (
	FinishStop          = "stop"
	FinishLength        = "length"
	FinishContentFilter = "content_filter"
)

// Usage holds token accounting information returned by the backend.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionRequest carries everything the model needs to produce a reply.
type CompletionRequest struct {
	// SystemPrompt is sent through the provider's dedicated system channel.
	SystemPrompt string

	// Messages is the ordered conversation; usually a single user turn.
	Messages []types.Message

	// Temperature in [0.0, 2.0]. Zero leaves the provider default.
	Temperature float64

	// MaxTokens caps the completion length. Zero means provider default.
	MaxTokens int

	// JSONMode asks providers that support it to constrain output to a JSON
	// object. Providers without such a switch ignore it.
	JSONMode bool
}

// CompletionResponse is returned by Complete.
type CompletionResponse struct {
	Content string

	// FinishReason is normalised to one of the Finish* constants when the
	// backend reports something equivalent; otherwise it is passed through.
	FinishReason string

	Usage Usage
}

// Truncated reports whether generation stopped at the token limit.
func (r *CompletionResponse) Truncated() bool {
	return r != nil && r.FinishReason == FinishLength
}

// Provider is the abstraction over any text-generation backend.
type Provider interface {
	// Name returns the provider label used in errors and logs ("openai",
	// "anthropic", …).
	Name() string

	// Complete sends req and waits for the full reply. Failures are
	// *llmerr.Error values.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}

// CheckReply applies the shared binding contract to a decoded reply.
// Bindings call it after mapping their finish reason.
func CheckReply(provider string, resp *CompletionResponse) error {
	switch {
	case resp.FinishReason == FinishContentFilter:
		return llmerr.New(llmerr.ContentFiltered, provider,
			"La réponse a été bloquée par le filtre de contenu du fournisseur.")
	case strings.TrimSpace(resp.Content) == "":
		return llmerr.New(llmerr.InvalidResponse, provider, "Réponse vide du fournisseur.")
	}
	return nil
}
