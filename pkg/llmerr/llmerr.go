// Package llmerr defines the closed error taxonomy shared by every provider
// binding and every caller of the orchestration layer.
//
// An [Error] is built once through [New] and never mutated afterwards. The
// Retryable flag, fixed by whoever raises the error, is the only thing the
// retry engine consults; the [Code] drives user-facing messaging and HTTP
// status mapping.
package llmerr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Code identifies the failure category of an [Error].
type Code string

const (
	CredentialMissing   Code = "CREDENTIAL_MISSING"
	CredentialInvalid   Code = "CREDENTIAL_INVALID"
	RateLimited         Code = "RATE_LIMITED"
	Timeout             Code = "TIMEOUT"
	InvalidResponse     Code = "INVALID_RESPONSE"
	ParseError          Code = "PARSE_ERROR"
	TranscriptionFailed Code = "TRANSCRIPTION_FAILED"
	GenerationFailed    Code = "GENERATION_FAILED"
	ContentFiltered     Code = "CONTENT_FILTERED"
	OutputTooLarge      Code = "OUTPUT_TOO_LARGE"
	InputTooShort       Code = "INPUT_TOO_SHORT"
)

var allCodes = []Code{
	CredentialMissing, CredentialInvalid, RateLimited, Timeout, InvalidResponse,
	ParseError, TranscriptionFailed, GenerationFailed, ContentFiltered,
	OutputTooLarge, InputTooShort,
}

// IsValid reports whether c is one of the known codes.
func (c Code) IsValid() bool {
	for _, k := range allCodes {
		if c == k {
			return true
		}
	}
	return false
}

// DefaultRetryable is the retryability a code gets when the raiser does not
// say otherwise.
func (c Code) DefaultRetryable() bool {
	switch c {
	case RateLimited, Timeout, InvalidResponse, ParseError:
		return true
	default:
		return false
	}
}

// HTTPStatus maps the code to the status the HTTP surface answers with.
func (c Code) HTTPStatus() int {
	switch c {
	case CredentialMissing:
		return http.StatusServiceUnavailable
	case CredentialInvalid:
		return http.StatusBadGateway
	case RateLimited:
		return http.StatusTooManyRequests
	case Timeout:
		return http.StatusGatewayTimeout
	case InvalidResponse, ParseError, GenerationFailed, TranscriptionFailed:
		return http.StatusBadGateway
	case ContentFiltered:
		return http.StatusUnprocessableEntity
	case OutputTooLarge:
		return http.StatusRequestEntityTooLarge
	case InputTooShort:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Error is the typed failure raised by the orchestration layer.
type Error struct {
	Code     Code
	Message  string
	Provider string

	// Retryable tells the retry engine whether another attempt may succeed.
	Retryable bool

	// StatusCode is the upstream HTTP status, 0 when there was none.
	StatusCode int

	// RetryAfter is the minimum wait the upstream asked for, 0 when absent.
	RetryAfter time.Duration

	// Context carries diagnostic details such as payload sizes or previews.
	Context map[string]any

	Cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	if e.Provider != "" {
		b.WriteString(e.Provider)
		b.WriteString(": ")
	}
	b.WriteString(string(e.Code))
	b.WriteString(": ")
	b.WriteString(e.Message)
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Cause }

// Option customises an [Error] at construction time.
type Option func(*Error)

// WithCause attaches the underlying error.
func WithCause(err error) Option {
	return func(e *Error) { e.Cause = err }
}

// WithRetryable overrides the code's default retryability.
func WithRetryable(retryable bool) Option {
	return func(e *Error) { e.Retryable = retryable }
}

// WithStatus records the upstream HTTP status.
func WithStatus(status int) Option {
	return func(e *Error) { e.StatusCode = status }
}

// WithRetryAfter records a server-provided minimum wait.
func WithRetryAfter(d time.Duration) Option {
	return func(e *Error) { e.RetryAfter = d }
}

// WithContext adds a diagnostic key/value pair.
func WithContext(key string, value any) Option {
	return func(e *Error) {
		if e.Context == nil {
			e.Context = make(map[string]any)
		}
		e.Context[key] = value
	}
}

// New builds an [Error]. Retryability starts at [Code.DefaultRetryable].
func New(code Code, provider, message string, opts ...Option) *Error {
	e := &Error{
		Code:      code,
		Message:   message,
		Provider:  provider,
		Retryable: code.DefaultRetryable(),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Newf is [New] with a formatted message and no options.
func Newf(code Code, provider, format string, args ...any) *Error {
	return New(code, provider, fmt.Sprintf(format, args...))
}

// As returns the first [*Error] in err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// CodeOf returns the code of the first [*Error] in err's chain, or "".
func CodeOf(err error) Code {
	if e, ok := As(err); ok {
		return e.Code
	}
	return ""
}

// IsRetryable reports the Retryable flag of the first [*Error] in err's chain.
func IsRetryable(err error) bool {
	if e, ok := As(err); ok {
		return e.Retryable
	}
	return false
}

// TransientStatus reports whether an upstream HTTP status is worth retrying.
// Anthropic's 529 "overloaded" is transient for that provider only.
func TransientStatus(provider string, status int) bool {
	switch status {
	case http.StatusRequestTimeout, http.StatusTooManyRequests,
		http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	case 529:
		return provider == "anthropic"
	}
	return false
}

var transientFragments = []string{
	"timeout",
	"econnreset",
	"connection reset",
	"socket hang up",
	"fetch failed",
	"unexpected eof",
}

// TransientMessage reports whether an error message looks like a network
// hiccup rather than a definitive refusal.
func TransientMessage(msg string) bool {
	lower := strings.ToLower(msg)
	for _, f := range transientFragments {
		if strings.Contains(lower, f) {
			return true
		}
	}
	return false
}

// SDK errors render as `POST "https://…": 429 Too Many Requests {...}`.
var statusInMessage = regexp.MustCompile(`(?:^|[":\s])([45]\d{2}) [A-Z][A-Za-z]`)

// StatusFromMessage recovers an HTTP status embedded in an error string.
// It returns 0 when none is found.
func StatusFromMessage(msg string) int {
	m := statusInMessage.FindStringSubmatch(msg)
	if m == nil {
		return 0
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return n
}

// FromStatus maps an upstream HTTP failure onto the taxonomy. Statuses with
// no dedicated code fall back to the given code (GENERATION_FAILED or
// TRANSCRIPTION_FAILED), retryable when the status is transient.
func FromStatus(provider string, fallback Code, status int, message string, cause error, retryAfter time.Duration) *Error {
	opts := []Option{WithStatus(status), WithCause(cause)}
	if retryAfter > 0 {
		opts = append(opts, WithRetryAfter(retryAfter))
	}
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return New(CredentialInvalid, provider, message, opts...)
	case status == http.StatusTooManyRequests:
		return New(RateLimited, provider, message, opts...)
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return New(Timeout, provider, message, opts...)
	case status == http.StatusRequestEntityTooLarge:
		return New(OutputTooLarge, provider, message, opts...)
	default:
		return New(fallback, provider, message, append(opts, WithRetryable(TransientStatus(provider, status)))...)
	}
}

// Normalize turns an arbitrary SDK or transport error into an [*Error].
// status and retryAfter come from the SDK's structured error when the caller
// could extract them; otherwise the status is recovered from the message.
// Errors already in the taxonomy pass through unchanged.
func Normalize(provider string, fallback Code, err error, status int, retryAfter time.Duration) error {
	if err == nil {
		return nil
	}
	if _, ok := As(err); ok {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return New(fallback, provider, "requête annulée", WithCause(err), WithRetryable(false))
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return New(Timeout, provider, "délai d'attente dépassé", WithCause(err))
	}
	if status == 0 {
		status = StatusFromMessage(err.Error())
	}
	if status != 0 {
		return FromStatus(provider, fallback, status, fmt.Sprintf("le fournisseur a répondu %d", status), err, retryAfter)
	}
	if TransientMessage(err.Error()) {
		code := fallback
		if strings.Contains(strings.ToLower(err.Error()), "timeout") {
			code = Timeout
		}
		return New(code, provider, "erreur réseau transitoire", WithCause(err), WithRetryable(true))
	}
	return New(fallback, provider, "appel au fournisseur échoué", WithCause(err))
}

// ParseRetryAfter interprets a Retry-After header value given in seconds.
// HTTP-date values and garbage yield 0.
func ParseRetryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	secs, err := strconv.ParseFloat(v, 64)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs * float64(time.Second))
}
