package httpapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/MrWong99/greffier/internal/observe"
	"github.com/MrWong99/greffier/pkg/llmerr"
)

// Codes for failures raised by the HTTP layer itself. Core failures use the
// [llmerr.Code] values.
const (
	codeInvalidRequest   = "INVALID_REQUEST"
	codeRequestTooLarge  = "REQUEST_TOO_LARGE"
	codeNotFound         = "NOT_FOUND"
	codeMethodNotAllowed = "METHOD_NOT_ALLOWED"
	codeUnknownProvider  = "UNKNOWN_PROVIDER"
	codeCanceled         = "CANCELED"
	codeInternal         = "INTERNAL"
)

// statusClientClosed is the non-standard status logged when the caller went
// away before the answer.
const statusClientClosed = 499

type apiError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Provider  string `json:"provider,omitempty"`
	Retryable bool   `json:"retryable"`
}

type errorBody struct {
	Error apiError `json:"error"`
}

func writeError(w http.ResponseWriter, status int, e apiError) {
	writeJSON(w, status, errorBody{Error: e})
}

// writeFailure maps an error returned by the core.
func writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	if e, ok := llmerr.As(err); ok {
		if e.RetryAfter > 0 {
			w.Header().Set("Retry-After", retryAfterSeconds(e.RetryAfter.Seconds()))
		}
		writeError(w, e.Code.HTTPStatus(), apiError{
			Code:      string(e.Code),
			Message:   e.Message,
			Provider:  e.Provider,
			Retryable: e.Retryable,
		})
		return
	}
	if errors.Is(err, context.Canceled) {
		writeError(w, statusClientClosed, apiError{Code: codeCanceled, Message: "request canceled"})
		return
	}
	observe.Logger(r.Context()).Error("httpapi: unexpected failure", "path", r.URL.Path, "err", err)
	writeError(w, http.StatusInternalServerError, apiError{Code: codeInternal, Message: "request failed"})
}

// writeBodyError answers a request whose body could not be read.
func writeBodyError(w http.ResponseWriter, err error, msg string) {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		writeError(w, http.StatusRequestEntityTooLarge, apiError{Code: codeRequestTooLarge, Message: "request body too large"})
		return
	}
	writeError(w, http.StatusBadRequest, apiError{Code: codeInvalidRequest, Message: msg})
}
