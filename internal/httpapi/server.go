// Package httpapi exposes the orchestration core over HTTP.
//
// Every handler answers JSON. Successful calls return the validated result
// as the body; failures return {"error": {code, message, provider, retryable}}
// with the status given by [llmerr.Code.HTTPStatus].
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/MrWong99/greffier/internal/health"
	"github.com/MrWong99/greffier/internal/inbound"
	"github.com/MrWong99/greffier/internal/keycheck"
	"github.com/MrWong99/greffier/internal/observe"
	"github.com/MrWong99/greffier/internal/ratelimit"
	"github.com/MrWong99/greffier/internal/report"
	"github.com/MrWong99/greffier/pkg/types"
)

// Transcriber turns an audio recording into a transcript.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, language string) (*types.Transcription, error)
}

// Synthesizer produces consultation reports.
type Synthesizer interface {
	Synthesize(ctx context.Context, req report.Request) (*types.Report, error)
}

// MetadataExtractor derives session metadata from a short transcript.
type MetadataExtractor interface {
	Extract(ctx context.Context, transcript string) (*types.SessionMetadata, error)
}

// InboundHandler classifies and parses messaging-channel messages.
type InboundHandler interface {
	Handle(ctx context.Context, msg inbound.Message) *inbound.Outcome
}

// KeyChecker tests provider keys and reports engine status.
type KeyChecker interface {
	Test(ctx context.Context, provider string) (keycheck.Result, error)
	Status(ctx context.Context) keycheck.Status
}

// Dependencies are the collaborators of the server. Health, Limiter, Metrics
// and MetricsHandler are optional.
type Dependencies struct {
	Transcriber Transcriber
	Reports     Synthesizer
	Metadata    MetadataExtractor
	Inbound     InboundHandler
	Keys        KeyChecker

	Health         *health.Handler
	Limiter        *ratelimit.Limiter
	Metrics        *observe.Metrics
	MetricsHandler http.Handler

	// MaxUploadBytes bounds a transcription request body. Default 26 MB.
	MaxUploadBytes int64
}

const (
	defaultMaxUpload = 26 << 20
	maxJSONBodyBytes = 1 << 20
	multipartMemory  = 8 << 20
)

type server struct {
	deps Dependencies
}

// NewServer builds the router. It panics when a core dependency is missing.
func NewServer(deps Dependencies) http.Handler {
	if deps.Transcriber == nil || deps.Reports == nil || deps.Metadata == nil || deps.Inbound == nil || deps.Keys == nil {
		panic("httpapi: transcriber, reports, metadata, inbound and keys are required")
	}
	if deps.Metrics == nil {
		deps.Metrics = observe.DefaultMetrics()
	}
	if deps.MaxUploadBytes <= 0 {
		deps.MaxUploadBytes = defaultMaxUpload
	}
	s := &server{deps: deps}

	r := chi.NewRouter()
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, apiError{Code: codeNotFound, Message: "route not found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, apiError{Code: codeMethodNotAllowed, Message: "method not allowed"})
	})

	r.Use(chimw.RequestID)
	r.Use(requestID)
	r.Use(observe.Middleware(deps.Metrics))
	r.Use(chimw.Recoverer)

	if deps.Health != nil {
		deps.Health.Register(r)
	}
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Get("/engine/status", s.handleStatus)
		r.Post("/engine/keys/{provider}/test", s.handleKeyTest)
		r.With(s.rateLimit("transcriptions")).Post("/transcriptions", s.handleTranscription)
		r.Post("/reports", s.handleReport)
		r.Post("/metadata", s.handleMetadata)
		r.With(s.rateLimit("inbound")).Post("/inbound/messages", s.handleInbound)
	})
	return r
}

func (s *server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Keys.Status(r.Context()))
}

func (s *server) handleKeyTest(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.Keys.Test(r.Context(), chi.URLParam(r, "provider"))
	if errors.Is(err, keycheck.ErrUnknownProvider) {
		writeError(w, http.StatusNotFound, apiError{Code: codeUnknownProvider, Message: "Fournisseur inconnu.", Provider: chi.URLParam(r, "provider")})
		return
	}
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *server) handleTranscription(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.deps.MaxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		writeBodyError(w, err, "invalid multipart form data")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, _, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, apiError{Code: codeInvalidRequest, Message: "multipart field 'file' is required"})
		return
	}
	defer func() { _ = file.Close() }()

	audio, err := io.ReadAll(file)
	if err != nil {
		writeBodyError(w, err, "could not read the audio file")
		return
	}

	res, err := s.deps.Transcriber.Transcribe(r.Context(), audio, strings.TrimSpace(r.FormValue("language")))
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *server) handleReport(w http.ResponseWriter, r *http.Request) {
	var req report.Request
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := s.deps.Reports.Synthesize(r.Context(), req)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type metadataRequest struct {
	Transcript string `json:"transcript"`
}

func (s *server) handleMetadata(w http.ResponseWriter, r *http.Request) {
	var req metadataRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := s.deps.Metadata.Extract(r.Context(), req.Transcript)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *server) handleInbound(w http.ResponseWriter, r *http.Request) {
	var msg inbound.Message
	if !decodeJSON(w, r, &msg) {
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Inbound.Handle(r.Context(), msg))
}

// decodeJSON reads a single JSON object into v, answering 400 or 413 itself
// when that fails.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
	defer func() { _ = r.Body.Close() }()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeBodyError(w, err, "invalid JSON body")
		return false
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, apiError{Code: codeInvalidRequest, Message: "body must contain a single JSON object"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
