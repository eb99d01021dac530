// Package whisper provides an STT provider backed by the OpenAI Whisper
// transcription endpoint.
//
// Recordings are uploaded in one piece and transcribed with verbose JSON
// output so that segment timings and average log-probabilities are available
// for confidence scoring.
//
// Usage:
//
//	p, err := whisper.New(apiKey, whisper.WithTimeout(2*time.Minute))
//	res, err := p.Transcribe(ctx, stt.Request{Audio: audio, Language: "fr"})
package whisper

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"path"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/MrWong99/greffier/pkg/llmerr"
	llmopenai "github.com/MrWong99/greffier/pkg/provider/llm/openai"
	"github.com/MrWong99/greffier/pkg/provider/stt"
)

const (
	// Name is the provider label used in errors and logs.
	Name = "whisper"

	// DefaultModel is the hosted Whisper model.
	DefaultModel = "whisper-1"

	defaultFileName = "audio.webm"
)

// Compile-time assertion that Provider implements stt.Provider.
var _ stt.Provider = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel overrides the transcription model.
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithBaseURL points the provider at an OpenAI-compatible endpoint.
func WithBaseURL(url string) Option {
	return func(p *Provider) {
		p.opts = append(p.opts, llmopenai.WithBaseURL(url))
	}
}

// WithTimeout sets the per-request HTTP timeout. Uploads of long recordings
// need a generous value.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		p.opts = append(p.opts, llmopenai.WithTimeout(d))
	}
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(p *Provider) {
		p.opts = append(p.opts, llmopenai.WithHTTPClient(hc))
	}
}

// Provider implements stt.Provider using the OpenAI audio API.
type Provider struct {
	client oai.Client
	model  string
	opts   []llmopenai.Option
}

// New creates a Provider authenticating with apiKey.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("whisper: apiKey must not be empty")
	}
	p := &Provider{model: DefaultModel}
	for _, o := range opts {
		o(p)
	}
	p.client = oai.NewClient(llmopenai.RequestOptions(apiKey, p.opts...)...)
	return p, nil
}

// Name implements stt.Provider.
func (p *Provider) Name() string { return Name }

// verboseTranscription mirrors the verbose_json response body.
type verboseTranscription struct {
	Text     string  `json:"text"`
	Language string  `json:"language"`
	Duration float64 `json:"duration"`
	Segments []struct {
		Start      float64  `json:"start"`
		End        float64  `json:"end"`
		Text       string   `json:"text"`
		AvgLogprob *float64 `json:"avg_logprob"`
	} `json:"segments"`
}

// Transcribe implements stt.Provider.
func (p *Provider) Transcribe(ctx context.Context, req stt.Request) (*stt.Result, error) {
	name := req.FileName
	if name == "" {
		name = defaultFileName
	}

	params := oai.AudioTranscriptionNewParams{
		File:           oai.File(bytes.NewReader(req.Audio), name, contentType(name)),
		Model:          oai.AudioModel(p.model),
		ResponseFormat: oai.AudioResponseFormatVerboseJSON,
	}
	if req.Language != "" {
		params.Language = oai.String(req.Language)
	}
	if req.Prompt != "" {
		params.Prompt = oai.String(req.Prompt)
	}
	if len(req.Granularities) > 0 {
		params.TimestampGranularities = req.Granularities
	}

	// The typed response only models the plain JSON shape; segments are
	// decoded from the raw body instead.
	var body verboseTranscription
	if _, err := p.client.Audio.Transcriptions.New(ctx, params, option.WithResponseBodyInto(&body)); err != nil {
		return nil, llmopenai.NormalizeError(Name, llmerr.TranscriptionFailed, err)
	}

	res := &stt.Result{
		Text:     body.Text,
		Duration: body.Duration,
		Segments: make([]stt.Segment, 0, len(body.Segments)),
	}
	for _, s := range body.Segments {
		res.Segments = append(res.Segments, stt.Segment{
			Start:      s.Start,
			End:        s.End,
			Text:       s.Text,
			AvgLogprob: s.AvgLogprob,
		})
	}
	return res, nil
}

// contentType guesses the MIME type from the file extension.
func contentType(name string) string {
	switch strings.ToLower(path.Ext(name)) {
	case ".webm":
		return "audio/webm"
	case ".mp3", ".mpga", ".mpeg":
		return "audio/mpeg"
	case ".wav":
		return "audio/wav"
	case ".m4a", ".mp4":
		return "audio/mp4"
	case ".ogg", ".oga":
		return "audio/ogg"
	default:
		return "application/octet-stream"
	}
}
