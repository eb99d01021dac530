// Package stt defines the Provider interface for batch speech-to-text
// backends.
//
// A provider receives a complete audio recording and returns the transcript
// with per-segment timing. Bindings normalise SDK failures into llmerr
// values, using TRANSCRIPTION_FAILED as the catch-all code.
//
// Implementations must be safe for concurrent use.
package stt

import "context"

// GranularitySegment asks for segment-level timestamps.
const GranularitySegment = "segment"

// Request describes one transcription call.
type Request struct {
	// Audio is the encoded recording (webm, mp3, wav, …).
	Audio []byte

	// FileName is the name announced to the provider; its extension is used
	// for format detection.
	FileName string

	// Language is an ISO-639-1 code ("fr", "en"). Empty lets the provider
	// auto-detect.
	Language string

	// Prompt is a vocabulary hint that biases recognition towards domain
	// terms.
	Prompt string

	// Granularities lists the timestamp granularities to request.
	Granularities []string
}

// Segment is a timed chunk of the transcript as reported by the provider.
type Segment struct {
	Start float64
	End   float64
	Text  string

	// AvgLogprob is the mean token log-probability, nil when the provider does
	// not report it.
	AvgLogprob *float64
}

// Result is the raw provider output before post-processing.
type Result struct {
	Text     string
	Segments []Segment

	// Duration in seconds as reported by the provider, 0 when unknown.
	Duration float64
}

// Provider is the abstraction over any batch STT backend.
type Provider interface {
	// Name returns the provider label used in errors and logs.
	Name() string

	// Transcribe sends the recording and waits for the full transcript.
	Transcribe(ctx context.Context, req Request) (*Result, error)
}
