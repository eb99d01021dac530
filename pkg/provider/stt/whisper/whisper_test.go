package whisper

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/MrWong99/greffier/pkg/llmerr"
	"github.com/MrWong99/greffier/pkg/provider/stt"
)

const verboseBody = `{
  "task": "transcribe",
  "language": "french",
  "duration": 9.5,
  "text": " Bonjour maître, je viens pour le dossier.",
  "segments": [
    {"id": 0, "start": 0.0, "end": 4.2, "text": " Bonjour maître,", "avg_logprob": -0.2},
    {"id": 1, "start": 4.2, "end": 8.9, "text": " je viens pour le dossier.", "avg_logprob": -0.4}
  ]
}`

type captured struct {
	path     string
	model    string
	language string
	prompt   string
	format   string
	fileName string
	fileLen  int
}

func newTestProvider(t *testing.T, status int, body string, got *captured) *Provider {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got != nil {
			got.path = r.URL.Path
			if err := r.ParseMultipartForm(1 << 20); err == nil {
				got.model = r.FormValue("model")
				got.language = r.FormValue("language")
				got.prompt = r.FormValue("prompt")
				got.format = r.FormValue("response_format")
				if f, h, err := r.FormFile("file"); err == nil {
					got.fileName = h.Filename
					b, _ := io.ReadAll(f)
					got.fileLen = len(b)
				}
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	p, err := New("sk-test", WithBaseURL(srv.URL+"/v1/"), WithTimeout(5*time.Second))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

func TestNew_EmptyKey(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Fatal("expected error for empty key")
	}
}

func TestTranscribe_VerboseJSON(t *testing.T) {
	var got captured
	p := newTestProvider(t, http.StatusOK, verboseBody, &got)

	audio := make([]byte, 2048)
	res, err := p.Transcribe(context.Background(), stt.Request{
		Audio:         audio,
		Language:      "fr",
		Prompt:        "Transcription juridique",
		Granularities: []string{stt.GranularitySegment},
	})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}

	if res.Duration != 9.5 {
		t.Errorf("Duration = %v, want 9.5", res.Duration)
	}
	if len(res.Segments) != 2 {
		t.Fatalf("Segments = %d, want 2", len(res.Segments))
	}
	if res.Segments[1].End != 8.9 {
		t.Errorf("Segments[1].End = %v, want 8.9", res.Segments[1].End)
	}
	if res.Segments[0].AvgLogprob == nil || *res.Segments[0].AvgLogprob != -0.2 {
		t.Errorf("Segments[0].AvgLogprob = %v, want -0.2", res.Segments[0].AvgLogprob)
	}

	if got.model != DefaultModel {
		t.Errorf("model = %q, want %q", got.model, DefaultModel)
	}
	if got.language != "fr" {
		t.Errorf("language = %q, want fr", got.language)
	}
	if got.format != "verbose_json" {
		t.Errorf("response_format = %q, want verbose_json", got.format)
	}
	if got.fileName != "audio.webm" {
		t.Errorf("file name = %q, want audio.webm", got.fileName)
	}
	if got.fileLen != len(audio) {
		t.Errorf("file length = %d, want %d", got.fileLen, len(audio))
	}
}

func TestTranscribe_MissingLogprob(t *testing.T) {
	body := `{"text":"ok","duration":1.0,"segments":[{"start":0,"end":1,"text":"ok"}]}`
	p := newTestProvider(t, http.StatusOK, body, nil)
	res, err := p.Transcribe(context.Background(), stt.Request{Audio: make([]byte, 1024)})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if res.Segments[0].AvgLogprob != nil {
		t.Errorf("AvgLogprob = %v, want nil", *res.Segments[0].AvgLogprob)
	}
}

func TestTranscribe_Errors(t *testing.T) {
	tests := []struct {
		status    int
		wantCode  llmerr.Code
		wantRetry bool
	}{
		{http.StatusUnauthorized, llmerr.CredentialInvalid, false},
		{http.StatusTooManyRequests, llmerr.RateLimited, true},
		{http.StatusBadGateway, llmerr.TranscriptionFailed, true},
		{http.StatusBadRequest, llmerr.TranscriptionFailed, false},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			p := newTestProvider(t, tt.status, `{"error":{"message":"x"}}`, nil)
			_, err := p.Transcribe(context.Background(), stt.Request{Audio: make([]byte, 1024)})
			e, ok := llmerr.As(err)
			if !ok {
				t.Fatalf("err = %v, want *llmerr.Error", err)
			}
			if e.Code != tt.wantCode || e.Retryable != tt.wantRetry {
				t.Errorf("got {%s, %v}, want {%s, %v}", e.Code, e.Retryable, tt.wantCode, tt.wantRetry)
			}
			if e.Provider != Name {
				t.Errorf("Provider = %q, want %q", e.Provider, Name)
			}
		})
	}
}

func TestContentType(t *testing.T) {
	tests := map[string]string{
		"audio.webm": "audio/webm",
		"A.MP3":      "audio/mpeg",
		"memo.m4a":   "audio/mp4",
		"x.wav":      "audio/wav",
		"noext":      "application/octet-stream",
	}
	for in, want := range tests {
		if got := contentType(in); got != want {
			t.Errorf("contentType(%q) = %q, want %q", in, got, want)
		}
	}
}
