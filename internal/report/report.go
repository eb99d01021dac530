// Package report synthesizes a structured consultation report from a
// transcript.
//
// The prompt depends on the length tier (brief, standard, detailed), which
// also selects the token budget. Every field of the model's reply is coerced
// so that a report never carries a nil slice or a missing title.
package report

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/MrWong99/greffier/internal/extract"
	"github.com/MrWong99/greffier/internal/gateway"
	"github.com/MrWong99/greffier/pkg/llmerr"
	"github.com/MrWong99/greffier/pkg/types"
)

// DefaultClient names the client when the caller gives none.
const DefaultClient = "Client non spécifié"

// Config holds the token budgets and the minimum transcript length.
type Config struct {
	BriefTokens    int
	StandardTokens int
	DetailedTokens int

	// MinChars is the shortest trimmed transcript accepted.
	MinChars int
}

// DefaultConfig returns the production budgets.
func DefaultConfig() Config {
	return Config{
		BriefTokens:    4096,
		StandardTokens: 8192,
		DetailedTokens: 8192,
		MinChars:       20,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.BriefTokens <= 0 {
		c.BriefTokens = d.BriefTokens
	}
	if c.StandardTokens <= 0 {
		c.StandardTokens = d.StandardTokens
	}
	if c.DetailedTokens <= 0 {
		c.DetailedTokens = d.DetailedTokens
	}
	if c.MinChars <= 0 {
		c.MinChars = d.MinChars
	}
	return c
}

// Tokens returns the budget for format.
func (c Config) Tokens(format types.ReportFormat) int {
	switch format {
	case types.FormatBrief:
		return c.BriefTokens
	case types.FormatDetailed:
		return c.DetailedTokens
	default:
		return c.StandardTokens
	}
}

// Request describes the report to produce.
type Request struct {
	Transcript    string `json:"transcript"`
	ClientName    string `json:"clientName"`
	CaseReference string `json:"caseReference"`

	// Format is brief, standard or detailed; anything else means standard.
	Format string `json:"format"`

	// Language "en" produces an English report; anything else French.
	Language string `json:"language"`
}

// Synthesizer is safe for concurrent use.
type Synthesizer struct {
	gen gateway.Generator
	cfg Config
	now func() time.Time
}

// Option configures a [Synthesizer].
type Option func(*Synthesizer)

// WithConfig replaces the budgets.
func WithConfig(c Config) Option {
	return func(s *Synthesizer) { s.cfg = c }
}

// WithClock replaces time.Now for the report date and generation time.
func WithClock(now func() time.Time) Option {
	return func(s *Synthesizer) { s.now = now }
}

// New creates a [Synthesizer] that generates through gen.
func New(gen gateway.Generator, opts ...Option) *Synthesizer {
	s := &Synthesizer{gen: gen, cfg: DefaultConfig(), now: time.Now}
	for _, o := range opts {
		o(s)
	}
	s.cfg = s.cfg.withDefaults()
	return s
}

// Synthesize produces a report for req. Every failure is an *llmerr.Error.
func (s *Synthesizer) Synthesize(ctx context.Context, req Request) (*types.Report, error) {
	if len([]rune(strings.TrimSpace(req.Transcript))) < s.cfg.MinChars {
		return nil, llmerr.Newf(llmerr.GenerationFailed, "",
			"Transcription trop courte pour générer un rapport (minimum %d caractères).", s.cfg.MinChars)
	}

	client := strings.TrimSpace(req.ClientName)
	if client == "" {
		client = DefaultClient
	}
	format := types.ParseReportFormat(req.Format)
	now := s.now()

	sys, user := BuildPrompt(client, strings.TrimSpace(req.CaseReference), req.Language, format, req.Transcript, now)
	res, err := s.gen.Generate(ctx, gateway.Request{System: sys, User: user, MaxTokens: s.cfg.Tokens(format)})
	if err != nil {
		return nil, err
	}

	obj := res.Object
	r := &types.Report{
		Title:       extract.String(obj, "title", "Rapport de consultation — "+client),
		Summary:     extract.String(obj, "summary", ""),
		KeyPoints:   extract.Strings(obj, "keyPoints"),
		ActionItems: extract.Strings(obj, "actionItems"),
		LegalNotes:  extract.String(obj, "legalNotes", ""),
		Metadata: types.ReportMetadata{
			Provider:    res.Provider,
			Format:      format,
			GeneratedAt: now.UTC(),
			InputLength: len([]rune(req.Transcript)),
		},
	}

	if n := len([]rune(r.Summary)); n < 50 && format != types.FormatBrief {
		slog.Warn("report: summary unusually short", "len", n, "format", format)
	}
	if len(r.KeyPoints) == 0 {
		slog.Warn("report: no key points extracted", "format", format)
	}
	return r, nil
}
