// Package inbound recognises hearing reports posted by lawyers in the firm's
// messaging group and turns them into structured [types.HearingReport]
// records.
//
// Recognition runs in two steps. A [Classifier] decides whether a message is
// a hearing report at all, then a [Parser] chain extracts the fields. Both
// steps prefer the generation gateway and fall back to deterministic
// heuristics when it is unavailable, so a message is never lost to a
// provider outage.
package inbound

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/MrWong99/greffier/internal/extract"
	"github.com/MrWong99/greffier/internal/gateway"
	"github.com/MrWong99/greffier/internal/observe"
	"github.com/MrWong99/greffier/pkg/llmerr"
	"github.com/MrWong99/greffier/pkg/types"
)

// Config tunes classification and parsing.
type Config struct {
	// MinChars is the shortest message worth looking at.
	MinChars int

	// AcceptConfidence is the lowest model confidence for which a positive
	// verdict is accepted. Nil takes the default.
	AcceptConfidence *float64

	ClassifyTokens int
	ParseTokens    int
}

func floatPtr(f float64) *float64 { return &f }

// DefaultConfig returns the production settings.
func DefaultConfig() Config {
	return Config{
		MinChars:         20,
		AcceptConfidence: floatPtr(0.6),
		ClassifyTokens:   256,
		ParseTokens:      2048,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MinChars <= 0 {
		c.MinChars = d.MinChars
	}
	if c.AcceptConfidence == nil {
		c.AcceptConfidence = d.AcceptConfidence
	}
	if c.ClassifyTokens <= 0 {
		c.ClassifyTokens = d.ClassifyTokens
	}
	if c.ParseTokens <= 0 {
		c.ParseTokens = d.ParseTokens
	}
	return c
}

// Confidence assigned to the deterministic verdicts.
const (
	shortConfidence        = 1.0
	greetingConfidence     = 0.95
	noCredentialConfidence = 0.6
	fallbackConfidence     = 0.5
)

// greetingMaxChars bounds the messages the greeting prefilter looks at.
const greetingMaxChars = 30

var greetings = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^(?:bonjour|bonsoir|salut|merci|ok|d['’]accord|👍|🙏)\s*$`),
	regexp.MustCompile(`(?i)^(?:joyeux|bon|bonne|félicitations)`),
}

const detectionSystem = `Vous êtes un assistant juridique du Cabinet HOK (Cotonou, Bénin). Votre SEULE tâche est de déterminer si un message WhatsApp contient un compte rendu d'audience ou des informations relatives à un rôle d'audience.

Un message est un compte rendu d'audience s'il mentionne AU MOINS deux des éléments suivants :
- Une audience qui a eu lieu (date passée ou récente)
- Un tribunal, une juridiction, un juge
- Un dossier, une affaire, un client
- Un résultat d'audience (renvoi, jugement, expertise, mise en état, radiation, jonction...)
- Une prochaine date d'audience
- Des tâches à accomplir suite à l'audience

IMPORTANT : Les avocats écrivent souvent de manière INFORMELLE dans le groupe.
Exemples de messages qui SONT des comptes rendus :
- "Bonsoir confrères, audience ce matin au TPI, dossier Dupont c/ SCI Immo, renvoyé au 25 mars, il faut préparer les conclusions"
- "CR audience: Affaire RG 2026/456 devant la 2ème chambre. Expertise ordonnée. Prochain rdv 15 avril"
- "Chers collègues l'affaire konan contre la banque a été appelée aujourd'hui. Le juge a renvoyé pour conclusions au 3 mars"

Messages qui NE SONT PAS des comptes rendus :
- "Bonsoir, on se retrouve demain au cabinet ?"
- "Joyeux anniversaire Maître !"
- "Le nouveau stagiaire commence lundi"

Répondez UNIQUEMENT par un JSON :
{ "isHearingReport": true/false, "confidence": 0.0-1.0, "reason": "explication courte" }`

// Classifier decides whether a message is a hearing report. It is safe for
// concurrent use.
type Classifier struct {
	gen     gateway.Generator
	cfg     Config
	metrics *observe.Metrics
}

// NewClassifier creates a [Classifier]. A nil metrics uses
// [observe.DefaultMetrics].
func NewClassifier(gen gateway.Generator, cfg Config, metrics *observe.Metrics) *Classifier {
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &Classifier{gen: gen, cfg: cfg.withDefaults(), metrics: metrics}
}

// Classify never fails: when the gateway cannot answer, the verdict comes
// from [IsReportLikeKeywords].
func (c *Classifier) Classify(ctx context.Context, text string) types.Classification {
	v := c.classify(ctx, text)
	c.metrics.RecordClassification(ctx, v.Source, v.IsReport)
	return v
}

func (c *Classifier) classify(ctx context.Context, text string) types.Classification {
	n := utf8.RuneCountInString(text)
	if n < c.cfg.MinChars {
		return types.Classification{Confidence: shortConfidence, Reason: "message trop court", Source: types.SourcePrefilter}
	}
	if n < greetingMaxChars && isGreeting(strings.TrimSpace(text)) {
		return types.Classification{Confidence: greetingConfidence, Reason: "formule de politesse", Source: types.SourcePrefilter}
	}

	res, err := c.gen.Generate(ctx, gateway.Request{
		System:    detectionSystem,
		User:      "Message WhatsApp :\n\"\"\"" + text + "\"\"\"",
		MaxTokens: c.cfg.ClassifyTokens,
	})
	if err != nil {
		conf := fallbackConfidence
		if llmerr.CodeOf(err) == llmerr.CredentialMissing {
			conf = noCredentialConfidence
		} else {
			observe.Logger(ctx).Warn("inbound: classification failed, using keywords", "err", err)
		}
		return types.Classification{
			IsReport:   IsReportLikeKeywords(text),
			Confidence: conf,
			Reason:     "détection par mots-clés",
			Source:     types.SourceKeywords,
		}
	}

	conf := extract.Float(res.Object, "confidence", 0)
	v := types.Classification{
		IsReport:   extract.Bool(res.Object, "isHearingReport") && conf >= *c.cfg.AcceptConfidence,
		Confidence: conf,
		Reason:     extract.String(res.Object, "reason", ""),
		Source:     types.SourceAI,
	}
	slog.Debug("inbound: classified", "is_report", v.IsReport, "confidence", v.Confidence, "provider", res.Provider)
	return v
}

func isGreeting(s string) bool {
	for _, re := range greetings {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}
