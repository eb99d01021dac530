package inbound

import (
	"context"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/MrWong99/greffier/internal/extract"
	"github.com/MrWong99/greffier/internal/gateway"
	"github.com/MrWong99/greffier/internal/observe"
	"github.com/MrWong99/greffier/internal/prompt"
	"github.com/MrWong99/greffier/pkg/types"
)

// Parser extracts a hearing report from a message. A nil result means the
// parser could not find one; the message is not necessarily malformed.
type Parser interface {
	Parse(ctx context.Context, text, author string) *types.HearingReport
}

// Chain tries each parser in order and returns the first non-nil report.
type Chain []Parser

// Parse implements [Parser].
func (c Chain) Parse(ctx context.Context, text, author string) *types.HearingReport {
	for _, p := range c {
		if r := p.Parse(ctx, text, author); r != nil {
			return r
		}
	}
	return nil
}

var isoDate = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

func parsingSystem(now time.Time) string {
	return `Vous êtes un assistant juridique expert du Cabinet HOK (Cotonou, Bénin), spécialisé dans le droit béninois et OHADA.

MISSION : Analyser un message WhatsApp d'un avocat et en extraire un compte rendu d'audience PROFESSIONNEL et DÉTAILLÉ.

CONTEXTE JURIDIQUE :
• Juridictions béninoises : TPI (Tribunal de Première Instance), TGI, Cour d'Appel, Tribunal de Commerce, CRIET
• Droit OHADA : AUDCG, AUSCGIE, AUPSRVE, AUPCAP, AUA
• Le message peut être informel, avec des abréviations, du langage courant

RÈGLES D'EXTRACTION :
1. hearingDate : date de l'audience qui a eu lieu, format YYYY-MM-DD. Si pas explicite, déduire du contexte ("ce matin", "aujourd'hui" = date du jour).
2. clientName : nom complet du client, même s'il est abrégé.
3. caseReference : référence du dossier (RG, n°, numéro). null si absent.
4. jurisdiction : nom complet de la juridiction ("TPI Cotonou" et non "TPI" seul).
5. chamber : chambre concernée. null si non mentionnée.
6. opponent : partie adverse. null si non mentionnée.
7. lawyerName : avocat en charge, format "Me [Nom]". null si non mentionné.
8. outcome : RÉSUMÉ PROFESSIONNEL ET DÉTAILLÉ de l'audience, dans un style juridique formel même si le message est familier. Mentionnez la nature de la décision (renvoi, mise en état, expertise, radiation, jugement, etc.), les motifs si indiqués et les obligations imposées par le tribunal. Ce résumé doit être PUBLIABLE dans le rôle d'audience du cabinet.
9. nextHearingDate : date de la prochaine audience, format YYYY-MM-DD. null si pas de renvoi.
10. tasks : tâches à accomplir avant la prochaine audience, rédigées de manière ACTIONNELLE ("Préparer les conclusions en réplique").
11. notes : observations juridiques complémentaires, points de vigilance. null si rien de notable.

IMPORTANT :
- NE JAMAIS inventer des informations absentes du message
- Si une information est absente, mettre null (pas "Non spécifié")
- Les dates doivent être au format YYYY-MM-DD
- Aujourd'hui nous sommes le ` + prompt.LongDate(now) + `

Répondez UNIQUEMENT par un JSON valide :
{
  "hearingDate": "YYYY-MM-DD" | null,
  "clientName": "string" | null,
  "caseReference": "string" | null,
  "jurisdiction": "string" | null,
  "chamber": "string" | null,
  "opponent": "string" | null,
  "lawyerName": "string" | null,
  "outcome": "string",
  "nextHearingDate": "YYYY-MM-DD" | null,
  "tasks": ["string"],
  "notes": "string" | null
}`
}

// AIParser asks the generation gateway to structure the message. It returns
// nil when the gateway fails or when the reply names neither a client, a
// reference nor an outcome, so that a [Chain] falls through to the next
// parser.
type AIParser struct {
	gen       gateway.Generator
	minChars  int
	maxTokens int
	now       func() time.Time
}

// NewAIParser creates an [AIParser]. A nil now uses time.Now.
func NewAIParser(gen gateway.Generator, cfg Config, now func() time.Time) *AIParser {
	cfg = cfg.withDefaults()
	if now == nil {
		now = time.Now
	}
	return &AIParser{gen: gen, minChars: cfg.MinChars, maxTokens: cfg.ParseTokens, now: now}
}

// Parse implements [Parser].
func (p *AIParser) Parse(ctx context.Context, text, author string) *types.HearingReport {
	if utf8.RuneCountInString(strings.TrimSpace(text)) < p.minChars {
		return nil
	}

	var user strings.Builder
	user.WriteString("Message WhatsApp")
	if author != "" {
		user.WriteString(" de " + author)
	}
	user.WriteString(" :\n" + prompt.Quote(text) + "\n\nAnalysez ce message et extrayez le compte rendu d'audience en JSON structuré.")

	now := p.now()
	res, err := p.gen.Generate(ctx, gateway.Request{
		System:    parsingSystem(now),
		User:      user.String(),
		MaxTokens: p.maxTokens,
	})
	if err != nil {
		observe.Logger(ctx).Warn("inbound: ai parsing failed", "err", err)
		return nil
	}

	obj := res.Object
	r := &types.HearingReport{
		HearingDate:     normalizeDate(obj, "hearingDate"),
		ClientName:      extract.OptionalString(obj, "clientName"),
		CaseReference:   extract.OptionalString(obj, "caseReference"),
		Jurisdiction:    extract.OptionalString(obj, "jurisdiction"),
		Chamber:         extract.OptionalString(obj, "chamber"),
		Opponent:        extract.OptionalString(obj, "opponent"),
		AuthorName:      extract.OptionalString(obj, "lawyerName"),
		Outcome:         extract.OptionalString(obj, "outcome"),
		NextHearingDate: normalizeDate(obj, "nextHearingDate"),
		Tasks:           extract.Strings(obj, "tasks"),
		Notes:           extract.OptionalString(obj, "notes"),
	}
	if r.ClientName == nil && r.CaseReference == nil && r.Outcome == nil {
		observe.Logger(ctx).Info("inbound: ai reply has no usable field")
		return nil
	}
	if r.HearingDate == nil {
		d := now.Format(time.DateOnly)
		r.HearingDate = &d
	}
	return r
}

// normalizeDate keeps ISO dates and rewrites French ones; anything else is
// treated as absent.
func normalizeDate(obj map[string]any, key string) *string {
	s := extract.OptionalString(obj, key)
	if s == nil {
		return nil
	}
	if isoDate.MatchString(*s) {
		if _, err := time.Parse(time.DateOnly, *s); err == nil {
			return s
		}
		return nil
	}
	return optional(ParseDate(*s))
}
