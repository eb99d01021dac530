// Package metadata infers session metadata (title, client, case reference,
// category, description) from the transcript of a quick recording.
package metadata

import (
	"context"
	"slices"
	"strings"

	"github.com/MrWong99/greffier/internal/extract"
	"github.com/MrWong99/greffier/internal/gateway"
	"github.com/MrWong99/greffier/internal/prompt"
	"github.com/MrWong99/greffier/pkg/types"
)

// Defaults applied when the model leaves a field blank.
const (
	DefaultTitle  = "Session flash"
	DefaultClient = "Client non identifié"
)

const insufficient = "Transcription insuffisante pour l'extraction de métadonnées."

const system = prompt.LegalContext + `

MISSION : EXTRACTION AUTOMATIQUE DE MÉTADONNÉES DE SESSION
━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

RÈGLES D'EXTRACTION :
1. NOM DU CLIENT : Chercher "Monsieur/Madame [Nom]", "Maître [Nom]", "M./Mme [Nom]", mention directe. Si absent : "Client non identifié".
2. RÉFÉRENCE : Chercher "dossier n°...", "affaire ...", "RG n°...", tout identifiant. Si absent : null.
3. CATÉGORIE : Classifier :
   - "consultation" : entretien client, prise d'instructions, conseil
   - "hearing" : audience, plaidoirie, comparution, chambre du conseil
   - "deposition" : déposition, interrogatoire, audition de témoin
   - "meeting" : réunion interne, conférence entre confrères
   - "negotiation" : négociation, conciliation
   - "mediation" : médiation conventionnelle ou judiciaire
   - "litigation" : préparation contentieuse, stratégie procédurale
   - "general" : inclassable
4. TITRE : Professionnel, mentionnant type et sujet principal
5. DESCRIPTION : Résumé factuel de 1 à 3 phrases du contenu

CONSIGNES JSON STRICTES :
{
  "title": "string : ex. Consultation, Litige foncier parcelle de Togbin",
  "clientName": "string : nom complet ou Client non identifié",
  "caseReference": "string | null",
  "category": "string : une des catégories ci-dessus",
  "description": "string : résumé factuel concis"
}`

// Config tunes the extractor.
type Config struct {
	// MinChars is the shortest trimmed transcript worth a provider call.
	MinChars  int
	MaxTokens int
}

// DefaultConfig returns the production settings.
func DefaultConfig() Config {
	return Config{MinChars: 20, MaxTokens: 2048}
}

// Extractor is safe for concurrent use.
type Extractor struct {
	gen gateway.Generator
	cfg Config
}

// New creates an [Extractor]. Zero fields of cfg take their defaults.
func New(gen gateway.Generator, cfg Config) *Extractor {
	d := DefaultConfig()
	if cfg.MinChars <= 0 {
		cfg.MinChars = d.MinChars
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = d.MaxTokens
	}
	return &Extractor{gen: gen, cfg: cfg}
}

// Placeholder is returned for transcripts too short to analyse.
func Placeholder() *types.SessionMetadata {
	return &types.SessionMetadata{
		Title:       DefaultTitle,
		ClientName:  DefaultClient,
		Category:    types.CategoryGeneral,
		Description: insufficient,
	}
}

// Extract infers metadata from transcript. Short transcripts get the
// [Placeholder] without any provider call. Provider failures are returned
// as *llmerr.Error.
func (e *Extractor) Extract(ctx context.Context, transcript string) (*types.SessionMetadata, error) {
	if len([]rune(strings.TrimSpace(transcript))) < e.cfg.MinChars {
		return Placeholder(), nil
	}

	user := "TRANSCRIPTION DE L'ENREGISTREMENT FLASH :\n" + prompt.Quote(transcript) + "\n\nExtrayez les métadonnées JSON."
	res, err := e.gen.Generate(ctx, gateway.Request{System: system, User: user, MaxTokens: e.cfg.MaxTokens})
	if err != nil {
		return nil, err
	}
	obj := res.Object
	return &types.SessionMetadata{
		Title:         extract.String(obj, "title", DefaultTitle),
		ClientName:    extract.String(obj, "clientName", DefaultClient),
		CaseReference: extract.OptionalString(obj, "caseReference"),
		Category:      Category(obj["category"]),
		Description:   extract.String(obj, "description", ""),
	}, nil
}

// Category constrains v to the accepted categories, case-insensitively.
// Anything else is "general".
func Category(v any) string {
	s, ok := v.(string)
	if !ok {
		return types.CategoryGeneral
	}
	s = strings.ToLower(strings.TrimSpace(s))
	if slices.Contains(types.Categories, s) {
		return s
	}
	return types.CategoryGeneral
}
