package report

import (
	"strings"
	"time"

	"github.com/MrWong99/greffier/internal/prompt"
	"github.com/MrWong99/greffier/pkg/types"
)

const system = prompt.LegalContext + `

MISSION : RÉDACTION DE COMPTES RENDUS DE CONSULTATION
━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

RÈGLES DE RÉDACTION :
1. FIDÉLITÉ : Ne JAMAIS ajouter de faits non présents dans la transcription
2. PRUDENCE : Conditionnel pour situations juridiques non confirmées
3. EXHAUSTIVITÉ : Couvrir TOUS les sujets abordés, même brièvement
4. STRUCTURE : Organiser thématiquement (faits → analyse → recommandations)
5. PRÉCISION : Citer montants, dates, noms propres exactement comme mentionnés
6. NUANCE : Distinguer allégations du client et éléments établis (documents, jugements)
7. CHRONOLOGIE : Respecter l'ordre des échanges quand discernable
8. RÉFÉRENCES : Citer textes de loi, articles, actes uniformes applicables
9. ALERTES : Signaler risques de prescription, forclusion ou déchéance de droits
10. DÉONTOLOGIE : Jamais de conclusion définitive sur base d'une transcription seule

TEMPLATE DU RÉSUMÉ (à adapter selon le contenu) :
─────────────────────────────────────────────────
§1 CONTEXTE ET OBJET : Présenter le cadre de la consultation, l'identité du client, la nature du problème juridique posé.
§2 EXPOSÉ DES FAITS : Rapporter chronologiquement les faits tels que relatés par le client, en distinguant les éléments documentés des simples déclarations.
§3 ANALYSE JURIDIQUE PRÉLIMINAIRE : Identifier les textes applicables (lois béninoises, Actes uniformes OHADA, conventions), qualifier juridiquement la situation, évaluer les forces et faiblesses de la position du client.
§4 STRATÉGIE ET RECOMMANDATIONS : Proposer les options juridiques (voie amiable, médiation, contentieux), évaluer les risques, déterminer les prochaines étapes concrètes.
§5 POINTS DE VIGILANCE : Délais à surveiller, pièces à rassembler, précautions à prendre, éventuelles questions déontologiques.`

var formatRules = map[types.ReportFormat]string{
	types.FormatBrief: `FORMAT : SYNTHÈSE RAPIDE
• Résumé : 200-400 mots, essentiel uniquement, 2-3 paragraphes
• Points clés : 3-5 maximum, les plus critiques
• Actions : 2-4 prioritaires, marquées URGENT/NORMAL
• Notes juridiques : brèves, textes les plus directement applicables`,
	types.FormatStandard: `FORMAT : RAPPORT STANDARD
• Résumé : 500-900 mots, couverture complète, 4-5 paragraphes structurés selon le template
• Points clés : 5-12, organisés par thématique juridique
• Actions : toutes identifiées, priorité (URGENT / NORMAL / À PLANIFIER) + échéance si connue
• Notes juridiques : textes applicables avec articles, jurisprudence si connue`,
	types.FormatDetailed: `FORMAT : RAPPORT DÉTAILLÉ EXHAUSTIF
• Résumé : 1000-2000 mots, analyse approfondie, sous-sections thématiques, template complet
• Points clés : exhaustifs, hiérarchie par domaine et niveau de risque
• Actions : plan détaillé, échéancier, responsabilités, conditions préalables, coûts si mentionnés
• Notes juridiques : analyse approfondie, articles précis, jurisprudence CCJA/Cour Suprême, doctrine, risques gradués, stratégie contentieuse/transactionnelle`,
}

const schema = `CONSIGNES JSON STRICTES :
Retournez UNIQUEMENT un objet JSON valide. Aucun texte avant ou après, aucun markdown.
{
  "title": "string : titre professionnel (ex: Compte rendu, Litige foncier, M. AHOUANDJINOU)",
  "summary": "string : résumé structuré (\n pour sauts de paragraphe)",
  "keyPoints": ["string : point clé complet et précis", ...],
  "actionItems": ["string : action concrète avec priorité et échéance", ...],
  "legalNotes": "string : observations juridiques, textes, jurisprudence, vigilance"
}`

func languageRule(lang string) string {
	if strings.EqualFold(strings.TrimSpace(lang), "en") {
		return "LANGUE : Rédigez en anglais. Terminologie adaptée pour praticiens common law."
	}
	return "LANGUE : Rédigez en français juridique professionnel."
}

// BuildPrompt returns the system and user prompts for a report. reference
// may be empty.
func BuildPrompt(client, reference, lang string, format types.ReportFormat, transcript string, now time.Time) (sys, user string) {
	sys = system + "\n\n" + languageRule(lang) + "\n\n" + formatRules[format] + "\n\n" + schema

	ref := "• Référence dossier : non spécifiée"
	if reference != "" {
		ref = "• Référence dossier : " + reference
	}
	var b strings.Builder
	b.WriteString("CONTEXTE DE LA SESSION\n━━━━━━━━━━━━━━━━━━━━\n")
	b.WriteString("• Client : " + client + "\n")
	b.WriteString(ref + "\n")
	b.WriteString("• Date du rapport : " + prompt.LongDate(now) + "\n")
	b.WriteString("• Cabinet : " + prompt.Firm + "\n\n")
	b.WriteString("TRANSCRIPTION INTÉGRALE :\n━━━━━━━━━━━━━━━━━━━━━━━\n")
	b.WriteString(prompt.Quote(transcript))
	b.WriteString("\n\nAnalysez avec rigueur et produisez le rapport JSON structuré.")
	return sys, b.String()
}
