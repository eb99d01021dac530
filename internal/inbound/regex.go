package inbound

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/MrWong99/greffier/internal/prompt"
	"github.com/MrWong99/greffier/pkg/types"
)

// Labels are tried in order; within a label longer alternatives come first
// so that "référence" is not read as "réf" followed by "érence".
var (
	hearingDatePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(?:date d['’]audience|audience le|audience du|date)\s*[:：]\s*(.+)`),
		regexp.MustCompile(`(?m)^(\d{1,2}[/\-.]\d{1,2}[/\-.]\d{2,4})\s`),
	}
	clientPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(?:nom du client|client)\s*[:：]?\s*(.+)`),
		regexp.MustCompile(`(?i)(?:affaire|dossier de)\s+(.+?)(?:\s+c/|\s+contre)`),
	}
	referencePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(?:dossier|référence|réf|ref|n°|numéro|numero)\s*[:：]?\s*(.+)`),
		regexp.MustCompile(`(?i)RG\s*\d{4}[/\-]\d+`),
	}
	jurisdictionPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(?:juridiction|tribunal|cour|juge|devant)\s*[:：]?\s*(.+)`),
		regexp.MustCompile(`(?i)(?:TPI|TGI|Cour d['’]Appel|Tribunal de Commerce|Tribunal Administratif)[^\n]*`),
	}
	chamberPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)chambre\s*[:：]\s*(.+)`),
		regexp.MustCompile(`(?i)(\d+[eè](?:me|re)?\s+ch(?:ambre)?[^\n]*)`),
	}
	opponentPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(?:partie adverse|adverse|contre|opposant|défendeur|demandeur)\s*[:：]?\s*(.+)`),
		regexp.MustCompile(`(?i)c/\s*(.+)`),
	}
	authorPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(?:avocat|conseil|\bme\s|maître|maitre)\s*[:：]?\s*(.+)`),
	}

	outcomeBlock  = regexp.MustCompile(`(?i)(?:résumé|resume|compte rendu|cr|résultat|décision|rendu)\s*[:：]\s*`)
	outcomeStop   = regexp.MustCompile(`(?i)\n(?:prochaine|tâche|tache|note)`)
	outcomeInline = regexp.MustCompile(`(?i)(?:résumé|resume|compte rendu|cr|résultat)\s*[:：]\s*(.+)`)

	nextDatePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(?:prochaine audience|prochaine date|prochain rdv|prochaine)\s*[:：]\s*(.+)`),
		regexp.MustCompile(`(?i)(?:renvoyé|renvoi|reporté)\s+(?:au|le)\s+(\d{1,2}[/.\-]\d{1,2}[/.\-]\d{2,4})`),
		regexp.MustCompile(`(?i)(?:renvoyé|renvoi|reporté)\s+(?:au|le)\s+(\d{1,2}\s+\p{L}+\s+\d{4})`),
	}
	taskPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(?:tâches?|taches?|à faire|a faire|todo|actions?)\s*[:：]\s*(.+)`),
	}
	notePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(?:notes?|observations?|remarques?|nb)\s*[:：]\s*(.+)`),
	}

	taskSeparator = regexp.MustCompile(`[,;]|\d+[.)]\s*`)
	numericDate   = regexp.MustCompile(`(\d{1,2})[/\-.](\d{1,2})[/\-.](\d{2,4})`)
	naturalDate   = regexp.MustCompile(`(\d{1,2})\s+(\p{L}+)\s+(\d{4})`)
)

// Thresholds of the pattern parser.
const (
	// shortWithoutOutcome is the length under which a message with no
	// outcome label is rejected.
	shortWithoutOutcome = 50

	// outcomePreview is how much of the message stands in for a missing
	// outcome.
	outcomePreview = 500
)

// RegexParser reads labelled fields ("Client: …", "Prochaine: …") and a few
// free-form idioms ("renvoyé au 25 mars 2026", "X c/ Y"). It needs no
// provider and is safe for concurrent use.
type RegexParser struct {
	MinChars int
	Now      func() time.Time
}

// Parse implements [Parser]. The author is not used: the pattern parser
// only reads what the message says.
func (p RegexParser) Parse(_ context.Context, text, _ string) *types.HearingReport {
	minChars := p.MinChars
	if minChars <= 0 {
		minChars = DefaultConfig().MinChars
	}
	if utf8.RuneCountInString(strings.TrimSpace(text)) < minChars {
		return nil
	}

	client := firstMatch(text, clientPatterns)
	reference := firstMatch(text, referencePatterns)
	if client == "" && reference == "" {
		return nil
	}
	outcome := findOutcome(text)
	if outcome == "" && utf8.RuneCountInString(text) < shortWithoutOutcome {
		return nil
	}
	if outcome == "" {
		outcome = truncate(text, outcomePreview)
	}

	hearing := ParseDate(firstMatch(text, hearingDatePatterns))
	if hearing == "" {
		hearing = today(p.Now)
	}

	return &types.HearingReport{
		HearingDate:     &hearing,
		ClientName:      optional(client),
		CaseReference:   optional(reference),
		Jurisdiction:    optional(firstMatch(text, jurisdictionPatterns)),
		Chamber:         optional(firstMatch(text, chamberPatterns)),
		Opponent:        optional(firstMatch(text, opponentPatterns)),
		AuthorName:      optional(firstMatch(text, authorPatterns)),
		Outcome:         &outcome,
		NextHearingDate: optional(ParseDate(firstMatch(text, nextDatePatterns))),
		Tasks:           SplitTasks(firstMatch(text, taskPatterns)),
		Notes:           optional(firstMatch(text, notePatterns)),
	}
}

// firstMatch returns the first capture (or the whole match when the pattern
// has no group) of the first pattern that matches.
func firstMatch(text string, patterns []*regexp.Regexp) string {
	for _, re := range patterns {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		if len(m) > 1 && m[1] != "" {
			return strings.TrimSpace(m[1])
		}
		return strings.TrimSpace(m[0])
	}
	return ""
}

// findOutcome reads a multi-line outcome block up to the next "Prochaine",
// "Tâches" or "Notes" line, and otherwise a single labelled line.
func findOutcome(text string) string {
	if loc := outcomeBlock.FindStringIndex(text); loc != nil {
		rest := text[loc[1]:]
		if stop := outcomeStop.FindStringIndex(rest); stop != nil && stop[0] > 0 {
			return strings.TrimSpace(rest[:stop[0]])
		}
		if strings.HasSuffix(rest, "\n") && strings.TrimSpace(rest) != "" {
			return strings.TrimSpace(rest)
		}
	}
	return firstMatch(text, []*regexp.Regexp{outcomeInline})
}

// SplitTasks splits a task line on commas, semicolons and numbered markers
// ("1. … 2) …"). The result is never nil.
func SplitTasks(raw string) []string {
	out := []string{}
	if raw == "" {
		return out
	}
	for _, t := range taskSeparator.Split(raw, -1) {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// ParseDate normalises a French date to YYYY-MM-DD. It accepts DD/MM/YYYY
// with "/", "-" or "." separators (two-digit years are read as 20YY) and
// "15 octobre 2026" with or without accents. Anything else, including
// impossible calendar dates, yields "".
func ParseDate(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if m := numericDate.FindStringSubmatch(raw); m != nil {
		year := m[3]
		if len(year) == 2 {
			year = "20" + year
		}
		return calendarDate(year, m[2], m[1])
	}
	if m := naturalDate.FindStringSubmatch(raw); m != nil {
		month := prompt.MonthNumber(m[2])
		if month == 0 {
			return ""
		}
		return calendarDate(m[3], strconv.Itoa(month), m[1])
	}
	return ""
}

func calendarDate(year, month, day string) string {
	y, err1 := strconv.Atoi(year)
	mo, err2 := strconv.Atoi(month)
	d, err3 := strconv.Atoi(day)
	if err1 != nil || err2 != nil || err3 != nil {
		return ""
	}
	s := fmt.Sprintf("%04d-%02d-%02d", y, mo, d)
	if _, err := time.Parse(time.DateOnly, s); err != nil {
		return ""
	}
	return s
}

func today(now func() time.Time) string {
	if now == nil {
		now = time.Now
	}
	return now().Format(time.DateOnly)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
