package transcribe

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultFillers are the hesitation tokens removed from transcripts.
var DefaultFillers = []string{"euh", "heu", "hum", "mmh"}

var (
	multiSpace     = regexp.MustCompile(`\s{2,}`)
	spaceBeforeEnd = regexp.MustCompile(`\s+([,;:!?.])`)
	sentenceStart  = regexp.MustCompile(`([.!?])\s+([a-zéèêëàâäîïôùûüç])`)
)

// fillerPattern matches any of fillers, longest first. Word boundaries are
// checked by [removeFillers] since RE2's \b only knows ASCII letters.
func fillerPattern(fillers []string) *regexp.Regexp {
	quoted := make([]string, 0, len(fillers))
	for _, f := range fillers {
		if f = strings.TrimSpace(f); f != "" {
			quoted = append(quoted, regexp.QuoteMeta(f))
		}
	}
	if len(quoted) == 0 {
		return nil
	}
	sort.SliceStable(quoted, func(i, j int) bool { return len(quoted[i]) > len(quoted[j]) })
	return regexp.MustCompile(`(?i)(?:` + strings.Join(quoted, "|") + `)`)
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// removeFillers drops every match of re that stands as a whole word, along
// with the whitespace after it.
func removeFillers(text string, re *regexp.Regexp) string {
	var b strings.Builder
	b.Grow(len(text))
	last := 0
	for _, loc := range re.FindAllStringIndex(text, -1) {
		start, end := loc[0], loc[1]
		if start > 0 {
			if r, _ := utf8.DecodeLastRuneInString(text[:start]); isWordRune(r) {
				continue
			}
		}
		if end < len(text) {
			if r, _ := utf8.DecodeRuneInString(text[end:]); isWordRune(r) {
				continue
			}
		}
		for end < len(text) {
			r, size := utf8.DecodeRuneInString(text[end:])
			if !unicode.IsSpace(r) {
				break
			}
			end += size
		}
		b.WriteString(text[last:start])
		last = end
	}
	if last == 0 {
		return text
	}
	b.WriteString(text[last:])
	return b.String()
}

// PostProcess cleans a raw transcript: whitespace runs are collapsed, doubled
// sentence punctuation is reduced to one mark, fillers are removed, stray
// spaces before punctuation go away and each sentence starts with a capital
// letter.
func PostProcess(text string, fillers []string) string {
	return postProcess(text, fillerPattern(fillers))
}

func postProcess(text string, fillers *regexp.Regexp) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	text = multiSpace.ReplaceAllString(text, " ")
	text = collapsePunctuation(text)
	if fillers != nil {
		text = removeFillers(text, fillers)
	}
	text = spaceBeforeEnd.ReplaceAllString(text, "$1")
	text = sentenceStart.ReplaceAllStringFunc(text, func(m string) string {
		r := []rune(m)
		last := len(r) - 1
		return string(r[0]) + " " + string(unicode.ToUpper(r[last]))
	})
	text = multiSpace.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// collapsePunctuation reduces a sentence mark followed by optional
// whitespace and more copies of the same mark ("..", "! !!") to the single
// mark.
func collapsePunctuation(s string) string {
	r := []rune(s)
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(r); {
		c := r[i]
		b.WriteRune(c)
		i++
		if c != '.' && c != '!' && c != '?' {
			continue
		}
		j := i
		for j < len(r) && unicode.IsSpace(r[j]) {
			j++
		}
		if j == len(r) || r[j] != c {
			continue
		}
		for j < len(r) && r[j] == c {
			j++
		}
		i = j
	}
	return b.String()
}
