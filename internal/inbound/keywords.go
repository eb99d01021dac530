package inbound

import (
	"strings"
	"unicode/utf8"
)

// keywordMinChars is the shortest message the keyword heuristic accepts.
const keywordMinChars = 30

// keywordThreshold is how many distinct keywords make a report.
const keywordThreshold = 2

var reportKeywords = []string{
	"compte rendu", "audience", "tribunal", "juridiction", "dossier",
	"client", "renvoi", "prochaine", "tpi", "cour d'appel", "tâche",
	"résumé", "avocat", "chambre", "rg ", "adverse", "jugement",
	"expertise", "mise en état", "radiation", "renvoyé", "reporté",
}

// IsReportLikeKeywords reports whether text mentions at least two hearing
// vocabulary keywords. Messages under 30 characters never qualify.
func IsReportLikeKeywords(text string) bool {
	if utf8.RuneCountInString(text) < keywordMinChars {
		return false
	}
	lower := strings.ToLower(strings.ReplaceAll(text, "’", "'"))
	n := 0
	for _, k := range reportKeywords {
		if strings.Contains(lower, k) {
			n++
			if n >= keywordThreshold {
				return true
			}
		}
	}
	return false
}
