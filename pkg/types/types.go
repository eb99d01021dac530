// Package types defines the validated results handed back to callers of the
// orchestration layer.
//
// Nothing in this package ever holds raw provider text: every value has been
// through extraction and coercion first. Slices are never nil so that JSON
// consumers always see arrays.
package types

import (
	"strings"
	"time"
)

// Message is a single turn sent to a generation provider.
type Message struct {
	// Role is "system", "user" or "assistant".
	Role    string
	Content string
}

// Segment is a timed slice of a transcription.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Transcription is the post-processed output of the transcription pipeline.
type Transcription struct {
	Text     string    `json:"text"`
	Segments []Segment `json:"segments"`

	// Duration in seconds.
	Duration float64 `json:"duration"`

	// Confidence in [0,1], derived from the provider's per-segment log
	// probabilities.
	Confidence float64 `json:"confidence"`
}

// ReportFormat selects the length tier of a synthesized report.
type ReportFormat string

const (
	FormatBrief    ReportFormat = "brief"
	FormatStandard ReportFormat = "standard"
	FormatDetailed ReportFormat = "detailed"
)

// ParseReportFormat normalises s into a known tier, defaulting to
// [FormatStandard].
func ParseReportFormat(s string) ReportFormat {
	switch ReportFormat(strings.ToLower(strings.TrimSpace(s))) {
	case FormatBrief:
		return FormatBrief
	case FormatDetailed:
		return FormatDetailed
	default:
		return FormatStandard
	}
}

// ReportMetadata describes how a report was produced.
type ReportMetadata struct {
	Provider    string       `json:"provider"`
	Format      ReportFormat `json:"format"`
	GeneratedAt time.Time    `json:"generatedAt"`

	// InputLength is the transcript length in characters.
	InputLength int `json:"inputLength"`
}

// Report is a structured consultation report.
type Report struct {
	Title       string         `json:"title"`
	Summary     string         `json:"summary"`
	KeyPoints   []string       `json:"keyPoints"`
	ActionItems []string       `json:"actionItems"`
	LegalNotes  string         `json:"legalNotes"`
	Metadata    ReportMetadata `json:"metadata"`
}

// Session categories accepted by the metadata extractor.
const (
	CategoryConsultation = "consultation"
	CategoryHearing      = "hearing"
	CategoryDeposition   = "deposition"
	CategoryMeeting      = "meeting"
	CategoryGeneral      = "general"
	CategoryNegotiation  = "negotiation"
	CategoryMediation    = "mediation"
	CategoryLitigation   = "litigation"
)

// Categories lists every accepted session category.
var Categories = []string{
	CategoryConsultation, CategoryHearing, CategoryDeposition, CategoryMeeting,
	CategoryGeneral, CategoryNegotiation, CategoryMediation, CategoryLitigation,
}

// SessionMetadata is the short metadata record derived from a quick recording.
type SessionMetadata struct {
	Title         string  `json:"title"`
	ClientName    string  `json:"clientName"`
	CaseReference *string `json:"caseReference"`
	Category      string  `json:"category"`
	Description   string  `json:"description"`
}

// Classification sources.
const (
	SourcePrefilter = "prefilter"
	SourceAI        = "ai"
	SourceKeywords  = "keywords"
)

// Classification is the verdict on whether an inbound message is a hearing
// report.
type Classification struct {
	IsReport   bool    `json:"isReport"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason,omitempty"`
	Source     string  `json:"source"`
}

// HearingReport is the structured form of an inbound hearing report.
// Absent fields are nil, never invented.
type HearingReport struct {
	HearingDate     *string  `json:"hearingDate"`
	ClientName      *string  `json:"clientName"`
	CaseReference   *string  `json:"caseReference"`
	Jurisdiction    *string  `json:"jurisdiction"`
	Chamber         *string  `json:"chamber"`
	Opponent        *string  `json:"opponent"`
	AuthorName      *string  `json:"authorName"`
	Outcome         *string  `json:"outcome"`
	NextHearingDate *string  `json:"nextHearingDate"`
	Tasks           []string `json:"tasks"`
	Notes           *string  `json:"notes"`
}
