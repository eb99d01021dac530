package inbound

import (
	"context"
	"strings"
	"time"

	"github.com/MrWong99/greffier/internal/gateway"
	"github.com/MrWong99/greffier/internal/observe"
	"github.com/MrWong99/greffier/pkg/types"
)

// Message is one text message received from the messaging channel.
type Message struct {
	Text   string `json:"text"`
	Author string `json:"author"`
}

// Status summarises what happened to a message.
type Status string

const (
	// StatusIgnored means the message is not a hearing report.
	StatusIgnored Status = "ignored"

	// StatusRecorded means a report was extracted.
	StatusRecorded Status = "recorded"

	// StatusUnparsed means the message looked like a report but no parser
	// could structure it. The reply explains the expected format.
	StatusUnparsed Status = "unparsed"
)

// Outcome is the result of handling a message. Reply is empty when nothing
// should be sent back.
type Outcome struct {
	Status         Status               `json:"status"`
	Classification types.Classification `json:"classification"`
	Report         *types.HearingReport `json:"report,omitempty"`
	Reply          string               `json:"reply,omitempty"`
}

const unspecified = "Non spécifié"

// FormatHelp is sent back when a report could not be parsed.
const FormatHelp = "⚠️ *Message non reconnu*\n\n" +
	"Pour enregistrer un compte rendu, utilisez ce format :\n\n" +
	"📋 COMPTE RENDU\n" +
	"Date: JJ/MM/AAAA\n" +
	"Client: Nom du client\n" +
	"Dossier: RG 2026/XXXX\n" +
	"Juridiction: TPI Cotonou\n" +
	"Chambre: 1ère Ch. civile\n" +
	"Adverse: Partie adverse\n" +
	"Avocat: Me Nom\n" +
	"Résumé: Ce qui s'est passé à l'audience...\n" +
	"Prochaine: JJ/MM/AAAA\n" +
	"Tâches: Tâche 1, Tâche 2"

// Confirmation is the reply acknowledging a recorded report.
func Confirmation(r *types.HearingReport) string {
	var b strings.Builder
	b.WriteString("✅ *Compte rendu enregistré*\n\n")
	b.WriteString("📋 *" + deref(r.ClientName) + "* : " + deref(r.CaseReference) + "\n")
	if r.NextHearingDate != nil {
		b.WriteString("📅 Prochaine audience : " + *r.NextHearingDate + "\n")
	}
	b.WriteString("\nLe rôle hebdomadaire a été mis à jour automatiquement.")
	return b.String()
}

func deref(s *string) string {
	if s == nil {
		return unspecified
	}
	return *s
}

// Service classifies and parses inbound messages. Delivering the reply and
// deduplicating redelivered messages belong to the transport.
type Service struct {
	classifier *Classifier
	parser     Parser
}

// ServiceOption configures a [Service].
type ServiceOption func(*serviceOptions)

type serviceOptions struct {
	cfg     Config
	metrics *observe.Metrics
	now     func() time.Time
	parser  Parser
}

// WithConfig overrides [DefaultConfig].
func WithConfig(c Config) ServiceOption {
	return func(o *serviceOptions) { o.cfg = c }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *observe.Metrics) ServiceOption {
	return func(o *serviceOptions) { o.metrics = m }
}

// WithClock replaces time.Now for default hearing dates.
func WithClock(now func() time.Time) ServiceOption {
	return func(o *serviceOptions) { o.now = now }
}

// WithParser replaces the default AI-then-regex chain.
func WithParser(p Parser) ServiceOption {
	return func(o *serviceOptions) { o.parser = p }
}

// NewService wires a [Classifier] and the default parser chain around gen.
func NewService(gen gateway.Generator, opts ...ServiceOption) *Service {
	o := serviceOptions{cfg: DefaultConfig(), now: time.Now}
	for _, fn := range opts {
		fn(&o)
	}
	o.cfg = o.cfg.withDefaults()
	if o.parser == nil {
		o.parser = Chain{
			NewAIParser(gen, o.cfg, o.now),
			RegexParser{MinChars: o.cfg.MinChars, Now: o.now},
		}
	}
	return &Service{
		classifier: NewClassifier(gen, o.cfg, o.metrics),
		parser:     o.parser,
	}
}

// Handle runs a message through classification and parsing. The report's
// author falls back to the sender when the message names no lawyer.
func (s *Service) Handle(ctx context.Context, msg Message) *Outcome {
	log := observe.Logger(ctx)

	c := s.classifier.Classify(ctx, msg.Text)
	out := &Outcome{Status: StatusIgnored, Classification: c}
	if !c.IsReport {
		log.Debug("inbound: not a hearing report", "source", c.Source, "confidence", c.Confidence)
		return out
	}

	r := s.parser.Parse(ctx, msg.Text, msg.Author)
	if r == nil {
		log.Info("inbound: hearing report not parseable", "author", msg.Author)
		out.Status = StatusUnparsed
		out.Reply = FormatHelp
		return out
	}
	if r.AuthorName == nil && msg.Author != "" {
		author := msg.Author
		r.AuthorName = &author
	}

	log.Info("inbound: hearing report recorded",
		"client", deref(r.ClientName),
		"reference", deref(r.CaseReference),
		"next_hearing", deref(r.NextHearingDate),
	)
	out.Status = StatusRecorded
	out.Report = r
	out.Reply = Confirmation(r)
	return out
}
