package inbound

import (
	"context"
	"slices"
	"strings"
	"testing"

	"github.com/MrWong99/greffier/internal/gateway/mock"
	"github.com/MrWong99/greffier/pkg/llmerr"
	"github.com/MrWong99/greffier/pkg/types"
)

func TestAIParser_Success(t *testing.T) {
	gen := &mock.Generator{Script: []mock.Reply{mock.Object(map[string]any{
		"hearingDate":     "2026-10-14",
		"clientName":      "Dupont",
		"caseReference":   nil,
		"jurisdiction":    "TPI Cotonou",
		"lawyerName":      "Me Adjovi",
		"outcome":         "Renvoi contradictoire pour conclusions.",
		"nextHearingDate": "25/03/2027",
		"tasks":           []any{"Préparer les conclusions", " ", 3},
		"notes":           "null",
	})}}
	p := NewAIParser(gen, Config{}, fixedClock)

	r := p.Parse(context.Background(), informalReport, "Me Sossa")
	if r == nil {
		t.Fatal("Parse returned nil")
	}
	if r.HearingDate == nil || *r.HearingDate != "2026-10-14" {
		t.Errorf("HearingDate = %v, want 2026-10-14", r.HearingDate)
	}
	if r.NextHearingDate == nil || *r.NextHearingDate != "2027-03-25" {
		t.Errorf("NextHearingDate = %v, want 2027-03-25", r.NextHearingDate)
	}
	if r.CaseReference != nil || r.Notes != nil || r.Chamber != nil {
		t.Errorf("absent fields = {%v, %v, %v}, want nil", r.CaseReference, r.Notes, r.Chamber)
	}
	if r.AuthorName == nil || *r.AuthorName != "Me Adjovi" {
		t.Errorf("AuthorName = %v, want Me Adjovi", r.AuthorName)
	}
	if !slices.Equal(r.Tasks, []string{"Préparer les conclusions"}) {
		t.Errorf("Tasks = %q", r.Tasks)
	}

	req := gen.LastRequest()
	if req.MaxTokens != 2048 {
		t.Errorf("MaxTokens = %d, want 2048", req.MaxTokens)
	}
	if !strings.Contains(req.User, "Message WhatsApp de Me Sossa") {
		t.Errorf("User prompt = %q, want the author", req.User)
	}
	if !strings.Contains(req.System, "jeudi 15 octobre 2026") {
		t.Error("System prompt does not carry today's date")
	}
}

func TestAIParser_Dates(t *testing.T) {
	tests := []struct {
		name        string
		hearing     any
		wantHearing string
	}{
		{"iso", "2026-09-30", "2026-09-30"},
		{"french", "30 septembre 2026", "2026-09-30"},
		{"missing", nil, "2026-10-15"},
		{"impossible", "2026-13-40", "2026-10-15"},
		{"vague", "ce matin", "2026-10-15"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &mock.Generator{Script: []mock.Reply{mock.Object(map[string]any{
				"hearingDate": tt.hearing,
				"clientName":  "Dupont",
			})}}
			r := NewAIParser(gen, Config{}, fixedClock).Parse(context.Background(), informalReport, "")
			if r == nil {
				t.Fatal("Parse returned nil")
			}
			if *r.HearingDate != tt.wantHearing {
				t.Errorf("HearingDate = %q, want %q", *r.HearingDate, tt.wantHearing)
			}
			if r.NextHearingDate != nil {
				t.Errorf("NextHearingDate = %q, want nil", *r.NextHearingDate)
			}
		})
	}
}

func TestAIParser_ReturnsNil(t *testing.T) {
	tests := []struct {
		name  string
		reply mock.Reply
		text  string
	}{
		{"no usable field", mock.Object(map[string]any{"jurisdiction": "TPI Cotonou", "clientName": "null"}), informalReport},
		{"gateway error", mock.Fail(llmerr.New(llmerr.CredentialMissing, "openai", "clé absente")), informalReport},
		{"too short", mock.Object(map[string]any{"clientName": "Dupont"}), "renvoi au 3 mars"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &mock.Generator{Script: []mock.Reply{tt.reply}}
			if r := NewAIParser(gen, Config{}, fixedClock).Parse(context.Background(), tt.text, ""); r != nil {
				t.Errorf("Parse = %+v, want nil", r)
			}
		})
	}
}

type parserFunc func(ctx context.Context, text, author string) *types.HearingReport

func (f parserFunc) Parse(ctx context.Context, text, author string) *types.HearingReport {
	return f(ctx, text, author)
}

func TestChain(t *testing.T) {
	var calls []string
	named := func(name string, r *types.HearingReport) Parser {
		return parserFunc(func(context.Context, string, string) *types.HearingReport {
			calls = append(calls, name)
			return r
		})
	}
	client := "Dupont"
	found := &types.HearingReport{ClientName: &client, Tasks: []string{}}

	chain := Chain{named("first", nil), named("second", found), named("third", &types.HearingReport{})}
	if got := chain.Parse(context.Background(), informalReport, ""); got != found {
		t.Errorf("Parse = %+v, want the second parser's report", got)
	}
	if !slices.Equal(calls, []string{"first", "second"}) {
		t.Errorf("calls = %v, want [first second]", calls)
	}

	if got := (Chain{named("only", nil)}).Parse(context.Background(), informalReport, ""); got != nil {
		t.Errorf("Parse = %+v, want nil", got)
	}
}

func TestChain_FallsBackToRegex(t *testing.T) {
	gen := &mock.Generator{Err: llmerr.New(llmerr.GenerationFailed, "openai", "503")}
	chain := Chain{NewAIParser(gen, Config{}, fixedClock), RegexParser{Now: fixedClock}}

	r := chain.Parse(context.Background(), templateReport, "")
	if r == nil {
		t.Fatal("Parse returned nil")
	}
	if r.CaseReference == nil || *r.CaseReference != "RG 2026/114" {
		t.Errorf("CaseReference = %v, want RG 2026/114", r.CaseReference)
	}
	if gen.Calls() != 1 {
		t.Errorf("generator calls = %d, want 1", gen.Calls())
	}
}
