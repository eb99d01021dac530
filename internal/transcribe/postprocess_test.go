package transcribe

import "testing"

func TestPostProcess(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "   ", ""},
		{"whitespace", "  bonjour    maître  ", "bonjour maître"},
		{"doubled marks", "vraiment?? oui!!! bien..", "vraiment? Oui! Bien."},
		{"spaced doubled marks", "attendez . . voilà", "attendez. Voilà"},
		{"fillers", "euh je pense hum que Euh oui", "je pense que oui"},
		{"filler inside word kept", "un humain heureux", "un humain heureux"},
		{"filler before accented letter kept", "fracture de l'humérus droit", "fracture de l'humérus droit"},
		{"filler word ending in accent kept", "il a humé le parfum", "il a humé le parfum"},
		{"filler before punctuation", "d'accord hum.", "d'accord."},
		{"space before punctuation", "le dossier , la pièce ; le délai : demain !", "le dossier, la pièce; le délai: demain!"},
		{"accented capital", "c'est noté. évidemment.", "c'est noté. Évidemment."},
		{
			"full",
			"  euh bonjour maître.. je viens pour   un litige foncier . hum il y a un problème ! ! d'accord ?",
			"bonjour maître. Je viens pour un litige foncier. Il y a un problème! D'accord?",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PostProcess(tt.in, DefaultFillers); got != tt.want {
				t.Errorf("PostProcess(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestPostProcess_CustomFillers(t *testing.T) {
	got := PostProcess("bon alors voilà le dossier", []string{"alors", "voilà"})
	if want := "bon le dossier"; got != want {
		t.Errorf("PostProcess = %q, want %q", got, want)
	}
	if got := PostProcess("voilàtout reste", []string{"voilà"}); got != "voilàtout reste" {
		t.Errorf("PostProcess kept-word = %q", got)
	}
	if got := PostProcess("euh oui", nil); got != "euh oui" {
		t.Errorf("PostProcess without fillers = %q", got)
	}
}
