package sanitize

import (
	"strings"
	"testing"
)

func TestHTML_StripsScripts(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		absent  string
		present string
	}{
		{"script tag", `<p>Scales</p><script>alert(1)</script>`, "<script", "<p>Scales</p>"},
		{"event handler", `<a href="/x" onclick="steal()">x</a>`, "onclick", "href"},
		{"javascript url", `<a href="javascript:alert(1)">x</a>`, "javascript:", "x"},
		{"table kept", `<table><tr><td colspan="2">Week 1</td></tr></table>`, "<script", `colspan="2"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := HTML(tt.input)
			if strings.Contains(out, tt.absent) {
				t.Errorf("output %q still contains %q", out, tt.absent)
			}
			if !strings.Contains(out, tt.present) {
				t.Errorf("output %q lost %q", out, tt.present)
			}
		})
	}
}

func TestText(t *testing.T) {
	if got := Text("  <b>Jazz</b> Piano  "); got != "Jazz Piano" {
		t.Errorf("Text() = %q", got)
	}
	if got := Text("Rock & Roll <script>x</script>"); got != "Rock & Roll" {
		t.Errorf("Text() = %q, want entities decoded", got)
	}
	if HTML("") != "" || Text("") != "" {
		t.Error("empty input must stay empty")
	}
}
