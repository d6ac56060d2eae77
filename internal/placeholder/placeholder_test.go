package placeholder_test

import (
	"strings"
	"testing"

	"github.com/valpere/panesync/internal/placeholder"
)

func TestMask_NoMarkup(t *testing.T) {
	text := "Hello, world!"
	if got := placeholder.Mask(text); got != text {
		t.Errorf("expected unchanged text, got %q", got)
	}
	if spans := placeholder.Protected(text); len(spans) != 0 {
		t.Errorf("expected 0 spans, got %d", len(spans))
	}
}

func TestMask_PreservesLength(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"html", "<p>Hello <b>wörld</b></p>"},
		{"fenced", "Before\n```go\nfmt.Println(\"hi\")\n```\nAfter"},
		{"inline", "Use `fmt.Println` to print."},
		{"url", "See https://example.com/a.b?c=d. Then continue."},
		{"email", "Write to jane.doe@example.org. We reply fast."},
		{"unicode", "Ünïcödé `ça.va` ok."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := placeholder.Mask(tt.text)
			if len(got) != len(tt.text) {
				t.Fatalf("length changed: %d -> %d", len(tt.text), len(got))
			}
		})
	}
}

func TestMask_HidesPeriods(t *testing.T) {
	text := "Call `os.Exit` now. See www.example.com for details."
	got := placeholder.Mask(text)

	if strings.Contains(got, "os.Exit") {
		t.Errorf("inline code still visible in %q", got)
	}
	if strings.Contains(got, "example.com") {
		t.Errorf("URL still visible in %q", got)
	}
	// The real sentence terminator stays.
	if !strings.Contains(got, "now. See") {
		t.Errorf("sentence punctuation lost in %q", got)
	}
}

func TestMask_URLKeepsTrailingPeriod(t *testing.T) {
	text := "Visit https://example.com."
	got := placeholder.Mask(text)
	if !strings.HasSuffix(got, ".") {
		t.Errorf("trailing period should not be masked: %q", got)
	}
}

func TestProtected_MergesOverlaps(t *testing.T) {
	text := "x ```a `b` c``` y"
	spans := placeholder.Protected(text)
	if len(spans) != 1 {
		t.Fatalf("expected 1 merged span, got %d: %v", len(spans), spans)
	}
	if text[spans[0].Start:spans[0].End] != "```a `b` c```" {
		t.Errorf("unexpected span %q", text[spans[0].Start:spans[0].End])
	}
}

func TestLiterals(t *testing.T) {
	text := "Run `make test` and open https://ci.example.com/run today."
	lits := placeholder.Literals(text)
	if len(lits) != 2 {
		t.Fatalf("expected 2 literals, got %d: %v", len(lits), lits)
	}
	if lits[0] != "`make test`" {
		t.Errorf("first literal = %q", lits[0])
	}
	if lits[1] != "https://ci.example.com/run" {
		t.Errorf("second literal = %q", lits[1])
	}
}

func TestLiterals_Empty(t *testing.T) {
	if lits := placeholder.Literals("plain text."); lits != nil {
		t.Errorf("expected nil, got %v", lits)
	}
}
