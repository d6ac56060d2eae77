package markdown

import (
	"strings"
	"testing"
)

func TestPlainText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "Hello   world!", "Hello world!"},
		{"emphasis", "This is **very** _important_.", "This is very important."},
		{"heading", "## Getting started", "Getting started"},
		{"link", "Read [the guide](https://example.com/guide).", "Read the guide ."},
		{"list item", "- first item", "first item"},
		{"entity", "Fish & chips.", "Fish & chips."},
		{"rule keeps raw text", "---", "---"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PlainText(tt.in)
			if tt.name == "link" {
				// the renderer may or may not leave a space before the period
				got = strings.ReplaceAll(got, " .", ".")
				tt.want = strings.ReplaceAll(tt.want, " .", ".")
			}
			if got != tt.want {
				t.Errorf("PlainText(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestStripHTMLTags(t *testing.T) {
	got := strings.Join(strings.Fields(StripHTMLTags("<p>Hello <b>world</b></p>")), " ")
	if got != "Hello world" {
		t.Errorf("unexpected result %q", got)
	}
}

func TestToHTML(t *testing.T) {
	out := ToHTML([]byte("# Title"))
	if !strings.Contains(out, "<h1") || !strings.Contains(out, "Title") {
		t.Errorf("expected heading markup, got %q", out)
	}
}
