// Package placeholder hides structured inline content (fenced code, inline
// code spans, HTML tags, URLs and e-mail addresses) from sentence boundary
// detection. Mask overwrites every protected span with filler bytes of the
// same length, so offsets computed on the masked text are valid offsets
// into the original.
package placeholder

import (
	"regexp"
	"sort"
	"strings"

	"github.com/valpere/panesync/internal"
)

// Filler is the byte written over protected spans.
const Filler = '_'

var (
	// fenced code blocks: ```...``` (non-greedy, may span lines)
	reFencedCode = regexp.MustCompile("(?s)```.*?```")

	// inline code spans: `...`
	reInlineCode = regexp.MustCompile("`[^`\n]+`")

	// HTML/XML tags: opening, closing, and self-closing
	reHTMLTag = regexp.MustCompile(`<[A-Za-z/!][^>\n]*>`)

	// bare URLs and e-mail addresses, both of which carry periods
	reURL   = regexp.MustCompile(`(?i)\b(?:https?://|www\.)[^\s<>()"]+[^\s<>()".,;:!?]`)
	reEmail = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)
)

// Protected returns the byte spans of text that must not be split, sorted
// by start offset. Overlapping matches are merged.
func Protected(text string) []internal.Span {
	var spans []internal.Span
	// Order matters: fenced first (longest match), then inline, then tags.
	for _, re := range []*regexp.Regexp{reFencedCode, reInlineCode, reHTMLTag, reURL, reEmail} {
		for _, loc := range re.FindAllStringIndex(text, -1) {
			spans = append(spans, internal.Span{Start: loc[0], End: loc[1]})
		}
	}
	if len(spans) == 0 {
		return nil
	}

	sort.Slice(spans, func(i, j int) bool {
		if spans[i].Start != spans[j].Start {
			return spans[i].Start < spans[j].Start
		}
		return spans[i].End > spans[j].End
	})

	merged := spans[:1]
	for _, s := range spans[1:] {
		last := &merged[len(merged)-1]
		if s.Start < last.End {
			if s.End > last.End {
				last.End = s.End
			}
			continue
		}
		merged = append(merged, s)
	}
	return merged
}

// Mask returns text with every protected span overwritten by Filler. The
// result has exactly the same byte length as text.
func Mask(text string) string {
	spans := Protected(text)
	if len(spans) == 0 {
		return text
	}
	b := []byte(text)
	for _, s := range spans {
		for i := s.Start; i < s.End; i++ {
			b[i] = Filler
		}
	}
	return string(b)
}

// Literals returns the protected substrings of text in order of appearance.
// Code spans and URLs usually survive translation verbatim, which makes them
// useful alignment anchors.
func Literals(text string) []string {
	spans := Protected(text)
	if len(spans) == 0 {
		return nil
	}
	out := make([]string, 0, len(spans))
	for _, s := range spans {
		lit := strings.TrimSpace(text[s.Start:s.End])
		if lit != "" {
			out = append(out, lit)
		}
	}
	return out
}
