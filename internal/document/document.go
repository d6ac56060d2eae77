// Package document turns pane content into the sentence list and structure
// tags the alignment engine works on.
package document

import (
	"sort"
	"strings"

	"github.com/rivo/uniseg"

	"github.com/valpere/panesync/internal"
	"github.com/valpere/panesync/internal/profile"
	"github.com/valpere/panesync/internal/segmenter"
	"github.com/valpere/panesync/internal/structure"
)

// Document is a parsed pane. It is immutable once returned by Parse.
type Document struct {
	PaneID    string
	Text      string
	Profile   *profile.Profile
	Blocks    []structure.Block
	Sentences []internal.Sentence
	Tags      []internal.StructureTag
}

// Parse analyzes text with profile p. Code blocks, table rows and rules
// become single sentence units; every other block is segmented within its
// own content range, so a sentence never spans two blocks.
func Parse(paneID, text string, p *profile.Profile) *Document {
	blocks := structure.Analyze(text)

	var sentences []internal.Sentence
	for _, b := range blocks {
		switch b.Category {
		case internal.CategoryCode, internal.CategoryRule:
			if s, ok := unit(text, b.Span); ok {
				sentences = append(sentences, s)
			}
		case internal.CategoryTable:
			for _, row := range b.Rows {
				if s, ok := unit(text, row); ok {
					sentences = append(sentences, s)
				}
			}
		default:
			sentences = append(sentences, segmenter.SplitRange(text, b.Content, p)...)
		}
	}

	for i := range sentences {
		sentences[i].Index = i
		sentences[i].PaneID = paneID
	}

	return &Document{
		PaneID:    paneID,
		Text:      text,
		Profile:   p,
		Blocks:    blocks,
		Sentences: sentences,
		Tags:      structure.Tag(blocks, sentences),
	}
}

// unit makes one sentence out of a whole block or row.
func unit(text string, span internal.Span) (internal.Sentence, bool) {
	raw := text[span.Start:span.End]
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return internal.Sentence{}, false
	}
	start := span.Start + strings.Index(raw, trimmed)
	return internal.Sentence{
		Span:       internal.Span{Start: start, End: start + len(trimmed)},
		Text:       trimmed,
		Chars:      uniseg.GraphemeClusterCount(trimmed),
		Words:      len(strings.Fields(trimmed)),
		Confidence: 1,
		Boundary:   internal.BoundaryBlock,
	}, true
}

// Len returns the number of sentences.
func (d *Document) Len() int { return len(d.Sentences) }

// SentenceAt returns the index of the sentence containing offset. Offsets
// between sentences resolve to the nearest preceding sentence; offsets
// before the first sentence resolve to it.
func (d *Document) SentenceAt(offset int) (int, bool) {
	n := len(d.Sentences)
	if n == 0 || offset < 0 || offset > len(d.Text) {
		return 0, false
	}
	k := sort.Search(n, func(i int) bool { return d.Sentences[i].Span.Start > offset })
	if k == 0 {
		return 0, true
	}
	return k - 1, true
}

// AverageChars is the mean sentence length in characters.
func (d *Document) AverageChars() float64 {
	if len(d.Sentences) == 0 {
		return 0
	}
	total := 0
	for _, s := range d.Sentences {
		total += s.Chars
	}
	return float64(total) / float64(len(d.Sentences))
}
