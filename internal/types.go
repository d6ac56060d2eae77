package internal

import "time"

// Span is a half-open byte range [Start, End) within a pane's content.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Len returns the number of bytes covered by the span.
func (s Span) Len() int { return s.End - s.Start }

// Contains reports whether offset falls inside the span. The end offset is
// treated as inside so a cursor parked after the final punctuation still
// belongs to the sentence.
func (s Span) Contains(offset int) bool {
	return offset >= s.Start && offset <= s.End
}

// BoundaryType is the kind of terminal punctuation that closed a sentence.
type BoundaryType int

const (
	BoundaryEndOfParagraph BoundaryType = iota
	BoundaryPeriod
	BoundaryQuestion
	BoundaryExclamation
	BoundaryEllipsis
	BoundaryBlock
)

func (b BoundaryType) String() string {
	switch b {
	case BoundaryPeriod:
		return "period"
	case BoundaryQuestion:
		return "question"
	case BoundaryExclamation:
		return "exclamation"
	case BoundaryEllipsis:
		return "ellipsis"
	case BoundaryBlock:
		return "block"
	default:
		return "end-of-paragraph"
	}
}

// Sentence is one detected sentence unit of a pane. Sentences are never
// mutated; a reparse replaces the whole list.
type Sentence struct {
	PaneID     string       `json:"pane_id,omitempty"`
	Index      int          `json:"index"`
	Span       Span         `json:"span"`
	Text       string       `json:"text"`
	Chars      int          `json:"chars"`
	Words      int          `json:"words"`
	Confidence float64      `json:"confidence"`
	Boundary   BoundaryType `json:"boundary"`
}

// Category is the structural class of a block of text.
type Category int

const (
	CategoryParagraph Category = iota
	CategoryHeading
	CategoryListItem
	CategoryCode
	CategoryTable
	CategoryQuote
	CategoryRule
)

func (c Category) String() string {
	switch c {
	case CategoryHeading:
		return "heading"
	case CategoryListItem:
		return "list-item"
	case CategoryCode:
		return "code"
	case CategoryTable:
		return "table"
	case CategoryQuote:
		return "quote"
	case CategoryRule:
		return "rule"
	default:
		return "paragraph"
	}
}

// ListKind distinguishes list item flavours.
type ListKind int

const (
	ListNone ListKind = iota
	ListOrdered
	ListUnordered
	ListTask
)

// StructureTag maps a sentence to the structural block it belongs to.
type StructureTag struct {
	SentenceIndex int      `json:"sentence_index"`
	Category      Category `json:"category"`
	Level         int      `json:"level,omitempty"`
	List          ListKind `json:"list,omitempty"`
	Nesting       int      `json:"nesting,omitempty"`
}

// CorrectionRecord is the audit form of a user alignment correction.
type CorrectionRecord struct {
	ID              string    `json:"id"`
	Project         string    `json:"project"`
	SourceLang      string    `json:"source_lang"`
	TargetLang      string    `json:"target_lang"`
	SourceIndex     int       `json:"source_index"`
	OriginalTarget  int       `json:"original_target"`
	CorrectedTarget int       `json:"corrected_target"`
	SourceText      string    `json:"source_text"`
	CorrectedText   string    `json:"corrected_text"`
	BaseConfidence  float64   `json:"base_confidence"`
	Revision        uint64    `json:"revision"`
	Reason          string    `json:"reason"`
	Timestamp       time.Time `json:"timestamp"`
}
