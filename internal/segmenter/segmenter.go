// Package segmenter splits text into sentences using a language profile.
//
// Candidate boundaries come from the profile's ordered boundary patterns;
// earlier patterns win when two claim the same position. A candidate is
// suppressed when the word before a period is a registered abbreviation or
// a single-letter initial, when it sits inside an unclosed quotation or
// bracket, or when it falls inside masked inline content (code spans, URLs,
// HTML tags). Output is deterministic for identical input.
package segmenter

import (
	"math"
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/rivo/uniseg"

	"github.com/valpere/panesync/internal"
	"github.com/valpere/panesync/internal/markdown"
	"github.com/valpere/panesync/internal/placeholder"
	"github.com/valpere/panesync/internal/profile"
)

const (
	// paragraphEndConfidence is assigned to a sentence closed by the end of
	// its paragraph rather than by punctuation.
	paragraphEndConfidence = 0.9

	minConfidence = 0.1
)

var reParagraphBreak = regexp.MustCompile(`\n[ \t]*\n`)

// Segmenter resolves language codes to profiles and splits text.
type Segmenter struct {
	registry *profile.Registry
}

// New returns a Segmenter backed by r. A nil registry uses profile.Default().
func New(r *profile.Registry) *Segmenter {
	if r == nil {
		r = profile.Default()
	}
	return &Segmenter{registry: r}
}

// Result is the output of Detect.
type Result struct {
	Sentences []internal.Sentence
	Profile   *profile.Profile
	// Warning is non-nil when the language had no profile and the default
	// profile was used instead. It wraps profile.ErrUnsupportedLanguage.
	Warning error
}

// Detect splits text using the profile registered for lang.
func (s *Segmenter) Detect(text, lang string) Result {
	p, warn := s.registry.Lookup(lang)
	return Result{
		Sentences: Split(text, p),
		Profile:   p,
		Warning:   warn,
	}
}

// Profile resolves lang like Detect does.
func (s *Segmenter) Profile(lang string) (*profile.Profile, error) {
	return s.registry.Lookup(lang)
}

// Split splits the whole of text into sentences.
func Split(text string, p *profile.Profile) []internal.Sentence {
	out := SplitRange(text, internal.Span{Start: 0, End: len(text)}, p)
	for i := range out {
		out[i].Index = i
	}
	return out
}

// SplitRange splits text[span.Start:span.End]. Returned spans are offsets
// into text; Index is numbered from zero within the range.
func SplitRange(text string, span internal.Span, p *profile.Profile) []internal.Sentence {
	if span.Start < 0 {
		span.Start = 0
	}
	if span.End > len(text) {
		span.End = len(text)
	}
	if span.Start >= span.End {
		return nil
	}

	region := text[span.Start:span.End]
	masked := placeholder.Mask(region)

	var out []internal.Sentence
	for _, para := range paragraphs(masked) {
		for _, seg := range splitParagraph(region, masked, para, p) {
			seg.Span.Start += span.Start
			seg.Span.End += span.Start
			seg.Index = len(out)
			out = append(out, seg)
		}
	}
	return out
}

// paragraphs returns the blank-line separated ranges of s.
func paragraphs(s string) []internal.Span {
	var out []internal.Span
	start := 0
	for _, loc := range reParagraphBreak.FindAllStringIndex(s, -1) {
		if loc[0] > start {
			out = append(out, internal.Span{Start: start, End: loc[0]})
		}
		start = loc[1]
	}
	if start < len(s) {
		out = append(out, internal.Span{Start: start, End: len(s)})
	}
	return out
}

type candidate struct {
	punctStart  int
	cut         int
	specificity float64
	endOfText   bool
}

func splitParagraph(region, masked string, para internal.Span, p *profile.Profile) []internal.Sentence {
	body := masked[para.Start:para.End]

	claimed := make(map[int]candidate)
	for _, bp := range p.Patterns {
		re := bp.Regexp()
		if re == nil {
			continue
		}
		for _, m := range re.FindAllStringSubmatchIndex(body, -1) {
			if m[2] < 0 {
				continue
			}
			cut := para.Start + m[3]
			if _, ok := claimed[cut]; ok {
				continue
			}
			claimed[cut] = candidate{
				punctStart:  para.Start + m[2],
				cut:         cut,
				specificity: bp.Specificity,
				endOfText:   strings.TrimSpace(body[m[3]:]) == "",
			}
		}
	}

	cands := make([]candidate, 0, len(claimed))
	for _, c := range claimed {
		cands = append(cands, c)
	}
	sort.Slice(cands, func(i, j int) bool { return cands[i].cut < cands[j].cut })

	var out []internal.Sentence
	segStart := para.Start
	for _, c := range cands {
		if c.cut <= segStart {
			continue
		}
		if !c.endOfText && suppressed(masked, segStart, c, p) {
			continue
		}
		if s, ok := makeSentence(region, segStart, c.cut, confidenceFor(masked, segStart, c), boundaryOf(masked[c.punctStart:c.cut]), p); ok {
			out = append(out, s)
		}
		segStart = c.cut
	}

	if segStart < para.End {
		if s, ok := makeSentence(region, segStart, para.End, paragraphEndConfidence, internal.BoundaryEndOfParagraph, p); ok {
			out = append(out, s)
		}
	}
	return out
}

// suppressed reports whether candidate c is a false boundary.
func suppressed(masked string, segStart int, c candidate, p *profile.Profile) bool {
	punct := masked[c.punctStart:c.cut]
	if strings.HasPrefix(punct, ".") && !strings.HasPrefix(punct, "..") {
		word := wordBefore(masked, c.punctStart)
		if p.IsAbbreviation(word) {
			return true
		}
		if isInitial(word) {
			return true
		}
		if p.OrdinalNumbers && isOrdinal(word) {
			return true
		}
	}
	return openContext(masked[segStart:c.cut]) > 0
}

// wordBefore returns the run of letters and inner periods that ends at pos.
func wordBefore(s string, pos int) string {
	i := pos
	for i > 0 {
		r, size := utf8.DecodeLastRuneInString(s[:i])
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '.' || r == placeholder.Filler || r == '-' {
			i -= size
			continue
		}
		break
	}
	return strings.Trim(s[i:pos], ".")
}

func isInitial(word string) bool {
	if utf8.RuneCountInString(word) != 1 {
		return false
	}
	r, _ := utf8.DecodeRuneInString(word)
	return unicode.IsUpper(r)
}

// isOrdinal reports whether word is a one or two digit number, as in the
// German "3. Oktober".
func isOrdinal(word string) bool {
	if len(word) == 0 || len(word) > 2 {
		return false
	}
	for i := 0; i < len(word); i++ {
		if word[i] < '0' || word[i] > '9' {
			return false
		}
	}
	return true
}

// openContext returns the nesting depth of quotes and brackets left open at
// the end of s.
func openContext(s string) int {
	depth := 0
	straight := false
	for _, r := range s {
		switch r {
		case '(', '[', '{', '“', '«', '„':
			depth++
		case ')', ']', '}', '”', '»':
			if depth > 0 {
				depth--
			}
		case '"':
			straight = !straight
		}
	}
	if straight {
		depth++
	}
	return depth
}

func confidenceFor(masked string, segStart int, c candidate) float64 {
	conf := c.specificity
	punct := masked[c.punctStart:c.cut]
	if strings.ContainsAny(punct, "\"”»)]'’") {
		// the sentence closed its own quotation or bracket
		conf += 0.05
	}
	if strings.Contains(punct, "...") || strings.Contains(punct, "…") {
		conf -= 0.1
	}
	if len(strings.Fields(masked[segStart:c.cut])) < 2 {
		conf -= 0.15
	}
	return conf
}

func boundaryOf(punct string) internal.BoundaryType {
	switch {
	case strings.ContainsAny(punct, "?？"):
		return internal.BoundaryQuestion
	case strings.ContainsAny(punct, "!！"):
		return internal.BoundaryExclamation
	case strings.Contains(punct, "...") || strings.Contains(punct, "…"):
		return internal.BoundaryEllipsis
	default:
		return internal.BoundaryPeriod
	}
}

// makeSentence trims whitespace from region[start:end] and fills in the
// length statistics. It returns false for whitespace-only ranges.
func makeSentence(region string, start, end int, conf float64, bt internal.BoundaryType, p *profile.Profile) (internal.Sentence, bool) {
	raw := region[start:end]
	trimmedLeft := strings.TrimLeftFunc(raw, unicode.IsSpace)
	start += len(raw) - len(trimmedLeft)
	text := strings.TrimRightFunc(trimmedLeft, unicode.IsSpace)
	end = start + len(text)
	if text == "" {
		return internal.Sentence{}, false
	}

	plain := markdown.PlainText(text)
	chars := uniseg.GraphemeClusterCount(plain)
	words := len(strings.Fields(plain))

	return internal.Sentence{
		Span:       internal.Span{Start: start, End: end},
		Text:       text,
		Chars:      chars,
		Words:      words,
		Confidence: blend(conf, chars, words, p),
		Boundary:   bt,
	}, true
}

// blend mixes the boundary evidence with how typical the sentence length
// is for the language.
func blend(conf float64, chars, words int, p *profile.Profile) float64 {
	lengthFit := 1.0
	if p.LengthVariance > 0 {
		dev := math.Abs(float64(chars)-p.AverageSentenceLength) / p.LengthVariance
		lengthFit = 1 - math.Min(dev/3, 1)
	}
	wordFit := 1.0
	if p.TypicalWordCount > 0 {
		dev := math.Abs(float64(words)-p.TypicalWordCount) / (p.TypicalWordCount * 0.5)
		wordFit = 1 - math.Min(dev/2, 1)
	}
	return Clamp(conf*0.8+lengthFit*0.1+wordFit*0.1, minConfidence, 1)
}

// Clamp limits v to [lo, hi]. NaN maps to lo.
func Clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) || v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
