package align

import (
	"math"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/valpere/panesync/internal"
	"github.com/valpere/panesync/internal/document"
	"github.com/valpere/panesync/internal/learning"
	"github.com/valpere/panesync/internal/placeholder"
	"github.com/valpere/panesync/internal/profile"
)

var reNumber = regexp.MustCompile(`\p{Nd}+(?:[.,:]\p{Nd}+)*`)

// anchors returns the tokens of text that usually survive translation
// unchanged: numbers (separators dropped, so 1,000 and 1.000 agree) and
// protected literals such as code spans and URLs.
func anchors(text string) map[string]struct{} {
	set := make(map[string]struct{})
	masked := placeholder.Mask(text)
	for _, n := range reNumber.FindAllString(masked, -1) {
		n = strings.NewReplacer(".", "", ",", "", ":", "").Replace(n)
		set["#"+n] = struct{}{}
	}
	for _, lit := range placeholder.Literals(text) {
		set[lit] = struct{}{}
	}
	return set
}

var reWord = regexp.MustCompile(`[\p{L}\p{M}]+`)

// terms extends anchors with lexical tokens: words of at least four runes,
// and shorter capitalised words past the first one, taken as names. Both
// are NFC-normalized and lowercased. Identical sentences and cognates share
// them, which lets a reordered sentence find its counterpart.
func terms(text string) map[string]struct{} {
	set := anchors(text)
	masked := placeholder.Mask(text)
	for k, w := range reWord.FindAllString(masked, -1) {
		n := utf8.RuneCountInString(w)
		first, _ := utf8.DecodeRuneInString(w)
		if n >= 4 || (k > 0 && n >= 2 && unicode.IsUpper(first)) {
			set["w:"+strings.ToLower(norm.NFC.String(w))] = struct{}{}
		}
	}
	return set
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for k := range a {
		if _, ok := b[k]; ok {
			inter++
		}
	}
	return float64(inter) / float64(len(a)+len(b)-inter)
}

// scorer computes pair features for one Input.
type scorer struct {
	src, tgt   *document.Document
	n, m       int
	expected   float64
	weights    learning.Weights
	srcAnchors []map[string]struct{}
	tgtAnchors []map[string]struct{}
	srcTerms   []map[string]struct{}
	tgtTerms   []map[string]struct{}
}

func newScorer(in Input) *scorer {
	w, ok := in.Model.Weights.Normalized()
	if !ok {
		w = learning.DefaultWeights
	}
	s := &scorer{
		src:      in.Source,
		tgt:      in.Target,
		n:        in.Source.Len(),
		m:        in.Target.Len(),
		expected: profile.ExpectedRatio(in.Source.Profile, in.Target.Profile),
		weights:  w,
	}
	s.srcAnchors = make([]map[string]struct{}, s.n)
	s.srcTerms = make([]map[string]struct{}, s.n)
	for i, sent := range in.Source.Sentences {
		s.srcAnchors[i] = anchors(sent.Text)
		s.srcTerms[i] = terms(sent.Text)
	}
	s.tgtAnchors = make([]map[string]struct{}, s.m)
	s.tgtTerms = make([]map[string]struct{}, s.m)
	for j, sent := range in.Target.Sentences {
		s.tgtAnchors[j] = anchors(sent.Text)
		s.tgtTerms[j] = terms(sent.Text)
	}
	return s
}

func (s *scorer) position(i, j int) float64 {
	if s.n == 0 || s.m == 0 {
		return 0
	}
	d := math.Abs((float64(i)+0.5)/float64(s.n) - (float64(j)+0.5)/float64(s.m))
	return 1 - math.Min(d, 1)
}

// lengthDeviation is |actual/expected − 1| for the pair's character counts.
func (s *scorer) lengthDeviation(i, j int) float64 {
	return LengthDeviation(s.src.Sentences[i].Chars, s.tgt.Sentences[j].Chars, s.expected)
}

// LengthDeviation returns |(target/source)/expected − 1|. Two empty
// sentences do not deviate.
func LengthDeviation(sourceChars, targetChars int, expected float64) float64 {
	if sourceChars == 0 && targetChars == 0 {
		return 0
	}
	if expected <= 0 {
		expected = 1
	}
	actual := float64(targetChars) / math.Max(float64(sourceChars), 1)
	return math.Abs(actual/expected - 1)
}

func (s *scorer) length(i, j int) float64 {
	return 1 - math.Min(s.lengthDeviation(i, j)/2, 1)
}

func (s *scorer) structure(i, j int) float64 {
	a, b := s.src.Tags[i], s.tgt.Tags[j]
	tag := 0.0
	if a.Category == b.Category {
		tag = 0.5
		if a.Level == b.Level && a.List == b.List {
			tag = 1
		}
	}
	boundary := 0.0
	if s.src.Sentences[i].Boundary == s.tgt.Sentences[j].Boundary {
		boundary = 1
	}
	return 0.7*tag + 0.3*boundary
}

func (s *scorer) content(i, j int) float64 {
	return jaccard(s.srcAnchors[i], s.tgtAnchors[j])
}

// overlap is the term similarity used by anchored refinement.
func (s *scorer) overlap(i, j int) float64 {
	return jaccard(s.srcTerms[i], s.tgtTerms[j])
}

func (s *scorer) features(i, j int) learning.Features {
	if i < 0 || i >= s.n || j < 0 || j >= s.m {
		return learning.Features{}
	}
	return learning.Features{
		Position:  s.position(i, j),
		Length:    s.length(i, j),
		Structure: s.structure(i, j),
		Content:   s.content(i, j),
	}
}

func (s *scorer) score(i, j int) float64 {
	return s.features(i, j).Score(s.weights)
}

// CategoryMatch reports whether two structure tags share a category.
func CategoryMatch(a, b internal.StructureTag) bool { return a.Category == b.Category }
