// Package profile holds the per-language data used to segment text and to
// estimate expected sentence lengths: boundary patterns, abbreviation
// exceptions and simple length statistics.
//
// Profiles form a closed set of built-in variants plus a Custom variant
// loaded from TOML or YAML files. Lookups always succeed: an unknown code
// falls back to the default (English) profile and reports the fallback.
package profile

import (
	"fmt"
	"regexp"
	"strings"
)

// Kind identifies which variant a profile is.
type Kind int

const (
	KindEnglish Kind = iota
	KindSpanish
	KindFrench
	KindGerman
	KindItalian
	KindPortuguese
	KindCustom
)

func (k Kind) String() string {
	switch k {
	case KindEnglish:
		return "english"
	case KindSpanish:
		return "spanish"
	case KindFrench:
		return "french"
	case KindGerman:
		return "german"
	case KindItalian:
		return "italian"
	case KindPortuguese:
		return "portuguese"
	default:
		return "custom"
	}
}

// DefaultCode is the language code of the fallback profile.
const DefaultCode = "en"

// BoundaryPattern is one ordered sentence boundary rule. The first capture
// group of Expr must cover the terminal punctuation (plus any closing quotes
// or brackets); the sentence ends where that group ends.
type BoundaryPattern struct {
	Name        string  `toml:"name" yaml:"name" json:"name"`
	Expr        string  `toml:"expr" yaml:"expr" json:"expr"`
	Specificity float64 `toml:"specificity" yaml:"specificity" json:"specificity"`

	re *regexp.Regexp
}

// Regexp returns the compiled expression.
func (p BoundaryPattern) Regexp() *regexp.Regexp { return p.re }

// Profile is an immutable language profile. Callers must treat the slices
// as read-only.
type Profile struct {
	Code                  string
	Name                  string
	Kind                  Kind
	Patterns              []BoundaryPattern
	Abbreviations         []string
	AverageSentenceLength float64
	LengthVariance        float64
	TypicalWordCount      float64
	InvertedPunctuation   bool
	// SpacedPunctuation allows a space between a sentence and its closing
	// guillemet or quote, as in « Bonjour. ».
	SpacedPunctuation bool
	// OrdinalNumbers treats a period after a one or two digit number as an
	// ordinal marker ("am 3. Oktober"), not a sentence end.
	OrdinalNumbers bool

	abbrev map[string]struct{}
}

// IsAbbreviation reports whether word (without its trailing period) is a
// registered abbreviation. The comparison is case-insensitive.
func (p *Profile) IsAbbreviation(word string) bool {
	if word == "" {
		return false
	}
	_, ok := p.abbrev[strings.ToLower(word)]
	return ok
}

// ExpectedRatio returns the expected target/source sentence length ratio.
func ExpectedRatio(source, target *Profile) float64 {
	if source == nil || target == nil || source.AverageSentenceLength <= 0 || target.AverageSentenceLength <= 0 {
		return 1
	}
	return target.AverageSentenceLength / source.AverageSentenceLength
}

// compile validates the profile and builds its lookup structures.
func (p *Profile) compile() error {
	if p.Code == "" {
		return fmt.Errorf("profile code is empty")
	}
	if len(p.Patterns) == 0 {
		return fmt.Errorf("profile %s: no boundary patterns", p.Code)
	}
	if p.AverageSentenceLength <= 0 {
		return fmt.Errorf("profile %s: average sentence length must be positive", p.Code)
	}
	if p.LengthVariance <= 0 {
		p.LengthVariance = p.AverageSentenceLength / 3
	}
	if p.TypicalWordCount <= 0 {
		p.TypicalWordCount = p.AverageSentenceLength / 5.5
	}

	patterns := make([]BoundaryPattern, len(p.Patterns))
	for i, bp := range p.Patterns {
		re, err := regexp.Compile(bp.Expr)
		if err != nil {
			return fmt.Errorf("profile %s: pattern %q: %w", p.Code, bp.Name, err)
		}
		if re.NumSubexp() < 1 {
			return fmt.Errorf("profile %s: pattern %q needs a capture group", p.Code, bp.Name)
		}
		if bp.Specificity <= 0 || bp.Specificity > 1 {
			return fmt.Errorf("profile %s: pattern %q specificity must be in (0,1]", p.Code, bp.Name)
		}
		bp.re = re
		patterns[i] = bp
	}
	p.Patterns = patterns

	p.abbrev = make(map[string]struct{}, len(p.Abbreviations))
	for _, a := range p.Abbreviations {
		a = strings.ToLower(strings.TrimSuffix(strings.TrimSpace(a), "."))
		if a != "" {
			p.abbrev[a] = struct{}{}
		}
	}
	return nil
}

// terminal punctuation shared by the built-in patterns
const (
	terminals = `[.!?…。！？]+`
	closers   = `["'”’»)\]]*`
	openers   = `["'“‘«(¿¡]?`

	// French typography separates guillemets from their content with a
	// (narrow) no-break space, which \s does not match.
	space         = `[\s\x{00A0}\x{202F}]`
	spacedClosers = `(?:["'”’»)\]]|` + space + `[»”])*`
	spacedOpeners = `(?:["'“‘«(¿¡]` + space + `?)?`
)

func latinPatterns(upper string, spaced bool) []BoundaryPattern {
	closing, opening := closers, openers
	if spaced {
		closing, opening = spacedClosers, spacedOpeners
	}
	return []BoundaryPattern{
		{Name: "capitalized", Expr: `(` + terminals + closing + `)\s+` + opening + `[` + upper + `]`, Specificity: 0.9},
		{Name: "end-of-text", Expr: `(` + terminals + closing + `)\s*$`, Specificity: 0.9},
		{Name: "digit", Expr: `(` + terminals + closing + `)\s+[0-9]`, Specificity: 0.65},
		{Name: "lowercase", Expr: `([!?…]+` + closing + `)\s+\p{Ll}`, Specificity: 0.55},
	}
}

func english() Profile {
	return Profile{
		Code:     "en",
		Name:     "English",
		Kind:     KindEnglish,
		Patterns: latinPatterns(`\p{Lu}`, false),
		Abbreviations: []string{
			"mr", "mrs", "ms", "dr", "prof", "inc", "ltd", "corp", "etc", "vs",
			"e.g", "i.e", "st", "jr", "sr", "no", "fig", "approx", "dept",
		},
		AverageSentenceLength: 85,
		LengthVariance:        25,
		TypicalWordCount:      15,
	}
}

func spanish() Profile {
	return Profile{
		Code:     "es",
		Name:     "Spanish",
		Kind:     KindSpanish,
		Patterns: latinPatterns(`\p{Lu}ÁÉÍÓÚÑ`, false),
		Abbreviations: []string{
			"sr", "sra", "srta", "dr", "dra", "prof", "s.a", "s.l", "etc", "p.ej",
			"ud", "uds", "núm", "pág",
		},
		AverageSentenceLength: 95,
		LengthVariance:        30,
		TypicalWordCount:      18,
		InvertedPunctuation:   true,
	}
}

func french() Profile {
	return Profile{
		Code:     "fr",
		Name:     "French",
		Kind:     KindFrench,
		Patterns: latinPatterns(`\p{Lu}ÀÂÄÉÈÊËÏÎÔÖÙÛÜÇ`, true),
		Abbreviations: []string{
			"m", "mme", "mlle", "dr", "prof", "sarl", "sa", "etc", "p.ex", "c.-à-d", "cf",
		},
		AverageSentenceLength: 100,
		LengthVariance:        35,
		TypicalWordCount:      20,
		SpacedPunctuation:     true,
	}
}

func german() Profile {
	return Profile{
		Code:     "de",
		Name:     "German",
		Kind:     KindGerman,
		Patterns: latinPatterns(`\p{Lu}ÄÖÜ`, false),
		Abbreviations: []string{
			"dr", "prof", "gmbh", "ag", "etc", "z.b", "d.h", "usw", "bzw", "ca", "nr", "s",
		},
		AverageSentenceLength: 110,
		LengthVariance:        40,
		TypicalWordCount:      22,
		OrdinalNumbers:        true,
	}
}

func italian() Profile {
	return Profile{
		Code:     "it",
		Name:     "Italian",
		Kind:     KindItalian,
		Patterns: latinPatterns(`\p{Lu}ÀÈÉÌÒÙ`, false),
		Abbreviations: []string{
			"sig", "sigg", "sig.ra", "dott", "prof", "ecc", "es", "pag", "spa", "srl",
		},
		AverageSentenceLength: 95,
		LengthVariance:        30,
		TypicalWordCount:      18,
	}
}

func portuguese() Profile {
	return Profile{
		Code:     "pt",
		Name:     "Portuguese",
		Kind:     KindPortuguese,
		Patterns: latinPatterns(`\p{Lu}ÁÂÃÀÉÊÍÓÔÕÚÇ`, false),
		Abbreviations: []string{
			"sr", "sra", "dr", "dra", "prof", "etc", "ex", "pág", "ltda", "av",
		},
		AverageSentenceLength: 92,
		LengthVariance:        30,
		TypicalWordCount:      17,
	}
}

// builtins returns freshly built copies of every built-in variant.
func builtins() []Profile {
	return []Profile{english(), spanish(), french(), german(), italian(), portuguese()}
}
