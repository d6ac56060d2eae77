// Package detector identifies the language of pane content.
package detector

import (
	"strings"
	"sync"

	lingua "github.com/pemistahl/lingua-go"
)

// Detector wraps a lingua detector. The underlying models are large, so the
// detector is built on first use and should be shared.
type Detector struct {
	languages []lingua.Language

	once     sync.Once
	detector lingua.LanguageDetector
}

// New creates a Detector restricted to the given ISO 639-1 codes. Unknown
// codes are ignored; fewer than two known codes selects every language.
func New(codes ...string) *Detector {
	var langs []lingua.Language
	for _, code := range codes {
		if l, ok := languageOf(code); ok {
			langs = append(langs, l)
		}
	}
	if len(langs) < 2 {
		langs = nil
	}
	return &Detector{languages: langs}
}

func languageOf(code string) (lingua.Language, bool) {
	code = strings.TrimSpace(code)
	if i := strings.IndexAny(code, "-_"); i > 0 {
		code = code[:i]
	}
	for _, l := range lingua.AllLanguages() {
		if strings.EqualFold(l.IsoCode639_1().String(), code) {
			return l, true
		}
	}
	return lingua.Unknown, false
}

func (d *Detector) build() lingua.LanguageDetector {
	d.once.Do(func() {
		b := lingua.NewLanguageDetectorBuilder()
		if d.languages != nil {
			d.detector = b.FromLanguages(d.languages...).Build()
		} else {
			d.detector = b.FromAllLanguages().Build()
		}
	})
	return d.detector
}

func (d *Detector) Detect(text string) (lingua.Language, bool) {
	if strings.TrimSpace(text) == "" {
		return lingua.Unknown, false
	}
	return d.build().DetectLanguageOf(text)
}

// DetectISO returns the lowercase ISO 639-1 code of text.
func (d *Detector) DetectISO(text string) (string, bool) {
	lang, ok := d.Detect(text)
	if !ok {
		return "", false
	}
	return strings.ToLower(lang.IsoCode639_1().String()), true
}
