package profile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

// ErrUnsupportedLanguage marks a lookup that fell back to the default
// profile. It is a warning, never a failure.
var ErrUnsupportedLanguage = errors.New("unsupported language")

// Registry is a read-mostly, concurrency-safe set of profiles shared by all
// sessions.
type Registry struct {
	mu       sync.RWMutex
	profiles map[string]*Profile
	fallback *Profile
}

// NewRegistry returns a registry holding every built-in profile.
func NewRegistry() *Registry {
	r := &Registry{profiles: make(map[string]*Profile)}
	for _, p := range builtins() {
		p := p
		if err := p.compile(); err != nil {
			// built-in data is static; a failure here is a programming error
			panic(err)
		}
		r.profiles[p.Code] = &p
	}
	r.fallback = r.profiles[DefaultCode]
	return r
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
)

// Default returns the process-wide registry of built-in profiles.
func Default() *Registry {
	defaultOnce.Do(func() { defaultRegistry = NewRegistry() })
	return defaultRegistry
}

// Canonical reduces a language tag such as "es-MX" or "PT_br" to its base
// ISO 639-1 code. Unparseable input is lowercased and returned as-is.
func Canonical(code string) string {
	code = strings.TrimSpace(strings.ReplaceAll(code, "_", "-"))
	if code == "" {
		return ""
	}
	tag, err := language.Parse(code)
	if err != nil {
		return strings.ToLower(code)
	}
	base, conf := tag.Base()
	if conf == language.No {
		return strings.ToLower(code)
	}
	return base.String()
}

// Lookup returns the profile for code. When no profile is registered the
// default profile is returned together with an error wrapping
// ErrUnsupportedLanguage; the returned profile is always usable.
func (r *Registry) Lookup(code string) (*Profile, error) {
	c := Canonical(code)

	r.mu.RLock()
	p, ok := r.profiles[c]
	r.mu.RUnlock()

	if ok {
		return p, nil
	}
	return r.fallback, fmt.Errorf("%w: %q, using %s profile", ErrUnsupportedLanguage, code, r.fallback.Code)
}

// Has reports whether a profile is registered for code.
func (r *Registry) Has(code string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.profiles[Canonical(code)]
	return ok
}

// Register adds or replaces a custom profile.
func (r *Registry) Register(p Profile) error {
	p.Code = Canonical(p.Code)
	p.Kind = KindCustom
	if err := p.compile(); err != nil {
		return err
	}
	r.mu.Lock()
	r.profiles[p.Code] = &p
	r.mu.Unlock()
	return nil
}

// Codes returns the registered language codes in sorted order.
func (r *Registry) Codes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	codes := make([]string, 0, len(r.profiles))
	for c := range r.profiles {
		codes = append(codes, c)
	}
	sort.Strings(codes)
	return codes
}

// fileProfile is the on-disk representation of a custom profile.
type fileProfile struct {
	Code                  string            `toml:"code" yaml:"code"`
	Name                  string            `toml:"name" yaml:"name"`
	Extends               string            `toml:"extends" yaml:"extends"`
	Patterns              []BoundaryPattern `toml:"patterns" yaml:"patterns"`
	Abbreviations         []string          `toml:"abbreviations" yaml:"abbreviations"`
	AverageSentenceLength float64           `toml:"average_sentence_length" yaml:"average_sentence_length"`
	LengthVariance        float64           `toml:"length_variance" yaml:"length_variance"`
	TypicalWordCount      float64           `toml:"typical_word_count" yaml:"typical_word_count"`
	InvertedPunctuation   bool              `toml:"inverted_punctuation" yaml:"inverted_punctuation"`
	SpacedPunctuation     bool              `toml:"spaced_punctuation" yaml:"spaced_punctuation"`
	OrdinalNumbers        bool              `toml:"ordinal_numbers" yaml:"ordinal_numbers"`
}

// LoadFile reads a custom profile from a .toml, .yaml or .yml file and
// registers it. A profile may extend a registered one; unset fields are
// inherited from the base.
func (r *Registry) LoadFile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read profile: %w", err)
	}

	var fp fileProfile
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(data), &fp); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", path, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &fp); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("unsupported profile format: %s", path)
	}

	p := Profile{Code: fp.Code, Name: fp.Name}
	if fp.Extends != "" {
		base, err := r.Lookup(fp.Extends)
		if err != nil {
			return nil, fmt.Errorf("profile %s extends %s: %w", fp.Code, fp.Extends, err)
		}
		p = *base
		p.Code, p.Name = fp.Code, fp.Name
		p.Patterns = append([]BoundaryPattern(nil), base.Patterns...)
		p.Abbreviations = append([]string(nil), base.Abbreviations...)
	}
	if len(fp.Patterns) > 0 {
		p.Patterns = fp.Patterns
	}
	p.Abbreviations = append(p.Abbreviations, fp.Abbreviations...)
	if fp.AverageSentenceLength > 0 {
		p.AverageSentenceLength = fp.AverageSentenceLength
	}
	if fp.LengthVariance > 0 {
		p.LengthVariance = fp.LengthVariance
	}
	if fp.TypicalWordCount > 0 {
		p.TypicalWordCount = fp.TypicalWordCount
	}
	p.InvertedPunctuation = p.InvertedPunctuation || fp.InvertedPunctuation
	if fp.SpacedPunctuation && !p.SpacedPunctuation && len(fp.Patterns) == 0 {
		p.Patterns = latinPatterns(`\p{Lu}`, true)
	}
	p.SpacedPunctuation = p.SpacedPunctuation || fp.SpacedPunctuation
	p.OrdinalNumbers = p.OrdinalNumbers || fp.OrdinalNumbers

	if err := r.Register(p); err != nil {
		return nil, err
	}
	out, _ := r.Lookup(p.Code)
	return out, nil
}

// LoadDir registers every profile file found directly inside dir. Errors
// from individual files are joined; valid files are still registered.
func (r *Registry) LoadDir(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read profile directory: %w", err)
	}
	var (
		loaded []string
		errs   []error
	)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".toml", ".yaml", ".yml":
		default:
			continue
		}
		p, err := r.LoadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			errs = append(errs, err)
			continue
		}
		loaded = append(loaded, p.Code)
	}
	return loaded, errors.Join(errs...)
}
