package profile

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonical(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"en", "en"},
		{"EN", "en"},
		{"es-MX", "es"},
		{"pt_BR", "pt"},
		{" de ", "de"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Canonical(tt.in))
		})
	}
}

func TestRegistry_BuiltinsAreRegistered(t *testing.T) {
	r := NewRegistry()
	assert.Equal(t, []string{"de", "en", "es", "fr", "it", "pt"}, r.Codes())

	for _, code := range r.Codes() {
		p, err := r.Lookup(code)
		require.NoError(t, err)
		assert.Equal(t, code, p.Code)
		assert.NotEqual(t, KindCustom, p.Kind)
		assert.NotEmpty(t, p.Patterns)
		for _, bp := range p.Patterns {
			assert.NotNil(t, bp.Regexp(), "pattern %s of %s not compiled", bp.Name, code)
		}
	}
}

func TestRegistry_LookupFallsBackToDefault(t *testing.T) {
	r := NewRegistry()

	p, err := r.Lookup("xx")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnsupportedLanguage))
	require.NotNil(t, p)
	assert.Equal(t, DefaultCode, p.Code)
}

func TestRegistry_LookupRegionalTag(t *testing.T) {
	p, err := NewRegistry().Lookup("es-AR")
	require.NoError(t, err)
	assert.Equal(t, KindSpanish, p.Kind)
	assert.True(t, p.InvertedPunctuation)
}

func TestProfile_IsAbbreviation(t *testing.T) {
	p, err := NewRegistry().Lookup("en")
	require.NoError(t, err)

	assert.True(t, p.IsAbbreviation("Dr"))
	assert.True(t, p.IsAbbreviation("e.g"))
	assert.False(t, p.IsAbbreviation("world"))
	assert.False(t, p.IsAbbreviation(""))
}

func TestExpectedRatio(t *testing.T) {
	r := NewRegistry()
	en, _ := r.Lookup("en")
	es, _ := r.Lookup("es")

	assert.InDelta(t, 95.0/85.0, ExpectedRatio(en, es), 1e-9)
	assert.InDelta(t, 1.0, ExpectedRatio(en, en), 1e-9)
	assert.Equal(t, 1.0, ExpectedRatio(nil, es))
}

func TestRegistry_LoadFileTOMLExtends(t *testing.T) {
	r := NewRegistry()
	p, err := r.LoadFile(filepath.Join("testdata", "ca.toml"))
	require.NoError(t, err)

	assert.Equal(t, "ca", p.Code)
	assert.Equal(t, KindCustom, p.Kind)
	assert.Equal(t, 98.0, p.AverageSentenceLength)
	assert.True(t, p.IsAbbreviation("pàg"))
	assert.True(t, p.IsAbbreviation("etc"), "abbreviations inherited from es")
	assert.True(t, r.Has("ca"))
}

func TestRegistry_LoadFileYAML(t *testing.T) {
	r := NewRegistry()
	p, err := r.LoadFile(filepath.Join("testdata", "uk.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "uk", p.Code)
	assert.Len(t, p.Patterns, 2)
	assert.Equal(t, 14.0, p.TypicalWordCount)
	assert.Equal(t, 30.0, p.LengthVariance, "variance derived from average length")
}

func TestRegistry_LoadFileRejectsBadPattern(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.toml")
	data := "code = \"zz\"\naverage_sentence_length = 50.0\n[[patterns]]\nname = \"broken\"\nexpr = \"([.\"\nspecificity = 0.5\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	_, err := NewRegistry().LoadFile(path)
	assert.Error(t, err)
}

func TestLatinPatterns_SpacedClosers(t *testing.T) {
	text := "Il a dit « Bonjour. » Puis il est parti."
	cut := len("Il a dit « Bonjour. »")

	fr, err := NewRegistry().Lookup("fr")
	require.NoError(t, err)
	re := fr.Patterns[0].Regexp()
	require.NotNil(t, re)
	m := re.FindStringSubmatchIndex(text)
	require.NotNil(t, m)
	assert.Equal(t, cut, m[3])

	en, err := NewRegistry().Lookup("en")
	require.NoError(t, err)
	assert.Nil(t, en.Patterns[0].Regexp().FindStringSubmatchIndex(text))
}

func TestRegistry_LoadFileSpacedPunctuation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "br.toml")
	data := "code = \"br\"\nname = \"Breton\"\nextends = \"en\"\nspaced_punctuation = true\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	p, err := NewRegistry().LoadFile(path)
	require.NoError(t, err)
	assert.True(t, p.SpacedPunctuation)
	m := p.Patterns[0].Regexp().FindStringSubmatchIndex("Demat « Salud. » Kenavo.")
	require.NotNil(t, m)
	assert.Equal(t, len("Demat « Salud. »"), m[3])
}

func TestRegistry_GermanOrdinalNumbers(t *testing.T) {
	de, err := NewRegistry().Lookup("de")
	require.NoError(t, err)
	assert.True(t, de.OrdinalNumbers)

	en, err := NewRegistry().Lookup("en")
	require.NoError(t, err)
	assert.False(t, en.OrdinalNumbers)
}

func TestRegistry_LoadDir(t *testing.T) {
	r := NewRegistry()
	loaded, err := r.LoadDir("testdata")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"ca", "uk"}, loaded)
}

func TestDefault_IsShared(t *testing.T) {
	assert.Same(t, Default(), Default())
}
