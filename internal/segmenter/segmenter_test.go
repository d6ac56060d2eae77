package segmenter_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valpere/panesync/internal"
	"github.com/valpere/panesync/internal/profile"
	"github.com/valpere/panesync/internal/segmenter"
)

func texts(ss []internal.Sentence) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = s.Text
	}
	return out
}

func mustProfile(t *testing.T, code string) *profile.Profile {
	t.Helper()
	p, err := profile.Default().Lookup(code)
	require.NoError(t, err)
	return p
}

func TestSplit_English(t *testing.T) {
	got := segmenter.Split("Hello world! How are you today? I hope you're doing well.", mustProfile(t, "en"))
	assert.Equal(t, []string{
		"Hello world!",
		"How are you today?",
		"I hope you're doing well.",
	}, texts(got))

	assert.Equal(t, internal.BoundaryExclamation, got[0].Boundary)
	assert.Equal(t, internal.BoundaryQuestion, got[1].Boundary)
	assert.Equal(t, internal.BoundaryPeriod, got[2].Boundary)
	for i, s := range got {
		assert.Equal(t, i, s.Index)
	}
}

func TestSplit_Spanish(t *testing.T) {
	got := segmenter.Split("¡Hola mundo! ¿Cómo estás hoy? Espero que estés bien.", mustProfile(t, "es"))
	assert.Equal(t, []string{
		"¡Hola mundo!",
		"¿Cómo estás hoy?",
		"Espero que estés bien.",
	}, texts(got))
}

func TestSplit_SpansMatchText(t *testing.T) {
	text := "  First one.  Second one?\n\nThird paragraph here"
	got := segmenter.Split(text, mustProfile(t, "en"))
	require.Len(t, got, 3)
	for _, s := range got {
		assert.Equal(t, s.Text, text[s.Span.Start:s.Span.End])
	}
	assert.Equal(t, internal.BoundaryEndOfParagraph, got[2].Boundary)
}

func TestSplit_Suppression(t *testing.T) {
	tests := []struct {
		name string
		lang string
		text string
		want int
	}{
		{"abbreviation", "en", "Dr. Smith arrived late. He apologized.", 2},
		{"abbreviation case-insensitive", "en", "Talk to MR. Jones today. Thanks.", 2},
		{"initial", "en", "Written by J. Tolkien in England. It sold well.", 2},
		{"open quote", "en", "He said “Stop. Wait here” and left. Nobody moved.", 2},
		{"open bracket", "en", "The value (see Fig. 2. It is large) matters. Next.", 2},
		{"inline code", "en", "Call `os.Exit. Now` carefully. Done.", 2},
		{"url", "en", "Visit https://example.com/A.B now. Then return.", 2},
		{"spanish abbreviation", "es", "La Sra. García llegó. Todos sonrieron.", 2},
		{"german abbreviation", "de", "Das gilt z.B. Heute nicht. Morgen schon.", 2},
		{"closing quote keeps boundary", "en", "She said \"Go.\" Then she left.", 2},
		{"sentence ending in a url", "en", "Visit https://example.com/a.b. Then stop.", 2},
		{"sentence ending in an email", "en", "Write to team@example.org. We answer fast.", 2},
		{"sentence ending in code", "en", "Run `go test`. It passes.", 2},
		{"german ordinal date", "de", "Am 3. Oktober feiern wir. Dann ruhen wir.", 2},
		{"german two digit ordinal", "de", "Der 24. Dezember ist ein Mittwoch. Wir fahren.", 2},
		{"german year still ends", "de", "Das war 2023. Heute ist es anders.", 2},
		{"english number still ends", "en", "The answer is 42. Everyone agreed.", 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := segmenter.Split(tt.text, mustProfile(t, tt.lang))
			assert.Len(t, got, tt.want, "sentences: %q", texts(got))
		})
	}
}

func TestSplit_FrenchSpacedGuillemets(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"space", "Il a dit « Bonjour. » Puis il est parti."},
		{"no-break space", "Il a dit «\u00a0Bonjour.\u00a0» Puis il est parti."},
		{"narrow no-break space", "Il a dit «\u202fBonjour.\u202f» Puis il est parti."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := segmenter.Split(tt.text, mustProfile(t, "fr"))
			require.Len(t, got, 2, "sentences: %q", texts(got))
			assert.True(t, strings.HasSuffix(got[0].Text, "»"), "first sentence keeps its guillemet: %q", got[0].Text)
			assert.Equal(t, "Puis il est parti.", got[1].Text)
		})
	}
}

func TestSplit_FrenchSpacedOpener(t *testing.T) {
	got := segmenter.Split("Il hésita. « Vraiment ? » Oui, vraiment.", mustProfile(t, "fr"))
	assert.Equal(t, []string{"Il hésita.", "« Vraiment ? »", "Oui, vraiment."}, texts(got))
}

func TestSplit_LowercaseAfterQuestion(t *testing.T) {
	got := segmenter.Split("Really? yes, really.", mustProfile(t, "en"))
	assert.Len(t, got, 2)
}

func TestSplit_NoSplitBeforeLowercasePeriod(t *testing.T) {
	got := segmenter.Split("Version 2.5 is out. it works.", mustProfile(t, "en"))
	assert.Len(t, got, 1)
}

func TestSplit_Ellipsis(t *testing.T) {
	got := segmenter.Split("Well… Maybe later.", mustProfile(t, "en"))
	require.Len(t, got, 2)
	assert.Equal(t, internal.BoundaryEllipsis, got[0].Boundary)
}

func TestSplit_Empty(t *testing.T) {
	assert.Empty(t, segmenter.Split("", mustProfile(t, "en")))
	assert.Empty(t, segmenter.Split(" \n\n  ", mustProfile(t, "en")))
}

func TestSplit_ConfidenceRange(t *testing.T) {
	text := strings.Repeat("A short one. ", 20) + "x"
	for _, s := range segmenter.Split(text, mustProfile(t, "en")) {
		assert.GreaterOrEqual(t, s.Confidence, 0.1)
		assert.LessOrEqual(t, s.Confidence, 1.0)
	}
}

func TestSplit_Deterministic(t *testing.T) {
	text := "One. Two! Three? Dr. Four is here. «Five.» Six…"
	p := mustProfile(t, "fr")
	first := segmenter.Split(text, p)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, segmenter.Split(text, p))
	}
}

func TestSplit_CharsUsePlainText(t *testing.T) {
	got := segmenter.Split("This is **very** important.", mustProfile(t, "en"))
	require.Len(t, got, 1)
	assert.Equal(t, len("This is very important."), got[0].Chars)
	assert.Equal(t, 4, got[0].Words)
}

func TestSplitRange_Offsets(t *testing.T) {
	text := "# Title\n\nFirst. Second."
	span := internal.Span{Start: 9, End: len(text)}
	got := segmenter.SplitRange(text, span, mustProfile(t, "en"))
	require.Len(t, got, 2)
	assert.Equal(t, "First.", text[got[0].Span.Start:got[0].Span.End])
	assert.Equal(t, 1, got[1].Index)
}

func TestDetect_UnsupportedLanguageFallsBack(t *testing.T) {
	s := segmenter.New(nil)
	res := s.Detect("Hello there. General Kenobi.", "xx")
	require.Error(t, res.Warning)
	assert.True(t, errors.Is(res.Warning, profile.ErrUnsupportedLanguage))
	assert.Equal(t, profile.DefaultCode, res.Profile.Code)
	assert.Len(t, res.Sentences, 2)
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 0.1, segmenter.Clamp(-3, 0.1, 1))
	assert.Equal(t, 1.0, segmenter.Clamp(7, 0.1, 1))
	assert.Equal(t, 0.5, segmenter.Clamp(0.5, 0.1, 1))
}
