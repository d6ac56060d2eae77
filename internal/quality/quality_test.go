package quality_test

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valpere/panesync/internal/align"
	"github.com/valpere/panesync/internal/document"
	"github.com/valpere/panesync/internal/profile"
	"github.com/valpere/panesync/internal/quality"
)

func parse(t *testing.T, lang, text string) *document.Document {
	t.Helper()
	p, err := profile.Default().Lookup(lang)
	require.NoError(t, err)
	return document.Parse(lang, text, p)
}

func compute(t *testing.T, srcLang, src, tgtLang, tgt string) (align.Result, quality.Indicator) {
	t.Helper()
	in := align.Input{Source: parse(t, srcLang, src), Target: parse(t, tgtLang, tgt)}
	res, err := align.NewEngine(align.DefaultConfig()).Align(context.Background(), in)
	require.NoError(t, err)
	ind := quality.NewCalculator(quality.DefaultConfig()).Compute(quality.Input{Result: res, Source: in.Source, Target: in.Target})
	return res, ind
}

func assertUnitRange(t *testing.T, ind quality.Indicator) {
	t.Helper()
	for name, v := range map[string]float64{
		"overall":    ind.Overall,
		"position":   ind.PositionConsistency,
		"length":     ind.LengthRatioConsistency,
		"structure":  ind.StructuralCoherence,
		"validation": ind.ValidationRate,
	} {
		assert.GreaterOrEqual(t, v, 0.0, name)
		assert.LessOrEqual(t, v, 1.0, name)
	}
	for _, p := range ind.Problems {
		assert.GreaterOrEqual(t, p.Severity, 0.0)
		assert.LessOrEqual(t, p.Severity, 1.0)
	}
}

func TestCompute_ParallelTexts(t *testing.T) {
	_, ind := compute(t,
		"en", "Hello world! How are you today? I hope you're doing well.",
		"es", "¡Hola mundo! ¿Cómo estás hoy? Espero que estés bien.")

	assert.Greater(t, ind.Overall, 0.8)
	assert.Equal(t, 1.0, ind.PositionConsistency)
	assert.Equal(t, 1.0, ind.StructuralCoherence)
	assert.Empty(t, ind.Problems)
}

func TestCompute_MissingSentence(t *testing.T) {
	_, ind := compute(t,
		"en", "Hello world! How are you today? I hope you're doing well.",
		"es", "¡Hola mundo! Espero que estés bien.")

	require.Equal(t, 1, ind.Count(quality.MissingSentence))
	var missing quality.Problem
	for _, p := range ind.Problems {
		if p.Issue == quality.MissingSentence {
			missing = p
		}
	}
	assert.Equal(t, 1, missing.SentenceIndex)
	assert.Equal(t, quality.SideSource, missing.Side)
	assert.False(t, missing.AutoFixable)
	assert.NotEmpty(t, missing.Suggestion)
	assert.Less(t, ind.StructuralCoherence, 1.0)
}

func TestCompute_ExtraSentence(t *testing.T) {
	_, ind := compute(t,
		"en", "Hello world! I hope you're doing well.",
		"es", "¡Hola mundo! ¿Cómo estás hoy? Espero que estés bien.")

	require.Equal(t, 1, ind.Count(quality.ExtraSentence))
	for _, p := range ind.Problems {
		if p.Issue == quality.ExtraSentence {
			assert.Equal(t, quality.SideTarget, p.Side)
			assert.Equal(t, 1, p.SentenceIndex)
			assert.False(t, p.AutoFixable)
		}
	}
}

func TestCompute_LengthMismatchIsAutoFixable(t *testing.T) {
	_, ind := compute(t,
		"en", "Hi.",
		"en", "This target sentence is far far longer than its tiny source sentence.")

	require.Equal(t, 1, ind.Count(quality.LengthMismatch))
	for _, p := range ind.Problems {
		if p.Issue == quality.LengthMismatch || p.Issue == quality.BoundaryDetectionError {
			assert.True(t, p.AutoFixable, p.Issue.String())
		}
	}
	assert.Equal(t, 1, ind.Count(quality.BoundaryDetectionError))
	assertUnitRange(t, ind)
}

func TestCompute_StructuralDivergence(t *testing.T) {
	_, ind := compute(t,
		"en", "# Introduction\n\nThis guide explains the setup.",
		"en", "Introduction\n\nThis guide explains the setup.")

	assert.Equal(t, 1, ind.Count(quality.StructuralDivergence))
	assert.InDelta(t, 0.5, ind.StructuralCoherence, 1e-9)
}

func TestCompute_Empty(t *testing.T) {
	_, ind := compute(t, "en", "", "es", "")
	assert.Equal(t, quality.Indicator{}, ind)

	_, ind = compute(t, "en", "", "es", "¡Hola! Adiós.")
	assert.Zero(t, ind.Overall)
	assert.Equal(t, 2, ind.Count(quality.ExtraSentence))
}

func TestCompute_RangesForArbitraryInput(t *testing.T) {
	inputs := []string{
		"",
		" ",
		"no punctuation at all",
		"```\ncode only\n```",
		"| a | b |\n|---|---|\n| 1 | 2 |",
		"Mixed. **Bold** text! 42 items? `x.y` done…",
		strings.Repeat("Word. ", 30),
	}
	for i, src := range inputs {
		for j, tgt := range inputs {
			t.Run(fmt.Sprintf("%d-%d", i, j), func(t *testing.T) {
				_, ind := compute(t, "en", src, "fr", tgt)
				assertUnitRange(t, ind)
			})
		}
	}
}

func TestPositionConsistency_DecreasesWithReorderDistance(t *testing.T) {
	const n = 8
	sentences := make([]string, n)
	for i := range sentences {
		sentences[i] = fmt.Sprintf("Item %d is ready.", i+1)
	}
	source := strings.Join(sentences, " ")

	prev := 2.0
	for l := 1; l <= n; l++ {
		reordered := append([]string(nil), sentences...)
		for a, b := 0, l-1; a < b; a, b = a+1, b-1 {
			reordered[a], reordered[b] = reordered[b], reordered[a]
		}
		_, ind := compute(t, "en", source, "en", strings.Join(reordered, " "))

		assert.Less(t, ind.PositionConsistency, prev, "reorder distance %d", l)
		assert.InDelta(t, 1-float64(l-1)/float64(n-1), ind.PositionConsistency, 1e-9)
		if l > 1 {
			assert.Positive(t, ind.Count(quality.OrderMismatch))
		}
		prev = ind.PositionConsistency
	}
}

func TestPositionConsistency_DecreasesForReorderedProse(t *testing.T) {
	sentences := []string{
		"The morning train left early.",
		"Clouds gathered over the harbour.",
		"Children played near the fountain.",
		"Merchants opened their stalls.",
		"Bells rang across the valley.",
		"Evening brought a gentle rain.",
	}
	n := len(sentences)
	source := strings.Join(sentences, " ")

	prev := 2.0
	for l := 1; l <= n; l++ {
		reordered := append([]string(nil), sentences...)
		for a, b := 0, l-1; a < b; a, b = a+1, b-1 {
			reordered[a], reordered[b] = reordered[b], reordered[a]
		}
		_, ind := compute(t, "en", source, "en", strings.Join(reordered, " "))

		assert.Less(t, ind.PositionConsistency, prev, "reorder distance %d", l)
		assert.InDelta(t, 1-float64(l-1)/float64(n-1), ind.PositionConsistency, 1e-9)
		prev = ind.PositionConsistency
	}
}

func TestNewCalculator_WeightsFallback(t *testing.T) {
	cfg := quality.DefaultConfig()
	cfg.Weights = quality.Weights{}
	c := quality.NewCalculator(cfg)

	in := align.Input{
		Source: parse(t, "en", "One. Two."),
		Target: parse(t, "en", "One. Two."),
	}
	res, err := align.NewEngine(align.DefaultConfig()).Align(context.Background(), in)
	require.NoError(t, err)
	ind := c.Compute(quality.Input{Result: res, Source: in.Source, Target: in.Target})
	assert.InDelta(t, 1.0, ind.Overall, 1e-9)
}

func TestCustomWeights(t *testing.T) {
	cfg := quality.DefaultConfig()
	cfg.Weights = quality.Weights{Structure: 1}
	c := quality.NewCalculator(cfg)

	in := align.Input{
		Source: parse(t, "en", "# Title\n\nBody."),
		Target: parse(t, "en", "Title\n\nBody."),
	}
	res, err := align.NewEngine(align.DefaultConfig()).Align(context.Background(), in)
	require.NoError(t, err)
	ind := c.Compute(quality.Input{Result: res, Source: in.Source, Target: in.Target})
	assert.InDelta(t, ind.StructuralCoherence, ind.Overall, 1e-12)
}

func TestMergeAndChanged(t *testing.T) {
	a := quality.Indicator{Overall: 1, PositionConsistency: 1, Problems: []quality.Problem{{Issue: quality.OrderMismatch}}}
	b := quality.Indicator{Overall: 0.5}
	m := quality.Merge([]quality.Indicator{a, b})
	assert.InDelta(t, 0.75, m.Overall, 1e-12)
	assert.InDelta(t, 0.5, m.PositionConsistency, 1e-12)
	assert.Len(t, m.Problems, 1)

	assert.Equal(t, quality.Indicator{}, quality.Merge(nil))
	assert.True(t, quality.Changed(a, b, 1e-9))
	assert.False(t, quality.Changed(a, a, 1e-9))
}

func TestIssue(t *testing.T) {
	fixable := map[quality.Issue]bool{
		quality.LengthMismatch:         true,
		quality.StructuralDivergence:   false,
		quality.MissingSentence:        false,
		quality.ExtraSentence:          false,
		quality.OrderMismatch:          false,
		quality.BoundaryDetectionError: true,
	}
	for issue, want := range fixable {
		assert.Equal(t, want, issue.AutoFixable(), issue.String())
	}
}
