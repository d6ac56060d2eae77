package learning_test

import (
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valpere/panesync/internal/learning"
)

func sum(w learning.Weights) float64 {
	return w.Position + w.Length + w.Structure + w.Content
}

func TestNewModel_Defaults(t *testing.T) {
	m := learning.NewModel()
	assert.Equal(t, learning.DefaultWeights, m.Weights())
	snap := m.Snapshot()
	assert.Equal(t, learning.DefaultLearningRate, snap.LearningRate)
	assert.Zero(t, snap.Revision)
	assert.Empty(t, snap.History)
}

func TestWithWeights_Normalizes(t *testing.T) {
	m := learning.NewModel(learning.WithWeights(learning.Weights{Position: 2, Length: 1, Structure: 1}))
	w := m.Weights()
	assert.InDelta(t, 0.5, w.Position, 1e-12)
	assert.InDelta(t, 0.25, w.Length, 1e-12)
	assert.InDelta(t, 1, sum(w), 1e-12)
}

func TestLearn_MovesTowardCorrectedFeatures(t *testing.T) {
	m := learning.NewModel()
	before := m.Weights()
	after := m.Learn(learning.Correction{
		SourceText:      "Hello.",
		OriginalText:    "Adiós.",
		CorrectedText:   "Hola.",
		OriginalTarget:  1,
		CorrectedTarget: 0,
		Original:        learning.Features{Position: 1, Length: 0.2, Structure: 1, Content: 1},
		Corrected:       learning.Features{Position: 0.5, Length: 1, Structure: 1, Content: 1},
	})
	assert.Greater(t, after.Length, before.Length)
	assert.Less(t, after.Position, before.Position)
	assert.InDelta(t, 1, sum(after), 1e-12)
	assert.Equal(t, uint64(1), m.Revision())
}

func TestLearn_WeightsStayNormalized(t *testing.T) {
	m := learning.NewModel(learning.WithLearningRate(5))
	for i := 0; i < 50; i++ {
		w := m.Learn(learning.Correction{
			Original:  learning.Features{Position: 1, Length: 1, Structure: 1},
			Corrected: learning.Features{Content: 1},
		})
		assert.GreaterOrEqual(t, w.Position, 0.0)
		assert.GreaterOrEqual(t, w.Length, 0.0)
		assert.GreaterOrEqual(t, w.Structure, 0.0)
		assert.GreaterOrEqual(t, w.Content, 0.0)
		assert.InDelta(t, 1, sum(w), 1e-9)
	}
}

func TestLearn_ResetsWhenAllWeightsCollapse(t *testing.T) {
	m := learning.NewModel(learning.WithLearningRate(10))
	w := m.Learn(learning.Correction{
		Original: learning.Features{Position: 1, Length: 1, Structure: 1, Content: 1},
	})
	assert.Equal(t, learning.DefaultWeights, w)
}

func TestLearn_HistoryIsBounded(t *testing.T) {
	m := learning.NewModel(learning.WithHistoryCapacity(3))
	for i := 0; i < 5; i++ {
		m.Learn(learning.Correction{Source: i})
	}
	hist := m.Snapshot().History
	require.Len(t, hist, 3)
	assert.Equal(t, []int{2, 3, 4}, []int{hist[0].Source, hist[1].Source, hist[2].Source})
}

func TestLearn_PinsAndRejections(t *testing.T) {
	m := learning.NewModel()
	c := learning.Correction{
		SourceText:      "Good morning.",
		OriginalText:    "Buenas noches.",
		CorrectedText:   "Buenos días.",
		OriginalTarget:  2,
		CorrectedTarget: 1,
		BaseConfidence:  0.6,
	}

	var prev float64
	for k := 1; k <= 4; k++ {
		m.Learn(c)
		snap := m.Snapshot()
		pin, ok := snap.PinFor(learning.KeyOf(c.SourceText, c.CorrectedText))
		require.True(t, ok)
		assert.Equal(t, k, pin.Count)
		assert.InDelta(t, 0.6, pin.Base, 1e-12)
		assert.Greater(t, pin.Confidence(), prev)
		prev = pin.Confidence()

		assert.InDelta(t, math.Pow(0.5, float64(k)), snap.RejectionFactor(learning.KeyOf(c.SourceText, c.OriginalText)), 1e-12)
	}
}

func TestLearn_ReversedCorrectionDropsPin(t *testing.T) {
	m := learning.NewModel()
	m.Learn(learning.Correction{SourceText: "A.", OriginalText: "X.", CorrectedText: "Y.", OriginalTarget: 0, CorrectedTarget: 1})
	m.Learn(learning.Correction{SourceText: "A.", OriginalText: "Y.", CorrectedText: "X.", OriginalTarget: 1, CorrectedTarget: 0})

	snap := m.Snapshot()
	_, ok := snap.PinFor(learning.KeyOf("A.", "Y."))
	assert.False(t, ok)
	_, ok = snap.PinFor(learning.KeyOf("A.", "X."))
	assert.True(t, ok)
	assert.Equal(t, 1.0, snap.RejectionFactor(learning.KeyOf("A.", "X.")))
}

func TestSnapshot_IsACopy(t *testing.T) {
	m := learning.NewModel()
	m.Learn(learning.Correction{SourceText: "A.", CorrectedText: "B."})
	snap := m.Snapshot()
	snap.Pins[learning.KeyOf("Z.", "Z.")] = learning.Pin{Count: 9}

	_, ok := m.Snapshot().PinFor(learning.KeyOf("Z.", "Z."))
	assert.False(t, ok)
}

func TestReset(t *testing.T) {
	m := learning.NewModel()
	m.Learn(learning.Correction{Corrected: learning.Features{Length: 1}})
	m.Reset()
	snap := m.Snapshot()
	assert.Equal(t, learning.DefaultWeights, snap.Weights)
	assert.Empty(t, snap.History)
	assert.Equal(t, uint64(2), snap.Revision)
}

func TestSentenceHash(t *testing.T) {
	assert.Zero(t, learning.SentenceHash("  "))
	// NFC and NFD spellings of "é" hash the same.
	assert.Equal(t, learning.SentenceHash("caf\u00e9"), learning.SentenceHash("cafe\u0301"))
	assert.Equal(t, learning.SentenceHash(" Hola. "), learning.SentenceHash("Hola."))
}

func TestFeaturesScore(t *testing.T) {
	f := learning.Features{Position: 1, Length: 0.5, Structure: 0, Content: 1}
	assert.InDelta(t, 0.4+0.15+0.1, f.Score(learning.DefaultWeights), 1e-12)
	assert.Equal(t, 0.0, learning.Features{Position: math.NaN()}.Score(learning.DefaultWeights))
}

func TestWeightsValidate(t *testing.T) {
	assert.NoError(t, learning.DefaultWeights.Validate())
	assert.Error(t, learning.Weights{Position: -1, Length: 2}.Validate())
	assert.Error(t, learning.Weights{}.Validate())
}

func TestRegistry(t *testing.T) {
	r := learning.NewRegistry(learning.WithLearningRate(0.05))
	a := r.Model("docs", "en", "es-MX")
	b := r.Model("docs", "EN", "es")
	assert.Same(t, a, b)
	assert.NotSame(t, a, r.Model("docs", "en", "fr"))
	assert.Equal(t, 0.05, a.Snapshot().LearningRate)

	assert.Equal(t, []learning.PairKey{
		{Project: "docs", Source: "en", Target: "es"},
		{Project: "docs", Source: "en", Target: "fr"},
	}, r.Pairs())
}

func TestModel_ConcurrentLearnAndSnapshot(t *testing.T) {
	m := learning.NewModel()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			m.Learn(learning.Correction{Corrected: learning.Features{Length: 1}})
		}()
		go func() {
			defer wg.Done()
			_ = m.Snapshot()
		}()
	}
	wg.Wait()
	assert.Equal(t, uint64(8), m.Revision())
}
