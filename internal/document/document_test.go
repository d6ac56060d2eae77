package document_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valpere/panesync/internal"
	"github.com/valpere/panesync/internal/document"
	"github.com/valpere/panesync/internal/profile"
)

func english(t *testing.T) *profile.Profile {
	t.Helper()
	p, err := profile.Default().Lookup("en")
	require.NoError(t, err)
	return p
}

func TestParse_PlainText(t *testing.T) {
	doc := document.Parse("pane-1", "Hello world! How are you today? I hope you're doing well.", english(t))
	require.Equal(t, 3, doc.Len())
	for i, s := range doc.Sentences {
		assert.Equal(t, i, s.Index)
		assert.Equal(t, "pane-1", s.PaneID)
	}
	require.Len(t, doc.Tags, 3)
	for _, tag := range doc.Tags {
		assert.Equal(t, internal.CategoryParagraph, tag.Category)
	}
}

func TestParse_BlocksBecomeUnits(t *testing.T) {
	text := "# Guide\n\n" +
		"Run the tool. Then check output.\n\n" +
		"```\nmake build. make test.\n```\n\n" +
		"| Name | Value |\n|------|-------|\n| a. b | c. D |\n"

	doc := document.Parse("p", text, english(t))
	got := make([]string, doc.Len())
	for i, s := range doc.Sentences {
		got[i] = s.Text
	}
	assert.Equal(t, []string{
		"Guide",
		"Run the tool.",
		"Then check output.",
		"```\nmake build. make test.\n```",
		"| Name | Value |",
		"| a. b | c. D |",
	}, got)

	assert.Equal(t, internal.CategoryHeading, doc.Tags[0].Category)
	assert.Equal(t, internal.CategoryCode, doc.Tags[3].Category)
	assert.Equal(t, internal.BoundaryBlock, doc.Sentences[3].Boundary)
	assert.Equal(t, internal.CategoryTable, doc.Tags[5].Category)
}

func TestParse_ListItems(t *testing.T) {
	doc := document.Parse("p", "1. First step.\n2. Second step.", english(t))
	require.Equal(t, 2, doc.Len())
	assert.Equal(t, "First step.", doc.Sentences[0].Text)
	assert.Equal(t, internal.ListOrdered, doc.Tags[1].List)
}

func TestSentenceAt(t *testing.T) {
	text := "One two. Three four."
	doc := document.Parse("p", text, english(t))
	require.Equal(t, 2, doc.Len())

	idx, ok := doc.SentenceAt(0)
	assert.True(t, ok)
	assert.Equal(t, 0, idx)

	idx, ok = doc.SentenceAt(8) // the space between sentences
	assert.True(t, ok)
	assert.Equal(t, 0, idx)

	idx, ok = doc.SentenceAt(len(text))
	assert.True(t, ok)
	assert.Equal(t, 1, idx)

	_, ok = doc.SentenceAt(len(text) + 1)
	assert.False(t, ok)
}

func TestParse_Empty(t *testing.T) {
	doc := document.Parse("p", "", english(t))
	assert.Equal(t, 0, doc.Len())
	assert.Zero(t, doc.AverageChars())
	_, ok := doc.SentenceAt(0)
	assert.False(t, ok)
}
