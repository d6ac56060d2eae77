package structure_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valpere/panesync/internal"
	"github.com/valpere/panesync/internal/structure"
)

func categories(blocks []structure.Block) []internal.Category {
	out := make([]internal.Category, len(blocks))
	for i, b := range blocks {
		out[i] = b.Category
	}
	return out
}

func TestAnalyze_Mixed(t *testing.T) {
	text := "# Title\n" +
		"\n" +
		"Intro paragraph. Two sentences.\n" +
		"\n" +
		"- first\n" +
		"- second\n" +
		"  - nested\n" +
		"\n" +
		"```go\n" +
		"fmt.Println(\"x. y\")\n" +
		"```\n" +
		"\n" +
		"| a | b |\n" +
		"|---|---|\n" +
		"| 1 | 2 |\n" +
		"\n" +
		"> quoted text\n" +
		"\n" +
		"***\n"

	blocks := structure.Analyze(text)
	assert.Equal(t, []internal.Category{
		internal.CategoryHeading,
		internal.CategoryParagraph,
		internal.CategoryListItem,
		internal.CategoryListItem,
		internal.CategoryListItem,
		internal.CategoryCode,
		internal.CategoryTable,
		internal.CategoryQuote,
		internal.CategoryRule,
	}, categories(blocks))

	assert.Equal(t, 1, blocks[0].Level)
	assert.Equal(t, "Title", text[blocks[0].Content.Start:blocks[0].Content.End])

	assert.Equal(t, 0, blocks[2].Nesting)
	assert.Equal(t, 0, blocks[3].Nesting)
	assert.Equal(t, 1, blocks[4].Nesting)
	assert.Equal(t, "nested", text[blocks[4].Content.Start:blocks[4].Content.End])

	require.Len(t, blocks[6].Rows, 2)
	assert.Equal(t, "| 1 | 2 |", text[blocks[6].Rows[1].Start:blocks[6].Rows[1].End])
}

func TestAnalyze_Headings(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		level int
	}{
		{"atx h3", "### Third", 3},
		{"setext h1", "Main title\n==========", 1},
		{"setext h2", "Sub title\n---------", 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			blocks := structure.Analyze(tt.text)
			require.Len(t, blocks, 1)
			assert.Equal(t, internal.CategoryHeading, blocks[0].Category)
			assert.Equal(t, tt.level, blocks[0].Level)
		})
	}
}

func TestAnalyze_ListKinds(t *testing.T) {
	blocks := structure.Analyze("1. one\n2) two\n- [x] done\n* star")
	require.Len(t, blocks, 4)
	assert.Equal(t, internal.ListOrdered, blocks[0].List)
	assert.Equal(t, internal.ListOrdered, blocks[1].List)
	assert.Equal(t, internal.ListTask, blocks[2].List)
	assert.Equal(t, internal.ListUnordered, blocks[3].List)
}

func TestAnalyze_ListContinuation(t *testing.T) {
	text := "- item starts here\n  and continues.\n- next"
	blocks := structure.Analyze(text)
	require.Len(t, blocks, 2)
	assert.Equal(t, "item starts here\n  and continues.", text[blocks[0].Content.Start:blocks[0].Content.End])
}

func TestAnalyze_QuoteDepth(t *testing.T) {
	blocks := structure.Analyze("> outer\n> > inner")
	require.Len(t, blocks, 2)
	assert.Equal(t, 1, blocks[0].Level)
	assert.Equal(t, 2, blocks[1].Level)
	assert.Equal(t, 1, blocks[1].Nesting)
}

func TestAnalyze_IndentedCode(t *testing.T) {
	text := "Para.\n\n    code line\n    more\n\nAfter."
	blocks := structure.Analyze(text)
	assert.Equal(t, []internal.Category{
		internal.CategoryParagraph,
		internal.CategoryCode,
		internal.CategoryParagraph,
	}, categories(blocks))
}

func TestAnalyze_UnclosedFence(t *testing.T) {
	text := "~~~\nnever closed\nstill code"
	blocks := structure.Analyze(text)
	require.Len(t, blocks, 1)
	assert.Equal(t, internal.CategoryCode, blocks[0].Category)
	assert.Equal(t, len(text), blocks[0].Span.End)
}

func TestAnalyze_PipeWithoutDelimiterIsParagraph(t *testing.T) {
	blocks := structure.Analyze("a | b\nc | d")
	require.Len(t, blocks, 1)
	assert.Equal(t, internal.CategoryParagraph, blocks[0].Category)
}

func TestAnalyze_Empty(t *testing.T) {
	assert.Empty(t, structure.Analyze(""))
	assert.Empty(t, structure.Analyze("\n\n  \n"))
}

func TestTag(t *testing.T) {
	text := "## Head\n\nBody text."
	blocks := structure.Analyze(text)
	sentences := []internal.Sentence{
		{Span: internal.Span{Start: 3, End: 7}},
		{Span: internal.Span{Start: 9, End: 19}},
		{Span: internal.Span{Start: 100, End: 110}},
	}
	tags := structure.Tag(blocks, sentences)
	require.Len(t, tags, 3)
	assert.Equal(t, internal.CategoryHeading, tags[0].Category)
	assert.Equal(t, 2, tags[0].Level)
	assert.Equal(t, internal.CategoryParagraph, tags[1].Category)
	assert.Equal(t, internal.CategoryParagraph, tags[2].Category)
	assert.Equal(t, 2, tags[2].SentenceIndex)
}
