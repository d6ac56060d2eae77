// Package structure classifies the lines of a Markdown document into
// structural blocks: headings, list items, code, tables, quotes, rules and
// paragraphs. The scanner is line oriented with one line of lookahead for
// setext headings and table delimiter rows.
package structure

import (
	"regexp"
	"sort"
	"strings"

	"github.com/valpere/panesync/internal"
)

// Block is one structural element of a document.
type Block struct {
	Category internal.Category
	Level    int
	List     internal.ListKind
	Nesting  int
	// Span covers the whole block including markers and underlines.
	Span internal.Span
	// Content is the part of Span that holds prose (after list markers,
	// heading hashes and the first quote marker).
	Content internal.Span
	// Rows holds the header and body rows of a table; the delimiter row is
	// not included.
	Rows []internal.Span
}

var (
	reATX       = regexp.MustCompile(`^ {0,3}(#{1,6})(?:[ \t]+|$)`)
	reSetext    = regexp.MustCompile(`^ {0,3}(=+|-+)[ \t]*$`)
	reRule      = regexp.MustCompile(`^ {0,3}(?:(?:-[ \t]*){3,}|(?:\*[ \t]*){3,}|(?:_[ \t]*){3,})$`)
	reFence     = regexp.MustCompile("^ {0,3}(`{3,}|~{3,})")
	reListItem  = regexp.MustCompile(`^([ \t]*)([-*+]|\d{1,9}[.)])(?:[ \t]+|$)(\[[ xX]\](?:[ \t]+|$))?`)
	reQuote     = regexp.MustCompile(`^ {0,3}>`)
	reDelimiter = regexp.MustCompile(`^[ \t]*\|?[ \t]*:?-+:?[ \t]*(?:\|[ \t]*:?-+:?[ \t]*)*\|?[ \t]*$`)
)

type line struct {
	start, end int // end excludes the newline
	text       string
}

func (l line) blank() bool { return strings.TrimSpace(l.text) == "" }

func splitLines(text string) []line {
	var out []line
	start := 0
	for start <= len(text) {
		i := strings.IndexByte(text[start:], '\n')
		if i < 0 {
			if start < len(text) {
				out = append(out, line{start: start, end: len(text), text: text[start:]})
			}
			break
		}
		end := start + i
		t := text[start:end]
		out = append(out, line{start: start, end: end, text: strings.TrimSuffix(t, "\r")})
		start = end + 1
	}
	return out
}

// indentWidth returns the indentation of s in columns (tab stops of 4).
func indentWidth(s string) int {
	w := 0
	for _, r := range s {
		switch r {
		case ' ':
			w++
		case '\t':
			w += 4 - w%4
		default:
			return w
		}
	}
	return w
}

// Analyze scans text and returns its blocks in document order.
func Analyze(text string) []Block {
	a := analyzer{lines: splitLines(text)}
	a.run()
	return a.blocks
}

type analyzer struct {
	lines  []line
	blocks []Block

	listIndents []int
	inList      bool
	lastItem    int // index in blocks of the current list item, -1 if none
	prevBlank   bool
}

func (a *analyzer) emit(b Block) {
	a.blocks = append(a.blocks, b)
	if b.Category != internal.CategoryListItem {
		a.inList = false
		a.listIndents = a.listIndents[:0]
		a.lastItem = -1
	}
}

func (a *analyzer) run() {
	a.lastItem = -1
	a.prevBlank = true
	i := 0
	for i < len(a.lines) {
		l := a.lines[i]
		if l.blank() {
			a.prevBlank = true
			i++
			continue
		}
		i = a.block(i)
		a.prevBlank = false
	}
}

// block consumes the block starting at line i and returns the next line.
func (a *analyzer) block(i int) int {
	l := a.lines[i]

	if m := reFence.FindStringSubmatch(l.text); m != nil {
		return a.fenced(i, m[1])
	}

	if a.inList && !a.prevBlank && !startsBlock(a.lines, i) {
		// lazy continuation of the current list item
		a.extendItem(l)
		return i + 1
	}
	if a.inList && indentWidth(l.text) > a.itemIndent() && reListItem.FindStringIndex(l.text) == nil {
		a.extendItem(l)
		return i + 1
	}

	if m := reATX.FindStringSubmatchIndex(l.text); m != nil {
		level := m[3] - m[2]
		a.emit(Block{
			Category: internal.CategoryHeading,
			Level:    level,
			Span:     internal.Span{Start: l.start, End: l.end},
			Content:  internal.Span{Start: l.start + m[1], End: l.end},
		})
		return i + 1
	}

	if reRule.MatchString(l.text) {
		a.emit(Block{
			Category: internal.CategoryRule,
			Span:     internal.Span{Start: l.start, End: l.end},
			Content:  internal.Span{Start: l.start, End: l.end},
		})
		return i + 1
	}

	if reQuote.MatchString(l.text) {
		return a.quote(i)
	}

	if m := reListItem.FindStringSubmatchIndex(l.text); m != nil {
		a.listItem(l, m)
		return i + 1
	}

	if isTableStart(a.lines, i) {
		return a.table(i)
	}

	if indentWidth(l.text) >= 4 && a.prevBlank {
		return a.indentedCode(i)
	}

	return a.paragraph(i)
}

func (a *analyzer) itemIndent() int {
	if len(a.listIndents) == 0 {
		return 0
	}
	return a.listIndents[len(a.listIndents)-1]
}

func (a *analyzer) extendItem(l line) {
	if a.lastItem < 0 {
		return
	}
	b := &a.blocks[a.lastItem]
	b.Span.End = l.end
	b.Content.End = l.end
}

// startsBlock reports whether line i opens a block that interrupts a
// paragraph.
func startsBlock(lines []line, i int) bool {
	t := lines[i].text
	switch {
	case reATX.MatchString(t), reFence.MatchString(t), reQuote.MatchString(t), reRule.MatchString(t):
		return true
	case reListItem.MatchString(t):
		return true
	case isTableStart(lines, i):
		return true
	}
	return false
}

func isTableStart(lines []line, i int) bool {
	if i+1 >= len(lines) {
		return false
	}
	if !strings.Contains(lines[i].text, "|") {
		return false
	}
	d := lines[i+1].text
	return strings.Contains(d, "|") && strings.Contains(d, "-") && reDelimiter.MatchString(d)
}

func (a *analyzer) fenced(i int, fence string) int {
	open := a.lines[i]
	end := open.end
	j := i + 1
	for ; j < len(a.lines); j++ {
		t := strings.TrimSpace(a.lines[j].text)
		end = a.lines[j].end
		if strings.HasPrefix(t, fence[:1]) && len(t) >= len(fence) && strings.Trim(t, fence[:1]) == "" {
			j++
			break
		}
	}
	span := internal.Span{Start: open.start, End: end}
	a.emit(Block{Category: internal.CategoryCode, Span: span, Content: span})
	return j
}

func (a *analyzer) indentedCode(i int) int {
	start := a.lines[i].start
	end := a.lines[i].end
	j := i + 1
	for ; j < len(a.lines); j++ {
		l := a.lines[j]
		if l.blank() {
			continue
		}
		if indentWidth(l.text) < 4 {
			break
		}
		end = l.end
	}
	// trailing blank lines are not part of the block
	for j > i+1 && a.lines[j-1].blank() {
		j--
	}
	span := internal.Span{Start: start, End: end}
	a.emit(Block{Category: internal.CategoryCode, Span: span, Content: span})
	return j
}

func quoteDepth(s string) (depth, contentOffset int) {
	i := 0
	for i < len(s) {
		switch s[i] {
		case ' ', '\t':
			i++
		case '>':
			depth++
			i++
			contentOffset = i
			if i < len(s) && s[i] == ' ' {
				contentOffset = i + 1
			}
		default:
			return depth, contentOffset
		}
	}
	return depth, contentOffset
}

func (a *analyzer) quote(i int) int {
	first := a.lines[i]
	depth, off := quoteDepth(first.text)
	end := first.end
	j := i + 1
	for ; j < len(a.lines); j++ {
		l := a.lines[j]
		if !reQuote.MatchString(l.text) {
			break
		}
		if d, _ := quoteDepth(l.text); d != depth {
			break
		}
		end = l.end
	}
	a.emit(Block{
		Category: internal.CategoryQuote,
		Level:    depth,
		Nesting:  depth - 1,
		Span:     internal.Span{Start: first.start, End: end},
		Content:  internal.Span{Start: first.start + off, End: end},
	})
	return j
}

func (a *analyzer) listItem(l line, m []int) {
	indent := indentWidth(l.text[m[2]:m[3]])
	marker := l.text[m[4]:m[5]]

	kind := internal.ListUnordered
	if marker[0] >= '0' && marker[0] <= '9' {
		kind = internal.ListOrdered
	}
	if m[6] >= 0 {
		kind = internal.ListTask
	}

	if !a.inList {
		a.listIndents = a.listIndents[:0]
	}
	for len(a.listIndents) > 0 && a.listIndents[len(a.listIndents)-1] >= indent {
		a.listIndents = a.listIndents[:len(a.listIndents)-1]
	}
	nesting := len(a.listIndents)
	a.listIndents = append(a.listIndents, indent)

	a.emit(Block{
		Category: internal.CategoryListItem,
		List:     kind,
		Nesting:  nesting,
		Level:    nesting + 1,
		Span:     internal.Span{Start: l.start, End: l.end},
		Content:  internal.Span{Start: l.start + m[1], End: l.end},
	})
	a.inList = true
	a.lastItem = len(a.blocks) - 1
}

func (a *analyzer) table(i int) int {
	header := a.lines[i]
	rows := []internal.Span{{Start: header.start, End: header.end}}
	end := a.lines[i+1].end
	j := i + 2
	for ; j < len(a.lines); j++ {
		l := a.lines[j]
		if l.blank() || !strings.Contains(l.text, "|") {
			break
		}
		rows = append(rows, internal.Span{Start: l.start, End: l.end})
		end = l.end
	}
	span := internal.Span{Start: header.start, End: end}
	a.emit(Block{Category: internal.CategoryTable, Span: span, Content: span, Rows: rows})
	return j
}

func (a *analyzer) paragraph(i int) int {
	start := a.lines[i].start
	end := a.lines[i].end
	j := i + 1
	for ; j < len(a.lines); j++ {
		l := a.lines[j]
		if l.blank() {
			break
		}
		if m := reSetext.FindStringSubmatch(l.text); m != nil {
			level := 2
			if m[1][0] == '=' {
				level = 1
			}
			a.emit(Block{
				Category: internal.CategoryHeading,
				Level:    level,
				Span:     internal.Span{Start: start, End: l.end},
				Content:  internal.Span{Start: start, End: end},
			})
			return j + 1
		}
		if startsBlock(a.lines, j) {
			break
		}
		end = l.end
	}
	span := internal.Span{Start: start, End: end}
	a.emit(Block{Category: internal.CategoryParagraph, Span: span, Content: span})
	return j
}

// Tag maps every sentence to the block containing its start offset.
// Sentences outside every block are tagged as paragraphs.
func Tag(blocks []Block, sentences []internal.Sentence) []internal.StructureTag {
	tags := make([]internal.StructureTag, len(sentences))
	for i, s := range sentences {
		tag := internal.StructureTag{SentenceIndex: i, Category: internal.CategoryParagraph}
		if b, ok := BlockAt(blocks, s.Span.Start); ok {
			tag.Category = b.Category
			tag.Level = b.Level
			tag.List = b.List
			tag.Nesting = b.Nesting
		}
		tags[i] = tag
	}
	return tags
}

// BlockAt returns the block whose span contains offset.
func BlockAt(blocks []Block, offset int) (Block, bool) {
	k := sort.Search(len(blocks), func(i int) bool { return blocks[i].Span.End >= offset })
	if k < len(blocks) && blocks[k].Span.Start <= offset && offset <= blocks[k].Span.End {
		return blocks[k], true
	}
	return Block{}, false
}
