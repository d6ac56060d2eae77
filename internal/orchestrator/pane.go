package orchestrator

import (
	"time"

	"github.com/valpere/panesync/internal"
	"github.com/valpere/panesync/internal/align"
	"github.com/valpere/panesync/internal/document"
	"github.com/valpere/panesync/internal/quality"
)

// PaneID identifies a pane within a session.
type PaneID string

// PaneState is a pane's lifecycle position.
type PaneState int

const (
	PaneAdded PaneState = iota
	PaneActive
	PaneRemoved
)

func (s PaneState) String() string {
	switch s {
	case PaneAdded:
		return "added"
	case PaneActive:
		return "active"
	default:
		return "removed"
	}
}

// pane is the session's mutable pane record, guarded by Session.mu.
type pane struct {
	id        PaneID
	lang      string
	isSource  bool
	state     PaneState
	doc       *document.Document
	cursor    int
	selection internal.Span
	warnings  []string
	revision  uint64
}

// Pane is a read-only view of a pane.
type Pane struct {
	ID        PaneID        `json:"id"`
	Language  string        `json:"language"`
	Profile   string        `json:"profile"`
	IsSource  bool          `json:"is_source"`
	State     PaneState     `json:"state"`
	Content   string        `json:"content"`
	Sentences int           `json:"sentences"`
	Cursor    int           `json:"cursor"`
	Selection internal.Span `json:"selection"`
	Warnings  []string      `json:"warnings,omitempty"`
	// Revision counts accepted content updates.
	Revision uint64             `json:"revision"`
	Document *document.Document `json:"-"`
}

func (p *pane) view() Pane {
	return Pane{
		ID:        p.id,
		Language:  p.lang,
		Profile:   p.doc.Profile.Code,
		IsSource:  p.isSource,
		State:     p.state,
		Content:   p.doc.Text,
		Sentences: p.doc.Len(),
		Cursor:    p.cursor,
		Selection: p.selection,
		Warnings:  append([]string(nil), p.warnings...),
		Revision:  p.revision,
		Document:  p.doc,
	}
}

// Pair is an ordered (source, target) pane pair.
type Pair struct {
	Source PaneID `json:"source"`
	Target PaneID `json:"target"`
}

func (p Pair) String() string { return string(p.Source) + "->" + string(p.Target) }

// Alignment is the cached outcome of aligning one pair.
type Alignment struct {
	Result  align.Result      `json:"result"`
	Quality quality.Indicator `json:"quality"`
}

// PairStatus describes the latest known alignment of a pair.
type PairStatus struct {
	Quality quality.Indicator `json:"quality"`
	// Ready is false until the first computation completes.
	Ready bool `json:"ready"`
	// Pending is true while a recomputation is scheduled or running.
	Pending bool `json:"pending"`
	// Stale is true when the last attempt failed or timed out and Quality
	// describes older content.
	Stale      bool      `json:"stale"`
	Generation uint64    `json:"generation"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// QualitySnapshot is the session's quality state at one point in time.
type QualitySnapshot struct {
	Pairs   map[Pair]PairStatus `json:"-"`
	Overall quality.Indicator   `json:"overall"`
	Pending bool                `json:"pending"`
}
