// Package event is the session notification stream.
//
// A Queue holds undelivered events in emission order and hands them to a
// single consumer channel. It is bounded: under sustained backpressure the
// oldest queued event is dropped and a PerformanceAlert reporting the drop
// count is raised. The alert has a slot of its own, so it never displaces
// an event and is never dropped itself. Undelivered SyncUpdate events are coalesced per pane, so a reader
// that falls behind only sees the latest cursor position of each pane.
package event

import (
	"fmt"
	"time"

	"github.com/valpere/panesync/internal"
	"github.com/valpere/panesync/internal/quality"
)

// Kind is the type of an event.
type Kind int

const (
	QualityChange Kind = iota
	SyncUpdate
	PerformanceAlert
)

// String returns a human-readable kind name.
func (k Kind) String() string {
	switch k {
	case QualityChange:
		return "quality-change"
	case SyncUpdate:
		return "sync-update"
	case PerformanceAlert:
		return "performance-alert"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// Event is one notification. Which payload fields are set depends on Kind.
type Event struct {
	Kind Kind `json:"kind"`
	// Seq is the session-wide emission sequence number.
	Seq uint64    `json:"seq"`
	At  time.Time `json:"at"`

	// SyncUpdate: the pane the cursor or selection moved in, its
	// monotonically increasing sequence number and the projected positions
	// keyed by pane id. Selections are set for selection updates only.
	Pane       string                   `json:"pane,omitempty"`
	PaneSeq    uint64                   `json:"pane_seq,omitempty"`
	Offsets    map[string]int           `json:"offsets,omitempty"`
	Selections map[string]internal.Span `json:"selections,omitempty"`

	// QualityChange
	Pair    string             `json:"pair,omitempty"`
	Quality *quality.Indicator `json:"quality,omitempty"`
	Stale   bool               `json:"stale,omitempty"`

	// PerformanceAlert
	Message string `json:"message,omitempty"`
	Dropped uint64 `json:"dropped,omitempty"`
}

func (e Event) String() string {
	switch e.Kind {
	case SyncUpdate:
		return fmt.Sprintf("#%d %s pane=%s seq=%d", e.Seq, e.Kind, e.Pane, e.PaneSeq)
	case QualityChange:
		overall := 0.0
		if e.Quality != nil {
			overall = e.Quality.Overall
		}
		return fmt.Sprintf("#%d %s pair=%s overall=%.2f", e.Seq, e.Kind, e.Pair, overall)
	default:
		return fmt.Sprintf("#%d %s %s", e.Seq, e.Kind, e.Message)
	}
}
