package orchestrator

import (
	"errors"
	"fmt"

	"github.com/valpere/panesync/internal/profile"
)

// Sentinel errors for session operations.
var (
	// ErrUnsupportedLanguage is never returned by Session methods; it is
	// recorded as a pane warning when a pane falls back to the default
	// profile.
	ErrUnsupportedLanguage = profile.ErrUnsupportedLanguage

	// ErrInvalidPaneCount is returned when adding a pane would exceed the
	// pane limit or introduce a second source pane.
	ErrInvalidPaneCount = errors.New("invalid pane count")

	// ErrPaneNotFound is returned for an unknown or removed pane id.
	ErrPaneNotFound = errors.New("pane not found")

	// ErrAlignmentTimeout marks an alignment that did not finish in time.
	// The previous result stays available and is flagged stale.
	ErrAlignmentTimeout = errors.New("alignment timed out")

	// ErrMalformedContent is returned when pane content fails validation.
	// The pane is left unchanged.
	ErrMalformedContent = errors.New("malformed content")

	// ErrInvalidCorrection is returned for a correction whose indices do
	// not fit the pair's documents.
	ErrInvalidCorrection = errors.New("invalid correction")

	// ErrSessionClosed is returned by operations on a closed session.
	ErrSessionClosed = errors.New("session is closed")
)

// PaneError wraps a failure that concerns one pane.
type PaneError struct {
	Pane PaneID
	Err  error
}

func (e *PaneError) Error() string {
	return fmt.Sprintf("pane %s: %v", e.Pane, e.Err)
}

// Unwrap returns the underlying error.
func (e *PaneError) Unwrap() error {
	return e.Err
}

func paneError(id PaneID, err error) error {
	return &PaneError{Pane: id, Err: err}
}
