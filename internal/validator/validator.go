// Package validator checks pane content before it is parsed and aligned.
package validator

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/valpere/panesync/internal/detector"
	"github.com/valpere/panesync/internal/profile"
)

// DefaultMaxBytes bounds the size of one pane's content.
const DefaultMaxBytes = 8 << 20

// minValidationLength is the minimum rune count required to attempt language detection.
// Shorter texts produce unreliable results and are accepted without validation.
const minValidationLength = 20

// detectionSample bounds the prefix handed to the detector.
const detectionSample = 4096

var (
	ErrInvalidUTF8      = errors.New("content is not valid UTF-8")
	ErrNULByte          = errors.New("content contains a NUL byte")
	ErrTooLarge         = errors.New("content exceeds the size limit")
	ErrLanguageMismatch = errors.New("content language does not match the pane language")
)

// Validator rejects content the pipeline cannot process and flags content
// that does not look like the declared language. A nil detector disables
// the language check.
type Validator struct {
	det      *detector.Detector
	maxBytes int
}

// New creates a Validator. A non-positive maxBytes selects DefaultMaxBytes.
func New(det *detector.Detector, maxBytes int) *Validator {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Validator{det: det, maxBytes: maxBytes}
}

// Check returns an error when content is too large, not UTF-8 or contains
// NUL bytes. Empty content is valid.
func (v *Validator) Check(content string) error {
	if len(content) > v.maxBytes {
		return fmt.Errorf("%w: %d bytes, limit %d", ErrTooLarge, len(content), v.maxBytes)
	}
	if !utf8.ValidString(content) {
		return ErrInvalidUTF8
	}
	if i := strings.IndexByte(content, 0); i >= 0 {
		return fmt.Errorf("%w at offset %d", ErrNULByte, i)
	}
	return nil
}

// CheckLanguage reports whether content appears to be written in lang.
//
// Short texts (fewer than minValidationLength runes) and texts whose language
// cannot be determined pass without error. When the detected language differs
// from lang the returned error names both codes and wraps ErrLanguageMismatch.
func (v *Validator) CheckLanguage(content, lang string) error {
	if v.det == nil || lang == "" {
		return nil
	}

	text := strings.TrimSpace(content)
	// Detector is unreliable for very short texts; skip validation.
	if utf8.RuneCountInString(text) < minValidationLength {
		return nil
	}

	if len(text) > detectionSample {
		cut := detectionSample
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut]
	}

	detected, ok := v.det.DetectISO(text)
	if !ok {
		return nil
	}

	if want := profile.Canonical(lang); detected != want {
		return fmt.Errorf("%w: expected %s but detected %s", ErrLanguageMismatch, want, detected)
	}
	return nil
}
