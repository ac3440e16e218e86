// Package speech turns captured audio into text and text into speech.
//
// Transcription runs in one of two modes. Grammar mode constrains the
// decoder to a fixed phrase list — the wake-word and command paths — and
// returns either a listed phrase or the empty string. Free-form mode runs
// the general English decoder and returns the best hypothesis; it is used
// for capturing names and metadata values.
//
// The acoustic model itself is a black box behind [Recognizer]; this
// package owns grammar validation, mode selection, wake-word matching,
// and the text-to-speech engine contract.
package speech

import (
	"context"
	"errors"
	"strings"
)

// Sentinel errors.
var (
	// ErrInvalidGrammarShape is returned when a grammar payload is not a
	// JSON array of phrase strings. An object wrapper of any form is a
	// configuration error, caught at construction, never at runtime.
	ErrInvalidGrammarShape = errors.New("speech: grammar must be a JSON array of phrases")

	// ErrRecognizerUnavailable is returned when the acoustic model
	// backend is gone.
	ErrRecognizerUnavailable = errors.New("speech: recognizer unavailable")
)

// Recognizer is the black-box speech decoder.
//
// pcm is 16-bit little-endian mono audio at 16 kHz. A nil grammar selects
// free-form decoding; a non-nil grammar constrains the decoder to exactly
// those phrases, returning "" when none of them match.
type Recognizer interface {
	Transcribe(ctx context.Context, pcm []byte, grammar []string) (string, error)
	Close() error
}

// Engine pairs a recognizer with a decoding mode.
type Engine struct {
	rec     Recognizer
	grammar []string // nil in free-form mode
}

// NewFreeFormEngine decodes unconstrained English.
func NewFreeFormEngine(rec Recognizer) *Engine {
	return &Engine{rec: rec}
}

// NewGrammarEngine constrains the decoder to the given phrases. The
// phrase list must be non-empty; phrases are matched by the decoder, not
// by post-filtering.
func NewGrammarEngine(rec Recognizer, phrases []string) (*Engine, error) {
	if len(phrases) == 0 {
		return nil, errors.New("speech: grammar phrase list is empty")
	}
	cp := make([]string, len(phrases))
	copy(cp, phrases)
	return &Engine{rec: rec, grammar: cp}, nil
}

// NewGrammarEngineJSON builds a grammar engine from a raw JSON grammar
// payload, enforcing the array-of-strings shape.
func NewGrammarEngineJSON(rec Recognizer, raw []byte) (*Engine, error) {
	phrases, err := ParseGrammar(raw)
	if err != nil {
		return nil, err
	}
	return NewGrammarEngine(rec, phrases)
}

// Transcribe decodes one clip.
func (e *Engine) Transcribe(ctx context.Context, pcm []byte) (string, error) {
	text, err := e.rec.Transcribe(ctx, pcm, e.grammar)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

// Grammar returns the phrase list, or nil in free-form mode.
func (e *Engine) Grammar() []string { return e.grammar }

// WakeWordDetector matches transcripts against the configured wake
// phrases, case-insensitively and exactly.
type WakeWordDetector struct {
	phrases []string
}

// NewWakeWordDetector lowercases and stores the phrase list.
func NewWakeWordDetector(phrases []string) *WakeWordDetector {
	lowered := make([]string, len(phrases))
	for i, p := range phrases {
		lowered[i] = strings.ToLower(strings.TrimSpace(p))
	}
	return &WakeWordDetector{phrases: lowered}
}

// Match returns the matched wake phrase, or "" when the transcript is not
// a wake word.
func (w *WakeWordDetector) Match(transcript string) string {
	norm := strings.ToLower(strings.TrimSpace(transcript))
	if norm == "" {
		return ""
	}
	for _, p := range w.phrases {
		if norm == p {
			return p
		}
	}
	return ""
}

// Synthesizer converts text to speech and plays it, blocking until
// playback completes. Callers are expected to hold the audio arbiter's
// playback guard.
type Synthesizer interface {
	Speak(ctx context.Context, text string) error
	Close() error
}
