package tts

import (
	"errors"
	"fmt"
)

var (
	// ErrInterrupted is reported by engines when speech was cancelled under
	// them, typically by an overlapping stop/start. The sequencer skips to
	// the next utterance instead of ending the session.
	ErrInterrupted = errors.New("speech interrupted")

	// ErrInvalidState is returned when an operation is not valid in the
	// current playback state.
	ErrInvalidState = errors.New("invalid state for operation")

	// ErrNoVoices is returned when an engine exposes no voice for a language.
	ErrNoVoices = errors.New("no voice available")

	// ErrVoiceNotFound is returned when a voice lookup has no match.
	ErrVoiceNotFound = errors.New("requested voice not found")

	// ErrEngineClosed is returned by engines after shutdown.
	ErrEngineClosed = errors.New("engine has been shut down")
)

// IsInterrupted reports whether err is the transient interruption class.
func IsInterrupted(err error) bool {
	return errors.Is(err, ErrInterrupted)
}

// UtteranceError is a synthesis failure tied to one utterance.
type UtteranceError struct {
	Index int
	Err   error
}

// Error implements the error interface.
func (e *UtteranceError) Error() string {
	return fmt.Sprintf("utterance %d: %v", e.Index, e.Err)
}

// Unwrap returns the underlying engine error.
func (e *UtteranceError) Unwrap() error {
	return e.Err
}
