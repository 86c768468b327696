// Package engines provides helpers that combine speech engines.
package engines

import "github.com/civichero/civichero/tts"

// Checker is implemented by engines that depend on something outside the
// process, such as a synthesizer binary.
type Checker interface {
	Available() bool
}

// Shutdowner is implemented by engines holding resources until shut down.
type Shutdowner interface {
	Shutdown() error
}

// Available reports whether e can be used. Engines that cannot tell are
// assumed usable.
func Available(e tts.Engine) bool {
	if c, ok := e.(Checker); ok {
		return c.Available()
	}
	return true
}

// Shutdown releases e if it holds resources, and cancels speech otherwise.
func Shutdown(e tts.Engine) error {
	if s, ok := e.(Shutdowner); ok {
		return s.Shutdown()
	}
	e.Cancel()
	return nil
}
