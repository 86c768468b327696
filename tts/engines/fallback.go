package engines

import (
	"errors"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/civichero/civichero/tts"
)

// FallbackEngine speaks through a primary engine and switches to a
// secondary one when the primary is unavailable or fails consistently.
// Interruptions are not failures.
type FallbackEngine struct {
	primary     tts.Engine
	fallback    tts.Engine
	maxFailures int
	logger      *log.Logger

	mu            sync.Mutex
	failures      int
	usingFallback bool
	// engine handling the in-flight utterance
	active tts.Engine
}

// NewFallbackEngine creates an engine that falls back after maxFailures
// consecutive failures. An unavailable primary is skipped right away.
func NewFallbackEngine(primary, fallback tts.Engine, maxFailures int, logger *log.Logger) *FallbackEngine {
	if maxFailures < 1 {
		maxFailures = 1
	}
	if logger == nil {
		logger = log.Default()
	}
	f := &FallbackEngine{
		primary:     primary,
		fallback:    fallback,
		maxFailures: maxFailures,
		logger:      logger.WithPrefix("fallback"),
	}
	if !Available(primary) {
		f.usingFallback = true
		f.logger.Warn("Primary engine not available, using fallback")
	}
	return f
}

// Speak sends u to the current engine. A synchronous failure of the
// primary that reaches the limit is retried on the fallback.
func (f *FallbackEngine) Speak(u tts.Utterance, notify func(tts.Event)) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.usingFallback {
		f.active = f.fallback
		return f.fallback.Speak(u, notify)
	}

	err := f.primary.Speak(u, f.watch(notify))
	if err == nil {
		f.active = f.primary
		return nil
	}
	if errors.Is(err, tts.ErrEngineClosed) || !f.failLocked(err) {
		return err
	}

	f.active = f.fallback
	if err := f.fallback.Speak(u, notify); err != nil {
		return fmt.Errorf("both engines failed: %w", err)
	}
	return nil
}

// watch counts asynchronous primary failures and resets the count on
// success. notify is called without holding f.mu.
func (f *FallbackEngine) watch(notify func(tts.Event)) func(tts.Event) {
	return func(ev tts.Event) {
		switch {
		case ev.Kind == tts.EventEnd:
			f.mu.Lock()
			if f.failures > 0 {
				f.logger.Info("Primary engine recovered", "failures", f.failures)
				f.failures = 0
			}
			f.mu.Unlock()
		case ev.Kind == tts.EventError && !tts.IsInterrupted(ev.Err):
			f.mu.Lock()
			f.failLocked(ev.Err)
			f.mu.Unlock()
		}
		notify(ev)
	}
}

// failLocked records a primary failure and reports whether the engine
// switched to the fallback.
func (f *FallbackEngine) failLocked(err error) bool {
	if f.usingFallback {
		return false
	}
	f.failures++
	f.logger.Warn("Primary engine failed", "attempt", f.failures, "max", f.maxFailures, "err", err)
	if f.failures < f.maxFailures {
		return false
	}
	f.logger.Warn("Switching to fallback engine", "failures", f.failures)
	f.usingFallback = true
	return true
}

// Pause forwards to the engine speaking the current utterance.
func (f *FallbackEngine) Pause() error {
	return f.current().Pause()
}

// Resume forwards to the engine speaking the current utterance.
func (f *FallbackEngine) Resume() error {
	return f.current().Resume()
}

// Cancel forwards to the engine speaking the current utterance.
func (f *FallbackEngine) Cancel() {
	f.current().Cancel()
}

// Voices returns the voices of the engine in use.
func (f *FallbackEngine) Voices() []tts.Voice {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.usingFallback {
		return f.fallback.Voices()
	}
	return f.primary.Voices()
}

// Shutdown shuts down both engines.
func (f *FallbackEngine) Shutdown() error {
	return errors.Join(
		wrapErr("primary shutdown", Shutdown(f.primary)),
		wrapErr("fallback shutdown", Shutdown(f.fallback)),
	)
}

// Reset returns to the primary engine.
func (f *FallbackEngine) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures = 0
	f.usingFallback = false
	f.logger.Info("Reset to primary engine")
}

// UsingFallback reports whether the fallback engine is in use.
func (f *FallbackEngine) UsingFallback() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.usingFallback
}

// Status describes which engine is in use.
func (f *FallbackEngine) Status() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.usingFallback {
		return fmt.Sprintf("Using fallback engine (primary failed %d times)", f.failures)
	}
	return fmt.Sprintf("Using primary engine (failures: %d/%d)", f.failures, f.maxFailures)
}

func (f *FallbackEngine) current() tts.Engine {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.active != nil {
		return f.active
	}
	if f.usingFallback {
		return f.fallback
	}
	return f.primary
}

func wrapErr(msg string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}
