// Package mock provides a simulated speech engine for tests and for running
// the player without a synthesizer installed.
package mock

import (
	"errors"
	"sync"
	"time"

	"github.com/civichero/civichero/tts"
	"github.com/civichero/civichero/tts/sentence"
)

// errInFlight is returned when Speak is called before the previous
// utterance finished.
var errInFlight = errors.New("mock: utterance already in flight")

// MockEngine "speaks" by waiting a duration proportional to the word count
// of each utterance. It honours pause, resume and cancel and can be told to
// fail specific utterances.
type MockEngine struct {
	mu sync.Mutex

	// Configuration
	wordDuration time.Duration // Time per word at rate 1.0
	tick         time.Duration // Granularity of the simulated clock
	voices       []tts.Voice

	// Control for testing
	failures  map[int]error // Utterance index -> error to report
	speakErr  error
	callCount int
	spoken    []tts.Utterance

	// State
	current *job
	paused  bool
	closed  bool
}

type job struct {
	u         tts.Utterance
	notify    func(tts.Event)
	remaining time.Duration
	err       error
	cancel    chan struct{}
}

// New creates a mock engine speaking at roughly 150 words per minute.
func New() *MockEngine {
	return &MockEngine{
		wordDuration: 400 * time.Millisecond,
		tick:         10 * time.Millisecond,
		failures:     make(map[int]error),
		voices: []tts.Voice{
			{ID: "mock-en", Name: "Mock English", Locale: "en-KE"},
			{ID: "mock-sw", Name: "Mock Swahili", Locale: "sw-KE"},
		},
	}
}

// Speak starts simulating u in the background.
func (e *MockEngine) Speak(u tts.Utterance, notify func(tts.Event)) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.callCount++
	switch {
	case e.closed:
		return tts.ErrEngineClosed
	case e.speakErr != nil:
		return e.speakErr
	case e.current != nil:
		return errInFlight
	}

	rate := u.Rate
	if rate <= 0 {
		rate = 1
	}
	words := sentence.WordCount(u.Text)
	if words < 1 {
		words = 1
	}

	j := &job{
		u:         u,
		notify:    notify,
		remaining: time.Duration(float64(words) * float64(e.wordDuration) / rate),
		err:       e.failures[u.Index],
		cancel:    make(chan struct{}),
	}
	e.current = j
	e.spoken = append(e.spoken, u)

	go e.run(j, e.tick)
	return nil
}

func (e *MockEngine) run(j *job, tick time.Duration) {
	j.notify(tts.EventFor(j.u, tts.EventStart, nil))

	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-j.cancel:
			j.notify(tts.EventFor(j.u, tts.EventError, tts.ErrInterrupted))
			return
		case <-ticker.C:
		}

		e.mu.Lock()
		if e.current != j {
			e.mu.Unlock()
			continue
		}
		if !e.paused {
			j.remaining -= tick
		}
		done := j.remaining <= 0 || j.err != nil
		if done {
			e.current = nil
		}
		e.mu.Unlock()

		if !done {
			continue
		}
		if j.err != nil {
			j.notify(tts.EventFor(j.u, tts.EventError, j.err))
		} else {
			j.notify(tts.EventFor(j.u, tts.EventEnd, nil))
		}
		return
	}
}

// Pause freezes the simulated clock.
func (e *MockEngine) Pause() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return tts.ErrEngineClosed
	}
	e.paused = true
	return nil
}

// Resume restarts the simulated clock.
func (e *MockEngine) Resume() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return tts.ErrEngineClosed
	}
	e.paused = false
	return nil
}

// Cancel drops the in-flight utterance. Its goroutine reports
// ErrInterrupted for it.
func (e *MockEngine) Cancel() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current != nil {
		close(e.current.cancel)
		e.current = nil
	}
	e.paused = false
}

// Voices returns the mock voices.
func (e *MockEngine) Voices() []tts.Voice {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]tts.Voice, len(e.voices))
	copy(out, e.voices)
	return out
}

// Shutdown cancels speech and rejects further calls.
func (e *MockEngine) Shutdown() error {
	e.Cancel()
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

// Test control methods

// SetWordDuration sets the simulated time per word at rate 1.0.
func (e *MockEngine) SetWordDuration(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.wordDuration = d
}

// SetTick sets the granularity of the simulated clock.
func (e *MockEngine) SetTick(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if d > 0 {
		e.tick = d
	}
}

// SetVoices replaces the advertised voices.
func (e *MockEngine) SetVoices(voices []tts.Voice) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.voices = voices
}

// FailAt makes the utterance with the given index report err.
func (e *MockEngine) FailAt(index int, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failures[index] = err
}

// SetFailure makes every Speak call fail synchronously with err.
func (e *MockEngine) SetFailure(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.speakErr = err
}

// ClearFailure resets the engine to normal operation.
func (e *MockEngine) ClearFailure() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.speakErr = nil
	e.failures = make(map[int]error)
}

// GetCallCount returns the number of Speak calls.
func (e *MockEngine) GetCallCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.callCount
}

// Spoken returns the utterances accepted so far.
func (e *MockEngine) Spoken() []tts.Utterance {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]tts.Utterance, len(e.spoken))
	copy(out, e.spoken)
	return out
}
