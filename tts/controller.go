// Package tts reads lesson text aloud through a pluggable speech engine.
//
// Text is split into sentence-aligned chunks, each chunk becomes an
// Utterance, and the Controller feeds utterances to the Engine strictly one
// at a time while tracking play, pause and stop.
package tts

import (
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/civichero/civichero/tts/sentence"
)

// ControllerConfig holds playback tuning.
type ControllerConfig struct {
	MaxChunkLength int           // Longest chunk handed to the engine, in runes
	WordsPerMinute float64       // Speaking rate assumed at Rate 1.0
	PollInterval   time.Duration // Progress sampling interval; 0 disables the poller
}

// DefaultControllerConfig returns a sensible default configuration.
func DefaultControllerConfig() ControllerConfig {
	return ControllerConfig{
		MaxChunkLength: sentence.DefaultMaxLength,
		WordsPerMinute: DefaultWordsPerMinute,
		PollInterval:   100 * time.Millisecond,
	}
}

// Status is a snapshot of the playback session.
type Status struct {
	State     StateType
	Cursor    int           // Index of the current utterance
	Total     int           // Number of utterances in the session
	Text      string        // Text of the current utterance
	Elapsed   time.Duration // Wall-clock time spent playing
	Estimated time.Duration // Estimated length of the whole session
	Progress  float64       // Estimated completion, 0 to 100
	Voice     VoiceConfig
	LastError error
}

// Option configures a Controller.
type Option func(*Controller)

// WithConfig overrides the default controller configuration.
func WithConfig(cfg ControllerConfig) Option {
	return func(c *Controller) {
		c.config = cfg
	}
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(c *Controller) {
		c.logger = l
	}
}

// WithClock replaces time.Now for progress tracking.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		c.now = now
	}
}

// WithVoiceConfig sets the initial voice configuration.
func WithVoiceConfig(cfg VoiceConfig) Option {
	return func(c *Controller) {
		c.voice = cfg
		c.voiceExplicit = cfg.Voice.ID != ""
	}
}

// Controller drives one playback session at a time against an Engine.
type Controller struct {
	engine Engine
	config ControllerConfig
	logger *log.Logger
	now    func() time.Time

	mu      sync.Mutex
	machine *StateMachine
	seq     Sequencer
	request Request
	session uint64

	voice         VoiceConfig
	voiceExplicit bool

	clock     playClock
	estimated time.Duration
	elapsed   time.Duration
	progress  float64

	// an utterance finished while paused; the next one goes out on resume
	pendingDispatch bool

	lastErr  error
	pollStop chan struct{}

	// hooks queued while locked, run by unlock
	pending []func()

	onStateChange func(StateType)
	onUtterance   func(Utterance)
	onError       func(error)
	onComplete    func()
	onProgress    func(Status)
}

// NewController creates a controller speaking through engine.
func NewController(engine Engine, opts ...Option) *Controller {
	c := &Controller{
		engine:  engine,
		config:  DefaultControllerConfig(),
		logger:  log.Default().WithPrefix("tts"),
		now:     time.Now,
		machine: NewStateMachine(),
		voice:   DefaultVoiceConfig(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.config.MaxChunkLength <= 0 {
		c.config.MaxChunkLength = sentence.DefaultMaxLength
	}

	for _, state := range []StateType{StateIdle, StatePlaying, StatePaused, StateStopped} {
		state := state
		c.machine.OnEnter(state, func() {
			if fn := c.onStateChange; fn != nil {
				c.pending = append(c.pending, func() { fn(state) })
			}
		})
	}

	return c
}

// Load replaces the current request. Any active session is stopped first.
// When no voice was chosen explicitly, a default voice for the request
// language is picked from the engine.
func (c *Controller) Load(req Request) error {
	c.mu.Lock()
	if c.machine.Current() != StateIdle {
		c.teardownLocked()
	}
	c.request = req
	c.lastErr = nil
	if !c.voiceExplicit {
		voice, err := SelectVoice(c.engine.Voices(), req.Language)
		if err != nil {
			c.logger.Warn("No voice for language, using engine default", "language", req.Language, "err", err)
			voice = Voice{}
		}
		c.voice.Voice = voice
	}
	c.unlock()

	if req.AutoPlay {
		return c.Play()
	}
	return nil
}

// Play starts a new session from the loaded request, or resumes a paused
// one. Calling Play while already playing does nothing, so repeated input
// never dispatches duplicate utterances.
func (c *Controller) Play() error {
	c.mu.Lock()
	defer c.unlock()

	switch state := c.machine.Current(); state {
	case StatePlaying:
		c.logger.Debug("Play ignored, session already playing", "session", c.session)
		return nil
	case StatePaused:
		return c.resumeLocked()
	case StateIdle:
		return c.startLocked()
	default:
		return fmt.Errorf("%w: cannot play in state %s", ErrInvalidState, state)
	}
}

// Resume continues a paused session. It is the paused branch of Play.
func (c *Controller) Resume() error {
	return c.Play()
}

// Pause suspends the engine and freezes elapsed time.
func (c *Controller) Pause() error {
	c.mu.Lock()
	defer c.unlock()

	if state := c.machine.Current(); state != StatePlaying {
		return fmt.Errorf("%w: cannot pause in state %s", ErrInvalidState, state)
	}
	if err := c.engine.Pause(); err != nil {
		return fmt.Errorf("pause engine: %w", err)
	}

	c.clock.pause(c.now())
	c.sampleLocked()
	c.stopPolling()
	c.machine.Transition(StatePaused)
	c.logger.Debug("Paused", "session", c.session, "cursor", c.seq.Cursor())
	return nil
}

// Stop cancels the in-flight utterance and everything queued behind it and
// returns to idle. No utterance of the stopped session reports anything
// afterwards. Stopping an idle controller is a no-op.
func (c *Controller) Stop() error {
	c.mu.Lock()
	defer c.unlock()

	if c.machine.Current() == StateIdle {
		return nil
	}
	c.logger.Debug("Stopping", "session", c.session, "cursor", c.seq.Cursor())
	c.teardownLocked()
	return nil
}

// SetVoiceConfig changes the speech parameters. Queued utterances keep the
// parameters they were built with, so an active session is stopped and
// restarted from the first utterance.
func (c *Controller) SetVoiceConfig(cfg VoiceConfig) error {
	c.mu.Lock()
	restart := c.applyVoiceLocked(cfg, cfg.Voice.ID != "")
	c.unlock()

	if restart {
		return c.Play()
	}
	return nil
}

// ToggleMute flips the mute flag. Like any voice change it restarts an
// active session from the beginning.
func (c *Controller) ToggleMute() error {
	c.mu.Lock()
	cfg := c.voice
	cfg.Muted = !cfg.Muted
	restart := c.applyVoiceLocked(cfg, c.voiceExplicit)
	c.unlock()

	if restart {
		return c.Play()
	}
	return nil
}

// VoiceConfig returns the active voice configuration.
func (c *Controller) VoiceConfig() VoiceConfig {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.voice
}

// Status returns a snapshot of the session. Elapsed time and progress are
// sampled at the time of the call.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.unlock()
	c.sampleLocked()
	return c.statusLocked()
}

// Close stops playback and the progress poller.
func (c *Controller) Close() error {
	return c.Stop()
}

// OnStateChange registers a callback for state changes.
func (c *Controller) OnStateChange(fn func(StateType)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onStateChange = fn
}

// OnUtterance registers a callback fired when the engine starts an utterance.
func (c *Controller) OnUtterance(fn func(Utterance)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onUtterance = fn
}

// OnError registers a callback for errors that end a session.
func (c *Controller) OnError(fn func(error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onError = fn
}

// OnComplete registers a callback fired when a session plays to the end.
func (c *Controller) OnComplete(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onComplete = fn
}

// OnProgress registers a callback fired on every poller tick.
func (c *Controller) OnProgress(fn func(Status)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onProgress = fn
}

// unlock releases the mutex and then runs the hooks queued while it was
// held, so hooks may call back into the controller.
func (c *Controller) unlock() {
	fire := c.pending
	c.pending = nil
	c.mu.Unlock()
	for _, fn := range fire {
		fn()
	}
}

func (c *Controller) startLocked() error {
	c.lastErr = nil
	chunks := sentence.Split(c.request.Text, c.config.MaxChunkLength)
	if len(chunks) == 0 {
		c.logger.Debug("Nothing to speak")
		c.emitComplete()
		return nil
	}

	c.session++
	c.seq.Build(c.session, chunks, c.voice)
	c.estimated = EstimateDuration(c.request.Text, c.config.WordsPerMinute, c.voice.Rate)
	c.elapsed, c.progress = 0, 0
	c.pendingDispatch = false
	c.clock.reset()
	c.clock.start(c.now())

	c.machine.Transition(StatePlaying)
	c.startPolling()
	c.logger.Debug("Session started",
		"session", c.session,
		"utterances", c.seq.Len(),
		"estimated", c.estimated)

	u, _ := c.seq.Current()
	return c.dispatchLocked(u)
}

func (c *Controller) resumeLocked() error {
	if c.pendingDispatch {
		c.pendingDispatch = false
		// nothing is in flight but the engine itself is still paused
		if err := c.engine.Resume(); err != nil {
			c.logger.Warn("Engine did not resume, dispatching anyway", "session", c.session, "err", err)
		}
		c.machine.Transition(StatePlaying)
		c.clock.start(c.now())
		c.startPolling()

		u, ok := c.seq.Current()
		if !ok {
			c.completeLocked()
			return nil
		}
		return c.dispatchLocked(u)
	}

	if err := c.engine.Resume(); err != nil {
		err = fmt.Errorf("resume engine: %w", err)
		c.failLocked(err)
		return err
	}
	c.machine.Transition(StatePlaying)
	c.clock.start(c.now())
	c.startPolling()
	c.logger.Debug("Resumed", "session", c.session, "cursor", c.seq.Cursor())
	return nil
}

func (c *Controller) dispatchLocked(u Utterance) error {
	c.logger.Debug("Dispatching utterance", "session", u.Session, "index", u.Index, "chars", len(u.Text))
	if err := c.engine.Speak(u, c.handleEvent); err != nil {
		err = &UtteranceError{Index: u.Index, Err: err}
		c.failLocked(err)
		return err
	}
	return nil
}

// handleEvent receives engine signals. Events from an older session or for
// an utterance other than the current one are dropped.
func (c *Controller) handleEvent(ev Event) {
	c.mu.Lock()
	defer c.unlock()

	state := c.machine.Current()
	if ev.Session != c.session || (state != StatePlaying && state != StatePaused) {
		c.logger.Debug("Dropping stale engine event", "kind", ev.Kind, "session", ev.Session, "index", ev.Index)
		return
	}
	if ev.Index != c.seq.Cursor() {
		c.logger.Debug("Dropping out-of-order engine event", "kind", ev.Kind, "index", ev.Index, "cursor", c.seq.Cursor())
		return
	}

	switch ev.Kind {
	case EventStart:
		if u, ok := c.seq.Current(); ok {
			c.emitUtterance(u)
		}

	case EventEnd:
		next, ok := c.seq.Advance()
		if state == StatePaused {
			c.pendingDispatch = true
			return
		}
		if !ok {
			c.completeLocked()
			return
		}
		_ = c.dispatchLocked(next)

	case EventError:
		err := ev.Err
		if err == nil {
			err = fmt.Errorf("engine reported an error without detail")
		}
		if next, ok := c.seq.Recover(err); ok {
			c.logger.Debug("Utterance interrupted, skipping ahead", "index", ev.Index, "next", next.Index)
			if state == StatePaused {
				c.pendingDispatch = true
				return
			}
			_ = c.dispatchLocked(next)
			return
		}
		c.failLocked(&UtteranceError{Index: ev.Index, Err: err})
	}
}

// completeLocked ends a session that played to the end: playing goes
// straight to idle without passing through stopped.
func (c *Controller) completeLocked() {
	c.logger.Debug("Session complete", "session", c.session)
	c.session++
	c.resetSessionLocked()
	if !c.machine.Transition(StateIdle) {
		c.machine.Transition(StateStopped)
		c.machine.Transition(StateIdle)
	}
	c.emitComplete()
}

// failLocked ends a session on an unrecoverable error. The error is kept
// for Status and handed to the error hook; nothing is retried.
func (c *Controller) failLocked(err error) {
	c.lastErr = err
	c.logger.Error("Speech session failed", "session", c.session, "err", err)
	c.teardownLocked()
	c.emitError(err)
}

// teardownLocked cancels the engine and walks the machine through stopped
// back to idle. Bumping the session first invalidates every event still in
// flight for the old one.
func (c *Controller) teardownLocked() {
	c.session++
	c.engine.Cancel()
	c.resetSessionLocked()
	c.machine.Transition(StateStopped)
	c.machine.Transition(StateIdle)
}

func (c *Controller) resetSessionLocked() {
	c.seq.Reset()
	c.clock.reset()
	c.stopPolling()
	c.elapsed, c.progress, c.estimated = 0, 0, 0
	c.pendingDispatch = false
}

func (c *Controller) applyVoiceLocked(cfg VoiceConfig, explicit bool) bool {
	if cfg.Rate <= 0 {
		cfg.Rate = 1
	}
	c.voice = cfg
	c.voiceExplicit = explicit

	state := c.machine.Current()
	if state != StatePlaying && state != StatePaused {
		return false
	}
	c.logger.Debug("Voice changed, restarting session", "muted", cfg.Muted)
	c.teardownLocked()
	return true
}

func (c *Controller) sampleLocked() {
	state := c.machine.Current()
	if state != StatePlaying && state != StatePaused {
		return
	}
	elapsed := c.clock.read(c.now())
	if elapsed < c.elapsed {
		elapsed = c.elapsed
	}
	c.elapsed = elapsed
	if p := progressPercent(elapsed, c.estimated); p > c.progress {
		c.progress = p
	}
}

func (c *Controller) statusLocked() Status {
	st := Status{
		State:     c.machine.Current(),
		Cursor:    c.seq.Cursor(),
		Total:     c.seq.Len(),
		Elapsed:   c.elapsed,
		Estimated: c.estimated,
		Progress:  c.progress,
		Voice:     c.voice,
		LastError: c.lastErr,
	}
	if u, ok := c.seq.Current(); ok {
		st.Text = u.Text
	}
	return st
}

func (c *Controller) startPolling() {
	if c.pollStop != nil || c.config.PollInterval <= 0 {
		return
	}
	stop := make(chan struct{})
	c.pollStop = stop
	go c.poll(stop, c.config.PollInterval)
}

func (c *Controller) stopPolling() {
	if c.pollStop != nil {
		close(c.pollStop)
		c.pollStop = nil
	}
}

func (c *Controller) poll(stop <-chan struct{}, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		c.mu.Lock()
		select {
		case <-stop:
			c.mu.Unlock()
			return
		default:
		}
		c.sampleLocked()
		if fn := c.onProgress; fn != nil {
			st := c.statusLocked()
			c.pending = append(c.pending, func() { fn(st) })
		}
		c.unlock()
	}
}

func (c *Controller) emitUtterance(u Utterance) {
	if fn := c.onUtterance; fn != nil {
		c.pending = append(c.pending, func() { fn(u) })
	}
}

func (c *Controller) emitError(err error) {
	if fn := c.onError; fn != nil {
		c.pending = append(c.pending, func() { fn(err) })
	}
}

func (c *Controller) emitComplete() {
	if fn := c.onComplete; fn != nil {
		c.pending = append(c.pending, fn)
	}
}
