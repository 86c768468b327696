package tts_test

import (
	"bytes"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/civichero/civichero/tts"
)

// manualEngine records utterances and lets the test fire engine events by
// hand, so every controller transition happens on the test goroutine.
type manualEngine struct {
	mu       sync.Mutex
	spoken   []tts.Utterance
	notifies []func(tts.Event)
	voices   []tts.Voice

	pauses    int
	resumes   int
	cancels   int
	speakErr  error
	resumeErr error
}

func (e *manualEngine) Speak(u tts.Utterance, notify func(tts.Event)) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.speakErr != nil {
		return e.speakErr
	}
	e.spoken = append(e.spoken, u)
	e.notifies = append(e.notifies, notify)
	return nil
}

func (e *manualEngine) Pause() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pauses++
	return nil
}

func (e *manualEngine) Resume() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.resumes++
	return e.resumeErr
}

func (e *manualEngine) Cancel() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cancels++
}

func (e *manualEngine) Voices() []tts.Voice {
	return e.voices
}

func (e *manualEngine) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.spoken)
}

func (e *manualEngine) last() tts.Utterance {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.spoken[len(e.spoken)-1]
}

// fire sends an event for the n-th utterance handed to the engine.
func (e *manualEngine) fire(n int, kind tts.EventKind, err error) {
	e.mu.Lock()
	u := e.spoken[n]
	notify := e.notifies[n]
	e.mu.Unlock()
	notify(tts.EventFor(u, kind, err))
}

// fireLast sends an event for the most recent utterance.
func (e *manualEngine) fireLast(kind tts.EventKind, err error) {
	e.fire(e.count()-1, kind, err)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// recorder collects controller hook invocations.
type recorder struct {
	mu         sync.Mutex
	states     []tts.StateType
	utterances []int
	errs       []error
	completed  int
}

func newTestController(t *testing.T, engine *manualEngine, opts ...tts.Option) (*tts.Controller, *recorder) {
	t.Helper()
	cfg := tts.DefaultControllerConfig()
	cfg.MaxChunkLength = 5
	cfg.PollInterval = 0
	opts = append([]tts.Option{tts.WithConfig(cfg)}, opts...)

	c := tts.NewController(engine, opts...)
	rec := &recorder{}
	c.OnStateChange(func(s tts.StateType) {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		rec.states = append(rec.states, s)
	})
	c.OnUtterance(func(u tts.Utterance) {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		rec.utterances = append(rec.utterances, u.Index)
	})
	c.OnError(func(err error) {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		rec.errs = append(rec.errs, err)
	})
	c.OnComplete(func() {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		rec.completed++
	})
	t.Cleanup(func() { _ = c.Close() })
	return c, rec
}

const threeSentences = "One. Two. Three."

func loadAndPlay(t *testing.T, c *tts.Controller, text string) {
	t.Helper()
	if err := c.Load(tts.Request{Text: text}); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if err := c.Play(); err != nil {
		t.Fatalf("Play() error = %v", err)
	}
}

func sameStates(got, want []tts.StateType) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func TestControllerPlaysInOrder(t *testing.T) {
	engine := &manualEngine{}
	c, rec := newTestController(t, engine)

	var statusAtCompletion tts.Status
	c.OnComplete(func() {
		// hooks run outside the lock and may call back in
		statusAtCompletion = c.Status()
		rec.completed++
	})

	loadAndPlay(t, c, threeSentences)

	want := []string{"One.", "Two.", "Three."}
	for i, text := range want {
		if engine.count() != i+1 {
			t.Fatalf("after %d ends, engine saw %d utterances, want %d", i, engine.count(), i+1)
		}
		u := engine.last()
		if u.Index != i || u.Text != text {
			t.Errorf("utterance %d = (%d, %q), want (%d, %q)", i, u.Index, u.Text, i, text)
		}
		engine.fireLast(tts.EventStart, nil)
		engine.fireLast(tts.EventEnd, nil)
	}

	if engine.count() != 3 {
		t.Errorf("engine saw %d utterances, want 3", engine.count())
	}
	if rec.completed != 1 {
		t.Errorf("completed = %d, want 1", rec.completed)
	}
	if statusAtCompletion.State != tts.StateIdle {
		t.Errorf("state at completion = %s, want idle", statusAtCompletion.State)
	}
	if len(rec.utterances) != 3 || rec.utterances[0] != 0 || rec.utterances[2] != 2 {
		t.Errorf("utterance hooks = %v, want [0 1 2]", rec.utterances)
	}
	// completion goes straight from playing to idle
	if !sameStates(rec.states, []tts.StateType{tts.StatePlaying, tts.StateIdle}) {
		t.Errorf("states = %v, want [playing idle]", rec.states)
	}
	if st := c.Status(); st.Progress != 0 || st.Cursor != 0 || st.Total != 0 {
		t.Errorf("status after completion = %+v, want zeroed", st)
	}
}

func TestControllerPlayWhilePlayingIsIgnored(t *testing.T) {
	engine := &manualEngine{}
	c, _ := newTestController(t, engine)

	loadAndPlay(t, c, threeSentences)
	for i := 0; i < 3; i++ {
		if err := c.Play(); err != nil {
			t.Fatalf("Play() error = %v", err)
		}
	}

	if engine.count() != 1 {
		t.Errorf("engine saw %d utterances, want 1", engine.count())
	}
}

func TestControllerStopDropsLateEvents(t *testing.T) {
	engine := &manualEngine{}
	c, rec := newTestController(t, engine)

	loadAndPlay(t, c, threeSentences)
	if err := c.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	if engine.cancels != 1 {
		t.Errorf("cancels = %d, want 1", engine.cancels)
	}
	if st := c.Status(); st.State != tts.StateIdle || st.Cursor != 0 || st.Elapsed != 0 {
		t.Errorf("status after stop = %+v", st)
	}

	// the engine reports the cancelled utterance late
	engine.fire(0, tts.EventStart, nil)
	engine.fire(0, tts.EventEnd, nil)

	if len(rec.utterances) != 0 {
		t.Errorf("on-start fired after stop: %v", rec.utterances)
	}
	if engine.count() != 1 {
		t.Errorf("late end dispatched another utterance: %d", engine.count())
	}
	if !sameStates(rec.states, []tts.StateType{tts.StatePlaying, tts.StateStopped, tts.StateIdle}) {
		t.Errorf("states = %v, want [playing stopped idle]", rec.states)
	}

	// stopping while idle is a no-op
	if err := c.Stop(); err != nil {
		t.Fatalf("Stop() in idle error = %v", err)
	}
	if engine.cancels != 1 {
		t.Errorf("idle stop cancelled the engine")
	}
}

func TestControllerPauseResumeKeepsCursor(t *testing.T) {
	engine := &manualEngine{}
	c, _ := newTestController(t, engine)

	loadAndPlay(t, c, threeSentences)
	engine.fireLast(tts.EventEnd, nil)

	if err := c.Pause(); err != nil {
		t.Fatalf("Pause() error = %v", err)
	}
	if st := c.Status(); st.State != tts.StatePaused || st.Cursor != 1 {
		t.Errorf("status after pause = %s cursor %d", st.State, st.Cursor)
	}
	if engine.pauses != 1 {
		t.Errorf("engine pauses = %d, want 1", engine.pauses)
	}

	if err := c.Resume(); err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	if st := c.Status(); st.State != tts.StatePlaying || st.Cursor != 1 {
		t.Errorf("status after resume = %s cursor %d", st.State, st.Cursor)
	}
	if engine.resumes != 1 {
		t.Errorf("engine resumes = %d, want 1", engine.resumes)
	}
	if engine.count() != 2 {
		t.Errorf("resume re-dispatched: engine saw %d utterances, want 2", engine.count())
	}
}

func TestControllerPauseRequiresPlaying(t *testing.T) {
	engine := &manualEngine{}
	c, _ := newTestController(t, engine)

	if err := c.Pause(); !errors.Is(err, tts.ErrInvalidState) {
		t.Errorf("Pause() in idle error = %v, want ErrInvalidState", err)
	}

	loadAndPlay(t, c, threeSentences)
	if err := c.Pause(); err != nil {
		t.Fatalf("Pause() error = %v", err)
	}
	if err := c.Pause(); !errors.Is(err, tts.ErrInvalidState) {
		t.Errorf("Pause() while paused error = %v, want ErrInvalidState", err)
	}
}

func TestControllerEndWhilePausedDispatchesOnResume(t *testing.T) {
	engine := &manualEngine{}
	c, _ := newTestController(t, engine)

	loadAndPlay(t, c, threeSentences)
	if err := c.Pause(); err != nil {
		t.Fatalf("Pause() error = %v", err)
	}
	engine.fire(0, tts.EventEnd, nil)

	if engine.count() != 1 {
		t.Fatalf("dispatched while paused: %d utterances", engine.count())
	}
	if err := c.Play(); err != nil {
		t.Fatalf("Play() error = %v", err)
	}
	if engine.count() != 2 || engine.last().Index != 1 {
		t.Errorf("after resume engine saw %d utterances, want the second one dispatched", engine.count())
	}
}

func TestControllerResumeFailureWithNothingInFlight(t *testing.T) {
	engine := &manualEngine{}
	var logs bytes.Buffer
	c, rec := newTestController(t, engine, tts.WithLogger(log.New(&logs)))

	loadAndPlay(t, c, threeSentences)
	if err := c.Pause(); err != nil {
		t.Fatalf("Pause() error = %v", err)
	}
	engine.fire(0, tts.EventEnd, nil)

	engine.mu.Lock()
	engine.resumeErr = errors.New("device busy")
	engine.mu.Unlock()

	if err := c.Play(); err != nil {
		t.Fatalf("Play() error = %v", err)
	}
	if engine.count() != 2 || engine.last().Index != 1 {
		t.Errorf("engine saw %d utterances, want the second one dispatched", engine.count())
	}
	if st := c.Status(); st.State != tts.StatePlaying {
		t.Errorf("state = %s, want playing", st.State)
	}
	if len(rec.errs) != 0 {
		t.Errorf("errors reported: %v", rec.errs)
	}
	if !strings.Contains(logs.String(), "device busy") {
		t.Errorf("resume failure not logged: %q", logs.String())
	}
}

func TestControllerInterruptedSkipsAhead(t *testing.T) {
	engine := &manualEngine{}
	c, rec := newTestController(t, engine)

	loadAndPlay(t, c, threeSentences)
	engine.fireLast(tts.EventError, tts.ErrInterrupted)

	if engine.count() != 2 || engine.last().Index != 1 {
		t.Fatalf("interrupted utterance did not advance, engine saw %d", engine.count())
	}
	if st := c.Status(); st.State != tts.StatePlaying {
		t.Errorf("state = %s, want playing", st.State)
	}
	if len(rec.errs) != 0 {
		t.Errorf("interruption surfaced errors: %v", rec.errs)
	}
}

func TestControllerInterruptedOnLastTerminates(t *testing.T) {
	engine := &manualEngine{}
	c, rec := newTestController(t, engine)

	loadAndPlay(t, c, "Only.")
	engine.fireLast(tts.EventError, tts.ErrInterrupted)

	st := c.Status()
	if st.State != tts.StateIdle {
		t.Errorf("state = %s, want idle", st.State)
	}
	if !errors.Is(st.LastError, tts.ErrInterrupted) {
		t.Errorf("LastError = %v, want ErrInterrupted", st.LastError)
	}
	if len(rec.errs) != 1 {
		t.Errorf("error hook fired %d times, want 1", len(rec.errs))
	}
	if rec.completed != 0 {
		t.Errorf("terminated session reported completion")
	}
}

func TestControllerFatalErrorResetsToIdle(t *testing.T) {
	engine := &manualEngine{}
	c, rec := newTestController(t, engine)

	loadAndPlay(t, c, threeSentences)
	engine.fireLast(tts.EventEnd, nil)
	engine.fireLast(tts.EventError, errors.New("synthesis failed"))

	st := c.Status()
	if st.State != tts.StateIdle || st.Cursor != 0 {
		t.Errorf("status = %s cursor %d, want idle cursor 0", st.State, st.Cursor)
	}
	var uerr *tts.UtteranceError
	if !errors.As(st.LastError, &uerr) || uerr.Index != 1 {
		t.Errorf("LastError = %v, want UtteranceError for index 1", st.LastError)
	}
	if !sameStates(rec.states, []tts.StateType{tts.StatePlaying, tts.StateStopped, tts.StateIdle}) {
		t.Errorf("states = %v, want [playing stopped idle]", rec.states)
	}
	if engine.count() != 2 {
		t.Errorf("failed utterance was retried: engine saw %d", engine.count())
	}
}

func TestControllerSpeakErrorFailsSession(t *testing.T) {
	engine := &manualEngine{speakErr: errors.New("device busy")}
	c, rec := newTestController(t, engine)

	if err := c.Load(tts.Request{Text: threeSentences}); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if err := c.Play(); err == nil {
		t.Fatal("Play() error = nil, want speak failure")
	}
	if st := c.Status(); st.State != tts.StateIdle {
		t.Errorf("state = %s, want idle", st.State)
	}
	if len(rec.errs) != 1 {
		t.Errorf("error hook fired %d times, want 1", len(rec.errs))
	}
}

func TestControllerEmptyTextCompletes(t *testing.T) {
	for _, text := range []string{"", "   \n\t "} {
		engine := &manualEngine{}
		c, rec := newTestController(t, engine)

		loadAndPlay(t, c, text)

		if engine.count() != 0 {
			t.Errorf("%q: engine saw %d utterances", text, engine.count())
		}
		if rec.completed != 1 {
			t.Errorf("%q: completed = %d, want 1", text, rec.completed)
		}
		if len(rec.states) != 0 {
			t.Errorf("%q: state changed: %v", text, rec.states)
		}
		if st := c.Status(); st.State != tts.StateIdle || st.LastError != nil {
			t.Errorf("%q: status = %+v", text, st)
		}
	}
}

func TestControllerToggleMuteRestarts(t *testing.T) {
	engine := &manualEngine{}
	c, _ := newTestController(t, engine)

	loadAndPlay(t, c, threeSentences)
	engine.fireLast(tts.EventEnd, nil)
	before := engine.last()

	if err := c.ToggleMute(); err != nil {
		t.Fatalf("ToggleMute() error = %v", err)
	}

	after := engine.last()
	if after.Index != 0 {
		t.Errorf("restart began at utterance %d, want 0", after.Index)
	}
	if after.Volume != 0 {
		t.Errorf("muted utterance volume = %v, want 0", after.Volume)
	}
	if before.Volume == 0 {
		t.Errorf("utterance queued before mute was built muted")
	}
	if after.Session == before.Session {
		t.Errorf("restart reused session %d", after.Session)
	}
	if engine.cancels != 1 {
		t.Errorf("cancels = %d, want 1", engine.cancels)
	}

	// the old session's end must not advance the new one
	n := engine.count()
	engine.fire(n-2, tts.EventEnd, nil)
	if engine.count() != n {
		t.Errorf("stale end dispatched an utterance")
	}
	if !c.VoiceConfig().Muted {
		t.Errorf("VoiceConfig().Muted = false after toggle")
	}
}

func TestControllerVoiceChangeWhileIdle(t *testing.T) {
	engine := &manualEngine{}
	c, _ := newTestController(t, engine)

	cfg := tts.DefaultVoiceConfig()
	cfg.Rate = 1.2
	if err := c.SetVoiceConfig(cfg); err != nil {
		t.Fatalf("SetVoiceConfig() error = %v", err)
	}
	if engine.count() != 0 || engine.cancels != 0 {
		t.Errorf("voice change while idle touched the engine")
	}
	if got := c.VoiceConfig().Rate; got != 1.2 {
		t.Errorf("Rate = %v, want 1.2", got)
	}
}

func TestControllerLoad(t *testing.T) {
	voices := []tts.Voice{
		{ID: "en-us", Name: "English", Locale: "en-US"},
		{ID: "sw-ke", Name: "Kiswahili", Locale: "sw-KE"},
	}

	t.Run("selects voice for language", func(t *testing.T) {
		engine := &manualEngine{voices: voices}
		c, _ := newTestController(t, engine)

		if err := c.Load(tts.Request{Text: "Habari.", Language: tts.LanguageSwahili}); err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if got := c.VoiceConfig().Voice.ID; got != "sw-ke" {
			t.Errorf("voice = %q, want sw-ke", got)
		}
	})

	t.Run("explicit voice is kept", func(t *testing.T) {
		engine := &manualEngine{voices: voices}
		cfg := tts.DefaultVoiceConfig()
		cfg.Voice = voices[0]
		c, _ := newTestController(t, engine, tts.WithVoiceConfig(cfg))

		if err := c.Load(tts.Request{Text: "Habari.", Language: tts.LanguageSwahili}); err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if got := c.VoiceConfig().Voice.ID; got != "en-us" {
			t.Errorf("voice = %q, want en-us", got)
		}
	})

	t.Run("replaces active session", func(t *testing.T) {
		engine := &manualEngine{voices: voices}
		c, _ := newTestController(t, engine)

		loadAndPlay(t, c, threeSentences)
		if err := c.Load(tts.Request{Text: "Next lesson."}); err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if engine.cancels != 1 {
			t.Errorf("cancels = %d, want 1", engine.cancels)
		}
		if st := c.Status(); st.State != tts.StateIdle {
			t.Errorf("state = %s, want idle", st.State)
		}
	})

	t.Run("autoplay", func(t *testing.T) {
		engine := &manualEngine{voices: voices}
		c, _ := newTestController(t, engine)

		if err := c.Load(tts.Request{Text: "Next lesson.", AutoPlay: true}); err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if engine.count() != 1 || engine.last().Voice.ID != "en-us" {
			t.Errorf("autoplay did not dispatch with the default voice")
		}
	})
}

func TestControllerProgress(t *testing.T) {
	engine := &manualEngine{}
	clock := newFakeClock()
	c, _ := newTestController(t, engine,
		tts.WithClock(clock.Now),
		tts.WithVoiceConfig(tts.VoiceConfig{Rate: 1, Pitch: 1, Volume: 1}),
	)

	// 150 words at 150 wpm is one minute
	text := strings.Repeat("word ", 149) + "end."
	loadAndPlay(t, c, text)

	st := c.Status()
	if st.Estimated != time.Minute {
		t.Fatalf("Estimated = %v, want 1m", st.Estimated)
	}

	var last float64
	check := func(want float64) {
		t.Helper()
		st := c.Status()
		if st.Progress != want {
			t.Errorf("Progress = %v, want %v", st.Progress, want)
		}
		if st.Progress < last {
			t.Errorf("Progress went backwards: %v after %v", st.Progress, last)
		}
		last = st.Progress
	}

	clock.Advance(30 * time.Second)
	check(50)

	if err := c.Pause(); err != nil {
		t.Fatalf("Pause() error = %v", err)
	}
	clock.Advance(time.Hour)
	check(50)

	if err := c.Play(); err != nil {
		t.Fatalf("Play() error = %v", err)
	}
	clock.Advance(15 * time.Second)
	check(75)

	clock.Advance(5 * time.Minute)
	check(100)

	if err := c.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if st := c.Status(); st.Progress != 0 || st.Elapsed != 0 {
		t.Errorf("progress after stop = %v elapsed %v, want zero", st.Progress, st.Elapsed)
	}
}

func TestControllerPollerReportsProgress(t *testing.T) {
	engine := &manualEngine{}
	cfg := tts.DefaultControllerConfig()
	cfg.PollInterval = 5 * time.Millisecond
	c := tts.NewController(engine, tts.WithConfig(cfg))
	defer c.Close()

	ticks := make(chan tts.Status, 16)
	c.OnProgress(func(st tts.Status) {
		select {
		case ticks <- st:
		default:
		}
	})

	loadAndPlay(t, c, threeSentences)

	select {
	case st := <-ticks:
		if st.State != tts.StatePlaying {
			t.Errorf("tick state = %s, want playing", st.State)
		}
		if st.Progress < 0 || st.Progress > 100 {
			t.Errorf("tick progress out of range: %v", st.Progress)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("poller never ticked")
	}
}
