package ui

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/civichero/civichero/tts"
	"github.com/civichero/civichero/tts/engines/mock"
)

func newTestPlayer(t *testing.T) (*Player, *tts.Controller) {
	t.Helper()
	engine := mock.New()
	engine.SetWordDuration(time.Hour) // utterances never finish on their own

	cfg := tts.DefaultControllerConfig()
	cfg.MaxChunkLength = 5
	cfg.PollInterval = 0
	c := tts.NewController(engine, tts.WithConfig(cfg))
	t.Cleanup(func() { _ = c.Close() })

	req := tts.Request{Text: "One. Two. Three.", Language: tts.LanguageEnglish}
	m := NewPlayer(c, req, Config{Title: "Counties", MaxChunkLength: 5, VisibleChunks: 5})
	t.Cleanup(m.bridge.Close)

	if err := c.Load(req); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	m.Update(actionMsg{action: "load"})
	return m, c
}

func press(t *testing.T, m *Player, k tea.KeyMsg) tea.Msg {
	t.Helper()
	_, cmd := m.Update(k)
	if cmd == nil {
		return nil
	}
	msg := cmd()
	m.Update(msg)
	return msg
}

// keyRune builds the key message bubbletea sends for a typed character.
func keyRune(r rune) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}}
}

var keySpace = keyRune(' ')

func TestPlayerLoading(t *testing.T) {
	engine := mock.New()
	c := tts.NewController(engine)
	defer c.Close()
	m := NewPlayer(c, tts.Request{Text: "Hello."}, Config{})
	defer m.bridge.Close()

	if got := m.View(); !strings.Contains(got, "Loading lesson") {
		t.Errorf("View() before load = %q", got)
	}
	if len(m.chunks) != 1 {
		t.Errorf("chunks = %q, want one", m.chunks)
	}
}

func TestPlayerPlayPause(t *testing.T) {
	m, c := newTestPlayer(t)

	if got := m.View(); !strings.Contains(got, "Counties") || !strings.Contains(got, "Three.") {
		t.Errorf("View() = %q, want title and lesson text", got)
	}

	msg := press(t, m, keySpace)
	if am, ok := msg.(actionMsg); !ok || am.action != "play" || am.err != nil {
		t.Fatalf("space produced %#v, want successful play", msg)
	}
	if st := c.Status().State; st != tts.StatePlaying {
		t.Fatalf("state after space = %s, want playing", st)
	}
	if got := m.View(); !strings.Contains(got, "Playing") {
		t.Errorf("View() while playing = %q", got)
	}

	press(t, m, keySpace)
	if st := c.Status().State; st != tts.StatePaused {
		t.Fatalf("state after second space = %s, want paused", st)
	}

	press(t, m, keySpace)
	if st := c.Status().State; st != tts.StatePlaying {
		t.Fatalf("state after third space = %s, want playing", st)
	}

	press(t, m, keyRune('s'))
	if st := c.Status().State; st != tts.StateIdle {
		t.Errorf("state after stop = %s, want idle", st)
	}
}

func TestPlayerRateAndMute(t *testing.T) {
	m, c := newTestPlayer(t)

	press(t, m, keyRune('+'))
	if got := c.VoiceConfig().Rate; got != 0.9 {
		t.Errorf("rate after + = %v, want 0.9", got)
	}
	press(t, m, keyRune('-'))
	press(t, m, keyRune('-'))
	if got := c.VoiceConfig().Rate; got != 0.7 {
		t.Errorf("rate after two - = %v, want 0.7", got)
	}

	press(t, m, keyRune('m'))
	if !c.VoiceConfig().Muted {
		t.Error("m did not mute")
	}
	if got := m.View(); !strings.Contains(got, "muted") {
		t.Errorf("View() does not show mute: %q", got)
	}
}

func TestPlayerRateClamped(t *testing.T) {
	m, c := newTestPlayer(t)

	for i := 0; i < 10; i++ {
		press(t, m, keyRune('-'))
	}
	if got := c.VoiceConfig().Rate; got != minRate {
		t.Errorf("rate = %v, want %v", got, minRate)
	}
}

func TestPlayerQuitStops(t *testing.T) {
	m, c := newTestPlayer(t)
	press(t, m, keySpace)

	_, cmd := m.Update(keyRune('q'))
	if cmd == nil {
		t.Fatal("q returned no command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q did not quit")
	}
	if st := c.Status().State; st != tts.StateIdle {
		t.Errorf("state after quit = %s, want idle", st)
	}
}

func TestPlayerCompletion(t *testing.T) {
	m, _ := newTestPlayer(t)
	m.cfg.QuitOnComplete = true

	_, cmd := m.Update(completeMsg{})
	if cmd == nil {
		t.Fatal("completion returned no command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("completion did not quit")
	}
	if m.Summary() != "Read 3 chunks." {
		t.Errorf("Summary() = %q", m.Summary())
	}
}

func TestPlayerTickSamplesStatus(t *testing.T) {
	m, c := newTestPlayer(t)
	// started behind the player's back; only the tick can notice
	if err := c.Play(); err != nil {
		t.Fatalf("Play() error = %v", err)
	}

	start := time.Now()
	msg := tick()()
	if _, ok := msg.(tickMsg); !ok {
		t.Fatalf("tick() produced %T, want tickMsg", msg)
	}
	if waited := time.Since(start); waited > 500*time.Millisecond {
		t.Errorf("tick waited %s, want about %s", waited, statusInterval)
	}

	_, cmd := m.Update(msg)
	if cmd == nil {
		t.Error("tick did not schedule the next sample")
	}
	if got := m.status.State(); got != tts.StatePlaying {
		t.Errorf("status after tick = %s, want playing", got)
	}
}
