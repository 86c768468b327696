package espeak

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/civichero/civichero/tts"
)

func TestArgs(t *testing.T) {
	tests := []struct {
		name string
		u    tts.Utterance
		want string
	}{
		{
			name: "defaults",
			u:    tts.Utterance{Rate: 1, Pitch: 1, Volume: 1},
			want: "-s 175 -p 50 -a 100",
		},
		{
			name: "lesson voice",
			u:    tts.Utterance{Rate: 0.8, Pitch: 1, Volume: 0.8, Voice: tts.Voice{ID: "sw"}},
			want: "-s 140 -p 50 -a 80 -v sw",
		},
		{
			name: "muted",
			u:    tts.Utterance{Rate: 1, Pitch: 1, Volume: 0},
			want: "-s 175 -p 50 -a 0",
		},
		{
			name: "clamped",
			u:    tts.Utterance{Rate: 10, Pitch: 5, Volume: 9},
			want: "-s 450 -p 99 -a 200",
		},
		{
			name: "zero rate",
			u:    tts.Utterance{Pitch: 1, Volume: 1},
			want: "-s 175 -p 50 -a 100",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := strings.Join(Args(tt.u), " ")
			if got != tt.want {
				t.Errorf("Args() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseVoices(t *testing.T) {
	out := []byte(`Pty Language       Age/Gender VoiceName          File                 Other Languages
 5  en-gb           --/M      English_(Great_Britain) gmw/en
 2  en-us           --/M      English_(America)  gmw/en-US
 5  sw              --/M      Swahili            bnt/sw
`)

	voices := ParseVoices(out)
	if len(voices) != 3 {
		t.Fatalf("ParseVoices() returned %d voices, want 3", len(voices))
	}
	if voices[0].Name != "English (Great Britain)" || voices[0].ID != "en-gb" {
		t.Errorf("voices[0] = %+v", voices[0])
	}
	if voices[2].Locale != "sw" {
		t.Errorf("voices[2].Locale = %q, want sw", voices[2].Locale)
	}

	v, err := tts.SelectVoice(voices, tts.LanguageSwahili)
	if err != nil || v.ID != "sw" {
		t.Errorf("SelectVoice() = %+v, %v", v, err)
	}
}

// fakeBinary writes a shell script standing in for espeak-ng.
func fakeBinary(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts are not supported on windows")
	}
	path := filepath.Join(t.TempDir(), "espeak-ng")
	script := "#!/bin/sh\ncat > /dev/null\n" + body + "\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func waitEvent(t *testing.T, events chan tts.Event) tts.Event {
	t.Helper()
	select {
	case ev := <-events:
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for engine event")
	}
	return tts.Event{}
}

func TestEngineSpeak(t *testing.T) {
	engine := New(Config{BinaryPath: fakeBinary(t, "exit 0")}, nil)
	events := make(chan tts.Event, 4)

	u := tts.Utterance{Session: 1, Index: 0, Text: "Habari", Rate: 1}
	if err := engine.Speak(u, func(ev tts.Event) { events <- ev }); err != nil {
		t.Fatalf("Speak() error = %v", err)
	}

	if ev := waitEvent(t, events); ev.Kind != tts.EventStart {
		t.Errorf("first event = %s, want start", ev.Kind)
	}
	if ev := waitEvent(t, events); ev.Kind != tts.EventEnd {
		t.Errorf("second event = %s (%v), want end", ev.Kind, ev.Err)
	}
}

func TestEngineFailure(t *testing.T) {
	engine := New(Config{BinaryPath: fakeBinary(t, "echo 'voice not found' >&2\nexit 1")}, nil)
	events := make(chan tts.Event, 4)

	if err := engine.Speak(tts.Utterance{Text: "x"}, func(ev tts.Event) { events <- ev }); err != nil {
		t.Fatalf("Speak() error = %v", err)
	}
	waitEvent(t, events) // start

	ev := waitEvent(t, events)
	if ev.Kind != tts.EventError {
		t.Fatalf("event = %s, want error", ev.Kind)
	}
	if tts.IsInterrupted(ev.Err) {
		t.Errorf("process failure reported as interruption")
	}
	if !strings.Contains(ev.Err.Error(), "voice not found") {
		t.Errorf("error %q does not carry stderr", ev.Err)
	}
}

func TestEngineCancel(t *testing.T) {
	engine := New(Config{BinaryPath: fakeBinary(t, "sleep 30")}, nil)
	events := make(chan tts.Event, 4)

	if err := engine.Speak(tts.Utterance{Text: "long"}, func(ev tts.Event) { events <- ev }); err != nil {
		t.Fatalf("Speak() error = %v", err)
	}
	waitEvent(t, events) // start

	if err := engine.Pause(); err != nil {
		t.Fatalf("Pause() error = %v", err)
	}
	if err := engine.Resume(); err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	engine.Cancel()

	ev := waitEvent(t, events)
	if ev.Kind != tts.EventError || !errors.Is(ev.Err, tts.ErrInterrupted) {
		t.Errorf("event after cancel = %s (%v), want interrupted", ev.Kind, ev.Err)
	}
}

func TestEngineTimeoutSkipsPausedTime(t *testing.T) {
	engine := New(Config{BinaryPath: fakeBinary(t, "sleep 0.3"), Timeout: 500 * time.Millisecond}, nil)
	events := make(chan tts.Event, 4)

	if err := engine.Speak(tts.Utterance{Text: "Katiba"}, func(ev tts.Event) { events <- ev }); err != nil {
		t.Fatalf("Speak() error = %v", err)
	}
	waitEvent(t, events) // start

	if err := engine.Pause(); err != nil {
		t.Fatalf("Pause() error = %v", err)
	}
	time.Sleep(800 * time.Millisecond)
	if err := engine.Resume(); err != nil {
		t.Fatalf("Resume() error = %v", err)
	}

	if ev := waitEvent(t, events); ev.Kind != tts.EventEnd {
		t.Errorf("event after long pause = %s (%v), want end", ev.Kind, ev.Err)
	}
}

func TestEngineTimeout(t *testing.T) {
	engine := New(Config{BinaryPath: fakeBinary(t, "sleep 30"), Timeout: 100 * time.Millisecond}, nil)
	events := make(chan tts.Event, 4)

	if err := engine.Speak(tts.Utterance{Text: "long"}, func(ev tts.Event) { events <- ev }); err != nil {
		t.Fatalf("Speak() error = %v", err)
	}
	waitEvent(t, events) // start

	ev := waitEvent(t, events)
	if ev.Kind != tts.EventError || tts.IsInterrupted(ev.Err) {
		t.Fatalf("event = %s (%v), want a timeout error", ev.Kind, ev.Err)
	}
	if !strings.Contains(ev.Err.Error(), "timed out") {
		t.Errorf("error %q does not mention the timeout", ev.Err)
	}
}

func TestEngineMissingBinary(t *testing.T) {
	engine := New(Config{BinaryPath: filepath.Join(t.TempDir(), "missing")}, nil)
	if engine.Available() {
		t.Error("Available() = true for missing binary")
	}
	if err := engine.Speak(tts.Utterance{Text: "x"}, func(tts.Event) {}); err == nil {
		t.Error("Speak() succeeded with missing binary")
	}
	if voices := engine.Voices(); len(voices) != 0 {
		t.Errorf("Voices() = %v, want none", voices)
	}
}
