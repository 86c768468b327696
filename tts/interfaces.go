package tts

// Engine is the boundary to a speech synthesizer. Implementations are
// process-wide resources: a Controller assumes it is the only caller.
//
// Speak is asynchronous. The engine reports the utterance lifecycle by
// calling notify with EventStart, then exactly one of EventEnd or
// EventError. notify must never be called from inside Speak, Pause, Resume
// or Cancel, and the engine must not hold its own locks while calling it.
type Engine interface {
	// Speak queues u for synthesis.
	Speak(u Utterance, notify func(Event)) error

	// Pause suspends the utterance currently being spoken.
	Pause() error

	// Resume continues a paused utterance.
	Resume() error

	// Cancel drops the in-flight utterance and anything queued. It is
	// synchronous and best-effort; a cancelled utterance may still report
	// EventError wrapping ErrInterrupted.
	Cancel()

	// Voices lists the voices the engine can speak with.
	Voices() []Voice
}

// Language is a lesson language.
type Language string

const (
	LanguageEnglish Language = "en"
	LanguageSwahili Language = "sw"
)

// Valid reports whether l is a language lessons can be read in.
func (l Language) Valid() bool {
	return l == LanguageEnglish || l == LanguageSwahili
}

// Request is one piece of text to read aloud. A new request replaces any
// request in flight.
type Request struct {
	Text     string
	Language Language
	AutoPlay bool
}

// Voice identifies a synthesizer voice.
type Voice struct {
	ID     string // Engine-specific identifier
	Name   string // Human-readable name
	Locale string // BCP 47 tag, e.g. "sw-KE"
}

// VoiceConfig holds the speech parameters applied to every utterance of a
// session.
type VoiceConfig struct {
	Voice  Voice
	Rate   float64 // 1.0 is the engine's normal rate
	Pitch  float64 // 1.0 is the engine's normal pitch
	Volume float64 // 0.0 to 1.0
	Muted  bool
}

// DefaultVoiceConfig returns the rate, pitch and volume the lesson player
// starts with. The slower rate helps comprehension.
func DefaultVoiceConfig() VoiceConfig {
	return VoiceConfig{
		Rate:   0.8,
		Pitch:  1,
		Volume: 0.8,
	}
}

// EffectiveVolume is the volume sent to the engine.
func (c VoiceConfig) EffectiveVolume() float64 {
	if c.Muted {
		return 0
	}
	return c.Volume
}

// Utterance is one chunk bound to the voice parameters active when it was
// queued.
type Utterance struct {
	Session uint64 // Playback generation the utterance belongs to
	Index   int    // Position in the session queue
	Text    string
	Voice   Voice
	Rate    float64
	Pitch   float64
	Volume  float64
}

// EventKind enumerates engine lifecycle signals.
type EventKind int

const (
	EventStart EventKind = iota
	EventEnd
	EventError
)

// String returns the string representation of the event kind.
func (k EventKind) String() string {
	switch k {
	case EventStart:
		return "start"
	case EventEnd:
		return "end"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is a lifecycle signal for one utterance.
type Event struct {
	Kind    EventKind
	Session uint64
	Index   int
	Err     error // Set for EventError
}

// EventFor builds an event addressed to u.
func EventFor(u Utterance, kind EventKind, err error) Event {
	return Event{Kind: kind, Session: u.Session, Index: u.Index, Err: err}
}
