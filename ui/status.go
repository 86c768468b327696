package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/civichero/civichero/tts"
	"github.com/dustin/go-humanize"
)

// StatusDisplay renders playback status for the player.
type StatusDisplay struct {
	state        tts.StateType
	cursor       int
	total        int
	elapsed      time.Duration
	estimated    time.Duration
	progress     float64
	voice        tts.VoiceConfig
	errorMessage string
}

// NewStatusDisplay creates a status display for an idle controller.
func NewStatusDisplay() *StatusDisplay {
	return &StatusDisplay{
		state:  tts.StateIdle,
		cursor: -1,
	}
}

// Update copies a controller snapshot.
func (s *StatusDisplay) Update(st tts.Status) {
	s.state = st.State
	s.total = st.Total
	s.elapsed = st.Elapsed
	s.estimated = st.Estimated
	s.progress = st.Progress
	s.voice = st.Voice
	if st.Total > 0 {
		s.cursor = st.Cursor
	} else {
		s.cursor = -1
	}
	if st.LastError != nil {
		s.errorMessage = st.LastError.Error()
	}
}

// SetUtterance moves the cursor to the utterance the engine started.
func (s *StatusDisplay) SetUtterance(u tts.Utterance) {
	s.cursor = u.Index
}

// SetError records a session-ending error.
func (s *StatusDisplay) SetError(err error) {
	if err == nil {
		s.errorMessage = ""
		return
	}
	s.errorMessage = err.Error()
}

// ClearError drops the last error.
func (s *StatusDisplay) ClearError() {
	s.errorMessage = ""
}

// State returns the last known controller state.
func (s *StatusDisplay) State() tts.StateType {
	return s.state
}

// SetState records a state change.
func (s *StatusDisplay) SetState(state tts.StateType) {
	s.state = state
	if state == tts.StateIdle {
		s.cursor = -1
		s.total = 0
	}
}

// Cursor returns the index of the chunk being read, or -1.
func (s *StatusDisplay) Cursor() int {
	return s.cursor
}

// Progress returns completion as a fraction from 0 to 1.
func (s *StatusDisplay) Progress() float64 {
	return s.progress / 100
}

// Remaining is the estimated time left in the session.
func (s *StatusDisplay) Remaining() time.Duration {
	if s.elapsed >= s.estimated {
		return 0
	}
	return s.estimated - s.elapsed
}

// CompactStatus returns a one-line state indicator.
func (s *StatusDisplay) CompactStatus() string {
	status := lipgloss.NewStyle().
		Foreground(s.stateColor()).
		Render(fmt.Sprintf("%s %s", s.stateIcon(), stateLabel(s.state)))

	if (s.state == tts.StatePlaying || s.state == tts.StatePaused) && s.total > 0 && s.cursor >= 0 {
		counterStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
		status += counterStyle.Render(fmt.Sprintf(" %d/%d", s.cursor+1, s.total))
	}
	return status
}

// VoiceStatus describes the active voice parameters.
func (s *StatusDisplay) VoiceStatus() string {
	parts := []string{fmt.Sprintf("%.1fx", s.voice.Rate)}
	if s.voice.Voice.Name != "" {
		parts = append(parts, s.voice.Voice.Name)
	} else if s.voice.Voice.ID != "" {
		parts = append(parts, s.voice.Voice.ID)
	}
	if s.voice.Muted {
		parts = append(parts, "muted")
	}
	return lipgloss.NewStyle().
		Foreground(lipgloss.Color("141")).
		Render(strings.Join(parts, " · "))
}

// TimeLeft describes the remaining time relative to now.
func (s *StatusDisplay) TimeLeft(now time.Time) string {
	if s.state != tts.StatePlaying && s.state != tts.StatePaused {
		return ""
	}
	return humanize.RelTime(now, now.Add(s.Remaining()), "left", "")
}

// ErrorLine renders the last error, if any.
func (s *StatusDisplay) ErrorLine() string {
	if s.errorMessage == "" {
		return ""
	}
	return lipgloss.NewStyle().
		Foreground(lipgloss.Color("196")).
		Render("✗ " + s.errorMessage)
}

func (s *StatusDisplay) stateIcon() string {
	switch s.state {
	case tts.StatePlaying:
		return "▶"
	case tts.StatePaused:
		return "⏸"
	case tts.StateStopped:
		return "◼"
	default:
		return "■"
	}
}

func (s *StatusDisplay) stateColor() lipgloss.Color {
	switch s.state {
	case tts.StatePlaying:
		return lipgloss.Color("#00FF00")
	case tts.StatePaused:
		return lipgloss.Color("#FFFF00")
	case tts.StateStopped:
		return lipgloss.Color("#FF8800")
	default:
		return lipgloss.Color("#888888")
	}
}

func stateLabel(state tts.StateType) string {
	switch state {
	case tts.StatePlaying:
		return "Playing"
	case tts.StatePaused:
		return "Paused"
	case tts.StateStopped:
		return "Stopping"
	default:
		return "Ready"
	}
}
