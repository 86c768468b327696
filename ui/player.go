package ui

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/civichero/civichero/tts"
	"github.com/civichero/civichero/tts/sentence"
)

const (
	rateStep = 0.1
	minRate  = 0.5
	maxRate  = 2.0

	maxProgressWidth = 60
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.AdaptiveColor{Light: "#1C8760", Dark: "#89F0CB"}).
			MarginBottom(1)
	separator = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Render(" │ ")
	noteStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#656565", Dark: "#7D7D7D"})
)

// statusInterval is how often the player samples the controller status.
const statusInterval = 100 * time.Millisecond

type tickMsg time.Time

// Player is the bubbletea model that reads one lesson aloud.
type Player struct {
	cfg        Config
	controller *tts.Controller
	bridge     *Bridge
	request    tts.Request
	chunks     []string

	status   *StatusDisplay
	keys     keyMap
	help     help.Model
	progress progress.Model
	spinner  spinner.Model
	now      func() time.Time

	width    int
	loaded   bool
	finished bool
}

// NewPlayer creates a player for req. It takes over the controller's
// callbacks.
func NewPlayer(c *tts.Controller, req tts.Request, cfg Config) *Player {
	if cfg.MaxChunkLength <= 0 {
		cfg.MaxChunkLength = sentence.DefaultMaxLength
	}
	return &Player{
		cfg:        cfg,
		controller: c,
		bridge:     NewBridge(c),
		request:    req,
		chunks:     sentence.Split(req.Text, cfg.MaxChunkLength),
		status:     NewStatusDisplay(),
		keys:       newKeyMap(),
		help:       help.New(),
		progress:   progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		spinner:    spinner.New(spinner.WithSpinner(spinner.MiniDot)),
		now:        time.Now,
		width:      80,
	}
}

// Init loads the lesson and starts listening for controller messages.
func (m *Player) Init() tea.Cmd {
	req := m.request
	return tea.Batch(
		m.bridge.Wait(),
		m.spinner.Tick,
		tick(),
		controllerCmd("load", func() error { return m.controller.Load(req) }),
	)
}

func tick() tea.Cmd {
	return tea.Tick(statusInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Update handles input and controller messages.
func (m *Player) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width
		m.progress.Width = int(math.Min(float64(msg.Width-4), maxProgressWidth))
		return m, nil

	case tea.KeyMsg:
		return m, m.handleKey(msg)

	case stateMsg:
		m.status.SetState(msg.state)
		m.status.Update(m.controller.Status())
		return m, m.bridge.Wait()

	case utteranceMsg:
		m.status.SetUtterance(msg.utterance)
		return m, m.bridge.Wait()

	case progressMsg:
		m.status.Update(msg.status)
		return m, m.bridge.Wait()

	case errorMsg:
		m.status.SetError(msg.err)
		log.Error("Playback failed", "err", msg.err)
		return m, m.bridge.Wait()

	case completeMsg:
		m.finished = true
		m.status.Update(m.controller.Status())
		if m.cfg.QuitOnComplete {
			return m, m.quit()
		}
		return m, m.bridge.Wait()

	case actionMsg:
		if msg.action == "load" {
			m.loaded = msg.err == nil
		}
		if msg.err != nil && !errors.Is(msg.err, tts.ErrInvalidState) {
			m.status.SetError(msg.err)
			log.Error("Player action failed", "action", msg.action, "err", msg.err)
		}
		m.status.Update(m.controller.Status())
		return m, nil

	case tickMsg:
		m.status.Update(m.controller.Status())
		return m, tick()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *Player) handleKey(msg tea.KeyMsg) tea.Cmd {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m.quit()

	case key.Matches(msg, m.keys.Toggle):
		m.finished = false
		m.status.ClearError()
		if m.status.State() == tts.StatePlaying {
			return controllerCmd("pause", m.controller.Pause)
		}
		return controllerCmd("play", m.controller.Play)

	case key.Matches(msg, m.keys.Stop):
		return controllerCmd("stop", m.controller.Stop)

	case key.Matches(msg, m.keys.Mute):
		return controllerCmd("mute", m.controller.ToggleMute)

	case key.Matches(msg, m.keys.Faster):
		return m.changeRate(rateStep)

	case key.Matches(msg, m.keys.Slower):
		return m.changeRate(-rateStep)

	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
	}
	return nil
}

func (m *Player) changeRate(delta float64) tea.Cmd {
	cfg := m.controller.VoiceConfig()
	rate := math.Round((cfg.Rate+delta)*10) / 10
	rate = math.Max(minRate, math.Min(maxRate, rate))
	if rate == cfg.Rate {
		return nil
	}
	cfg.Rate = rate
	return controllerCmd("rate", func() error { return m.controller.SetVoiceConfig(cfg) })
}

func (m *Player) quit() tea.Cmd {
	m.bridge.Close()
	if err := m.controller.Stop(); err != nil {
		log.Warn("Could not stop playback", "err", err)
	}
	return tea.Quit
}

// View renders the player.
func (m *Player) View() string {
	var b strings.Builder

	title := m.cfg.Title
	if title == "" {
		title = "Lesson"
	}
	b.WriteString(titleStyle.Render(Truncate(title, m.width)))
	b.WriteByte('\n')

	if !m.loaded {
		b.WriteString(m.spinner.View() + " Loading lesson…\n")
		return b.String()
	}

	if len(m.chunks) == 0 {
		b.WriteString(noteStyle.Render("Nothing to read."))
		b.WriteString("\n\n")
	} else {
		b.WriteString(RenderLesson(m.chunks, m.status.Cursor(), m.width-2, m.cfg.VisibleChunks))
		b.WriteString("\n\n")
	}

	parts := []string{m.status.CompactStatus(), m.status.VoiceStatus()}
	if m.cfg.Engine != "" {
		parts = append(parts, noteStyle.Render(m.cfg.Engine))
	}
	if left := m.status.TimeLeft(m.now()); left != "" {
		parts = append(parts, noteStyle.Render(left))
	}
	if m.finished {
		parts = append(parts, noteStyle.Render("finished"))
	}
	b.WriteString(strings.Join(parts, separator))
	b.WriteByte('\n')
	b.WriteString(m.progress.ViewAs(m.status.Progress()))
	b.WriteByte('\n')

	if line := m.status.ErrorLine(); line != "" {
		b.WriteString(line)
		b.WriteByte('\n')
	}

	b.WriteByte('\n')
	b.WriteString(m.help.View(m.keys))
	return b.String()
}

// Summary describes the final status after the program exits.
func (m *Player) Summary() string {
	if m.finished {
		return fmt.Sprintf("Read %d chunks.", len(m.chunks))
	}
	return "Stopped."
}
