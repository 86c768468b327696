package ui

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/civichero/civichero/tts"
)

// Messages forwarded from the controller into the program.

type stateMsg struct{ state tts.StateType }

type utteranceMsg struct{ utterance tts.Utterance }

type progressMsg struct{ status tts.Status }

type errorMsg struct{ err error }

type completeMsg struct{}

// actionMsg reports the result of a controller call made from a command.
type actionMsg struct {
	action string
	err    error
}

// Bridge forwards controller callbacks to a bubbletea program. Controller
// hooks run on engine goroutines, so they are delivered through a channel
// that the program drains with Wait.
type Bridge struct {
	events chan tea.Msg
	done   chan struct{}
	once   sync.Once
}

// NewBridge registers callbacks on c. It replaces any callbacks already
// registered.
func NewBridge(c *tts.Controller) *Bridge {
	b := &Bridge{
		events: make(chan tea.Msg, 32),
		done:   make(chan struct{}),
	}
	c.OnStateChange(func(s tts.StateType) { b.send(stateMsg{s}) })
	c.OnUtterance(func(u tts.Utterance) { b.send(utteranceMsg{u}) })
	c.OnError(func(err error) { b.send(errorMsg{err}) })
	c.OnComplete(func() { b.send(completeMsg{}) })
	c.OnProgress(func(st tts.Status) {
		// progress is resampled on the next tick, drop it when the program is behind
		select {
		case b.events <- progressMsg{st}:
		default:
		}
	})
	return b
}

func (b *Bridge) send(msg tea.Msg) {
	select {
	case b.events <- msg:
	case <-b.done:
	}
}

// Wait returns a command that blocks until the next controller message.
func (b *Bridge) Wait() tea.Cmd {
	return func() tea.Msg {
		select {
		case msg := <-b.events:
			return msg
		case <-b.done:
			return nil
		}
	}
}

// Close releases any hook blocked on delivery.
func (b *Bridge) Close() {
	b.once.Do(func() { close(b.done) })
}

func controllerCmd(action string, fn func() error) tea.Cmd {
	return func() tea.Msg {
		return actionMsg{action: action, err: fn()}
	}
}
