// Package ui implements the terminal lesson player.
package ui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/civichero/civichero/tts"
)

// NewProgram creates the bubbletea program for the player.
func NewProgram(cfg Config, c *tts.Controller, req tts.Request) (*tea.Program, *Player) {
	log.Debug(
		"Starting player",
		"engine", cfg.Engine,
		"alt_screen", cfg.AltScreen,
		"chunks_visible", cfg.VisibleChunks,
	)

	var opts []tea.ProgramOption
	if cfg.AltScreen {
		opts = append(opts, tea.WithAltScreen())
	}
	m := NewPlayer(c, req, cfg)
	return tea.NewProgram(m, opts...), m
}
