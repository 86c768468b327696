package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
	"github.com/muesli/reflow/wordwrap"
)

var (
	highlightStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("226")). // Yellow
			Foreground(lipgloss.Color("0")).   // Black
			Bold(true)
	readStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
	unreadStyle = lipgloss.NewStyle()
)

// RenderLesson lays out at most visible chunks around cursor, wrapped to
// width. The chunk at cursor is highlighted and chunks already read are
// dimmed. A negative cursor renders from the start with no highlight.
func RenderLesson(chunks []string, cursor, width, visible int) string {
	if len(chunks) == 0 {
		return ""
	}
	if width <= 0 {
		width = 80
	}
	from, to := visibleRange(cursor, len(chunks), visible)

	var b strings.Builder
	for i := from; i < to; i++ {
		style := unreadStyle
		switch {
		case i == cursor:
			style = highlightStyle
		case i < cursor:
			style = readStyle
		}
		for _, line := range strings.Split(wordwrap.String(chunks[i], width), "\n") {
			b.WriteString(style.Render(line))
			b.WriteByte('\n')
		}
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// visibleRange picks a window of n chunks that keeps cursor in view, one
// chunk of context ahead of it where possible.
func visibleRange(cursor, total, n int) (int, int) {
	if n <= 0 || n >= total {
		return 0, total
	}
	if cursor < 0 {
		return 0, n
	}
	from := cursor - 1
	if from < 0 {
		from = 0
	}
	if from+n > total {
		from = total - n
	}
	return from, from + n
}

// Truncate shortens s to width cells for single-line display.
func Truncate(s string, width int) string {
	s = strings.Join(strings.Fields(s), " ")
	if width <= 0 || runewidth.StringWidth(s) <= width {
		return s
	}
	return runewidth.Truncate(s, width, "…")
}
