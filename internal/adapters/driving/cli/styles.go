package cli

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/custodia-labs/sercha-feed/internal/core/domain"
)

// theme is the colour palette for command output.
type theme struct {
	Primary   lipgloss.Color
	Secondary lipgloss.Color
	Muted     lipgloss.Color
	Success   lipgloss.Color
	Warning   lipgloss.Color
	Error     lipgloss.Color
}

func defaultTheme() theme {
	return theme{
		Primary:   lipgloss.Color("#7C3AED"), // Purple
		Secondary: lipgloss.Color("#06B6D4"), // Cyan
		Muted:     lipgloss.Color("#6C7086"), // Medium gray
		Success:   lipgloss.Color("#A6E3A1"), // Green
		Warning:   lipgloss.Color("#F9E2AF"), // Yellow
		Error:     lipgloss.Color("#F38BA8"), // Red
	}
}

// styles are the pre-configured lipgloss styles. Colours are dropped
// automatically when stdout is not a terminal.
type styles struct {
	Title   lipgloss.Style
	Header  lipgloss.Style
	Normal  lipgloss.Style
	Muted   lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
}

func newStyles(t theme) *styles {
	return &styles{
		Title:   lipgloss.NewStyle().Bold(true).Foreground(t.Primary),
		Header:  lipgloss.NewStyle().Bold(true).Foreground(t.Secondary),
		Normal:  lipgloss.NewStyle(),
		Muted:   lipgloss.NewStyle().Foreground(t.Muted),
		Success: lipgloss.NewStyle().Foreground(t.Success),
		Warning: lipgloss.NewStyle().Foreground(t.Warning),
		Error:   lipgloss.NewStyle().Foreground(t.Error),
	}
}

var ui = newStyles(defaultTheme())

// outcomeStyle colours a traversal outcome.
func outcomeStyle(o domain.TraversalOutcome) lipgloss.Style {
	switch o {
	case domain.OutcomeCheckpointed, domain.OutcomeFinished:
		return ui.Success
	case domain.OutcomeCancelled:
		return ui.Warning
	case domain.OutcomeFailed:
		return ui.Error
	default:
		return ui.Normal
	}
}

// sinkStyle colours a sink status.
func sinkStyle(s domain.PusherStatus) lipgloss.Style {
	switch {
	case s == domain.PusherOK:
		return ui.Success
	case s == domain.PusherDisabled:
		return ui.Error
	case s.Congested():
		return ui.Warning
	default:
		return ui.Normal
	}
}

// table renders rows in padded columns under a styled header.
type table struct {
	header []string
	rows   [][]string
	styles [][]lipgloss.Style
}

func newTable(header ...string) *table {
	return &table{header: header}
}

// add appends a row. A nil style renders the cell unstyled.
func (t *table) add(cells []string, cellStyles ...lipgloss.Style) {
	t.rows = append(t.rows, cells)
	t.styles = append(t.styles, cellStyles)
}

func (t *table) render() string {
	widths := make([]int, len(t.header))
	for i, h := range t.header {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range t.rows {
		for i, c := range row {
			if w := lipgloss.Width(c); i < len(widths) && w > widths[i] {
				widths[i] = w
			}
		}
	}

	var b []byte
	line := func(cells []string, style func(i int) lipgloss.Style) {
		for i, c := range cells {
			if i >= len(widths) {
				break
			}
			cell := style(i).Render(c)
			if i < len(cells)-1 {
				cell = lipgloss.NewStyle().Width(widths[i] + 2).Render(cell)
			}
			b = append(b, cell...)
		}
		b = append(b, '\n')
	}

	line(t.header, func(int) lipgloss.Style { return ui.Header })
	for r, row := range t.rows {
		line(row, func(i int) lipgloss.Style {
			if i < len(t.styles[r]) {
				return t.styles[r][i]
			}
			return ui.Normal
		})
	}
	return string(b)
}

// terminalWidth returns the stdout width, or 0 when stdout is not a
// terminal.
func terminalWidth() int {
	fd := int(os.Stdout.Fd())
	if !term.IsTerminal(fd) {
		return 0
	}
	w, _, err := term.GetSize(fd)
	if err != nil {
		return 0
	}
	return w
}

// truncate shortens s to n runes with a trailing ellipsis. n <= 1 leaves s
// untouched.
func truncate(s string, n int) string {
	r := []rune(s)
	if n <= 1 || len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
