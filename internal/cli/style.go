package cli

import (
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

var (
	clrBrand = lipgloss.Color("208") // rust orange
	clrGreen = lipgloss.Color("114")
	clrRed   = lipgloss.Color("203")
	clrDim   = lipgloss.Color("245")
)

// styles are no-ops unless the writer is a terminal.
type styles struct {
	enabled bool

	Header lipgloss.Style
	Name   lipgloss.Style
	Dim    lipgloss.Style
	OK     lipgloss.Style
	Error  lipgloss.Style
}

func newStyles(w io.Writer) styles {
	enabled := false
	if f, ok := w.(*os.File); ok {
		enabled = term.IsTerminal(int(f.Fd()))
	}

	plain := lipgloss.NewStyle()
	s := styles{enabled: enabled, Header: plain, Name: plain, Dim: plain, OK: plain, Error: plain}
	if !enabled {
		return s
	}
	s.Header = lipgloss.NewStyle().Foreground(clrBrand).Bold(true)
	s.Name = lipgloss.NewStyle().Bold(true)
	s.Dim = lipgloss.NewStyle().Foreground(clrDim)
	s.OK = lipgloss.NewStyle().Foreground(clrGreen)
	s.Error = lipgloss.NewStyle().Foreground(clrRed)
	return s
}

// table renders rows in aligned columns. Cells are styled per column; the
// last column is never padded.
type table struct {
	header []string
	rows   [][]string
	styles []lipgloss.Style
}

func (t *table) add(cells ...string) {
	t.rows = append(t.rows, cells)
}

func (t *table) render(w io.Writer, header lipgloss.Style) error {
	widths := make([]int, len(t.header))
	for i, h := range t.header {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range t.rows {
		for i, cell := range row {
			if n := lipgloss.Width(cell); n > widths[i] {
				widths[i] = n
			}
		}
	}

	line := func(cells []string, style func(i int) lipgloss.Style) string {
		parts := make([]string, len(cells))
		for i, cell := range cells {
			pad := ""
			if i < len(cells)-1 {
				pad = strings.Repeat(" ", widths[i]-lipgloss.Width(cell))
			}
			parts[i] = style(i).Render(cell) + pad
		}
		return strings.TrimRight(strings.Join(parts, "  "), " ") + "\n"
	}

	if _, err := io.WriteString(w, line(t.header, func(int) lipgloss.Style { return header })); err != nil {
		return err
	}
	for _, row := range t.rows {
		if _, err := io.WriteString(w, line(row, func(i int) lipgloss.Style {
			if i < len(t.styles) {
				return t.styles[i]
			}
			return lipgloss.NewStyle()
		})); err != nil {
			return err
		}
	}
	return nil
}
