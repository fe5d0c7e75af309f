package sink

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"golang.org/x/term"

	"marketpulse/internal/aggregate"
	"marketpulse/internal/format"
)

const clearScreen = "\033[H\033[2J"

var (
	colorAccent = lipgloss.AdaptiveColor{Light: "#5A56E0", Dark: "#7571F9"}
	colorDim    = lipgloss.AdaptiveColor{Light: "#9B9B9B", Dark: "#626262"}
	colorBorder = lipgloss.AdaptiveColor{Light: "#DBDBDB", Dark: "#383838"}
	colorWarn   = lipgloss.AdaptiveColor{Light: "#C2410C", Dark: "#F59E0B"}

	titleStyle  = lipgloss.NewStyle().Foreground(colorAccent).Bold(true)
	headerStyle = lipgloss.NewStyle().Foreground(colorAccent).Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	noteStyle   = lipgloss.NewStyle().Foreground(colorWarn)
	footerStyle = lipgloss.NewStyle().Foreground(colorDim)
)

// Terminal redraws the whole view on every Snapshot.
type Terminal struct {
	mu    sync.Mutex
	w     io.Writer
	clear bool
	loc   *time.Location
}

// NewTerminal writes to w. The screen is cleared between frames only when w
// is a terminal.
func NewTerminal(w io.Writer, loc *time.Location) *Terminal {
	if loc == nil {
		loc = time.Local
	}
	return &Terminal{w: w, clear: isTerminal(w), loc: loc}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

func (t *Terminal) Name() string { return "terminal" }

func (t *Terminal) Publish(_ context.Context, snap aggregate.Snapshot) error {
	frame := t.Render(snap)

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.clear {
		if _, err := io.WriteString(t.w, clearScreen); err != nil {
			return fmt.Errorf("clearing terminal: %w", err)
		}
	}
	if _, err := io.WriteString(t.w, frame); err != nil {
		return fmt.Errorf("writing terminal frame: %w", err)
	}
	return nil
}

// Render builds one frame without writing it.
func (t *Terminal) Render(snap aggregate.Snapshot) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Market update " + snap.GeneratedAt.In(t.loc).Format("2006-01-02 15:04:05 MST")))
	b.WriteString("\n")
	for _, blk := range format.Blocks(snap) {
		b.WriteString("\n")
		b.WriteString(titleStyle.Render(blk.Title))
		b.WriteString("\n")
		if blk.Note != "" {
			b.WriteString(noteStyle.Render(blk.Note))
			b.WriteString("\n")
			continue
		}
		tbl := table.New().
			Border(lipgloss.RoundedBorder()).
			BorderStyle(lipgloss.NewStyle().Foreground(colorBorder)).
			Headers(blk.Header...).
			Rows(blk.Rows...).
			StyleFunc(func(row, _ int) lipgloss.Style {
				if row == table.HeaderRow {
					return headerStyle
				}
				return cellStyle
			})
		b.WriteString(tbl.Render())
		b.WriteString("\n")
	}
	b.WriteString(footerStyle.Render("snapshot " + snap.ID.String()))
	b.WriteString("\n")
	return b.String()
}
