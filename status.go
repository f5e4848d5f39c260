package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/mattn/go-runewidth"
	"golang.org/x/term"
)

type statusInfo struct {
	State    string
	Title    string
	Section  int
	Sections int
	Chars    int
	Total    int
	Position time.Duration
	Duration time.Duration
	Rate     string
	Cached   int64
}

var (
	stateStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575")).Bold(true)
	pauseStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#F1F1F1")).Background(lipgloss.Color("#FF5F87")).Padding(0, 1)
)

func (s statusInfo) String() string {
	state := stateStyle.Render(s.State)
	if s.State != "reading" {
		state = pauseStyle.Render(s.State)
	}

	pct := 0
	if s.Total > 0 {
		pct = s.Chars * 100 / s.Total
	}

	parts := []string{
		fmt.Sprintf("%d/%d", s.Section, s.Sections),
		fmt.Sprintf("%d%%", pct),
		s.Rate,
		formatClock(s.Position) + "/" + formatClock(s.Duration),
	}
	if s.Cached > 0 {
		parts = append(parts, humanize.IBytes(uint64(s.Cached))+" cached")
	}
	return state + " " + faint(strings.Join(parts, " · ")) + " " + s.Title
}

func formatClock(d time.Duration) string {
	d = d.Round(time.Second)
	return fmt.Sprintf("%d:%02d", int(d.Minutes()), int(d.Seconds())%60)
}

// statusLine redraws a single terminal line in place.
type statusLine struct {
	w     io.Writer
	width int
	last  string
}

func newStatusLine(w io.Writer) *statusLine {
	width := 80
	if f, ok := w.(*os.File); ok {
		if tw, _, err := term.GetSize(int(f.Fd())); err == nil && tw > 0 {
			width = tw
		}
	}
	return &statusLine{w: w, width: width}
}

func (l *statusLine) render(info statusInfo) {
	line := info.String()
	if lipgloss.Width(line) > l.width {
		// styles are dropped when the line must be cut
		line = runewidth.Truncate(plainStatus(info), l.width-1, "…")
	}
	if line == l.last {
		return
	}
	l.last = line
	fmt.Fprint(l.w, "\r\x1b[2K"+line)
}

func plainStatus(s statusInfo) string {
	pct := 0
	if s.Total > 0 {
		pct = s.Chars * 100 / s.Total
	}
	return fmt.Sprintf("%s %d/%d %d%% %s %s", s.State, s.Section, s.Sections, pct, s.Rate, s.Title)
}

// message prints text on its own line and keeps the status below it.
func (l *statusLine) message(text string) {
	fmt.Fprint(l.w, "\r\x1b[2K"+text+"\r\n")
	l.last = ""
}

func (l *statusLine) done() {
	if l.last != "" {
		fmt.Fprint(l.w, "\r\n")
	}
}
