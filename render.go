package main

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

var waveChars = []rune(" ▁▂▃▄▅▆▇█")

// frame is the Renderer the controller draws into. The TUI turns it into
// text in View.
type frame struct {
	peaks       []float64
	marker      float64
	scope       []float64
	placeholder string
}

func (f *frame) DrawWaveform(peaks []float64, marker float64) {
	f.peaks = peaks
	f.marker = marker
	f.placeholder = ""
}

func (f *frame) DrawScope(window []float64) {
	f.scope = window
}

func (f *frame) DrawPlaceholder(msg string) {
	f.peaks = nil
	f.scope = nil
	f.marker = 0
	f.placeholder = msg
}

// Theme is the immutable set of styles the views are drawn with.
type Theme struct {
	Title    lipgloss.Style
	Played   lipgloss.Style
	Unplayed lipgloss.Style
	Marker   lipgloss.Style
	Scope    lipgloss.Style
	Muted    lipgloss.Style
	Error    lipgloss.Style
	Cursor   lipgloss.Style
	Current  lipgloss.Style
}

func defaultTheme() Theme {
	return Theme{
		Title:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#D7D8A2")),
		Played:   lipgloss.NewStyle().Foreground(lipgloss.Color("#DDC074")),
		Unplayed: lipgloss.NewStyle().Foreground(lipgloss.Color("#5F5F5F")),
		Marker:   lipgloss.NewStyle().Foreground(lipgloss.Color("#D70000")).Bold(true),
		Scope:    lipgloss.NewStyle().Foreground(lipgloss.Color("#87D7AF")),
		Muted:    lipgloss.NewStyle().Foreground(lipgloss.Color("#808080")),
		Error:    lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F5F")),
		Cursor:   lipgloss.NewStyle().Reverse(true),
		Current:  lipgloss.NewStyle().Foreground(lipgloss.Color("#DDC074")).Bold(true),
	}
}

// columnPeaks reduces peaks to cols values, keeping the max of each span.
func columnPeaks(peaks []float64, cols int) []float64 {
	if cols <= 0 || len(peaks) == 0 {
		return nil
	}
	out := make([]float64, cols)
	perCol := float64(len(peaks)) / float64(cols)
	for c := range out {
		lo := int(float64(c) * perCol)
		hi := max(int(float64(c+1)*perCol), lo+1)
		hi = min(hi, len(peaks))
		for _, p := range peaks[min(lo, len(peaks)-1):hi] {
			out[c] = math.Max(out[c], p)
		}
	}
	return out
}

// markerColumn maps a ratio in [0,1] onto a column index.
func markerColumn(ratio float64, cols int) int {
	if cols <= 1 {
		return 0
	}
	return max(0, min(int(math.Round(ratio*float64(cols-1))), cols-1))
}

// renderWaveform draws the peak envelope as bars growing from the bottom,
// played columns highlighted and the marker column in its own style.
func renderWaveform(peaks []float64, marker float64, width, height int, th Theme) string {
	if width <= 0 || height <= 0 {
		return ""
	}
	cols := columnPeaks(peaks, width)
	mark := markerColumn(marker, width)
	levels := len(waveChars) - 1

	rows := make([]string, height)
	for r := 0; r < height; r++ {
		// Row 0 is the top; each row covers `levels` sub-steps.
		floor := (height - 1 - r) * levels
		var played, unplayed strings.Builder
		var line strings.Builder
		for c, amp := range cols {
			fill := int(math.Round(amp*float64(height*levels))) - floor
			ch := waveChars[max(0, min(fill, levels))]
			switch {
			case c == mark:
				line.WriteString(th.Played.Render(played.String()))
				line.WriteString(th.Unplayed.Render(unplayed.String()))
				played.Reset()
				unplayed.Reset()
				if ch == ' ' {
					ch = '│'
				}
				line.WriteString(th.Marker.Render(string(ch)))
			case c < mark:
				played.WriteRune(ch)
			default:
				unplayed.WriteRune(ch)
			}
		}
		line.WriteString(th.Played.Render(played.String()))
		line.WriteString(th.Unplayed.Render(unplayed.String()))
		rows[r] = line.String()
	}
	return strings.Join(rows, "\n")
}

// scopeRows places each column's sample on a row; +1 is the top row.
func scopeRows(window []float64, width, height int) []int {
	if width <= 0 || height <= 0 || len(window) == 0 {
		return nil
	}
	out := make([]int, width)
	for c := range out {
		i := min(c*len(window)/width, len(window)-1)
		v := max(-1, min(window[i], 1))
		out[c] = int(math.Round((1 - (v+1)/2) * float64(height-1)))
	}
	return out
}

// renderScope draws the oscilloscope trace; an empty window draws the zero
// line.
func renderScope(window []float64, width, height int, th Theme) string {
	if width <= 0 || height <= 0 {
		return ""
	}
	grid := make([][]rune, height)
	for r := range grid {
		grid[r] = []rune(strings.Repeat(" ", width))
	}

	rows := scopeRows(window, width, height)
	if rows == nil {
		mid := height / 2
		grid[mid] = []rune(strings.Repeat("─", width))
	} else {
		for c, r := range rows {
			grid[r][c] = '•'
		}
	}

	lines := make([]string, height)
	for r := range grid {
		lines[r] = th.Scope.Render(string(grid[r]))
	}
	return strings.Join(lines, "\n")
}

// renderPlaceholder centres msg in a box of the given size.
func renderPlaceholder(msg string, width, height int, th Theme) string {
	if width <= 0 || height <= 0 {
		return ""
	}
	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, th.Muted.Render(msg))
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	m := d / time.Minute
	s := (d % time.Minute) / time.Second
	return fmt.Sprintf("%d:%02d", m, s)
}
