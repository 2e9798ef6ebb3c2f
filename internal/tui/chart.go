package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"energyforecast/internal/usage"
)

var (
	barStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")) // Blue bars

	axisStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")) // Dimmed axis and labels
)

// renderChart draws a column bar chart of the buckets. Each bucket gets one
// column (plus a space), scaled against the series maximum. X labels are
// thinned so they never overlap.
func renderChart(buckets []usage.Bucket, width, height int) string {
	if len(buckets) == 0 || height < 2 {
		return ""
	}

	colWidth := 2
	if len(buckets) > width/colWidth {
		colWidth = 1
	}
	cols := len(buckets)
	if cols*colWidth > width {
		cols = width / colWidth
	}

	var max float64
	for _, b := range buckets {
		if b.Value > max {
			max = b.Value
		}
	}

	rows := height - 2 // reserve axis + label rows
	grid := make([][]rune, rows)
	for i := range grid {
		grid[i] = make([]rune, cols*colWidth)
		for j := range grid[i] {
			grid[i][j] = ' '
		}
	}

	for i := 0; i < cols; i++ {
		var filled int
		if max > 0 {
			filled = int(buckets[i].Value / max * float64(rows))
			if filled == 0 && buckets[i].Value > 0 {
				filled = 1
			}
		}
		for r := 0; r < filled; r++ {
			grid[rows-1-r][i*colWidth] = '█'
		}
	}

	var sb strings.Builder
	for _, row := range grid {
		sb.WriteString(barStyle.Render(string(row)))
		sb.WriteByte('\n')
	}
	sb.WriteString(axisStyle.Render(strings.Repeat("─", cols*colWidth)))
	sb.WriteByte('\n')
	sb.WriteString(axisStyle.Render(xAxisLabels(buckets[:cols], colWidth)))
	return sb.String()
}

// xAxisLabels lays short labels under their columns, skipping any label that
// would collide with the previous one.
func xAxisLabels(buckets []usage.Bucket, colWidth int) string {
	line := make([]rune, len(buckets)*colWidth)
	for i := range line {
		line[i] = ' '
	}

	nextFree := 0
	for i, b := range buckets {
		label := b.ShortLabel
		if label == "" {
			label = b.Label
		}
		pos := i * colWidth
		if pos < nextFree || pos+len(label) > len(line) {
			continue
		}
		for j, ch := range label {
			line[pos+j] = ch
		}
		nextFree = pos + len(label) + 1
	}
	return string(line)
}

// renderProgressBar draws a fixed-width bar filled to percent.
func renderProgressBar(percent float64, width int) string {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	filled := int(percent / 100 * float64(width))
	bar := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
	return fmt.Sprintf("%s %.0f%%", barStyle.Render(bar), percent)
}
