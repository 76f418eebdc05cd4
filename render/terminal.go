package render

import (
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"honnef.co/go/schedbox/color"
	"honnef.co/go/schedbox/sched"
)

var (
	labelStyle = lipgloss.NewStyle().Bold(true)
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#6272A4"))
)

// strip is one row of the terminal timeline: the boxes of one variant and family.
type strip struct {
	label string
	// Index into boxes for each bin, or -1.
	cells []int
}

// strips groups boxes into rows, in order of first appearance. A box covers the bins from the one it was opened in up
// to, but excluding, the one it was closed in. Boxes that open and close in the same bin cover that bin.
func strips(boxes []sched.Box, nbins int) []strip {
	var out []strip
	rows := map[string]int{}
	for i, b := range boxes {
		label := b.Variant + "/" + b.Family.String()
		row, ok := rows[label]
		if !ok {
			cells := make([]int, nbins)
			for j := range cells {
				cells[j] = -1
			}
			row = len(out)
			rows[label] = row
			out = append(out, strip{label: label, cells: cells})
		}
		end := max(b.CloseBin, b.OpenBin+1)
		for bin := max(b.OpenBin, 0); bin < end && bin < nbins; bin++ {
			out[row].cells[bin] = i
		}
	}
	return out
}

// Terminal writes a timeline of boxes over nbins bins, one row per variant and family.
func Terminal(w io.Writer, boxes []sched.Box, nbins int) error {
	rows := strips(boxes, nbins)
	width := 0
	for _, row := range rows {
		width = max(width, len(row.label))
	}

	var sb strings.Builder
	for _, row := range rows {
		sb.WriteString(labelStyle.Render(row.label))
		sb.WriteString(strings.Repeat(" ", width-len(row.label)))
		sb.WriteString(" │")
		// Render runs of equal cells at once, to keep escape sequences down.
		for start := 0; start < len(row.cells); {
			end := start + 1
			for end < len(row.cells) && row.cells[end] == row.cells[start] {
				end++
			}
			if idx := row.cells[start]; idx == -1 {
				sb.WriteString(dimStyle.Render(strings.Repeat("·", end-start)))
			} else {
				c := boxes[idx].Color
				c.A = 0xFF
				style := lipgloss.NewStyle().Foreground(lipgloss.Color(color.Hex(c)))
				sb.WriteString(style.Render(strings.Repeat("█", end-start)))
			}
			start = end
		}
		sb.WriteString("│\n")
	}
	_, err := io.WriteString(w, sb.String())
	return err
}
