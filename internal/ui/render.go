package ui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/mschirtzinger/stockroom/internal/types"
)

// Status glyphs.
const (
	GlyphPass = "✓"
	GlyphWarn = "⚠"
	GlyphFail = "✗"
	GlyphSync = "🔄"
)

// PendingBadge labels an unsynced item by the operation it still owes.
func PendingBadge(it types.Item) string {
	switch it.Pending {
	case types.PendingNone:
		return RenderPass("synced")
	case types.PendingCreate:
		return RenderWarn("pending create")
	case types.PendingUpdate:
		return RenderWarn("pending update")
	case types.PendingDelete:
		return RenderFail("pending delete")
	}
	return string(it.Pending)
}

// RenderItems lays items out as an aligned table. Widths are measured on
// the rendered cells so styled badges line up.
func RenderItems(items []types.Item) string {
	if len(items) == 0 {
		return RenderMuted("No items.")
	}

	header := []string{"ID", "NAME", "QTY", "CATEGORY", "STATUS"}
	rows := make([][]string, 0, len(items))
	for _, it := range items {
		rows = append(rows, []string{
			it.ID,
			it.Name,
			strconv.Itoa(it.Quantity),
			it.Category,
			PendingBadge(it),
		})
	}

	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if w := lipgloss.Width(cell); w > widths[i] {
				widths[i] = w
			}
		}
	}

	var b strings.Builder
	writeRow := func(cells []string, style func(string) string) {
		for i, cell := range cells {
			pad := widths[i] - lipgloss.Width(cell)
			if style != nil {
				cell = style(cell)
			}
			b.WriteString(cell)
			if i < len(cells)-1 {
				b.WriteString(strings.Repeat(" ", pad+2))
			}
		}
		b.WriteByte('\n')
	}

	writeRow(header, RenderBold)
	for _, row := range rows {
		writeRow(row, nil)
	}
	return strings.TrimRight(b.String(), "\n")
}

// RenderBanner frames a one-line status message, used for the
// online/offline indicator.
func RenderBanner(online bool, pending int) string {
	style := lipgloss.NewStyle().Padding(0, 1).Bold(true)
	var text string
	if online {
		style = style.Foreground(ColorPass)
		text = "● online"
	} else {
		style = style.Foreground(ColorWarn)
		text = "○ offline"
	}
	if pending > 0 {
		text += fmt.Sprintf(" · %d pending", pending)
	}
	return style.Render(text)
}
