// Package toast draws the pop-up stack.
package toast

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/nhle/taskpulse/internal/model"
	"github.com/nhle/taskpulse/internal/presentation"
	"github.com/nhle/taskpulse/internal/theme"
)

// Render draws every entry at its placement inside a column of the given
// width. Where two pop-ups overlap, the one with the higher Z wins.
func Render(entries []presentation.Entry, placements []presentation.Placement, width int, now time.Time) string {
	if len(entries) == 0 || len(placements) == 0 {
		return ""
	}

	byID := make(map[string]presentation.Entry, len(entries))
	for _, e := range entries {
		byID[e.Notification.ID] = e
	}

	top := 0
	for _, p := range placements {
		if p.Z > top {
			top = p.Z
		}
	}

	var lines []string
	for _, p := range sortByZ(placements) {
		e, ok := byID[p.ID]
		if !ok {
			continue
		}
		box := strings.Split(renderBox(e, width, p.Z == top, now), "\n")
		for len(lines) < p.Offset+len(box) {
			lines = append(lines, strings.Repeat(" ", width))
		}
		for i, line := range box {
			lines[p.Offset+i] = line
		}
	}
	return strings.Join(lines, "\n")
}

func sortByZ(placements []presentation.Placement) []presentation.Placement {
	out := append([]presentation.Placement(nil), placements...)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].Z < out[j-1].Z; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

func renderBox(e presentation.Entry, width int, newest bool, now time.Time) string {
	n := e.Notification
	inner := width - 4
	if inner < 10 {
		inner = 10
	}

	accent := theme.KindColor(n.Kind)
	label := lipgloss.NewStyle().Bold(true).Foreground(accent).Render(kindLabel(n.Kind))
	title := runewidth.Truncate(n.Title, inner-lipgloss.Width(label)-1, "…")
	message := runewidth.Truncate(n.Message, inner, "…")
	footer := theme.HelpStyle.Render(runewidth.Truncate(footerText(e, now), inner, "…"))

	style := theme.ToastStyle.Width(width - 2)
	if newest {
		style = style.BorderForeground(accent)
	}
	return style.Render(label + " " + title + "\n" + message + "\n" + footer)
}

func kindLabel(k model.Kind) string {
	switch k {
	case model.KindTask:
		return "TASK"
	case model.KindEarning:
		return "EARNING"
	case model.KindWalletTransaction:
		return "WALLET"
	default:
		return "UPDATE"
	}
}

func footerText(e presentation.Entry, now time.Time) string {
	left := int(math.Ceil(e.ExpiresAt.Sub(now).Seconds()))
	if left < 0 {
		left = 0
	}
	if e.Notification.IsReminder() {
		return fmt.Sprintf("reminder · x dismiss · %ds", left)
	}
	return fmt.Sprintf("m read · x close · %ds", left)
}
