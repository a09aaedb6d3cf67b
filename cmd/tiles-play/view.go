package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/robalobadob/sealed2048/internal/game"
	"github.com/robalobadob/sealed2048/internal/readiness"
	"github.com/robalobadob/sealed2048/internal/session"
)

const cellWidth = 6

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#f5c2e7"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#f38ba8"))
	boardStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	footerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("255")).Background(lipgloss.Color("238")).Padding(0, 2)
	cellStyle   = lipgloss.NewStyle().Width(cellWidth).Align(lipgloss.Center).Bold(true)
)

// tileColors is indexed by log2 of the value.
var tileColors = []lipgloss.Color{
	"#45475a", // empty
	"#cdd6f4", // 2
	"#b4befe", // 4
	"#89b4fa", // 8
	"#74c7ec", // 16
	"#94e2d5", // 32
	"#a6e3a1", // 64
	"#f9e2af", // 128
	"#fab387", // 256
	"#eba0ac", // 512
	"#f38ba8", // 1024
	"#cba6f7", // 2048
}

func (m model) View() string {
	var b strings.Builder
	v := m.view

	title := "sealed 2048"
	if v.Mode == session.ModeDaily {
		title += " · daily " + v.Date
	}
	b.WriteString(titleStyle.Render(title))
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("score %d   moves %d   best tile %d\n", v.Score, v.Moves, v.MaxTile))
	b.WriteString(boardStyle.Render(renderBoard(v.Tiles)))
	b.WriteString("\n")
	b.WriteString(renderSealing(v))
	b.WriteString("\n")
	b.WriteString(renderAchievements(v))
	b.WriteString("\n")
	if v.Terminal {
		b.WriteString(errorStyle.Render("game over"))
		b.WriteString("\n")
	}
	if m.statusErr {
		b.WriteString(errorStyle.Render(m.status))
	} else {
		b.WriteString(statusStyle.Render(m.status))
	}
	b.WriteString("\n")
	b.WriteString(footerStyle.Render("←↓↑→ move  e seal  m mock  x reset  c claim  r restart  q quit"))
	return b.String()
}

func renderBoard(tiles [game.Size][game.Size]int64) string {
	rows := make([]string, 0, game.Size)
	for r := 0; r < game.Size; r++ {
		cells := make([]string, 0, game.Size)
		for c := 0; c < game.Size; c++ {
			cells = append(cells, renderCell(tiles[r][c]))
		}
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, cells...))
	}
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

func renderCell(v int64) string {
	switch {
	case v == session.Unreadable:
		return cellStyle.Foreground(lipgloss.Color("#f38ba8")).Render("??")
	case v == 0:
		return cellStyle.Foreground(tileColors[0]).Render("·")
	}
	idx := 0
	for n := v; n > 1; n >>= 1 {
		idx++
	}
	if idx >= len(tileColors) {
		idx = len(tileColors) - 1
	}
	return cellStyle.Foreground(tileColors[idx]).Render(fmt.Sprint(v))
}

func renderSealing(v session.View) string {
	st := v.Readiness
	line := fmt.Sprintf("sealing: %s (%s)", st.State, v.SealingMode)
	if v.SealedTiles > 0 {
		line += fmt.Sprintf("  sealed tiles %d", v.SealedTiles)
	}
	if v.Faults > 0 {
		line += fmt.Sprintf("  faults %d", v.Faults)
	}
	if st.State == readiness.StateFailed || st.LastError != "" {
		return errorStyle.Render(line + "  " + st.LastError)
	}
	return statusStyle.Render(line)
}

func renderAchievements(v session.View) string {
	parts := make([]string, 0, len(v.Achievements))
	for _, a := range v.Achievements {
		mark := " "
		switch {
		case a.Claimed:
			mark = "✓"
		case a.Unlocked:
			mark = "*"
		}
		parts = append(parts, fmt.Sprintf("[%s] %s", mark, a.Title))
	}
	return statusStyle.Render(strings.Join(parts, "  "))
}
