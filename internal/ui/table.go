package ui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	prettytable "github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/BioHazard786/Warpcall/internal/call"
	"github.com/BioHazard786/Warpcall/internal/server"
)

// PeerTableView renders the room roster with the selected row highlighted.
// selected < 0 highlights nothing.
func PeerTableView(peers []call.PeerStatus, selected int) string {
	if len(peers) == 0 {
		return mutedStyle.Render("Nobody else is here yet")
	}

	rows := make([][]string, 0, len(peers))
	for i, p := range peers {
		identity := p.Identity
		if identity == "" {
			identity = "-"
		}
		note := ""
		if p.Err != nil {
			note = p.Err.Error()
		}
		rows = append(rows, []string{fmt.Sprintf("%d", i+1), identity, shortID(p.ID), stateLabel(p.State), note})
	}

	tbl := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(tableBorderStyle).
		Headers("#", "Identity", "Peer", "Call", "Note").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return tableHeaderStyle
			case row == selected:
				return selectedRowStyle
			case row%2 == 0:
				return tableRowStyle
			default:
				return tableRowAltStyle
			}
		})

	return tbl.Render()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// RoomsTable renders the relay's room listing.
func RoomsTable(resp server.RoomsResponse) string {
	t := prettytable.NewWriter()
	t.SetStyle(prettytable.StyleRounded)
	t.Style().Color.Header = text.Colors{text.FgCyan, text.Bold}
	t.Style().Format.Header = text.FormatDefault
	t.Style().Format.Footer = text.FormatDefault

	t.AppendHeader(prettytable.Row{"Room", "Participant", "Identity"}, prettytable.RowConfig{AutoMerge: true})
	participants := 0
	for _, room := range resp.Rooms {
		for _, p := range room.Participants {
			t.AppendRow(prettytable.Row{room.ID, p.ID, p.Identity}, prettytable.RowConfig{AutoMerge: true})
			participants++
		}
	}

	capacity := "unlimited"
	if resp.Capacity > 0 {
		capacity = fmt.Sprintf("%d", resp.Capacity)
	}
	t.AppendFooter(prettytable.Row{
		fmt.Sprintf("%d rooms", len(resp.Rooms)),
		fmt.Sprintf("%d in rooms / %d connected", participants, resp.Connections),
		"capacity " + capacity,
	})
	t.SetColumnConfigs([]prettytable.ColumnConfig{{Number: 1, AutoMerge: true}})

	return t.Render()
}
