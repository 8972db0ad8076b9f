package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/BioHazard786/Warpcall/internal/call"
	"github.com/BioHazard786/Warpcall/internal/negotiation"
)

// Controls are the call actions the view can trigger.
type Controls interface {
	Call(id string)
	Accept(id string)
	Hangup(id string)
}

type statusMsg call.Status

type statusClosedMsg struct{}

// CallModel is the live room view: roster, per-peer call state and key
// bindings to call, accept and hang up.
type CallModel struct {
	room     string
	updates  <-chan call.Status
	controls Controls

	status   call.Status
	cursor   int
	spinner  spinner.Model
	quitting bool
}

// NewCallModel builds the view for room, fed by updates.
func NewCallModel(room string, updates <-chan call.Status, controls Controls) *CallModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = spinnerStyle

	return &CallModel{
		room:     room,
		updates:  updates,
		controls: controls,
		spinner:  s,
	}
}

func (m *CallModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.listen())
}

func (m *CallModel) listen() tea.Cmd {
	return func() tea.Msg {
		st, ok := <-m.updates
		if !ok {
			return statusClosedMsg{}
		}
		return statusMsg(st)
	}
}

func (m *CallModel) selected() (call.PeerStatus, bool) {
	if m.cursor < 0 || m.cursor >= len(m.status.Peers) {
		return call.PeerStatus{}, false
	}
	return m.status.Peers[m.cursor], true
}

func (m *CallModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case statusMsg:
		m.status = call.Status(msg)
		if m.cursor >= len(m.status.Peers) {
			m.cursor = max(0, len(m.status.Peers)-1)
		}
		return m, m.listen()

	case statusClosedMsg:
		m.quitting = true
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}
		case "down", "j":
			if m.cursor < len(m.status.Peers)-1 {
				m.cursor++
			}
		case "c", "enter":
			if p, ok := m.selected(); ok {
				m.controls.Call(p.ID)
			}
		case "a":
			if p, ok := m.selected(); ok {
				m.controls.Accept(p.ID)
			}
		case "h":
			if p, ok := m.selected(); ok {
				m.controls.Hangup(p.ID)
			}
		}
	}
	return m, nil
}

func (m *CallModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("%s Room %s", iconRoom, m.room)))
	b.WriteString("\n")

	if !m.status.Joined {
		b.WriteString(fmt.Sprintf("%s Joining...\n", m.spinner.View()))
	} else {
		b.WriteString(mutedStyle.Render(fmt.Sprintf("%s you are %s", IconPeer, m.status.LocalID)))
		b.WriteString("\n\n")
		b.WriteString(PeerTableView(m.status.Peers, m.cursor))
		b.WriteString("\n")
		if p, ok := m.selected(); ok && p.State == negotiation.OfferReceived {
			b.WriteString(warningStyle.Render(fmt.Sprintf("%s Incoming call, press a to answer", iconIncoming)))
			b.WriteString("\n")
		}
	}

	if m.status.Err != nil {
		b.WriteString(errorStyle.Render(fmt.Sprintf("%s %v", iconFail, m.status.Err)))
		b.WriteString("\n")
	}

	b.WriteString(footerStyle.Render("↑/↓ select • c call • a answer • h hang up • q quit"))
	return b.String()
}
