package ui

import (
	"errors"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BioHazard786/Warpcall/internal/call"
	"github.com/BioHazard786/Warpcall/internal/negotiation"
	"github.com/BioHazard786/Warpcall/internal/server"
)

type recordedControls struct {
	calls, accepts, hangups []string
}

func (r *recordedControls) Call(id string)   { r.calls = append(r.calls, id) }
func (r *recordedControls) Accept(id string) { r.accepts = append(r.accepts, id) }
func (r *recordedControls) Hangup(id string) { r.hangups = append(r.hangups, id) }

func key(s string) tea.KeyMsg {
	switch s {
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestCallModel_Keys(t *testing.T) {
	ctl := &recordedControls{}
	m := NewCallModel("R", make(chan call.Status), ctl)

	m.Update(statusMsg(call.Status{
		LocalID: "me",
		Room:    "R",
		Joined:  true,
		Peers: []call.PeerStatus{
			{ID: "peer-a", Identity: "a@example.com"},
			{ID: "peer-b", Identity: "b@example.com", State: negotiation.OfferReceived},
		},
	}))

	m.Update(key("c"))
	m.Update(key("down"))
	m.Update(key("down"))
	m.Update(key("a"))
	m.Update(key("up"))
	m.Update(key("h"))

	assert.Equal(t, []string{"peer-a"}, ctl.calls)
	assert.Equal(t, []string{"peer-b"}, ctl.accepts)
	assert.Equal(t, []string{"peer-a"}, ctl.hangups)
}

func TestCallModel_CursorFollowsRoster(t *testing.T) {
	m := NewCallModel("R", make(chan call.Status), &recordedControls{})
	m.Update(statusMsg(call.Status{Joined: true, Peers: []call.PeerStatus{{ID: "a"}, {ID: "b"}}}))
	m.Update(key("down"))
	assert.Equal(t, 1, m.cursor)

	m.Update(statusMsg(call.Status{Joined: true, Peers: []call.PeerStatus{{ID: "a"}}}))
	assert.Equal(t, 0, m.cursor)

	m.Update(statusMsg(call.Status{Joined: true}))
	_, ok := m.selected()
	assert.False(t, ok)
}

func TestCallModel_View(t *testing.T) {
	m := NewCallModel("lobby", make(chan call.Status), &recordedControls{})
	assert.Contains(t, m.View(), "Joining")

	m.Update(statusMsg(call.Status{
		LocalID: "me",
		Joined:  true,
		Peers: []call.PeerStatus{
			{ID: "0123456789abcdef", Identity: "b@example.com", State: negotiation.OfferReceived},
		},
		Err: errors.New("room is full"),
	}))
	view := m.View()
	assert.Contains(t, view, "lobby")
	assert.Contains(t, view, "b@example.com")
	assert.Contains(t, view, "01234567")
	assert.Contains(t, view, "Incoming call")
	assert.Contains(t, view, "room is full")
}

func TestCallModel_QuitsWhenUpdatesClose(t *testing.T) {
	updates := make(chan call.Status)
	m := NewCallModel("R", updates, &recordedControls{})
	close(updates)

	msg := m.listen()()
	_, cmd := m.Update(msg)
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
	assert.Empty(t, m.View())
}

func TestRoomsTable(t *testing.T) {
	out := RoomsTable(server.RoomsResponse{
		Capacity:    2,
		Connections: 3,
		Rooms: []server.RoomInfo{
			{ID: "lobby", Participants: []server.ParticipantInfo{
				{ID: "id-1", Identity: "x@example.com"},
				{ID: "id-2", Identity: "y@example.com"},
			}},
		},
	})
	assert.Contains(t, out, "lobby")
	assert.Contains(t, out, "x@example.com")
	assert.Contains(t, out, "y@example.com")
	assert.Contains(t, out, "1 rooms")
	assert.Contains(t, out, "2 in rooms / 3 connected")
	assert.Contains(t, out, "capacity 2")

	out = RoomsTable(server.RoomsResponse{})
	assert.Contains(t, out, "capacity unlimited")
}

func TestStateLabel(t *testing.T) {
	for s := negotiation.Idle; s <= negotiation.Failed; s++ {
		_, ok := callStates[s]
		assert.True(t, ok, "no label for %v", s)
	}
	assert.Contains(t, stateLabel(negotiation.OfferReceived), "incoming")
	assert.Contains(t, stateLabel(negotiation.AnswerReceived), "connecting")
	assert.Equal(t, "unknown", stateLabel(negotiation.State(42)))
}
