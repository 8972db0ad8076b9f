package signaling

import (
	"slices"
	"sort"
	"sync"
)

// Room is a named rendezvous point. Participants are connection ids in join
// order.
type Room struct {
	ID           string
	Participants []string
}

// Directory tracks which connections occupy which rooms.
//
// A connection is in at most one room at a time and appears in it once.
// Rooms are created on first join and deleted when the last participant
// leaves.
type Directory struct {
	mu       sync.Mutex
	rooms    map[string]*Room
	memberOf map[string]string // conn id -> room id

	// capacity caps participants per room. Zero means unlimited.
	capacity int
}

func NewDirectory(capacity int) *Directory {
	if capacity < 0 {
		capacity = 0
	}
	return &Directory{
		rooms:    make(map[string]*Room),
		memberOf: make(map[string]string),
		capacity: capacity,
	}
}

// Capacity returns the per-room participant limit, zero for unlimited.
func (d *Directory) Capacity() int {
	return d.capacity
}

// Join adds connID to roomID and returns the other participants, oldest
// first. Joining the room connID is already in changes nothing.
func (d *Directory) Join(roomID, connID string) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if current, ok := d.memberOf[connID]; ok {
		if current != roomID {
			return nil, WrapError("join", ErrAlreadyInRoom, current)
		}
		return others(d.rooms[current], connID), nil
	}

	room, ok := d.rooms[roomID]
	if !ok {
		room = &Room{ID: roomID}
		d.rooms[roomID] = room
	}
	if d.capacity > 0 && len(room.Participants) >= d.capacity {
		return nil, WrapError("join", ErrRoomFull, roomID)
	}

	existing := others(room, connID)
	room.Participants = append(room.Participants, connID)
	d.memberOf[connID] = roomID
	return existing, nil
}

// Leave removes connID from its room and returns the room id and the
// participants left behind. It is a no-op when connID is in no room.
func (d *Directory) Leave(connID string) (roomID string, remaining []string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	roomID, ok := d.memberOf[connID]
	if !ok {
		return "", nil
	}
	delete(d.memberOf, connID)

	room := d.rooms[roomID]
	room.Participants = slices.DeleteFunc(room.Participants, func(id string) bool {
		return id == connID
	})
	if len(room.Participants) == 0 {
		delete(d.rooms, roomID)
		return roomID, nil
	}
	return roomID, slices.Clone(room.Participants)
}

// PeersOf returns the co-participants of connID, excluding connID itself.
func (d *Directory) PeersOf(connID string) []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	roomID, ok := d.memberOf[connID]
	if !ok {
		return nil
	}
	return others(d.rooms[roomID], connID)
}

// RoomOf returns the room connID is in.
func (d *Directory) RoomOf(connID string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	roomID, ok := d.memberOf[connID]
	return roomID, ok
}

// ArePeers reports whether a and b share a room.
func (d *Directory) ArePeers(a, b string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	ra, ok := d.memberOf[a]
	if !ok {
		return false
	}
	return a != b && d.memberOf[b] == ra
}

// Snapshot copies every room, sorted by id.
func (d *Directory) Snapshot() []Room {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]Room, 0, len(d.rooms))
	for _, r := range d.rooms {
		out = append(out, Room{ID: r.ID, Participants: slices.Clone(r.Participants)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of non-empty rooms.
func (d *Directory) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.rooms)
}

func others(room *Room, connID string) []string {
	if room == nil {
		return nil
	}
	out := make([]string, 0, len(room.Participants))
	for _, id := range room.Participants {
		if id != connID {
			out = append(out, id)
		}
	}
	return out
}
