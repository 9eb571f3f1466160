package pkg

import "fmt"

// roomDirectory maps room names to their member sets. Rooms are created on
// first join and deleted when the last member leaves, so a room exists iff
// it has members. The directory has no lock of its own: the Hub serializes
// all access.
type roomDirectory struct {
	rooms map[string]map[*Client]struct{}
}

func newRoomDirectory() *roomDirectory {
	return &roomDirectory{
		rooms: make(map[string]map[*Client]struct{}),
	}
}

// join adds c to the named room and returns a snapshot of the member set,
// including c. The caller must have removed c from any previous room first.
func (d *roomDirectory) join(name string, c *Client) []*Client {
	if c.room != nil {
		panic(fmt.Sprintf("client %d already in room %q", c.id, *c.room))
	}

	members, ok := d.rooms[name]
	if !ok {
		members = make(map[*Client]struct{})
		d.rooms[name] = members
	}
	members[c] = struct{}{}
	c.room = &name

	return snapshot(members)
}

// leave removes c from its room, deleting the room if it empties, and
// returns the room's name and remaining member count. Calling leave on a
// client without a room indicates hub state desync and panics.
func (d *roomDirectory) leave(c *Client) (string, int) {
	if c.room == nil {
		panic(fmt.Sprintf("client %d is not in a room", c.id))
	}
	name := *c.room

	members, ok := d.rooms[name]
	if !ok {
		panic(fmt.Sprintf("room %q not found", name))
	}

	delete(members, c)
	c.room = nil

	remaining := len(members)
	if remaining == 0 {
		delete(d.rooms, name)
	}

	return name, remaining
}

// memberIDs returns a snapshot of the ids of the named room's members.
func (d *roomDirectory) memberIDs(name string) []uint32 {
	members, ok := d.rooms[name]
	if !ok {
		panic(fmt.Sprintf("room %q not found", name))
	}

	ids := make([]uint32, 0, len(members))
	for c := range members {
		ids = append(ids, c.id)
	}
	return ids
}

func (d *roomDirectory) count() int {
	return len(d.rooms)
}

func snapshot(members map[*Client]struct{}) []*Client {
	out := make([]*Client, 0, len(members))
	for c := range members {
		out = append(out, c)
	}
	return out
}
