package relay

import (
	"slices"
	"sort"
	"sync"
)

// RoomCapacity is the most members a room may hold. The first member
// becomes the initiator and the second the responder; a third has no role.
const RoomCapacity = 2

// RoomInfo is a point-in-time view of one room.
type RoomInfo struct {
	ID      string   `json:"room"`
	Members []string `json:"members"`
}

type room struct {
	mu      sync.Mutex
	id      string
	members []string // join order

	// closed is set once the room has been emptied and unlinked. A joiner
	// that raced with the removal must start over on a fresh room.
	closed bool
}

// Directory maps room ids to their members. The directory lock guards only
// the map; membership changes take the lock of the room they touch.
type Directory struct {
	mu       sync.Mutex
	rooms    map[string]*room
	capacity int
}

func NewDirectory(capacity int) *Directory {
	if capacity <= 0 {
		capacity = RoomCapacity
	}
	return &Directory{
		rooms:    make(map[string]*room),
		capacity: capacity,
	}
}

func (d *Directory) getOrCreate(id string) *room {
	d.mu.Lock()
	defer d.mu.Unlock()

	r, ok := d.rooms[id]
	if !ok {
		r = &room{id: id}
		d.rooms[id] = r
	}
	return r
}

func (d *Directory) get(id string) *room {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rooms[id]
}

// unlink removes an empty room. The caller holds r.mu.
func (d *Directory) unlink(r *room) {
	r.closed = true

	d.mu.Lock()
	if d.rooms[r.id] == r {
		delete(d.rooms, r.id)
	}
	d.mu.Unlock()
}

// Join adds conn to the room and returns the members that were there before
// it, in join order. Computing the snapshot and adding the member happen as
// one step, and notify runs before the room is unlocked so that whatever it
// sends is ordered against every other join or leave of the same room.
//
// If conn is already a member, Join returns the current snapshot and calls
// notify with added set to false. A full room returns ErrRoomFull and notify
// is not called.
func (d *Directory) Join(id, conn string, notify func(snapshot []string, added bool)) ([]string, error) {
	for {
		r := d.getOrCreate(id)
		r.mu.Lock()
		if r.closed {
			r.mu.Unlock()
			continue
		}

		if slices.Contains(r.members, conn) {
			snapshot := without(r.members, conn)
			if notify != nil {
				notify(snapshot, false)
			}
			r.mu.Unlock()
			return snapshot, nil
		}

		if len(r.members) >= d.capacity {
			r.mu.Unlock()
			return nil, ErrRoomFull
		}

		snapshot := slices.Clone(r.members)
		r.members = append(r.members, conn)
		if notify != nil {
			notify(snapshot, true)
		}
		r.mu.Unlock()
		return snapshot, nil
	}
}

// Leave removes conn from the room and deletes the room once it is empty.
// notify receives the members that remain and runs under the room lock.
// Leave reports whether conn was a member.
func (d *Directory) Leave(id, conn string, notify func(remaining []string)) bool {
	r := d.get(id)
	if r == nil {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	idx := slices.Index(r.members, conn)
	if idx < 0 {
		return false
	}
	r.members = slices.Delete(r.members, idx, idx+1)
	if len(r.members) == 0 {
		d.unlink(r)
	}

	if notify != nil {
		notify(slices.Clone(r.members))
	}
	return true
}

// Members returns every member of the room except the excluded one. These
// are the targets of a broadcast from excluding.
func (d *Directory) Members(id, excluding string) []string {
	r := d.get(id)
	if r == nil {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return without(r.members, excluding)
}

// Len returns the number of live rooms.
func (d *Directory) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.rooms)
}

// Snapshot lists every room sorted by id.
func (d *Directory) Snapshot() []RoomInfo {
	d.mu.Lock()
	rooms := make([]*room, 0, len(d.rooms))
	for _, r := range d.rooms {
		rooms = append(rooms, r)
	}
	d.mu.Unlock()

	infos := make([]RoomInfo, 0, len(rooms))
	for _, r := range rooms {
		r.mu.Lock()
		if !r.closed && len(r.members) > 0 {
			infos = append(infos, RoomInfo{ID: r.id, Members: slices.Clone(r.members)})
		}
		r.mu.Unlock()
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos
}

func without(members []string, conn string) []string {
	out := make([]string, 0, len(members))
	for _, m := range members {
		if m != conn {
			out = append(out, m)
		}
	}
	return out
}
