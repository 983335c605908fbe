package session

import (
	"sort"
	"time"

	"github.com/samber/lo"
)

// RoomSummary is the public projection of a room used by the snapshot API.
type RoomSummary struct {
	Name      string    `json:"name"`
	UserCount int       `json:"userCount"`
	CreatedAt time.Time `json:"createdAt"`
}

type room struct {
	name      string
	createdAt time.Time
	// members keeps insertion order so rosters are stable.
	members []string
}

func (rm *room) has(connID string) bool {
	return lo.Contains(rm.members, connID)
}

// Directory maps room names to their member connection ids. Rooms are
// created lazily and retained once empty.
type Directory struct {
	rooms map[string]*room
}

func NewDirectory() *Directory {
	return &Directory{rooms: make(map[string]*room)}
}

// EnsureRoom creates the room if it does not exist yet.
func (d *Directory) EnsureRoom(name string, now time.Time) {
	if _, ok := d.rooms[name]; ok {
		return
	}
	d.rooms[name] = &room{name: name, createdAt: now}
}

func (d *Directory) Exists(name string) bool {
	_, ok := d.rooms[name]
	return ok
}

// AddMember adds connID to an existing room. Adding twice is a no-op, and
// adding to a missing room does nothing; call EnsureRoom first.
func (d *Directory) AddMember(name, connID string) {
	rm, ok := d.rooms[name]
	if !ok || rm.has(connID) {
		return
	}
	rm.members = append(rm.members, connID)
}

// RemoveMember reports whether connID was a member of the room.
func (d *Directory) RemoveMember(name, connID string) bool {
	rm, ok := d.rooms[name]
	if !ok || !rm.has(connID) {
		return false
	}
	rm.members = lo.Without(rm.members, connID)
	return true
}

// MemberIDs returns a copy of the room's member ids in join order.
func (d *Directory) MemberIDs(name string) []string {
	rm, ok := d.rooms[name]
	if !ok {
		return nil
	}
	return append([]string(nil), rm.members...)
}

// Members resolves the room roster through the registry, skipping ids that
// no longer have a session.
func (d *Directory) Members(name string, registry *Registry) []Session {
	return lo.FilterMap(d.MemberIDs(name), func(id string, _ int) (Session, bool) {
		return registry.Get(id)
	})
}

// Summaries lists rooms ordered by creation time, then name.
func (d *Directory) Summaries() []RoomSummary {
	out := lo.MapToSlice(d.rooms, func(_ string, rm *room) RoomSummary {
		return RoomSummary{Name: rm.name, UserCount: len(rm.members), CreatedAt: rm.createdAt}
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Name < out[j].Name
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}
