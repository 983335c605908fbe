package session

import (
	"sort"
	"time"
)

// Session binds a live connection to a username and its active room.
type Session struct {
	ID       string    `json:"id"`
	Username string    `json:"username"`
	Room     string    `json:"room"`
	JoinedAt time.Time `json:"joinedAt"`
}

// Registry maps connection ids to sessions. It is not safe for concurrent
// use on its own; the Coordinator serializes every call.
//
// Lookups for unknown ids report absence instead of failing, and callers are
// expected to check the boolean.
type Registry struct {
	sessions map[string]*Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Register creates or overwrites the session for connID.
func (r *Registry) Register(connID, username, room string, joinedAt time.Time) Session {
	s := &Session{ID: connID, Username: username, Room: room, JoinedAt: joinedAt}
	r.sessions[connID] = s
	return *s
}

// UpdateRoom moves the session to room. Unknown ids are ignored.
func (r *Registry) UpdateRoom(connID, room string) {
	if s, ok := r.sessions[connID]; ok {
		s.Room = room
	}
}

func (r *Registry) Remove(connID string) (Session, bool) {
	s, ok := r.sessions[connID]
	if !ok {
		return Session{}, false
	}
	delete(r.sessions, connID)
	return *s, true
}

func (r *Registry) Get(connID string) (Session, bool) {
	s, ok := r.sessions[connID]
	if !ok {
		return Session{}, false
	}
	return *s, true
}

func (r *Registry) Len() int {
	return len(r.sessions)
}

// All returns every session ordered by join time, then id.
func (r *Registry) All() []Session {
	out := make([]Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].JoinedAt.Before(out[j].JoinedAt)
	})
	return out
}
