package session

import (
	"time"

	"github.com/samber/lo"
)

// Presence tracks which connections are currently typing. Liveness is
// client driven; Expired lets a server-side sweeper clear flags the client
// never withdrew.
type Presence struct {
	since map[string]time.Time
	order []string
}

func NewPresence() *Presence {
	return &Presence{since: make(map[string]time.Time)}
}

// SetTyping reports whether the typing set changed. Refreshing an existing
// flag only moves its timestamp.
func (p *Presence) SetTyping(connID string, typing bool, now time.Time) bool {
	_, present := p.since[connID]
	if !typing {
		if !present {
			return false
		}
		delete(p.since, connID)
		p.order = lo.Without(p.order, connID)
		return true
	}
	p.since[connID] = now
	if present {
		return false
	}
	p.order = append(p.order, connID)
	return true
}

func (p *Presence) IsTyping(connID string) bool {
	_, ok := p.since[connID]
	return ok
}

// TypingUsernames lists the usernames of typing sessions whose active room
// is room, in the order they started typing.
func (p *Presence) TypingUsernames(room string, registry *Registry) []string {
	return lo.FilterMap(p.order, func(id string, _ int) (string, bool) {
		s, ok := registry.Get(id)
		if !ok || s.Room != room {
			return "", false
		}
		return s.Username, true
	})
}

// Expired clears and returns every flag last refreshed before cutoff.
func (p *Presence) Expired(cutoff time.Time) []string {
	stale := lo.Filter(p.order, func(id string, _ int) bool {
		return p.since[id].Before(cutoff)
	})
	for _, id := range stale {
		delete(p.since, id)
	}
	if len(stale) > 0 {
		p.order = lo.Without(p.order, stale...)
	}
	return stale
}
