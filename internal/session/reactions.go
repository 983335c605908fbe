package session

import (
	"encoding/json"
	"sort"

	"github.com/samber/lo"
)

// Reactions maps an emoji to the non-empty, ordered set of connection ids
// that reacted with it. An emoji whose set empties is removed, so the zero
// value and an "all reactions withdrawn" value are indistinguishable.
type Reactions struct {
	byEmoji map[string][]string
}

// Toggle adds connID under emoji, or removes it if already present. It
// reports whether the reaction is now set.
func (r *Reactions) Toggle(emoji, connID string) bool {
	if r.byEmoji == nil {
		r.byEmoji = make(map[string][]string)
	}
	users := r.byEmoji[emoji]
	if lo.Contains(users, connID) {
		users = lo.Without(users, connID)
		if len(users) == 0 {
			delete(r.byEmoji, emoji)
		} else {
			r.byEmoji[emoji] = users
		}
		return false
	}
	r.byEmoji[emoji] = append(users, connID)
	return true
}

// Users returns a copy of the ids that reacted with emoji.
func (r Reactions) Users(emoji string) []string {
	return append([]string(nil), r.byEmoji[emoji]...)
}

// Emojis returns the emojis with at least one reaction, sorted.
func (r Reactions) Emojis() []string {
	keys := lo.Keys(r.byEmoji)
	sort.Strings(keys)
	return keys
}

func (r Reactions) Len() int {
	return len(r.byEmoji)
}

func (r Reactions) clone() Reactions {
	if len(r.byEmoji) == 0 {
		return Reactions{}
	}
	out := make(map[string][]string, len(r.byEmoji))
	for emoji, users := range r.byEmoji {
		out[emoji] = append([]string(nil), users...)
	}
	return Reactions{byEmoji: out}
}

func (r Reactions) MarshalJSON() ([]byte, error) {
	if r.byEmoji == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(r.byEmoji)
}

// UnmarshalJSON drops empty and duplicate entries.
func (r *Reactions) UnmarshalJSON(data []byte) error {
	var raw map[string][]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	r.byEmoji = nil
	for emoji, users := range raw {
		users = lo.Uniq(users)
		if len(users) == 0 {
			continue
		}
		if r.byEmoji == nil {
			r.byEmoji = make(map[string][]string, len(raw))
		}
		r.byEmoji[emoji] = users
	}
	return nil
}
