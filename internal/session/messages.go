package session

import (
	"strings"
	"time"

	"github.com/samber/lo"
)

const DefaultCapacity = 1000

// Message is a chat message. Private messages carry no room and name their
// recipient instead.
type Message struct {
	ID          string    `json:"id"`
	Sender      string    `json:"sender"`
	SenderID    string    `json:"senderId"`
	Room        string    `json:"room,omitempty"`
	Text        string    `json:"message"`
	Timestamp   time.Time `json:"timestamp"`
	Private     bool      `json:"isPrivate"`
	Recipient   string    `json:"recipient,omitempty"`
	RecipientID string    `json:"recipientId,omitempty"`
	ReadBy      []string  `json:"readBy"`
	Reactions   Reactions `json:"reactions"`
}

func (m *Message) clone() Message {
	out := *m
	out.ReadBy = append(make([]string, 0, len(m.ReadBy)), m.ReadBy...)
	out.Reactions = m.Reactions.clone()
	return out
}

// MessageStore is a bounded append-only log. Once the global capacity is
// exceeded the oldest message is evicted regardless of its room.
//
// Room messages are additionally indexed per room in storage order; private
// messages live only in the global log.
type MessageStore struct {
	capacity int
	log      []*Message
	byID     map[string]*Message
	byRoom   map[string][]*Message
}

func NewMessageStore(capacity int) *MessageStore {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &MessageStore{
		capacity: capacity,
		byID:     make(map[string]*Message),
		byRoom:   make(map[string][]*Message),
	}
}

func (s *MessageStore) Len() int {
	return len(s.log)
}

// Append stores a copy of msg and returns the ids evicted to make room. A
// message whose id is already stored is ignored.
func (s *MessageStore) Append(msg Message) []string {
	if _, dup := s.byID[msg.ID]; dup {
		return nil
	}
	stored := msg.clone()
	s.log = append(s.log, &stored)
	s.byID[stored.ID] = &stored
	if !stored.Private {
		s.byRoom[stored.Room] = append(s.byRoom[stored.Room], &stored)
	}

	var evicted []string
	for len(s.log) > s.capacity {
		oldest := s.log[0]
		s.log[0] = nil
		s.log = s.log[1:]
		delete(s.byID, oldest.ID)
		if !oldest.Private {
			// the globally oldest message is also the oldest of its room
			roomLog := s.byRoom[oldest.Room]
			if len(roomLog) > 0 && roomLog[0] == oldest {
				roomLog[0] = nil
				s.byRoom[oldest.Room] = roomLog[1:]
			}
			if len(s.byRoom[oldest.Room]) == 0 {
				delete(s.byRoom, oldest.Room)
			}
		}
		evicted = append(evicted, oldest.ID)
	}
	return evicted
}

func (s *MessageStore) ByID(id string) (Message, bool) {
	m, ok := s.byID[id]
	if !ok {
		return Message{}, false
	}
	return m.clone(), true
}

// Recent returns up to limit of the newest messages in room, oldest first.
func (s *MessageStore) Recent(room string, limit int) []Message {
	return tail(s.byRoom[room], limit)
}

// PageBefore returns up to limit messages in room older than before, taken
// from the newest qualifying end and returned oldest first.
//
// hasMore is true when the page is full. That is a heuristic: a full page
// may still be the last one.
func (s *MessageStore) PageBefore(room string, before time.Time, limit int) ([]Message, bool) {
	if limit <= 0 {
		return []Message{}, false
	}
	qualifying := lo.Filter(s.byRoom[room], func(m *Message, _ int) bool {
		return m.Timestamp.Before(before)
	})
	page := tail(qualifying, limit)
	return page, len(page) == limit
}

// Search matches query case-insensitively against the body or sender name
// of messages in room, returning the newest limit matches oldest first.
func (s *MessageStore) Search(room, query string, limit int) []Message {
	needle := strings.ToLower(query)
	matches := lo.Filter(s.byRoom[room], func(m *Message, _ int) bool {
		return strings.Contains(strings.ToLower(m.Text), needle) ||
			strings.Contains(strings.ToLower(m.Sender), needle)
	})
	return tail(matches, limit)
}

// ToggleReaction flips connID's emoji reaction on message id and returns the
// updated message. It reports false when the message does not exist.
func (s *MessageStore) ToggleReaction(id, connID, emoji string) (Message, bool) {
	m, ok := s.byID[id]
	if !ok {
		return Message{}, false
	}
	m.Reactions.Toggle(emoji, connID)
	return m.clone(), true
}

// MarkRead adds connID to the read-by set. The message is returned only
// when the set actually changed.
func (s *MessageStore) MarkRead(id, connID string) (Message, bool) {
	m, ok := s.byID[id]
	if !ok || lo.Contains(m.ReadBy, connID) {
		return Message{}, false
	}
	m.ReadBy = append(m.ReadBy, connID)
	return m.clone(), true
}

// All returns every stored message in storage order.
func (s *MessageStore) All() []Message {
	return tail(s.log, len(s.log))
}

func tail(msgs []*Message, limit int) []Message {
	if limit <= 0 {
		return []Message{}
	}
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.clone())
	}
	return out
}
