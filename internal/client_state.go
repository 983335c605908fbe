package internal

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/samber/lo"

	"chatrelay/internal/session"
)

const maxNotices = 8

type notice struct {
	text string
	at   time.Time
}

// chatState is the client's view of the server: the active room timeline,
// its roster and typing users, plus recent notifications.
type chatState struct {
	self     string
	selfID   string
	room     string
	messages []session.Message
	users    []session.Session
	typing   []string
	notices  []notice
	results  []session.Message
	hasMore  bool
}

func newChatState(username, room string) *chatState {
	if room == "" {
		room = session.DefaultRoom
	}
	return &chatState{self: username, room: room}
}

// apply folds one inbound frame into the state. Unknown events are ignored.
func (s *chatState) apply(frame session.Frame) error {
	switch frame.Event {
	case session.EventRoomMessages:
		var history []session.Message
		if err := json.Unmarshal(frame.Data, &history); err != nil {
			return fmt.Errorf("decode %s: %w", frame.Event, err)
		}
		private := lo.Filter(s.messages, func(m session.Message, _ int) bool { return m.Private })
		s.messages = mergeTimeline(private, history)
		s.hasMore = len(history) > 0
	case session.EventReceiveMessage, session.EventPrivateMessage:
		var msg session.Message
		if err := json.Unmarshal(frame.Data, &msg); err != nil {
			return fmt.Errorf("decode %s: %w", frame.Event, err)
		}
		if !msg.Private && msg.Room != s.room {
			return nil
		}
		if msg.Sender == s.self && s.selfID == "" {
			s.selfID = msg.SenderID
		}
		s.messages = mergeTimeline(s.messages, []session.Message{msg})
	case session.EventMoreMessages:
		var more session.MorePayload
		if err := json.Unmarshal(frame.Data, &more); err != nil {
			return fmt.Errorf("decode %s: %w", frame.Event, err)
		}
		s.messages = mergeTimeline(more.Messages, s.messages)
		s.hasMore = more.HasMore
		if len(more.Messages) == 0 {
			s.notify("No older messages.")
		}
	case session.EventSearchResults:
		var results []session.Message
		if err := json.Unmarshal(frame.Data, &results); err != nil {
			return fmt.Errorf("decode %s: %w", frame.Event, err)
		}
		s.results = results
		s.notify(fmt.Sprintf("Search returned %d message(s).", len(results)))
	case session.EventMessageUpdated:
		var msg session.Message
		if err := json.Unmarshal(frame.Data, &msg); err != nil {
			return fmt.Errorf("decode %s: %w", frame.Event, err)
		}
		if _, idx, ok := lo.FindIndexOf(s.messages, func(m session.Message) bool { return m.ID == msg.ID }); ok {
			s.messages[idx] = msg
		}
	case session.EventRoomUsers:
		var users []session.Session
		if err := json.Unmarshal(frame.Data, &users); err != nil {
			return fmt.Errorf("decode %s: %w", frame.Event, err)
		}
		if len(users) > 0 && users[0].Room != s.room {
			return nil
		}
		s.users = users
		if me, ok := lo.Find(users, func(u session.Session) bool { return u.Username == s.self }); ok && s.selfID == "" {
			s.selfID = me.ID
		}
	case session.EventTypingUsers:
		var names []string
		if err := json.Unmarshal(frame.Data, &names); err != nil {
			return fmt.Errorf("decode %s: %w", frame.Event, err)
		}
		s.typing = lo.Without(names, s.self)
	case session.EventRoomNotification:
		var n session.RoomNotification
		if err := json.Unmarshal(frame.Data, &n); err != nil {
			return fmt.Errorf("decode %s: %w", frame.Event, err)
		}
		s.notifyAt(n.Message, n.Timestamp)
	case session.EventBrowserNotification:
		var n session.BrowserNotification
		if err := json.Unmarshal(frame.Data, &n); err != nil {
			return fmt.Errorf("decode %s: %w", frame.Event, err)
		}
		s.notifyAt(n.Title+": "+n.Body, n.Timestamp)
	}
	return nil
}

// switchRoom resets the room-scoped state ahead of the server's history.
func (s *chatState) switchRoom(room string) {
	s.room = room
	s.messages = lo.Filter(s.messages, func(m session.Message, _ int) bool { return m.Private })
	s.users = nil
	s.typing = nil
	s.results = nil
	s.hasMore = false
}

// oldest returns the timestamp of the oldest room message on screen.
func (s *chatState) oldest() (time.Time, bool) {
	for _, m := range s.messages {
		if !m.Private {
			return m.Timestamp, true
		}
	}
	return time.Time{}, false
}

// messageAt resolves a 1-based timeline index as shown in the view.
func (s *chatState) messageAt(index int) (session.Message, bool) {
	if index < 1 || index > len(s.messages) {
		return session.Message{}, false
	}
	return s.messages[index-1], true
}

// userID finds a roster entry by username, case-insensitively.
func (s *chatState) userID(username string) (string, bool) {
	user, ok := lo.Find(s.users, func(u session.Session) bool {
		return strings.EqualFold(u.Username, username)
	})
	return user.ID, ok
}

func (s *chatState) notify(text string) {
	s.notifyAt(text, time.Now())
}

func (s *chatState) notifyAt(text string, at time.Time) {
	s.notices = append(s.notices, notice{text: text, at: at})
	if len(s.notices) > maxNotices {
		s.notices = s.notices[len(s.notices)-maxNotices:]
	}
}

// mergeTimeline combines two message lists, dropping duplicate ids and
// ordering by timestamp.
func mergeTimeline(a, b []session.Message) []session.Message {
	merged := lo.UniqBy(append(append([]session.Message{}, a...), b...), func(m session.Message) string { return m.ID })
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Timestamp.Before(merged[j].Timestamp)
	})
	return merged
}
