package session

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Inbound event names.
const (
	EventJoin           = "join"
	EventSend           = "send"
	EventTyping         = "typing"
	EventPrivateMessage = "private_message"
	EventJoinRoom       = "join_room"
	EventLeaveRoom      = "leave_room"
	EventReaction       = "reaction"
	EventRead           = "read"
	EventLoadMore       = "load_more"
	EventSearch         = "search"
)

// EventDisconnect is raised by the transport when a connection closes. It is
// never accepted from a client frame.
const EventDisconnect = "disconnect"

// Outbound event names. private_message is shared with the inbound set.
const (
	EventUserJoined          = "user_joined"
	EventRoomUsers           = "room_users"
	EventReceiveMessage      = "receive_message"
	EventRoomMessages        = "room_messages"
	EventMoreMessages        = "more_messages"
	EventSearchResults       = "search_results"
	EventMessageUpdated      = "message_updated"
	EventTypingUsers         = "typing_users"
	EventUserJoinedRoom      = "user_joined_room"
	EventUserLeftRoom        = "user_left_room"
	EventUserLeft            = "user_left"
	EventBrowserNotification = "browser_notification"
	EventSoundNotification   = "sound_notification"
	EventRoomNotification    = "room_notification"
)

// Frame is the envelope exchanged over the wire in both directions.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// EncodeFrame marshals payload under event.
func EncodeFrame(event string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Frame{Event: event, Data: data})
}

// DecodeFrame parses a raw inbound frame. Malformed JSON or a missing event
// name yields an *InvalidPayloadError.
func DecodeFrame(raw []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return Frame{}, &InvalidPayloadError{Event: "frame", Err: err}
	}
	f.Event = strings.TrimSpace(f.Event)
	if f.Event == "" {
		return Frame{}, &InvalidPayloadError{Event: "frame", Err: ErrUnknownEvent}
	}
	return f, nil
}

type JoinPayload struct {
	Username string `json:"username" validate:"required,max=64"`
	Room     string `json:"room" validate:"max=64"`
}

type SendPayload struct {
	Text string `json:"text" validate:"required,max=4000"`
	Room string `json:"room" validate:"max=64"`
}

type TypingPayload struct {
	IsTyping bool   `json:"isTyping"`
	Room     string `json:"room" validate:"max=64"`
}

type PrivateMessagePayload struct {
	To   string `json:"to" validate:"required,max=128"`
	Text string `json:"text" validate:"required,max=4000"`
}

// RoomPayload is shared by join_room and leave_room.
type RoomPayload struct {
	Room string `json:"room" validate:"required,max=64"`
}

type ReactionPayload struct {
	MessageID string `json:"messageId" validate:"required,max=128"`
	Emoji     string `json:"emoji" validate:"required,max=32"`
}

type ReadPayload struct {
	MessageID string `json:"messageId" validate:"required,max=128"`
}

type LoadMorePayload struct {
	Room            string     `json:"room" validate:"max=64"`
	BeforeTimestamp *time.Time `json:"beforeTimestamp"`
}

type SearchPayload struct {
	Room  string `json:"room" validate:"max=64"`
	Query string `json:"query" validate:"required,max=200"`
}

// UserEvent announces a membership change.
type UserEvent struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Room      string    `json:"room"`
	Timestamp time.Time `json:"timestamp"`
}

type MorePayload struct {
	Messages []Message `json:"messages"`
	HasMore  bool      `json:"hasMore"`
}

var validate = validator.New()

// trimmer is implemented by payloads that normalize whitespace before
// validation.
type trimmer interface {
	trim()
}

func (p *JoinPayload) trim() {
	p.Username = strings.TrimSpace(p.Username)
	p.Room = strings.TrimSpace(p.Room)
}

func (p *TypingPayload) trim()         { p.Room = strings.TrimSpace(p.Room) }
func (p *RoomPayload) trim()           { p.Room = strings.TrimSpace(p.Room) }
func (p *LoadMorePayload) trim()       { p.Room = strings.TrimSpace(p.Room) }
func (p *SearchPayload) trim()         { p.Room = strings.TrimSpace(p.Room) }

func (p *SendPayload) trim() {
	p.Text = strings.TrimSpace(p.Text)
	p.Room = strings.TrimSpace(p.Room)
}

func (p *PrivateMessagePayload) trim() {
	p.To = strings.TrimSpace(p.To)
	p.Text = strings.TrimSpace(p.Text)
}

// decodePayload unmarshals data into dst and validates it.
func decodePayload(event string, data json.RawMessage, dst any) error {
	if len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, dst); err != nil {
			return &InvalidPayloadError{Event: event, Err: err}
		}
	}
	if t, ok := dst.(trimmer); ok {
		t.trim()
	}
	if err := validate.Struct(dst); err != nil {
		return &InvalidPayloadError{Event: event, Err: err}
	}
	return nil
}
