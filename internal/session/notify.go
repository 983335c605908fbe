package session

import (
	"time"

	"github.com/rs/zerolog"
)

const (
	defaultNotificationIcon = "/notification-icon.png"
	previewLength           = 50
)

// Transport delivers an encoded frame to one connection. Delivery is best
// effort and must not block; frames for unknown connections are dropped.
type Transport interface {
	Deliver(connID string, frame []byte)
}

type BrowserNotification struct {
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Icon      string    `json:"icon"`
	Timestamp time.Time `json:"timestamp"`
}

type SoundNotification struct {
	Sound     string    `json:"sound"`
	Timestamp time.Time `json:"timestamp"`
}

type RoomNotification struct {
	Message   string    `json:"message"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

// Dispatcher fans frames out to a room's members or a single connection.
// Frames are encoded once, at dispatch time, so later mutations of the
// payload are never observed by the transport.
type Dispatcher struct {
	transport Transport
	directory *Directory
	now       func() time.Time
	log       zerolog.Logger
}

func NewDispatcher(transport Transport, directory *Directory, now func() time.Time, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{transport: transport, directory: directory, now: now, log: log}
}

func (d *Dispatcher) ToRoom(room, event string, payload any) {
	members := d.directory.MemberIDs(room)
	if len(members) == 0 {
		return
	}
	frame, ok := d.encode(event, payload)
	if !ok {
		return
	}
	for _, id := range members {
		d.transport.Deliver(id, frame)
	}
}

func (d *Dispatcher) ToConnection(connID, event string, payload any) {
	frame, ok := d.encode(event, payload)
	if !ok {
		return
	}
	d.transport.Deliver(connID, frame)
}

// RoomInfo sends an informational banner to everyone in room.
func (d *Dispatcher) RoomInfo(room, text string) {
	d.ToRoom(room, EventRoomNotification, RoomNotification{Message: text, Type: "info", Timestamp: d.now()})
}

func (d *Dispatcher) SoundToRoom(room, sound string) {
	d.ToRoom(room, EventSoundNotification, SoundNotification{Sound: sound, Timestamp: d.now()})
}

func (d *Dispatcher) SoundToConnection(connID, sound string) {
	d.ToConnection(connID, EventSoundNotification, SoundNotification{Sound: sound, Timestamp: d.now()})
}

func (d *Dispatcher) Browser(connID, title, body string) {
	d.ToConnection(connID, EventBrowserNotification, BrowserNotification{
		Title:     title,
		Body:      body,
		Icon:      defaultNotificationIcon,
		Timestamp: d.now(),
	})
}

func (d *Dispatcher) encode(event string, payload any) ([]byte, bool) {
	frame, err := EncodeFrame(event, payload)
	if err != nil {
		d.log.Error().Err(err).Str("event", event).Msg("encode frame")
		return nil, false
	}
	return frame, true
}

// preview shortens a message body for notifications.
func preview(sender, text string) string {
	runes := []rune(text)
	if len(runes) > previewLength {
		return sender + ": " + string(runes[:previewLength]) + "..."
	}
	return sender + ": " + text
}
