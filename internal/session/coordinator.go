package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

const (
	DefaultRoom     = "general"
	DefaultPageSize = 50
)

// Observer receives counters from the coordinator. Implementations must be
// cheap; they run inside the critical section.
type Observer interface {
	EventHandled(event string)
	InvalidPayload(event string)
	MessageStored(private bool)
	SessionsChanged(active int)
}

type nopObserver struct{}

func (nopObserver) EventHandled(string)   {}
func (nopObserver) InvalidPayload(string) {}
func (nopObserver) MessageStored(bool)    {}
func (nopObserver) SessionsChanged(int)   {}

// Config tunes a Coordinator. Zero values select the defaults.
type Config struct {
	Capacity  int
	PageSize  int
	TypingTTL time.Duration
	Logger    zerolog.Logger
	Recorder  Recorder
	Observer  Observer
	Now       func() time.Time
	NewID     func() string
}

// Snapshot is a read-only copy of the coordinator state.
type Snapshot struct {
	Messages []Message     `json:"messages"`
	Users    []Session     `json:"users"`
	Rooms    []RoomSummary `json:"rooms"`
}

// Coordinator owns every piece of shared chat state. Each inbound event is
// processed under a single mutex: lookup, mutation and broadcast enqueue
// happen as one step, so handlers never interleave.
type Coordinator struct {
	mu        sync.Mutex
	registry  *Registry
	directory *Directory
	store     *MessageStore
	presence  *Presence
	notify    *Dispatcher

	pageSize  int
	typingTTL time.Duration
	log       zerolog.Logger
	recorder  Recorder
	observer  Observer
	now       func() time.Time
	newID     func() string
}

func NewCoordinator(transport Transport, cfg Config) *Coordinator {
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.Recorder == nil {
		cfg.Recorder = nopRecorder{}
	}
	if cfg.Observer == nil {
		cfg.Observer = nopObserver{}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewID == nil {
		cfg.NewID = newMessageID
	}
	directory := NewDirectory()
	return &Coordinator{
		registry:  NewRegistry(),
		directory: directory,
		store:     NewMessageStore(cfg.Capacity),
		presence:  NewPresence(),
		notify:    NewDispatcher(transport, directory, cfg.Now, cfg.Logger),
		pageSize:  cfg.PageSize,
		typingTTL: cfg.TypingTTL,
		log:       cfg.Logger,
		recorder:  cfg.Recorder,
		observer:  cfg.Observer,
		now:       cfg.Now,
		newID:     cfg.NewID,
	}
}

// newMessageID returns a time-ordered UUID, falling back to a random one.
func newMessageID() string {
	if id, err := uuid.NewV7(); err == nil {
		return id.String()
	}
	return uuid.NewString()
}

// Seed loads previously persisted messages without broadcasting them.
func (c *Coordinator) Seed(msgs []Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, m := range msgs {
		if m.ReadBy == nil {
			m.ReadBy = []string{}
		}
		c.store.Append(m)
	}
}

// Handle decodes and dispatches one inbound frame from connID. Events that
// reference unknown sessions, messages or recipients are dropped silently;
// only malformed frames produce an error.
func (c *Coordinator) Handle(connID string, frame Frame) error {
	err := c.route(connID, frame)
	var invalid *InvalidPayloadError
	switch {
	case err == nil:
		c.observer.EventHandled(frame.Event)
		return nil
	case ignorable(err):
		c.log.Debug().Err(err).Str("conn", connID).Str("event", frame.Event).Msg("event ignored")
		return nil
	case errors.As(err, &invalid):
		c.observer.InvalidPayload(frame.Event)
		return err
	default:
		return err
	}
}

func (c *Coordinator) route(connID string, frame Frame) error {
	switch frame.Event {
	case EventJoin:
		var p JoinPayload
		if err := decodePayload(frame.Event, frame.Data, &p); err != nil {
			return err
		}
		return c.Join(connID, p)
	case EventSend:
		var p SendPayload
		if err := decodePayload(frame.Event, frame.Data, &p); err != nil {
			return err
		}
		return c.Send(connID, p)
	case EventTyping:
		var p TypingPayload
		if err := decodePayload(frame.Event, frame.Data, &p); err != nil {
			return err
		}
		return c.Typing(connID, p)
	case EventPrivateMessage:
		var p PrivateMessagePayload
		if err := decodePayload(frame.Event, frame.Data, &p); err != nil {
			return err
		}
		return c.PrivateMessage(connID, p)
	case EventJoinRoom:
		var p RoomPayload
		if err := decodePayload(frame.Event, frame.Data, &p); err != nil {
			return err
		}
		return c.JoinRoom(connID, p)
	case EventLeaveRoom:
		var p RoomPayload
		if err := decodePayload(frame.Event, frame.Data, &p); err != nil {
			return err
		}
		return c.LeaveRoom(connID, p)
	case EventReaction:
		var p ReactionPayload
		if err := decodePayload(frame.Event, frame.Data, &p); err != nil {
			return err
		}
		return c.React(connID, p)
	case EventRead:
		var p ReadPayload
		if err := decodePayload(frame.Event, frame.Data, &p); err != nil {
			return err
		}
		return c.Read(connID, p)
	case EventLoadMore:
		var p LoadMorePayload
		if err := decodePayload(frame.Event, frame.Data, &p); err != nil {
			return err
		}
		return c.LoadMore(connID, p)
	case EventSearch:
		var p SearchPayload
		if err := decodePayload(frame.Event, frame.Data, &p); err != nil {
			return err
		}
		return c.Search(connID, p)
	default:
		return &InvalidPayloadError{Event: frame.Event, Err: ErrUnknownEvent}
	}
}

// Join registers connID as username in room. Replaying join moves the
// session instead of leaving a stale membership behind.
func (c *Coordinator) Join(connID string, p JoinPayload) error {
	room := p.Room
	if room == "" {
		room = DefaultRoom
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if prev, ok := c.registry.Get(connID); ok && prev.Room != room {
		if c.directory.RemoveMember(prev.Room, connID) {
			c.notify.ToRoom(prev.Room, EventRoomUsers, c.directory.Members(prev.Room, c.registry))
		}
	}
	c.registry.Register(connID, p.Username, room, now)
	c.directory.EnsureRoom(room, now)
	c.directory.AddMember(room, connID)
	c.observer.SessionsChanged(c.registry.Len())

	c.notify.ToRoom(room, EventUserJoined, UserEvent{ID: connID, Username: p.Username, Room: room, Timestamp: now})
	c.notify.ToRoom(room, EventRoomUsers, c.directory.Members(room, c.registry))
	c.notify.RoomInfo(room, p.Username+" joined the room")
	c.notify.ToConnection(connID, EventRoomMessages, c.store.Recent(room, c.pageSize))

	c.log.Info().Str("conn", connID).Str("user", p.Username).Str("room", room).Msg("user joined")
	return nil
}

// Send appends a room message and fans it out. An empty room targets the
// sender's active room.
func (c *Coordinator) Send(connID string, p SendPayload) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	sender, ok := c.registry.Get(connID)
	if !ok {
		return ErrUnknownSession
	}
	room := p.Room
	if room == "" {
		room = sender.Room
	}
	msg := Message{
		ID:        c.newID(),
		Sender:    sender.Username,
		SenderID:  connID,
		Room:      room,
		Text:      p.Text,
		Timestamp: c.now(),
		ReadBy:    []string{connID},
	}
	c.append(msg)

	c.notify.ToRoom(room, EventReceiveMessage, msg)
	c.notify.SoundToRoom(room, "message")
	body := preview(sender.Username, p.Text)
	for _, id := range c.directory.MemberIDs(room) {
		if id != connID {
			c.notify.Browser(id, "New Message", body)
		}
	}
	return nil
}

// Typing updates the typing flag and rebroadcasts the room's typing list.
func (c *Coordinator) Typing(connID string, p TypingPayload) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.registry.Get(connID)
	if !ok {
		return ErrUnknownSession
	}
	room := p.Room
	if room == "" {
		room = s.Room
	}
	c.presence.SetTyping(connID, p.IsTyping, c.now())
	c.broadcastTyping(room)
	return nil
}

// PrivateMessage delivers a message to one connection and echoes it back to
// the sender.
func (c *Coordinator) PrivateMessage(connID string, p PrivateMessagePayload) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	sender, ok := c.registry.Get(connID)
	if !ok {
		return ErrUnknownSession
	}
	recipient, ok := c.registry.Get(p.To)
	if !ok {
		return ErrUnknownRecipient
	}
	msg := Message{
		ID:          c.newID(),
		Sender:      sender.Username,
		SenderID:    connID,
		Text:        p.Text,
		Timestamp:   c.now(),
		Private:     true,
		Recipient:   recipient.Username,
		RecipientID: recipient.ID,
		ReadBy:      []string{connID},
	}
	c.append(msg)

	c.notify.ToConnection(recipient.ID, EventPrivateMessage, msg)
	c.notify.ToConnection(connID, EventPrivateMessage, msg)
	c.notify.SoundToConnection(recipient.ID, "private_message")
	c.notify.Browser(recipient.ID, "Private Message", preview(sender.Username, p.Text))
	return nil
}

// JoinRoom moves the session from its current room into p.Room. Joining the
// room the session is already a member of only resends its history.
func (c *Coordinator) JoinRoom(connID string, p RoomPayload) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.registry.Get(connID)
	if !ok {
		return ErrUnknownSession
	}
	if s.Room == p.Room && lo.Contains(c.directory.MemberIDs(p.Room), connID) {
		c.notify.ToConnection(connID, EventRoomMessages, c.store.Recent(p.Room, c.pageSize))
		return nil
	}
	now := c.now()
	left := c.directory.RemoveMember(s.Room, connID)
	c.registry.UpdateRoom(connID, p.Room)
	c.directory.EnsureRoom(p.Room, now)
	c.directory.AddMember(p.Room, connID)

	if left && s.Room != p.Room {
		c.notify.ToRoom(s.Room, EventRoomUsers, c.directory.Members(s.Room, c.registry))
	}
	c.notify.ToRoom(p.Room, EventUserJoinedRoom, UserEvent{ID: connID, Username: s.Username, Room: p.Room, Timestamp: now})
	c.notify.ToRoom(p.Room, EventRoomUsers, c.directory.Members(p.Room, c.registry))
	c.notify.RoomInfo(p.Room, s.Username+" joined the room")
	c.notify.ToConnection(connID, EventRoomMessages, c.store.Recent(p.Room, c.pageSize))

	c.log.Info().Str("conn", connID).Str("user", s.Username).Str("from", s.Room).Str("room", p.Room).Msg("user switched room")
	return nil
}

// LeaveRoom drops the membership only; the session keeps its room field
// until the next join or join_room.
func (c *Coordinator) LeaveRoom(connID string, p RoomPayload) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.registry.Get(connID)
	if !ok {
		return ErrUnknownSession
	}
	c.directory.RemoveMember(p.Room, connID)

	c.notify.ToRoom(p.Room, EventUserLeftRoom, UserEvent{ID: connID, Username: s.Username, Room: p.Room, Timestamp: c.now()})
	c.notify.RoomInfo(p.Room, s.Username+" left the room")

	c.log.Info().Str("conn", connID).Str("user", s.Username).Str("room", p.Room).Msg("user left room")
	return nil
}

// React toggles an emoji reaction and tells the author when someone else
// reacted.
func (c *Coordinator) React(connID string, p ReactionPayload) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.registry.Get(connID)
	if !ok {
		return ErrUnknownSession
	}
	msg, ok := c.store.ToggleReaction(p.MessageID, connID, p.Emoji)
	if !ok {
		return ErrUnknownMessage
	}
	c.recorder.Updated(msg)
	c.broadcastUpdate(msg)
	if msg.SenderID != connID {
		c.notify.Browser(msg.SenderID, "Reaction", s.Username+" reacted to your message")
	}
	return nil
}

// Read marks the message read by connID. Nothing is broadcast when the
// connection had already read it.
func (c *Coordinator) Read(connID string, p ReadPayload) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.registry.Get(connID); !ok {
		return ErrUnknownSession
	}
	if _, ok := c.store.ByID(p.MessageID); !ok {
		return ErrUnknownMessage
	}
	msg, changed := c.store.MarkRead(p.MessageID, connID)
	if !changed {
		return nil
	}
	c.recorder.Updated(msg)
	c.broadcastUpdate(msg)
	return nil
}

// LoadMore sends the page of messages older than BeforeTimestamp, or the
// newest page when no timestamp is given.
func (c *Coordinator) LoadMore(connID string, p LoadMorePayload) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.registry.Get(connID)
	if !ok {
		return ErrUnknownSession
	}
	room := p.Room
	if room == "" {
		room = s.Room
	}
	before := c.now()
	if p.BeforeTimestamp != nil {
		before = *p.BeforeTimestamp
	}
	msgs, hasMore := c.store.PageBefore(room, before, c.pageSize)
	c.notify.ToConnection(connID, EventMoreMessages, MorePayload{Messages: msgs, HasMore: hasMore})
	return nil
}

func (c *Coordinator) Search(connID string, p SearchPayload) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.registry.Get(connID)
	if !ok {
		return ErrUnknownSession
	}
	room := p.Room
	if room == "" {
		room = s.Room
	}
	c.notify.ToConnection(connID, EventSearchResults, c.store.Search(room, p.Query, c.pageSize))
	return nil
}

// Disconnect tears down the session. Unknown connections are ignored, so
// the transport may call it unconditionally.
func (c *Coordinator) Disconnect(connID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.registry.Get(connID)
	if !ok {
		return
	}
	c.directory.RemoveMember(s.Room, connID)
	wasTyping := c.presence.SetTyping(connID, false, c.now())
	c.registry.Remove(connID)
	c.observer.SessionsChanged(c.registry.Len())
	c.observer.EventHandled(EventDisconnect)

	c.notify.ToRoom(s.Room, EventUserLeft, UserEvent{ID: connID, Username: s.Username, Room: s.Room, Timestamp: c.now()})
	c.notify.ToRoom(s.Room, EventRoomUsers, c.directory.Members(s.Room, c.registry))
	if wasTyping {
		c.broadcastTyping(s.Room)
	}
	c.notify.RoomInfo(s.Room, s.Username+" disconnected")

	c.log.Info().Str("conn", connID).Str("user", s.Username).Str("room", s.Room).Msg("user disconnected")
}

// SweepTyping clears typing flags older than the configured TTL and
// rebroadcasts the affected rooms. It is a no-op when no TTL is set.
func (c *Coordinator) SweepTyping(now time.Time) int {
	if c.typingTTL <= 0 {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	expired := c.presence.Expired(now.Add(-c.typingTTL))
	rooms := make(map[string]struct{})
	var order []string
	for _, id := range expired {
		s, ok := c.registry.Get(id)
		if !ok {
			continue
		}
		if _, seen := rooms[s.Room]; !seen {
			rooms[s.Room] = struct{}{}
			order = append(order, s.Room)
		}
	}
	for _, room := range order {
		c.broadcastTyping(room)
	}
	return len(expired)
}

// Snapshot copies the current messages, sessions and room summaries.
func (c *Coordinator) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		Messages: c.store.All(),
		Users:    c.registry.All(),
		Rooms:    c.directory.Summaries(),
	}
}

// RoomExists reports whether room has ever been joined.
func (c *Coordinator) RoomExists(room string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.directory.Exists(room)
}

func (c *Coordinator) append(msg Message) {
	c.store.Append(msg)
	c.observer.MessageStored(msg.Private)
	c.recorder.Saved(msg)
}

func (c *Coordinator) broadcastTyping(room string) {
	c.notify.ToRoom(room, EventTypingUsers, c.presence.TypingUsernames(room, c.registry))
}

// broadcastUpdate sends message_updated to the message's room, or to both
// parties of a private message.
func (c *Coordinator) broadcastUpdate(msg Message) {
	if !msg.Private {
		c.notify.ToRoom(msg.Room, EventMessageUpdated, msg)
		return
	}
	c.notify.ToConnection(msg.SenderID, EventMessageUpdated, msg)
	if msg.RecipientID != msg.SenderID {
		c.notify.ToConnection(msg.RecipientID, EventMessageUpdated, msg)
	}
}
