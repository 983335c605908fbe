package internal

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/gorilla/websocket"
	"github.com/samber/lo"

	"chatrelay/internal/session"
)

// bubbletea messages for the asynchronous side of the client
type (
	connectedMsg     struct{ conn *websocket.Conn }
	incomingMsg      session.Frame
	readFailedMsg    struct{ err error }
	connectFailedMsg struct{ err error }
	sendFailedMsg    struct{ err error }
	reconnectMsg     struct{}
	roomsMsg         struct {
		rooms []session.RoomSummary
		err   error
	}
	existsMsg struct {
		room   string
		exists bool
		err    error
	}
)

const helpText = "/join <room>  /leave [room]  /msg <user> <text>  /react <n> <emoji>  /read <n>  /more  /search <text>  /users  /rooms  /quit"

func (model *TUIModel) scheduleReconnect() tea.Cmd {
	const retryDelay = 2 * time.Second
	return tea.Tick(retryDelay, func(time.Time) tea.Msg {
		return reconnectMsg{}
	})
}

// websocket dial
func (model *TUIModel) connectCmd() tea.Cmd {
	serverJoinURL := model.serverJoinURL
	return func() tea.Msg {
		joinURL, err := buildJoinURL(serverJoinURL)
		if err != nil {
			return connectFailedMsg{err: err}
		}
		conn, _, err := websocket.DefaultDialer.Dial(joinURL, http.Header{})
		if err != nil {
			return connectFailedMsg{err: err}
		}
		return connectedMsg{conn: conn}
	}
}

func (model *TUIModel) readOnceCmd() tea.Cmd {
	conn := model.websocketConn
	return func() tea.Msg {
		if conn == nil {
			return readFailedMsg{err: errNotConnected}
		}
		for {
			messageType, payload, err := conn.ReadMessage()
			if err != nil {
				return readFailedMsg{err: err}
			}
			if messageType != websocket.TextMessage {
				continue
			}
			frame, err := session.DecodeFrame(payload)
			if err != nil {
				continue
			}
			return incomingMsg(frame)
		}
	}
}

func (model *TUIModel) sendCmd(event string, payload any) tea.Cmd {
	conn := model.websocketConn
	writeMutex := model.writeMutex
	return func() tea.Msg {
		if conn == nil {
			return sendFailedMsg{err: errNotConnected}
		}
		encoded, err := session.EncodeFrame(event, payload)
		if err != nil {
			return sendFailedMsg{err: err}
		}
		writeMutex.Lock()
		err = conn.WriteMessage(websocket.TextMessage, encoded)
		writeMutex.Unlock()
		if err != nil {
			return sendFailedMsg{err: err}
		}
		return nil
	}
}

func (model *TUIModel) roomsCmd() tea.Cmd {
	serverJoinURL := model.serverJoinURL
	return func() tea.Msg {
		base, err := httpBaseFromJoinURL(serverJoinURL)
		if err != nil {
			return roomsMsg{err: err}
		}
		rooms, err := apiListRooms(base)
		return roomsMsg{rooms: rooms, err: err}
	}
}

// HTTP GET against /exists so a new room can be announced as such
func (model *TUIModel) existsCmd(room string) tea.Cmd {
	serverJoinURL := model.serverJoinURL
	return func() tea.Msg {
		base, err := httpBaseFromJoinURL(serverJoinURL)
		if err != nil {
			return existsMsg{room: room, err: err}
		}
		exists, err := apiRoomExists(base, room)
		return existsMsg{room: room, exists: exists, err: err}
	}
}

func (model *TUIModel) closeConn(reason string) {
	if model.websocketConn == nil {
		return
	}
	model.writeMutex.Lock()
	_ = model.websocketConn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason))
	model.writeMutex.Unlock()
	_ = model.websocketConn.Close()
	model.websocketConn = nil
	model.isConnected = false
}

// runCommand executes a slash command. quit reports whether the client
// should exit.
func (model *TUIModel) runCommand(input string) (cmd tea.Cmd, quit bool) {
	name, args, rest := parseCommand(input)
	state := model.state
	switch name {
	case "/quit", "/exit":
		model.closeConn("client quit")
		return tea.Quit, true
	case "/help":
		state.notify(helpText)
	case "/join":
		if len(args) == 0 {
			state.notify("Usage: /join <room>")
			return nil, false
		}
		state.switchRoom(args[0])
		return tea.Sequence(model.existsCmd(args[0]), model.sendCmd(session.EventJoinRoom, session.RoomPayload{Room: args[0]})), false
	case "/leave":
		room := state.room
		if len(args) > 0 {
			room = args[0]
		}
		return model.sendCmd(session.EventLeaveRoom, session.RoomPayload{Room: room}), false
	case "/msg":
		if len(args) == 0 || rest == "" {
			state.notify("Usage: /msg <user> <text>")
			return nil, false
		}
		to, ok := state.userID(args[0])
		if !ok {
			state.notify(fmt.Sprintf("%s is not in %s.", args[0], state.room))
			return nil, false
		}
		return model.sendCmd(session.EventPrivateMessage, session.PrivateMessagePayload{To: to, Text: rest}), false
	case "/react":
		if len(args) < 2 {
			state.notify("Usage: /react <n> <emoji>")
			return nil, false
		}
		msg, ok := model.lookupMessage(args[0])
		if !ok {
			return nil, false
		}
		return model.sendCmd(session.EventReaction, session.ReactionPayload{MessageID: msg.ID, Emoji: args[1]}), false
	case "/read":
		if len(args) == 0 {
			state.notify("Usage: /read <n>")
			return nil, false
		}
		msg, ok := model.lookupMessage(args[0])
		if !ok {
			return nil, false
		}
		return model.sendCmd(session.EventRead, session.ReadPayload{MessageID: msg.ID}), false
	case "/more":
		payload := session.LoadMorePayload{Room: state.room}
		if oldest, ok := state.oldest(); ok {
			payload.BeforeTimestamp = &oldest
		}
		return model.sendCmd(session.EventLoadMore, payload), false
	case "/search":
		query := strings.TrimSpace(strings.TrimPrefix(input, name))
		if query == "" {
			state.notify("Usage: /search <text>")
			return nil, false
		}
		return model.sendCmd(session.EventSearch, session.SearchPayload{Room: state.room, Query: query}), false
	case "/users":
		names := lo.Map(state.users, func(u session.Session, _ int) string { return u.Username })
		state.notify(fmt.Sprintf("In %s: %s", state.room, strings.Join(names, ", ")))
	case "/rooms":
		return model.roomsCmd(), false
	default:
		state.notify(fmt.Sprintf("Unknown command %s. Try /help.", name))
	}
	return nil, false
}

func (model *TUIModel) lookupMessage(ref string) (session.Message, bool) {
	index, err := strconv.Atoi(strings.TrimPrefix(ref, "#"))
	if err != nil {
		model.state.notify("Messages are referenced by their number, e.g. /read 3")
		return session.Message{}, false
	}
	msg, ok := model.state.messageAt(index)
	if !ok {
		model.state.notify(fmt.Sprintf("No message #%d.", index))
	}
	return msg, ok
}

// parseCommand splits "/msg bob hi there" into ("/msg", ["bob", "hi", "there"], "hi there").
func parseCommand(input string) (name string, args []string, rest string) {
	fields := strings.Fields(input)
	if len(fields) == 0 {
		return "", nil, ""
	}
	name = strings.ToLower(fields[0])
	args = fields[1:]
	if len(args) > 1 {
		remainder := strings.TrimSpace(strings.TrimSpace(input)[len(fields[0]):])
		rest = strings.TrimSpace(remainder[len(args[0]):])
	}
	return name, args, rest
}

//entry for bubbletea
func RunClient(serverJoinURL, room, username string) error {
	program := tea.NewProgram(NewTUIModel(serverJoinURL, room, username), tea.WithAltScreen())
	_, err := program.Run()
	return err
}

func buildJoinURL(base string) (string, error) {
	parsed, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	if parsed.Scheme != "ws" && parsed.Scheme != "wss" {
		return "", fmt.Errorf("invalid scheme for websocket: %s", parsed.Scheme)
	}
	return parsed.String(), nil
}
