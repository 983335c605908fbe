package internal

import (
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"chatrelay/internal/session"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	maxMsgSize = 8192
	sendBuffer = 256
)

// EventHandler consumes decoded frames for a connection.
type EventHandler interface {
	Handle(connID string, frame session.Frame) error
	Disconnect(connID string)
}

// Client wraps a single websocket connection and its buffered send queue.
type Client struct {
	id           string
	hub          *Hub
	conn         *websocket.Conn
	send         chan []byte
	log          zerolog.Logger
	onDisconnect func()
}

func newClient(id string, hub *Hub, conn *websocket.Conn, logger zerolog.Logger, onDisconnect func()) *Client {
	return &Client{
		id:           id,
		hub:          hub,
		conn:         conn,
		send:         make(chan []byte, sendBuffer),
		log:          logger.With().Str("conn", id).Logger(),
		onDisconnect: onDisconnect,
	}
}

// readPump decodes inbound frames and hands them to events until the socket
// fails. The deferred cleanup reports the disconnect exactly once.
func (client *Client) readPump(events EventHandler) {
	defer func() {
		client.hub.unregister(client)
		_ = client.conn.Close()
		events.Disconnect(client.id)
		if client.onDisconnect != nil {
			client.onDisconnect()
		}
	}()
	client.conn.SetReadLimit(maxMsgSize)
	_ = client.conn.SetReadDeadline(time.Now().Add(pongWait))
	client.conn.SetPongHandler(func(string) error {
		return client.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		messageType, payload, err := client.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				client.log.Debug().Err(err).Msg("websocket closed unexpectedly")
			}
			break
		}
		if messageType != websocket.TextMessage {
			continue
		}
		frame, err := session.DecodeFrame(payload)
		if err == nil {
			err = events.Handle(client.id, frame)
		}
		if err != nil {
			client.log.Warn().Err(err).Msg("rejected frame")
		}
	}
}

func (client *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = client.conn.Close()
	}()
	for {
		select {
		case message, ok := <-client.send:
			_ = client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
