package internal

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// ServeWS upgrades the request and attaches the socket to the coordinator
// under a fresh connection id. The client announces itself with a join
// frame.
func (s *Server) ServeWS(writer http.ResponseWriter, request *http.Request) {
	if !s.connLimiter.Allow(clientIP(request)) {
		writeError(writer, http.StatusTooManyRequests, errTooManyRequests)
		return
	}
	websocketConn, err := upgrader.Upgrade(writer, request, nil)
	if err != nil {
		s.log.Warn().Err(err).Str("remote", request.RemoteAddr).Msg("websocket upgrade failed")
		return
	}

	client := newClient(uuid.NewString(), s.hub, websocketConn, s.log, s.metrics.DecConn)
	s.hub.register(client)
	s.metrics.IncConn()
	s.log.Debug().Str("conn", client.id).Str("remote", request.RemoteAddr).Msg("websocket connected")

	go client.writePump()
	go client.readPump(s.coordinator)
}
