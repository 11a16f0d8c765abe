package webserver

import (
	"net/http"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleWS attaches a websocket connection to the relay hub. The write pump
// runs in its own goroutine so one slow socket never stalls the hub or the
// other participants; the hub closing the send channel tears the socket
// down.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	c := s.hub.Join()

	go func() {
		for frame := range c.Send() {
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				break
			}
		}
		conn.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			break
		}
		s.hub.Route(c, raw)
	}

	s.hub.Leave(c)
	conn.Close()
}
