package api

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		// Browser clients connect from arbitrary origins; auth happens at
		// the gateway in front of this service.
		return true
	},
}

// wsConn adapts a websocket connection to the protocol's event sender.
// gorilla/websocket allows one concurrent writer, so sends serialize on a
// mutex shared by the protocol loop and the classification goroutines.
type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
	once sync.Once
}

func (c *wsConn) Send(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(v)
}

func (c *wsConn) Close() error {
	var err error
	c.once.Do(func() {
		err = c.conn.Close()
	})
	return err
}

// StreamSession upgrades the request to a WebSocket and runs the session
// protocol over it until either side disconnects.
func (handler *Handler) StreamSession(w http.ResponseWriter, r *http.Request) {
	sessionID := handler.extractSessionIDFromPath(r.URL.Path)
	if sessionID == "" {
		handler.respondError(w, http.StatusBadRequest, "Session ID is required")
		return
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		handler.log.Warn("websocket upgrade failed",
			zap.String("session_id", sessionID), zap.Error(err))
		return
	}

	conn := &wsConn{conn: ws}
	inbound := make(chan []byte, 16)
	done := make(chan struct{})

	// Read pump: the protocol consumes payloads from the channel; closing
	// it signals disconnect.
	go func() {
		defer close(inbound)
		for {
			_, payload, err := ws.ReadMessage()
			if err != nil {
				return
			}
			select {
			case inbound <- payload:
			case <-done:
				return
			}
		}
	}()

	handler.protocol.Run(r.Context(), sessionID, conn, inbound)
	close(done)
	conn.Close()
}
