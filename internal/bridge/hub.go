package bridge

import (
	"context"
	"net/http"
	"time"

	"bullwatch/internal/logger"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 2 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBuffer     = 64
)

// Event is one push message. Type is "state" for the full state sent on
// connect, otherwise the name of the component that changed.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// hub fans events out to every connected websocket client.
type hub struct {
	clients    map[*client]struct{}
	broadcast  chan Event
	register   chan *client
	unregister chan *client
	done       chan struct{} // closed when run returns
	initial    func() Event
}

func newHub(initial func() Event) *hub {
	return &hub{
		clients:    make(map[*client]struct{}),
		broadcast:  make(chan Event, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
		initial:    initial,
	}
}

// run is the hub loop. It owns the clients map.
func (h *hub) run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				delete(h.clients, c)
				close(c.send)
			}
			return

		case c := <-h.register:
			h.clients[c] = struct{}{}
			c.send <- h.initial()

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}

		case ev := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- ev:
				default:
					// Slow consumer; drop it rather than stall the hub.
					delete(h.clients, c)
					close(c.send)
				}
			}
		}
	}
}

// publish queues ev without blocking the caller, which may be a poll goroutine.
// Every event carries a full view, so a dropped one is superseded by the next.
func (h *hub) publish(ev Event) {
	select {
	case h.broadcast <- ev:
	default:
		logger.Warnf("bridge: broadcast queue full, dropping %s event", ev.Type)
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return allowedOrigin(r.Header.Get("Origin")) },
}

func (s *Server) handleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warnf("bridge: websocket upgrade failed: %v", err)
		return
	}

	cl := &client{hub: s.hub, conn: conn, send: make(chan Event, sendBuffer)}
	select {
	case s.hub.register <- cl:
	case <-s.hub.done:
		conn.Close()
		return
	case <-c.Request.Context().Done():
		conn.Close()
		return
	}

	go cl.writePump()
	go cl.readPump()
}

type client struct {
	hub  *hub
	conn *websocket.Conn
	send chan Event
}

// readPump only watches the connection; the bridge takes commands over REST.
func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
		logger.Debugf("bridge: websocket client disconnected")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Debugf("bridge: websocket error: %v", err)
			}
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case ev, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(ev); err != nil {
				logger.Debugf("bridge: websocket write: %v", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
