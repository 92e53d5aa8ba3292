package transport

import (
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// wsConn adapts a *websocket.Conn to Conn. Each text or binary frame is one
// message.
type wsConn struct {
	ws *websocket.Conn

	writeMu sync.Mutex
	closed  chan struct{}
	once    sync.Once
}

func newWSConn(ws *websocket.Conn) *wsConn {
	return &wsConn{ws: ws, closed: make(chan struct{})}
}

func (c *wsConn) ReadFrame() ([]byte, error) {
	_, data, err := c.ws.ReadMessage()
	if err != nil {
		return nil, ErrClosed
	}
	return data, nil
}

func (c *wsConn) WriteFrame(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	select {
	case <-c.closed:
		return ErrClosed
	default:
	}

	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		c.Close()
		return err
	}
	return nil
}

func (c *wsConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return c.ws.Close()
}

func (c *wsConn) RemoteAddr() string {
	return c.ws.RemoteAddr().String()
}

// WebSocketListener upgrades HTTP connections to WebSocket on /ws.
// Negotiates the "binary" subprotocol; upgrade requests that can't
// negotiate it are rejected with HTTP 400.
type WebSocketListener struct {
	upgrader  websocket.Upgrader
	onAccept  func(Conn)
}

// NewWebSocketListener builds a listener that calls onAccept for each
// successfully upgraded connection.
func NewWebSocketListener(enableCORS bool, onAccept func(Conn)) *WebSocketListener {
	return &WebSocketListener{
		onAccept: onAccept,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			Subprotocols:    []string{"binary"},
			CheckOrigin: func(r *http.Request) bool {
				return enableCORS
			},
		},
	}
}

// ServeHTTP implements http.Handler for the /ws endpoint.
func (l *WebSocketListener) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !offersSubprotocol(r, "binary") {
		http.Error(w, "binary subprotocol required", http.StatusBadRequest)
		return
	}

	ws, err := l.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket transport: upgrade failed: %v", err)
		return
	}

	go l.onAccept(newWSConn(ws))
}

func offersSubprotocol(r *http.Request, name string) bool {
	for _, p := range websocket.Subprotocols(r) {
		if p == name {
			return true
		}
	}
	return false
}

// ListenWebSocket starts an HTTP server on addr serving only /ws.
func ListenWebSocket(addr string, enableCORS bool, onAccept func(Conn)) error {
	listener := NewWebSocketListener(enableCORS, onAccept)
	mux := http.NewServeMux()
	mux.Handle("/ws", listener)

	log.Printf("websocket transport listening on %s", addr)
	return http.ListenAndServe(addr, mux)
}
