package game

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/tikotus/funky-server/internal/player"
	"github.com/tikotus/funky-server/internal/transport"
)

// fakeConn is an in-memory transport.Conn letting tests drive a real
// player.Player without a socket.
type fakeConn struct {
	mu     sync.Mutex
	in     chan []byte
	out    chan []byte
	closed bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{in: make(chan []byte, 64), out: make(chan []byte, 64)}
}

func (c *fakeConn) send(frame []byte) { c.in <- frame }

func (c *fakeConn) ReadFrame() ([]byte, error) {
	frame, ok := <-c.in
	if !ok {
		return nil, transport.ErrClosed
	}
	return frame, nil
}

func (c *fakeConn) WriteFrame(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return transport.ErrClosed
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	select {
	case c.out <- cp:
	default:
	}
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.in)
	}
	return nil
}

func (c *fakeConn) RemoteAddr() string { return "fake:0" }

// newPlayer creates a Player backed by a fakeConn and returns both, so
// tests can push frames in and read written frames out.
func newPlayer() (*player.Player, *fakeConn) {
	conn := newFakeConn()
	return player.New(conn), conn
}

// recvJSON waits up to 1s for the next frame written to conn and decodes it.
func recvJSON(conn *fakeConn, v any) bool {
	select {
	case frame := <-conn.out:
		return json.Unmarshal(frame, v) == nil
	case <-time.After(time.Second):
		return false
	}
}
