package chat

import (
	"errors"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/dkeye/Parley/internal/core"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrConnClosed   = errors.New("connection closed")
)

var _ core.Connection = (*ChatConn)(nil)

// ChatConn wraps one websocket with a buffered outbound queue. The
// write pump is the only goroutine that touches the socket for writes.
type ChatConn struct {
	id   string
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func newChatConn(id string, ws *websocket.Conn) *ChatConn {
	return &ChatConn{
		id:   id,
		conn: ws,
		send: make(chan core.Frame, 32),
	}
}

// TrySend queues f without blocking. Closed or backed-up connections
// report an error and the frame is dropped.
func (c *ChatConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrConnClosed
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

// Close is safe to call more than once.
func (c *ChatConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}
