package livefeed

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/pscheid92/electionwatch/internal/adapter/metrics"
)

const (
	writeDeadline     = 5 * time.Second
	pingInterval      = 30 * time.Second
	pongDeadline      = 60 * time.Second
	messageBufferSize = 16
	maxInboundBytes   = 512
)

// client owns the write side of one connection. Only run writes until stop
// has waited for it, then stop writes the close frame.
type client struct {
	conn    *websocket.Conn
	clock   clockwork.Clock
	metrics *metrics.LiveFeedMetrics

	send     chan []byte
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func newClient(conn *websocket.Conn, clock clockwork.Clock, m *metrics.LiveFeedMetrics) *client {
	c := &client{
		conn:    conn,
		clock:   clock,
		metrics: m,
		send:    make(chan []byte, messageBufferSize),
		done:    make(chan struct{}),
	}

	conn.SetReadLimit(maxInboundBytes)
	c.extendReadDeadline()
	conn.SetPongHandler(func(string) error {
		c.extendReadDeadline()
		return nil
	})

	c.wg.Go(c.run)
	return c
}

func (c *client) run() {
	ticker := c.clock.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg := <-c.send:
			c.extendWriteDeadline()
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
			c.metrics.MessagesSent.Inc()
		case <-ticker.Chan():
			c.extendWriteDeadline()
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.metrics.PingFailures.Inc()
				return
			}
		case <-c.done:
			return
		}
	}
}

// enqueue hands msg to the writer without blocking. It reports false when
// the buffer is full or the client is stopping.
func (c *client) enqueue(msg []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// readUntilClosed drains inbound frames so pongs and close frames are
// processed. It returns once the peer goes away or the read deadline passes.
func (c *client) readUntilClosed() {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *client) stop(code int, reason string) {
	c.stopOnce.Do(func() {
		close(c.done)
		c.wg.Wait()

		c.extendWriteDeadline()
		_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason))
		_ = c.conn.Close()
	})
}

func (c *client) extendWriteDeadline() {
	_ = c.conn.SetWriteDeadline(c.clock.Now().Add(writeDeadline))
}

func (c *client) extendReadDeadline() {
	_ = c.conn.SetReadDeadline(c.clock.Now().Add(pongDeadline))
}
