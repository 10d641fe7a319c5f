package realtime

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/coopvest/coopvest/internal/domain"
)

// outboundQueueSize bounds the per-connection send queue. A consumer that
// falls this far behind is disconnected rather than buffered without limit.
const outboundQueueSize = 64

// transport is the subset of *websocket.Conn the delivery path needs,
// narrowed so the registry and dispatcher can be exercised without a network.
type transport interface {
	WriteJSON(v any) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	Close() error
}

// Conn is one live client session. A user may own any number of them.
type Conn struct {
	id   string
	tr   transport
	send chan any
	done chan struct{}
	once sync.Once

	mu         sync.Mutex
	userID     string
	missed     int
	subscribed map[string]struct{}
}

func newConn(tr transport) *Conn {
	return &Conn{
		id:         uuid.NewString(),
		tr:         tr,
		send:       make(chan any, outboundQueueSize),
		done:       make(chan struct{}),
		subscribed: make(map[string]struct{}),
	}
}

func (c *Conn) ID() string { return c.id }

func (c *Conn) UserID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID
}

func (c *Conn) setUserID(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.userID = userID
}

// markAlive resets the missed-probe counter; called on pong and on
// application-level pings.
func (c *Conn) markAlive() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.missed = 0
}

func (c *Conn) noteProbe() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.missed++
}

func (c *Conn) missedProbes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.missed
}

func (c *Conn) trackSubscription(loanID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribed[loanID] = struct{}{}
}

func (c *Conn) dropSubscription(loanID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.subscribed, loanID)
}

func (c *Conn) subscriptions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.subscribed))
	for loanID := range c.subscribed {
		out = append(out, loanID)
	}
	return out
}

// enqueue hands a frame to the write loop without ever blocking the caller.
// A full queue closes the connection.
func (c *Conn) enqueue(v any) error {
	select {
	case <-c.done:
		return domain.ErrTransportClosed
	default:
	}
	select {
	case c.send <- v:
		return nil
	default:
		c.close()
		return domain.ErrSlowConsumer
	}
}

func (c *Conn) writeLoop() {
	for {
		select {
		case v := <-c.send:
			if err := c.tr.WriteJSON(v); err != nil {
				c.close()
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *Conn) ping(deadline time.Time) error {
	return c.tr.WriteControl(websocket.PingMessage, nil, deadline)
}

func (c *Conn) close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.tr.Close()
	})
}

func (c *Conn) closed() <-chan struct{} { return c.done }
