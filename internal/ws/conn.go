package ws

import (
	"crypto/rand"
	"encoding/hex"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"rtc-service/internal/auth"
	"rtc-service/internal/models"
)

var (
	// tuning parameters
	writeWait    = 10 * time.Second    // time allowed to write a message to the peer
	pongWait     = 60 * time.Second    // time allowed to read the next pong from the peer
	pingInterval = (pongWait * 9) / 10 // send pings with this period
	sendBufSize  = 256                 // per-connection outbound buffer size
	maxFrameSize = int64(64 * 1024)    // max inbound frame size
)

// Conn wraps one websocket connection with its bound identity and a
// buffered egress channel drained by a single writer goroutine, so outbound
// delivery order matches enqueue order.
type Conn struct {
	ID       string
	Identity auth.Identity

	DeviceID    string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time

	sock      *websocket.Conn
	egress    chan models.OutboundEvent
	closed    chan struct{}
	closeOnce sync.Once
}

// NewConn builds a Conn around an upgraded websocket.
func NewConn(sock *websocket.Conn, identity auth.Identity) *Conn {
	return &Conn{
		ID:          newConnID(),
		Identity:    identity,
		ConnectedAt: time.Now(),
		sock:        sock,
		egress:      make(chan models.OutboundEvent, sendBufSize),
		closed:      make(chan struct{}),
	}
}

// Send enqueues an event for delivery. A connection whose buffer is full is
// considered dead and closed rather than allowed to stall the sender.
func (c *Conn) Send(event models.OutboundEvent) bool {
	select {
	case <-c.closed:
		return false
	default:
	}

	select {
	case c.egress <- event:
		return true
	case <-c.closed:
		return false
	default:
		log.Printf("ws send buffer full conn_id=%s user_id=%s, closing", c.ID, c.Identity.UserID)
		c.Close()
		return false
	}
}

// Close shuts the connection down exactly once.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		if c.sock != nil {
			c.sock.Close()
		}
	})
}

// Closed reports whether Close has run.
func (c *Conn) Closed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// WritePump drains the egress channel onto the socket and keeps the peer
// alive with pings. Runs in its own goroutine per connection.
func (c *Conn) WritePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case event := <-c.egress:
			c.sock.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.sock.WriteJSON(event); err != nil {
				log.Printf("websocket write error: %v", err)
				return
			}
		case <-ticker.C:
			c.sock.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.sock.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.closed:
			return
		}
	}
}

func newConnID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return ""
	}
	return hex.EncodeToString(buf)
}
