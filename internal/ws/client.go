package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendQueueSize  = 256
)

// Client owns one websocket connection. Frames are read by readPump on the
// handler goroutine and written by writePump from a bounded queue.
type Client struct {
	conn     *websocket.Conn
	info     ConnInfo
	send     chan []byte
	stop     chan struct{}
	stopOnce sync.Once
	log      *zap.Logger
}

func newClient(conn *websocket.Conn, info ConnInfo, log *zap.Logger) *Client {
	return &Client{
		conn: conn,
		info: info,
		send: make(chan []byte, sendQueueSize),
		stop: make(chan struct{}),
		log:  log,
	}
}

// ID implements bus.Member.
func (c *Client) ID() string {
	return c.info.ConnID
}

// Deliver queues payload for writing. It never blocks; false means the
// queue is full or the client is gone.
func (c *Client) Deliver(payload []byte) bool {
	select {
	case <-c.stop:
		return false
	default:
	}

	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

func (c *Client) stopWriting() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload := <-c.send:
			if !c.write(websocket.TextMessage, payload) {
				return
			}
		case <-ticker.C:
			if !c.write(websocket.PingMessage, nil) {
				return
			}
		case <-c.stop:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func (c *Client) write(messageType int, payload []byte) bool {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteMessage(messageType, payload); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
			c.log.Debug("write failed", zap.Error(err))
		}
		return false
	}
	return true
}

// readPump passes each inbound text frame to handle until the connection
// fails, and returns that failure.
func (c *Client) readPump(handle func(raw []byte)) error {
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		messageType, raw, err := c.conn.ReadMessage()
		if err != nil {
			return err
		}
		if messageType != websocket.TextMessage {
			continue
		}
		handle(raw)
	}
}
