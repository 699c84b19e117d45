package wsserver

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/example/realtime-chat-server/metrics"
	"github.com/example/realtime-chat-server/modules/router"
	"github.com/gofiber/contrib/websocket"
	"github.com/go-monolith/mono/pkg/types"
)

var (
	ErrClientClosed   = errors.New("client closed")
	ErrSendBufferFull = errors.New("send buffer full")
)

// wsConn is the part of *websocket.Conn the writer needs.
type wsConn interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// client is one websocket connection. Outbound events are queued and written
// by a single goroutine so writes are never concurrent.
type client struct {
	id     string
	conn   wsConn
	cfg    Config
	logger types.Logger

	send     chan router.Event
	done     chan struct{}
	finished chan struct{}
	once     sync.Once
}

var _ router.Conn = (*client)(nil)

func newClient(id string, conn wsConn, cfg Config, logger types.Logger) *client {
	c := &client{
		id:       id,
		conn:     conn,
		cfg:      cfg,
		logger:   logger,
		send:     make(chan router.Event, cfg.SendBufferSize),
		done:     make(chan struct{}),
		finished: make(chan struct{}),
	}
	go c.writePump()
	return c
}

func (c *client) ID() string { return c.id }

// Send queues an event without blocking. A full queue drops the event.
func (c *client) Send(event router.Event) error {
	select {
	case <-c.done:
		return ErrClientClosed
	default:
	}

	select {
	case c.send <- event:
		return nil
	case <-c.done:
		return ErrClientClosed
	default:
		metrics.DroppedFrames.Inc()
		return ErrSendBufferFull
	}
}

// Close stops the writer after it flushes what is already queued.
func (c *client) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}

// Wait blocks until the writer has exited and the connection is closed.
func (c *client) Wait() {
	<-c.finished
}

func (c *client) writePump() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
		close(c.finished)
	}()

	for {
		select {
		case event := <-c.send:
			if err := c.write(event); err != nil {
				c.logger.Debug("Write failed", "connID", c.id, "error", err)
				c.Close()
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}

		case <-c.done:
			c.flush()
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// flush writes whatever is still queued.
func (c *client) flush() {
	for {
		select {
		case event := <-c.send:
			if err := c.write(event); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *client) write(event router.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		c.logger.Error("Failed to marshal event", "connID", c.id, "event", event.Name, "error", err)
		return nil
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}
