// Package netclient drives a remote session over its websocket.
package netclient

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/hersh/gotris-engine/internal/protocol"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 1 << 20
)

var ErrClosed = errors.New("client closed")

// Client manages the websocket connection to one session.
type Client struct {
	conn   *websocket.Conn
	logger *zap.Logger

	sendCh    chan []byte
	snapshots chan protocol.SnapshotPayload
	errs      chan protocol.ErrorPayload
	done      chan struct{}

	mu     sync.Mutex
	closed bool
	err    error
}

// Dial connects to a session websocket URL and starts the pumps.
func Dial(ctx context.Context, url string, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}

	c := &Client{
		conn:      conn,
		logger:    logger,
		sendCh:    make(chan []byte, 256),
		snapshots: make(chan protocol.SnapshotPayload, 64),
		errs:      make(chan protocol.ErrorPayload, 16),
		done:      make(chan struct{}),
	}
	go c.writePump()
	go c.readPump()
	return c, nil
}

// Snapshots delivers every snapshot the server pushes. It is closed when
// the connection ends.
func (c *Client) Snapshots() <-chan protocol.SnapshotPayload {
	return c.snapshots
}

// Errors delivers the server's replies to rejected commands.
func (c *Client) Errors() <-chan protocol.ErrorPayload {
	return c.errs
}

// Done is closed once the client has shut down.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err reports why the connection ended, if it ended abnormally.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Send queues a command for the session.
func (c *Client) Send(command string, value int) error {
	data, err := protocol.Marshal(protocol.MsgCommand, protocol.CommandPayload{Command: command, Value: value})
	if err != nil {
		return fmt.Errorf("marshal command: %w", err)
	}
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.sendCh <- data:
		return nil
	case <-c.done:
		return ErrClosed
	default:
		c.logger.Warn("client send channel full, dropping command", zap.String("command", command))
		return nil
	}
}

// Close shuts down the client connection.
func (c *Client) Close() {
	if !c.shutdown(nil) {
		return
	}
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
	c.conn.Close()
}

func (c *Client) shutdown(err error) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.closed = true
	c.err = err
	close(c.done)
	return true
}

// readPump decodes server messages and hands them to the channels.
func (c *Client) readPump() {
	defer func() {
		close(c.snapshots)
		close(c.errs)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("client read failed", zap.Error(err))
				c.shutdown(err)
			} else {
				c.shutdown(nil)
			}
			return
		}

		typ, err := protocol.Peek(message)
		if err != nil {
			c.logger.Warn("client unmarshal error", zap.Error(err))
			continue
		}

		switch typ {
		case protocol.MsgSnapshot:
			var snap protocol.SnapshotPayload
			if err := protocol.ExtractPayload(message, &snap); err != nil {
				c.logger.Warn("bad snapshot", zap.Error(err))
				continue
			}
			select {
			case c.snapshots <- snap:
			case <-c.done:
			}
		case protocol.MsgError:
			var e protocol.ErrorPayload
			if err := protocol.ExtractPayload(message, &e); err != nil {
				c.logger.Warn("bad error reply", zap.Error(err))
				continue
			}
			select {
			case c.errs <- e:
			default:
			}
		default:
			c.logger.Debug("ignoring message", zap.String("type", string(typ)))
		}
	}
}

// writePump writes messages from sendCh to the websocket.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg := <-c.sendCh:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.logger.Debug("client write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}
