package ws

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/cwrk-planet/tripchat/pkg/chatproto"

	"github.com/gorilla/websocket"
)

var (
	errConnClosed   = errors.New("connection closed")
	errSlowConsumer = errors.New("send buffer overflow")
)

// wsConn: серверная сторона одного клиента. Исходящие кадры идут через
// ограниченную очередь, которую разгребает writePump; переполнение очереди
// закрывает соединение.
type wsConn struct {
	conn   *websocket.Conn
	id     string
	userID string

	send      chan chatproto.Frame
	closed    chan struct{}
	closeOnce sync.Once
}

func newWsConn(c *websocket.Conn, id, userID string, buffer int) *wsConn {
	return &wsConn{
		conn:   c,
		id:     id,
		userID: userID,
		send:   make(chan chatproto.Frame, buffer),
		closed: make(chan struct{}),
	}
}

func (c *wsConn) ID() string { return c.id }

// Send ставит кадр в очередь и не блокируется.
func (c *wsConn) Send(f chatproto.Frame) error {
	select {
	case <-c.closed:
		return errConnClosed
	default:
	}

	select {
	case c.send <- f:
		return nil
	default:
		slog.Warn("ws slow consumer, closing", "conn", c.id, "user", c.userID)
		_ = c.Close()
		return errSlowConsumer
	}
}

func (c *wsConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		err = c.conn.Close()
	})
	return err
}

func (c *wsConn) writePump(pingEvery, writeWait time.Duration) {
	ticker := time.NewTicker(pingEvery)
	defer func() {
		ticker.Stop()
		_ = c.Close()
	}()

	for {
		select {
		case f := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(f); err != nil {
				slog.Debug("ws write failed", "conn", c.id, "err", err)
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				slog.Debug("ws ping failed", "conn", c.id, "err", err)
				return
			}
		case <-c.closed:
			return
		}
	}
}
