package chatclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cwrk-planet/tripchat/pkg/chatproto"
)

// Transport: двунаправленный канал событий.
//
// Open неблокирующий: об успехе сообщает событие open, об обрыве или
// неудачном подключении сообщает событие close. Close закрывает канал без
// события close.
type Transport interface {
	Open(ctx context.Context) error
	Emit(event string, data any) error
	On(event string, h func(chatproto.Frame)) *Subscription
	Close() error
}

const defaultWriteWait = 10 * time.Second

// WSTransport: Transport поверх gorilla/websocket.
type WSTransport struct {
	url    string
	header http.Header
	dialer *websocket.Dialer

	writeWait time.Duration

	mu       sync.Mutex
	conn     *websocket.Conn
	dialing  bool
	gen      uint64
	handlers map[string]*listeners[chatproto.Frame]

	writeMu sync.Mutex
}

// NewWSTransport создаёт транспорт к ws-эндпоинту url. header уходит в
// запрос апгрейда (Authorization, X-User-ID).
func NewWSTransport(url string, header http.Header) *WSTransport {
	return &WSTransport{
		url:       url,
		header:    header,
		dialer:    &websocket.Dialer{HandshakeTimeout: 10 * time.Second, Proxy: http.ProxyFromEnvironment},
		writeWait: defaultWriteWait,
		handlers:  make(map[string]*listeners[chatproto.Frame]),
	}
}

func (t *WSTransport) Open(ctx context.Context) error {
	t.mu.Lock()
	if t.conn != nil || t.dialing {
		t.mu.Unlock()
		return nil
	}
	t.gen++
	gen := t.gen
	t.dialing = true
	t.mu.Unlock()

	go t.dial(ctx, gen)
	return nil
}

func (t *WSTransport) dial(ctx context.Context, gen uint64) {
	conn, resp, err := t.dialer.DialContext(ctx, t.url, t.header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil && resp != nil {
		err = fmt.Errorf("%w (status %d)", err, resp.StatusCode)
	}

	t.mu.Lock()
	if gen != t.gen {
		// закрыли, пока шёл dial
		t.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		return
	}
	t.dialing = false
	if err != nil {
		t.mu.Unlock()
		t.fireClose(err)
		return
	}
	t.conn = conn
	t.mu.Unlock()

	t.dispatch(chatproto.Frame{Event: chatproto.EventOpen})
	t.readLoop(conn, gen)
}

// readLoop: единственный читатель соединения; кадры раздаются в порядке прихода.
func (t *WSTransport) readLoop(conn *websocket.Conn, gen uint64) {
	for {
		var f chatproto.Frame
		if err := conn.ReadJSON(&f); err != nil {
			t.mu.Lock()
			current := gen == t.gen && t.conn == conn
			if current {
				t.conn = nil
				t.gen++
			}
			t.mu.Unlock()

			_ = conn.Close()
			if current {
				t.fireClose(err)
			}
			return
		}
		t.dispatch(f)
	}
}

func (t *WSTransport) fireClose(err error) {
	f, _ := chatproto.NewFrame(chatproto.EventClose, chatproto.Error{Message: err.Error()})
	t.dispatch(f)
}

func (t *WSTransport) dispatch(f chatproto.Frame) {
	t.mu.Lock()
	l := t.handlers[f.Event]
	t.mu.Unlock()
	if l != nil {
		l.emit(f)
	}
}

func (t *WSTransport) Emit(event string, data any) error {
	f, err := chatproto.NewFrame(event, data)
	if err != nil {
		return fmt.Errorf("encode %s: %w", event, err)
	}

	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return ErrNotOpen
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(t.writeWait))
	if err := conn.WriteJSON(f); err != nil {
		return fmt.Errorf("write %s: %w", event, err)
	}
	return nil
}

func (t *WSTransport) On(event string, h func(chatproto.Frame)) *Subscription {
	t.mu.Lock()
	l, ok := t.handlers[event]
	if !ok {
		l = &listeners[chatproto.Frame]{}
		t.handlers[event] = l
	}
	t.mu.Unlock()
	return l.add(h)
}

func (t *WSTransport) Close() error {
	t.mu.Lock()
	conn := t.conn
	t.conn = nil
	t.dialing = false
	t.gen++
	t.mu.Unlock()

	if conn == nil {
		return nil
	}

	t.writeMu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	t.writeMu.Unlock()

	if err := conn.Close(); err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		return err
	}
	return nil
}
