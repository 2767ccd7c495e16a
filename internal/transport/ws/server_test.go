package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cwrk-planet/tripchat/internal/auth"
	"github.com/cwrk-planet/tripchat/internal/idgen"
	"github.com/cwrk-planet/tripchat/internal/service"
	"github.com/cwrk-planet/tripchat/internal/sqlite"
	"github.com/cwrk-planet/tripchat/pkg/chatproto"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	srv   *httptest.Server
	ws    *Server
	coord *service.Coordinator
	store *sqlite.MessageStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store, err := sqlite.Open(context.Background(), ":memory:")
	require.NoError(t, err)

	coord := service.NewCoordinator()
	relay := service.NewRelay(coord, store, idgen.NewULID())
	s := NewServer(Config{PingInterval: 5 * time.Second}, coord, relay, auth.HeaderAuthenticator{})

	srv := httptest.NewServer(http.HandlerFunc(s.HandleWS))
	t.Cleanup(func() {
		s.Shutdown()
		srv.Close()
		_ = store.Close()
	})
	return &testEnv{srv: srv, ws: s, coord: coord, store: store}
}

type client struct {
	t    *testing.T
	conn *websocket.Conn
}

func (e *testEnv) dial(t *testing.T, userID string) *client {
	t.Helper()
	url := "ws" + strings.TrimPrefix(e.srv.URL, "http")
	h := http.Header{}
	h.Set("Authorization", "Bearer test")
	h.Set(auth.HeaderUserID, userID)

	conn, _, err := websocket.DefaultDialer.Dial(url, h)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return &client{t: t, conn: conn}
}

func (c *client) emit(event string, data any) {
	c.t.Helper()
	f, err := chatproto.NewFrame(event, data)
	require.NoError(c.t, err)
	require.NoError(c.t, c.conn.WriteJSON(f))
}

func (c *client) next() chatproto.Frame {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var f chatproto.Frame
	require.NoError(c.t, c.conn.ReadJSON(&f))
	return f
}

// expect читает кадры, пока не встретит event.
func (c *client) expect(event string) chatproto.Frame {
	c.t.Helper()
	for {
		f := c.next()
		if f.Event == event {
			return f
		}
	}
}

// quiet проверяет, что за d не пришло ни одного кадра.
func (c *client) quiet(d time.Duration) {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(d)))
	var f chatproto.Frame
	err := c.conn.ReadJSON(&f)
	require.Error(c.t, err, "unexpected frame %s %s", f.Event, string(f.Data))
}

func (c *client) join(tripID string) chatproto.JoinedTrip {
	c.t.Helper()
	c.emit(chatproto.EventJoinTrip, chatproto.JoinTrip{TripID: tripID})
	var j chatproto.JoinedTrip
	require.NoError(c.t, c.expect(chatproto.EventJoinedTrip).Decode(&j))
	return j
}

func TestHandleWS_RejectsAnonymous(t *testing.T) {
	env := newTestEnv(t)
	url := "ws" + strings.TrimPrefix(env.srv.URL, "http")

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHandleWS_QueryCredentials(t *testing.T) {
	env := newTestEnv(t)
	url := "ws" + strings.TrimPrefix(env.srv.URL, "http") + "?access_token=t&user_id=carol"

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	c := &client{t: t, conn: conn}
	j := c.join("trip")
	require.Len(t, j.Members, 1)
	assert.Equal(t, "carol", j.Members[0].UserID)
}

// A и B в комнате; A пишет: оба получают одно и то же сообщение ровно раз.
func TestScenario_TwoMembersExchange(t *testing.T) {
	env := newTestEnv(t)
	a := env.dial(t, "alice")
	b := env.dial(t, "bob")

	a.join("trip")
	jb := b.join("trip")
	assert.Len(t, jb.Members, 2)

	var uj chatproto.UserJoinedRoom
	require.NoError(t, a.expect(chatproto.EventUserJoinedRoom).Decode(&uj))
	assert.Equal(t, "bob", uj.UserID)

	a.emit(chatproto.EventSendMessage, chatproto.SendMessage{TripID: "trip", Text: "hi bob"})

	var ma, mb chatproto.Message
	require.NoError(t, a.expect(chatproto.EventNewMessage).Decode(&ma))
	require.NoError(t, b.expect(chatproto.EventNewMessage).Decode(&mb))
	assert.Equal(t, ma, mb)
	assert.Equal(t, "alice", mb.SenderID)
	assert.Equal(t, "hi bob", mb.Text)

	a.quiet(200 * time.Millisecond)
	b.quiet(200 * time.Millisecond)

	rows, err := env.store.Query(context.Background(), "trip", "", 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, ma.ID, rows[0].ID)
}

func TestSend_WithoutJoin(t *testing.T) {
	env := newTestEnv(t)
	a := env.dial(t, "alice")
	b := env.dial(t, "bob")
	a.join("trip")

	b.emit(chatproto.EventSendMessage, chatproto.SendMessage{TripID: "trip", Text: "sneaky"})

	var e chatproto.Error
	require.NoError(t, b.expect(chatproto.EventError).Decode(&e))
	assert.Equal(t, chatproto.CodeNotJoined, e.Code)
	assert.Equal(t, "trip", e.TripID)

	a.quiet(200 * time.Millisecond)
}

func TestSend_EmptyAndUnknown(t *testing.T) {
	env := newTestEnv(t)
	a := env.dial(t, "alice")
	a.join("trip")

	a.emit(chatproto.EventSendMessage, chatproto.SendMessage{TripID: "trip", Text: "   "})
	var e chatproto.Error
	require.NoError(t, a.expect(chatproto.EventError).Decode(&e))
	assert.Equal(t, chatproto.CodeEmptyMessage, e.Code)

	a.emit("dance", nil)
	require.NoError(t, a.expect(chatproto.EventError).Decode(&e))
	assert.Equal(t, chatproto.CodeBadRequest, e.Code)

	require.NoError(t, a.conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	require.NoError(t, a.expect(chatproto.EventError).Decode(&e))
	assert.Equal(t, chatproto.CodeBadRequest, e.Code)

	a.emit(chatproto.EventJoinTrip, chatproto.JoinTrip{})
	require.NoError(t, a.expect(chatproto.EventError).Decode(&e))
	assert.Equal(t, chatproto.CodeJoinRejected, e.Code)
}

func TestLeave_ThenSendIsRejected(t *testing.T) {
	env := newTestEnv(t)
	a := env.dial(t, "alice")
	b := env.dial(t, "bob")
	a.join("trip")
	b.join("trip")
	a.expect(chatproto.EventUserJoinedRoom)

	b.emit(chatproto.EventLeaveTrip, chatproto.LeaveTrip{TripID: "trip"})
	var left chatproto.UserLeftRoom
	require.NoError(t, a.expect(chatproto.EventUserLeftRoom).Decode(&left))
	assert.Equal(t, chatproto.ReasonExplicit, left.Reason)

	b.emit(chatproto.EventSendMessage, chatproto.SendMessage{TripID: "trip", Text: "late"})
	var e chatproto.Error
	require.NoError(t, b.expect(chatproto.EventError).Decode(&e))
	assert.Equal(t, chatproto.CodeNotJoined, e.Code)
	a.quiet(200 * time.Millisecond)
}

func TestDisconnect_EvictsOnce(t *testing.T) {
	env := newTestEnv(t)
	a := env.dial(t, "alice")
	b := env.dial(t, "bob")
	a.join("trip")
	jb := b.join("trip")
	a.expect(chatproto.EventUserJoinedRoom)

	require.NoError(t, b.conn.Close())

	var left chatproto.UserLeftRoom
	require.NoError(t, a.expect(chatproto.EventUserLeftRoom).Decode(&left))
	assert.Equal(t, chatproto.ReasonDisconnected, left.Reason)
	assert.Equal(t, jb.ConnectionID, left.ConnectionID)
	a.quiet(300 * time.Millisecond)

	members := env.coord.Members("trip")
	require.Len(t, members, 1)
	assert.Equal(t, "alice", members[0].UserID)
	require.Eventually(t, func() bool { return env.ws.hub.Len() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestShutdown_ClosesConnections(t *testing.T) {
	env := newTestEnv(t)
	a := env.dial(t, "alice")
	a.join("trip")

	env.ws.Shutdown()

	require.NoError(t, a.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := a.conn.ReadMessage()
	require.Error(t, err)
	require.Eventually(t, func() bool { return env.coord.Rooms() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestWsConn_SlowConsumerIsClosed(t *testing.T) {
	accepted := make(chan *websocket.Conn, 1)
	up := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := up.Upgrade(w, r, nil)
		require.NoError(t, err)
		accepted <- c
	}))
	defer srv.Close()

	cli, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer cli.Close()

	// writePump не запущен: очередь никто не разгребает
	c := newWsConn(<-accepted, "c1", "u1", 1)
	f := chatproto.Frame{Event: chatproto.EventNewMessage}

	require.NoError(t, c.Send(f))
	require.ErrorIs(t, c.Send(f), errSlowConsumer)
	require.ErrorIs(t, c.Send(f), errConnClosed)

	select {
	case <-c.closed:
	default:
		t.Fatal("connection must be closed")
	}
}
