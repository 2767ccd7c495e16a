package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cwrk-planet/tripchat/internal/domain"
	"github.com/cwrk-planet/tripchat/internal/idgen"
	"github.com/cwrk-planet/tripchat/internal/sqlite"
	"github.com/cwrk-planet/tripchat/pkg/chatproto"

	"github.com/stretchr/testify/require"
)

// recConn запоминает всё, что ему отправили.
type recConn struct {
	id string

	mu     sync.Mutex
	frames []chatproto.Frame
	fail   bool
}

func newRecConn(id string) *recConn { return &recConn{id: id} }

func (c *recConn) ID() string { return c.id }

func (c *recConn) Send(f chatproto.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errors.New("closed")
	}
	c.frames = append(c.frames, f)
	return nil
}

func (c *recConn) events() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.frames))
	for _, f := range c.frames {
		out = append(out, f.Event)
	}
	return out
}

func (c *recConn) byEvent(event string) []chatproto.Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []chatproto.Frame
	for _, f := range c.frames {
		if f.Event == event {
			out = append(out, f)
		}
	}
	return out
}

func (c *recConn) messages(t *testing.T) []chatproto.Message {
	t.Helper()
	var out []chatproto.Message
	for _, f := range c.byEvent(chatproto.EventNewMessage) {
		var m chatproto.Message
		require.NoError(t, f.Decode(&m))
		out = append(out, m)
	}
	return out
}

func (c *recConn) reset() {
	c.mu.Lock()
	c.frames = nil
	c.mu.Unlock()
}

func newSQLiteStore(t *testing.T) *sqlite.MessageStore {
	t.Helper()
	s, err := sqlite.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func connectAndJoin(t *testing.T, coord *Coordinator, tripID, userID string, conn *recConn) {
	t.Helper()
	coord.Connect(conn)
	_, _, err := coord.Join(tripID, conn.ID(), userID)
	require.NoError(t, err)
}

type failingStore struct{}

func (failingStore) Persist(context.Context, domain.Message) (domain.Message, error) {
	return domain.Message{}, errors.New("disk full")
}

func (failingStore) Query(context.Context, string, string, int) ([]domain.Message, error) {
	return nil, errors.New("disk full")
}

// stepClock: детерминированные часы для Coordinator.
func stepClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	cur := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		cur = cur.Add(time.Millisecond)
		return cur
	}
}

var _ IDGenerator = (*idgen.ULID)(nil)
