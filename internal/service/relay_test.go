package service

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/cwrk-planet/tripchat/internal/domain"
	"github.com/cwrk-planet/tripchat/internal/idgen"
	"github.com/cwrk-planet/tripchat/pkg/chatproto"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRelay(t *testing.T, policies ...Policy) (*Coordinator, *Relay, MessageStore) {
	t.Helper()
	coord := newTestCoordinator()
	store := newSQLiteStore(t)
	return coord, NewRelay(coord, store, idgen.NewULID(), policies...), store
}

// A и B в комнате, A отправляет: оба получают ровно одно newMessage.
func TestSend_BroadcastsToEveryMemberIncludingSender(t *testing.T) {
	coord, relay, store := newTestRelay(t)
	a, b := newRecConn("a"), newRecConn("b")
	connectAndJoin(t, coord, "trip", "alice", a)
	connectAndJoin(t, coord, "trip", "bob", b)

	saved, err := relay.Send(context.Background(), "trip", "a", "  hello  ")
	require.NoError(t, err)
	assert.Equal(t, "hello", saved.Text)
	assert.Equal(t, "alice", saved.SenderID)
	assert.True(t, idgen.Valid(saved.ID))

	for _, c := range []*recConn{a, b} {
		got := c.messages(t)
		require.Len(t, got, 1, c.ID())
		assert.Equal(t, saved.ID, got[0].ID)
		assert.Equal(t, "hello", got[0].Text)
		assert.Equal(t, "trip", got[0].TripID)
	}

	rows, err := store.Query(context.Background(), "trip", "", 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, saved.ID, rows[0].ID)
}

func TestSend_NotJoined(t *testing.T) {
	coord, relay, store := newTestRelay(t)
	a, b := newRecConn("a"), newRecConn("b")
	connectAndJoin(t, coord, "trip", "alice", a)
	coord.Connect(b)

	_, err := relay.Send(context.Background(), "trip", "b", "hi")
	require.ErrorIs(t, err, domain.ErrNotJoined)
	assert.Empty(t, a.byEvent(chatproto.EventNewMessage))

	// после leave отправка тоже запрещена
	coord.Leave("trip", "a")
	_, err = relay.Send(context.Background(), "trip", "a", "hi")
	require.ErrorIs(t, err, domain.ErrNotJoined)

	rows, err := store.Query(context.Background(), "trip", "", 10)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestSend_EmptyText(t *testing.T) {
	coord, relay, _ := newTestRelay(t)
	a := newRecConn("a")
	connectAndJoin(t, coord, "trip", "alice", a)

	for _, text := range []string{"", "   ", "\n\t"} {
		_, err := relay.Send(context.Background(), "trip", "a", text)
		require.ErrorIs(t, err, domain.ErrEmptyMessage)
	}
	assert.Empty(t, a.byEvent(chatproto.EventNewMessage))
}

func TestSend_StoreFailure(t *testing.T) {
	coord := newTestCoordinator()
	relay := NewRelay(coord, failingStore{}, idgen.NewULID())
	a, b := newRecConn("a"), newRecConn("b")
	connectAndJoin(t, coord, "trip", "alice", a)
	connectAndJoin(t, coord, "trip", "bob", b)

	_, err := relay.Send(context.Background(), "trip", "a", "hi")
	require.ErrorIs(t, err, domain.ErrSendFailure)
	assert.Contains(t, err.Error(), "disk full")
	assert.Empty(t, a.byEvent(chatproto.EventNewMessage))
	assert.Empty(t, b.byEvent(chatproto.EventNewMessage))
}

func TestSend_SameSenderOrder(t *testing.T) {
	coord, relay, _ := newTestRelay(t)
	a, b := newRecConn("a"), newRecConn("b")
	connectAndJoin(t, coord, "trip", "alice", a)
	connectAndJoin(t, coord, "trip", "bob", b)

	for i := 0; i < 20; i++ {
		_, err := relay.Send(context.Background(), "trip", "a", fmt.Sprintf("m%d", i))
		require.NoError(t, err)
	}

	got := b.messages(t)
	require.Len(t, got, 20)
	for i := range got {
		assert.Equal(t, fmt.Sprintf("m%d", i), got[i].Text)
		if i > 0 {
			assert.Less(t, got[i-1].ID, got[i].ID)
		}
	}
}

func TestSend_Policies(t *testing.T) {
	coord, relay, _ := newTestRelay(t, MaxLength(5), NewRateLimit(0, 2))
	a := newRecConn("a")
	connectAndJoin(t, coord, "trip", "alice", a)

	_, err := relay.Send(context.Background(), "trip", "a", strings.Repeat("ж", 6))
	require.ErrorIs(t, err, domain.ErrPolicyRejected)

	// burst 2 без пополнения: отклонённое по длине токен не тратит
	for i := 0; i < 2; i++ {
		_, err = relay.Send(context.Background(), "trip", "a", "ok")
		require.NoError(t, err)
	}
	_, err = relay.Send(context.Background(), "trip", "a", "ok")
	require.ErrorIs(t, err, domain.ErrPolicyRejected)

	assert.Len(t, a.byEvent(chatproto.EventNewMessage), 2)
}

func TestRateLimit_PerUser(t *testing.T) {
	rl := NewRateLimit(0, 1)
	ctx := context.Background()

	require.NoError(t, rl.Check(ctx, "alice", "t", "x"))
	require.ErrorIs(t, rl.Check(ctx, "alice", "t", "x"), domain.ErrPolicyRejected)
	require.NoError(t, rl.Check(ctx, "bob", "t", "x"))
}
