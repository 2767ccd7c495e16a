package cache_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/cwrk-planet/tripchat/internal/cache"
	"github.com/cwrk-planet/tripchat/internal/domain"
	"github.com/cwrk-planet/tripchat/internal/service"
	"github.com/cwrk-planet/tripchat/internal/sqlite"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisCache(t *testing.T) (*cache.RedisPageCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := cache.NewRedis(context.Background(), cache.RedisConfig{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func newSQLiteStore(t *testing.T) *sqlite.MessageStore {
	t.Helper()
	s, err := sqlite.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seed(t *testing.T, s *sqlite.MessageStore, tripID string, n int) []domain.Message {
	t.Helper()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	out := make([]domain.Message, 0, n)
	for i := 0; i < n; i++ {
		m, err := s.Persist(context.Background(), domain.Message{
			ID:        fmt.Sprintf("%s-m%03d", tripID, i),
			TripID:    tripID,
			SenderID:  "u1",
			Text:      fmt.Sprintf("msg %d", i),
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		})
		require.NoError(t, err)
		out = append(out, m)
	}
	return out
}

func TestBuildKey(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer client.Close()

	c := cache.NewRedisWithClient(client, "")
	assert.Equal(t, "tripchat:history:trip-1:01HX:20", c.BuildKey("trip-1", "01HX", 20))
	assert.Equal(t, "tripchat:history:trip-1::10", c.BuildKey("trip-1", "", 10))

	c = cache.NewRedisWithClient(client, "dev")
	assert.Equal(t, "dev:trip-2:a:5", c.BuildKey("trip-2", "a", 5))
}

func TestBuildKey_SeparatorInPartsDoesNotCollide(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer client.Close()
	c := cache.NewRedisWithClient(client, "p")

	assert.NotEqual(t, c.BuildKey("a:b", "x", 10), c.BuildKey("a", "b:x", 10))
	assert.NotEqual(t, c.BuildKey("a%3Ab", "x", 10), c.BuildKey("a:b", "x", 10))
	assert.NotEqual(t, c.BuildKey("t", "latest", 10), c.BuildKey("t", "", 10))
	assert.Equal(t, "p:a%3Ab:x:10", c.BuildKey("a:b", "x", 10))
}

func TestRedisPageCache_MissThenHit(t *testing.T) {
	c, _ := newRedisCache(t)
	ctx := context.Background()
	key := c.BuildKey("trip-1", "m005", 3)

	page, found, err := c.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, page)

	at := time.Date(2026, 3, 1, 12, 0, 1, 500_000_000, time.UTC)
	want := &domain.Page{
		Messages: []domain.Message{{ID: "m001", TripID: "trip-1", SenderID: "u1", Text: "привет", CreatedAt: at}},
		HasMore:  true,
	}
	require.NoError(t, c.Set(ctx, key, want, time.Minute))

	got, found, err := c.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, got.HasMore)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "привет", got.Messages[0].Text)
	assert.True(t, at.Equal(got.Messages[0].CreatedAt))
}

func TestRedisPageCache_TTLExpires(t *testing.T) {
	c, mr := newRedisCache(t)
	ctx := context.Background()
	key := c.BuildKey("trip-1", "m005", 3)

	require.NoError(t, c.Set(ctx, key, &domain.Page{}, 30*time.Second))
	assert.True(t, mr.Exists(key))

	mr.FastForward(31 * time.Second)

	_, found, err := c.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRedisPageCache_CorruptValue(t *testing.T) {
	c, mr := newRedisCache(t)
	key := c.BuildKey("trip-1", "m005", 3)
	require.NoError(t, mr.Set(key, "{not json"))

	_, found, err := c.Get(context.Background(), key)
	require.Error(t, err)
	assert.False(t, found)
}

func TestNewRedis_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := cache.NewRedis(context.Background(), cache.RedisConfig{Addr: addr})
	require.Error(t, err)
}

func TestHistoryPager_RedisFillsAndServes(t *testing.T) {
	c, mr := newRedisCache(t)
	store := newSQLiteStore(t)
	msgs := seed(t, store, "trip-1", 8)
	pager := service.NewHistoryPager(store, c, time.Minute)
	ctx := context.Background()

	first, err := pager.GetMessages(ctx, "trip-1", 3, msgs[5].ID)
	require.NoError(t, err)
	require.Len(t, first.Messages, 3)
	assert.Equal(t, msgs[2].ID, first.Messages[0].ID)
	assert.True(t, first.HasMore)

	key := c.BuildKey("trip-1", msgs[5].ID, 3)
	require.Eventually(t, func() bool { return mr.Exists(key) }, time.Second, 10*time.Millisecond)

	second, err := pager.GetMessages(ctx, "trip-1", 3, msgs[5].ID)
	require.NoError(t, err)
	assert.Equal(t, first.Messages[0].ID, second.Messages[0].ID)
	assert.Equal(t, first.HasMore, second.HasMore)
}

func TestHistoryPager_CursorWithSeparatorIsNotServedFromOtherTrip(t *testing.T) {
	c, mr := newRedisCache(t)
	store := newSQLiteStore(t)
	msgs := seed(t, store, "a:b", 6)
	pager := service.NewHistoryPager(store, c, time.Minute)
	ctx := context.Background()

	_, err := pager.GetMessages(ctx, "a:b", 10, msgs[5].ID)
	require.NoError(t, err)
	key := c.BuildKey("a:b", msgs[5].ID, 10)
	require.Eventually(t, func() bool { return mr.Exists(key) }, time.Second, 10*time.Millisecond)

	page, err := pager.GetMessages(ctx, "a", 10, "b:"+msgs[5].ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInvalidCursor), err)
	assert.Empty(t, page.Messages)
}

func TestHistoryPager_RedisDownFallsBackToStore(t *testing.T) {
	c, mr := newRedisCache(t)
	store := newSQLiteStore(t)
	msgs := seed(t, store, "trip-1", 5)
	pager := service.NewHistoryPager(store, c, time.Minute)

	mr.Close()

	page, err := pager.GetMessages(context.Background(), "trip-1", 2, msgs[4].ID)
	require.NoError(t, err)
	require.Len(t, page.Messages, 2)
	assert.Equal(t, msgs[2].ID, page.Messages[0].ID)
	assert.Equal(t, msgs[3].ID, page.Messages[1].ID)
	assert.True(t, page.HasMore)
}
