package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cwrk-planet/tripchat/internal/domain"

	"golang.org/x/sync/singleflight"
)

const (
	DefaultHistoryLimit = 10
	MaxHistoryLimit     = 100
)

// HistoryPager: чтение истории по курсору, не зависит от участия в комнате.
type HistoryPager struct {
	store    MessageStore
	cache    PageCache
	cacheTTL time.Duration
	maxLimit int
	sf       singleflight.Group
}

func NewHistoryPager(store MessageStore, cache PageCache, cacheTTL time.Duration) *HistoryPager {
	return &HistoryPager{
		store:    store,
		cache:    cache,
		cacheTTL: cacheTTL,
		maxLimit: MaxHistoryLimit,
	}
}

func (p *HistoryPager) SetMaxLimit(n int) {
	if n > 0 {
		p.maxLimit = n
	}
}

// ClampLimit приводит limit к [1, maxLimit]; 0 и меньше: значение по умолчанию.
func (p *HistoryPager) ClampLimit(limit int) int {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > p.maxLimit {
		limit = p.maxLimit
	}
	return limit
}

// GetMessages возвращает до limit сообщений строго старше before в
// хронологическом порядке и признак наличия более старых.
func (p *HistoryPager) GetMessages(ctx context.Context, tripID string, limit int, before string) (domain.Page, error) {
	if tripID == "" {
		return domain.Page{}, domain.ErrInvalidTrip
	}
	limit = p.ClampLimit(limit)

	// самая новая страница меняется с каждым сообщением: её не кэшируем
	if before == "" || p.cache == nil {
		return p.fetch(ctx, tripID, before, limit)
	}

	key := p.cache.BuildKey(tripID, before, limit)
	v, err, _ := p.sf.Do(key, func() (any, error) {
		return p.fetchWithCache(ctx, key, tripID, before, limit)
	})
	if err != nil {
		return domain.Page{}, err
	}
	page, ok := v.(domain.Page)
	if !ok {
		return domain.Page{}, fmt.Errorf("unexpected singleflight result %T", v)
	}
	return page, nil
}

func (p *HistoryPager) fetchWithCache(ctx context.Context, key, tripID, before string, limit int) (domain.Page, error) {
	cached, found, err := p.cache.Get(ctx, key)
	if err != nil {
		slog.WarnContext(ctx, "history cache get failed", "trip", tripID, "err", err)
	}
	if found {
		return *cached, nil
	}

	page, err := p.fetch(ctx, tripID, before, limit)
	if err != nil {
		return domain.Page{}, err
	}

	go func() {
		cacheCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := p.cache.Set(cacheCtx, key, &page, p.cacheTTL); err != nil {
			slog.Warn("history cache set failed", "trip", tripID, "err", err)
		}
	}()

	return page, nil
}

func (p *HistoryPager) fetch(ctx context.Context, tripID, before string, limit int) (domain.Page, error) {
	rows, err := p.store.Query(ctx, tripID, before, limit+1)
	if err != nil {
		return domain.Page{}, fmt.Errorf("query messages: %w", err)
	}

	hasMore := len(rows) > limit
	if hasMore {
		rows = rows[:limit]
	}

	// хранилище отдаёт от новых к старым, клиенту: по возрастанию
	msgs := make([]domain.Message, len(rows))
	for i, m := range rows {
		msgs[len(rows)-1-i] = m
	}

	return domain.Page{Messages: msgs, HasMore: hasMore}, nil
}
