package service

import (
	"context"
	"time"

	"github.com/cwrk-planet/tripchat/internal/domain"
)

// MessageStore: внешнее append-only хранилище сообщений.
type MessageStore interface {
	// Persist сохраняет сообщение и возвращает итоговую запись.
	Persist(ctx context.Context, m domain.Message) (domain.Message, error)
	// Query возвращает до limit сообщений строго старше before (или самые новые,
	// если before пуст), от новых к старым.
	Query(ctx context.Context, tripID, before string, limit int) ([]domain.Message, error)
}

type IDGenerator interface {
	Next() (id string, createdAt time.Time, err error)
}

// PageCache: кэш неизменяемых страниц истории.
type PageCache interface {
	BuildKey(tripID, before string, limit int) string
	Get(ctx context.Context, key string) (*domain.Page, bool, error)
	Set(ctx context.Context, key string, page *domain.Page, ttl time.Duration) error
}
