package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cwrk-planet/tripchat/internal/domain"

	"github.com/jackc/pgx/v5"
)

// keyset — позиция сообщения в порядке (created_at, id).
type keyset struct {
	CreatedAt time.Time
	ID        string
}

// resolveCursor превращает id сообщения-курсора в keyset. Пустой курсор — nil.
func resolveCursor(ctx context.Context, q querier, tripID, before string) (*keyset, error) {
	if before == "" {
		return nil, nil
	}
	var ks keyset
	err := q.QueryRow(ctx, qCursorLookup, tripID, before).Scan(&ks.CreatedAt, &ks.ID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: unknown message %q", domain.ErrInvalidCursor, before)
		}
		return nil, fmt.Errorf("lookup cursor: %w", err)
	}
	return &ks, nil
}
