package postgres

import (
	"context"
	"fmt"

	"github.com/cwrk-planet/tripchat/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// querier — общий интерфейс *pgxpool.Pool и pgx.Tx
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type MessageStore struct {
	db *pgxpool.Pool
}

func NewMessageStore(db *pgxpool.Pool) *MessageStore {
	return &MessageStore{db: db}
}

// EnsureSchema создаёт таблицу сообщений, если её нет.
func (s *MessageStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, qSchema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (s *MessageStore) Persist(ctx context.Context, m domain.Message) (domain.Message, error) {
	var out domain.Message
	err := s.db.QueryRow(ctx, qInsertMessage, m.ID, m.TripID, m.SenderID, m.Text, m.CreatedAt).
		Scan(&out.ID, &out.TripID, &out.SenderID, &out.Text, &out.CreatedAt)
	if err != nil {
		return domain.Message{}, fmt.Errorf("insert message: %w", err)
	}
	out.CreatedAt = out.CreatedAt.UTC()
	return out, nil
}

// Query — keyset-пагинация по (created_at, id) DESC.
func (s *MessageStore) Query(ctx context.Context, tripID, before string, limit int) ([]domain.Message, error) {
	cur, err := resolveCursor(ctx, s.db, tripID, before)
	if err != nil {
		return nil, err
	}

	var createdAt any
	var id any
	if cur != nil {
		createdAt = cur.CreatedAt
		id = cur.ID
	}

	rows, err := s.db.Query(ctx, qHistory, tripID, createdAt, id, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Message, 0, limit)
	for rows.Next() {
		var m domain.Message
		if err := rows.Scan(&m.ID, &m.TripID, &m.SenderID, &m.Text, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.CreatedAt = m.CreatedAt.UTC()
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *MessageStore) Close() error {
	s.db.Close()
	return nil
}
