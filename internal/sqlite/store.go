// Package sqlite — хранилище сообщений на встроенной SQLite (modernc.org/sqlite, без CGO).
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cwrk-planet/tripchat/internal/domain"

	_ "modernc.org/sqlite"
)

type MessageStore struct {
	db *sql.DB
}

// Open открывает (или создаёт) базу по пути path и применяет миграции.
// ":memory:" — база в памяти, живёт пока открыт store.
func Open(ctx context.Context, path string) (*MessageStore, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// одна запись за раз; для :memory: ещё и единственная база на соединение
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &MessageStore{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	slog.Debug("sqlite store ready", "path", path, "schema_version", schemaVersion)
	return s, nil
}

func (s *MessageStore) Close() error {
	return s.db.Close()
}

func (s *MessageStore) Persist(ctx context.Context, m domain.Message) (domain.Message, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO trip_messages (id, trip_id, sender_id, text, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		m.ID, m.TripID, m.SenderID, m.Text, m.CreatedAt.UnixMilli())
	if err != nil {
		return domain.Message{}, fmt.Errorf("insert message: %w", err)
	}
	m.CreatedAt = time.UnixMilli(m.CreatedAt.UnixMilli()).UTC()
	return m, nil
}

func (s *MessageStore) Query(ctx context.Context, tripID, before string, limit int) ([]domain.Message, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if before == "" {
		rows, err = s.db.QueryContext(ctx, `
			SELECT id, trip_id, sender_id, text, created_at
			FROM trip_messages
			WHERE trip_id = ?
			ORDER BY created_at DESC, id DESC
			LIMIT ?`, tripID, limit)
	} else {
		var createdAt int64
		err = s.db.QueryRowContext(ctx,
			`SELECT created_at FROM trip_messages WHERE trip_id = ? AND id = ?`,
			tripID, before).Scan(&createdAt)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, fmt.Errorf("%w: unknown message %q", domain.ErrInvalidCursor, before)
			}
			return nil, fmt.Errorf("lookup cursor: %w", err)
		}
		rows, err = s.db.QueryContext(ctx, `
			SELECT id, trip_id, sender_id, text, created_at
			FROM trip_messages
			WHERE trip_id = ?
			  AND (created_at < ? OR (created_at = ? AND id < ?))
			ORDER BY created_at DESC, id DESC
			LIMIT ?`, tripID, createdAt, createdAt, before, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Message, 0, limit)
	for rows.Next() {
		var (
			m  domain.Message
			ms int64
		)
		if err := rows.Scan(&m.ID, &m.TripID, &m.SenderID, &m.Text, &ms); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.CreatedAt = time.UnixMilli(ms).UTC()
		out = append(out, m)
	}
	return out, rows.Err()
}
