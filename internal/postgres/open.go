package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/cwrk-planet/tripchat/config"

	"github.com/jackc/pgx/v5/pgxpool"
)

const pingTimeout = 5 * time.Second

// Open поднимает пул по секции storage.postgres, проверяет связь и
// создаёт таблицу сообщений.
func Open(ctx context.Context, cfg config.Postgres) (*MessageStore, error) {
	pc, err := poolConfig(cfg)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := NewMessageStore(pool)
	if err := s.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// poolConfig переносит заданные в конфиге лимиты пула; нули оставляют
// значения pgxpool по умолчанию.
func poolConfig(cfg config.Postgres) (*pgxpool.Config, error) {
	pc, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}

	setInt32(&pc.MaxConns, cfg.MaxConns)
	setInt32(&pc.MinConns, cfg.MinConns)
	setDuration(&pc.MaxConnLifetime, cfg.MaxConnLifetime)
	setDuration(&pc.MaxConnIdleTime, cfg.MaxConnIdleTime)
	setDuration(&pc.HealthCheckPeriod, cfg.HealthCheckPeriod)

	if cfg.ApplicationName != "" {
		pc.ConnConfig.RuntimeParams["application_name"] = cfg.ApplicationName
	}
	return pc, nil
}

func setInt32(dst *int32, v int32) {
	if v > 0 {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v time.Duration) {
	if v > 0 {
		*dst = v
	}
}
