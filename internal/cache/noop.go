package cache

import (
	"context"
	"time"

	"github.com/cwrk-planet/tripchat/internal/domain"
)

// Noop — кэш-заглушка, когда Redis не настроен: всегда промах.
type Noop struct{}

func (Noop) BuildKey(tripID, before string, limit int) string { return "" }

func (Noop) Get(context.Context, string) (*domain.Page, bool, error) { return nil, false, nil }

func (Noop) Set(context.Context, string, *domain.Page, time.Duration) error { return nil }
