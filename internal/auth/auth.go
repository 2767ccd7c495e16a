// Package auth определяет пользователя по запросу. Ядро чата доверяет
// возвращённому userID и повторно его не проверяет.
package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/cwrk-planet/tripchat/internal/domain"
)

const (
	HeaderUserID = "X-User-ID"

	queryToken  = "access_token"
	queryUserID = "user_id"
)

// Credentials — то, что клиент предъявил: токен и (в header-режиме) id пользователя.
type Credentials struct {
	Token  string
	UserID string
}

type Authenticator interface {
	Authenticate(ctx context.Context, c Credentials) (userID string, err error)
}

// FromRequest собирает Credentials из заголовков, а для WebSocket-апгрейда
// (браузер не умеет ставить заголовки) — из query-параметров.
func FromRequest(r *http.Request) Credentials {
	c := Credentials{
		Token:  BearerToken(r.Header.Get("Authorization")),
		UserID: strings.TrimSpace(r.Header.Get(HeaderUserID)),
	}
	q := r.URL.Query()
	if c.Token == "" {
		c.Token = strings.TrimSpace(q.Get(queryToken))
	}
	if c.UserID == "" {
		c.UserID = strings.TrimSpace(q.Get(queryUserID))
	}
	return c
}

// BearerToken вырезает токен из значения "Bearer <token>".
func BearerToken(v string) string {
	v = strings.TrimSpace(v)
	if len(v) > 7 && strings.EqualFold(v[:7], "bearer ") {
		return strings.TrimSpace(v[7:])
	}
	return ""
}

// HeaderAuthenticator доверяет X-User-ID при наличии любого bearer-токена.
// Для dev и за шлюзом, который уже проверил токен.
type HeaderAuthenticator struct{}

func (HeaderAuthenticator) Authenticate(_ context.Context, c Credentials) (string, error) {
	if c.Token == "" || c.UserID == "" {
		return "", domain.ErrUnauthenticated
	}
	return c.UserID, nil
}

type ctxKey struct{}

func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, userID)
}

func UserIDFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(ctxKey{}).(string)
	return v, ok && v != ""
}
