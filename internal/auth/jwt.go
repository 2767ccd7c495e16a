package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cwrk-planet/tripchat/internal/domain"

	"github.com/golang-jwt/jwt/v5"
)

// JWTAuthenticator проверяет HS256-токены; sub — id пользователя.
type JWTAuthenticator struct {
	secret    []byte
	issuer    string
	clockSkew time.Duration
}

func NewJWTAuthenticator(secret, issuer string, clockSkew time.Duration) (*JWTAuthenticator, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is empty")
	}
	return &JWTAuthenticator{secret: []byte(secret), issuer: issuer, clockSkew: clockSkew}, nil
}

func (a *JWTAuthenticator) Authenticate(_ context.Context, c Credentials) (string, error) {
	if c.Token == "" {
		return "", domain.ErrUnauthenticated
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(a.clockSkew),
		jwt.WithExpirationRequired(),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}

	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(c.Token, claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrUnauthenticated, err)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: empty subject", domain.ErrUnauthenticated)
	}
	return claims.Subject, nil
}

// Issue выпускает токен с sub=userID и exp=now+ttl.
func (a *JWTAuthenticator) Issue(userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		Issuer:    a.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}
