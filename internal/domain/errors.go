package domain

import "errors"

var (
	ErrNotJoined       = errors.New("connection has not joined the trip room")
	ErrEmptyMessage    = errors.New("empty message")
	ErrInvalidCursor   = errors.New("invalid cursor")
	ErrSendFailure     = errors.New("message was not persisted")
	ErrPolicyRejected  = errors.New("message rejected by policy")
	ErrUnknownConn     = errors.New("unknown connection")
	ErrInvalidTrip     = errors.New("trip id is required")
	ErrUnauthenticated = errors.New("unauthenticated")
)
