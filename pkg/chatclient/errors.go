package chatclient

import (
	"errors"
	"fmt"

	"github.com/cwrk-planet/tripchat/pkg/chatproto"
)

var (
	ErrTransportFailure = errors.New("transport failure")
	ErrJoinTimeout      = errors.New("join timeout")
	ErrJoinRejected     = errors.New("join rejected")
	ErrNotJoined        = errors.New("not joined")
	ErrHistoryFetch     = errors.New("history fetch failed")
	ErrSendFailure      = errors.New("send failed")
	ErrEmptyMessage     = errors.New("empty message")
	ErrNotOpen          = errors.New("transport is not open")
)

// ServerError: событие error от сервера.
type ServerError struct {
	Code    string
	Message string
	TripID  string
}

func (e *ServerError) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap сопоставляет код с клиентской ошибкой.
func (e *ServerError) Unwrap() error {
	switch e.Code {
	case chatproto.CodeJoinRejected, chatproto.CodeUnauthorized:
		return ErrJoinRejected
	case chatproto.CodeNotJoined:
		return ErrNotJoined
	case chatproto.CodeInternal:
		return ErrTransportFailure
	case chatproto.CodeEmptyMessage:
		return ErrEmptyMessage
	default:
		return ErrSendFailure
	}
}

// ConnectionClass сообщает, теряется ли членство в комнате после такой ошибки.
func (e *ServerError) ConnectionClass() bool {
	switch e.Code {
	case chatproto.CodeJoinRejected, chatproto.CodeUnauthorized,
		chatproto.CodeNotJoined, chatproto.CodeInternal:
		return true
	}
	return false
}
