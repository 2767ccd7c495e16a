package ws

import (
	"errors"

	"github.com/cwrk-planet/tripchat/internal/domain"
	"github.com/cwrk-planet/tripchat/pkg/chatproto"
)

// sendErrorCode переводит ошибку отправки в код события error.
func sendErrorCode(err error) string {
	switch {
	case errors.Is(err, domain.ErrEmptyMessage):
		return chatproto.CodeEmptyMessage
	case errors.Is(err, domain.ErrNotJoined):
		return chatproto.CodeNotJoined
	case errors.Is(err, domain.ErrPolicyRejected):
		return chatproto.CodeRejected
	case errors.Is(err, domain.ErrSendFailure):
		return chatproto.CodeSendFailed
	default:
		return chatproto.CodeInternal
	}
}

// errorMessage: текст для клиента; детали хранилища наружу не отдаём.
func errorMessage(code string, err error) string {
	switch code {
	case chatproto.CodeSendFailed:
		return domain.ErrSendFailure.Error()
	case chatproto.CodeInternal:
		return "internal error"
	default:
		return err.Error()
	}
}
