package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/cwrk-planet/tripchat/internal/domain"
	"github.com/cwrk-planet/tripchat/pkg/chatproto"
)

// Relay принимает сообщение от участника, сохраняет и рассылает всей комнате.
type Relay struct {
	coord    *Coordinator
	store    MessageStore
	ids      IDGenerator
	policies []Policy
}

func NewRelay(coord *Coordinator, store MessageStore, ids IDGenerator, policies ...Policy) *Relay {
	return &Relay{
		coord:    coord,
		store:    store,
		ids:      ids,
		policies: policies,
	}
}

// Send сохраняет и рассылает сообщение. Порядок рассылки сообщений одного
// соединения совпадает с порядком вызовов Send этим соединением.
func (r *Relay) Send(ctx context.Context, tripID, connID, text string) (domain.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.Message{}, domain.ErrEmptyMessage
	}

	m, ok := r.coord.Membership(tripID, connID)
	if !ok {
		return domain.Message{}, domain.ErrNotJoined
	}

	for _, p := range r.policies {
		if err := p.Check(ctx, m.UserID, tripID, text); err != nil {
			return domain.Message{}, err
		}
	}

	id, createdAt, err := r.ids.Next()
	if err != nil {
		return domain.Message{}, fmt.Errorf("%w: %v", domain.ErrSendFailure, err)
	}

	saved, err := r.store.Persist(ctx, domain.Message{
		ID:        id,
		TripID:    tripID,
		SenderID:  m.UserID,
		Text:      text,
		CreatedAt: createdAt,
	})
	if err != nil {
		return domain.Message{}, fmt.Errorf("%w: %v", domain.ErrSendFailure, err)
	}

	r.coord.Broadcast(tripID, chatproto.EventNewMessage, ToProtoMessage(saved))

	return saved, nil
}

func ToProtoMessage(m domain.Message) chatproto.Message {
	return chatproto.Message{
		ID:        m.ID,
		TripID:    m.TripID,
		SenderID:  m.SenderID,
		Text:      m.Text,
		CreatedAt: m.CreatedAt,
	}
}
