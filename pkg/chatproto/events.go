// Package chatproto — формат кадров чата поверх WebSocket, общий для сервера и клиента.
package chatproto

import (
	"encoding/json"
	"time"
)

// Входящие от клиента события
const (
	EventJoinTrip    = "joinTrip"
	EventLeaveTrip   = "leaveTrip"
	EventSendMessage = "sendMessage"
)

// Исходящие от сервера события
const (
	EventJoinedTrip     = "joinedTrip"
	EventNewMessage     = "newMessage"
	EventUserJoinedRoom = "userJoinedRoom"
	EventUserLeftRoom   = "userLeftRoom"
	EventError          = "error"
)

// Локальные события транспорта, по сети не передаются
const (
	EventOpen  = "open"
	EventClose = "close"
)

// Коды ошибок в событии error
const (
	CodeNotJoined    = "not_joined"
	CodeEmptyMessage = "empty_message"
	CodeSendFailed   = "send_failed"
	CodeRejected     = "rejected"
	CodeJoinRejected = "join_rejected"
	CodeUnauthorized = "unauthorized"
	CodeBadRequest   = "bad_request"
	CodeInternal     = "internal"
)

const (
	ReasonExplicit     = "explicit"
	ReasonDisconnected = "disconnected"
)

// Frame — один кадр: имя события + полезная нагрузка.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewFrame сериализует data в кадр.
func NewFrame(event string, data any) (Frame, error) {
	if data == nil {
		return Frame{Event: event}, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Event: event, Data: raw}, nil
}

// Decode разбирает полезную нагрузку кадра в dst.
func (f Frame) Decode(dst any) error {
	if len(f.Data) == 0 {
		return nil
	}
	return json.Unmarshal(f.Data, dst)
}

type JoinTrip struct {
	TripID string `json:"tripId"`
}

type LeaveTrip struct {
	TripID string `json:"tripId"`
}

type SendMessage struct {
	TripID string `json:"tripId"`
	Text   string `json:"text"`
}

type Member struct {
	UserID       string    `json:"userId"`
	ConnectionID string    `json:"connectionId"`
	JoinedAt     time.Time `json:"joinedAt"`
}

type JoinedTrip struct {
	TripID       string   `json:"tripId"`
	ConnectionID string   `json:"connectionId"`
	Members      []Member `json:"members"`
}

type Message struct {
	ID        string    `json:"id"`
	TripID    string    `json:"tripId"`
	SenderID  string    `json:"senderId"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

type UserJoinedRoom struct {
	TripID       string `json:"tripId"`
	UserID       string `json:"userId"`
	ConnectionID string `json:"connectionId"`
}

type UserLeftRoom struct {
	TripID       string `json:"tripId"`
	UserID       string `json:"userId"`
	ConnectionID string `json:"connectionId"`
	Reason       string `json:"reason"`
}

type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	TripID  string `json:"tripId,omitempty"`
}

// MessagesPage — ответ GET /trips/{tripID}/messages.
type MessagesPage struct {
	Messages []Message `json:"messages"`
	HasMore  bool      `json:"hasMore"`
}

type MembersList struct {
	TripID  string   `json:"tripId"`
	Members []Member `json:"members"`
}
