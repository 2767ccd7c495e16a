package domain

import "time"

type Message struct {
	ID        string    `db:"id"`
	TripID    string    `db:"trip_id"`
	SenderID  string    `db:"sender_id"`
	Text      string    `db:"text"`
	CreatedAt time.Time `db:"created_at"`
}

// Before сообщает, идёт ли m раньше other в порядке (created_at, id).
func (m Message) Before(other Message) bool {
	if !m.CreatedAt.Equal(other.CreatedAt) {
		return m.CreatedAt.Before(other.CreatedAt)
	}
	return m.ID < other.ID
}

// Page — страница истории в хронологическом порядке.
type Page struct {
	Messages []Message
	HasMore  bool
}
