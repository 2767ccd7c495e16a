package domain

import "time"

// Membership — участие одного соединения в комнате поездки.
type Membership struct {
	TripID       string    `db:"trip_id"`
	ConnectionID string    `db:"connection_id"`
	UserID       string    `db:"user_id"`
	JoinedAt     time.Time `db:"joined_at"`
	LastSeen     time.Time `db:"last_seen"`
}
