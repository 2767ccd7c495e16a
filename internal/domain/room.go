package domain

// LeaveReason — почему участник покинул комнату.
type LeaveReason string

const (
	LeaveExplicit     LeaveReason = "explicit"
	LeaveDisconnected LeaveReason = "disconnected"
)

// Room — снапшот комнаты: существует, пока в ней есть хотя бы одно участие.
type Room struct {
	TripID  string
	Members []Membership
}
