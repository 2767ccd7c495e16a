package service

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/cwrk-planet/tripchat/internal/domain"
	"github.com/cwrk-planet/tripchat/pkg/chatproto"
)

// Conn: исходящая сторона соединения. Send не должен блокироваться надолго.
type Conn interface {
	ID() string
	Send(f chatproto.Frame) error
}

// Coordinator ведёт участие соединений в комнатах поездок.
// Комната существует, пока в ней есть хотя бы одно участие: отдельного
// создания/удаления комнаты нет.
type Coordinator struct {
	mu     sync.Mutex
	conns  map[string]Conn                          // connID -> conn
	rooms  map[string]map[string]*domain.Membership // tripID -> connID -> membership
	joined map[string]map[string]struct{}           // connID -> tripIDs

	now func() time.Time
}

func NewCoordinator() *Coordinator {
	return &Coordinator{
		conns:  make(map[string]Conn),
		rooms:  make(map[string]map[string]*domain.Membership),
		joined: make(map[string]map[string]struct{}),
		now:    time.Now,
	}
}

// Connect регистрирует соединение; до этого Join для него невозможен.
func (c *Coordinator) Connect(conn Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.conns[conn.ID()] = conn
}

// Join добавляет участие connID в комнату tripID. Повторный Join того же
// соединения не ошибка: соединение снова получает подтверждение, остальные
// участники второй раз не уведомляются.
func (c *Coordinator) Join(tripID, connID, userID string) (domain.Membership, bool, error) {
	if tripID == "" {
		return domain.Membership{}, false, domain.ErrInvalidTrip
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	conn, ok := c.conns[connID]
	if !ok {
		return domain.Membership{}, false, domain.ErrUnknownConn
	}

	room, ok := c.rooms[tripID]
	if !ok {
		room = make(map[string]*domain.Membership)
		c.rooms[tripID] = room
	}

	m, exists := room[connID]
	if !exists {
		now := c.now()
		m = &domain.Membership{
			TripID:       tripID,
			ConnectionID: connID,
			UserID:       userID,
			JoinedAt:     now,
			LastSeen:     now,
		}
		room[connID] = m

		trips, ok := c.joined[connID]
		if !ok {
			trips = make(map[string]struct{})
			c.joined[connID] = trips
		}
		trips[tripID] = struct{}{}
	}

	c.sendLocked(conn, chatproto.EventJoinedTrip, chatproto.JoinedTrip{
		TripID:       tripID,
		ConnectionID: connID,
		Members:      toMembers(sortedMembers(room)),
	})

	if !exists {
		c.broadcastLocked(tripID, connID, chatproto.EventUserJoinedRoom, chatproto.UserJoinedRoom{
			TripID:       tripID,
			UserID:       m.UserID,
			ConnectionID: connID,
		})
	}

	return *m, !exists, nil
}

// Leave снимает участие. Если участия не было: no-op, возвращает false.
func (c *Coordinator) Leave(tripID, connID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	m, ok := c.removeLocked(tripID, connID)
	if !ok {
		return false
	}
	c.broadcastLocked(tripID, "", chatproto.EventUserLeftRoom, chatproto.UserLeftRoom{
		TripID:       tripID,
		UserID:       m.UserID,
		ConnectionID: connID,
		Reason:       string(domain.LeaveExplicit),
	})

	return true
}

// Disconnect выселяет соединение из всех комнат. Срабатывает ровно один раз
// на соединение: повторный вызов ничего не делает и возвращает nil.
func (c *Coordinator) Disconnect(connID string) []domain.Membership {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.conns[connID]; !ok {
		return nil
	}
	delete(c.conns, connID)

	trips := c.joined[connID]
	evicted := make([]domain.Membership, 0, len(trips))
	for tripID := range trips {
		m, ok := c.removeLocked(tripID, connID)
		if !ok {
			continue
		}
		evicted = append(evicted, m)
		c.broadcastLocked(tripID, "", chatproto.EventUserLeftRoom, chatproto.UserLeftRoom{
			TripID:       tripID,
			UserID:       m.UserID,
			ConnectionID: connID,
			Reason:       string(domain.LeaveDisconnected),
		})
	}
	delete(c.joined, connID)

	return evicted
}

// Membership возвращает участие connID в комнате tripID, если оно есть.
func (c *Coordinator) Membership(tripID, connID string) (domain.Membership, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if room, ok := c.rooms[tripID]; ok {
		if m, ok := room[connID]; ok {
			return *m, true
		}
	}
	return domain.Membership{}, false
}

func (c *Coordinator) IsMember(tripID, connID string) bool {
	_, ok := c.Membership(tripID, connID)
	return ok
}

// Members: текущие участники комнаты в порядке входа.
func (c *Coordinator) Members(tripID string) []domain.Membership {
	c.mu.Lock()
	defer c.mu.Unlock()

	return sortedMembers(c.rooms[tripID])
}

// Rooms: число существующих комнат.
func (c *Coordinator) Rooms() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.rooms)
}

// Broadcast рассылает событие всем участникам комнаты, включая отправителя.
// Возвращает число адресатов.
func (c *Coordinator) Broadcast(tripID, event string, data any) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.broadcastLocked(tripID, "", event, data)
}

// Touch обновляет last_seen во всех участиях соединения.
func (c *Coordinator) Touch(connID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for tripID := range c.joined[connID] {
		if m, ok := c.rooms[tripID][connID]; ok {
			m.LastSeen = now
		}
	}
}

func (c *Coordinator) removeLocked(tripID, connID string) (domain.Membership, bool) {
	room, ok := c.rooms[tripID]
	if !ok {
		return domain.Membership{}, false
	}
	m, ok := room[connID]
	if !ok {
		return domain.Membership{}, false
	}

	delete(room, connID)
	if len(room) == 0 {
		delete(c.rooms, tripID)
	}
	if trips, ok := c.joined[connID]; ok {
		delete(trips, tripID)
	}

	return *m, true
}

func (c *Coordinator) broadcastLocked(tripID, excludeConnID, event string, data any) int {
	room, ok := c.rooms[tripID]
	if !ok {
		return 0
	}
	f, err := chatproto.NewFrame(event, data)
	if err != nil {
		slog.Error("coordinator: encode frame", "event", event, "err", err)
		return 0
	}

	n := 0
	for connID := range room {
		if connID == excludeConnID {
			continue
		}
		conn, ok := c.conns[connID]
		if !ok {
			continue
		}
		// best-effort: медленное соединение закрывается транспортом и выселяется через Disconnect
		if err := conn.Send(f); err != nil {
			slog.Debug("coordinator: send failed", "trip", tripID, "conn", connID, "event", event, "err", err)
			continue
		}
		n++
	}
	return n
}

func (c *Coordinator) sendLocked(conn Conn, event string, data any) {
	f, err := chatproto.NewFrame(event, data)
	if err != nil {
		slog.Error("coordinator: encode frame", "event", event, "err", err)
		return
	}
	if err := conn.Send(f); err != nil {
		slog.Debug("coordinator: send failed", "conn", conn.ID(), "event", event, "err", err)
	}
}

func sortedMembers(room map[string]*domain.Membership) []domain.Membership {
	out := make([]domain.Membership, 0, len(room))
	for _, m := range room {
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].JoinedAt.Before(out[j].JoinedAt)
		}
		return out[i].ConnectionID < out[j].ConnectionID
	})
	return out
}

func toMembers(ms []domain.Membership) []chatproto.Member {
	out := make([]chatproto.Member, 0, len(ms))
	for _, m := range ms {
		out = append(out, chatproto.Member{
			UserID:       m.UserID,
			ConnectionID: m.ConnectionID,
			JoinedAt:     m.JoinedAt,
		})
	}
	return out
}
