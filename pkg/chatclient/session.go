package chatclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/cwrk-planet/tripchat/pkg/chatproto"
)

// State: состояние подключения к комнате поездки.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateJoining
	StateJoined
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateJoining:
		return "joining"
	case StateJoined:
		return "joined"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

const DefaultJoinTimeout = 10 * time.Second

type SessionConfig struct {
	TripID      string
	JoinTimeout time.Duration
	Logger      *slog.Logger
}

// Session: контроллер жизненного цикла подключения к одной поездке.
//
// Решения принимаются под мьютексом, а вызовы транспорта и слушателей
// выполняются после его освобождения в порядке постановки.
type Session struct {
	tripID      string
	tr          Transport
	joinTimeout time.Duration
	log         *slog.Logger

	mu           sync.Mutex
	state        State
	attempted    bool
	member       bool
	pendingLeave bool
	closed       bool
	gen          uint64
	stopTimer    func() bool
	trSubs       []*Subscription

	stateL   listeners[State]
	messageL listeners[chatproto.Message]
	joinedL  listeners[chatproto.UserJoinedRoom]
	leftL    listeners[chatproto.UserLeftRoom]
	errorL   listeners[error]
}

func NewSession(tr Transport, cfg SessionConfig) *Session {
	if cfg.JoinTimeout <= 0 {
		cfg.JoinTimeout = DefaultJoinTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	s := &Session{
		tripID:      cfg.TripID,
		tr:          tr,
		joinTimeout: cfg.JoinTimeout,
		log:         cfg.Logger.With("trip", cfg.TripID),
	}
	s.trSubs = []*Subscription{
		tr.On(chatproto.EventOpen, s.onOpen),
		tr.On(chatproto.EventClose, s.onClose),
		tr.On(chatproto.EventJoinedTrip, s.onJoined),
		tr.On(chatproto.EventNewMessage, s.onMessage),
		tr.On(chatproto.EventUserJoinedRoom, s.onUserJoined),
		tr.On(chatproto.EventUserLeftRoom, s.onUserLeft),
		tr.On(chatproto.EventError, s.onError),
	}
	return s
}

func (s *Session) TripID() string { return s.tripID }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) IsRoomMember() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.member
}

func (s *Session) OnState(fn func(State)) *Subscription { return s.stateL.add(fn) }

func (s *Session) OnMessage(fn func(chatproto.Message)) *Subscription { return s.messageL.add(fn) }

func (s *Session) OnMemberJoined(fn func(chatproto.UserJoinedRoom)) *Subscription {
	return s.joinedL.add(fn)
}

func (s *Session) OnMemberLeft(fn func(chatproto.UserLeftRoom)) *Subscription {
	return s.leftL.add(fn)
}

func (s *Session) OnError(fn func(error)) *Subscription { return s.errorL.add(fn) }

// run выполняет решение под мьютексом и затем его эффекты.
func (s *Session) run(decide func() []func()) {
	s.mu.Lock()
	effects := decide()
	s.mu.Unlock()

	for _, e := range effects {
		e()
	}
}

// setState меняет состояние и возвращает эффект уведомления, если оно изменилось.
func (s *Session) setState(next State) []func() {
	if s.state == next {
		return nil
	}
	s.state = next
	return []func(){func() { s.stateL.emit(next) }}
}

// Enter начинает подключение к комнате. Повторный вызов до возврата в
// disconnected ничего не делает.
func (s *Session) Enter(ctx context.Context) {
	s.run(func() []func() {
		if s.closed || s.attempted {
			return nil
		}
		s.attempted = true
		s.pendingLeave = false
		s.gen++
		gen := s.gen

		effects := s.setState(StateConnecting)
		return append(effects, func() {
			if err := s.tr.Open(ctx); err != nil {
				s.transportFailed(gen, fmt.Errorf("%w: %v", ErrTransportFailure, err))
			}
		})
	})
}

// Leave покидает комнату. Во время подключения выход откладывается до
// завершения join.
func (s *Session) Leave() {
	s.run(func() []func() {
		switch s.state {
		case StateConnecting, StateJoining:
			s.pendingLeave = true
			return nil
		case StateJoined:
			return s.leaveLocked()
		}
		return nil
	})
}

// leaveLocked отправляет leaveTrip и переводит сессию в disconnected.
func (s *Session) leaveLocked() []func() {
	sendLeave := s.member
	s.member = false
	s.attempted = false
	s.pendingLeave = false
	s.gen++
	s.stopTimerLocked()

	var effects []func()
	if sendLeave {
		tripID := s.tripID
		effects = append(effects, func() {
			if err := s.tr.Emit(chatproto.EventLeaveTrip, chatproto.LeaveTrip{TripID: tripID}); err != nil {
				s.log.Warn("leaveTrip emit failed", slog.Any("err", err))
			}
		})
	}
	effects = append(effects, func() { _ = s.tr.Close() })
	return append(effects, s.setState(StateDisconnected)...)
}

// Send отправляет текст в комнату. Успех означает только, что кадр ушёл в
// транспорт; сообщение появится в ленте через newMessage.
func (s *Session) Send(text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyMessage
	}

	s.mu.Lock()
	joined := s.state == StateJoined && s.member
	s.mu.Unlock()
	if !joined {
		return ErrNotJoined
	}

	err := s.tr.Emit(chatproto.EventSendMessage, chatproto.SendMessage{TripID: s.tripID, Text: text})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSendFailure, err)
	}
	return nil
}

// Close вызывается при размонтировании экрана: выход из комнаты, отписка от транспорта,
// сброс всех слушателей.
func (s *Session) Close() {
	s.run(func() []func() {
		if s.closed {
			return nil
		}
		s.closed = true

		var effects []func()
		if s.state == StateJoined {
			effects = s.leaveLocked()
		} else {
			s.attempted = false
			s.member = false
			s.pendingLeave = false
			s.gen++
			s.stopTimerLocked()
			s.state = StateDisconnected
			effects = append(effects, func() { _ = s.tr.Close() })
		}

		subs := s.trSubs
		s.trSubs = nil
		return append(effects, func() {
			for _, sub := range subs {
				sub.Cancel()
			}
			s.stateL.clear()
			s.messageL.clear()
			s.joinedL.clear()
			s.leftL.clear()
			s.errorL.clear()
		})
	})
}

// failLocked возвращает сессию в disconnected после ошибки подключения.
func (s *Session) failLocked(err error) []func() {
	s.attempted = false
	s.member = false
	s.pendingLeave = false
	s.gen++
	s.stopTimerLocked()

	s.log.Warn("chat session failed", slog.String("state", s.state.String()), slog.Any("err", err))

	effects := []func(){func() { _ = s.tr.Close() }}
	effects = append(effects, s.setState(StateDisconnected)...)
	return append(effects, func() { s.errorL.emit(err) })
}

func (s *Session) transportFailed(gen uint64, err error) {
	s.run(func() []func() {
		if gen != s.gen || s.state == StateDisconnected {
			return nil
		}
		return s.failLocked(err)
	})
}

func (s *Session) stopTimerLocked() {
	if s.stopTimer != nil {
		s.stopTimer()
		s.stopTimer = nil
	}
}

func (s *Session) onOpen(chatproto.Frame) {
	s.run(func() []func() {
		if s.state != StateConnecting {
			return nil
		}
		gen := s.gen
		effects := s.setState(StateJoining)

		t := time.AfterFunc(s.joinTimeout, func() { s.joinTimedOut(gen) })
		s.stopTimer = t.Stop

		tripID := s.tripID
		return append(effects, func() {
			if err := s.tr.Emit(chatproto.EventJoinTrip, chatproto.JoinTrip{TripID: tripID}); err != nil {
				s.transportFailed(gen, fmt.Errorf("%w: %v", ErrTransportFailure, err))
			}
		})
	})
}

func (s *Session) joinTimedOut(gen uint64) {
	s.run(func() []func() {
		if gen != s.gen || s.state != StateJoining {
			return nil
		}
		return s.failLocked(ErrJoinTimeout)
	})
}

func (s *Session) onClose(f chatproto.Frame) {
	var p chatproto.Error
	_ = f.Decode(&p)

	s.run(func() []func() {
		if s.state == StateDisconnected {
			return nil
		}
		err := ErrTransportFailure
		if p.Message != "" {
			err = fmt.Errorf("%w: %s", ErrTransportFailure, p.Message)
		}
		return s.failLocked(err)
	})
}

func (s *Session) onJoined(f chatproto.Frame) {
	var p chatproto.JoinedTrip
	if err := f.Decode(&p); err != nil || p.TripID != s.tripID {
		return
	}

	s.run(func() []func() {
		if s.state != StateJoining {
			return nil
		}
		s.stopTimerLocked()
		s.member = true
		effects := s.setState(StateJoined)
		if s.pendingLeave {
			effects = append(effects, s.leaveLocked()...)
		}
		return effects
	})
}

func (s *Session) onMessage(f chatproto.Frame) {
	var m chatproto.Message
	if err := f.Decode(&m); err != nil || m.TripID != s.tripID {
		return
	}
	if s.State() != StateJoined {
		return
	}
	s.messageL.emit(m)
}

func (s *Session) onUserJoined(f chatproto.Frame) {
	var p chatproto.UserJoinedRoom
	if err := f.Decode(&p); err != nil || p.TripID != s.tripID {
		return
	}
	s.joinedL.emit(p)
}

func (s *Session) onUserLeft(f chatproto.Frame) {
	var p chatproto.UserLeftRoom
	if err := f.Decode(&p); err != nil || p.TripID != s.tripID {
		return
	}
	s.leftL.emit(p)
}

func (s *Session) onError(f chatproto.Frame) {
	var p chatproto.Error
	if err := f.Decode(&p); err != nil {
		return
	}
	if p.TripID != "" && p.TripID != s.tripID {
		return
	}
	serr := &ServerError{Code: p.Code, Message: p.Message, TripID: p.TripID}

	s.run(func() []func() {
		if s.state == StateDisconnected {
			return nil
		}
		if serr.ConnectionClass() {
			return s.failLocked(serr)
		}
		return []func(){func() { s.errorL.emit(serr) }}
	})
}

// IsConnectionError сообщает, что ошибка сбросила сессию в disconnected.
func IsConnectionError(err error) bool {
	return errors.Is(err, ErrTransportFailure) ||
		errors.Is(err, ErrJoinTimeout) ||
		errors.Is(err, ErrJoinRejected) ||
		errors.Is(err, ErrNotJoined)
}
