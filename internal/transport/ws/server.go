package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/cwrk-planet/tripchat/internal/auth"
	"github.com/cwrk-planet/tripchat/internal/domain"
	"github.com/cwrk-planet/tripchat/internal/service"
	"github.com/cwrk-planet/tripchat/pkg/chatproto"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

type Config struct {
	PingInterval   time.Duration
	WriteWait      time.Duration
	MaxMessageSize int64
	SendBuffer     int
}

func (c Config) withDefaults() Config {
	if c.PingInterval <= 0 {
		c.PingInterval = 30 * time.Second
	}
	if c.WriteWait <= 0 {
		c.WriteWait = 10 * time.Second
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = 64 << 10
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = 64
	}
	return c
}

type Sender interface {
	Send(ctx context.Context, tripID, connID, text string) (domain.Message, error)
}

type Server struct {
	cfg      Config
	upgrader websocket.Upgrader
	hub      *Hub
	coord    *service.Coordinator
	relay    Sender
	auth     auth.Authenticator
}

func NewServer(cfg Config, coord *service.Coordinator, relay Sender, a auth.Authenticator) *Server {
	return &Server{
		cfg:   cfg.withDefaults(),
		hub:   NewHub(),
		coord: coord,
		relay: relay,
		auth:  a,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Shutdown закрывает все открытые соединения.
func (s *Server) Shutdown() {
	s.hub.CloseAll()
}

// HandleWS: GET /ws. Личность проверяется до апгрейда; токен можно передать
// заголовком или параметрами access_token / user_id.
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	userID, err := s.auth.Authenticate(r.Context(), auth.FromRequest(r))
	if err != nil {
		slog.Debug("ws unauthenticated", "err", err)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade уже ответил клиенту
		slog.Warn("ws upgrade failed", "err", err)
		return
	}

	c := newWsConn(conn, uuid.NewString(), userID, s.cfg.SendBuffer)
	s.hub.Add(c)
	s.coord.Connect(c)
	slog.Info("ws connected", "conn", c.id, "user", userID)

	go c.writePump(s.cfg.PingInterval, s.cfg.WriteWait)
	s.readLoop(r.Context(), c)

	evicted := s.coord.Disconnect(c.id)
	s.hub.Remove(c)
	_ = c.Close()
	slog.Info("ws disconnected", "conn", c.id, "user", userID, "evicted", len(evicted))
}

// readLoop обрабатывает кадры строго по одному, в порядке прихода.
func (s *Server) readLoop(ctx context.Context, c *wsConn) {
	pongWait := 2 * s.cfg.PingInterval

	c.conn.SetReadLimit(s.cfg.MaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		s.coord.Touch(c.id)
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Debug("ws read failed", "conn", c.id, "err", err)
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))

		var f chatproto.Frame
		if err := json.Unmarshal(data, &f); err != nil {
			s.sendError(c, chatproto.CodeBadRequest, "malformed frame", "")
			continue
		}
		s.dispatch(ctx, c, f)
	}
}

func (s *Server) dispatch(ctx context.Context, c *wsConn, f chatproto.Frame) {
	switch f.Event {
	case chatproto.EventJoinTrip:
		var p chatproto.JoinTrip
		if err := f.Decode(&p); err != nil {
			s.sendError(c, chatproto.CodeBadRequest, "malformed joinTrip", "")
			return
		}
		if _, _, err := s.coord.Join(p.TripID, c.id, c.userID); err != nil {
			slog.Info("ws join rejected", "trip", p.TripID, "conn", c.id, "err", err)
			s.sendError(c, chatproto.CodeJoinRejected, err.Error(), p.TripID)
		}

	case chatproto.EventLeaveTrip:
		var p chatproto.LeaveTrip
		if err := f.Decode(&p); err != nil {
			s.sendError(c, chatproto.CodeBadRequest, "malformed leaveTrip", "")
			return
		}
		s.coord.Leave(p.TripID, c.id)

	case chatproto.EventSendMessage:
		var p chatproto.SendMessage
		if err := f.Decode(&p); err != nil {
			s.sendError(c, chatproto.CodeBadRequest, "malformed sendMessage", "")
			return
		}
		if _, err := s.relay.Send(ctx, p.TripID, c.id, p.Text); err != nil {
			code := sendErrorCode(err)
			if code == chatproto.CodeSendFailed || code == chatproto.CodeInternal {
				slog.Error("ws send failed", "trip", p.TripID, "conn", c.id, "user", c.userID, "err", err)
			}
			s.sendError(c, code, errorMessage(code, err), p.TripID)
		}

	default:
		s.sendError(c, chatproto.CodeBadRequest, "unknown event "+f.Event, "")
	}
}

func (s *Server) sendError(c *wsConn, code, msg, tripID string) {
	f, err := chatproto.NewFrame(chatproto.EventError, chatproto.Error{Code: code, Message: msg, TripID: tripID})
	if err != nil {
		return
	}
	if err := c.Send(f); err != nil && !errors.Is(err, errConnClosed) {
		slog.Debug("ws send error frame failed", "conn", c.id, "err", err)
	}
}
