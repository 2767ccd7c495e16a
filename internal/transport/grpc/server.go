package grpcx

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cwrk-planet/tripchat/internal/auth"
	"github.com/cwrk-planet/tripchat/internal/domain"
	"github.com/cwrk-planet/tripchat/internal/service"
	"github.com/cwrk-planet/tripchat/pkg/chatproto"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const (
	mdAuthorization = "authorization"
	mdUserID        = "x-user-id"
)

type HistoryReader interface {
	GetMessages(ctx context.Context, tripID string, limit int, before string) (domain.Page, error)
}

type MembersReader interface {
	Members(tripID string) []domain.Membership
}

type Server struct {
	history HistoryReader
	members MembersReader
	auth    auth.Authenticator
}

func NewServer(history HistoryReader, members MembersReader, a auth.Authenticator) *Server {
	return &Server{history: history, members: members, auth: a}
}

// NewGRPCServer собирает *grpc.Server с интерсепторами и зарегистрированным сервисом.
func NewGRPCServer(s *Server, defaultTimeout time.Duration, opts ...grpc.ServerOption) *grpc.Server {
	opts = append([]grpc.ServerOption{
		grpc.ChainUnaryInterceptor(UnaryServerInterceptor(defaultTimeout)),
		grpc.ChainStreamInterceptor(StreamServerInterceptor()),
	}, opts...)
	gs := grpc.NewServer(opts...)
	RegisterChatServiceServer(gs, s)
	return gs
}

// -------- helpers --------

func (s *Server) identify(ctx context.Context) (string, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", status.Error(codes.Unauthenticated, "missing metadata")
	}
	creds := auth.Credentials{
		Token:  auth.BearerToken(first(md.Get(mdAuthorization))),
		UserID: first(md.Get(mdUserID)),
	}
	userID, err := s.auth.Authenticate(ctx, creds)
	if err != nil {
		return "", status.Error(codes.Unauthenticated, "authentication required")
	}
	return userID, nil
}

func first(ss []string) string {
	if len(ss) == 0 {
		return ""
	}
	return ss[0]
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, domain.ErrInvalidCursor), errors.Is(err, domain.ErrInvalidTrip):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, domain.ErrUnauthenticated):
		return status.Error(codes.Unauthenticated, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		slog.Error("grpc internal error", "err", err)
		return status.Error(codes.Internal, "internal error")
	}
}

// -------- methods --------

func (s *Server) GetMessages(ctx context.Context, in *GetMessagesRequest) (*chatproto.MessagesPage, error) {
	if _, err := s.identify(ctx); err != nil {
		return nil, err
	}
	if in.Limit < 0 {
		return nil, status.Error(codes.InvalidArgument, "limit must not be negative")
	}

	page, err := s.history.GetMessages(ctx, in.TripID, int(in.Limit), in.Before)
	if err != nil {
		return nil, mapErr(err)
	}

	out := &chatproto.MessagesPage{
		Messages: make([]chatproto.Message, 0, len(page.Messages)),
		HasMore:  page.HasMore,
	}
	for _, m := range page.Messages {
		out.Messages = append(out.Messages, service.ToProtoMessage(m))
	}
	return out, nil
}

func (s *Server) ListMembers(ctx context.Context, in *ListMembersRequest) (*chatproto.MembersList, error) {
	if _, err := s.identify(ctx); err != nil {
		return nil, err
	}
	if in.TripID == "" {
		return nil, mapErr(domain.ErrInvalidTrip)
	}

	ms := s.members.Members(in.TripID)
	out := &chatproto.MembersList{TripID: in.TripID, Members: make([]chatproto.Member, 0, len(ms))}
	for _, m := range ms {
		out.Members = append(out.Members, chatproto.Member{
			UserID:       m.UserID,
			ConnectionID: m.ConnectionID,
			JoinedAt:     m.JoinedAt,
		})
	}
	return out, nil
}
