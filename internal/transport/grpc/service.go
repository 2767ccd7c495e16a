package grpcx

import (
	"context"

	"github.com/cwrk-planet/tripchat/pkg/chatproto"

	"google.golang.org/grpc"
)

const (
	serviceName = "tripchat.chat.v1.ChatService"

	methodGetMessages = "/" + serviceName + "/GetMessages"
	methodListMembers = "/" + serviceName + "/ListMembers"
)

type GetMessagesRequest struct {
	TripID string `json:"tripId"`
	Limit  int32  `json:"limit,omitempty"`
	Before string `json:"before,omitempty"`
}

type ListMembersRequest struct {
	TripID string `json:"tripId"`
}

// ChatServiceServer: серверная сторона tripchat.chat.v1.ChatService.
type ChatServiceServer interface {
	GetMessages(ctx context.Context, in *GetMessagesRequest) (*chatproto.MessagesPage, error)
	ListMembers(ctx context.Context, in *ListMembersRequest) (*chatproto.MembersList, error)
}

// Описание сервиса вручную: сообщения кодируются JSON-кодеком, а не protobuf.
var chatServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*ChatServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetMessages", Handler: getMessagesHandler},
		{MethodName: "ListMembers", Handler: listMembersHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "tripchat/chat/v1/chat",
}

func RegisterChatServiceServer(s grpc.ServiceRegistrar, srv ChatServiceServer) {
	s.RegisterService(&chatServiceDesc, srv)
}

func getMessagesHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(GetMessagesRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ChatServiceServer).GetMessages(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodGetMessages}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ChatServiceServer).GetMessages(ctx, req.(*GetMessagesRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func listMembersHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ListMembersRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ChatServiceServer).ListMembers(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodListMembers}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ChatServiceServer).ListMembers(ctx, req.(*ListMembersRequest))
	}
	return interceptor(ctx, in, info, handler)
}
