package grpcx

import (
	"context"

	"github.com/cwrk-planet/tripchat/pkg/chatproto"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

// Client: тонкая обёртка над ChatService для сервис-сервисных вызовов.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Dial создаёт соединение с JSON-кодеком по умолчанию.
func Dial(target string, opts ...grpc.DialOption) (*grpc.ClientConn, error) {
	opts = append([]grpc.DialOption{
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName)),
	}, opts...)
	return grpc.NewClient(target, opts...)
}

// WithCredentials добавляет в исходящие метаданные токен и id пользователя.
func WithCredentials(ctx context.Context, token, userID string) context.Context {
	kv := []string{mdAuthorization, "Bearer " + token}
	if userID != "" {
		kv = append(kv, mdUserID, userID)
	}
	return metadata.AppendToOutgoingContext(ctx, kv...)
}

func (c *Client) GetMessages(ctx context.Context, in *GetMessagesRequest, opts ...grpc.CallOption) (*chatproto.MessagesPage, error) {
	out := new(chatproto.MessagesPage)
	if err := c.cc.Invoke(ctx, methodGetMessages, in, out, c.callOpts(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ListMembers(ctx context.Context, in *ListMembersRequest, opts ...grpc.CallOption) (*chatproto.MembersList, error) {
	out := new(chatproto.MembersList)
	if err := c.cc.Invoke(ctx, methodListMembers, in, out, c.callOpts(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) callOpts(opts []grpc.CallOption) []grpc.CallOption {
	return append([]grpc.CallOption{grpc.CallContentSubtype(codecName)}, opts...)
}
