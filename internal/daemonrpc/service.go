package daemonrpc

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
)

// ServiceName is the fully-qualified gRPC service name every method and
// stream path below is rooted at.
const ServiceName = "neuromance.Neuromance"

// CodecName is the content-subtype this package's codec registers under.
// The client selects it on every call; the server picks it from the codec
// registry by the incoming content-subtype (see codec.go).
const CodecName = codecName

// ProtocolVersion is this build's daemon<->client wire-compatibility
// version (spec.md §4.6 "health check includes major.minor version
// compatibility check"). A client and daemon are compatible iff their
// major component matches.
const ProtocolVersion = "1.0"

// Server is the interface internal/daemonsrv implements to back every RPC
// ServiceDesc describes.
type Server interface {
	CreateConversation(context.Context, *CreateConversationRequest) (*CreateConversationResponse, error)
	ListConversations(context.Context, *ListConversationsRequest) (*ListConversationsResponse, error)
	GetMessages(context.Context, *GetMessagesRequest) (*GetMessagesResponse, error)
	SetBookmark(context.Context, *SetBookmarkRequest) (*Empty, error)
	RemoveBookmark(context.Context, *RemoveBookmarkRequest) (*Empty, error)
	DeleteConversation(context.Context, *DeleteConversationRequest) (*Empty, error)
	SwitchModel(context.Context, *SwitchModelRequest) (*Empty, error)
	ListModels(context.Context, *ListModelsRequest) (*ListModelsResponse, error)
	GetStatus(context.Context, *Empty) (*StatusResponse, error)
	GetDetailedStatus(context.Context, *Empty) (*DetailedStatusResponse, error)
	HealthCheck(context.Context, *HealthCheckRequest) (*HealthCheckResponse, error)
	Shutdown(context.Context, *Empty) (*Empty, error)
	Chat(ChatServerStream) error
}

// ChatServerStream is the bidirectional stream a Chat RPC handler drives,
// narrowed from grpc.ServerStream to this service's two message types.
type ChatServerStream interface {
	Send(*ChatEvent) error
	Recv() (*ChatStreamRequest, error)
	Context() context.Context
}

type chatServerStream struct {
	grpc.ServerStream
}

func (s *chatServerStream) Send(m *ChatEvent) error {
	return s.ServerStream.SendMsg(m)
}

func (s *chatServerStream) Recv() (*ChatStreamRequest, error) {
	req := new(ChatStreamRequest)
	if err := s.ServerStream.RecvMsg(req); err != nil {
		return nil, err
	}
	return req, nil
}

func chatHandler(srv any, stream grpc.ServerStream) error {
	return srv.(Server).Chat(&chatServerStream{stream})
}

func unaryHandler[Req any, Resp any](method func(Server, context.Context, *Req) (*Resp, error)) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return method(srv.(Server), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ServiceName}
		handler := func(ctx context.Context, req any) (any, error) {
			return method(srv.(Server), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// ServiceDesc is the hand-authored gRPC service descriptor this package's
// Server is registered with — the substitute for a protoc-generated
// _grpc.pb.go file (spec.md §4.6, DESIGN.md "Daemon RPC transport").
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*Server)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "CreateConversation", Handler: unaryHandler(Server.CreateConversation)},
		{MethodName: "ListConversations", Handler: unaryHandler(Server.ListConversations)},
		{MethodName: "GetMessages", Handler: unaryHandler(Server.GetMessages)},
		{MethodName: "SetBookmark", Handler: unaryHandler(Server.SetBookmark)},
		{MethodName: "RemoveBookmark", Handler: unaryHandler(Server.RemoveBookmark)},
		{MethodName: "DeleteConversation", Handler: unaryHandler(Server.DeleteConversation)},
		{MethodName: "SwitchModel", Handler: unaryHandler(Server.SwitchModel)},
		{MethodName: "ListModels", Handler: unaryHandler(Server.ListModels)},
		{MethodName: "GetStatus", Handler: unaryHandler(Server.GetStatus)},
		{MethodName: "GetDetailedStatus", Handler: unaryHandler(Server.GetDetailedStatus)},
		{MethodName: "HealthCheck", Handler: unaryHandler(Server.HealthCheck)},
		{MethodName: "Shutdown", Handler: unaryHandler(Server.Shutdown)},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Chat",
			Handler:       chatHandler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "neuromance.proto",
}

// RegisterServer attaches srv's RPC implementation to s under ServiceDesc.
func RegisterServer(s grpc.ServiceRegistrar, srv Server) {
	s.RegisterService(&ServiceDesc, srv)
}

func methodPath(name string) string {
	return fmt.Sprintf("/%s/%s", ServiceName, name)
}

// Client is a thin typed wrapper over a *grpc.ClientConn dialed against a
// daemon implementing Server, used by internal/client (spec.md §4.7).
type Client struct {
	cc *grpc.ClientConn
}

// NewClient wraps an already-dialed connection.
func NewClient(cc *grpc.ClientConn) *Client { return &Client{cc: cc} }

func callOpt() grpc.CallOption { return grpc.CallContentSubtype(CodecName) }

func (c *Client) CreateConversation(ctx context.Context, req *CreateConversationRequest) (*CreateConversationResponse, error) {
	resp := new(CreateConversationResponse)
	if err := c.cc.Invoke(ctx, methodPath("CreateConversation"), req, resp, callOpt()); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) ListConversations(ctx context.Context, req *ListConversationsRequest) (*ListConversationsResponse, error) {
	resp := new(ListConversationsResponse)
	if err := c.cc.Invoke(ctx, methodPath("ListConversations"), req, resp, callOpt()); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) GetMessages(ctx context.Context, req *GetMessagesRequest) (*GetMessagesResponse, error) {
	resp := new(GetMessagesResponse)
	if err := c.cc.Invoke(ctx, methodPath("GetMessages"), req, resp, callOpt()); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) SetBookmark(ctx context.Context, req *SetBookmarkRequest) (*Empty, error) {
	resp := new(Empty)
	if err := c.cc.Invoke(ctx, methodPath("SetBookmark"), req, resp, callOpt()); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) RemoveBookmark(ctx context.Context, req *RemoveBookmarkRequest) (*Empty, error) {
	resp := new(Empty)
	if err := c.cc.Invoke(ctx, methodPath("RemoveBookmark"), req, resp, callOpt()); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) DeleteConversation(ctx context.Context, req *DeleteConversationRequest) (*Empty, error) {
	resp := new(Empty)
	if err := c.cc.Invoke(ctx, methodPath("DeleteConversation"), req, resp, callOpt()); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) SwitchModel(ctx context.Context, req *SwitchModelRequest) (*Empty, error) {
	resp := new(Empty)
	if err := c.cc.Invoke(ctx, methodPath("SwitchModel"), req, resp, callOpt()); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) ListModels(ctx context.Context, req *ListModelsRequest) (*ListModelsResponse, error) {
	resp := new(ListModelsResponse)
	if err := c.cc.Invoke(ctx, methodPath("ListModels"), req, resp, callOpt()); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) GetStatus(ctx context.Context) (*StatusResponse, error) {
	resp := new(StatusResponse)
	if err := c.cc.Invoke(ctx, methodPath("GetStatus"), &Empty{}, resp, callOpt()); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) GetDetailedStatus(ctx context.Context) (*DetailedStatusResponse, error) {
	resp := new(DetailedStatusResponse)
	if err := c.cc.Invoke(ctx, methodPath("GetDetailedStatus"), &Empty{}, resp, callOpt()); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) HealthCheck(ctx context.Context, req *HealthCheckRequest) (*HealthCheckResponse, error) {
	resp := new(HealthCheckResponse)
	if err := c.cc.Invoke(ctx, methodPath("HealthCheck"), req, resp, callOpt()); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) Shutdown(ctx context.Context) (*Empty, error) {
	resp := new(Empty)
	if err := c.cc.Invoke(ctx, methodPath("Shutdown"), &Empty{}, resp, callOpt()); err != nil {
		return nil, err
	}
	return resp, nil
}

// ChatClientStream is the client side of the bidirectional Chat stream.
type ChatClientStream interface {
	Send(*ChatStreamRequest) error
	Recv() (*ChatEvent, error)
	CloseSend() error
	Context() context.Context
}

type chatClientStream struct {
	grpc.ClientStream
}

func (s *chatClientStream) Send(m *ChatStreamRequest) error {
	return s.ClientStream.SendMsg(m)
}

func (s *chatClientStream) Recv() (*ChatEvent, error) {
	event := new(ChatEvent)
	if err := s.ClientStream.RecvMsg(event); err != nil {
		return nil, err
	}
	return event, nil
}

// Chat opens the bidirectional Chat stream.
func (c *Client) Chat(ctx context.Context) (ChatClientStream, error) {
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[0], methodPath("Chat"), callOpt())
	if err != nil {
		return nil, err
	}
	return &chatClientStream{stream}, nil
}
