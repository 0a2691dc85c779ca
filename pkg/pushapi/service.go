package pushapi

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Full method names.
const (
	ServiceName = "presencehub.v1.PushService"

	BroadcastNewStoryMethod   = "/" + ServiceName + "/BroadcastNewStory"
	BroadcastNewCommentMethod = "/" + ServiceName + "/BroadcastNewComment"
	NotifyUserMethod          = "/" + ServiceName + "/NotifyUser"
	GetConnectionStatsMethod  = "/" + ServiceName + "/GetConnectionStats"
)

// PushServiceServer is the server API for PushService.
type PushServiceServer interface {
	BroadcastNewStory(context.Context, *structpb.Struct) (*emptypb.Empty, error)
	BroadcastNewComment(context.Context, *structpb.Struct) (*emptypb.Empty, error)
	NotifyUser(context.Context, *structpb.Struct) (*wrapperspb.BoolValue, error)
	GetConnectionStats(context.Context, *emptypb.Empty) (*structpb.Struct, error)
}

// UnimplementedPushServiceServer can be embedded for forward compatibility.
type UnimplementedPushServiceServer struct{}

func (UnimplementedPushServiceServer) BroadcastNewStory(context.Context, *structpb.Struct) (*emptypb.Empty, error) {
	return nil, status.Error(codes.Unimplemented, "method BroadcastNewStory not implemented")
}

func (UnimplementedPushServiceServer) BroadcastNewComment(context.Context, *structpb.Struct) (*emptypb.Empty, error) {
	return nil, status.Error(codes.Unimplemented, "method BroadcastNewComment not implemented")
}

func (UnimplementedPushServiceServer) NotifyUser(context.Context, *structpb.Struct) (*wrapperspb.BoolValue, error) {
	return nil, status.Error(codes.Unimplemented, "method NotifyUser not implemented")
}

func (UnimplementedPushServiceServer) GetConnectionStats(context.Context, *emptypb.Empty) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method GetConnectionStats not implemented")
}

// RegisterPushServiceServer registers srv on s.
func RegisterPushServiceServer(s grpc.ServiceRegistrar, srv PushServiceServer) {
	s.RegisterService(&PushService_ServiceDesc, srv)
}

// PushService_ServiceDesc is the grpc.ServiceDesc for PushService.
var PushService_ServiceDesc = grpc.ServiceDesc{ //nolint:revive
	ServiceName: ServiceName,
	HandlerType: (*PushServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "BroadcastNewStory", Handler: broadcastNewStoryHandler},
		{MethodName: "BroadcastNewComment", Handler: broadcastNewCommentHandler},
		{MethodName: "NotifyUser", Handler: notifyUserHandler},
		{MethodName: "GetConnectionStats", Handler: getConnectionStatsHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "presencehub/v1/push.proto",
}

func broadcastNewStoryHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PushServiceServer).BroadcastNewStory(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: BroadcastNewStoryMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(PushServiceServer).BroadcastNewStory(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func broadcastNewCommentHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PushServiceServer).BroadcastNewComment(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: BroadcastNewCommentMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(PushServiceServer).BroadcastNewComment(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func notifyUserHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PushServiceServer).NotifyUser(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: NotifyUserMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(PushServiceServer).NotifyUser(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func getConnectionStatsHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PushServiceServer).GetConnectionStats(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: GetConnectionStatsMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(PushServiceServer).GetConnectionStats(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

// PushServiceClient is the client API for PushService.
type PushServiceClient interface {
	BroadcastNewStory(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*emptypb.Empty, error)
	BroadcastNewComment(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*emptypb.Empty, error)
	NotifyUser(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*wrapperspb.BoolValue, error)
	GetConnectionStats(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error)
}

type pushServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewPushServiceClient returns a client that issues calls over cc.
func NewPushServiceClient(cc grpc.ClientConnInterface) PushServiceClient {
	return &pushServiceClient{cc: cc}
}

func (c *pushServiceClient) BroadcastNewStory(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*emptypb.Empty, error) {
	out := new(emptypb.Empty)
	if err := c.cc.Invoke(ctx, BroadcastNewStoryMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *pushServiceClient) BroadcastNewComment(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*emptypb.Empty, error) {
	out := new(emptypb.Empty)
	if err := c.cc.Invoke(ctx, BroadcastNewCommentMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *pushServiceClient) NotifyUser(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*wrapperspb.BoolValue, error) {
	out := new(wrapperspb.BoolValue)
	if err := c.cc.Invoke(ctx, NotifyUserMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *pushServiceClient) GetConnectionStats(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, GetConnectionStatsMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
