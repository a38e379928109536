package node

import (
	"context"

	"google.golang.org/grpc"

	"causalkv/internal/wire"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "causalkv.Replica"

// ReplicaServer is the server API for the causalkv.Replica service.
// Every method exchanges wire Frames.
type ReplicaServer interface {
	Put(context.Context, *wire.Frame) (*wire.Frame, error)
	Get(context.Context, *wire.Frame) (*wire.Frame, error)
	Delete(context.Context, *wire.Frame) (*wire.Frame, error)
	Sync(context.Context, *wire.Frame) (*wire.Frame, error)
}

func unaryHandler(method string, call func(ReplicaServer, context.Context, *wire.Frame) (*wire.Frame, error)) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(wire.Frame)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(ReplicaServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: "/" + ServiceName + "/" + method,
		}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(ReplicaServer), ctx, req.(*wire.Frame))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// ServiceDesc describes the causalkv.Replica service.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ReplicaServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Put", Handler: unaryHandler("Put", ReplicaServer.Put)},
		{MethodName: "Get", Handler: unaryHandler("Get", ReplicaServer.Get)},
		{MethodName: "Delete", Handler: unaryHandler("Delete", ReplicaServer.Delete)},
		{MethodName: "Sync", Handler: unaryHandler("Sync", ReplicaServer.Sync)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "causalkv",
}

// RegisterReplicaServer registers srv with s.
func RegisterReplicaServer(s grpc.ServiceRegistrar, srv ReplicaServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// NewServer returns a gRPC server that speaks the wire codec.
func NewServer(opts ...grpc.ServerOption) *grpc.Server {
	opts = append([]grpc.ServerOption{grpc.ForceServerCodec(wire.Codec{})}, opts...)
	return grpc.NewServer(opts...)
}
