// Package grpc exposes a worker.Worker over gRPC and provides a worker.Worker client for
// remote workers. Messages are protobuf well-known types: the task input travels as a
// google.protobuf.Struct and the output as a google.protobuf.Value.
package grpc

import (
	"context"
	"encoding/json"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	serviceName  = "motleycrew.v1.Worker"
	invokeMethod = "/" + serviceName + "/Invoke"
)

// WorkerServer is the server API of the motleycrew.v1.Worker service.
type WorkerServer interface {
	Invoke(ctx context.Context, in *structpb.Struct) (*structpb.Value, error)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*WorkerServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Invoke", Handler: invokeHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "motleycrew/v1/worker.proto",
}

// Register registers srv on s.
func Register(s grpc.ServiceRegistrar, srv WorkerServer) {
	s.RegisterService(&serviceDesc, srv)
}

func invokeHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(WorkerServer).Invoke(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: invokeMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(WorkerServer).Invoke(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// toStruct normalizes arbitrary task input through JSON so nested upstream outputs of
// any Go type become Struct-compatible values.
func toStruct(input map[string]any) (*structpb.Struct, error) {
	if input == nil {
		return &structpb.Struct{}, nil
	}
	b, err := json.Marshal(input)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return structpb.NewStruct(m)
}

func toValue(out any) (*structpb.Value, error) {
	if out == nil {
		return structpb.NewNullValue(), nil
	}
	b, err := json.Marshal(out)
	if err != nil {
		return nil, err
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, err
	}
	return structpb.NewValue(v)
}
