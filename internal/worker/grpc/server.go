package grpc

import (
	"context"
	"log/slog"

	"github.com/iSevenDays/motleycrew/internal/worker"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// directOutputKey marks a DirectOutput result on the wire.
const directOutputKey = "__direct_output__"

// Server wraps a worker.Worker and exposes it via gRPC.
type Server struct {
	Worker worker.Worker
	Logger *slog.Logger
}

// Invoke runs the wrapped worker on the request struct and returns its output.
func (s *Server) Invoke(ctx context.Context, in *structpb.Struct) (*structpb.Value, error) {
	if s.Worker == nil {
		return nil, status.Error(codes.Internal, "worker not set")
	}
	log := s.Logger
	if log == nil {
		log = slog.Default()
	}
	out, err := s.Worker.Invoke(ctx, in.AsMap())
	if err != nil {
		log.Warn("worker invoke failed", "err", err)
		if ctx.Err() != nil {
			return nil, status.FromContextError(ctx.Err()).Err()
		}
		return nil, status.Error(codes.Unknown, err.Error())
	}
	if v, direct := worker.Unwrap(out); direct {
		out = map[string]any{directOutputKey: v}
	}
	val, err := toValue(out)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode output: %v", err)
	}
	return val, nil
}

var _ WorkerServer = (*Server)(nil)
