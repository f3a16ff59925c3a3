package grpc

import (
	"context"
	"fmt"
	"sync"

	"github.com/iSevenDays/motleycrew/internal/worker"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client is a worker.Worker that calls a remote motleycrew.v1.Worker server.
type Client struct {
	// Addr is the gRPC server address (e.g. "localhost:50051").
	Addr string
	// DialOptions are used when connecting (e.g. TLS, interceptors).
	DialOptions []grpc.DialOption

	mu   sync.Mutex
	conn *grpc.ClientConn
}

func (c *Client) dial() (*grpc.ClientConn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return c.conn, nil
	}
	opts := c.DialOptions
	if len(opts) == 0 {
		opts = []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	}
	conn, err := grpc.NewClient(c.Addr, opts...)
	if err != nil {
		return nil, err
	}
	c.conn = conn
	return conn, nil
}

// Invoke sends input to the remote worker and returns its output.
func (c *Client) Invoke(ctx context.Context, input map[string]any) (any, error) {
	req, err := toStruct(input)
	if err != nil {
		return nil, fmt.Errorf("grpc worker %s: encode input: %w", c.Addr, err)
	}
	conn, err := c.dial()
	if err != nil {
		return nil, err
	}
	resp := new(structpb.Value)
	if err := conn.Invoke(ctx, invokeMethod, req, resp); err != nil {
		return nil, err
	}
	out := resp.AsInterface()
	if m, ok := out.(map[string]any); ok && len(m) == 1 {
		if v, ok := m[directOutputKey]; ok {
			return worker.DirectOutput{Value: v}, nil
		}
	}
	return out, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

var _ worker.Worker = (*Client)(nil)
