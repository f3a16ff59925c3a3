package grpc

import (
	"context"
	"errors"
	"net"
	"strings"
	"testing"

	"github.com/iSevenDays/motleycrew/internal/worker"
	"go.uber.org/goleak"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestServer_nilWorker_returnsError(t *testing.T) {
	srv := &Server{}
	if _, err := srv.Invoke(context.Background(), &structpb.Struct{}); err == nil {
		t.Fatal("expected error when worker is nil")
	}
}

func TestServer_echoWorker(t *testing.T) {
	srv := &Server{Worker: worker.Echo{}}
	in, _ := structpb.NewStruct(map[string]any{"name": "a"})
	v, err := srv.Invoke(context.Background(), in)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if got := v.GetStructValue().GetFields()["name"].GetStringValue(); got != "a" {
		t.Errorf("output: %v", v)
	}
}

func TestClient_unencodableInput(t *testing.T) {
	c := &Client{Addr: "localhost:1"}
	_, err := c.Invoke(context.Background(), map[string]any{"ch": make(chan int)})
	if err == nil || !strings.Contains(err.Error(), "grpc worker localhost:1: encode input") {
		t.Fatalf("err = %v", err)
	}
	if errors.Is(err, worker.ErrInvalidToolInput) {
		t.Error("worker input error reported as a tool input error")
	}
	if c.conn != nil {
		t.Error("dialed before the input was encoded")
	}
}

func startServer(t *testing.T, w worker.Worker) *Client {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	s := grpc.NewServer()
	Register(s, &Server{Worker: w})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.Serve(lis)
	}()
	c := &Client{
		Addr: "passthrough:///bufnet",
		DialOptions: []grpc.DialOption{
			grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
			grpc.WithTransportCredentials(insecure.NewCredentials()),
		},
	}
	t.Cleanup(func() {
		_ = c.Close()
		s.Stop()
		<-done
	})
	return c
}

func TestClient_roundTrip(t *testing.T) {
	c := startServer(t, worker.Echo{})
	out, err := c.Invoke(context.Background(), map[string]any{
		"name":     "b",
		"upstream": map[string]any{"a": []string{"x", "y"}},
	})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	m, ok := out.(map[string]any)
	if !ok || m["name"] != "b" {
		t.Fatalf("output: %#v", out)
	}
	up := m["upstream"].(map[string]any)["a"].([]any)
	if len(up) != 2 || up[1] != "y" {
		t.Errorf("upstream: %#v", up)
	}
}

func TestClient_directOutputAndError(t *testing.T) {
	boom := errors.New("boom")
	c := startServer(t, worker.Func(func(ctx context.Context, input map[string]any) (any, error) {
		if input["fail"] == true {
			return nil, boom
		}
		return worker.DirectOutput{Value: "tool result"}, nil
	}))
	out, err := c.Invoke(context.Background(), map[string]any{})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if v, direct := worker.Unwrap(out); !direct || v != "tool result" {
		t.Errorf("expected direct output, got %#v", out)
	}
	if _, err := c.Invoke(context.Background(), map[string]any{"fail": true}); err == nil {
		t.Fatal("expected remote error")
	}
}
