// motleycrew-worker-server serves a worker over gRPC (echo worker by default).
// Example: go run ./cmd/motleycrew-worker-server --addr=:50051 --command=python3 --arg=worker.py
// Then point a crew file worker at it with kind: grpc and addr: localhost:50051.
package main

import (
	"context"
	"flag"
	"log"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/iSevenDays/motleycrew/internal/config"
	"github.com/iSevenDays/motleycrew/internal/worker"
	workergrpc "github.com/iSevenDays/motleycrew/internal/worker/grpc"
	grpcgo "google.golang.org/grpc"
)

type argList []string

func (a *argList) String() string     { return strings.Join(*a, " ") }
func (a *argList) Set(v string) error { *a = append(*a, v); return nil }

func main() {
	addr := flag.String("addr", ":50051", "gRPC listen address")
	command := flag.String("command", "", "Run this command per invocation instead of the echo worker")
	timeout := flag.Duration("timeout", 5*time.Minute, "Per-invocation timeout for --command")
	sandboxHome := flag.String("sandbox-home", "", "Run --command under bwrap with this home mounted read-only")
	logLevel := flag.String("log-level", "info", "Log level: debug, info, warn, error")
	var args argList
	flag.Var(&args, "arg", "Argument for --command (repeatable)")
	flag.Parse()

	logger, err := config.NewLogger(*logLevel, "text", os.Stderr)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}

	var w worker.Worker = worker.Echo{}
	if *command != "" {
		w = worker.Subprocess{Command: *command, Args: args, Timeout: *timeout, SandboxHome: *sandboxHome}
	}

	lis, err := net.Listen("tcp", *addr)
	if err != nil {
		log.Fatalf("listen: %v", err)
	}
	srv := grpcgo.NewServer()
	workergrpc.Register(srv, &workergrpc.Server{Worker: w, Logger: logger})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		srv.GracefulStop()
	}()

	log.Printf("worker gRPC server listening on %s", *addr)
	if err := srv.Serve(lis); err != nil {
		log.Fatalf("serve: %v", err)
	}
}
