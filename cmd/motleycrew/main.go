package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// Version is stamped at release via -ldflags "-X main.Version=<tag>".
var Version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	os.Exit(Run(ctx, os.Args[1:]))
}
