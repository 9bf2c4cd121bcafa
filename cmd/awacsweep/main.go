package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"awacsweep/internal/cli"
)

// main wires process signals into the sweep context; SIGINT or SIGTERM
// terminates the running training process group and skips the rest.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := cli.Run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
