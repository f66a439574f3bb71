// Command sumav is the CLI entrypoint: build, run, migrate, serve.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sumav/sumav/pkg/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cli.Execute(ctx); err != nil {
		os.Exit(1)
	}
}
