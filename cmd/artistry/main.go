package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"supa-artistry/internal/client/cli"
	"supa-artistry/internal/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)

	err := cli.NewRootCommand().ExecuteContext(ctx)
	logger.Sync()
	stop()

	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
