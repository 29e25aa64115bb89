// compassh manages on-demand SSH tunnels and routes connections through them.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/user/compassh/internal/cli"
	"github.com/user/compassh/internal/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := cli.NewRootCmd(cli.NewApp()).ExecuteContext(ctx)
	stop()
	if err != nil {
		logger.Error("%v", err)
	}
	logger.Close()
	if err != nil {
		os.Exit(1)
	}
}
