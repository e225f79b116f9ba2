// Package main is the entry point for the fluentsql CLI.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/satishbabariya/fluentsql/cmd/fluentsql/commands"
	"github.com/satishbabariya/fluentsql/internal/ui"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := commands.NewRootCommand().ExecuteContext(ctx); err != nil {
		ui.New().Error("%v", err)
		stop()
		os.Exit(1)
	}
}
