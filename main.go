package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/wp-updater/wp-updater/pkg/cmd"
)

// version is set at build time.
var version string

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := cmd.NewRootCmd(version)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Errorf("Error: %v", err)
		stop()
		os.Exit(cmd.ExitCode(err))
	}
}
