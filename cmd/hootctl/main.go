package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrijs2005/hoot/internal/ctl"
	"github.com/dmitrijs2005/hoot/internal/server"
	"github.com/dmitrijs2005/hoot/internal/server/config"
)

func open(ctx context.Context, configPath string) (ctl.Backend, error) {
	var args []string
	if configPath != "" {
		args = []string{"-c", configPath}
	}

	cfg, err := config.LoadConfig(args)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	// keep stdout for command output
	app, err := server.NewApp(ctx, cfg, os.Stderr)
	if err != nil {
		return nil, err
	}
	return app, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	r := ctl.NewRunner(open, os.Stdout)
	if err := r.Command().Run(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "hootctl: %v\n", err)
		stop()
		os.Exit(1)
	}
}
