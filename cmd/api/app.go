package main

import (
	"context"

	"goflare.io/settlement"
	"goflare.io/settlement/cancellation"
	"goflare.io/settlement/config"
	"goflare.io/settlement/lifecycle"
	"goflare.io/settlement/notification"
	"goflare.io/settlement/quote"
	"goflare.io/settlement/server"
	"goflare.io/settlement/sweep"

	"go.uber.org/zap"
)

type application struct {
	server     *server.Server
	sweeper    *sweep.Sweeper
	sender     *notification.Sender
	settlement settlement.Settlement
	logger     *zap.Logger
}

func newApplication(
	srv *server.Server,
	sweeper *sweep.Sweeper,
	sender *notification.Sender,
	stl settlement.Settlement,
	logger *zap.Logger,
) *application {
	return &application{
		server:     srv,
		sweeper:    sweeper,
		sender:     sender,
		settlement: stl,
		logger:     logger,
	}
}

// run starts the background sweep and the notification sender, then blocks
// in the HTTP server until shutdown.
func (a *application) run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a.sweeper.Start(ctx)

	if err := a.sender.Start(); err != nil {
		return err
	}
	defer a.sender.Stop()
	defer a.settlement.Close()

	return a.server.Run(config.ServerStartPort)
}

func provideSweeper(
	cfg *config.Config,
	quotes quote.Repository,
	lc lifecycle.Service,
	logger *zap.Logger,
) *sweep.Sweeper {
	return sweep.NewSweeper(quotes, lc, cfg.Sweep.Interval, cfg.Sweep.Timeout, logger)
}

func provideRefunder(stl settlement.Settlement) cancellation.Refunder {
	return stl
}
