//go:build wireinject
// +build wireinject

package main

import (
	"github.com/google/wire"
	"goflare.io/settlement/handlers"
	"goflare.io/settlement/server"

	"goflare.io/settlement"
	"goflare.io/settlement/appointment"
	"goflare.io/settlement/cancellation"
	"goflare.io/settlement/config"
	"goflare.io/settlement/driver"
	"goflare.io/settlement/event"
	"goflare.io/settlement/lifecycle"
	"goflare.io/settlement/notification"
	"goflare.io/settlement/quote"
	"goflare.io/settlement/referralfee"
	"goflare.io/settlement/servicerequest"
)

func InitializeSettlementService() (*application, error) {

	wire.Build(
		config.ProvideApplicationConfig,
		config.NewLogger,
		config.ProvidePostgresConn,
		config.ProvideRedis,
		config.ProvideNATSConn,
		driver.NewTransactionManager,
		quote.NewRepository,
		quote.NewService,
		referralfee.NewRepository,
		referralfee.NewService,
		appointment.NewRepository,
		servicerequest.NewRepository,
		event.NewRepository,
		event.NewService,
		notification.NewDispatcher,
		notification.NewSender,
		lifecycle.NewService,
		settlement.NewStripeSettlement,
		cancellation.NewService,
		provideSweeper,
		provideRefunder,
		handlers.NewQuoteHandler,
		handlers.NewSettlementHandler,
		handlers.NewAppointmentHandler,
		handlers.NewSweepHandler,
		handlers.NewWebhookHandler,
		server.NewServer,
		newApplication,
	)

	return &application{}, nil
}
