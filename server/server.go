package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"goflare.io/settlement/handlers"
)

type Server struct {
	echo        *echo.Echo
	Quote       handlers.QuoteHandler
	Settlement  handlers.SettlementHandler
	Appointment handlers.AppointmentHandler
	Sweep       handlers.SweepHandler
	Webhook     handlers.WebhookHandler
}

func NewServer(
	Quote handlers.QuoteHandler,
	Settlement handlers.SettlementHandler,
	Appointment handlers.AppointmentHandler,
	Sweep handlers.SweepHandler,
	Webhook handlers.WebhookHandler,
) *Server {
	return &Server{
		echo:        echo.New(),
		Quote:       Quote,
		Settlement:  Settlement,
		Appointment: Appointment,
		Sweep:       Sweep,
		Webhook:     Webhook,
	}
}

// Start initializes the server by registering middlewares and routes, and starts listening for connections on the provided address.
// It returns an error if there is an issue starting the server.
func (s *Server) Start(address string) error {
	s.registerMiddlewares()
	s.registerRoutes()
	return s.echo.Start(address)
}

// Run starts the server by calling the Start method in a goroutine. If an error occurs, it
// logs the error and terminates the server. It then listens for an OS interrupt signal or a SIGTERM
// signal to gracefully shut down the server. Once the signal is received, it creates a context with
// a timeout of 5 seconds, cancels the context after the method returns, and returns the result of
// shutting down the server.
func (s *Server) Run(address string) error {

	go func() {
		if err := s.Start(address); err != nil {
			s.echo.Logger.Fatal(err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return s.echo.Shutdown(ctx)
}

func (s *Server) registerMiddlewares() {
	s.echo.Use(middleware.Recover())
}

func (s *Server) registerRoutes() {

	// Quote intake and lifecycle. Mutations require an acting identity;
	// the webhook and sweep endpoints are machine-to-machine.
	s.echo.POST("/quotes", s.Quote.SubmitQuote, handlers.RequireActor)
	s.echo.POST("/quotes/:id/select", s.Quote.SelectQuote, handlers.RequireActor)
	s.echo.POST("/quotes/:id/decline", s.Quote.DeclineQuote, handlers.RequireActor)
	s.echo.POST("/quotes/:id/revision", s.Quote.SubmitRevision, handlers.RequireActor)
	s.echo.GET("/requests/:id/quotes", s.Quote.ListQuotes)

	// Referral-fee settlement.
	s.echo.POST("/quotes/:id/checkout", s.Settlement.CreateCheckout, handlers.RequireActor)
	s.echo.POST("/payments/verify", s.Settlement.VerifyPayment)

	s.echo.POST("/appointments/:id/cancel", s.Appointment.CancelAppointment, handlers.RequireActor)

	s.echo.POST("/internal/sweep", s.Sweep.RunSweep)

	s.echo.POST("/webhook", s.Webhook.HandleStripeWebhook)
}
