package settlement

import (
	"context"

	"github.com/stripe/stripe-go/v79"
	"go.uber.org/zap"
)

type Worker struct {
	ID         int
	WorkerPool chan chan WorkRequest
	JobChannel chan WorkRequest
	quit       chan bool
	settlement *StripeSettlement
}

type WorkRequest struct {
	Event *stripe.Event
	Ctx   context.Context
}

func NewWorker(id int, workerPool chan chan WorkRequest, settlement *StripeSettlement) Worker {
	return Worker{
		ID:         id,
		WorkerPool: workerPool,
		JobChannel: make(chan WorkRequest),
		quit:       make(chan bool),
		settlement: settlement,
	}
}

func (w Worker) Start() {
	go func() {
		for {
			w.WorkerPool <- w.JobChannel

			select {
			case job := <-w.JobChannel:
				w.settlement.logger.Info("processing event",
					zap.String("event_type", string(job.Event.Type)),
					zap.String("event_id", job.Event.ID))

				err := w.settlement.ProcessEvent(job.Ctx, job.Event)

				if err != nil {
					w.settlement.logger.Error("event processing failed",
						zap.Error(err),
						zap.String("event_type", string(job.Event.Type)),
						zap.String("event_id", job.Event.ID))
				} else {
					w.settlement.logger.Info("event processed",
						zap.String("event_type", string(job.Event.Type)),
						zap.String("event_id", job.Event.ID))
				}

			case <-w.quit:
				return
			}
		}
	}()
}

func (w Worker) Stop() {
	close(w.quit)
}
