// Package notification provides fire-and-forget email dispatch. Sends are
// published to NATS and consumed by a best-effort sender; a failed send is
// logged and never retried synchronously, so it is structurally incapable of
// affecting the state machine that requested it.
package notification

import (
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

const sendSubject = "notification.send"

// Template names understood by the marketplace mailer.
const (
	TemplateQuoteSelected       = "quote_selected"
	TemplateQuoteConfirmed      = "quote_confirmed"
	TemplateQuoteExpired        = "quote_expired"
	TemplateAppointmentCanceled = "appointment_canceled"
	TemplateRefundIssued        = "refund_issued"
)

type Message struct {
	Recipient string            `json:"recipient"`
	Template  string            `json:"template"`
	Data      map[string]string `json:"data,omitempty"`
	QueuedAt  time.Time         `json:"queued_at"`
}

// Dispatcher queues notification sends. Implementations never block on, and
// never report, delivery outcome to the caller.
type Dispatcher interface {
	Send(recipient, template string, data map[string]string)
}

type natsDispatcher struct {
	natsConn *nats.Conn
	logger   *zap.Logger
}

func NewDispatcher(natsConn *nats.Conn, logger *zap.Logger) Dispatcher {
	return &natsDispatcher{
		natsConn: natsConn,
		logger:   logger,
	}
}

func (d *natsDispatcher) Send(recipient, template string, data map[string]string) {
	msg := Message{
		Recipient: recipient,
		Template:  template,
		Data:      data,
		QueuedAt:  time.Now(),
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		d.logger.Error("failed to marshal notification", zap.Error(err), zap.String("template", template))
		return
	}

	if err = d.natsConn.Publish(sendSubject, payload); err != nil {
		d.logger.Error("failed to queue notification",
			zap.Error(err),
			zap.String("template", template),
			zap.String("recipient", recipient))
	}
}
