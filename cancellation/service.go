package cancellation

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"goflare.io/settlement/appointment"
	"goflare.io/settlement/driver"
	"goflare.io/settlement/models"
	"goflare.io/settlement/models/enum"
	"goflare.io/settlement/notification"
	"goflare.io/settlement/quote"
	"goflare.io/settlement/referralfee"
	"goflare.io/settlement/servicerequest"
)

// Refunder issues a refund at the payment gateway and returns the gateway's
// refund id. An empty id with a nil error means the charge was already
// refunded upstream.
type Refunder interface {
	RefundReferralFee(ctx context.Context, paymentIntentID string, reason enum.CancellationReason) (string, error)
}

type Result struct {
	AppointmentID string `json:"appointment_id"`
	Reason        string `json:"reason"`

	// RefundIssued reports whether a gateway refund went through as part of
	// this cancellation. RefundError carries the gateway failure when the
	// cancellation itself succeeded but the refund needs manual follow-up.
	RefundIssued bool   `json:"refund_issued"`
	RefundID     string `json:"refund_id,omitempty"`
	RefundError  string `json:"refund_error,omitempty"`
}

type Service interface {
	// Cancel tears down the appointment and settles the referral fee
	// according to the cancellation reason. The state change is committed
	// before any gateway call; a refund failure never rolls back the
	// cancellation.
	Cancel(ctx context.Context, appointmentID string, reason enum.CancellationReason) (*Result, error)
}

type service struct {
	appointments       appointment.Repository
	quotes             quote.Repository
	fees               referralfee.Repository
	requests           servicerequest.Repository
	feeService         referralfee.Service
	refunder           Refunder
	transactionManager *driver.TransactionManager
	notifier           notification.Dispatcher
	logger             *zap.Logger
}

func NewService(
	appointments appointment.Repository,
	quotes quote.Repository,
	fees referralfee.Repository,
	requests servicerequest.Repository,
	feeService referralfee.Service,
	refunder Refunder,
	transactionManager *driver.TransactionManager,
	notifier notification.Dispatcher,
	logger *zap.Logger,
) Service {
	return &service{
		appointments:       appointments,
		quotes:             quotes,
		fees:               fees,
		requests:           requests,
		feeService:         feeService,
		refunder:           refunder,
		transactionManager: transactionManager,
		notifier:           notifier,
		logger:             logger,
	}
}

func (s *service) Cancel(ctx context.Context, appointmentID string, reason enum.CancellationReason) (*Result, error) {
	if !reason.Valid() {
		return nil, fmt.Errorf("%w: %s", models.ErrInvalidCancellationReason, reason)
	}

	var (
		canceledQuote *models.Quote
		fee           *models.ReferralFee
	)

	err := s.transactionManager.ExecuteTransaction(ctx, func(tx pgx.Tx) error {
		appt, err := s.appointments.GetByID(ctx, tx, appointmentID)
		if err != nil {
			return err
		}

		applied, err := s.appointments.CancelGuarded(ctx, tx, appt.ID)
		if err != nil {
			return err
		}
		if !applied {
			return fmt.Errorf("%w: status is %s", models.ErrNotCancelable, appt.Status)
		}

		canceledQuote, err = s.quotes.GetByID(ctx, tx, appt.QuoteID)
		if err != nil {
			return err
		}

		fee, err = s.fees.GetByQuoteID(ctx, tx, appt.QuoteID)
		if err != nil {
			if errors.Is(err, models.ErrReferralFeeNotFound) {
				fee = nil
				return nil
			}
			return err
		}

		// The reason is recorded on the fee row regardless of refund
		// eligibility so off-platform settlements stay auditable.
		return s.fees.RecordCancellationReason(ctx, tx, fee.ID, reason)
	})
	if err != nil {
		return nil, err
	}

	result := &Result{
		AppointmentID: appointmentID,
		Reason:        string(reason),
	}

	// The refund runs after the cancellation transaction committed. The
	// gateway call must never sit inside a database transaction, and a
	// gateway failure leaves the fee paid for manual reconciliation.
	if fee != nil && reason.RefundEligible() && fee.Status == enum.ReferralFeeStatusPaid && fee.Refundable {
		s.issueRefund(ctx, fee, reason, result)
	}

	s.notifyCanceled(ctx, canceledQuote, reason, result)

	return result, nil
}

func (s *service) issueRefund(ctx context.Context, fee *models.ReferralFee, reason enum.CancellationReason, result *Result) {
	if fee.StripePaymentIntent == nil {
		s.logger.Warn("paid fee has no payment intent, skipping refund",
			zap.String("fee_id", fee.ID))
		result.RefundError = "no payment intent recorded for fee"
		return
	}

	refundID, err := s.refunder.RefundReferralFee(ctx, *fee.StripePaymentIntent, reason)
	if err != nil {
		s.logger.Error("gateway refund failed, fee left paid for reconciliation",
			zap.String("fee_id", fee.ID),
			zap.String("reason", string(reason)),
			zap.Error(err))
		result.RefundError = err.Error()
		return
	}
	if refundID == "" {
		// Already refunded at the gateway; the webhook reconciler will
		// bring the ledger in line.
		result.RefundIssued = true
		return
	}

	if err = s.feeService.RecordRefund(ctx, fee.ID, refundID, reason); err != nil {
		s.logger.Error("refund issued but ledger update failed",
			zap.String("fee_id", fee.ID),
			zap.String("refund_id", refundID),
			zap.Error(err))
		result.RefundError = err.Error()
		return
	}

	result.RefundIssued = true
	result.RefundID = refundID
}

func (s *service) notifyCanceled(ctx context.Context, q *models.Quote, reason enum.CancellationReason, result *Result) {
	if q == nil {
		return
	}

	data := map[string]string{
		"quote_id": q.ID,
		"reason":   string(reason),
	}

	s.notifier.Send(q.ProfessionalID, notification.TemplateAppointmentCanceled, data)

	request, err := s.requests.GetByID(ctx, q.ServiceRequestID)
	if err != nil {
		s.logger.Warn("could not resolve customer for cancellation notice",
			zap.String("service_request_id", q.ServiceRequestID),
			zap.Error(err))
	} else {
		s.notifier.Send(request.CustomerID, notification.TemplateAppointmentCanceled, data)
	}

	if result.RefundIssued {
		s.notifier.Send(q.ProfessionalID, notification.TemplateRefundIssued, map[string]string{
			"quote_id":  q.ID,
			"refund_id": result.RefundID,
		})
	}
}
