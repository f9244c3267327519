// Package lifecycle orchestrates the quote state machine across the quote
// store, the referral-fee ledger and the appointment record. Every transition
// is a guarded update keyed on the expected source status; the guards, not
// application locks, serialize the user-triggered paths against the sweep.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
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

type Service interface {
	// Select moves a pending quote to pending_confirmation and starts the
	// confirmation timer sized by the request's urgency.
	Select(ctx context.Context, quoteID, actorID string) (*SelectResult, error)

	// Decline retires a pending or pending_confirmation quote.
	Decline(ctx context.Context, quoteID, declinedBy string) error

	// Confirm applies the verified-payment cascade in one transaction:
	// fee paid, quote confirmed, siblings rejected, appointment confirmed.
	// Replays of an already-confirmed session are reported, not re-applied.
	Confirm(ctx context.Context, sessionID, paymentIntentID string) (*ConfirmResult, error)

	// Expire force-expires one quote whose confirmation deadline lapsed,
	// together with its owed fee. It reports false when the guard lost to a
	// concurrent confirmation or an earlier sweep pass.
	Expire(ctx context.Context, quoteID string, now time.Time) (bool, error)
}

type SelectResult struct {
	Deadline     time.Time `json:"deadline"`
	TimerMinutes int       `json:"timer_minutes"`
}

type ConfirmResult struct {
	QuoteID          string `json:"quote_id"`
	AlreadyConfirmed bool   `json:"already_confirmed"`
	SiblingsRejected int64  `json:"siblings_rejected"`
}

type service struct {
	quotes             quote.Repository
	fees               referralfee.Repository
	appointments       appointment.Repository
	requests           servicerequest.Repository
	transactionManager *driver.TransactionManager
	notifier           notification.Dispatcher
	logger             *zap.Logger
}

func NewService(
	quotes quote.Repository,
	fees referralfee.Repository,
	appointments appointment.Repository,
	requests servicerequest.Repository,
	tm *driver.TransactionManager,
	notifier notification.Dispatcher,
	logger *zap.Logger,
) Service {
	return &service{
		quotes:             quotes,
		fees:               fees,
		appointments:       appointments,
		requests:           requests,
		transactionManager: tm,
		notifier:           notifier,
		logger:             logger,
	}
}

func (s *service) Select(ctx context.Context, quoteID, actorID string) (*SelectResult, error) {
	var (
		result       SelectResult
		professional string
	)

	if err := s.transactionManager.ExecuteTransaction(ctx, func(tx pgx.Tx) error {
		q, err := s.quotes.GetByID(ctx, tx, quoteID)
		if err != nil {
			return err
		}

		request, err := s.requests.GetByID(ctx, q.ServiceRequestID)
		if err != nil {
			return err
		}

		deadline := time.Now().Add(request.Urgency.ConfirmationWindow())

		applied, err := s.quotes.MarkPendingConfirmation(ctx, tx, quoteID, deadline)
		if err != nil {
			return err
		}
		if !applied {
			return fmt.Errorf("%w: quote is %s", models.ErrAlreadyDecided, q.Status)
		}

		professional = q.ProfessionalID
		result = SelectResult{
			Deadline:     deadline,
			TimerMinutes: request.Urgency.ConfirmationTimerMinutes(),
		}
		return nil
	}); err != nil {
		return nil, err
	}

	s.logger.Info("quote selected",
		zap.String("quote_id", quoteID),
		zap.String("actor_id", actorID),
		zap.Time("deadline", result.Deadline))

	s.notifier.Send(professional, notification.TemplateQuoteSelected, map[string]string{
		"quote_id":      quoteID,
		"deadline":      result.Deadline.Format(time.RFC3339),
		"timer_minutes": fmt.Sprintf("%d", result.TimerMinutes),
	})

	return &result, nil
}

func (s *service) Decline(ctx context.Context, quoteID, declinedBy string) error {
	if err := s.transactionManager.ExecuteTransaction(ctx, func(tx pgx.Tx) error {
		applied, err := s.quotes.MarkDeclined(ctx, tx, quoteID)
		if err != nil {
			return err
		}
		if !applied {
			q, err := s.quotes.GetByID(ctx, tx, quoteID)
			if err != nil {
				return err
			}
			return fmt.Errorf("%w: quote is %s", models.ErrAlreadyDecided, q.Status)
		}

		// Retire the unpaid fee along with the quote; a missing fee row just
		// means payment was never initiated.
		fee, err := s.fees.GetByQuoteID(ctx, tx, quoteID)
		if err != nil {
			if errors.Is(err, models.ErrReferralFeeNotFound) {
				return nil
			}
			return err
		}
		_, err = s.fees.MarkDeclined(ctx, tx, fee.ID)
		return err
	}); err != nil {
		return err
	}

	s.logger.Info("quote declined",
		zap.String("quote_id", quoteID),
		zap.String("declined_by", declinedBy))

	return nil
}

func (s *service) Confirm(ctx context.Context, sessionID, paymentIntentID string) (*ConfirmResult, error) {
	var result ConfirmResult

	if err := s.transactionManager.ExecuteTransaction(ctx, func(tx pgx.Tx) error {
		fee, err := s.fees.GetBySessionID(ctx, tx, sessionID)
		if err != nil {
			return err
		}

		paid, err := s.fees.MarkPaid(ctx, tx, fee.ID, sessionID, paymentIntentID)
		if err != nil {
			return err
		}
		if !paid {
			if fee.Status == enum.ReferralFeeStatusPaid {
				// Replayed callback: the cascade already ran, report without
				// crediting again.
				result = ConfirmResult{QuoteID: fee.QuoteID, AlreadyConfirmed: true}
				return nil
			}
			return fmt.Errorf("%w: fee is %s", models.ErrAlreadyPaid, fee.Status)
		}

		q, err := s.quotes.GetByID(ctx, tx, fee.QuoteID)
		if err != nil {
			return err
		}

		confirmed, err := s.quotes.MarkConfirmed(ctx, tx, fee.QuoteID)
		if err != nil {
			return err
		}
		if !confirmed {
			// The quote left pending_confirmation before payment landed
			// (expired or declined). Rolling back keeps the fee unpaid so the
			// money can be reconciled instead of silently kept.
			return fmt.Errorf("%w: quote is %s", models.ErrAlreadyDecided, q.Status)
		}

		rejected, err := s.quotes.RejectSiblings(ctx, tx, q.ServiceRequestID, q.ID)
		if err != nil {
			return err
		}

		if err = s.confirmAppointment(ctx, tx, q.ID); err != nil {
			return err
		}

		result = ConfirmResult{QuoteID: q.ID, SiblingsRejected: rejected}
		return nil
	}); err != nil {
		return nil, err
	}

	if !result.AlreadyConfirmed {
		s.logger.Info("quote confirmed",
			zap.String("quote_id", result.QuoteID),
			zap.String("session_id", sessionID),
			zap.Int64("siblings_rejected", result.SiblingsRejected))

		s.notifyQuoteParties(ctx, result.QuoteID, notification.TemplateQuoteConfirmed)
	}

	return &result, nil
}

func (s *service) confirmAppointment(ctx context.Context, tx pgx.Tx, quoteID string) error {
	existing, err := s.appointments.GetByQuoteID(ctx, tx, quoteID)
	if err != nil {
		if !errors.Is(err, models.ErrAppointmentNotFound) {
			return err
		}
		return s.appointments.Create(ctx, tx, &models.Appointment{
			ID:      uuid.NewString(),
			QuoteID: quoteID,
			Status:  enum.AppointmentStatusConfirmed,
		})
	}

	return s.appointments.SetStatus(ctx, tx, existing.ID, enum.AppointmentStatusConfirmed)
}

func (s *service) Expire(ctx context.Context, quoteID string, now time.Time) (bool, error) {
	var expired bool

	if err := s.transactionManager.ExecuteTransaction(ctx, func(tx pgx.Tx) error {
		applied, err := s.quotes.MarkExpired(ctx, tx, quoteID, now)
		if err != nil {
			return err
		}
		if !applied {
			// Lost to a concurrent payment confirmation or already swept.
			return nil
		}

		fee, err := s.fees.GetByQuoteID(ctx, tx, quoteID)
		if err != nil {
			if errors.Is(err, models.ErrReferralFeeNotFound) {
				expired = true
				return nil
			}
			return err
		}
		if _, err = s.fees.MarkExpired(ctx, tx, fee.ID); err != nil {
			return err
		}

		expired = true
		return nil
	}); err != nil {
		return false, err
	}

	if expired {
		s.logger.Info("quote expired", zap.String("quote_id", quoteID))
		s.notifyQuoteParties(ctx, quoteID, notification.TemplateQuoteExpired)
	}

	return expired, nil
}

// notifyQuoteParties looks up the requesting customer and fires a best-effort
// notification. Failures here are logged inside the dispatcher and never
// bubble back into the transition that triggered them.
func (s *service) notifyQuoteParties(ctx context.Context, quoteID, template string) {
	var q *models.Quote
	if err := s.transactionManager.ExecuteTransaction(ctx, func(tx pgx.Tx) error {
		var err error
		q, err = s.quotes.GetByID(ctx, tx, quoteID)
		return err
	}); err != nil {
		s.logger.Warn("failed to load quote for notification", zap.Error(err), zap.String("quote_id", quoteID))
		return
	}

	request, err := s.requests.GetByID(ctx, q.ServiceRequestID)
	if err != nil {
		s.logger.Warn("failed to load service request for notification", zap.Error(err), zap.String("quote_id", quoteID))
		return
	}

	s.notifier.Send(request.CustomerID, template, map[string]string{"quote_id": quoteID})
}
