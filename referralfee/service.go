package referralfee

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"goflare.io/settlement/driver"
	"goflare.io/settlement/feecalc"
	"goflare.io/settlement/models"
	"goflare.io/settlement/models/enum"
)

type Service interface {
	// GetOrCreate returns the single active fee row for the quote's
	// (request, professional) pair, creating it lazily. Terminal rows are
	// ignored, so a professional whose earlier fee expired or was retired
	// gets a fresh owed row for a later quote. The amount is always
	// recomputed from the quote price by feecalc, never client supplied.
	GetOrCreate(ctx context.Context, quote *models.Quote) (*models.ReferralFee, error)
	GetByQuoteID(ctx context.Context, quoteID string) (*models.ReferralFee, error)
	GetBySessionID(ctx context.Context, sessionID string) (*models.ReferralFee, error)
	GetByPaymentIntent(ctx context.Context, paymentIntentID string) (*models.ReferralFee, error)
	AttachSession(ctx context.Context, feeID, sessionID string) error
	RecordRefund(ctx context.Context, feeID, refundID string, reason enum.CancellationReason) error
	RecordCancellationReason(ctx context.Context, feeID string, reason enum.CancellationReason) error
}

type service struct {
	repo               Repository
	transactionManager *driver.TransactionManager
	logger             *zap.Logger
}

func NewService(repo Repository, tm *driver.TransactionManager, logger *zap.Logger) Service {
	return &service{
		repo:               repo,
		transactionManager: tm,
		logger:             logger,
	}
}

func (s *service) GetOrCreate(ctx context.Context, quote *models.Quote) (*models.ReferralFee, error) {
	var fee *models.ReferralFee

	if err := s.transactionManager.ExecuteTransaction(ctx, func(tx pgx.Tx) error {
		existing, err := s.repo.GetActiveByRequestAndProfessional(ctx, tx, quote.ServiceRequestID, quote.ProfessionalID)
		if err == nil {
			if existing.QuoteID != quote.ID {
				if err = s.repo.AttachQuote(ctx, tx, existing.ID, quote.ID); err != nil {
					return err
				}
				existing.QuoteID = quote.ID
			}
			fee = existing
			return nil
		}
		if !errors.Is(err, models.ErrReferralFeeNotFound) {
			return err
		}

		candidate := &models.ReferralFee{
			ID:               uuid.NewString(),
			ServiceRequestID: quote.ServiceRequestID,
			ProfessionalID:   quote.ProfessionalID,
			QuoteID:          quote.ID,
			Amount:           feecalc.Calculate(quote.Price),
			Status:           enum.ReferralFeeStatusOwed,
			Refundable:       true,
		}

		inserted, err := s.repo.Create(ctx, tx, candidate)
		if err != nil {
			return err
		}
		if inserted {
			fee = candidate
			return nil
		}

		// A concurrent creator won the unique key; fall back to reading the
		// row it inserted rather than erroring the caller.
		fee, err = s.repo.GetActiveByRequestAndProfessional(ctx, tx, quote.ServiceRequestID, quote.ProfessionalID)
		return err
	}); err != nil {
		return nil, fmt.Errorf("failed to get or create referral fee: %w", err)
	}

	return fee, nil
}

func (s *service) GetByQuoteID(ctx context.Context, quoteID string) (*models.ReferralFee, error) {
	var fee *models.ReferralFee
	if err := s.transactionManager.ExecuteTransaction(ctx, func(tx pgx.Tx) error {
		var err error
		fee, err = s.repo.GetByQuoteID(ctx, tx, quoteID)
		return err
	}); err != nil {
		return nil, err
	}
	return fee, nil
}

func (s *service) GetBySessionID(ctx context.Context, sessionID string) (*models.ReferralFee, error) {
	var fee *models.ReferralFee
	if err := s.transactionManager.ExecuteTransaction(ctx, func(tx pgx.Tx) error {
		var err error
		fee, err = s.repo.GetBySessionID(ctx, tx, sessionID)
		return err
	}); err != nil {
		return nil, err
	}
	return fee, nil
}

func (s *service) GetByPaymentIntent(ctx context.Context, paymentIntentID string) (*models.ReferralFee, error) {
	var fee *models.ReferralFee
	if err := s.transactionManager.ExecuteTransaction(ctx, func(tx pgx.Tx) error {
		var err error
		fee, err = s.repo.GetByPaymentIntent(ctx, tx, paymentIntentID)
		return err
	}); err != nil {
		return nil, err
	}
	return fee, nil
}

func (s *service) RecordCancellationReason(ctx context.Context, feeID string, reason enum.CancellationReason) error {
	return s.transactionManager.ExecuteTransaction(ctx, func(tx pgx.Tx) error {
		return s.repo.RecordCancellationReason(ctx, tx, feeID, reason)
	})
}

func (s *service) AttachSession(ctx context.Context, feeID, sessionID string) error {
	return s.transactionManager.ExecuteTransaction(ctx, func(tx pgx.Tx) error {
		return s.repo.AttachSession(ctx, tx, feeID, sessionID)
	})
}

func (s *service) RecordRefund(ctx context.Context, feeID, refundID string, reason enum.CancellationReason) error {
	return s.transactionManager.ExecuteTransaction(ctx, func(tx pgx.Tx) error {
		applied, err := s.repo.RecordRefund(ctx, tx, feeID, refundID, reason)
		if err != nil {
			return err
		}
		if !applied {
			return models.ErrNotRefundable
		}

		s.logger.Info("referral fee refunded",
			zap.String("fee_id", feeID),
			zap.String("refund_id", refundID),
			zap.String("reason", string(reason)))
		return nil
	})
}
