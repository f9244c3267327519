package referralfee

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"goflare.io/settlement/driver"
	"goflare.io/settlement/models"
	"goflare.io/settlement/models/enum"
)

var _ Repository = (*repository)(nil)

type Repository interface {
	// Create inserts the fee row, doing nothing on a duplicate of the
	// (service_request_id, professional_id) active-row key. The key is a
	// partial unique index over the owed and paid statuses, so terminal rows
	// never block a fresh fee. It reports whether the insert landed; on false
	// the caller re-fetches the winner.
	Create(ctx context.Context, tx pgx.Tx, fee *models.ReferralFee) (bool, error)
	GetByID(ctx context.Context, tx pgx.Tx, id string) (*models.ReferralFee, error)
	// GetActiveByRequestAndProfessional matches only the live row for the
	// pair; expired, declined, canceled and refunded rows are invisible here.
	GetActiveByRequestAndProfessional(ctx context.Context, tx pgx.Tx, requestID, professionalID string) (*models.ReferralFee, error)
	GetByQuoteID(ctx context.Context, tx pgx.Tx, quoteID string) (*models.ReferralFee, error)
	GetBySessionID(ctx context.Context, tx pgx.Tx, sessionID string) (*models.ReferralFee, error)
	GetByPaymentIntent(ctx context.Context, tx pgx.Tx, paymentIntentID string) (*models.ReferralFee, error)

	AttachQuote(ctx context.Context, tx pgx.Tx, id, quoteID string) error
	AttachSession(ctx context.Context, tx pgx.Tx, id, sessionID string) error

	// Guarded transitions, same contract as the quote repository.
	MarkPaid(ctx context.Context, tx pgx.Tx, id, sessionID, paymentIntentID string) (bool, error)
	MarkExpired(ctx context.Context, tx pgx.Tx, id string) (bool, error)
	MarkDeclined(ctx context.Context, tx pgx.Tx, id string) (bool, error)
	MarkCanceled(ctx context.Context, tx pgx.Tx, id string, reason enum.CancellationReason) (bool, error)
	RecordRefund(ctx context.Context, tx pgx.Tx, id, refundID string, reason enum.CancellationReason) (bool, error)

	// RecordCancellationReason annotates the fee without touching its status,
	// used for cancellations that never trigger a refund.
	RecordCancellationReason(ctx context.Context, tx pgx.Tx, id string, reason enum.CancellationReason) error
}

type repository struct {
	conn   driver.PostgresPool
	logger *zap.Logger
}

func NewRepository(conn driver.PostgresPool, logger *zap.Logger) Repository {
	return &repository{
		conn:   conn,
		logger: logger,
	}
}

const feeColumns = `id, service_request_id, professional_id, quote_id, amount, status,
        refundable, cancellation_reason, stripe_session_id, stripe_payment_intent,
        stripe_refund_id, paid_at, created_at, updated_at`

func scanFee(row pgx.Row) (*models.ReferralFee, error) {
	var f models.ReferralFee
	err := row.Scan(
		&f.ID,
		&f.ServiceRequestID,
		&f.ProfessionalID,
		&f.QuoteID,
		&f.Amount,
		&f.Status,
		&f.Refundable,
		&f.CancellationReason,
		&f.StripeSessionID,
		&f.StripePaymentIntent,
		&f.StripeRefundID,
		&f.PaidAt,
		&f.CreatedAt,
		&f.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (r *repository) Create(ctx context.Context, tx pgx.Tx, fee *models.ReferralFee) (bool, error) {
	const query = `
    INSERT INTO referral_fees (id, service_request_id, professional_id, quote_id, amount,
        status, refundable, created_at, updated_at)
    VALUES (@id, @service_request_id, @professional_id, @quote_id, @amount,
        @status, @refundable, NOW(), NOW())
    ON CONFLICT (service_request_id, professional_id) WHERE status IN ('owed', 'paid') DO NOTHING
    `

	tag, err := tx.Exec(ctx, query, pgx.NamedArgs{
		"id":                 fee.ID,
		"service_request_id": fee.ServiceRequestID,
		"professional_id":    fee.ProfessionalID,
		"quote_id":           fee.QuoteID,
		"amount":             fee.Amount,
		"status":             fee.Status,
		"refundable":         fee.Refundable,
	})
	if err != nil {
		return false, fmt.Errorf("failed to insert referral fee: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

func (r *repository) getBy(ctx context.Context, tx pgx.Tx, where string, args pgx.NamedArgs) (*models.ReferralFee, error) {
	query := `SELECT ` + feeColumns + ` FROM referral_fees WHERE ` + where

	fee, err := scanFee(tx.QueryRow(ctx, query, args))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrReferralFeeNotFound
		}
		return nil, fmt.Errorf("failed to get referral fee: %w", err)
	}

	return fee, nil
}

func (r *repository) GetByID(ctx context.Context, tx pgx.Tx, id string) (*models.ReferralFee, error) {
	return r.getBy(ctx, tx, `id = @id`, pgx.NamedArgs{"id": id})
}

func (r *repository) GetActiveByRequestAndProfessional(ctx context.Context, tx pgx.Tx, requestID, professionalID string) (*models.ReferralFee, error) {
	return r.getBy(ctx, tx,
		`service_request_id = @service_request_id AND professional_id = @professional_id
        AND status IN (@owed, @paid)`,
		pgx.NamedArgs{
			"service_request_id": requestID,
			"professional_id":    professionalID,
			"owed":               enum.ReferralFeeStatusOwed,
			"paid":               enum.ReferralFeeStatusPaid,
		})
}

func (r *repository) GetByQuoteID(ctx context.Context, tx pgx.Tx, quoteID string) (*models.ReferralFee, error) {
	return r.getBy(ctx, tx, `quote_id = @quote_id`, pgx.NamedArgs{"quote_id": quoteID})
}

func (r *repository) GetBySessionID(ctx context.Context, tx pgx.Tx, sessionID string) (*models.ReferralFee, error) {
	return r.getBy(ctx, tx, `stripe_session_id = @stripe_session_id`, pgx.NamedArgs{"stripe_session_id": sessionID})
}

func (r *repository) GetByPaymentIntent(ctx context.Context, tx pgx.Tx, paymentIntentID string) (*models.ReferralFee, error) {
	return r.getBy(ctx, tx, `stripe_payment_intent = @stripe_payment_intent`,
		pgx.NamedArgs{"stripe_payment_intent": paymentIntentID})
}

func (r *repository) AttachQuote(ctx context.Context, tx pgx.Tx, id, quoteID string) error {
	const query = `
    UPDATE referral_fees SET quote_id = @quote_id, updated_at = NOW() WHERE id = @id
    `

	if _, err := tx.Exec(ctx, query, pgx.NamedArgs{"id": id, "quote_id": quoteID}); err != nil {
		return fmt.Errorf("failed to attach quote to referral fee: %w", err)
	}

	return nil
}

func (r *repository) AttachSession(ctx context.Context, tx pgx.Tx, id, sessionID string) error {
	const query = `
    UPDATE referral_fees SET stripe_session_id = @stripe_session_id, updated_at = NOW() WHERE id = @id
    `

	if _, err := tx.Exec(ctx, query, pgx.NamedArgs{"id": id, "stripe_session_id": sessionID}); err != nil {
		return fmt.Errorf("failed to attach session to referral fee: %w", err)
	}

	return nil
}

// MarkPaid is guarded on the owed status so replayed payment callbacks cannot
// double-credit: the second call affects zero rows.
func (r *repository) MarkPaid(ctx context.Context, tx pgx.Tx, id, sessionID, paymentIntentID string) (bool, error) {
	const query = `
    UPDATE referral_fees
    SET status = @to, stripe_session_id = @stripe_session_id,
        stripe_payment_intent = @stripe_payment_intent, paid_at = @paid_at, updated_at = NOW()
    WHERE id = @id AND status = @from
    `

	tag, err := tx.Exec(ctx, query, pgx.NamedArgs{
		"id":                    id,
		"from":                  enum.ReferralFeeStatusOwed,
		"to":                    enum.ReferralFeeStatusPaid,
		"stripe_session_id":     sessionID,
		"stripe_payment_intent": paymentIntentID,
		"paid_at":               time.Now(),
	})
	if err != nil {
		return false, fmt.Errorf("failed to mark referral fee paid: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

func (r *repository) MarkExpired(ctx context.Context, tx pgx.Tx, id string) (bool, error) {
	const query = `
    UPDATE referral_fees
    SET status = @to, updated_at = NOW()
    WHERE id = @id AND status = @from
    `

	tag, err := tx.Exec(ctx, query, pgx.NamedArgs{
		"id":   id,
		"from": enum.ReferralFeeStatusOwed,
		"to":   enum.ReferralFeeStatusExpired,
	})
	if err != nil {
		return false, fmt.Errorf("failed to mark referral fee expired: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

func (r *repository) MarkDeclined(ctx context.Context, tx pgx.Tx, id string) (bool, error) {
	const query = `
    UPDATE referral_fees
    SET status = @to, updated_at = NOW()
    WHERE id = @id AND status = @from
    `

	tag, err := tx.Exec(ctx, query, pgx.NamedArgs{
		"id":   id,
		"from": enum.ReferralFeeStatusOwed,
		"to":   enum.ReferralFeeStatusDeclined,
	})
	if err != nil {
		return false, fmt.Errorf("failed to mark referral fee declined: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

func (r *repository) MarkCanceled(ctx context.Context, tx pgx.Tx, id string, reason enum.CancellationReason) (bool, error) {
	const query = `
    UPDATE referral_fees
    SET status = @to, cancellation_reason = @reason, updated_at = NOW()
    WHERE id = @id AND status = @from
    `

	tag, err := tx.Exec(ctx, query, pgx.NamedArgs{
		"id":     id,
		"from":   enum.ReferralFeeStatusOwed,
		"to":     enum.ReferralFeeStatusCanceled,
		"reason": reason,
	})
	if err != nil {
		return false, fmt.Errorf("failed to mark referral fee canceled: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

func (r *repository) RecordCancellationReason(ctx context.Context, tx pgx.Tx, id string, reason enum.CancellationReason) error {
	const query = `
    UPDATE referral_fees SET cancellation_reason = @reason, updated_at = NOW() WHERE id = @id
    `

	if _, err := tx.Exec(ctx, query, pgx.NamedArgs{"id": id, "reason": reason}); err != nil {
		return fmt.Errorf("failed to record cancellation reason: %w", err)
	}

	return nil
}

// RecordRefund lands only after the gateway refund succeeded; a refund is
// never recorded optimistically.
func (r *repository) RecordRefund(ctx context.Context, tx pgx.Tx, id, refundID string, reason enum.CancellationReason) (bool, error) {
	const query = `
    UPDATE referral_fees
    SET status = @to, stripe_refund_id = @stripe_refund_id,
        cancellation_reason = @reason, updated_at = NOW()
    WHERE id = @id AND status = @from AND refundable = TRUE
    `

	tag, err := tx.Exec(ctx, query, pgx.NamedArgs{
		"id":               id,
		"from":             enum.ReferralFeeStatusPaid,
		"to":               enum.ReferralFeeStatusRefunded,
		"stripe_refund_id": refundID,
		"reason":           reason,
	})
	if err != nil {
		return false, fmt.Errorf("failed to record referral fee refund: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}
