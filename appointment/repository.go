package appointment

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"goflare.io/settlement/driver"
	"goflare.io/settlement/models"
	"goflare.io/settlement/models/enum"
)

var _ Repository = (*repository)(nil)

// Repository pushes status into the appointment store owned by the scheduling
// collaborator. Status is pushed, never pulled, from the settlement engine.
type Repository interface {
	GetByID(ctx context.Context, tx pgx.Tx, id string) (*models.Appointment, error)
	GetByQuoteID(ctx context.Context, tx pgx.Tx, quoteID string) (*models.Appointment, error)
	Create(ctx context.Context, tx pgx.Tx, appointment *models.Appointment) error
	SetStatus(ctx context.Context, tx pgx.Tx, id string, status enum.AppointmentStatus) error
	// CancelGuarded cancels only if the row is still cancelable, atomically
	// with that validation.
	CancelGuarded(ctx context.Context, tx pgx.Tx, id string) (bool, error)
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

func scanAppointment(row pgx.Row) (*models.Appointment, error) {
	var a models.Appointment
	if err := row.Scan(&a.ID, &a.QuoteID, &a.Status, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *repository) GetByID(ctx context.Context, tx pgx.Tx, id string) (*models.Appointment, error) {
	const query = `
    SELECT id, quote_id, status, created_at, updated_at FROM appointments WHERE id = @id
    `

	appointment, err := scanAppointment(tx.QueryRow(ctx, query, pgx.NamedArgs{"id": id}))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrAppointmentNotFound
		}
		return nil, fmt.Errorf("failed to get appointment: %w", err)
	}

	return appointment, nil
}

func (r *repository) GetByQuoteID(ctx context.Context, tx pgx.Tx, quoteID string) (*models.Appointment, error) {
	const query = `
    SELECT id, quote_id, status, created_at, updated_at FROM appointments WHERE quote_id = @quote_id
    `

	appointment, err := scanAppointment(tx.QueryRow(ctx, query, pgx.NamedArgs{"quote_id": quoteID}))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrAppointmentNotFound
		}
		return nil, fmt.Errorf("failed to get appointment by quote: %w", err)
	}

	return appointment, nil
}

func (r *repository) Create(ctx context.Context, tx pgx.Tx, appointment *models.Appointment) error {
	const query = `
    INSERT INTO appointments (id, quote_id, status, created_at, updated_at)
    VALUES (@id, @quote_id, @status, NOW(), NOW())
    ON CONFLICT (quote_id) DO NOTHING
    `

	if _, err := tx.Exec(ctx, query, pgx.NamedArgs{
		"id":       appointment.ID,
		"quote_id": appointment.QuoteID,
		"status":   appointment.Status,
	}); err != nil {
		return fmt.Errorf("failed to insert appointment: %w", err)
	}

	return nil
}

func (r *repository) SetStatus(ctx context.Context, tx pgx.Tx, id string, status enum.AppointmentStatus) error {
	const query = `
    UPDATE appointments SET status = @status, updated_at = NOW() WHERE id = @id
    `

	if _, err := tx.Exec(ctx, query, pgx.NamedArgs{"id": id, "status": status}); err != nil {
		return fmt.Errorf("failed to set appointment status: %w", err)
	}

	return nil
}

func (r *repository) CancelGuarded(ctx context.Context, tx pgx.Tx, id string) (bool, error) {
	const query = `
    UPDATE appointments
    SET status = @to, updated_at = NOW()
    WHERE id = @id AND status IN (@scheduled, @confirmed)
    `

	tag, err := tx.Exec(ctx, query, pgx.NamedArgs{
		"id":        id,
		"to":        enum.AppointmentStatusCanceled,
		"scheduled": enum.AppointmentStatusScheduled,
		"confirmed": enum.AppointmentStatusConfirmed,
	})
	if err != nil {
		return false, fmt.Errorf("failed to cancel appointment: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}
