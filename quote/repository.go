package quote

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"goflare.io/settlement/driver"
	"goflare.io/settlement/models"
	"goflare.io/settlement/models/enum"
)

var _ Repository = (*repository)(nil)

// ErrActiveQuoteExists maps the partial unique index on
// (service_request_id, professional_id) over non-terminal statuses.
var ErrActiveQuoteExists = errors.New("professional already has an active quote for this request")

type Repository interface {
	Create(ctx context.Context, tx pgx.Tx, quote *models.Quote) error
	GetByID(ctx context.Context, tx pgx.Tx, id string) (*models.Quote, error)
	ListByRequest(ctx context.Context, requestID string) ([]*models.Quote, error)

	// Guarded transitions: each returns whether the row was moved. A false
	// return means the source-state guard failed and the caller must re-read
	// the row to report the conflict.
	MarkPendingConfirmation(ctx context.Context, tx pgx.Tx, id string, deadline time.Time) (bool, error)
	MarkConfirmed(ctx context.Context, tx pgx.Tx, id string) (bool, error)
	MarkDeclined(ctx context.Context, tx pgx.Tx, id string) (bool, error)
	MarkExpired(ctx context.Context, tx pgx.Tx, id string, now time.Time) (bool, error)
	RejectSiblings(ctx context.Context, tx pgx.Tx, requestID, winnerID string) (int64, error)

	ListExpired(ctx context.Context, now time.Time, limit int32) ([]*models.Quote, error)
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

const quoteColumns = `id, service_request_id, professional_id, price, description, notes,
        status, confirmation_expires_at, is_revised, original_quote_id, created_at, updated_at`

func scanQuote(row pgx.Row) (*models.Quote, error) {
	var q models.Quote
	err := row.Scan(
		&q.ID,
		&q.ServiceRequestID,
		&q.ProfessionalID,
		&q.Price,
		&q.Description,
		&q.Notes,
		&q.Status,
		&q.ConfirmationExpiresAt,
		&q.IsRevised,
		&q.OriginalQuoteID,
		&q.CreatedAt,
		&q.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &q, nil
}

func (r *repository) Create(ctx context.Context, tx pgx.Tx, quote *models.Quote) error {
	const query = `
    INSERT INTO quotes (id, service_request_id, professional_id, price, description, notes,
        status, is_revised, original_quote_id, created_at, updated_at)
    VALUES (@id, @service_request_id, @professional_id, @price, @description, @notes,
        @status, @is_revised, @original_quote_id, NOW(), NOW())
    `

	args := pgx.NamedArgs{
		"id":                 quote.ID,
		"service_request_id": quote.ServiceRequestID,
		"professional_id":    quote.ProfessionalID,
		"price":              quote.Price,
		"description":        quote.Description,
		"notes":              quote.Notes,
		"status":             quote.Status,
		"is_revised":         quote.IsRevised,
		"original_quote_id":  quote.OriginalQuoteID,
	}

	if _, err := tx.Exec(ctx, query, args); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrActiveQuoteExists
		}
		return fmt.Errorf("failed to insert quote: %w", err)
	}

	return nil
}

func (r *repository) GetByID(ctx context.Context, tx pgx.Tx, id string) (*models.Quote, error) {
	query := `SELECT ` + quoteColumns + ` FROM quotes WHERE id = @id`

	quote, err := scanQuote(tx.QueryRow(ctx, query, pgx.NamedArgs{"id": id}))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrQuoteNotFound
		}
		return nil, fmt.Errorf("failed to get quote: %w", err)
	}

	return quote, nil
}

func (r *repository) ListByRequest(ctx context.Context, requestID string) ([]*models.Quote, error) {
	query := `SELECT ` + quoteColumns + `
    FROM quotes
    WHERE service_request_id = @service_request_id
    ORDER BY created_at`

	rows, err := r.conn.Query(ctx, query, pgx.NamedArgs{"service_request_id": requestID})
	if err != nil {
		return nil, fmt.Errorf("failed to list quotes: %w", err)
	}
	defer rows.Close()

	var quotes []*models.Quote
	for rows.Next() {
		quote, err := scanQuote(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan quote: %w", err)
		}
		quotes = append(quotes, quote)
	}

	return quotes, rows.Err()
}

func (r *repository) MarkPendingConfirmation(ctx context.Context, tx pgx.Tx, id string, deadline time.Time) (bool, error) {
	const query = `
    UPDATE quotes
    SET status = @to, confirmation_expires_at = @deadline, updated_at = NOW()
    WHERE id = @id AND status = @from
    `

	tag, err := tx.Exec(ctx, query, pgx.NamedArgs{
		"id":       id,
		"from":     enum.QuoteStatusPending,
		"to":       enum.QuoteStatusPendingConfirmation,
		"deadline": deadline,
	})
	if err != nil {
		return false, fmt.Errorf("failed to mark quote pending_confirmation: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

func (r *repository) MarkConfirmed(ctx context.Context, tx pgx.Tx, id string) (bool, error) {
	const query = `
    UPDATE quotes
    SET status = @to, updated_at = NOW()
    WHERE id = @id AND status = @from
    `

	tag, err := tx.Exec(ctx, query, pgx.NamedArgs{
		"id":   id,
		"from": enum.QuoteStatusPendingConfirmation,
		"to":   enum.QuoteStatusConfirmed,
	})
	if err != nil {
		return false, fmt.Errorf("failed to mark quote confirmed: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

func (r *repository) MarkDeclined(ctx context.Context, tx pgx.Tx, id string) (bool, error) {
	const query = `
    UPDATE quotes
    SET status = @to, updated_at = NOW()
    WHERE id = @id AND status IN (@pending, @pending_confirmation)
    `

	tag, err := tx.Exec(ctx, query, pgx.NamedArgs{
		"id":                   id,
		"pending":              enum.QuoteStatusPending,
		"pending_confirmation": enum.QuoteStatusPendingConfirmation,
		"to":                   enum.QuoteStatusDeclined,
	})
	if err != nil {
		return false, fmt.Errorf("failed to mark quote declined: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

// MarkExpired only moves the row if it is still pending_confirmation and its
// deadline has truly lapsed, so a late-running sweep can never overwrite a
// quote confirmed by a concurrent payment event.
func (r *repository) MarkExpired(ctx context.Context, tx pgx.Tx, id string, now time.Time) (bool, error) {
	const query = `
    UPDATE quotes
    SET status = @to, updated_at = NOW()
    WHERE id = @id AND status = @from AND confirmation_expires_at <= @now
    `

	tag, err := tx.Exec(ctx, query, pgx.NamedArgs{
		"id":   id,
		"from": enum.QuoteStatusPendingConfirmation,
		"to":   enum.QuoteStatusExpired,
		"now":  now,
	})
	if err != nil {
		return false, fmt.Errorf("failed to mark quote expired: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

func (r *repository) RejectSiblings(ctx context.Context, tx pgx.Tx, requestID, winnerID string) (int64, error) {
	const query = `
    UPDATE quotes
    SET status = @to, updated_at = NOW()
    WHERE service_request_id = @service_request_id
      AND id <> @winner_id
      AND status IN (@pending, @pending_confirmation)
    `

	tag, err := tx.Exec(ctx, query, pgx.NamedArgs{
		"service_request_id":   requestID,
		"winner_id":            winnerID,
		"pending":              enum.QuoteStatusPending,
		"pending_confirmation": enum.QuoteStatusPendingConfirmation,
		"to":                   enum.QuoteStatusNotSelected,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to reject sibling quotes: %w", err)
	}

	return tag.RowsAffected(), nil
}

func (r *repository) ListExpired(ctx context.Context, now time.Time, limit int32) ([]*models.Quote, error) {
	query := `SELECT ` + quoteColumns + `
    FROM quotes
    WHERE status = @status AND confirmation_expires_at <= @now
    ORDER BY confirmation_expires_at
    LIMIT @limit`

	rows, err := r.conn.Query(ctx, query, pgx.NamedArgs{
		"status": enum.QuoteStatusPendingConfirmation,
		"now":    now,
		"limit":  limit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list expired quotes: %w", err)
	}
	defer rows.Close()

	var quotes []*models.Quote
	for rows.Next() {
		quote, err := scanQuote(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan quote: %w", err)
		}
		quotes = append(quotes, quote)
	}

	return quotes, rows.Err()
}
