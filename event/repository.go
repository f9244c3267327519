package event

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"goflare.io/settlement/driver"
	"goflare.io/settlement/models"
)

var _ Repository = (*repository)(nil)

type Repository interface {
	Create(ctx context.Context, event *models.Event) error
	// GetByID returns nil without error for an event never seen before.
	GetByID(ctx context.Context, id string) (*models.Event, error)
	MarkAsProcessed(ctx context.Context, id string) error
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

func (r *repository) Create(ctx context.Context, event *models.Event) error {
	const query = `
    INSERT INTO events (id, type, processed, created_at, updated_at)
    VALUES (@id, @type, @processed, NOW(), NOW())
    ON CONFLICT (id) DO NOTHING
    `

	if _, err := r.conn.Exec(ctx, query, pgx.NamedArgs{
		"id":        event.ID,
		"type":      event.Type,
		"processed": event.Processed,
	}); err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}

	return nil
}

func (r *repository) GetByID(ctx context.Context, id string) (*models.Event, error) {
	const query = `
    SELECT id, type, processed, created_at, updated_at FROM events WHERE id = @id
    `

	var event models.Event
	err := r.conn.QueryRow(ctx, query, pgx.NamedArgs{"id": id}).Scan(
		&event.ID,
		&event.Type,
		&event.Processed,
		&event.CreatedAt,
		&event.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get event: %w", err)
	}

	return &event, nil
}

func (r *repository) MarkAsProcessed(ctx context.Context, id string) error {
	const query = `
    UPDATE events SET processed = TRUE, updated_at = NOW() WHERE id = @id
    `

	if _, err := r.conn.Exec(ctx, query, pgx.NamedArgs{"id": id}); err != nil {
		return fmt.Errorf("failed to mark event as processed: %w", err)
	}

	return nil
}
