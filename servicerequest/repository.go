package servicerequest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"goflare.io/settlement/driver"
	"goflare.io/settlement/models"
)

var _ Repository = (*repository)(nil)

const cacheTTL = 10 * time.Minute

type Repository interface {
	GetByID(ctx context.Context, id string) (*models.ServiceRequest, error)
}

// repository reads service requests owned by the marketplace. The rows the
// engine cares about (urgency, customer) are immutable after posting, so they
// are cached in redis on the hot select/sweep path.
type repository struct {
	conn   driver.PostgresPool
	cache  *redis.Client
	logger *zap.Logger
}

func NewRepository(conn driver.PostgresPool, cache *redis.Client, logger *zap.Logger) Repository {
	return &repository{
		conn:   conn,
		cache:  cache,
		logger: logger,
	}
}

func cacheKey(id string) string {
	return "settlement:service_request:" + id
}

func (r *repository) GetByID(ctx context.Context, id string) (*models.ServiceRequest, error) {
	if cached, err := r.cache.Get(ctx, cacheKey(id)).Bytes(); err == nil {
		var request models.ServiceRequest
		if err = json.Unmarshal(cached, &request); err == nil {
			return &request, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		r.logger.Warn("service request cache read failed", zap.Error(err))
	}

	const query = `
    SELECT id, customer_id, urgency, created_at
    FROM service_requests
    WHERE id = @id
    `

	var request models.ServiceRequest
	err := r.conn.QueryRow(ctx, query, pgx.NamedArgs{"id": id}).Scan(
		&request.ID,
		&request.CustomerID,
		&request.Urgency,
		&request.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrServiceRequestNotFound
		}
		return nil, fmt.Errorf("failed to get service request: %w", err)
	}

	if payload, err := json.Marshal(&request); err == nil {
		if err = r.cache.Set(ctx, cacheKey(id), payload, cacheTTL).Err(); err != nil {
			r.logger.Warn("service request cache write failed", zap.Error(err))
		}
	}

	return &request, nil
}
