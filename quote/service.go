package quote

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"goflare.io/settlement/driver"
	"goflare.io/settlement/models"
	"goflare.io/settlement/models/enum"
)

const maxDescriptionLength = 2000

// Validation errors are rejected before any state mutation.
var (
	ErrInvalidPrice       = errors.New("price must be a positive amount")
	ErrInvalidDescription = errors.New("description is required and must be under 2000 characters")
	ErrOriginalNotFound   = errors.New("original quote for revision not found")
)

type Service interface {
	Submit(ctx context.Context, input SubmitInput) (*models.Quote, error)
	SubmitRevision(ctx context.Context, originalQuoteID string, input SubmitInput) (*models.Quote, error)
	GetByID(ctx context.Context, id string) (*models.Quote, error)
	ListByRequest(ctx context.Context, requestID string) ([]*models.Quote, error)
}

type SubmitInput struct {
	ServiceRequestID string
	ProfessionalID   string
	Price            decimal.Decimal
	Description      string
	Notes            *string
}

func (in SubmitInput) validate() error {
	if err := in.validateTerms(); err != nil {
		return err
	}
	if in.ServiceRequestID == "" || in.ProfessionalID == "" {
		return errors.New("service request and professional ids are required")
	}
	return nil
}

// validateTerms checks only the priced terms; revisions inherit their request
// and professional from the original quote.
func (in SubmitInput) validateTerms() error {
	if !in.Price.IsPositive() {
		return ErrInvalidPrice
	}
	desc := strings.TrimSpace(in.Description)
	if desc == "" || len(desc) > maxDescriptionLength {
		return ErrInvalidDescription
	}
	return nil
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

func (s *service) Submit(ctx context.Context, input SubmitInput) (*models.Quote, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}

	quote := &models.Quote{
		ID:               uuid.NewString(),
		ServiceRequestID: input.ServiceRequestID,
		ProfessionalID:   input.ProfessionalID,
		Price:            input.Price,
		Description:      strings.TrimSpace(input.Description),
		Notes:            input.Notes,
		Status:           enum.QuoteStatusPending,
	}

	if err := s.transactionManager.ExecuteTransaction(ctx, func(tx pgx.Tx) error {
		return s.repo.Create(ctx, tx, quote)
	}); err != nil {
		return nil, err
	}

	s.logger.Info("quote submitted",
		zap.String("quote_id", quote.ID),
		zap.String("service_request_id", quote.ServiceRequestID),
		zap.String("professional_id", quote.ProfessionalID))

	return quote, nil
}

// SubmitRevision records a post-inspection price change as a new quote row
// linked to the original. The original is left untouched: it stays
// independently declinable and expirable.
func (s *service) SubmitRevision(ctx context.Context, originalQuoteID string, input SubmitInput) (*models.Quote, error) {
	if err := input.validateTerms(); err != nil {
		return nil, err
	}

	revision := &models.Quote{
		ID:              uuid.NewString(),
		Price:           input.Price,
		Description:     strings.TrimSpace(input.Description),
		Notes:           input.Notes,
		Status:          enum.QuoteStatusPending,
		IsRevised:       true,
		OriginalQuoteID: &originalQuoteID,
	}

	if err := s.transactionManager.ExecuteTransaction(ctx, func(tx pgx.Tx) error {
		original, err := s.repo.GetByID(ctx, tx, originalQuoteID)
		if err != nil {
			if errors.Is(err, models.ErrQuoteNotFound) {
				return ErrOriginalNotFound
			}
			return err
		}

		revision.ServiceRequestID = original.ServiceRequestID
		revision.ProfessionalID = original.ProfessionalID

		// A revision supersedes a live original; retire it first so the
		// one-active-quote-per-professional invariant holds.
		if !original.Status.Terminal() {
			if _, err = s.repo.MarkDeclined(ctx, tx, original.ID); err != nil {
				return err
			}
		}

		return s.repo.Create(ctx, tx, revision)
	}); err != nil {
		return nil, err
	}

	s.logger.Info("revised quote submitted",
		zap.String("quote_id", revision.ID),
		zap.String("original_quote_id", originalQuoteID))

	return revision, nil
}

func (s *service) GetByID(ctx context.Context, id string) (*models.Quote, error) {
	var quote *models.Quote
	if err := s.transactionManager.ExecuteTransaction(ctx, func(tx pgx.Tx) error {
		var err error
		quote, err = s.repo.GetByID(ctx, tx, id)
		return err
	}); err != nil {
		if errors.Is(err, models.ErrQuoteNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get quote: %w", err)
	}
	return quote, nil
}

func (s *service) ListByRequest(ctx context.Context, requestID string) ([]*models.Quote, error) {
	return s.repo.ListByRequest(ctx, requestID)
}
