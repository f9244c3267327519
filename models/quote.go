package models

import (
	"time"

	"github.com/shopspring/decimal"

	"goflare.io/settlement/models/enum"
)

// Quote is a professional's priced offer against a customer's service request.
// Rows are never deleted; terminal statuses are kept as audit records.
type Quote struct {
	ID               string           `json:"id"`
	ServiceRequestID string           `json:"service_request_id"`
	ProfessionalID   string           `json:"professional_id"`
	Price            decimal.Decimal  `json:"price"`
	Description      string           `json:"description"`
	Notes            *string          `json:"notes,omitempty"`
	Status           enum.QuoteStatus `json:"status"`
	// ConfirmationExpiresAt is advisory data: only the sweep (or a guarded
	// just-in-time check) may expire a quote based on it.
	ConfirmationExpiresAt *time.Time `json:"confirmation_expires_at,omitempty"`
	IsRevised             bool       `json:"is_revised"`
	OriginalQuoteID       *string    `json:"original_quote_id,omitempty"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
}

// DeadlinePassed reports whether the confirmation window has elapsed at now.
func (q *Quote) DeadlinePassed(now time.Time) bool {
	return q.ConfirmationExpiresAt != nil && !now.Before(*q.ConfirmationExpiresAt)
}
