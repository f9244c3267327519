package models

import (
	"time"

	"github.com/shopspring/decimal"

	"goflare.io/settlement/models/enum"
)

// ReferralFee is the platform commission owed by a professional once their
// quote is selected. Amount is computed server side and immutable after
// creation; only status and gateway references ever change.
type ReferralFee struct {
	ID                 string                   `json:"id"`
	ServiceRequestID   string                   `json:"service_request_id"`
	ProfessionalID     string                   `json:"professional_id"`
	QuoteID            string                   `json:"quote_id"`
	Amount             decimal.Decimal          `json:"amount"`
	Status             enum.ReferralFeeStatus   `json:"status"`
	Refundable         bool                     `json:"refundable"`
	CancellationReason *enum.CancellationReason `json:"cancellation_reason,omitempty"`

	// Opaque external-processor correlation ids.
	StripeSessionID     *string `json:"stripe_session_id,omitempty"`
	StripePaymentIntent *string `json:"stripe_payment_intent,omitempty"`
	StripeRefundID      *string `json:"stripe_refund_id,omitempty"`

	PaidAt    *time.Time `json:"paid_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// AmountCents converts the fee to the smallest currency unit for the gateway.
func (f *ReferralFee) AmountCents() int64 {
	return f.Amount.Mul(decimal.NewFromInt(100)).IntPart()
}
