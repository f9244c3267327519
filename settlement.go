package settlement

import (
	"context"

	"github.com/stripe/stripe-go/v79"

	"goflare.io/settlement/models/enum"
)

// Settlement is the payment-gateway adapter for referral-fee settlement.
type Settlement interface {
	// CreateReferralCheckout opens a hosted checkout session scoped to the
	// quote's referral fee and returns the redirect URL. The fee row is
	// created lazily if payment is initiated before one exists. Quotes not in
	// pending_confirmation are rejected with models.ErrNotAwaitingPayment.
	CreateReferralCheckout(ctx context.Context, quoteID string) (*CheckoutResult, error)

	// VerifyReferralPayment checks the session against the gateway and, on a
	// definitive paid result, applies the confirmation cascade. A session not
	// yet paid yields models.ErrPaymentNotVerified. Safe to call repeatedly
	// for the same session.
	VerifyReferralPayment(ctx context.Context, sessionID string) (*VerifyResult, error)

	// RefundReferralFee issues a full-amount refund for the payment intent.
	// It is idempotent against the gateway's duplicate-refund rejection.
	RefundReferralFee(ctx context.Context, paymentIntentID string, reason enum.CancellationReason) (string, error)

	// HandleStripeWebhook verifies the event signature, dedups it and queues
	// it for asynchronous processing.
	HandleStripeWebhook(ctx context.Context, payload []byte, signature string) error

	ProcessEvent(ctx context.Context, event *stripe.Event) error

	Close()
}

type CheckoutResult struct {
	RedirectURL string `json:"redirect_url"`
	SessionID   string `json:"session_id"`
	FeeID       string `json:"fee_id"`
}

type VerifyResult struct {
	Paid    bool   `json:"paid"`
	QuoteID string `json:"quote_id,omitempty"`
}
