package models

import "errors"

// State-conflict errors: a transition's source-state guard failed. These are
// non-retryable conflicts, distinct from validation and gateway failures, and
// handlers map them to 409 with the reason.
var (
	// ErrAlreadyDecided is returned when selecting or declining a quote that
	// already left the pending states, e.g. it expired or a sibling won.
	ErrAlreadyDecided = errors.New("quote already decided")

	// ErrPaymentNotVerified is returned when a confirm is attempted without a
	// definitive gateway result.
	ErrPaymentNotVerified = errors.New("payment not verified by gateway")

	// ErrAlreadyPaid is returned when a fee is marked paid twice. Payment
	// callbacks can be delivered more than once; the second call must not
	// double-credit.
	ErrAlreadyPaid = errors.New("referral fee already paid")

	// ErrFeeAlreadyPaid is returned when opening a checkout session for a fee
	// that is no longer payable.
	ErrFeeAlreadyPaid = errors.New("referral fee is not payable")

	// ErrNotAwaitingPayment is returned when opening a checkout session for a
	// quote that is not pending_confirmation: either it was never selected or
	// it already reached a terminal state.
	ErrNotAwaitingPayment = errors.New("quote is not awaiting payment")

	// ErrNotRefundable is returned when a refund is requested for a fee that
	// is not paid or not flagged refundable.
	ErrNotRefundable = errors.New("referral fee is not refundable")

	// ErrNotCancelable is returned when the appointment already reached a
	// state that cannot be canceled.
	ErrNotCancelable = errors.New("appointment is not cancelable")
)

// ErrInvalidCancellationReason is a validation error, mapped to 400 rather
// than 409.
var ErrInvalidCancellationReason = errors.New("invalid cancellation reason")

// Not-found errors, kept distinct from conflicts for handler status mapping.
var (
	ErrQuoteNotFound          = errors.New("quote not found")
	ErrReferralFeeNotFound    = errors.New("referral fee not found")
	ErrAppointmentNotFound    = errors.New("appointment not found")
	ErrServiceRequestNotFound = errors.New("service request not found")
)
