package enum

// CancellationReason records why a confirmed appointment was canceled.
type CancellationReason string

const (
	CancellationReasonCustomerCanceled    CancellationReason = "customer_canceled"
	CancellationReasonAfterRevisedQuote   CancellationReason = "canceled_after_revised_quote"
	CancellationReasonNoShow              CancellationReason = "no_show"
	CancellationReasonCanceledOffPlatform CancellationReason = "canceled_off_platform"
)

// Valid reports whether the reason is part of the known taxonomy.
func (r CancellationReason) Valid() bool {
	switch r {
	case CancellationReasonCustomerCanceled, CancellationReasonAfterRevisedQuote,
		CancellationReasonNoShow, CancellationReasonCanceledOffPlatform:
		return true
	}
	return false
}

// RefundEligible is the single predicate deciding whether a cancellation
// triggers a referral-fee refund. Off-platform cancellations are recorded but
// never refunded.
func (r CancellationReason) RefundEligible() bool {
	switch r {
	case CancellationReasonCustomerCanceled, CancellationReasonAfterRevisedQuote,
		CancellationReasonNoShow:
		return true
	}
	return false
}
