package enum

// ReferralFeeStatus is the settlement state of a referral fee.
type ReferralFeeStatus string

const (
	ReferralFeeStatusOwed     ReferralFeeStatus = "owed"
	ReferralFeeStatusPaid     ReferralFeeStatus = "paid"
	ReferralFeeStatusRefunded ReferralFeeStatus = "refunded"
	ReferralFeeStatusDeclined ReferralFeeStatus = "declined"
	ReferralFeeStatusExpired  ReferralFeeStatus = "expired"
	ReferralFeeStatusCanceled ReferralFeeStatus = "canceled"
)

// Payable reports whether a checkout session may still be opened for the fee.
func (s ReferralFeeStatus) Payable() bool {
	return s == ReferralFeeStatusOwed
}

// Active reports whether the fee is the live row for its (request,
// professional) pair. Terminal rows are audit records; a later quote by the
// same professional on the same request gets a fresh fee.
func (s ReferralFeeStatus) Active() bool {
	return s == ReferralFeeStatusOwed || s == ReferralFeeStatusPaid
}
