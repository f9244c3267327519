package enum

import "time"

// Urgency is the customer-declared urgency of a service request. It determines
// how long a selected professional has to pay the referral fee before the
// selection expires.
type Urgency string

const (
	UrgencyLow       Urgency = "low"
	UrgencyNormal    Urgency = "normal"
	UrgencyHigh      Urgency = "high"
	UrgencyEmergency Urgency = "emergency"
)

// ConfirmationTimerMinutes maps urgency to the confirmation window length.
func (u Urgency) ConfirmationTimerMinutes() int {
	switch u {
	case UrgencyEmergency:
		return 15
	case UrgencyHigh:
		return 30
	case UrgencyNormal:
		return 60
	default:
		return 120
	}
}

// ConfirmationWindow is the timer length as a duration.
func (u Urgency) ConfirmationWindow() time.Duration {
	return time.Duration(u.ConfirmationTimerMinutes()) * time.Minute
}
