package enum

// QuoteStatus is the lifecycle state of a professional's quote.
type QuoteStatus string

const (
	QuoteStatusPending             QuoteStatus = "pending"
	QuoteStatusPendingConfirmation QuoteStatus = "pending_confirmation"
	QuoteStatusConfirmed           QuoteStatus = "confirmed"
	QuoteStatusExpired             QuoteStatus = "expired"
	QuoteStatusDeclined            QuoteStatus = "declined"
	QuoteStatusNotSelected         QuoteStatus = "not_selected"
)

// Terminal reports whether the status is a final audit record that can never
// transition again.
func (s QuoteStatus) Terminal() bool {
	switch s {
	case QuoteStatusConfirmed, QuoteStatusExpired, QuoteStatusDeclined, QuoteStatusNotSelected:
		return true
	}
	return false
}
