package enum

// AppointmentStatus mirrors the confirmed/canceled transitions of the
// quote/fee pair. The settlement engine pushes this status; it never reads it
// back to make decisions beyond the cancelable guard.
type AppointmentStatus string

const (
	AppointmentStatusScheduled AppointmentStatus = "scheduled"
	AppointmentStatusConfirmed AppointmentStatus = "confirmed"
	AppointmentStatusCompleted AppointmentStatus = "completed"
	AppointmentStatusCanceled  AppointmentStatus = "canceled"
)

// Cancelable reports whether a cancellation may still be applied.
func (s AppointmentStatus) Cancelable() bool {
	return s == AppointmentStatusScheduled || s == AppointmentStatusConfirmed
}
