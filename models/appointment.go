package models

import (
	"time"

	"goflare.io/settlement/models/enum"
)

// Appointment is owned by the scheduling collaborator; the settlement engine
// only pushes status changes into it.
type Appointment struct {
	ID        string                 `json:"id"`
	QuoteID   string                 `json:"quote_id"`
	Status    enum.AppointmentStatus `json:"status"`
	CreatedAt time.Time              `json:"created_at"`
	UpdatedAt time.Time              `json:"updated_at"`
}
