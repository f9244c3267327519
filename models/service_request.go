package models

import (
	"time"

	"goflare.io/settlement/models/enum"
)

// ServiceRequest is the customer's job posting. The settlement engine reads it
// for urgency (confirmation timer length) and the customer to notify; it never
// mutates it.
type ServiceRequest struct {
	ID         string       `json:"id"`
	CustomerID string       `json:"customer_id"`
	Urgency    enum.Urgency `json:"urgency"`
	CreatedAt  time.Time    `json:"created_at"`
}
