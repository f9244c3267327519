package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"goflare.io/settlement/cancellation"
	"goflare.io/settlement/models/enum"
)

type AppointmentHandler interface {
	CancelAppointment(c echo.Context) error
}

type appointmentHandler struct {
	Cancellation cancellation.Service
}

func NewAppointmentHandler(
	Cancellation cancellation.Service,
) AppointmentHandler {
	return &appointmentHandler{
		Cancellation: Cancellation,
	}
}

// CancelAppointment handles POST /appointments/:id/cancel
func (ah *appointmentHandler) CancelAppointment(c echo.Context) error {
	var req struct {
		Reason string `json:"reason"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request payload"})
	}

	result, err := ah.Cancellation.Cancel(c.Request().Context(), c.Param("id"), enum.CancellationReason(req.Reason))
	if err != nil {
		return errorJSON(c, err)
	}

	return c.JSON(http.StatusOK, result)
}
