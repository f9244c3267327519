package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"goflare.io/settlement/models"
	"goflare.io/settlement/quote"
)

// errorJSON maps domain errors onto HTTP statuses: not-found to 404,
// state-machine conflicts to 409, validation to 400. The wrapped message is
// returned verbatim so the caller sees the conflicting state.
func errorJSON(c echo.Context, err error) error {
	switch {
	case errors.Is(err, models.ErrQuoteNotFound),
		errors.Is(err, models.ErrReferralFeeNotFound),
		errors.Is(err, models.ErrAppointmentNotFound),
		errors.Is(err, models.ErrServiceRequestNotFound),
		errors.Is(err, quote.ErrOriginalNotFound):
		return c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})

	case errors.Is(err, models.ErrAlreadyDecided),
		errors.Is(err, models.ErrAlreadyPaid),
		errors.Is(err, models.ErrFeeAlreadyPaid),
		errors.Is(err, models.ErrNotAwaitingPayment),
		errors.Is(err, models.ErrPaymentNotVerified),
		errors.Is(err, models.ErrNotRefundable),
		errors.Is(err, models.ErrNotCancelable),
		errors.Is(err, quote.ErrActiveQuoteExists):
		return c.JSON(http.StatusConflict, map[string]string{"error": err.Error()})

	case errors.Is(err, models.ErrInvalidCancellationReason),
		errors.Is(err, quote.ErrInvalidPrice),
		errors.Is(err, quote.ErrInvalidDescription):
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})

	default:
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}
