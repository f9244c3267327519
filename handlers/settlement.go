package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"goflare.io/settlement"
)

type SettlementHandler interface {
	CreateCheckout(c echo.Context) error
	VerifyPayment(c echo.Context) error
}

type settlementHandler struct {
	Settlement settlement.Settlement
}

func NewSettlementHandler(
	Settlement settlement.Settlement,
) SettlementHandler {
	return &settlementHandler{
		Settlement: Settlement,
	}
}

// CreateCheckout handles POST /quotes/:id/checkout
func (sh *settlementHandler) CreateCheckout(c echo.Context) error {
	result, err := sh.Settlement.CreateReferralCheckout(c.Request().Context(), c.Param("id"))
	if err != nil {
		return errorJSON(c, err)
	}

	return c.JSON(http.StatusCreated, result)
}

// VerifyPayment handles POST /payments/verify
func (sh *settlementHandler) VerifyPayment(c echo.Context) error {
	var req struct {
		SessionID string `json:"session_id"`
	}
	if err := c.Bind(&req); err != nil || req.SessionID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request payload"})
	}

	result, err := sh.Settlement.VerifyReferralPayment(c.Request().Context(), req.SessionID)
	if err != nil {
		return errorJSON(c, err)
	}

	return c.JSON(http.StatusOK, result)
}
