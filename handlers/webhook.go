package handlers

import (
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"goflare.io/settlement"
)

type WebhookHandler interface {
	HandleStripeWebhook(c echo.Context) error
}

type webhookHandler struct {
	Settlement settlement.Settlement
}

func NewWebhookHandler(
	Settlement settlement.Settlement,
) WebhookHandler {
	return &webhookHandler{
		Settlement: Settlement,
	}
}

func (wh *webhookHandler) HandleStripeWebhook(c echo.Context) error {
	payload, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Failed to read request body"})
	}

	signature := c.Request().Header.Get("Stripe-Signature")

	err = wh.Settlement.HandleStripeWebhook(c.Request().Context(), payload, signature)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Failed to handle webhook"})
	}

	return c.NoContent(http.StatusOK)
}
