package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"goflare.io/settlement/lifecycle"
	"goflare.io/settlement/quote"
)

type QuoteHandler interface {
	SubmitQuote(c echo.Context) error
	SubmitRevision(c echo.Context) error
	SelectQuote(c echo.Context) error
	DeclineQuote(c echo.Context) error
	ListQuotes(c echo.Context) error
}

type quoteHandler struct {
	Quote     quote.Service
	Lifecycle lifecycle.Service
}

func NewQuoteHandler(
	Quote quote.Service,
	Lifecycle lifecycle.Service,
) QuoteHandler {
	return &quoteHandler{
		Quote:     Quote,
		Lifecycle: Lifecycle,
	}
}

type submitQuoteRequest struct {
	ServiceRequestID string  `json:"service_request_id"`
	Price            string  `json:"price"`
	Description      string  `json:"description"`
	Notes            *string `json:"notes,omitempty"`
}

func (req submitQuoteRequest) toInput(professionalID string) (quote.SubmitInput, error) {
	price, err := decimal.NewFromString(req.Price)
	if err != nil {
		return quote.SubmitInput{}, err
	}
	return quote.SubmitInput{
		ServiceRequestID: req.ServiceRequestID,
		ProfessionalID:   professionalID,
		Price:            price,
		Description:      req.Description,
		Notes:            req.Notes,
	}, nil
}

// SubmitQuote handles POST /quotes
func (qh *quoteHandler) SubmitQuote(c echo.Context) error {
	var req submitQuoteRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request payload"})
	}

	input, err := req.toInput(actorID(c))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid price"})
	}

	created, err := qh.Quote.Submit(c.Request().Context(), input)
	if err != nil {
		return errorJSON(c, err)
	}

	return c.JSON(http.StatusCreated, created)
}

// SubmitRevision handles POST /quotes/:id/revision
func (qh *quoteHandler) SubmitRevision(c echo.Context) error {
	var req submitQuoteRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request payload"})
	}

	input, err := req.toInput(actorID(c))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid price"})
	}

	revised, err := qh.Quote.SubmitRevision(c.Request().Context(), c.Param("id"), input)
	if err != nil {
		return errorJSON(c, err)
	}

	return c.JSON(http.StatusCreated, revised)
}

// SelectQuote handles POST /quotes/:id/select
func (qh *quoteHandler) SelectQuote(c echo.Context) error {
	result, err := qh.Lifecycle.Select(c.Request().Context(), c.Param("id"), actorID(c))
	if err != nil {
		return errorJSON(c, err)
	}

	return c.JSON(http.StatusOK, result)
}

// DeclineQuote handles POST /quotes/:id/decline
func (qh *quoteHandler) DeclineQuote(c echo.Context) error {
	if err := qh.Lifecycle.Decline(c.Request().Context(), c.Param("id"), actorID(c)); err != nil {
		return errorJSON(c, err)
	}

	return c.NoContent(http.StatusNoContent)
}

// ListQuotes handles GET /requests/:id/quotes
func (qh *quoteHandler) ListQuotes(c echo.Context) error {
	quotes, err := qh.Quote.ListByRequest(c.Request().Context(), c.Param("id"))
	if err != nil {
		return errorJSON(c, err)
	}

	return c.JSON(http.StatusOK, quotes)
}
