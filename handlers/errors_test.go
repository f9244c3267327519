package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"goflare.io/settlement/models"
	"goflare.io/settlement/quote"
)

func TestErrorJSON(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"quote not found", models.ErrQuoteNotFound, http.StatusNotFound},
		{"already decided", models.ErrAlreadyDecided, http.StatusConflict},
		{"wrapped conflict keeps its status", fmt.Errorf("%w: quote is expired", models.ErrAlreadyDecided), http.StatusConflict},
		{"fee already paid", models.ErrFeeAlreadyPaid, http.StatusConflict},
		{"not awaiting payment", models.ErrNotAwaitingPayment, http.StatusConflict},
		{"payment not verified", models.ErrPaymentNotVerified, http.StatusConflict},
		{"not cancelable", models.ErrNotCancelable, http.StatusConflict},
		{"duplicate active quote", quote.ErrActiveQuoteExists, http.StatusConflict},
		{"invalid reason", models.ErrInvalidCancellationReason, http.StatusBadRequest},
		{"invalid price", quote.ErrInvalidPrice, http.StatusBadRequest},
		{"missing revision original", quote.ErrOriginalNotFound, http.StatusNotFound},
		{"unclassified", errors.New("db on fire"), http.StatusInternalServerError},
	}

	e := echo.New()
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", nil)
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			if err := errorJSON(c, tc.err); err != nil {
				t.Fatalf("errorJSON: %v", err)
			}
			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d", rec.Code, tc.want)
			}
		})
	}
}

func TestRequireActor(t *testing.T) {
	e := echo.New()
	handler := RequireActor(func(c echo.Context) error {
		return c.String(http.StatusOK, actorID(c))
	})

	t.Run("rejects a missing header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		rec := httptest.NewRecorder()
		if err := handler(e.NewContext(req, rec)); err != nil {
			t.Fatalf("handler: %v", err)
		}
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d, want 401", rec.Code)
		}
	})

	t.Run("exposes the actor to the handler", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.Header.Set(actorIDHeader, "pro1")
		rec := httptest.NewRecorder()
		if err := handler(e.NewContext(req, rec)); err != nil {
			t.Fatalf("handler: %v", err)
		}
		if rec.Code != http.StatusOK || rec.Body.String() != "pro1" {
			t.Fatalf("status = %d body = %q", rec.Code, rec.Body.String())
		}
	})
}
