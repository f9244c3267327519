package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"goflare.io/settlement/sweep"
)

type SweepHandler interface {
	RunSweep(c echo.Context) error
}

type sweepHandler struct {
	Sweeper *sweep.Sweeper
}

func NewSweepHandler(
	Sweeper *sweep.Sweeper,
) SweepHandler {
	return &sweepHandler{
		Sweeper: Sweeper,
	}
}

// RunSweep handles POST /internal/sweep, the hook for an external scheduler.
// The background ticker makes the same call; running both is harmless since
// every expiry is individually guarded.
func (sh *sweepHandler) RunSweep(c echo.Context) error {
	expired, err := sh.Sweeper.RunOnce(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "sweep failed"})
	}

	return c.JSON(http.StatusOK, map[string]int{"expired_count": expired})
}
