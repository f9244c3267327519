package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

const actorIDHeader = "X-Actor-ID"

// RequireActor rejects mutating requests that carry no actor identity.
// Authentication itself lives upstream; this service only needs to know who
// is acting.
func RequireActor(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		actor := c.Request().Header.Get(actorIDHeader)
		if actor == "" {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "missing " + actorIDHeader + " header"})
		}
		c.Set("actor_id", actor)
		return next(c)
	}
}

func actorID(c echo.Context) string {
	if actor, ok := c.Get("actor_id").(string); ok {
		return actor
	}
	return c.Request().Header.Get(actorIDHeader)
}
