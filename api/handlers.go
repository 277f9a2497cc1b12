package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/brunogblum/sindicoOnline-sub001/hub"
)

// Authenticator is implemented by types able to verify bearer tokens.
type Authenticator interface {
	IdentityFromAuthHeader(string) (Identity, error)
}

// Register wires up the realtime endpoints on the given Echo instance.
func Register(e *echo.Echo, h *hub.Hub, auth Authenticator) {
	e.GET("/ws", serveBoard(h, auth))
	e.GET("/healthz", healthz())
}

func healthz() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}
}

// serveBoard authenticates the upgrade request and hands the connection to
// the hub. Browsers cannot set websocket headers, so the token may also
// ride in the query string, mirroring the stream endpoint of the CRUD
// stack.
func serveBoard(h *hub.Hub, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
		if token := c.QueryParam("token"); authHeader == "" && token != "" {
			authHeader = "Bearer " + token
		}
		identity, err := auth.IdentityFromAuthHeader(authHeader)
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}

		hub.ServeWS(h, c.Response(), c.Request(), identity.UserID, identity.Role)
		return nil
	}
}
