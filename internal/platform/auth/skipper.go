package auth

import (
	"github.com/labstack/echo/v4"
)

// publicPaths lists route paths that bypass authentication.
var publicPaths = map[string]bool{
	"/health":            true,
	"/health/db":         true,
	"/api/v1/auth/login": true,

	"/api/v1/advice/public":     true,
	"/api/v1/advice/public/:id": true,
}

// AuthSkipper returns true for requests whose route should skip
// authentication. It matches on the registered route path.
func AuthSkipper(c echo.Context) bool {
	return publicPaths[c.Path()]
}
