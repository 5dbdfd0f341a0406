package auth

import (
	"github.com/labstack/echo/v4"
)

// publicPaths bypass authentication: health checks and FHIR discovery.
var publicPaths = map[string]bool{
	"/health":        true,
	"/fhir/metadata": true,
}

// AuthSkipper returns true for requests whose route should skip authentication.
func AuthSkipper(c echo.Context) bool {
	return publicPaths[c.Path()]
}
