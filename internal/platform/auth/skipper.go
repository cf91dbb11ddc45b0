package auth

import (
	"github.com/labstack/echo/v4"
)

// publicPaths bypass bearer auth and tenant resolution. The processor webhook
// authenticates with its own signature.
var publicPaths = map[string]bool{
	"/health":          true,
	"/health/db":       true,
	"/webhooks/stripe": true,
}

// AuthSkipper reports whether the matched route is public.
func AuthSkipper(c echo.Context) bool {
	return publicPaths[c.Path()]
}

func IsPublicPath(path string) bool {
	return publicPaths[path]
}
