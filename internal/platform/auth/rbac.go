package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// Roles recognised by the claims engine. Patients carry no staff role.
const (
	RoleAdmin   = "admin"
	RoleBilling = "billing"
)

// RequireRole rejects requests whose user has none of roles. Admin always passes.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if HasRole(c.Request().Context(), roles...) {
				return next(c)
			}
			return echo.NewHTTPError(http.StatusForbidden,
				fmt.Sprintf("required role: %s", strings.Join(roles, " or ")))
		}
	}
}

// HasRole reports whether the user in ctx holds admin or any of roles.
func HasRole(ctx context.Context, roles ...string) bool {
	for _, has := range RolesFromContext(ctx) {
		if has == RoleAdmin {
			return true
		}
		for _, required := range roles {
			if has == required {
				return true
			}
		}
	}
	return false
}

// IsStaff reports whether the user may act on other patients' records.
func IsStaff(ctx context.Context) bool {
	return HasRole(ctx, RoleBilling)
}

// CanAccess reports whether the user in ctx may read or act on records owned
// by ownerID.
func CanAccess(ctx context.Context, ownerID string) bool {
	return IsStaff(ctx) || (ownerID != "" && UserIDFromContext(ctx) == ownerID)
}
