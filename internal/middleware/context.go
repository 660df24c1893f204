// Package middleware implements the authorization chain every protected
// route runs through: authentication, property isolation, permission and
// ownership checks, plus rate limiting.
package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/verding/verding/internal/auth"
	"github.com/verding/verding/internal/model"
)

// authContextKey is the single context key the chain uses. Everything the
// downstream middleware and handlers need lives in one typed struct
// instead of loose values with per-key type assertions.
const authContextKey = "auth"

// AuthContext is the typed per-request authorization state. Authenticate
// creates it; RequirePropertyAccess fills PropertyID with the property
// the request was authorized against.
type AuthContext struct {
	User       *model.AuthenticatedUser
	Claims     *auth.Claims
	PropertyID string
}

// SetAuth stores the authorization state on the request.
func SetAuth(c echo.Context, ac *AuthContext) { c.Set(authContextKey, ac) }

// GetAuth returns the request's authorization state. ok is false when
// Authenticate has not run.
func GetAuth(c echo.Context) (*AuthContext, bool) {
	ac, ok := c.Get(authContextKey).(*AuthContext)
	return ac, ok && ac != nil && ac.User != nil
}

// CurrentUser returns the authenticated user, if any.
func CurrentUser(c echo.Context) (*model.AuthenticatedUser, bool) {
	ac, ok := GetAuth(c)
	if !ok {
		return nil, false
	}
	return ac.User, true
}

// RequestPropertyID returns the property the request was authorized
// against, falling back to the user's active property when the route has
// no property scope of its own.
func RequestPropertyID(c echo.Context) string {
	ac, ok := GetAuth(c)
	if !ok {
		return ""
	}
	if ac.PropertyID != "" {
		return ac.PropertyID
	}
	return ac.User.ActivePropertyID
}

// respondError translates an error into the JSON error shape. Typed auth
// errors keep their status and machine-readable type; anything else is a
// 500 with no internals leaked.
func respondError(c echo.Context, err error) error {
	if ae, ok := auth.AsAuthError(err); ok {
		return c.JSON(ae.Status, echo.Map{"error": string(ae.Type), "message": ae.Message})
	}
	c.Logger().Errorf("unhandled error: %v", err)
	return c.JSON(http.StatusInternalServerError, echo.Map{
		"error":   "INTERNAL_ERROR",
		"message": "Internal server error",
	})
}
