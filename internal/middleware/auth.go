package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/verding/verding/internal/auth"
	"github.com/verding/verding/internal/service"
)

// Authenticate verifies the bearer token and resolves the full
// authenticated user (grants, profile, active property) into the request
// context. Requests without a valid access token are rejected with 401.
func Authenticate(tokens *auth.TokenService, identity *service.IdentityService) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token := auth.ExtractBearerToken(c.Request().Header.Get("Authorization"))
			if token == "" {
				return c.JSON(http.StatusUnauthorized, echo.Map{
					"error":   string(auth.ErrInvalidToken),
					"message": "Missing bearer token",
				})
			}

			claims, err := tokens.Verify(token)
			if err != nil {
				return respondError(c, err)
			}
			if claims.TokenType == "refresh" {
				return c.JSON(http.StatusUnauthorized, echo.Map{
					"error":   string(auth.ErrInvalidToken),
					"message": "Refresh tokens cannot access resources",
				})
			}

			user, err := identity.Resolve(c.Request().Context(), claims.Subject, claims.Email)
			if err != nil {
				return respondError(c, err)
			}

			SetAuth(c, &AuthContext{User: user, Claims: claims})
			return next(c)
		}
	}
}

// OptionalAuthenticate resolves the user when a valid token is present
// and silently continues anonymous otherwise. Routes that personalize
// public data use it.
func OptionalAuthenticate(tokens *auth.TokenService, identity *service.IdentityService) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token := auth.ExtractBearerToken(c.Request().Header.Get("Authorization"))
			if token == "" {
				return next(c)
			}
			claims, err := tokens.Verify(token)
			if err != nil || claims.TokenType == "refresh" {
				return next(c)
			}
			user, err := identity.Resolve(c.Request().Context(), claims.Subject, claims.Email)
			if err != nil {
				return next(c)
			}
			SetAuth(c, &AuthContext{User: user, Claims: claims})
			return next(c)
		}
	}
}
