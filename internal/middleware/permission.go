package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/verding/verding/internal/auth"
	"github.com/verding/verding/internal/rbac"
)

// requestRole returns the user's role for the property the request is
// scoped to. Empty when the user has no grant there.
func requestRole(c echo.Context, ac *AuthContext) rbac.Role {
	propertyID := RequestPropertyID(c)
	if propertyID == "" {
		return ""
	}
	if access, ok := ac.User.AccessTo(propertyID); ok {
		return access.Role
	}
	return ""
}

// RequirePermission enforces a resource/action entry of the permission
// matrix against the user's role on the request's property. Denials name
// the missing permission and the role that fell short.
func RequirePermission(resource rbac.Resource, action rbac.Action) echo.MiddlewareFunc {
	required := string(resource) + ":" + string(action)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ac, ok := GetAuth(c)
			if !ok {
				return unauthenticated(c)
			}
			if ac.User.IsSuperAdmin() {
				return next(c)
			}
			role := requestRole(c, ac)
			if !rbac.HasPermission(role, resource, action) {
				return c.JSON(http.StatusForbidden, echo.Map{
					"error":               string(auth.ErrInsufficientPermissions),
					"message":             "You do not have permission to perform this action",
					"required_permission": required,
					"user_role":           string(role),
				})
			}
			return next(c)
		}
	}
}

// requireRoleLevel builds the manager/admin gates.
func requireRoleLevel(check func(rbac.Role) bool, message string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ac, ok := GetAuth(c)
			if !ok {
				return unauthenticated(c)
			}
			if ac.User.IsSuperAdmin() {
				return next(c)
			}
			if role := requestRole(c, ac); !check(role) {
				return c.JSON(http.StatusForbidden, echo.Map{
					"error":     string(auth.ErrInsufficientPermissions),
					"message":   message,
					"user_role": string(role),
				})
			}
			return next(c)
		}
	}
}

// RequireManagement restricts the route to manager and above.
func RequireManagement() echo.MiddlewareFunc {
	return requireRoleLevel(rbac.HasManagementPermissions, "Management role required")
}

// RequireAdmin restricts the route to admin and above.
func RequireAdmin() echo.MiddlewareFunc {
	return requireRoleLevel(rbac.HasAdminPermissions, "Administrator role required")
}

// RequireRoleManagement guards role-assignment routes: the "role" field
// in the body must be one the actor's own role strictly outranks. The
// service re-checks the full transition; this rejects the obvious
// escalations before the handler runs.
func RequireRoleManagement() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ac, ok := GetAuth(c)
			if !ok {
				return unauthenticated(c)
			}

			raw := rawRoleFromBody(c)
			target, valid := rbac.ParseRole(raw)
			if !valid {
				return c.JSON(http.StatusBadRequest, echo.Map{
					"error":   string(auth.ErrInsufficientPermissions),
					"message": "Unknown role: " + raw,
				})
			}
			if ac.User.IsSuperAdmin() {
				return next(c)
			}
			if role := requestRole(c, ac); !rbac.CanManageRole(role, target) {
				return c.JSON(http.StatusForbidden, echo.Map{
					"error":     string(auth.ErrInsufficientPermissions),
					"message":   "Your role cannot assign the role " + string(target),
					"user_role": string(role),
				})
			}
			return next(c)
		}
	}
}

// OwnerLookup resolves a resource id to the user id owning it.
type OwnerLookup func(ctx context.Context, resourceID string) (string, error)

// RequireResourceOwnership restricts the route to the owner of the
// resource named by the given route param. The lookup hits storage; any
// failure, including an unknown resource, denies (fail closed). Admins on
// the request's property and super admins bypass the check.
func RequireResourceOwnership(paramName string, lookup OwnerLookup) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ac, ok := GetAuth(c)
			if !ok {
				return unauthenticated(c)
			}
			resourceID := c.Param(paramName)
			if resourceID == "" {
				return c.JSON(http.StatusBadRequest, echo.Map{
					"error":   string(auth.ErrInsufficientPermissions),
					"message": "Resource ID is required",
				})
			}
			if ac.User.IsSuperAdmin() || rbac.HasAdminPermissions(requestRole(c, ac)) {
				return next(c)
			}

			ownerID, err := lookup(c.Request().Context(), resourceID)
			if err != nil || ownerID == "" || ownerID != ac.User.ID {
				return c.JSON(http.StatusForbidden, echo.Map{
					"error":   string(auth.ErrInsufficientPermissions),
					"message": "You do not own this resource",
				})
			}
			return next(c)
		}
	}
}

func rawRoleFromBody(c echo.Context) string {
	req := c.Request()
	if req.Body == nil || req.ContentLength == 0 {
		return ""
	}
	raw, err := io.ReadAll(req.Body)
	req.Body = io.NopCloser(bytes.NewReader(raw))
	if err != nil {
		return ""
	}
	var body struct {
		Role string `json:"role"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return ""
	}
	return body.Role
}
