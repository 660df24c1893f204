package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/verding/verding/internal/auth"
	"github.com/verding/verding/internal/middleware"
	"github.com/verding/verding/internal/rbac"
)

// RoleHandler exposes the static role catalogue so clients can render
// role pickers without hardcoding the hierarchy.
type RoleHandler struct{}

func NewRoleHandler() *RoleHandler { return &RoleHandler{} }

// List returns every role with its level, description and default
// capability flags, ascending by level.
func (h *RoleHandler) List(c echo.Context) error {
	roles := rbac.Roles()
	out := make([]rbac.RoleInfo, 0, len(roles))
	for _, r := range roles {
		out = append(out, rbac.Info(r))
	}
	return c.JSON(http.StatusOK, echo.Map{"roles": out})
}

// Assignable returns the roles the caller may assign on the request's
// property: every role strictly below their own.
func (h *RoleHandler) Assignable(c echo.Context) error {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": string(auth.ErrInvalidToken), "message": "Authentication required"})
	}

	propertyID := middleware.RequestPropertyID(c)
	access, ok := user.AccessTo(propertyID)
	if !ok {
		return c.JSON(http.StatusOK, echo.Map{"roles": []rbac.RoleInfo{}})
	}
	allowed := rbac.AllowedRolesToAssign(access.Role)
	out := make([]rbac.RoleInfo, 0, len(allowed))
	for _, r := range allowed {
		out = append(out, rbac.Info(r))
	}
	return c.JSON(http.StatusOK, echo.Map{"roles": out})
}
