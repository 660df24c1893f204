package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/verding/verding/internal/auth"
	"github.com/verding/verding/internal/middleware"
	"github.com/verding/verding/internal/model"
	"github.com/verding/verding/internal/rbac"
	"github.com/verding/verding/internal/service"
)

// PropertyHandler bundles dependencies for property and membership
// endpoints.
type PropertyHandler struct {
	Properties *service.PropertyService
}

func NewPropertyHandler(properties *service.PropertyService) *PropertyHandler {
	return &PropertyHandler{Properties: properties}
}

type createPropertyReq struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type changeRoleReq struct {
	Role string `json:"role"`
}

// Create makes a new property; the caller becomes its owner.
func (h *PropertyHandler) Create(c echo.Context) error {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": string(auth.ErrInvalidToken), "message": "Authentication required"})
	}
	var req createPropertyReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "INVALID_REQUEST", "message": "Invalid request body"})
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "INVALID_REQUEST", "message": "name is required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	prop, err := h.Properties.Create(ctx, user, req.Name, req.Description)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"property": prop})
}

// Delete removes a property. The route chain requires the owner role and
// creator ownership before this handler runs.
func (h *PropertyHandler) Delete(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	if err := h.Properties.Delete(ctx, c.Param("propertyId")); err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"deleted": true})
}

// List returns the caller's properties with their grant details.
func (h *PropertyHandler) List(c echo.Context) error {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": string(auth.ErrInvalidToken), "message": "Authentication required"})
	}
	properties := user.Properties
	if properties == nil {
		properties = []model.PropertyAccess{}
	}
	return c.JSON(http.StatusOK, echo.Map{
		"properties":         properties,
		"active_property_id": user.ActivePropertyID,
	})
}

// Get returns one property.
func (h *PropertyHandler) Get(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	prop, err := h.Properties.Get(ctx, c.Param("propertyId"))
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"property": prop})
}

// Members lists every grant on a property.
func (h *PropertyHandler) Members(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	members, err := h.Properties.ListMembers(ctx, c.Param("propertyId"))
	if err != nil {
		return httpError(c, err)
	}
	out := make([]echo.Map, 0, len(members))
	for _, m := range members {
		out = append(out, echo.Map{
			"user_id":    m.UserID,
			"role":       m.Role,
			"can_view":   m.CanView,
			"can_edit":   m.CanEdit,
			"can_manage": m.CanManage,
			"granted_at": m.GrantedAt,
		})
	}
	return c.JSON(http.StatusOK, echo.Map{"members": out})
}

// ChangeRole moves a member to a new role.
func (h *PropertyHandler) ChangeRole(c echo.Context) error {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": string(auth.ErrInvalidToken), "message": "Authentication required"})
	}
	var req changeRoleReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "INVALID_REQUEST", "message": "Invalid request body"})
	}
	role, valid := rbac.ParseRole(req.Role)
	if !valid {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "INVALID_REQUEST", "message": "Unknown role: " + req.Role})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	if err := h.Properties.ChangeRole(ctx, user, c.Param("propertyId"), c.Param("userId"), role); err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"updated": true, "role": role})
}

// RevokeAccess removes a member from a property.
func (h *PropertyHandler) RevokeAccess(c echo.Context) error {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": string(auth.ErrInvalidToken), "message": "Authentication required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	if err := h.Properties.RevokeAccess(ctx, user, c.Param("propertyId"), c.Param("userId")); err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"revoked": true})
}

// ReconcileAccess rewrites each grant's capability flags from its role.
func (h *PropertyHandler) ReconcileAccess(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	n, err := h.Properties.ReconcileAccess(ctx, c.Param("propertyId"))
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"reconciled": n})
}
