package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/verding/verding/internal/auth"
	"github.com/verding/verding/internal/middleware"
	"github.com/verding/verding/internal/model"
	"github.com/verding/verding/internal/service"
)

// InvitationHandler bundles dependencies for the invitation endpoints.
type InvitationHandler struct {
	Invitations *service.InvitationService
	Identity    *service.IdentityService
	Tokens      *auth.TokenService
}

func NewInvitationHandler(invitations *service.InvitationService, identity *service.IdentityService, tokens *auth.TokenService) *InvitationHandler {
	return &InvitationHandler{Invitations: invitations, Identity: identity, Tokens: tokens}
}

// Create issues a new invitation for the property in the request body.
func (h *InvitationHandler) Create(c echo.Context) error {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": string(auth.ErrInvalidToken), "message": "Authentication required"})
	}
	var req model.CreateInvitationData
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "INVALID_REQUEST", "message": "Invalid request body"})
	}
	if req.Email == "" || req.PropertyID == "" || req.Role == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "INVALID_REQUEST", "message": "email, property_id and role are required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	inv, err := h.Invitations.Create(ctx, user, req)
	if err != nil {
		return httpError(c, err)
	}
	// The creation response is the only list-style payload carrying the
	// token; the inviter forwards it to the invitee out of band.
	return c.JSON(http.StatusCreated, echo.Map{"invitation": inv})
}

// Validate reports whether a token still leads to a usable invitation.
// Public: the invitee is not authenticated yet.
func (h *InvitationHandler) Validate(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	inv, err := h.Invitations.ValidateToken(ctx, c.Param("token"))
	if err != nil {
		// Unusable tokens are a normal outcome for this endpoint, not an
		// error: the invitee gets a 200 telling them why.
		if ae, ok := auth.AsAuthError(err); ok {
			switch ae.Type {
			case auth.ErrInvalidInvitationStatus:
				return c.JSON(http.StatusOK, echo.Map{
					"valid":  false,
					"status": inv.Status,
					"reason": ae.Message,
				})
			case auth.ErrInvitationNotFound:
				return c.JSON(http.StatusOK, echo.Map{
					"valid":  false,
					"reason": "Invalid invitation token",
				})
			}
		}
		return httpError(c, err)
	}

	inv.Token = ""
	return c.JSON(http.StatusOK, echo.Map{"valid": true, "invitation": inv})
}

// Accept consumes an invitation and signs the invitee in. Public: new
// invitees have no account yet.
func (h *InvitationHandler) Accept(c echo.Context) error {
	var req model.AcceptInvitationData
	if err := c.Bind(&req); err != nil || req.Token == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "INVALID_REQUEST", "message": "token is required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*dbTimeout)
	defer cancel()

	res, err := h.Invitations.Accept(ctx, req)
	if err != nil {
		return httpError(c, err)
	}

	user, err := h.Identity.Resolve(ctx, res.UserID, res.Invitation.Email)
	if err != nil {
		return httpError(c, err)
	}
	pair, err := pairFor(h.Tokens, user)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"user":     user,
		"tokens":   pair,
		"new_user": res.NewUser,
		"property": echo.Map{
			"id":   res.Invitation.PropertyID,
			"name": res.Invitation.PropertyName,
			"role": res.Invitation.Role,
		},
	})
}

// ListByProperty returns a property's invitations, tokens stripped.
func (h *InvitationHandler) ListByProperty(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	list, err := h.Invitations.PropertyInvitations(ctx, c.Param("propertyId"))
	if err != nil {
		return httpError(c, err)
	}
	if list == nil {
		list = []model.Invitation{}
	}
	return c.JSON(http.StatusOK, echo.Map{"invitations": list})
}

// ListSent returns the invitations the caller has issued.
func (h *InvitationHandler) ListSent(c echo.Context) error {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": string(auth.ErrInvalidToken), "message": "Authentication required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	list, err := h.Invitations.SentInvitations(ctx, user.ID)
	if err != nil {
		return httpError(c, err)
	}
	if list == nil {
		list = []model.Invitation{}
	}
	return c.JSON(http.StatusOK, echo.Map{"invitations": list})
}

// Cancel voids a pending invitation.
func (h *InvitationHandler) Cancel(c echo.Context) error {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": string(auth.ErrInvalidToken), "message": "Authentication required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	if err := h.Invitations.Cancel(ctx, user, c.Param("id")); err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"cancelled": true})
}

// Resend reissues a pending or expired invitation with a fresh token.
func (h *InvitationHandler) Resend(c echo.Context) error {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": string(auth.ErrInvalidToken), "message": "Authentication required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	inv, err := h.Invitations.Resend(ctx, user, c.Param("id"))
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"invitation": inv})
}

// Cleanup sweeps overdue pending invitations to expired. Exposed for
// operators and schedulers; the same sweep also runs periodically in the
// server process.
func (h *InvitationHandler) Cleanup(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 6*time.Second)
	defer cancel()

	n, err := h.Invitations.CleanupExpired(ctx)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"expired": n})
}
