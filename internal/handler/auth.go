// Package handler contains the HTTP endpoints. Handlers bind and
// validate the request, call the services and translate errors into the
// JSON error shape; authorization decisions live in the middleware chain
// and the services.
package handler

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/verding/verding/internal/auth"
	"github.com/verding/verding/internal/middleware"
	"github.com/verding/verding/internal/model"
	"github.com/verding/verding/internal/rbac"
	"github.com/verding/verding/internal/repository"
	"github.com/verding/verding/internal/service"
	"github.com/verding/verding/internal/utils"
)

const dbTimeout = 5 * time.Second

// AuthHandler bundles dependencies for the auth endpoints.
type AuthHandler struct {
	Users      service.UserStore
	Profiles   service.ProfileStore
	Identity   *service.IdentityService
	Tokens     *auth.TokenService
	BcryptCost int
}

func NewAuthHandler(users service.UserStore, profiles service.ProfileStore, identity *service.IdentityService, tokens *auth.TokenService, bcryptCost int) *AuthHandler {
	return &AuthHandler{Users: users, Profiles: profiles, Identity: identity, Tokens: tokens, BcryptCost: bcryptCost}
}

// ----- DTOs -----

type registerReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
	Phone    string `json:"phone,omitempty"`
}

type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshReq struct {
	RefreshToken string `json:"refreshToken"`
}

type switchPropertyReq struct {
	PropertyID string `json:"property_id"`
}

type authResp struct {
	User   *model.AuthenticatedUser `json:"user"`
	Tokens auth.TokenPair           `json:"tokens"`
}

// httpError translates an error into the shared JSON error shape.
func httpError(c echo.Context, err error) error {
	if ae, ok := auth.AsAuthError(err); ok {
		return c.JSON(ae.Status, echo.Map{"error": string(ae.Type), "message": ae.Message})
	}
	c.Logger().Errorf("unhandled error: %v", err)
	return c.JSON(http.StatusInternalServerError, echo.Map{
		"error":   "INTERNAL_ERROR",
		"message": "Internal server error",
	})
}

// pairFor issues a token pair carrying the user's active property context
// in the access token claims.
func pairFor(tokens *auth.TokenService, user *model.AuthenticatedUser) (auth.TokenPair, error) {
	var perms *rbac.Permissions
	role := user.RoleInActiveProperty()
	if user.ActivePropertyID != "" {
		p := user.Permissions
		perms = &p
	}
	return tokens.Pair(user.ID, user.Email, role, user.ActivePropertyID, perms)
}

// Register creates an identity plus profile and signs the new user in.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "INVALID_REQUEST", "message": "Invalid request body"})
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || !strings.Contains(req.Email, "@") {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "INVALID_REQUEST", "message": "A valid email is required"})
	}
	if len(req.Password) < 8 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "INVALID_REQUEST", "message": "Password must be at least 8 characters"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	uid, err := h.Users.Create(ctx, req.Email, req.Password, h.BcryptCost)
	if err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			return c.JSON(http.StatusConflict, echo.Map{
				"error":   string(auth.ErrUserAlreadyExists),
				"message": "An account with this email already exists",
			})
		}
		return httpError(c, err)
	}

	fullName := strings.TrimSpace(req.FullName)
	if fullName == "" {
		fullName = req.Email[:strings.Index(req.Email, "@")]
	}
	if err := h.Profiles.Create(ctx, model.UserProfile{ID: uid, Email: req.Email, FullName: fullName, Phone: req.Phone}); err != nil {
		return httpError(c, err)
	}

	user, err := h.Identity.Resolve(ctx, uid, req.Email)
	if err != nil {
		return httpError(c, err)
	}
	pair, err := pairFor(h.Tokens, user)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusCreated, authResp{User: user, Tokens: pair})
}

// Login verifies credentials and returns a fresh token pair with the
// user's property context.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "INVALID_REQUEST", "message": "Invalid request body"})
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "INVALID_REQUEST", "message": "Email and password are required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	invalid := func() error {
		return c.JSON(http.StatusUnauthorized, echo.Map{
			"error":   string(auth.ErrInvalidCredentials),
			"message": "Invalid email or password",
		})
	}

	u, err := h.Users.GetByEmail(ctx, req.Email)
	if errors.Is(err, sql.ErrNoRows) {
		return invalid()
	}
	if err != nil {
		return httpError(c, err)
	}
	if !u.IsActive || u.PasswordHash == "" || !utils.VerifyPassword(u.PasswordHash, req.Password) {
		return invalid()
	}

	user, err := h.Identity.Resolve(ctx, u.ID, u.Email)
	if err != nil {
		return httpError(c, err)
	}
	pair, err := pairFor(h.Tokens, user)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, authResp{User: user, Tokens: pair})
}

// Refresh exchanges a refresh token for a new pair. The grants and
// property context are re-resolved, so revoked access disappears from the
// new access token even though refresh tokens themselves are stateless.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshReq
	if err := c.Bind(&req); err != nil || req.RefreshToken == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "INVALID_REQUEST", "message": "refreshToken is required"})
	}

	userID, email, err := h.Tokens.VerifyRefresh(req.RefreshToken)
	if err != nil {
		return httpError(c, err)
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	u, err := h.Users.GetByID(ctx, userID)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !u.IsActive) {
		return c.JSON(http.StatusUnauthorized, echo.Map{
			"error":   string(auth.ErrUserNotFound),
			"message": "Account no longer active",
		})
	}
	if err != nil {
		return httpError(c, err)
	}

	user, err := h.Identity.Resolve(ctx, userID, email)
	if err != nil {
		return httpError(c, err)
	}
	pair, err := pairFor(h.Tokens, user)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, authResp{User: user, Tokens: pair})
}

// Me returns the resolved authenticated user.
func (h *AuthHandler) Me(c echo.Context) error {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": string(auth.ErrInvalidToken), "message": "Authentication required"})
	}
	return c.JSON(http.StatusOK, echo.Map{"user": user})
}

type updateProfileReq struct {
	FullName  string `json:"full_name"`
	AvatarURL string `json:"avatar_url,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Timezone  string `json:"timezone,omitempty"`
	Language  string `json:"language,omitempty"`
}

// UpdateProfile replaces the caller's profile fields. A user whose
// profile was synthesized on the fly gets a real row on first update.
func (h *AuthHandler) UpdateProfile(c echo.Context) error {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": string(auth.ErrInvalidToken), "message": "Authentication required"})
	}
	var req updateProfileReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "INVALID_REQUEST", "message": "Invalid request body"})
	}
	if strings.TrimSpace(req.FullName) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "INVALID_REQUEST", "message": "full_name is required"})
	}

	profile := model.UserProfile{
		ID:        user.ID,
		Email:     user.Email,
		FullName:  strings.TrimSpace(req.FullName),
		AvatarURL: req.AvatarURL,
		Phone:     req.Phone,
		Timezone:  req.Timezone,
		Language:  req.Language,
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	// A zero CreatedAt marks a synthesized profile with no backing row.
	var err error
	if user.Profile.CreatedAt.IsZero() {
		err = h.Profiles.Create(ctx, profile)
	} else {
		err = h.Profiles.Update(ctx, profile)
	}
	if err != nil {
		return httpError(c, err)
	}
	user.Profile = profile
	return c.JSON(http.StatusOK, echo.Map{"profile": profile})
}

// SwitchProperty changes the active property and returns a token pair
// scoped to it.
func (h *AuthHandler) SwitchProperty(c echo.Context) error {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": string(auth.ErrInvalidToken), "message": "Authentication required"})
	}
	var req switchPropertyReq
	if err := c.Bind(&req); err != nil || req.PropertyID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "INVALID_REQUEST", "message": "property_id is required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	if err := h.Identity.SetActiveProperty(ctx, user, req.PropertyID); err != nil {
		return httpError(c, err)
	}
	pair, err := pairFor(h.Tokens, user)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, authResp{User: user, Tokens: pair})
}
