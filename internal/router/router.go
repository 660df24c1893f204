// Package router wires handlers to routes and composes the per-route
// authorization chains. The ordering inside each chain matters:
// Authenticate resolves the user, RequirePropertyAccess pins the request
// to one property, and the permission/ownership checks run against that
// pinned property.
package router

import (
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/verding/verding/internal/auth"
	"github.com/verding/verding/internal/config"
	"github.com/verding/verding/internal/handler"
	"github.com/verding/verding/internal/middleware"
	"github.com/verding/verding/internal/rbac"
	"github.com/verding/verding/internal/service"
)

// Deps bundles everything route registration needs. PropertyOwner
// resolves a property id to its creator for ownership checks.
type Deps struct {
	Tokens        *auth.TokenService
	Identity      *service.IdentityService
	Auth          *handler.AuthHandler
	Invitations   *handler.InvitationHandler
	Properties    *handler.PropertyHandler
	Roles         *handler.RoleHandler
	PropertyOwner middleware.OwnerLookup
	RateLimit     config.RateLimitConfig
	Redis         *redis.Client
}

// Register sets up every route on the Echo instance.
func Register(e *echo.Echo, d Deps) {
	e.GET("/healthz", handler.Health)

	authn := middleware.Authenticate(d.Tokens, d.Identity)
	// The limiter runs after Authenticate on protected groups so its
	// user-keyed strategies see a resolved user; on public routes every
	// caller buckets by IP/route.
	limit := middleware.RateLimit(d.RateLimit, d.Redis)

	// Public auth and invitation acceptance flows. The invitee holds a
	// token, not an account, so validate/accept take no bearer token.
	pub := e.Group("/v1/auth", limit)
	pub.POST("/register", d.Auth.Register)
	pub.POST("/login", d.Auth.Login)
	pub.POST("/refresh", d.Auth.Refresh)

	e.GET("/v1/invitations/validate/:token", d.Invitations.Validate, limit)
	e.POST("/v1/invitations/accept", d.Invitations.Accept, limit)

	// Session endpoints.
	me := e.Group("/v1/auth", authn, limit)
	me.GET("/me", d.Auth.Me)
	me.PUT("/profile", d.Auth.UpdateProfile)
	me.POST("/switch-property", d.Auth.SwitchProperty)

	// Role catalogue.
	e.GET("/v1/roles", d.Roles.List, authn, limit)
	e.GET("/v1/roles/assignable", d.Roles.Assignable, authn, limit, middleware.RequirePropertyAccess())

	// Properties and memberships.
	props := e.Group("/v1/properties", authn, limit)
	props.POST("", d.Properties.Create)
	props.GET("", d.Properties.List)

	scoped := props.Group("/:propertyId", middleware.RequirePropertyAccess())
	scoped.GET("", d.Properties.Get,
		middleware.RequirePermission(rbac.ResourceProperty, rbac.ActionRead))
	scoped.DELETE("", d.Properties.Delete,
		middleware.RequirePermission(rbac.ResourceProperty, rbac.ActionDelete),
		middleware.RequireResourceOwnership("propertyId", d.PropertyOwner))
	scoped.GET("/members", d.Properties.Members,
		middleware.RequirePermission(rbac.ResourceUser, rbac.ActionRead))
	scoped.PUT("/members/:userId", d.Properties.ChangeRole,
		middleware.RequirePermission(rbac.ResourceUser, rbac.ActionManage),
		middleware.RequireRoleManagement())
	scoped.DELETE("/members/:userId", d.Properties.RevokeAccess,
		middleware.RequirePermission(rbac.ResourceUser, rbac.ActionManage))
	scoped.POST("/access/reconcile", d.Properties.ReconcileAccess,
		middleware.RequireAdmin())
	scoped.GET("/invitations", d.Invitations.ListByProperty,
		middleware.RequirePermission(rbac.ResourceUser, rbac.ActionInvite))

	// Invitation management. Create resolves its property from the body,
	// so RequirePropertyAccess still applies.
	inv := e.Group("/v1/invitations", authn, limit)
	inv.POST("", d.Invitations.Create,
		middleware.RequirePropertyAccess(),
		middleware.RequirePermission(rbac.ResourceUser, rbac.ActionInvite))
	inv.GET("/sent", d.Invitations.ListSent)
	inv.DELETE("/:id", d.Invitations.Cancel)
	inv.POST("/:id/resend", d.Invitations.Resend)
	inv.POST("/cleanup", d.Invitations.Cleanup, middleware.RequireManagement())
}
