// Package service holds the business logic between handlers and storage.
// Services depend on narrow store interfaces so tests can substitute
// in-memory fakes for Postgres and Redis.
package service

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strings"

	"github.com/verding/verding/internal/auth"
	"github.com/verding/verding/internal/model"
	"github.com/verding/verding/internal/rbac"
)

// UserStore is the slice of the user repository the services need.
type UserStore interface {
	GetByID(ctx context.Context, id string) (model.User, error)
	GetByEmail(ctx context.Context, email string) (model.User, error)
	Create(ctx context.Context, email, password string, cost int) (string, error)
	SetPassword(ctx context.Context, id, password string, cost int) error
}

// ProfileStore reads and writes user profiles.
type ProfileStore interface {
	Get(ctx context.Context, userID string) (model.UserProfile, error)
	Create(ctx context.Context, p model.UserProfile) error
	Update(ctx context.Context, p model.UserProfile) error
	FullName(ctx context.Context, userID string) (string, error)
}

// AccessStore reads and writes property access grants.
type AccessStore interface {
	ListForUser(ctx context.Context, userID string) ([]model.PropertyAccess, error)
	Get(ctx context.Context, userID, propertyID string) (model.PropertyAccess, error)
	Grant(ctx context.Context, userID, propertyID string, role rbac.Role, grantedBy string) error
	UpdateRole(ctx context.Context, userID, propertyID string, role rbac.Role) error
	Revoke(ctx context.Context, userID, propertyID string) error
}

// SessionStore persists the per-user active property selection.
type SessionStore interface {
	ActiveProperty(ctx context.Context, userID string) string
	SetActiveProperty(ctx context.Context, userID, propertyID string) error
	ClearActiveProperty(ctx context.Context, userID string) error
}

// IdentityService resolves the authenticated user aggregate each request
// is authorized against: identity, profile, grants, active property and
// the active property's permissions.
type IdentityService struct {
	Users    UserStore
	Profiles ProfileStore
	Access   AccessStore
	Sessions SessionStore
}

func NewIdentityService(users UserStore, profiles ProfileStore, access AccessStore, sessions SessionStore) *IdentityService {
	return &IdentityService{Users: users, Profiles: profiles, Access: access, Sessions: sessions}
}

// Resolve builds the AuthenticatedUser for a verified token subject. The
// active property comes from the session store; a selection that no longer
// matches a grant is dropped and the first grant becomes active. Active
// permissions come from the active grant alone, never from a union across
// properties, and are all false when no property is active.
func (s *IdentityService) Resolve(ctx context.Context, userID, email string) (*model.AuthenticatedUser, error) {
	properties, err := s.Access.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	profile, err := s.Profiles.Get(ctx, userID)
	if errors.Is(err, sql.ErrNoRows) {
		profile = fallbackProfile(userID, email)
	} else if err != nil {
		return nil, err
	}

	user := &model.AuthenticatedUser{
		ID:         userID,
		Email:      email,
		Profile:    profile,
		Properties: properties,
	}

	active := s.Sessions.ActiveProperty(ctx, userID)
	if active != "" {
		if _, ok := user.AccessTo(active); !ok {
			_ = s.Sessions.ClearActiveProperty(ctx, userID)
			active = ""
		}
	}
	if active == "" && len(properties) > 0 {
		active = properties[0].PropertyID
	}
	user.ActivePropertyID = active

	if access, ok := user.AccessTo(active); ok {
		user.Permissions = access.Permissions()
	}
	return user, nil
}

// SetActiveProperty switches the user's property context after checking
// the user actually holds a grant there.
func (s *IdentityService) SetActiveProperty(ctx context.Context, user *model.AuthenticatedUser, propertyID string) error {
	access, ok := user.AccessTo(propertyID)
	if !ok {
		return auth.NewError(auth.ErrPropertyAccessDenied, http.StatusForbidden,
			"You do not have access to this property")
	}
	if err := s.Sessions.SetActiveProperty(ctx, user.ID, propertyID); err != nil {
		return err
	}
	user.ActivePropertyID = propertyID
	user.Permissions = access.Permissions()
	return nil
}

// CheckPropertyPermission reports whether the user's role on the given
// property allows the action. Missing grants and lookup failures evaluate
// to false.
func (s *IdentityService) CheckPropertyPermission(ctx context.Context, userID, propertyID string, resource rbac.Resource, action rbac.Action) bool {
	access, err := s.Access.Get(ctx, userID, propertyID)
	if err != nil {
		return false
	}
	return rbac.HasPermission(access.Role, resource, action)
}

// fallbackProfile synthesizes a display profile from the email local-part
// for identities that were provisioned without one.
func fallbackProfile(userID, email string) model.UserProfile {
	name := email
	if at := strings.Index(email, "@"); at > 0 {
		name = email[:at]
	}
	return model.UserProfile{ID: userID, Email: email, FullName: name}
}
