package service

import (
	"context"
	"database/sql"
	"errors"
	"net/http"

	"github.com/verding/verding/internal/auth"
	"github.com/verding/verding/internal/model"
	"github.com/verding/verding/internal/rbac"
)

// PropertyStore is the slice of the property repository the service
// needs.
type PropertyStore interface {
	Create(ctx context.Context, name, description, createdBy string) (model.Property, error)
	GetByID(ctx context.Context, id string) (model.Property, error)
	Delete(ctx context.Context, id string) error
}

// MemberStore extends grant access with the membership operations scoped
// to one property.
type MemberStore interface {
	AccessStore
	ListMembers(ctx context.Context, propertyID string) ([]model.PropertyAccess, error)
	Reconcile(ctx context.Context, propertyID string) (int64, error)
}

// PropertyService manages properties and their memberships.
type PropertyService struct {
	Properties PropertyStore
	Members    MemberStore
	Sessions   SessionStore
	Events     EventPublisher
}

func NewPropertyService(properties PropertyStore, members MemberStore, sessions SessionStore, events EventPublisher) *PropertyService {
	return &PropertyService{Properties: properties, Members: members, Sessions: sessions, Events: events}
}

// Create makes a new property and grants its creator the owner role.
// Creation is the bootstrap path into the role system: the owner
// requirement on property.create applies inside an existing property
// context, while a fresh property has no context yet.
func (s *PropertyService) Create(ctx context.Context, creator *model.AuthenticatedUser, name, description string) (model.Property, error) {
	prop, err := s.Properties.Create(ctx, name, description, creator.ID)
	if err != nil {
		return model.Property{}, err
	}
	if err := s.Members.Grant(ctx, creator.ID, prop.ID, rbac.RoleOwner, creator.ID); err != nil {
		return model.Property{}, err
	}
	return prop, nil
}

// Get fetches a property by id.
func (s *PropertyService) Get(ctx context.Context, id string) (model.Property, error) {
	prop, err := s.Properties.GetByID(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Property{}, auth.NewError(auth.ErrPropertyAccessDenied, http.StatusNotFound,
			"Property not found")
	}
	return prop, err
}

// Delete removes a property entirely. Route middleware has already
// verified the owner role and creator ownership by the time this runs.
func (s *PropertyService) Delete(ctx context.Context, propertyID string) error {
	err := s.Properties.Delete(ctx, propertyID)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.NewError(auth.ErrPropertyAccessDenied, http.StatusNotFound,
			"Property not found")
	}
	return err
}

// ListMembers returns every grant on a property.
func (s *PropertyService) ListMembers(ctx context.Context, propertyID string) ([]model.PropertyAccess, error) {
	return s.Members.ListMembers(ctx, propertyID)
}

// ChangeRole moves a member to a new role. The actor's role on the
// property must strictly outrank both the member's current role and the
// new one, and nobody changes their own role.
func (s *PropertyService) ChangeRole(ctx context.Context, actor *model.AuthenticatedUser, propertyID, targetUserID string, newRole rbac.Role) error {
	if targetUserID == actor.ID {
		return auth.NewError(auth.ErrInsufficientPermissions, http.StatusForbidden,
			"You cannot change your own role")
	}
	actorAccess, ok := actor.AccessTo(propertyID)
	if !ok {
		return auth.NewError(auth.ErrPropertyAccessDenied, http.StatusForbidden,
			"You do not have access to this property")
	}

	target, err := s.Members.Get(ctx, targetUserID, propertyID)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.NewError(auth.ErrUserNotFound, http.StatusNotFound,
			"User has no access to this property")
	}
	if err != nil {
		return err
	}

	if !rbac.CanChangeRole(actorAccess.Role, target.Role, newRole) {
		return auth.NewError(auth.ErrInsufficientPermissions, http.StatusForbidden,
			"Your role cannot move this user from "+string(target.Role)+" to "+string(newRole))
	}

	if err := s.Members.UpdateRole(ctx, targetUserID, propertyID, newRole); err != nil {
		return err
	}
	if s.Events != nil {
		s.Events.MemberRoleChanged(ctx, propertyID, targetUserID, target.Role, newRole)
	}
	return nil
}

// RevokeAccess removes a member's grant. The actor must strictly outrank
// the member; owners therefore cannot be revoked by anyone, themselves
// included.
func (s *PropertyService) RevokeAccess(ctx context.Context, actor *model.AuthenticatedUser, propertyID, targetUserID string) error {
	if targetUserID == actor.ID {
		return auth.NewError(auth.ErrInsufficientPermissions, http.StatusForbidden,
			"You cannot revoke your own access")
	}
	actorAccess, ok := actor.AccessTo(propertyID)
	if !ok {
		return auth.NewError(auth.ErrPropertyAccessDenied, http.StatusForbidden,
			"You do not have access to this property")
	}

	target, err := s.Members.Get(ctx, targetUserID, propertyID)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.NewError(auth.ErrUserNotFound, http.StatusNotFound,
			"User has no access to this property")
	}
	if err != nil {
		return err
	}

	if !rbac.CanManageRole(actorAccess.Role, target.Role) {
		return auth.NewError(auth.ErrInsufficientPermissions, http.StatusForbidden,
			"Your role cannot revoke a "+string(target.Role))
	}

	if err := s.Members.Revoke(ctx, targetUserID, propertyID); err != nil {
		return err
	}
	if s.Sessions != nil && s.Sessions.ActiveProperty(ctx, targetUserID) == propertyID {
		_ = s.Sessions.ClearActiveProperty(ctx, targetUserID)
	}
	return nil
}

// ReconcileAccess rewrites every grant's capability flags on the property
// to what its stored role implies, returning how many rows changed.
func (s *PropertyService) ReconcileAccess(ctx context.Context, propertyID string) (int64, error) {
	return s.Members.Reconcile(ctx, propertyID)
}
