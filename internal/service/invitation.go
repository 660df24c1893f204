package service

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/verding/verding/internal/auth"
	"github.com/verding/verding/internal/model"
	"github.com/verding/verding/internal/rbac"
	"github.com/verding/verding/internal/repository"
	"github.com/verding/verding/internal/utils"
)

// invitationTokenBytes gives 64 hex characters, the only credential an
// invitee holds.
const invitationTokenBytes = 32

// InvitationStore is the slice of the invitation repository the service
// needs.
type InvitationStore interface {
	Create(ctx context.Context, data model.CreateInvitationData, invitedBy, token string, expiresAt time.Time) (model.Invitation, error)
	HasPending(ctx context.Context, email, propertyID string) (bool, error)
	GetByToken(ctx context.Context, token string) (model.Invitation, error)
	GetByID(ctx context.Context, id string) (model.Invitation, error)
	ListByProperty(ctx context.Context, propertyID string) ([]model.Invitation, error)
	ListByInviter(ctx context.Context, userID string) ([]model.Invitation, error)
	MarkAccepted(ctx context.Context, id string) error
	MarkExpired(ctx context.Context, id string) error
	Cancel(ctx context.Context, id string) error
	Reissue(ctx context.Context, id, token string, expiresAt time.Time) error
	ExpireOverdue(ctx context.Context) (int64, error)
}

// EventPublisher fans domain events out to the message queue. Publishing
// is best-effort: implementations log failures and never block the
// request path.
type EventPublisher interface {
	InvitationCreated(ctx context.Context, inv model.Invitation)
	InvitationAccepted(ctx context.Context, inv model.Invitation, userID string)
	MemberRoleChanged(ctx context.Context, propertyID, userID string, oldRole, newRole rbac.Role)
}

// InvitationService runs the invitation state machine: create, validate,
// accept, cancel, resend, sweep.
type InvitationService struct {
	Invitations InvitationStore
	Users       UserStore
	Profiles    ProfileStore
	Access      AccessStore
	Events      EventPublisher

	BcryptCost int
	DefaultTTL time.Duration
}

func NewInvitationService(invitations InvitationStore, users UserStore, profiles ProfileStore, access AccessStore, events EventPublisher, bcryptCost int) *InvitationService {
	return &InvitationService{
		Invitations: invitations,
		Users:       users,
		Profiles:    profiles,
		Access:      access,
		Events:      events,
		BcryptCost:  bcryptCost,
		DefaultTTL:  model.DefaultInvitationTTLHours * time.Hour,
	}
}

// Create issues a new pending invitation. The inviter must hold a grant
// on the target property whose role both outranks the invited role and
// carries the user:invite permission; those checks run before anything is
// written.
func (s *InvitationService) Create(ctx context.Context, inviter *model.AuthenticatedUser, data model.CreateInvitationData) (model.Invitation, error) {
	role, ok := rbac.ParseRole(string(data.Role))
	if !ok {
		return model.Invitation{}, auth.NewError(auth.ErrInvitationCreateFailed, http.StatusBadRequest,
			"Unknown role: "+string(data.Role))
	}
	data.Role = role

	access, ok := inviter.AccessTo(data.PropertyID)
	if !ok {
		return model.Invitation{}, auth.NewError(auth.ErrPropertyAccessDenied, http.StatusForbidden,
			"You do not have access to this property")
	}
	if !rbac.CanInviteWithRole(access.Role, data.Role) {
		return model.Invitation{}, auth.NewError(auth.ErrInsufficientPermissions, http.StatusForbidden,
			"Your role cannot invite users with role "+string(data.Role))
	}

	if user, err := s.Users.GetByEmail(ctx, data.Email); err == nil {
		if _, err := s.Access.Get(ctx, user.ID, data.PropertyID); err == nil {
			return model.Invitation{}, auth.NewError(auth.ErrUserAlreadyExists, http.StatusConflict,
				"User already has access to this property")
		}
	} else if !errors.Is(err, sql.ErrNoRows) {
		return model.Invitation{}, err
	}

	pending, err := s.Invitations.HasPending(ctx, data.Email, data.PropertyID)
	if err != nil {
		return model.Invitation{}, err
	}
	if pending {
		return model.Invitation{}, auth.NewError(auth.ErrInvitationAlreadyExists, http.StatusConflict,
			"A pending invitation already exists for this email")
	}

	token, err := utils.SecureToken(invitationTokenBytes)
	if err != nil {
		return model.Invitation{}, err
	}
	ttl := s.DefaultTTL
	if data.ExpiresInHours > 0 {
		ttl = time.Duration(data.ExpiresInHours) * time.Hour
	}

	inv, err := s.Invitations.Create(ctx, data, inviter.ID, token, time.Now().UTC().Add(ttl))
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return model.Invitation{}, auth.NewError(auth.ErrInvitationAlreadyExists, http.StatusConflict,
				"A pending invitation already exists for this email")
		}
		return model.Invitation{}, auth.WrapError(auth.ErrInvitationCreateFailed, http.StatusInternalServerError,
			"Failed to create invitation", err)
	}

	if s.Events != nil {
		s.Events.InvitationCreated(ctx, inv)
	}
	return inv, nil
}

// ValidateToken looks an invitation up by token and checks it is still
// usable. Expiry is applied lazily here: a pending invitation past its
// deadline is flipped to expired before the error is returned, so the
// stored status converges with the observable one.
func (s *InvitationService) ValidateToken(ctx context.Context, token string) (model.Invitation, error) {
	inv, err := s.Invitations.GetByToken(ctx, token)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Invitation{}, auth.NewError(auth.ErrInvitationNotFound, http.StatusNotFound,
			"Invitation not found")
	}
	if err != nil {
		return model.Invitation{}, err
	}

	if inv.Status == model.InvitationPending && time.Now().After(inv.ExpiresAt) {
		// A concurrent transition losing here is fine, the invitation is
		// unusable either way.
		if err := s.Invitations.MarkExpired(ctx, inv.ID); err != nil && !errors.Is(err, repository.ErrInvalidStatus) {
			return model.Invitation{}, err
		}
		inv.Status = model.InvitationExpired
	}

	switch inv.Status {
	case model.InvitationPending:
		return inv, nil
	case model.InvitationExpired:
		return inv, auth.NewError(auth.ErrInvalidInvitationStatus, http.StatusGone, "Invitation has expired")
	default:
		return inv, auth.NewError(auth.ErrInvalidInvitationStatus, http.StatusGone,
			"Invitation is "+string(inv.Status))
	}
}

// AcceptResult is what Accept hands back to the login flow.
type AcceptResult struct {
	Invitation model.Invitation
	UserID     string
	NewUser    bool
}

// Accept consumes an invitation: the conditional accepted transition
// decides a single winner under concurrency, then the invitee identity is
// provisioned if needed and the property grant written with the role's
// default capability flags.
func (s *InvitationService) Accept(ctx context.Context, data model.AcceptInvitationData) (AcceptResult, error) {
	inv, err := s.ValidateToken(ctx, data.Token)
	if err != nil {
		return AcceptResult{}, err
	}

	userID, isNew, err := s.provisionInvitee(ctx, inv, data)
	if err != nil {
		return AcceptResult{}, err
	}

	if err := s.Invitations.MarkAccepted(ctx, inv.ID); err != nil {
		if errors.Is(err, repository.ErrInvalidStatus) {
			return AcceptResult{}, auth.NewError(auth.ErrInvalidInvitationStatus, http.StatusConflict,
				"Invitation is no longer pending")
		}
		return AcceptResult{}, auth.WrapError(auth.ErrInvitationUpdateFailed, http.StatusInternalServerError,
			"Failed to accept invitation", err)
	}
	inv.Status = model.InvitationAccepted

	if err := s.Access.Grant(ctx, userID, inv.PropertyID, inv.Role, inv.InvitedBy); err != nil &&
		!errors.Is(err, repository.ErrConflict) {
		return AcceptResult{}, err
	}

	if s.Events != nil {
		s.Events.InvitationAccepted(ctx, inv, userID)
	}
	return AcceptResult{Invitation: inv, UserID: userID, NewUser: isNew}, nil
}

// provisionInvitee resolves the invited email to a user id, creating the
// identity and profile when the email is unknown.
func (s *InvitationService) provisionInvitee(ctx context.Context, inv model.Invitation, data model.AcceptInvitationData) (string, bool, error) {
	user, err := s.Users.GetByEmail(ctx, inv.Email)
	if err == nil {
		// An invited account that never chose a password may do so now.
		if user.PasswordHash == "" && data.Password != "" {
			if err := s.Users.SetPassword(ctx, user.ID, data.Password, s.BcryptCost); err != nil {
				return "", false, err
			}
		}
		return user.ID, false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", false, err
	}

	id, err := s.Users.Create(ctx, inv.Email, data.Password, s.BcryptCost)
	if err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			// Lost a provisioning race; the other request created the user.
			existing, gerr := s.Users.GetByEmail(ctx, inv.Email)
			if gerr != nil {
				return "", false, gerr
			}
			return existing.ID, false, nil
		}
		return "", false, err
	}

	profile := model.UserProfile{ID: id, Email: inv.Email, FullName: data.FullName, Phone: data.Phone}
	if profile.FullName == "" {
		profile.FullName = fallbackProfile(id, inv.Email).FullName
	}
	if err := s.Profiles.Create(ctx, profile); err != nil {
		return "", false, err
	}
	return id, true, nil
}

// Cancel voids a pending invitation. Only the original inviter or an
// admin/owner of the invitation's property may cancel.
func (s *InvitationService) Cancel(ctx context.Context, actor *model.AuthenticatedUser, invitationID string) error {
	inv, err := s.getForManage(ctx, actor, invitationID)
	if err != nil {
		return err
	}
	if err := s.Invitations.Cancel(ctx, inv.ID); err != nil {
		if errors.Is(err, repository.ErrInvalidStatus) {
			return auth.NewError(auth.ErrInvalidInvitationStatus, http.StatusConflict,
				"Only pending invitations can be cancelled")
		}
		return auth.WrapError(auth.ErrInvitationUpdateFailed, http.StatusInternalServerError,
			"Failed to cancel invitation", err)
	}
	return nil
}

// Resend reissues a pending or expired invitation with a fresh token and
// expiry window. Accepted and cancelled invitations are terminal.
func (s *InvitationService) Resend(ctx context.Context, actor *model.AuthenticatedUser, invitationID string) (model.Invitation, error) {
	inv, err := s.getForManage(ctx, actor, invitationID)
	if err != nil {
		return model.Invitation{}, err
	}

	token, err := utils.SecureToken(invitationTokenBytes)
	if err != nil {
		return model.Invitation{}, err
	}
	expiresAt := time.Now().UTC().Add(s.DefaultTTL)

	if err := s.Invitations.Reissue(ctx, inv.ID, token, expiresAt); err != nil {
		if errors.Is(err, repository.ErrInvalidStatus) {
			return model.Invitation{}, auth.NewError(auth.ErrInvalidInvitationStatus, http.StatusConflict,
				"Only pending or expired invitations can be resent")
		}
		return model.Invitation{}, auth.WrapError(auth.ErrInvitationUpdateFailed, http.StatusInternalServerError,
			"Failed to resend invitation", err)
	}

	inv.Status = model.InvitationPending
	inv.Token = token
	inv.ExpiresAt = expiresAt
	inv.AcceptedAt = nil

	if s.Events != nil {
		s.Events.InvitationCreated(ctx, inv)
	}
	return inv, nil
}

// getForManage loads an invitation and authorizes a management action on
// it: the inviter themselves, or an admin/owner of the property.
func (s *InvitationService) getForManage(ctx context.Context, actor *model.AuthenticatedUser, invitationID string) (model.Invitation, error) {
	inv, err := s.Invitations.GetByID(ctx, invitationID)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Invitation{}, auth.NewError(auth.ErrInvitationNotFound, http.StatusNotFound,
			"Invitation not found")
	}
	if err != nil {
		return model.Invitation{}, err
	}

	if inv.InvitedBy == actor.ID {
		return inv, nil
	}
	if access, ok := actor.AccessTo(inv.PropertyID); ok && rbac.HasAdminPermissions(access.Role) {
		return inv, nil
	}
	return model.Invitation{}, auth.NewError(auth.ErrInsufficientPermissions, http.StatusForbidden,
		"You cannot manage this invitation")
}

// PropertyInvitations lists a property's invitations with tokens
// stripped.
func (s *InvitationService) PropertyInvitations(ctx context.Context, propertyID string) ([]model.Invitation, error) {
	return s.Invitations.ListByProperty(ctx, propertyID)
}

// SentInvitations lists the invitations the user has sent, tokens
// stripped.
func (s *InvitationService) SentInvitations(ctx context.Context, userID string) ([]model.Invitation, error) {
	return s.Invitations.ListByInviter(ctx, userID)
}

// CleanupExpired sweeps overdue pending invitations to expired, returning
// the number flipped.
func (s *InvitationService) CleanupExpired(ctx context.Context) (int64, error) {
	return s.Invitations.ExpireOverdue(ctx)
}
