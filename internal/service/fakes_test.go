package service

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"time"

	"github.com/verding/verding/internal/model"
	"github.com/verding/verding/internal/rbac"
	"github.com/verding/verding/internal/repository"
)

// In-memory stores implementing the service interfaces, so the business
// rules can be exercised end to end without Postgres or Redis.

type fakeUsers struct {
	users  []model.User
	nextID int
}

func (f *fakeUsers) GetByEmail(_ context.Context, email string) (model.User, error) {
	email = strings.ToLower(email)
	for _, u := range f.users {
		if u.Email == email {
			return u, nil
		}
	}
	return model.User{}, sql.ErrNoRows
}

func (f *fakeUsers) GetByID(_ context.Context, id string) (model.User, error) {
	for _, u := range f.users {
		if u.ID == id {
			return u, nil
		}
	}
	return model.User{}, sql.ErrNoRows
}

func (f *fakeUsers) Create(ctx context.Context, email, password string, _ int) (string, error) {
	if _, err := f.GetByEmail(ctx, email); err == nil {
		return "", repository.ErrEmailExists
	}
	f.nextID++
	id := "user-" + strconv.Itoa(f.nextID)
	hash := ""
	if password != "" {
		hash = "hashed:" + password
	}
	f.users = append(f.users, model.User{ID: id, Email: strings.ToLower(email), PasswordHash: hash, IsActive: true})
	return id, nil
}

func (f *fakeUsers) SetPassword(_ context.Context, id, password string, _ int) error {
	for i := range f.users {
		if f.users[i].ID == id {
			f.users[i].PasswordHash = "hashed:" + password
			return nil
		}
	}
	return sql.ErrNoRows
}

type fakeProfiles struct {
	profiles map[string]model.UserProfile
}

func newFakeProfiles() *fakeProfiles {
	return &fakeProfiles{profiles: map[string]model.UserProfile{}}
}

func (f *fakeProfiles) Get(_ context.Context, userID string) (model.UserProfile, error) {
	p, ok := f.profiles[userID]
	if !ok {
		return model.UserProfile{}, sql.ErrNoRows
	}
	return p, nil
}

func (f *fakeProfiles) Create(_ context.Context, p model.UserProfile) error {
	f.profiles[p.ID] = p
	return nil
}

func (f *fakeProfiles) Update(_ context.Context, p model.UserProfile) error {
	f.profiles[p.ID] = p
	return nil
}

func (f *fakeProfiles) FullName(_ context.Context, userID string) (string, error) {
	return f.profiles[userID].FullName, nil
}

type fakeAccess struct {
	grants []model.PropertyAccess
}

func (f *fakeAccess) ListForUser(_ context.Context, userID string) ([]model.PropertyAccess, error) {
	var out []model.PropertyAccess
	for _, g := range f.grants {
		if g.UserID == userID {
			out = append(out, g)
		}
	}
	return out, nil
}

func (f *fakeAccess) ListMembers(_ context.Context, propertyID string) ([]model.PropertyAccess, error) {
	var out []model.PropertyAccess
	for _, g := range f.grants {
		if g.PropertyID == propertyID {
			out = append(out, g)
		}
	}
	return out, nil
}

func (f *fakeAccess) Get(_ context.Context, userID, propertyID string) (model.PropertyAccess, error) {
	for _, g := range f.grants {
		if g.UserID == userID && g.PropertyID == propertyID {
			return g, nil
		}
	}
	return model.PropertyAccess{}, sql.ErrNoRows
}

func (f *fakeAccess) Grant(ctx context.Context, userID, propertyID string, role rbac.Role, grantedBy string) error {
	if _, err := f.Get(ctx, userID, propertyID); err == nil {
		return repository.ErrConflict
	}
	perms := rbac.DefaultPermissionsForRole(role)
	f.grants = append(f.grants, model.PropertyAccess{
		PropertyID: propertyID,
		UserID:     userID,
		Role:       role,
		CanView:    perms.CanView,
		CanEdit:    perms.CanEdit,
		CanManage:  perms.CanManage,
		GrantedBy:  grantedBy,
		GrantedAt:  time.Now(),
	})
	return nil
}

func (f *fakeAccess) UpdateRole(_ context.Context, userID, propertyID string, role rbac.Role) error {
	for i := range f.grants {
		if f.grants[i].UserID == userID && f.grants[i].PropertyID == propertyID {
			perms := rbac.DefaultPermissionsForRole(role)
			f.grants[i].Role = role
			f.grants[i].CanView = perms.CanView
			f.grants[i].CanEdit = perms.CanEdit
			f.grants[i].CanManage = perms.CanManage
			return nil
		}
	}
	return sql.ErrNoRows
}

func (f *fakeAccess) Revoke(_ context.Context, userID, propertyID string) error {
	for i := range f.grants {
		if f.grants[i].UserID == userID && f.grants[i].PropertyID == propertyID {
			f.grants = append(f.grants[:i], f.grants[i+1:]...)
			return nil
		}
	}
	return sql.ErrNoRows
}

func (f *fakeAccess) Reconcile(_ context.Context, propertyID string) (int64, error) {
	var changed int64
	for i := range f.grants {
		if f.grants[i].PropertyID != propertyID {
			continue
		}
		perms := rbac.DefaultPermissionsForRole(f.grants[i].Role)
		if f.grants[i].CanView != perms.CanView || f.grants[i].CanEdit != perms.CanEdit || f.grants[i].CanManage != perms.CanManage {
			f.grants[i].CanView = perms.CanView
			f.grants[i].CanEdit = perms.CanEdit
			f.grants[i].CanManage = perms.CanManage
			changed++
		}
	}
	return changed, nil
}

type fakeSessions struct {
	active map[string]string
}

func newFakeSessions() *fakeSessions { return &fakeSessions{active: map[string]string{}} }

func (f *fakeSessions) ActiveProperty(_ context.Context, userID string) string {
	return f.active[userID]
}

func (f *fakeSessions) SetActiveProperty(_ context.Context, userID, propertyID string) error {
	f.active[userID] = propertyID
	return nil
}

func (f *fakeSessions) ClearActiveProperty(_ context.Context, userID string) error {
	delete(f.active, userID)
	return nil
}

type fakeInvitations struct {
	invitations []*model.Invitation
	nextID      int
}

func (f *fakeInvitations) Create(_ context.Context, data model.CreateInvitationData, invitedBy, token string, expiresAt time.Time) (model.Invitation, error) {
	email := strings.ToLower(data.Email)
	for _, inv := range f.invitations {
		if inv.Email == email && inv.PropertyID == data.PropertyID && inv.Status == model.InvitationPending {
			return model.Invitation{}, repository.ErrConflict
		}
	}
	f.nextID++
	inv := &model.Invitation{
		ID:         "inv-" + strconv.Itoa(f.nextID),
		Email:      email,
		PropertyID: data.PropertyID,
		InvitedBy:  invitedBy,
		Role:       data.Role,
		Status:     model.InvitationPending,
		Token:      token,
		ExpiresAt:  expiresAt,
		CreatedAt:  time.Now(),
		Message:    data.Message,
	}
	f.invitations = append(f.invitations, inv)
	return *inv, nil
}

func (f *fakeInvitations) HasPending(_ context.Context, email, propertyID string) (bool, error) {
	email = strings.ToLower(email)
	for _, inv := range f.invitations {
		if inv.Email == email && inv.PropertyID == propertyID && inv.Status == model.InvitationPending {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeInvitations) GetByToken(_ context.Context, token string) (model.Invitation, error) {
	for _, inv := range f.invitations {
		if inv.Token == token {
			return *inv, nil
		}
	}
	return model.Invitation{}, sql.ErrNoRows
}

func (f *fakeInvitations) GetByID(_ context.Context, id string) (model.Invitation, error) {
	for _, inv := range f.invitations {
		if inv.ID == id {
			return *inv, nil
		}
	}
	return model.Invitation{}, sql.ErrNoRows
}

func (f *fakeInvitations) ListByProperty(_ context.Context, propertyID string) ([]model.Invitation, error) {
	var out []model.Invitation
	for _, inv := range f.invitations {
		if inv.PropertyID == propertyID {
			c := *inv
			c.Token = ""
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeInvitations) ListByInviter(_ context.Context, userID string) ([]model.Invitation, error) {
	var out []model.Invitation
	for _, inv := range f.invitations {
		if inv.InvitedBy == userID {
			c := *inv
			c.Token = ""
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeInvitations) transition(id string, from []model.InvitationStatus, to model.InvitationStatus) error {
	for _, inv := range f.invitations {
		if inv.ID != id {
			continue
		}
		for _, s := range from {
			if inv.Status == s {
				inv.Status = to
				return nil
			}
		}
		return repository.ErrInvalidStatus
	}
	return repository.ErrInvalidStatus
}

func (f *fakeInvitations) MarkAccepted(_ context.Context, id string) error {
	if err := f.transition(id, []model.InvitationStatus{model.InvitationPending}, model.InvitationAccepted); err != nil {
		return err
	}
	for _, inv := range f.invitations {
		if inv.ID == id {
			now := time.Now()
			inv.AcceptedAt = &now
		}
	}
	return nil
}

func (f *fakeInvitations) MarkExpired(_ context.Context, id string) error {
	return f.transition(id, []model.InvitationStatus{model.InvitationPending}, model.InvitationExpired)
}

func (f *fakeInvitations) Cancel(_ context.Context, id string) error {
	return f.transition(id, []model.InvitationStatus{model.InvitationPending}, model.InvitationCancelled)
}

func (f *fakeInvitations) Reissue(_ context.Context, id, token string, expiresAt time.Time) error {
	err := f.transition(id,
		[]model.InvitationStatus{model.InvitationPending, model.InvitationExpired}, model.InvitationPending)
	if err != nil {
		return err
	}
	for _, inv := range f.invitations {
		if inv.ID == id {
			inv.Token = token
			inv.ExpiresAt = expiresAt
			inv.AcceptedAt = nil
		}
	}
	return nil
}

func (f *fakeInvitations) ExpireOverdue(_ context.Context) (int64, error) {
	var n int64
	now := time.Now()
	for _, inv := range f.invitations {
		if inv.Status == model.InvitationPending && inv.ExpiresAt.Before(now) {
			inv.Status = model.InvitationExpired
			n++
		}
	}
	return n, nil
}

type fakeEvents struct {
	created      []model.Invitation
	accepted     []model.Invitation
	roleChanges  int
	lastOldRole  rbac.Role
	lastNewRole  rbac.Role
	lastProperty string
}

func (f *fakeEvents) InvitationCreated(_ context.Context, inv model.Invitation) {
	f.created = append(f.created, inv)
}

func (f *fakeEvents) InvitationAccepted(_ context.Context, inv model.Invitation, _ string) {
	f.accepted = append(f.accepted, inv)
}

func (f *fakeEvents) MemberRoleChanged(_ context.Context, propertyID, _ string, oldRole, newRole rbac.Role) {
	f.roleChanges++
	f.lastProperty = propertyID
	f.lastOldRole = oldRole
	f.lastNewRole = newRole
}
