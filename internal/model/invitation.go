package model

import (
	"time"

	"github.com/verding/verding/internal/rbac"
)

// InvitationStatus is the state of an invitation. The machine is:
//
//	pending --accept--> accepted   (terminal)
//	pending --expire--> expired
//	pending --cancel--> cancelled  (terminal)
//	expired --resend--> pending    (new token, new expiry)
type InvitationStatus string

const (
	InvitationPending   InvitationStatus = "pending"
	InvitationAccepted  InvitationStatus = "accepted"
	InvitationExpired   InvitationStatus = "expired"
	InvitationCancelled InvitationStatus = "cancelled"
)

// DefaultInvitationTTLHours is applied when a creation request does not
// specify its own expiry window.
const DefaultInvitationTTLHours = 72

// Invitation mirrors the `invitations` table. The token is single-use:
// any transition away from pending makes it permanently unusable, and the
// repository performs those transitions as conditional updates so two
// concurrent acceptances cannot both win.
type Invitation struct {
	ID            string           `json:"id"`
	Email         string           `json:"email"`
	PropertyID    string           `json:"property_id"`
	PropertyName  string           `json:"property_name,omitempty"`
	InvitedBy     string           `json:"invited_by"`
	InvitedByName string           `json:"invited_by_name,omitempty"`
	Role          rbac.Role        `json:"role"`
	Status        InvitationStatus `json:"status"`
	// Token is omitted from list responses; only direct token lookups and
	// the creation response include it.
	Token      string     `json:"token,omitempty"`
	ExpiresAt  time.Time  `json:"expires_at"`
	CreatedAt  time.Time  `json:"created_at"`
	AcceptedAt *time.Time `json:"accepted_at,omitempty"`
	Message    string     `json:"message,omitempty"`
}

// CreateInvitationData is the input for creating an invitation.
type CreateInvitationData struct {
	Email          string    `json:"email"`
	PropertyID     string    `json:"property_id"`
	Role           rbac.Role `json:"role"`
	Message        string    `json:"message,omitempty"`
	ExpiresInHours int       `json:"expires_in_hours,omitempty"`
}

// AcceptInvitationData is the input for accepting an invitation. Password
// is optional when the invitee already has an account.
type AcceptInvitationData struct {
	Token    string `json:"token"`
	Password string `json:"password,omitempty"`
	FullName string `json:"full_name"`
	Phone    string `json:"phone,omitempty"`
}
