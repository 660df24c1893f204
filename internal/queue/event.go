// Package queue defines the domain events exchanged over the message
// broker, the publisher that emits them, and the background consumer that
// turns them into notification log entries.
package queue

// Queue names double as routing keys on the default exchange.
const (
	InvitationCreatedQueue = "invitation.created"
	InvitationAcceptedQueue = "invitation.accepted"
	MemberRoleChangedQueue = "member.role_changed"
)

// InvitationCreatedEvent is published when an invitation is issued or
// resent. It deliberately omits the token: the queue is for notification
// fan-out, not credential transport.
type InvitationCreatedEvent struct {
	InvitationID string `json:"invitation_id"`
	Email        string `json:"email"`
	PropertyID   string `json:"property_id"`
	PropertyName string `json:"property_name,omitempty"`
	Role         string `json:"role"`
	InvitedBy    string `json:"invited_by"`
	Message      string `json:"message,omitempty"`
	ExpiresAt    string `json:"expires_at"`
	CreatedAt    string `json:"created_at"`
}

// InvitationAcceptedEvent is published when an invitee joins a property.
type InvitationAcceptedEvent struct {
	InvitationID string `json:"invitation_id"`
	Email        string `json:"email"`
	PropertyID   string `json:"property_id"`
	PropertyName string `json:"property_name,omitempty"`
	Role         string `json:"role"`
	UserID       string `json:"user_id"`
	AcceptedAt   string `json:"accepted_at"`
}

// MemberRoleChangedEvent is published when a member's role on a property
// changes.
type MemberRoleChangedEvent struct {
	PropertyID string `json:"property_id"`
	UserID     string `json:"user_id"`
	OldRole    string `json:"old_role"`
	NewRole    string `json:"new_role"`
	ChangedAt  string `json:"changed_at"`
}
