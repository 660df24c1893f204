package model

import "time"

// User represents an identity record as stored in the `users` table. The
// password hash stays internal to the repository and handler layers;
// response types never carry it.
//
// Fields:
//  ID           – UUID primary key.
//  Email        – unique, lower-cased email address.
//  PasswordHash – bcrypt hash; empty for invited accounts that have not
//                 set a password yet.
//  IsActive     – whether the account may authenticate.
//  CreatedAt    – timestamp of creation.
//  UpdatedAt    – timestamp of last update.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// UserProfile mirrors the `user_profiles` table. A profile row may be
// missing for freshly provisioned identities; callers synthesize one from
// the email local-part in that case.
type UserProfile struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FullName  string    `json:"full_name"`
	AvatarURL string    `json:"avatar_url,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	Timezone  string    `json:"timezone,omitempty"`
	Language  string    `json:"language,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
