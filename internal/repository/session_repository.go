package repository

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// SessionRepo stores each user's active property selection in Redis. The
// selection is a convenience, not a credential: losing it only means the
// user picks a property again, so the repo degrades to a no-op when Redis
// is unavailable rather than failing requests.
type SessionRepo struct {
	Client *redis.Client
	TTL    time.Duration
}

// DefaultSessionTTL keeps stale selections from living forever.
const DefaultSessionTTL = 30 * 24 * time.Hour

func NewSessionRepo(client *redis.Client) *SessionRepo {
	return &SessionRepo{Client: client, TTL: DefaultSessionTTL}
}

func sessionKey(userID string) string { return "session:active_property:" + userID }

// ActiveProperty returns the user's stored selection, or "" when none is
// set or Redis is unreachable.
func (r *SessionRepo) ActiveProperty(ctx context.Context, userID string) string {
	if r == nil || r.Client == nil {
		return ""
	}
	val, err := r.Client.Get(ctx, sessionKey(userID)).Result()
	if err != nil {
		return ""
	}
	return val
}

// SetActiveProperty stores the user's selection.
func (r *SessionRepo) SetActiveProperty(ctx context.Context, userID, propertyID string) error {
	if r == nil || r.Client == nil {
		return nil
	}
	return r.Client.Set(ctx, sessionKey(userID), propertyID, r.TTL).Err()
}

// ClearActiveProperty drops the selection, used when the selected
// property's access is revoked.
func (r *SessionRepo) ClearActiveProperty(ctx context.Context, userID string) error {
	if r == nil || r.Client == nil {
		return nil
	}
	return r.Client.Del(ctx, sessionKey(userID)).Err()
}
