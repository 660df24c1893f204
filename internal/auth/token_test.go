package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verding/verding/internal/rbac"
)

const testSecret = "0123456789abcdef0123456789abcdef" // 32 chars

func newTestService(t *testing.T, accessTTL, refreshTTL time.Duration) *TokenService {
	t.Helper()
	svc, err := NewTokenService(testSecret, accessTTL, refreshTTL)
	require.NoError(t, err)
	return svc
}

func TestNewTokenServiceRejectsShortSecret(t *testing.T) {
	_, err := NewTokenService("too-short", 0, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "32")
}

func TestAccessTokenRoundTrip(t *testing.T) {
	svc := newTestService(t, 0, 0)
	perms := &rbac.Permissions{CanView: true, CanEdit: true}

	token, err := svc.AccessToken("user-1", "ana@example.com", rbac.RoleManager, "prop-1", perms)
	require.NoError(t, err)

	claims, err := svc.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, "ana@example.com", claims.Email)
	assert.Equal(t, string(rbac.RoleManager), claims.Role)
	assert.Equal(t, "prop-1", claims.PropertyID)
	require.NotNil(t, claims.Permissions)
	assert.True(t, claims.Permissions.CanView)
	assert.True(t, claims.Permissions.CanEdit)
	assert.False(t, claims.Permissions.CanManage)
}

func TestZeroTTLFallsBackToDefaults(t *testing.T) {
	// Zero means "use the default"; a negative TTL is honoured as-is so
	// tests can mint already-expired tokens.
	svc := newTestService(t, 0, 0)
	access, err := svc.AccessToken("u", "e@example.com", "", "", nil)
	require.NoError(t, err)
	refresh, err := svc.RefreshToken("u", "e@example.com")
	require.NoError(t, err)

	accessExp, err := Expiration(access)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(DefaultAccessTTL), accessExp, 5*time.Second)

	refreshExp, err := Expiration(refresh)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(DefaultRefreshTTL), refreshExp, 5*time.Second)
}

func TestVerifyExpiredToken(t *testing.T) {
	svc := newTestService(t, -time.Minute, 0)
	token, err := svc.AccessToken("user-1", "ana@example.com", "", "", nil)
	require.NoError(t, err)

	_, err = svc.Verify(token)
	require.Error(t, err)
	assert.True(t, IsType(err, ErrTokenExpired))
	assert.Equal(t, 401, StatusOf(err))
}

func TestVerifyRejectsForeignSignature(t *testing.T) {
	svc := newTestService(t, 0, 0)
	other, err := NewTokenService(strings.Repeat("x", 32), 0, 0)
	require.NoError(t, err)

	token, err := other.AccessToken("user-1", "ana@example.com", "", "", nil)
	require.NoError(t, err)

	_, err = svc.Verify(token)
	require.Error(t, err)
	assert.True(t, IsType(err, ErrInvalidToken))
}

func TestVerifyRejectsGarbage(t *testing.T) {
	svc := newTestService(t, 0, 0)
	_, err := svc.Verify("not.a.jwt")
	require.Error(t, err)
	assert.True(t, IsType(err, ErrInvalidToken))
}

func TestRefreshTokenRoundTrip(t *testing.T) {
	svc := newTestService(t, 0, 0)
	token, err := svc.RefreshToken("user-2", "bo@example.com")
	require.NoError(t, err)

	uid, email, err := svc.VerifyRefresh(token)
	require.NoError(t, err)
	assert.Equal(t, "user-2", uid)
	assert.Equal(t, "bo@example.com", email)
}

func TestVerifyRefreshRejectsAccessToken(t *testing.T) {
	// An access token carries a valid signature but no type:"refresh"
	// claim, so the refresh endpoint must not accept it.
	svc := newTestService(t, 0, 0)
	access, err := svc.AccessToken("user-2", "bo@example.com", rbac.RoleViewer, "", nil)
	require.NoError(t, err)

	_, _, err = svc.VerifyRefresh(access)
	require.Error(t, err)
	assert.True(t, IsType(err, ErrInvalidToken))
}

func TestIsExpired(t *testing.T) {
	svc := newTestService(t, time.Hour, 0)
	token, err := svc.AccessToken("u", "e@example.com", "", "", nil)
	require.NoError(t, err)
	assert.False(t, IsExpired(token))

	expiredSvc := newTestService(t, -time.Minute, 0)
	expired, err := expiredSvc.AccessToken("u", "e@example.com", "", "", nil)
	require.NoError(t, err)
	assert.True(t, IsExpired(expired))

	// Undecodable input counts as expired.
	assert.True(t, IsExpired("garbage"))
	assert.True(t, IsExpired(""))
}

func TestExtractBearerToken(t *testing.T) {
	assert.Equal(t, "abc", ExtractBearerToken("Bearer abc"))
	assert.Equal(t, "", ExtractBearerToken(""))
	assert.Equal(t, "", ExtractBearerToken("Basic abc"))
	assert.Equal(t, "", ExtractBearerToken("Bearer"))
	assert.Equal(t, "", ExtractBearerToken("Bearer a b"))
}

func TestPairShape(t *testing.T) {
	svc := newTestService(t, 15*time.Minute, 0)
	pair, err := svc.Pair("user-3", "cy@example.com", rbac.RoleOwner, "prop-9", nil)
	require.NoError(t, err)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), pair.ExpiresAt, 5*time.Second)

	// Refresh half of the pair passes type discrimination, access half fails.
	_, _, err = svc.VerifyRefresh(pair.RefreshToken)
	require.NoError(t, err)
	_, _, err = svc.VerifyRefresh(pair.AccessToken)
	require.Error(t, err)
}
