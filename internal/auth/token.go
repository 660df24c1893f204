// Package auth implements the JWT token lifecycle and the typed error
// taxonomy shared by the authorization middleware and services. Tokens are
// HS256-signed and bearer-owned: possession implies the right to the
// claims, and there is no server-side revocation list.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/verding/verding/internal/rbac"
)

const (
	tokenIssuer   = "verding-backend"
	tokenAudience = "verding-app"

	// MinSecretLength is enforced at construction so a weak signing secret
	// fails the process at startup, not on the first request.
	MinSecretLength = 32

	DefaultAccessTTL  = 15 * time.Minute
	DefaultRefreshTTL = 7 * 24 * time.Hour
)

// Claims is the access-token claim set. Role, PropertyID and Permissions
// are present only when the token was issued with property context.
type Claims struct {
	Email       string            `json:"email"`
	Role        string            `json:"role,omitempty"`
	PropertyID  string            `json:"property_id,omitempty"`
	Permissions *rbac.Permissions `json:"permissions,omitempty"`
	TokenType   string            `json:"type,omitempty"`
	jwt.RegisteredClaims
}

// TokenPair is the shape returned to clients on login/refresh.
type TokenPair struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

// TokenService issues and verifies access and refresh tokens with a shared
// secret. It is safe for concurrent use.
type TokenService struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewTokenService validates the signing secret and returns a service with
// the given TTLs. Zero TTLs fall back to the defaults (15m access, 7d
// refresh).
func NewTokenService(secret string, accessTTL, refreshTTL time.Duration) (*TokenService, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("jwt secret must be at least %d characters, got %d", MinSecretLength, len(secret))
	}
	if accessTTL == 0 {
		accessTTL = DefaultAccessTTL
	}
	if refreshTTL == 0 {
		refreshTTL = DefaultRefreshTTL
	}
	return &TokenService{secret: []byte(secret), accessTTL: accessTTL, refreshTTL: refreshTTL}, nil
}

// AccessToken signs a short-lived token carrying identity plus optional
// property-scoped authorization claims.
func (s *TokenService) AccessToken(userID, email string, role rbac.Role, propertyID string, perms *rbac.Permissions) (string, error) {
	now := time.Now().UTC()
	claims := Claims{
		Email:       email,
		Role:        string(role),
		PropertyID:  propertyID,
		Permissions: perms,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    tokenIssuer,
			Audience:  jwt.ClaimStrings{tokenAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// RefreshToken signs a long-lived token carrying identity only. The
// type:"refresh" claim keeps access tokens from being replayed against the
// refresh endpoint.
func (s *TokenService) RefreshToken(userID, email string) (string, error) {
	now := time.Now().UTC()
	claims := Claims{
		Email:     email,
		TokenType: "refresh",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    tokenIssuer,
			Audience:  jwt.ClaimStrings{tokenAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.refreshTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Pair issues an access/refresh token pair for a user.
func (s *TokenService) Pair(userID, email string, role rbac.Role, propertyID string, perms *rbac.Permissions) (TokenPair, error) {
	access, err := s.AccessToken(userID, email, role, propertyID, perms)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := s.RefreshToken(userID, email)
	if err != nil {
		return TokenPair{}, err
	}
	expiresAt := time.Now().UTC().Add(s.accessTTL)
	if exp, err := Expiration(access); err == nil {
		expiresAt = exp
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh, ExpiresAt: expiresAt}, nil
}

func (s *TokenService) parse(token string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithIssuer(tokenIssuer), jwt.WithAudience(tokenAudience))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, NewError(ErrTokenExpired, http.StatusUnauthorized, "Token has expired")
		}
		return nil, WrapError(ErrInvalidToken, http.StatusUnauthorized, "Invalid token", err)
	}
	return claims, nil
}

// Verify checks signature, expiry, issuer and audience and returns the
// claims. Failures are typed: TOKEN_EXPIRED past exp, INVALID_TOKEN for
// everything else.
func (s *TokenService) Verify(token string) (*Claims, error) {
	return s.parse(token)
}

// VerifyRefresh verifies a token and additionally requires the
// type:"refresh" claim, so a structurally valid access token is rejected
// here even though its signature checks out.
func (s *TokenService) VerifyRefresh(token string) (userID, email string, err error) {
	claims, err := s.parse(token)
	if err != nil {
		return "", "", err
	}
	if claims.TokenType != "refresh" {
		return "", "", NewError(ErrInvalidToken, http.StatusUnauthorized, "Invalid refresh token")
	}
	return claims.Subject, claims.Email, nil
}

// IsExpired reports whether a token is past its expiry without verifying
// the signature. Any decode failure counts as expired (fail closed).
func IsExpired(token string) bool {
	exp, err := Expiration(token)
	if err != nil {
		return true
	}
	return exp.Before(time.Now())
}

// Expiration decodes the exp claim without signature verification.
func Expiration(token string) (time.Time, error) {
	claims := &Claims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return time.Time{}, err
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, errors.New("token has no expiry")
	}
	return claims.ExpiresAt.Time, nil
}

// ExtractBearerToken parses an Authorization header of the form
// "Bearer <token>". A missing or malformed header yields "", not an
// error: absence of credentials is an expected state the middleware maps
// to 401.
func ExtractBearerToken(header string) string {
	parts := strings.Split(header, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return ""
	}
	return parts[1]
}
