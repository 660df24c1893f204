package handler

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verding/verding/internal/model"
	"github.com/verding/verding/internal/service"
)

// stubInvitations serves token lookups from memory. The embedded
// interface covers the methods the validate flow never touches.
type stubInvitations struct {
	service.InvitationStore
	byToken map[string]*model.Invitation
}

func (s *stubInvitations) GetByToken(ctx context.Context, token string) (model.Invitation, error) {
	if inv, ok := s.byToken[token]; ok {
		return *inv, nil
	}
	return model.Invitation{}, sql.ErrNoRows
}

func (s *stubInvitations) MarkExpired(ctx context.Context, id string) error {
	for _, inv := range s.byToken {
		if inv.ID == id {
			inv.Status = model.InvitationExpired
		}
	}
	return nil
}

func validateToken(t *testing.T, store *stubInvitations, token string) (int, map[string]interface{}) {
	t.Helper()
	h := NewInvitationHandler(service.NewInvitationService(store, nil, nil, nil, nil, 0), nil, nil)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/v1/invitations/validate/"+token, nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath("/v1/invitations/validate/:token")
	c.SetParamNames("token")
	c.SetParamValues(token)

	require.NoError(t, h.Validate(c))
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec.Code, body
}

func TestValidateUnknownTokenReportsInvalid(t *testing.T) {
	// An unknown token is a normal outcome for the public validate
	// endpoint: 200 with valid:false, not an error payload.
	store := &stubInvitations{byToken: map[string]*model.Invitation{}}

	code, body := validateToken(t, store, "deadbeef")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, body["valid"])
	assert.Equal(t, "Invalid invitation token", body["reason"])
	assert.NotContains(t, body, "error")
}

func TestValidatePendingTokenStripsToken(t *testing.T) {
	store := &stubInvitations{byToken: map[string]*model.Invitation{
		"tok-1": {
			ID:        "inv-1",
			Email:     "ana@example.com",
			Status:    model.InvitationPending,
			Token:     "tok-1",
			ExpiresAt: time.Now().Add(time.Hour),
		},
	}}

	code, body := validateToken(t, store, "tok-1")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["valid"])
	inv, ok := body["invitation"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "inv-1", inv["id"])
	assert.NotContains(t, inv, "token")
}

func TestValidateOverdueTokenExpiresLazily(t *testing.T) {
	store := &stubInvitations{byToken: map[string]*model.Invitation{
		"tok-2": {
			ID:        "inv-2",
			Status:    model.InvitationPending,
			ExpiresAt: time.Now().Add(-time.Hour),
		},
	}}

	code, body := validateToken(t, store, "tok-2")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, body["valid"])
	assert.Equal(t, string(model.InvitationExpired), body["status"])
	assert.NotEmpty(t, body["reason"])
	assert.Equal(t, model.InvitationExpired, store.byToken["tok-2"].Status)
}
