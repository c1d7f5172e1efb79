package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mstrand/foyer/internal/auth"
	"github.com/mstrand/foyer/internal/models"
	pkghttp "github.com/mstrand/foyer/pkg/http"
)

func newAccountHandler(svc *mockAccountService) *AccountHandler {
	return NewAccountHandler(svc, stubAvatars{}, testTokenManager(), auth.CookieConfig{})
}

func TestMe_RequiresSession(t *testing.T) {
	h := newAccountHandler(&mockAccountService{})

	rec := httptest.NewRecorder()
	h.Me(rec, httptest.NewRequest(http.MethodGet, "/api/account", nil))

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestMe_ReturnsAccount(t *testing.T) {
	svc := &mockAccountService{
		GetAccountFunc: func(ctx context.Context, id string) (*models.Account, error) {
			assert.Equal(t, "id-1", id)
			return &models.Account{ID: "id-1", Email: "a@x.com", FirstName: "Ada", LastName: "Lovelace"}, nil
		},
	}
	h := newAccountHandler(svc)

	rec := httptest.NewRecorder()
	req := authenticated(httptest.NewRequest(http.MethodGet, "/api/account", nil), "id-1")
	h.Me(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp AccountResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "a@x.com", resp.Email)
}

func TestChangeEmail_RequiresSession(t *testing.T) {
	h := newAccountHandler(&mockAccountService{})

	rec := httptest.NewRecorder()
	h.ChangeEmail(rec, httptest.NewRequest(http.MethodPost, "/api/account/email", strings.NewReader(`{"email":"new@x.com"}`)))

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestChangeEmail_ReturnsUnchangedPrimary(t *testing.T) {
	svc := &mockAccountService{
		ChangeEmailFunc: func(ctx context.Context, accountID, newEmail string) (string, error) {
			assert.Equal(t, "id-1", accountID)
			assert.Equal(t, "new@x.com", newEmail)
			return "old@x.com", nil
		},
	}
	h := newAccountHandler(svc)

	rec := httptest.NewRecorder()
	req := authenticated(httptest.NewRequest(http.MethodPost, "/api/account/email", strings.NewReader(`{"email":"new@x.com"}`)), "id-1")
	h.ChangeEmail(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "old@x.com", resp["email"])
}

func TestChangeEmail_Duplicate(t *testing.T) {
	svc := &mockAccountService{
		ChangeEmailFunc: func(ctx context.Context, accountID, newEmail string) (string, error) {
			return "", models.ErrDuplicateEmail
		},
	}
	h := newAccountHandler(svc)

	rec := httptest.NewRecorder()
	req := authenticated(httptest.NewRequest(http.MethodPost, "/api/account/email", strings.NewReader(`{"email":"b@x.com"}`)), "id-1")
	h.ChangeEmail(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var resp pkghttp.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, []string{"This email is already in use"}, resp.Errors)
}

func TestResetPassword_AlwaysAccepted(t *testing.T) {
	var got string
	svc := &mockAccountService{
		ResetPasswordRequestFunc: func(ctx context.Context, email string) error {
			got = email
			return nil
		},
	}
	h := newAccountHandler(svc)

	rec := httptest.NewRecorder()
	h.ResetPassword(rec, httptest.NewRequest(http.MethodPost, "/api/account/password_reset", strings.NewReader(`{"email":"maybe@x.com"}`)))

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "maybe@x.com", got)
}

func TestSetPassword_InvalidCode(t *testing.T) {
	svc := &mockAccountService{
		SetPasswordFunc: func(ctx context.Context, id, code, newPassword string) (*models.Account, error) {
			return nil, models.ErrInvalidResetCode
		},
	}
	h := newAccountHandler(svc)

	rec := httptest.NewRecorder()
	body := `{"id":"id-1","code":"stale","password":"brand-new-password"}`
	h.SetPassword(rec, httptest.NewRequest(http.MethodPost, "/api/account/password", strings.NewReader(body)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var resp pkghttp.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, []string{"Invalid password reset code"}, resp.Errors)
}

func TestSetPassword_SuccessSignsIn(t *testing.T) {
	svc := &mockAccountService{
		SetPasswordFunc: func(ctx context.Context, id, code, newPassword string) (*models.Account, error) {
			return &models.Account{ID: id, Email: "a@x.com", FirstName: "Ada", LastName: "Lovelace"}, nil
		},
	}
	h := newAccountHandler(svc)

	rec := httptest.NewRecorder()
	body := `{"id":"id-1","code":"good-code","password":"brand-new-password"}`
	h.SetPassword(rec, httptest.NewRequest(http.MethodPost, "/api/account/password", strings.NewReader(body)))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotNil(t, sessionCookie(rec))

	var resp AccountResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "id-1", resp.ID)
}

func TestChangePassword_RequiresSession(t *testing.T) {
	h := newAccountHandler(&mockAccountService{})

	rec := httptest.NewRecorder()
	h.ChangePassword(rec, httptest.NewRequest(http.MethodPost, "/api/account/password_change", strings.NewReader(`{"old_password":"a","new_password":"brand-new-password"}`)))

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestChangePassword_WrongOldPassword(t *testing.T) {
	svc := &mockAccountService{
		ChangePasswordFunc: func(ctx context.Context, accountID, oldPassword, newPassword string) error {
			return models.ErrWrongPassword
		},
	}
	h := newAccountHandler(svc)

	rec := httptest.NewRecorder()
	req := authenticated(httptest.NewRequest(http.MethodPost, "/api/account/password_change", strings.NewReader(`{"old_password":"bad","new_password":"brand-new-password"}`)), "id-1")
	h.ChangePassword(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var resp pkghttp.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, []string{"Wrong password"}, resp.Errors)
}

func TestChangePassword_Success(t *testing.T) {
	svc := &mockAccountService{
		ChangePasswordFunc: func(ctx context.Context, accountID, oldPassword, newPassword string) error {
			assert.Equal(t, "id-1", accountID)
			return nil
		},
	}
	h := newAccountHandler(svc)

	rec := httptest.NewRecorder()
	req := authenticated(httptest.NewRequest(http.MethodPost, "/api/account/password_change", strings.NewReader(`{"old_password":"old","new_password":"brand-new-password"}`)), "id-1")
	h.ChangePassword(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestChangeAvatar_RequiresSession(t *testing.T) {
	h := newAccountHandler(&mockAccountService{})

	rec := httptest.NewRecorder()
	h.ChangeAvatar(rec, httptest.NewRequest(http.MethodPost, "/api/account/avatar", strings.NewReader(`{"avatar_url":"https://pics.example.com/a.png"}`)))

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestChangeAvatar_Accepted(t *testing.T) {
	var gotURL string
	svc := &mockAccountService{
		ChangeAvatarFunc: func(ctx context.Context, accountID, avatarURL string) error {
			gotURL = avatarURL
			return nil
		},
	}
	h := newAccountHandler(svc)

	rec := httptest.NewRecorder()
	req := authenticated(httptest.NewRequest(http.MethodPost, "/api/account/avatar", strings.NewReader(`{"avatar_url":"https://pics.example.com/a.png"}`)), "id-1")
	h.ChangeAvatar(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "https://pics.example.com/a.png", gotURL)
}

func TestChangeAvatar_EmptyURLClears(t *testing.T) {
	var gotURL string
	svc := &mockAccountService{
		ChangeAvatarFunc: func(ctx context.Context, accountID, avatarURL string) error {
			gotURL = avatarURL
			return nil
		},
	}
	h := newAccountHandler(svc)

	rec := httptest.NewRecorder()
	req := authenticated(httptest.NewRequest(http.MethodPost, "/api/account/avatar", strings.NewReader(`{"avatar_url":""}`)), "id-1")
	h.ChangeAvatar(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Empty(t, gotURL)
}
