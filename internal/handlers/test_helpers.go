package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/mstrand/foyer/internal/auth"
	"github.com/mstrand/foyer/internal/models"
	"github.com/mstrand/foyer/internal/services"
)

const testJWTSecret = "test-secret-key-for-jwt-signing-minimum-32-chars"

// mockAccountService implements AccountServiceInterface for testing
type mockAccountService struct {
	SignupFunc               func(ctx context.Context, in services.SignupInput) (*models.Account, error)
	ConfirmEmailFunc         func(ctx context.Context, id, code string) (*models.Account, error)
	ResendConfirmationFunc   func(ctx context.Context, email string) error
	ChangeEmailFunc          func(ctx context.Context, accountID, newEmail string) (string, error)
	ResetPasswordRequestFunc func(ctx context.Context, email string) error
	SetPasswordFunc          func(ctx context.Context, id, code, newPassword string) (*models.Account, error)
	ChangePasswordFunc       func(ctx context.Context, accountID, oldPassword, newPassword string) error
	AuthenticateFunc         func(ctx context.Context, email, password string) (*models.Account, error)
	ChangeAvatarFunc         func(ctx context.Context, accountID, avatarURL string) error
	GetAccountFunc           func(ctx context.Context, id string) (*models.Account, error)
	confirmationRequired     bool
}

func (m *mockAccountService) Signup(ctx context.Context, in services.SignupInput) (*models.Account, error) {
	return m.SignupFunc(ctx, in)
}

func (m *mockAccountService) ConfirmEmail(ctx context.Context, id, code string) (*models.Account, error) {
	return m.ConfirmEmailFunc(ctx, id, code)
}

func (m *mockAccountService) ResendConfirmation(ctx context.Context, email string) error {
	return m.ResendConfirmationFunc(ctx, email)
}

func (m *mockAccountService) ChangeEmail(ctx context.Context, accountID, newEmail string) (string, error) {
	return m.ChangeEmailFunc(ctx, accountID, newEmail)
}

func (m *mockAccountService) ResetPasswordRequest(ctx context.Context, email string) error {
	return m.ResetPasswordRequestFunc(ctx, email)
}

func (m *mockAccountService) SetPassword(ctx context.Context, id, code, newPassword string) (*models.Account, error) {
	return m.SetPasswordFunc(ctx, id, code, newPassword)
}

func (m *mockAccountService) ChangePassword(ctx context.Context, accountID, oldPassword, newPassword string) error {
	return m.ChangePasswordFunc(ctx, accountID, oldPassword, newPassword)
}

func (m *mockAccountService) Authenticate(ctx context.Context, email, password string) (*models.Account, error) {
	return m.AuthenticateFunc(ctx, email, password)
}

func (m *mockAccountService) ChangeAvatar(ctx context.Context, accountID, avatarURL string) error {
	return m.ChangeAvatarFunc(ctx, accountID, avatarURL)
}

func (m *mockAccountService) GetAccount(ctx context.Context, id string) (*models.Account, error) {
	return m.GetAccountFunc(ctx, id)
}

func (m *mockAccountService) ConfirmationRequired() bool {
	return m.confirmationRequired
}

// stubAvatars returns the same URL for every alias.
type stubAvatars struct{}

func (stubAvatars) URLs(a *models.Account) map[string]string {
	if a.AvatarURL == nil {
		return nil
	}
	return map[string]string{"x80": *a.AvatarURL, "x300": *a.AvatarURL}
}

func testTokenManager() *auth.TokenManager {
	return auth.NewTokenManager(testJWTSecret, time.Hour)
}

// authenticated injects session claims as the auth middleware would.
func authenticated(req *http.Request, accountID string) *http.Request {
	claims := &models.SessionClaims{AccountID: accountID, Email: "a@x.com"}
	return req.WithContext(context.WithValue(req.Context(), auth.SessionContextKey, claims))
}

func sessionCookie(rec *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == "session" {
			return c
		}
	}
	return nil
}
