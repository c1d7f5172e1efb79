package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/mstrand/foyer/internal/auth"
	"github.com/mstrand/foyer/internal/models"
	"github.com/mstrand/foyer/internal/services"
	pkghttp "github.com/mstrand/foyer/pkg/http"
)

// AccountServiceInterface defines the account lifecycle operations the
// handlers depend on.
type AccountServiceInterface interface {
	Signup(ctx context.Context, in services.SignupInput) (*models.Account, error)
	ConfirmEmail(ctx context.Context, id, code string) (*models.Account, error)
	ResendConfirmation(ctx context.Context, email string) error
	ChangeEmail(ctx context.Context, accountID, newEmail string) (string, error)
	ResetPasswordRequest(ctx context.Context, email string) error
	SetPassword(ctx context.Context, id, code, newPassword string) (*models.Account, error)
	ChangePassword(ctx context.Context, accountID, oldPassword, newPassword string) error
	Authenticate(ctx context.Context, email, password string) (*models.Account, error)
	ChangeAvatar(ctx context.Context, accountID, avatarURL string) error
	GetAccount(ctx context.Context, id string) (*models.Account, error)
	ConfirmationRequired() bool
}

// AvatarURLProvider resolves the per-alias avatar URLs for an account.
type AvatarURLProvider interface {
	URLs(a *models.Account) map[string]string
}

// AuthHandler handles signup, sign-in and email confirmation.
type AuthHandler struct {
	service   AccountServiceInterface
	avatars   AvatarURLProvider
	tokens    *auth.TokenManager
	cookieCfg auth.CookieConfig
}

func NewAuthHandler(service AccountServiceInterface, avatars AvatarURLProvider, tokens *auth.TokenManager, cookieCfg auth.CookieConfig) *AuthHandler {
	return &AuthHandler{
		service:   service,
		avatars:   avatars,
		tokens:    tokens,
		cookieCfg: cookieCfg,
	}
}

// AccountResponse is the public shape of an account.
type AccountResponse struct {
	ID        string            `json:"id"`
	Email     string            `json:"email"`
	FirstName string            `json:"first_name"`
	ShortName string            `json:"short_name"`
	Avatar    map[string]string `json:"avatar,omitempty"`
}

func accountResponse(a *models.Account, avatars AvatarURLProvider) AccountResponse {
	resp := AccountResponse{
		ID:        a.ID,
		Email:     a.Email,
		FirstName: a.FirstName,
		ShortName: a.ShortName(),
	}
	if avatars != nil {
		resp.Avatar = avatars.URLs(a)
	}
	return resp
}

// establishSession issues a session token and sets the session cookie.
func (h *AuthHandler) establishSession(w http.ResponseWriter, a *models.Account) error {
	token, err := h.tokens.GenerateSessionToken(a.ID, a.Email)
	if err != nil {
		return err
	}
	auth.SetSessionCookie(w, token, h.tokens.SessionExpiry(), h.cookieCfg)
	return nil
}

// SignupRequest represents the request body for signup
type SignupRequest struct {
	Email     string `json:"email" validate:"required,email"`
	FirstName string `json:"first_name" validate:"required,min=1,max=100"`
	LastName  string `json:"last_name" validate:"required,min=1,max=100"`
	Password  string `json:"password" validate:"required,min=8,max=128"`
	AvatarURL string `json:"avatar_url,omitempty" validate:"omitempty,url"`
	Next      string `json:"next,omitempty"`
}

// Signup registers a new account. With email confirmation on it answers
// 202 and the confirmation mail carries the follow-up link; with
// confirmation off it signs the account in and redirects to next.
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	account, err := h.service.Signup(r.Context(), services.SignupInput{
		Email:     req.Email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Password:  req.Password,
		AvatarURL: req.AvatarURL,
		Next:      req.Next,
	})
	if err != nil {
		if errors.Is(err, models.ErrDuplicateEmail) {
			pkghttp.WriteBadRequest(w, "This email is already in use, please sign in")
			return
		}
		pkghttp.WriteInternalError(w)
		return
	}

	if h.service.ConfirmationRequired() {
		pkghttp.WriteAccepted(w)
		return
	}

	if err := h.establishSession(w, account); err != nil {
		pkghttp.WriteInternalError(w)
		return
	}
	http.Redirect(w, r, redirectTarget(req.Next), http.StatusMovedPermanently)
}

// ConfirmEmail consumes a confirmation link. It always redirects to next;
// on a code match the browser arrives signed in.
func (h *AuthHandler) ConfirmEmail(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	account, err := h.service.ConfirmEmail(r.Context(), q.Get("id"), q.Get("code"))
	if err != nil {
		pkghttp.WriteInternalError(w)
		return
	}

	if account != nil {
		if err := h.establishSession(w, account); err != nil {
			pkghttp.WriteInternalError(w)
			return
		}
	}

	http.Redirect(w, r, redirectTarget(q.Get("next")), http.StatusMovedPermanently)
}

// ResendConfirmationRequest represents the request body for resending the
// confirmation mail
type ResendConfirmationRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// ResendConfirmation re-sends the pending confirmation mail. The response
// is 202 regardless of whether the email matched anything.
func (h *AuthHandler) ResendConfirmation(w http.ResponseWriter, r *http.Request) {
	var req ResendConfirmationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	if err := h.service.ResendConfirmation(r.Context(), req.Email); err != nil {
		pkghttp.WriteInternalError(w)
		return
	}
	pkghttp.WriteAccepted(w)
}

// SigninRequest represents the request body for sign-in
type SigninRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Signin authenticates and establishes a session. A correct password on an
// unconfirmed or inactive account answers 423 so the frontend can offer a
// resend; everything else that fails answers an undifferentiated 400.
func (h *AuthHandler) Signin(w http.ResponseWriter, r *http.Request) {
	var req SigninRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	account, err := h.service.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrAccountLocked):
			pkghttp.WriteLocked(w)
		case errors.Is(err, models.ErrInvalidCredentials):
			pkghttp.WriteBadRequest(w, "Email and/or password not recognized")
		default:
			pkghttp.WriteInternalError(w)
		}
		return
	}

	if err := h.establishSession(w, account); err != nil {
		pkghttp.WriteInternalError(w)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, accountResponse(account, h.avatars))
}

// Logout clears the session cookie.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	auth.ClearSessionCookie(w, h.cookieCfg)
	w.WriteHeader(http.StatusNoContent)
}

// redirectTarget keeps confirmation redirects on-site. Anything that is not
// a local path falls back to the root.
func redirectTarget(next string) string {
	if next == "" {
		return "/"
	}
	if !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") {
		return "/"
	}
	return next
}
