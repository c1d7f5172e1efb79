package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mstrand/foyer/internal/auth"
	"github.com/mstrand/foyer/internal/models"
	pkghttp "github.com/mstrand/foyer/pkg/http"
)

// AccountHandler handles the operations of an authenticated account.
type AccountHandler struct {
	service   AccountServiceInterface
	avatars   AvatarURLProvider
	tokens    *auth.TokenManager
	cookieCfg auth.CookieConfig
}

func NewAccountHandler(service AccountServiceInterface, avatars AvatarURLProvider, tokens *auth.TokenManager, cookieCfg auth.CookieConfig) *AccountHandler {
	return &AccountHandler{
		service:   service,
		avatars:   avatars,
		tokens:    tokens,
		cookieCfg: cookieCfg,
	}
}

// Me returns the authenticated account.
func (h *AccountHandler) Me(w http.ResponseWriter, r *http.Request) {
	accountID := auth.AccountID(r)
	if accountID == "" {
		pkghttp.WriteForbidden(w)
		return
	}

	account, err := h.service.GetAccount(r.Context(), accountID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkghttp.WriteForbidden(w)
			return
		}
		pkghttp.WriteInternalError(w)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, accountResponse(account, h.avatars))
}

// ChangeEmailRequest represents the request body for an email change
type ChangeEmailRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// ChangeEmail parks a new address as pending confirmation. The response
// carries the still-unchanged primary email.
func (h *AccountHandler) ChangeEmail(w http.ResponseWriter, r *http.Request) {
	accountID := auth.AccountID(r)
	if accountID == "" {
		pkghttp.WriteForbidden(w)
		return
	}

	var req ChangeEmailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	primary, err := h.service.ChangeEmail(r.Context(), accountID, req.Email)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrDuplicateEmail):
			pkghttp.WriteBadRequest(w, "This email is already in use")
		case errors.Is(err, models.ErrUnauthorized):
			pkghttp.WriteForbidden(w)
		default:
			pkghttp.WriteInternalError(w)
		}
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]string{"email": primary})
}

// ResetPasswordRequestBody represents the request body for a reset request
type ResetPasswordRequestBody struct {
	Email string `json:"email" validate:"required,email"`
}

// ResetPassword issues a reset code and mails the link. The response is 202
// regardless of whether the email matched anything.
func (h *AccountHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequestBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	if err := h.service.ResetPasswordRequest(r.Context(), req.Email); err != nil {
		pkghttp.WriteInternalError(w)
		return
	}
	pkghttp.WriteAccepted(w)
}

// SetPasswordRequest represents the request body for consuming a reset code
type SetPasswordRequest struct {
	ID       string `json:"id" validate:"required"`
	Code     string `json:"code" validate:"required"`
	Password string `json:"password" validate:"required,min=8,max=128"`
}

// SetPassword consumes a reset code, stores the new credential and signs
// the caller in.
func (h *AccountHandler) SetPassword(w http.ResponseWriter, r *http.Request) {
	var req SetPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	account, err := h.service.SetPassword(r.Context(), req.ID, req.Code, req.Password)
	if err != nil {
		if errors.Is(err, models.ErrInvalidResetCode) {
			pkghttp.WriteBadRequest(w, "Invalid password reset code")
			return
		}
		pkghttp.WriteInternalError(w)
		return
	}

	token, err := h.tokens.GenerateSessionToken(account.ID, account.Email)
	if err != nil {
		pkghttp.WriteInternalError(w)
		return
	}
	auth.SetSessionCookie(w, token, h.tokens.SessionExpiry(), h.cookieCfg)

	pkghttp.WriteJSON(w, http.StatusOK, accountResponse(account, h.avatars))
}

// ChangePasswordRequest represents the request body for a password change
type ChangePasswordRequest struct {
	OldPassword string `json:"old_password" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,min=8,max=128"`
}

// ChangePassword rotates the credential of the authenticated account.
func (h *AccountHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	accountID := auth.AccountID(r)
	if accountID == "" {
		pkghttp.WriteForbidden(w)
		return
	}

	var req ChangePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	if err := h.service.ChangePassword(r.Context(), accountID, req.OldPassword, req.NewPassword); err != nil {
		switch {
		case errors.Is(err, models.ErrWrongPassword):
			pkghttp.WriteBadRequest(w, "Wrong password")
		case errors.Is(err, models.ErrUnauthorized):
			pkghttp.WriteForbidden(w)
		default:
			pkghttp.WriteInternalError(w)
		}
		return
	}
	pkghttp.WriteAccepted(w)
}

// ChangeAvatarRequest represents the request body for an avatar change
type ChangeAvatarRequest struct {
	AvatarURL string `json:"avatar_url" validate:"omitempty,url"`
}

// ChangeAvatar records a new external avatar source; ingestion runs in the
// background. An empty URL clears the avatar.
func (h *AccountHandler) ChangeAvatar(w http.ResponseWriter, r *http.Request) {
	accountID := auth.AccountID(r)
	if accountID == "" {
		pkghttp.WriteForbidden(w)
		return
	}

	var req ChangeAvatarRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	if err := h.service.ChangeAvatar(r.Context(), accountID, req.AvatarURL); err != nil {
		switch {
		case errors.Is(err, models.ErrUnauthorized):
			pkghttp.WriteForbidden(w)
		default:
			pkghttp.WriteInternalError(w)
		}
		return
	}
	pkghttp.WriteAccepted(w)
}
