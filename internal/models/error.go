package models

import "errors"

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")

	// Account operation errors
	ErrDuplicateEmail     = errors.New("email is already in use")
	ErrInvalidCredentials = errors.New("email and/or password not recognized")
	ErrAccountLocked      = errors.New("account is not confirmed or inactive")
	ErrWrongPassword      = errors.New("wrong password")
	ErrInvalidResetCode   = errors.New("invalid password reset code")
)
