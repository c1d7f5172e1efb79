package models

import (
	"fmt"
	"strings"
	"time"
)

// Account is the persisted user identity.
//
// Email is the confirmed primary address and is unique across all accounts.
// NewEmail holds a pending address change that has not been confirmed yet;
// while set it must not collide with any other account's primary or pending
// address. The three code fields are single-use secrets and are cleared the
// moment they are consumed.
type Account struct {
	ID                  string
	Email               string
	NewEmail            *string
	EmailConfirmCode    *string
	NewEmailConfirmCode *string
	EmailConfirmed      bool
	PasswordResetCode   *string
	PasswordHash        string
	FirstName           string
	LastName            string
	IsActive            bool
	IsStaff             bool
	IsSuperuser         bool
	AvatarURL           *string
	AvatarKey           *string // blob key of the fetched source image, written only by the avatar jobs
	DateJoined          time.Time
	UpdatedAt           time.Time
}

// capName capitalizes single-word names and leaves multi-word names alone.
func capName(name string) string {
	if name == "" || strings.Contains(name, " ") {
		return name
	}
	r := []rune(strings.ToLower(name))
	return strings.ToUpper(string(r[0])) + string(r[1:])
}

func (a *Account) name(short bool) string {
	if a.FirstName == "" {
		return a.Email
	}
	first := capName(a.FirstName)
	if a.LastName == "" {
		return first
	}
	last := capName(a.LastName)
	if short {
		last = string([]rune(last)[0]) + "."
	}
	return first + " " + last
}

// FullName returns "First Last", falling back to the email address when no
// first name is set.
func (a *Account) FullName() string {
	return a.name(false)
}

// ShortName returns "First L." for display in compact UI contexts.
func (a *Account) ShortName() string {
	return a.name(true)
}

// Recipient formats the primary address for mail delivery.
func (a *Account) Recipient() string {
	return fmt.Sprintf("%s %s <%s>", a.FirstName, a.LastName, a.Email)
}

// NewEmailRecipient formats the pending address for mail delivery.
func (a *Account) NewEmailRecipient() string {
	email := ""
	if a.NewEmail != nil {
		email = *a.NewEmail
	}
	return fmt.Sprintf("%s %s <%s>", a.FirstName, a.LastName, email)
}

// HasUsablePassword reports whether a credential has ever been set.
func (a *Account) HasUsablePassword() bool {
	return a.PasswordHash != ""
}

func (a *Account) String() string {
	return fmt.Sprintf("%s (ID: %s)", a.FullName(), a.ID)
}
