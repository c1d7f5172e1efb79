package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/mstrand/foyer/internal/events"
	"github.com/mstrand/foyer/internal/models"
	pkgauth "github.com/mstrand/foyer/pkg/auth"
	pkglogger "github.com/mstrand/foyer/pkg/logger"
)

// AccountStore is the persistence interface for accounts.
type AccountStore interface {
	GetByID(ctx context.Context, id string) (*models.Account, error)
	GetByIDForUpdate(ctx context.Context, id string) (*models.Account, error)
	GetByEmail(ctx context.Context, email string) (*models.Account, error)
	ActiveByEmail(ctx context.Context, email string) (*models.Account, error)
	ActiveByAnyEmail(ctx context.Context, email string) (*models.Account, error)
	EmailTaken(ctx context.Context, email, excludeID string) (bool, error)
	Create(ctx context.Context, account *models.Account) (*models.Account, error)
	Update(ctx context.Context, account *models.Account) (*models.Account, error)
}

// TxStore yields an AccountStore bound to the given transaction. A nil tx
// yields a store running directly on the pool.
type TxStore func(tx pgx.Tx) AccountStore

// TxRunner runs a function inside a database transaction.
type TxRunner interface {
	WithTransaction(ctx context.Context, fn func(pgx.Tx) error) error
}

// AccountService owns the account lifecycle: signup, confirmation, email
// change, password reset and authentication. Every mutating operation runs
// in a single transaction; side effects leave through the notifier and only
// materialize when that transaction commits.
type AccountService struct {
	db                   TxRunner
	store                TxStore
	notifier             *events.Notifier
	logger               *slog.Logger
	confirmationRequired bool
}

func NewAccountService(db TxRunner, store TxStore, notifier *events.Notifier, logger *slog.Logger, confirmationRequired bool) *AccountService {
	return &AccountService{
		db:                   db,
		store:                store,
		notifier:             notifier,
		logger:               logger,
		confirmationRequired: confirmationRequired,
	}
}

// ConfirmationRequired reports whether signup leaves accounts pending until
// their email is confirmed.
func (s *AccountService) ConfirmationRequired() bool {
	return s.confirmationRequired
}

// SignupInput is the validated input for Signup.
type SignupInput struct {
	Email     string
	FirstName string
	LastName  string
	Password  string
	AvatarURL string
	Next      string
}

// Signup creates a new account. With confirmation required the account is
// created pending with a fresh confirm code and a confirmation mail is
// requested; otherwise it is created already confirmed and the signup
// completed event fires immediately.
func (s *AccountService) Signup(ctx context.Context, in SignupInput) (*models.Account, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))

	var account *models.Account
	err := s.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		store := s.store(tx)

		taken, err := store.EmailTaken(ctx, email, "")
		if err != nil {
			return err
		}
		if taken {
			return models.ErrDuplicateEmail
		}

		hash, err := pkgauth.HashPassword(in.Password)
		if err != nil {
			return err
		}

		a := &models.Account{
			Email:        email,
			FirstName:    in.FirstName,
			LastName:     in.LastName,
			PasswordHash: hash,
			IsActive:     true,
		}
		if in.AvatarURL != "" {
			a.AvatarURL = &in.AvatarURL
		}

		if s.confirmationRequired {
			code, err := pkgauth.GenerateCode()
			if err != nil {
				return err
			}
			a.EmailConfirmCode = &code
		} else {
			a.EmailConfirmed = true
		}

		account, err = store.Create(ctx, a)
		if err != nil {
			return err
		}

		if account.AvatarURL != nil {
			if err := s.notifier.Publish(ctx, tx, events.Event{
				Name:    events.AvatarFetchRequested,
				Account: account,
			}); err != nil {
				return err
			}
		}

		if s.confirmationRequired {
			return s.notifier.Publish(ctx, tx, events.Event{
				Name:    events.EmailConfirmRequested,
				Account: account,
				Email:   account.Email,
				Next:    in.Next,
			})
		}

		return s.notifier.Publish(ctx, tx, events.Event{
			Name:    events.SignupCompleted,
			Account: account,
		})
	})
	if err != nil {
		if errors.Is(err, models.ErrDuplicateEmail) {
			return nil, models.ErrDuplicateEmail
		}
		s.logger.Error("signup failed", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.logger.Info("account created",
		slog.String("account_id", account.ID),
		slog.Bool("pending_confirmation", s.confirmationRequired))
	return account, nil
}

// ConfirmEmail consumes a confirmation code. It returns the confirmed
// account when the code matched either stored code (the caller may establish
// a session for it), or nil when nothing matched; a miss never mutates
// state, and a code already consumed no longer matches, so replays are
// no-ops.
//
// A pending-address code authenticates its account even when the address was
// claimed by someone else in the meantime; in that collision case the
// pending fields are left untouched rather than promoted.
func (s *AccountService) ConfirmEmail(ctx context.Context, id, code string) (*models.Account, error) {
	if code == "" {
		return nil, nil
	}
	if _, err := uuid.Parse(id); err != nil {
		return nil, nil
	}

	var account *models.Account
	err := s.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		store := s.store(tx)

		a, err := store.GetByIDForUpdate(ctx, id)
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				return nil
			}
			return err
		}

		switch {
		case a.EmailConfirmCode != nil && *a.EmailConfirmCode == code:
			a.EmailConfirmed = true
			a.EmailConfirmCode = nil
			a.IsActive = true

			a, err = store.Update(ctx, a)
			if err != nil {
				return err
			}
			account = a

			if err := s.notifier.Publish(ctx, tx, events.Event{
				Name:    events.EmailConfirmed,
				Account: a,
			}); err != nil {
				return err
			}
			return s.notifier.Publish(ctx, tx, events.Event{
				Name:    events.SignupCompleted,
				Account: a,
			})

		case a.NewEmail != nil && a.NewEmailConfirmCode != nil && *a.NewEmailConfirmCode == code:
			account = a

			if err := s.notifier.Publish(ctx, tx, events.Event{
				Name:    events.SignupCompleted,
				Account: a,
			}); err != nil {
				return err
			}

			taken, err := store.EmailTaken(ctx, *a.NewEmail, a.ID)
			if err != nil {
				return err
			}
			if taken {
				// Someone else claimed the address after the code was
				// issued: leave the pending change in place.
				return nil
			}

			previous := a.Email
			a.Email = strings.ToLower(*a.NewEmail)
			a.NewEmail = nil
			a.NewEmailConfirmCode = nil
			a.EmailConfirmed = true

			a, err = store.Update(ctx, a)
			if err != nil {
				return err
			}
			account = a

			return s.notifier.Publish(ctx, tx, events.Event{
				Name:    events.EmailChanged,
				Account: a,
				Email:   previous,
			})
		}

		return nil
	})
	if err != nil {
		s.logger.Error("email confirmation failed", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if account != nil {
		s.logger.Info("email confirmed", slog.String("account_id", account.ID))
	}
	return account, nil
}

// ResendConfirmation re-emits the relevant confirmation mail using the
// existing stored code, so links already distributed stay valid. It reports
// success whether or not anything matched.
func (s *AccountService) ResendConfirmation(ctx context.Context, email string) error {
	email = strings.ToLower(strings.TrimSpace(email))

	err := s.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		store := s.store(tx)

		a, err := store.ActiveByAnyEmail(ctx, email)
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				return nil
			}
			return err
		}

		if strings.EqualFold(a.Email, email) && a.EmailConfirmCode != nil {
			return s.notifier.Publish(ctx, tx, events.Event{
				Name:    events.EmailConfirmRequested,
				Account: a,
				Email:   a.Email,
			})
		}

		if a.NewEmail != nil && strings.EqualFold(*a.NewEmail, email) && a.NewEmailConfirmCode != nil {
			return s.notifier.Publish(ctx, tx, events.Event{
				Name:    events.NewEmailConfirmRequested,
				Account: a,
				Email:   *a.NewEmail,
			})
		}

		return nil
	})
	if err != nil {
		s.logger.Error("resend confirmation failed",
			slog.String("email", pkglogger.SanitizedEmail(email)),
			slog.Any("error", err))
		return models.ErrInternalServer
	}
	return nil
}

// ChangeEmail starts an address change for an authenticated account: the
// new address is parked as pending with a fresh code and must be confirmed
// before it becomes primary. Changing to the current primary address just
// clears any pending change. The returned value is the (unchanged) primary
// email.
func (s *AccountService) ChangeEmail(ctx context.Context, accountID, newEmail string) (string, error) {
	if accountID == "" {
		return "", models.ErrUnauthorized
	}
	email := strings.ToLower(strings.TrimSpace(newEmail))

	var primary string
	err := s.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		store := s.store(tx)

		a, err := store.GetByIDForUpdate(ctx, accountID)
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				return models.ErrUnauthorized
			}
			return err
		}

		taken, err := store.EmailTaken(ctx, email, a.ID)
		if err != nil {
			return err
		}
		if taken {
			return models.ErrDuplicateEmail
		}

		if a.Email == email {
			if a.NewEmail != nil || a.NewEmailConfirmCode != nil {
				a.NewEmail = nil
				a.NewEmailConfirmCode = nil
				if a, err = store.Update(ctx, a); err != nil {
					return err
				}
			}
			primary = a.Email
			return nil
		}

		code, err := pkgauth.GenerateCode()
		if err != nil {
			return err
		}
		a.NewEmail = &email
		a.NewEmailConfirmCode = &code

		if a, err = store.Update(ctx, a); err != nil {
			return err
		}
		primary = a.Email

		return s.notifier.Publish(ctx, tx, events.Event{
			Name:    events.NewEmailConfirmRequested,
			Account: a,
			Email:   email,
		})
	})
	if err != nil {
		if errors.Is(err, models.ErrDuplicateEmail) || errors.Is(err, models.ErrUnauthorized) {
			return "", err
		}
		s.logger.Error("email change failed", slog.String("account_id", accountID), slog.Any("error", err))
		return "", models.ErrInternalServer
	}
	return primary, nil
}

// ResetPasswordRequest issues a fresh reset code for an active account,
// invalidating any previously issued one, and requests the reset mail. It
// reports success whether or not the email matched an account.
func (s *AccountService) ResetPasswordRequest(ctx context.Context, email string) error {
	email = strings.ToLower(strings.TrimSpace(email))

	err := s.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		store := s.store(tx)

		a, err := store.ActiveByEmail(ctx, email)
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				return nil
			}
			return err
		}

		code, err := pkgauth.GenerateCode()
		if err != nil {
			return err
		}
		a.PasswordResetCode = &code

		if a, err = store.Update(ctx, a); err != nil {
			return err
		}

		return s.notifier.Publish(ctx, tx, events.Event{
			Name:    events.PasswordResetRequested,
			Account: a,
		})
	})
	if err != nil {
		s.logger.Error("password reset request failed",
			slog.String("email", pkglogger.SanitizedEmail(email)),
			slog.Any("error", err))
		return models.ErrInternalServer
	}
	return nil
}

// SetPassword consumes a reset code: it stores the new credential, clears
// the code and marks the email confirmed, since completing the reset proves
// control of the address. The account is returned so the caller can
// establish a session.
func (s *AccountService) SetPassword(ctx context.Context, id, code, newPassword string) (*models.Account, error) {
	if code == "" {
		return nil, models.ErrInvalidResetCode
	}
	if _, err := uuid.Parse(id); err != nil {
		return nil, models.ErrInvalidResetCode
	}

	var account *models.Account
	err := s.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		store := s.store(tx)

		a, err := store.GetByIDForUpdate(ctx, id)
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				return models.ErrInvalidResetCode
			}
			return err
		}

		if !a.IsActive || a.PasswordResetCode == nil || *a.PasswordResetCode != code {
			return models.ErrInvalidResetCode
		}

		hash, err := pkgauth.HashPassword(newPassword)
		if err != nil {
			return err
		}

		a.PasswordHash = hash
		a.EmailConfirmed = true
		a.PasswordResetCode = nil

		if account, err = store.Update(ctx, a); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, models.ErrInvalidResetCode) {
			return nil, models.ErrInvalidResetCode
		}
		s.logger.Error("set password failed", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.logger.Info("password set via reset code", slog.String("account_id", account.ID))
	return account, nil
}

// ChangePassword rotates the credential of an authenticated account after
// verifying the old one.
func (s *AccountService) ChangePassword(ctx context.Context, accountID, oldPassword, newPassword string) error {
	if accountID == "" {
		return models.ErrUnauthorized
	}

	err := s.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		store := s.store(tx)

		a, err := store.GetByIDForUpdate(ctx, accountID)
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				return models.ErrUnauthorized
			}
			return err
		}

		if pkgauth.ComparePassword(a.PasswordHash, oldPassword) != nil {
			return models.ErrWrongPassword
		}

		hash, err := pkgauth.HashPassword(newPassword)
		if err != nil {
			return err
		}
		a.PasswordHash = hash

		_, err = store.Update(ctx, a)
		return err
	})
	if err != nil {
		if errors.Is(err, models.ErrWrongPassword) || errors.Is(err, models.ErrUnauthorized) {
			return err
		}
		s.logger.Error("password change failed", slog.String("account_id", accountID), slog.Any("error", err))
		return models.ErrInternalServer
	}
	return nil
}

// Authenticate verifies credentials. A matching account that is inactive or
// unconfirmed yields ErrAccountLocked rather than the generic credentials
// error; everything else that fails yields ErrInvalidCredentials so callers
// cannot probe which emails exist.
func (s *AccountService) Authenticate(ctx context.Context, email, password string) (*models.Account, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	a, err := s.store(nil).GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrInvalidCredentials
		}
		s.logger.Error("authentication lookup failed", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if pkgauth.ComparePassword(a.PasswordHash, password) != nil {
		return nil, models.ErrInvalidCredentials
	}

	if !a.IsActive || !a.EmailConfirmed {
		return nil, models.ErrAccountLocked
	}

	return a, nil
}

// ChangeAvatar records a new external avatar URL for an authenticated
// account and requests its ingestion. An empty URL clears the avatar source.
func (s *AccountService) ChangeAvatar(ctx context.Context, accountID, avatarURL string) error {
	if accountID == "" {
		return models.ErrUnauthorized
	}

	err := s.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		store := s.store(tx)

		a, err := store.GetByIDForUpdate(ctx, accountID)
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				return models.ErrUnauthorized
			}
			return err
		}

		if avatarURL == "" {
			a.AvatarURL = nil
		} else {
			a.AvatarURL = &avatarURL
		}

		if a, err = store.Update(ctx, a); err != nil {
			return err
		}

		if a.AvatarURL == nil {
			return nil
		}
		return s.notifier.Publish(ctx, tx, events.Event{
			Name:    events.AvatarFetchRequested,
			Account: a,
		})
	})
	if err != nil {
		if errors.Is(err, models.ErrUnauthorized) {
			return err
		}
		s.logger.Error("avatar change failed", slog.String("account_id", accountID), slog.Any("error", err))
		return models.ErrInternalServer
	}
	return nil
}

// GetAccount loads an account by id.
func (s *AccountService) GetAccount(ctx context.Context, id string) (*models.Account, error) {
	a, err := s.store(nil).GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		s.logger.Error("failed to get account", slog.String("account_id", id), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	return a, nil
}
