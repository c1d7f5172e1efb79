package repositories

import (
	"context"
	"log/slog"
	"slices"
	"strings"

	"github.com/mstrand/foyer/internal/database"
	"github.com/mstrand/foyer/internal/models"
	pkgauth "github.com/mstrand/foyer/pkg/auth"
)

// SuperuserElevationHook returns the post-save hook enforcing the superuser
// allow-list invariant: an account whose email is allow-listed holds
// staff+superuser privileges after every persisted mutation, and receives the
// configured default credential if it has none. The check runs on every
// write, not just on writes that touched the relevant fields.
func SuperuserElevationHook(superusers []string, defaultPassword string, logger *slog.Logger) AccountHook {
	return func(ctx context.Context, q Querier, account *models.Account) error {
		if !slices.Contains(superusers, strings.ToLower(account.Email)) {
			return nil
		}
		if account.IsSuperuser && account.IsStaff {
			return nil
		}

		account.IsSuperuser = true
		account.IsStaff = true

		if !account.HasUsablePassword() && defaultPassword != "" {
			hash, err := pkgauth.HashPassword(defaultPassword)
			if err != nil {
				return err
			}
			account.PasswordHash = hash
		}

		var passwordHash *string
		if account.PasswordHash != "" {
			passwordHash = &account.PasswordHash
		}

		_, err := q.Exec(ctx,
			`UPDATE accounts SET is_superuser = TRUE, is_staff = TRUE, password_hash = $1, updated_at = now()
			 WHERE id = $2`,
			passwordHash, account.ID)
		if err != nil {
			return database.MapPostgresError(err)
		}

		logger.Info("granted superuser privileges", slog.String("account_id", account.ID))
		return nil
	}
}
