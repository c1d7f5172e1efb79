package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mstrand/foyer/internal/database"
	"github.com/mstrand/foyer/internal/models"
)

// Querier is the subset of pgx satisfied by both *pgxpool.Pool and pgx.Tx,
// letting one repository serve pooled reads and transactional mutations.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// AccountHook runs after every successful account write. Hooks enforce
// invariants that must hold regardless of which operation touched the row,
// such as the superuser allow-list elevation.
type AccountHook func(ctx context.Context, q Querier, account *models.Account) error

type AccountRepository struct {
	q     Querier
	hooks []AccountHook
}

func NewAccountRepository(db *database.DB, hooks ...AccountHook) *AccountRepository {
	return &AccountRepository{q: db.Pool, hooks: hooks}
}

// WithTx returns a repository bound to an open transaction. Hooks carry over.
func (r *AccountRepository) WithTx(tx pgx.Tx) *AccountRepository {
	return &AccountRepository{q: tx, hooks: r.hooks}
}

const accountColumns = `id, email, new_email, email_confirm_code, new_email_confirm_code,
		email_confirmed, password_reset_code, password_hash, first_name, last_name,
		is_active, is_staff, is_superuser, avatar_url, avatar_key, date_joined, updated_at`

// rowScanner covers pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccountRow(scanner rowScanner) (*models.Account, error) {
	var a models.Account
	var passwordHash *string

	err := scanner.Scan(
		&a.ID, &a.Email, &a.NewEmail, &a.EmailConfirmCode, &a.NewEmailConfirmCode,
		&a.EmailConfirmed, &a.PasswordResetCode, &passwordHash, &a.FirstName, &a.LastName,
		&a.IsActive, &a.IsStaff, &a.IsSuperuser, &a.AvatarURL, &a.AvatarKey,
		&a.DateJoined, &a.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	if passwordHash != nil {
		a.PasswordHash = *passwordHash
	}

	return &a, nil
}

func (r *AccountRepository) GetByID(ctx context.Context, id string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	return scanAccountRow(r.q.QueryRow(ctx, query, id))
}

// GetByIDForUpdate locks the account row for the remainder of the enclosing
// transaction. Only meaningful on a repository bound via WithTx.
func (r *AccountRepository) GetByIDForUpdate(ctx context.Context, id string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1 FOR UPDATE`
	return scanAccountRow(r.q.QueryRow(ctx, query, id))
}

func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE lower(email) = lower($1)`
	return scanAccountRow(r.q.QueryRow(ctx, query, email))
}

// ActiveByEmail finds an active account by primary address.
func (r *AccountRepository) ActiveByEmail(ctx context.Context, email string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts
		WHERE lower(email) = lower($1) AND is_active`
	return scanAccountRow(r.q.QueryRow(ctx, query, email))
}

// ActiveByAnyEmail finds an active account whose primary or pending address
// matches, case-insensitively.
func (r *AccountRepository) ActiveByAnyEmail(ctx context.Context, email string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts
		WHERE (lower(email) = lower($1) OR lower(new_email) = lower($1)) AND is_active
		LIMIT 1`
	return scanAccountRow(r.q.QueryRow(ctx, query, email))
}

// EmailTaken reports whether any account other than excludeID already owns
// the address as primary or pending. Pass an empty excludeID to check all
// accounts.
func (r *AccountRepository) EmailTaken(ctx context.Context, email, excludeID string) (bool, error) {
	query := `SELECT EXISTS (
		SELECT 1 FROM accounts
		WHERE (lower(email) = lower($1) OR lower(new_email) = lower($1))
		  AND ($2 = '' OR id::text <> $2)
	)`

	var taken bool
	if err := r.q.QueryRow(ctx, query, email, excludeID).Scan(&taken); err != nil {
		return false, database.MapPostgresError(err)
	}
	return taken, nil
}

func (r *AccountRepository) Create(ctx context.Context, account *models.Account) (*models.Account, error) {
	account.ID = uuid.New().String()

	now := time.Now()
	if account.DateJoined.IsZero() {
		account.DateJoined = now
	}
	account.UpdatedAt = now

	query := `INSERT INTO accounts (id, email, new_email, email_confirm_code, new_email_confirm_code,
			email_confirmed, password_reset_code, password_hash, first_name, last_name,
			is_active, is_staff, is_superuser, avatar_url, avatar_key, date_joined, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		RETURNING ` + accountColumns

	var passwordHash *string
	if account.PasswordHash != "" {
		passwordHash = &account.PasswordHash
	}

	created, err := scanAccountRow(r.q.QueryRow(ctx, query,
		account.ID, account.Email, account.NewEmail, account.EmailConfirmCode, account.NewEmailConfirmCode,
		account.EmailConfirmed, account.PasswordResetCode, passwordHash, account.FirstName, account.LastName,
		account.IsActive, account.IsStaff, account.IsSuperuser, account.AvatarURL, account.AvatarKey,
		account.DateJoined, account.UpdatedAt,
	))
	if err != nil {
		return nil, err
	}

	if err := r.runHooks(ctx, created); err != nil {
		return nil, err
	}

	return created, nil
}

func (r *AccountRepository) Update(ctx context.Context, account *models.Account) (*models.Account, error) {
	account.UpdatedAt = time.Now()

	query := `UPDATE accounts SET email = $1, new_email = $2, email_confirm_code = $3,
			new_email_confirm_code = $4, email_confirmed = $5, password_reset_code = $6,
			password_hash = $7, first_name = $8, last_name = $9, is_active = $10,
			is_staff = $11, is_superuser = $12, avatar_url = $13, updated_at = $14
		WHERE id = $15
		RETURNING ` + accountColumns

	var passwordHash *string
	if account.PasswordHash != "" {
		passwordHash = &account.PasswordHash
	}

	updated, err := scanAccountRow(r.q.QueryRow(ctx, query,
		account.Email, account.NewEmail, account.EmailConfirmCode,
		account.NewEmailConfirmCode, account.EmailConfirmed, account.PasswordResetCode,
		passwordHash, account.FirstName, account.LastName, account.IsActive,
		account.IsStaff, account.IsSuperuser, account.AvatarURL, account.UpdatedAt,
		account.ID,
	))
	if err != nil {
		return nil, err
	}

	if err := r.runHooks(ctx, updated); err != nil {
		return nil, err
	}

	return updated, nil
}

// SetAvatarKey records the stored blob reference for a fetched avatar. It is
// a narrow update so the avatar jobs never clobber concurrent account
// mutations. Hooks do not run here: the avatar key is job bookkeeping, not an
// account mutation.
func (r *AccountRepository) SetAvatarKey(ctx context.Context, id, key string) error {
	tag, err := r.q.Exec(ctx,
		`UPDATE accounts SET avatar_key = $1, updated_at = now() WHERE id = $2`, key, id)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *AccountRepository) runHooks(ctx context.Context, account *models.Account) error {
	for _, h := range r.hooks {
		if err := h(ctx, r.q, account); err != nil {
			return fmt.Errorf("account hook failed: %w", err)
		}
	}
	return nil
}
