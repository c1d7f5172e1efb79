package services

import (
	"context"
	"log/slog"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/mstrand/foyer/internal/events"
	"github.com/mstrand/foyer/internal/models"
	pkgauth "github.com/mstrand/foyer/pkg/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T, confirmationRequired bool) (*AccountService, *memStore, *[]events.Event) {
	t.Helper()

	store := newMemStore()
	notifier := events.NewNotifier()

	published := &[]events.Event{}
	record := func(ctx context.Context, tx pgx.Tx, evt events.Event) error {
		*published = append(*published, evt)
		return nil
	}
	for _, name := range []events.Name{
		events.EmailConfirmRequested,
		events.NewEmailConfirmRequested,
		events.EmailConfirmed,
		events.EmailChanged,
		events.PasswordResetRequested,
		events.SignupCompleted,
		events.AvatarFetchRequested,
	} {
		notifier.Subscribe(name, record)
	}

	svc := NewAccountService(stubTxRunner{}, fixedStore(store), notifier, slog.Default(), confirmationRequired)
	return svc, store, published
}

func eventNames(published []events.Event) []events.Name {
	names := make([]events.Name, 0, len(published))
	for _, evt := range published {
		names = append(names, evt.Name)
	}
	return names
}

func TestSignup_PendingConfirmation(t *testing.T) {
	svc, store, published := newTestService(t, true)

	a, err := svc.Signup(context.Background(), SignupInput{
		Email: "A@X.com", FirstName: "A", LastName: "B", Password: "pw-long-enough", Next: "/welcome",
	})

	require.NoError(t, err)
	assert.Equal(t, "a@x.com", a.Email)
	assert.False(t, a.EmailConfirmed)
	require.NotNil(t, a.EmailConfirmCode)
	assert.Len(t, *a.EmailConfirmCode, pkgauth.CodeByteSize*2)

	require.Equal(t, []events.Name{events.EmailConfirmRequested}, eventNames(*published))
	assert.Equal(t, "a@x.com", (*published)[0].Email)
	assert.Equal(t, "/welcome", (*published)[0].Next)

	stored, err := store.GetByID(context.Background(), a.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsActive)
}

func TestSignup_ConfirmationOff(t *testing.T) {
	svc, _, published := newTestService(t, false)

	a, err := svc.Signup(context.Background(), SignupInput{
		Email: "a@x.com", FirstName: "A", LastName: "B", Password: "pw-long-enough",
	})

	require.NoError(t, err)
	assert.True(t, a.EmailConfirmed)
	assert.Nil(t, a.EmailConfirmCode)
	assert.Equal(t, []events.Name{events.SignupCompleted}, eventNames(*published))
}

func TestSignup_DuplicateEmailCaseInsensitive(t *testing.T) {
	svc, _, _ := newTestService(t, true)

	_, err := svc.Signup(context.Background(), SignupInput{
		Email: "a@x.com", FirstName: "A", LastName: "B", Password: "pw-long-enough",
	})
	require.NoError(t, err)

	_, err = svc.Signup(context.Background(), SignupInput{
		Email: "A@X.COM", FirstName: "C", LastName: "D", Password: "pw-long-enough",
	})
	assert.ErrorIs(t, err, models.ErrDuplicateEmail)
}

func TestSignup_DuplicateOfPendingEmail(t *testing.T) {
	svc, _, _ := newTestService(t, true)

	a, err := svc.Signup(context.Background(), SignupInput{
		Email: "a@x.com", FirstName: "A", LastName: "B", Password: "pw-long-enough",
	})
	require.NoError(t, err)

	_, err = svc.ChangeEmail(context.Background(), a.ID, "new@x.com")
	require.NoError(t, err)

	_, err = svc.Signup(context.Background(), SignupInput{
		Email: "new@x.com", FirstName: "C", LastName: "D", Password: "pw-long-enough",
	})
	assert.ErrorIs(t, err, models.ErrDuplicateEmail)
}

func TestSignup_WithAvatarURL(t *testing.T) {
	svc, _, published := newTestService(t, true)

	a, err := svc.Signup(context.Background(), SignupInput{
		Email: "a@x.com", FirstName: "A", LastName: "B", Password: "pw-long-enough",
		AvatarURL: "https://pics.example.com/a.png",
	})

	require.NoError(t, err)
	require.NotNil(t, a.AvatarURL)
	require.Equal(t, []events.Name{events.AvatarFetchRequested, events.EmailConfirmRequested}, eventNames(*published))
}

func TestConfirmEmail_WrongCodeIsNoOp(t *testing.T) {
	svc, store, published := newTestService(t, true)

	a, err := svc.Signup(context.Background(), SignupInput{
		Email: "a@x.com", FirstName: "A", LastName: "B", Password: "pw-long-enough",
	})
	require.NoError(t, err)
	*published = nil

	confirmed, err := svc.ConfirmEmail(context.Background(), a.ID, "not-the-code")

	require.NoError(t, err)
	assert.Nil(t, confirmed)
	assert.Empty(t, *published)

	stored, err := store.GetByID(context.Background(), a.ID)
	require.NoError(t, err)
	assert.False(t, stored.EmailConfirmed)
	assert.NotNil(t, stored.EmailConfirmCode)
}

func TestConfirmEmail_Success(t *testing.T) {
	svc, store, published := newTestService(t, true)

	a, err := svc.Signup(context.Background(), SignupInput{
		Email: "a@x.com", FirstName: "A", LastName: "B", Password: "pw-long-enough",
	})
	require.NoError(t, err)
	code := *a.EmailConfirmCode
	*published = nil

	confirmed, err := svc.ConfirmEmail(context.Background(), a.ID, code)

	require.NoError(t, err)
	require.NotNil(t, confirmed)
	assert.True(t, confirmed.EmailConfirmed)
	assert.Nil(t, confirmed.EmailConfirmCode)
	assert.True(t, confirmed.IsActive)
	assert.Equal(t, []events.Name{events.EmailConfirmed, events.SignupCompleted}, eventNames(*published))

	stored, err := store.GetByID(context.Background(), a.ID)
	require.NoError(t, err)
	assert.True(t, stored.EmailConfirmed)
}

func TestConfirmEmail_CodeIsSingleUse(t *testing.T) {
	svc, _, published := newTestService(t, true)

	a, err := svc.Signup(context.Background(), SignupInput{
		Email: "a@x.com", FirstName: "A", LastName: "B", Password: "pw-long-enough",
	})
	require.NoError(t, err)
	code := *a.EmailConfirmCode

	confirmed, err := svc.ConfirmEmail(context.Background(), a.ID, code)
	require.NoError(t, err)
	require.NotNil(t, confirmed)

	*published = nil
	replayed, err := svc.ConfirmEmail(context.Background(), a.ID, code)

	require.NoError(t, err)
	assert.Nil(t, replayed)
	assert.Empty(t, *published)
}

func TestConfirmEmail_UnknownAccountIsSilent(t *testing.T) {
	svc, _, _ := newTestService(t, true)

	confirmed, err := svc.ConfirmEmail(context.Background(), "0b7aa52e-25b2-44ac-b784-882bfd50d03e", "some-code")

	require.NoError(t, err)
	assert.Nil(t, confirmed)
}

func TestConfirmEmail_PromotesPendingEmail(t *testing.T) {
	svc, store, published := newTestService(t, true)

	a, err := svc.Signup(context.Background(), SignupInput{
		Email: "a@x.com", FirstName: "A", LastName: "B", Password: "pw-long-enough",
	})
	require.NoError(t, err)
	_, err = svc.ChangeEmail(context.Background(), a.ID, "New@X.com")
	require.NoError(t, err)

	stored, err := store.GetByID(context.Background(), a.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.NewEmailConfirmCode)
	*published = nil

	confirmed, err := svc.ConfirmEmail(context.Background(), a.ID, *stored.NewEmailConfirmCode)

	require.NoError(t, err)
	require.NotNil(t, confirmed)
	assert.Equal(t, "new@x.com", confirmed.Email)
	assert.Nil(t, confirmed.NewEmail)
	assert.Nil(t, confirmed.NewEmailConfirmCode)
	assert.True(t, confirmed.EmailConfirmed)

	require.Equal(t, []events.Name{events.SignupCompleted, events.EmailChanged}, eventNames(*published))
	assert.Equal(t, "a@x.com", (*published)[1].Email, "the previous address gets the change notice")
}

func TestConfirmEmail_PendingCollisionLeavesPendingIntact(t *testing.T) {
	svc, store, _ := newTestService(t, true)

	a, err := svc.Signup(context.Background(), SignupInput{
		Email: "a@x.com", FirstName: "A", LastName: "B", Password: "pw-long-enough",
	})
	require.NoError(t, err)
	_, err = svc.ChangeEmail(context.Background(), a.ID, "new@x.com")
	require.NoError(t, err)

	// A second account claims the address while the change is pending.
	rival, err := store.Create(context.Background(), &models.Account{
		Email: "new@x.com", FirstName: "R", LastName: "V", IsActive: true, EmailConfirmed: true,
	})
	require.NoError(t, err)

	stored, err := store.GetByID(context.Background(), a.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.NewEmailConfirmCode)

	confirmed, err := svc.ConfirmEmail(context.Background(), a.ID, *stored.NewEmailConfirmCode)

	// The code still authenticates its account, but the address is not
	// promoted and the pending fields survive.
	require.NoError(t, err)
	require.NotNil(t, confirmed)
	assert.Equal(t, "a@x.com", confirmed.Email)

	after, err := store.GetByID(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", after.Email)
	require.NotNil(t, after.NewEmail)
	assert.Equal(t, "new@x.com", *after.NewEmail)
	assert.NotNil(t, after.NewEmailConfirmCode)

	owner, err := store.GetByEmail(context.Background(), "new@x.com")
	require.NoError(t, err)
	assert.Equal(t, rival.ID, owner.ID)
}

func TestResendConfirmation_ReusesExistingCode(t *testing.T) {
	svc, store, published := newTestService(t, true)

	a, err := svc.Signup(context.Background(), SignupInput{
		Email: "a@x.com", FirstName: "A", LastName: "B", Password: "pw-long-enough",
	})
	require.NoError(t, err)
	code := *a.EmailConfirmCode
	*published = nil

	require.NoError(t, svc.ResendConfirmation(context.Background(), "A@X.com"))

	require.Equal(t, []events.Name{events.EmailConfirmRequested}, eventNames(*published))

	stored, err := store.GetByID(context.Background(), a.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.EmailConfirmCode)
	assert.Equal(t, code, *stored.EmailConfirmCode, "resend must never regenerate the code")
}

func TestResendConfirmation_PendingEmail(t *testing.T) {
	svc, _, published := newTestService(t, true)

	a, err := svc.Signup(context.Background(), SignupInput{
		Email: "a@x.com", FirstName: "A", LastName: "B", Password: "pw-long-enough",
	})
	require.NoError(t, err)
	_, err = svc.ChangeEmail(context.Background(), a.ID, "new@x.com")
	require.NoError(t, err)
	*published = nil

	require.NoError(t, svc.ResendConfirmation(context.Background(), "new@x.com"))

	require.Equal(t, []events.Name{events.NewEmailConfirmRequested}, eventNames(*published))
	assert.Equal(t, "new@x.com", (*published)[0].Email)
}

func TestResendConfirmation_UnknownEmailStillSucceeds(t *testing.T) {
	svc, _, published := newTestService(t, true)

	err := svc.ResendConfirmation(context.Background(), "nobody@x.com")

	require.NoError(t, err)
	assert.Empty(t, *published)
}

func TestChangeEmail_Unauthorized(t *testing.T) {
	svc, _, _ := newTestService(t, true)

	_, err := svc.ChangeEmail(context.Background(), "", "new@x.com")
	assert.ErrorIs(t, err, models.ErrUnauthorized)
}

func TestChangeEmail_DuplicateDoesNotMutate(t *testing.T) {
	svc, store, _ := newTestService(t, true)

	a, err := svc.Signup(context.Background(), SignupInput{
		Email: "a@x.com", FirstName: "A", LastName: "B", Password: "pw-long-enough",
	})
	require.NoError(t, err)
	_, err = svc.Signup(context.Background(), SignupInput{
		Email: "b@x.com", FirstName: "C", LastName: "D", Password: "pw-long-enough",
	})
	require.NoError(t, err)

	_, err = svc.ChangeEmail(context.Background(), a.ID, "B@X.com")
	assert.ErrorIs(t, err, models.ErrDuplicateEmail)

	stored, err := store.GetByID(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.NewEmail)
	assert.Nil(t, stored.NewEmailConfirmCode)
}

func TestChangeEmail_SetsPendingAndKeepsPrimary(t *testing.T) {
	svc, store, published := newTestService(t, true)

	a, err := svc.Signup(context.Background(), SignupInput{
		Email: "a@x.com", FirstName: "A", LastName: "B", Password: "pw-long-enough",
	})
	require.NoError(t, err)
	*published = nil

	primary, err := svc.ChangeEmail(context.Background(), a.ID, "New@X.com")

	require.NoError(t, err)
	assert.Equal(t, "a@x.com", primary, "primary email must not change until confirmation")

	stored, err := store.GetByID(context.Background(), a.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.NewEmail)
	assert.Equal(t, "new@x.com", *stored.NewEmail)
	assert.NotNil(t, stored.NewEmailConfirmCode)

	require.Equal(t, []events.Name{events.NewEmailConfirmRequested}, eventNames(*published))
	assert.Equal(t, "new@x.com", (*published)[0].Email)
}

func TestChangeEmail_SameEmailClearsPending(t *testing.T) {
	svc, store, published := newTestService(t, true)

	a, err := svc.Signup(context.Background(), SignupInput{
		Email: "a@x.com", FirstName: "A", LastName: "B", Password: "pw-long-enough",
	})
	require.NoError(t, err)
	_, err = svc.ChangeEmail(context.Background(), a.ID, "new@x.com")
	require.NoError(t, err)
	*published = nil

	primary, err := svc.ChangeEmail(context.Background(), a.ID, "a@x.com")

	require.NoError(t, err)
	assert.Equal(t, "a@x.com", primary)
	assert.Empty(t, *published)

	stored, err := store.GetByID(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.NewEmail)
	assert.Nil(t, stored.NewEmailConfirmCode)
}

func TestResetPasswordRequest_UniformResponse(t *testing.T) {
	svc, _, published := newTestService(t, true)

	_, err := svc.Signup(context.Background(), SignupInput{
		Email: "a@x.com", FirstName: "A", LastName: "B", Password: "pw-long-enough",
	})
	require.NoError(t, err)
	*published = nil

	assert.NoError(t, svc.ResetPasswordRequest(context.Background(), "a@x.com"))
	assert.NoError(t, svc.ResetPasswordRequest(context.Background(), "nobody@x.com"))

	// Only the existing account produced an event.
	assert.Equal(t, []events.Name{events.PasswordResetRequested}, eventNames(*published))
}

func TestResetPasswordRequest_OverwritesPreviousCode(t *testing.T) {
	svc, store, _ := newTestService(t, true)

	a, err := svc.Signup(context.Background(), SignupInput{
		Email: "a@x.com", FirstName: "A", LastName: "B", Password: "pw-long-enough",
	})
	require.NoError(t, err)

	require.NoError(t, svc.ResetPasswordRequest(context.Background(), "a@x.com"))
	first, err := store.GetByID(context.Background(), a.ID)
	require.NoError(t, err)
	require.NotNil(t, first.PasswordResetCode)

	require.NoError(t, svc.ResetPasswordRequest(context.Background(), "a@x.com"))
	second, err := store.GetByID(context.Background(), a.ID)
	require.NoError(t, err)
	require.NotNil(t, second.PasswordResetCode)

	assert.NotEqual(t, *first.PasswordResetCode, *second.PasswordResetCode, "old reset links must invalidate")
}

func TestSetPassword_InvalidCode(t *testing.T) {
	svc, _, _ := newTestService(t, true)

	a, err := svc.Signup(context.Background(), SignupInput{
		Email: "a@x.com", FirstName: "A", LastName: "B", Password: "pw-long-enough",
	})
	require.NoError(t, err)
	require.NoError(t, svc.ResetPasswordRequest(context.Background(), "a@x.com"))

	_, err = svc.SetPassword(context.Background(), a.ID, "stale-code", "brand-new-password")
	assert.ErrorIs(t, err, models.ErrInvalidResetCode)
}

func TestSetPassword_SuccessAndSingleUse(t *testing.T) {
	svc, store, _ := newTestService(t, true)

	a, err := svc.Signup(context.Background(), SignupInput{
		Email: "a@x.com", FirstName: "A", LastName: "B", Password: "pw-long-enough",
	})
	require.NoError(t, err)
	require.NoError(t, svc.ResetPasswordRequest(context.Background(), "a@x.com"))

	stored, err := store.GetByID(context.Background(), a.ID)
	require.NoError(t, err)
	code := *stored.PasswordResetCode

	updated, err := svc.SetPassword(context.Background(), a.ID, code, "brand-new-password")

	require.NoError(t, err)
	require.NotNil(t, updated)
	assert.Nil(t, updated.PasswordResetCode)
	assert.True(t, updated.EmailConfirmed, "a successful reset proves control of the address")
	assert.NoError(t, pkgauth.ComparePassword(updated.PasswordHash, "brand-new-password"))

	_, err = svc.SetPassword(context.Background(), a.ID, code, "yet-another-password")
	assert.ErrorIs(t, err, models.ErrInvalidResetCode)
}

func TestChangePassword(t *testing.T) {
	svc, store, _ := newTestService(t, true)

	a, err := svc.Signup(context.Background(), SignupInput{
		Email: "a@x.com", FirstName: "A", LastName: "B", Password: "pw-long-enough",
	})
	require.NoError(t, err)

	assert.ErrorIs(t, svc.ChangePassword(context.Background(), "", "pw-long-enough", "next-password-1"), models.ErrUnauthorized)
	assert.ErrorIs(t, svc.ChangePassword(context.Background(), a.ID, "wrong-old", "next-password-1"), models.ErrWrongPassword)

	require.NoError(t, svc.ChangePassword(context.Background(), a.ID, "pw-long-enough", "next-password-1"))

	stored, err := store.GetByID(context.Background(), a.ID)
	require.NoError(t, err)
	assert.NoError(t, pkgauth.ComparePassword(stored.PasswordHash, "next-password-1"))
}

func TestAuthenticate_FullLifecycle(t *testing.T) {
	svc, _, _ := newTestService(t, true)

	a, err := svc.Signup(context.Background(), SignupInput{
		Email: "a@x.com", FirstName: "A", LastName: "B", Password: "pw-long-enough",
	})
	require.NoError(t, err)

	// Correct password before confirmation: locked, not invalid credentials.
	_, err = svc.Authenticate(context.Background(), "a@x.com", "pw-long-enough")
	assert.ErrorIs(t, err, models.ErrAccountLocked)

	// Wrong password stays undifferentiated.
	_, err = svc.Authenticate(context.Background(), "a@x.com", "wrong")
	assert.ErrorIs(t, err, models.ErrInvalidCredentials)

	_, err = svc.Authenticate(context.Background(), "nobody@x.com", "pw-long-enough")
	assert.ErrorIs(t, err, models.ErrInvalidCredentials)

	confirmed, err := svc.ConfirmEmail(context.Background(), a.ID, *a.EmailConfirmCode)
	require.NoError(t, err)
	require.NotNil(t, confirmed)

	authed, err := svc.Authenticate(context.Background(), "a@x.com", "pw-long-enough")
	require.NoError(t, err)
	assert.Equal(t, a.ID, authed.ID)
}

func TestAuthenticate_InactiveAccountIsLocked(t *testing.T) {
	svc, store, _ := newTestService(t, true)

	a, err := svc.Signup(context.Background(), SignupInput{
		Email: "a@x.com", FirstName: "A", LastName: "B", Password: "pw-long-enough",
	})
	require.NoError(t, err)
	confirmed, err := svc.ConfirmEmail(context.Background(), a.ID, *a.EmailConfirmCode)
	require.NoError(t, err)

	confirmed.IsActive = false
	_, err = store.Update(context.Background(), confirmed)
	require.NoError(t, err)

	_, err = svc.Authenticate(context.Background(), "a@x.com", "pw-long-enough")
	assert.ErrorIs(t, err, models.ErrAccountLocked)
}

func TestChangeAvatar(t *testing.T) {
	svc, store, published := newTestService(t, true)

	a, err := svc.Signup(context.Background(), SignupInput{
		Email: "a@x.com", FirstName: "A", LastName: "B", Password: "pw-long-enough",
	})
	require.NoError(t, err)
	*published = nil

	assert.ErrorIs(t, svc.ChangeAvatar(context.Background(), "", "https://pics.example.com/a.png"), models.ErrUnauthorized)

	require.NoError(t, svc.ChangeAvatar(context.Background(), a.ID, "https://pics.example.com/a.png"))

	stored, err := store.GetByID(context.Background(), a.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.AvatarURL)
	assert.Equal(t, "https://pics.example.com/a.png", *stored.AvatarURL)
	require.Equal(t, []events.Name{events.AvatarFetchRequested}, eventNames(*published))
}

func TestSignup_StoreErrorIsInternal(t *testing.T) {
	notifier := events.NewNotifier()
	mock := &MockAccountStore{
		EmailTakenFunc: func(ctx context.Context, email, excludeID string) (bool, error) {
			return false, models.ErrInternalServer
		},
	}
	svc := NewAccountService(stubTxRunner{}, fixedStore(mock), notifier, slog.Default(), true)

	_, err := svc.Signup(context.Background(), SignupInput{
		Email: "a@x.com", FirstName: "A", LastName: "B", Password: "pw-long-enough",
	})
	assert.ErrorIs(t, err, models.ErrInternalServer)
}
