package jobs

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"

	"github.com/mstrand/foyer/internal/events"
)

// JobInserter is the slice of the river client the receivers need. Inserts
// ride the emitting operation's transaction, so jobs exist exactly when the
// mutation that caused them committed.
type JobInserter interface {
	InsertTx(ctx context.Context, tx pgx.Tx, args river.JobArgs, opts *river.InsertOpts) (*rivertype.JobInsertResult, error)
}

// RegisterReceivers connects account events to job inserts.
func RegisterReceivers(notifier *events.Notifier, client JobInserter) {
	notifier.Subscribe(events.SignupCompleted, func(ctx context.Context, tx pgx.Tx, evt events.Event) error {
		_, err := client.InsertTx(ctx, tx, SignupCompletedMailArgs{AccountID: evt.Account.ID}, nil)
		return err
	})

	notifier.Subscribe(events.EmailConfirmRequested, func(ctx context.Context, tx pgx.Tx, evt events.Event) error {
		_, err := client.InsertTx(ctx, tx, EmailConfirmMailArgs{
			AccountID: evt.Account.ID,
			Email:     evt.Email,
			Next:      evt.Next,
		}, nil)
		return err
	})

	notifier.Subscribe(events.NewEmailConfirmRequested, func(ctx context.Context, tx pgx.Tx, evt events.Event) error {
		_, err := client.InsertTx(ctx, tx, EmailChangeMailArgs{
			AccountID: evt.Account.ID,
			Email:     evt.Email,
		}, nil)
		return err
	})

	notifier.Subscribe(events.EmailChanged, func(ctx context.Context, tx pgx.Tx, evt events.Event) error {
		_, err := client.InsertTx(ctx, tx, EmailUpdatedMailArgs{
			AccountID:     evt.Account.ID,
			PreviousEmail: evt.Email,
		}, nil)
		return err
	})

	notifier.Subscribe(events.PasswordResetRequested, func(ctx context.Context, tx pgx.Tx, evt events.Event) error {
		_, err := client.InsertTx(ctx, tx, PasswordResetMailArgs{AccountID: evt.Account.ID}, nil)
		return err
	})

	notifier.Subscribe(events.AvatarFetchRequested, func(ctx context.Context, tx pgx.Tx, evt events.Event) error {
		_, err := client.InsertTx(ctx, tx, AvatarFetchArgs{AccountID: evt.Account.ID}, nil)
		return err
	})
}
