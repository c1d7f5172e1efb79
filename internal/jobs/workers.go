package jobs

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/riverqueue/river"

	"github.com/mstrand/foyer/internal/services"
)

// Stale mail and permanently broken avatar sources are cancelled rather
// than retried; river records the cancellation reason on the job row.

type signupCompletedMailWorker struct {
	river.WorkerDefaults[SignupCompletedMailArgs]
	mailer *services.Mailer
}

func (w *signupCompletedMailWorker) Work(ctx context.Context, job *river.Job[SignupCompletedMailArgs]) error {
	return cancelIfStale(w.mailer.SendSignupCompleted(ctx, job.Args.AccountID))
}

type emailConfirmMailWorker struct {
	river.WorkerDefaults[EmailConfirmMailArgs]
	mailer *services.Mailer
}

func (w *emailConfirmMailWorker) Work(ctx context.Context, job *river.Job[EmailConfirmMailArgs]) error {
	return cancelIfStale(w.mailer.SendEmailConfirm(ctx, job.Args.AccountID, job.Args.Email, job.Args.Next))
}

type emailChangeMailWorker struct {
	river.WorkerDefaults[EmailChangeMailArgs]
	mailer *services.Mailer
}

func (w *emailChangeMailWorker) Work(ctx context.Context, job *river.Job[EmailChangeMailArgs]) error {
	return cancelIfStale(w.mailer.SendEmailChange(ctx, job.Args.AccountID, job.Args.Email, ""))
}

type emailUpdatedMailWorker struct {
	river.WorkerDefaults[EmailUpdatedMailArgs]
	mailer *services.Mailer
}

func (w *emailUpdatedMailWorker) Work(ctx context.Context, job *river.Job[EmailUpdatedMailArgs]) error {
	return cancelIfStale(w.mailer.SendEmailUpdated(ctx, job.Args.AccountID, job.Args.PreviousEmail))
}

type passwordResetMailWorker struct {
	river.WorkerDefaults[PasswordResetMailArgs]
	mailer *services.Mailer
}

func (w *passwordResetMailWorker) Work(ctx context.Context, job *river.Job[PasswordResetMailArgs]) error {
	return cancelIfStale(w.mailer.SendPasswordReset(ctx, job.Args.AccountID))
}

type avatarFetchWorker struct {
	river.WorkerDefaults[AvatarFetchArgs]
	avatars *services.AvatarService
	logger  *slog.Logger
}

func (w *avatarFetchWorker) Work(ctx context.Context, job *river.Job[AvatarFetchArgs]) error {
	err := w.avatars.Ingest(ctx, job.Args.AccountID)
	if err != nil {
		if errors.Is(err, services.ErrAvatarPermanent) {
			w.logger.Warn("avatar fetch cancelled",
				slog.String("account_id", job.Args.AccountID),
				slog.Any("error", err))
			return river.JobCancel(err)
		}
		return err
	}

	// Build the alias renditions in a follow-up job.
	client := river.ClientFromContext[pgx.Tx](ctx)
	_, err = client.Insert(ctx, AvatarThumbnailArgs{AccountID: job.Args.AccountID}, nil)
	return err
}

type avatarThumbnailWorker struct {
	river.WorkerDefaults[AvatarThumbnailArgs]
	avatars *services.AvatarService
}

func (w *avatarThumbnailWorker) Work(ctx context.Context, job *river.Job[AvatarThumbnailArgs]) error {
	err := w.avatars.RegenerateThumbnails(ctx, job.Args.AccountID)
	if errors.Is(err, services.ErrAvatarPermanent) {
		return river.JobCancel(err)
	}
	return err
}

func cancelIfStale(err error) error {
	if errors.Is(err, services.ErrMailStale) {
		return river.JobCancel(err)
	}
	return err
}

// NewWorkers registers every worker this service runs.
func NewWorkers(mailer *services.Mailer, avatars *services.AvatarService, logger *slog.Logger) (*river.Workers, error) {
	workers := river.NewWorkers()

	if err := river.AddWorkerSafely(workers, &signupCompletedMailWorker{mailer: mailer}); err != nil {
		return nil, err
	}
	if err := river.AddWorkerSafely(workers, &emailConfirmMailWorker{mailer: mailer}); err != nil {
		return nil, err
	}
	if err := river.AddWorkerSafely(workers, &emailChangeMailWorker{mailer: mailer}); err != nil {
		return nil, err
	}
	if err := river.AddWorkerSafely(workers, &emailUpdatedMailWorker{mailer: mailer}); err != nil {
		return nil, err
	}
	if err := river.AddWorkerSafely(workers, &passwordResetMailWorker{mailer: mailer}); err != nil {
		return nil, err
	}
	if err := river.AddWorkerSafely(workers, &avatarFetchWorker{avatars: avatars, logger: logger}); err != nil {
		return nil, err
	}
	if err := river.AddWorkerSafely(workers, &avatarThumbnailWorker{avatars: avatars}); err != nil {
		return nil, err
	}

	return workers, nil
}
