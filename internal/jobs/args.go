// Package jobs defines the background work that runs after account
// mutations commit: transactional mail dispatch and avatar ingestion.
// Jobs are inserted in the same database transaction as the mutation that
// caused them, so a rolled-back mutation never produces work.
package jobs

import "github.com/riverqueue/river"

// avatarFetchMaxAttempts bounds retries for transient fetch failures.
const avatarFetchMaxAttempts = 3

type SignupCompletedMailArgs struct {
	AccountID string `json:"account_id"`
}

func (SignupCompletedMailArgs) Kind() string { return "mail_signup_completed" }

type EmailConfirmMailArgs struct {
	AccountID string `json:"account_id"`
	// Email selects which stored address (primary or pending) the message
	// targets; the code is loaded fresh at send time.
	Email string `json:"email"`
	Next  string `json:"next,omitempty"`
}

func (EmailConfirmMailArgs) Kind() string { return "mail_email_confirm" }

type EmailChangeMailArgs struct {
	AccountID string `json:"account_id"`
	Email     string `json:"email"`
}

func (EmailChangeMailArgs) Kind() string { return "mail_email_change" }

type EmailUpdatedMailArgs struct {
	AccountID     string `json:"account_id"`
	PreviousEmail string `json:"previous_email"`
}

func (EmailUpdatedMailArgs) Kind() string { return "mail_email_updated" }

type PasswordResetMailArgs struct {
	AccountID string `json:"account_id"`
}

func (PasswordResetMailArgs) Kind() string { return "mail_password_reset" }

type AvatarFetchArgs struct {
	AccountID string `json:"account_id"`
}

func (AvatarFetchArgs) Kind() string { return "avatar_fetch" }

func (AvatarFetchArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{MaxAttempts: avatarFetchMaxAttempts}
}

type AvatarThumbnailArgs struct {
	AccountID string `json:"account_id"`
}

func (AvatarThumbnailArgs) Kind() string { return "avatar_thumbnails" }
