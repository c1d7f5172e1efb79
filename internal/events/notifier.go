// Package events implements the in-process notifier that connects account
// state transitions to their side effects. Emission is synchronous and runs
// inside the caller's transaction: subscribers that need deferred effects
// (mail dispatch, avatar jobs) enqueue work transactionally, so effects are
// delivered at least once after commit and never for rolled-back mutations.
package events

import (
	"context"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/mstrand/foyer/internal/models"
)

type Name string

const (
	// EmailConfirmRequested fires when a confirmation mail for the primary
	// address should go out (signup, resend).
	EmailConfirmRequested Name = "email_confirm_requested"

	// NewEmailConfirmRequested fires when a pending address change needs
	// confirmation (change email, resend).
	NewEmailConfirmRequested Name = "new_email_confirm_requested"

	// EmailConfirmed fires once the primary address has been proven.
	EmailConfirmed Name = "email_confirmed"

	// EmailChanged fires when a pending address becomes the primary one.
	// Email carries the previous primary address so it can be notified.
	EmailChanged Name = "email_changed"

	// PasswordResetRequested fires when a reset code has been issued.
	PasswordResetRequested Name = "password_reset_requested"

	// SignupCompleted fires when an account becomes fully usable.
	SignupCompleted Name = "signup_completed"

	// AvatarFetchRequested fires when an account carries an external avatar
	// URL that should be ingested.
	AvatarFetchRequested Name = "avatar_fetch_requested"
)

// Event is the payload delivered to subscribers. Email is the address the
// event concerns (it may be the pending address, not the primary one), Next
// is an optional post-confirmation redirect hint.
type Event struct {
	Name    Name
	Account *models.Account
	Email   string
	Next    string
}

// Handler reacts to an event. Tx is the transaction of the emitting
// operation; handlers enqueue deferred work through it. A handler error
// aborts the whole operation.
type Handler func(ctx context.Context, tx pgx.Tx, evt Event) error

// Notifier is a process-wide publish/subscribe registry. Subscribe is
// expected at composition time; Publish is safe for concurrent use.
type Notifier struct {
	mu   sync.RWMutex
	subs map[Name][]Handler
}

func NewNotifier() *Notifier {
	return &Notifier{subs: make(map[Name][]Handler)}
}

// Subscribe registers a handler for the named event. Handlers run in
// registration order.
func (n *Notifier) Subscribe(name Name, h Handler) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.subs[name] = append(n.subs[name], h)
}

// Publish delivers evt to every subscriber synchronously. The first handler
// error is returned and the remaining handlers are skipped.
func (n *Notifier) Publish(ctx context.Context, tx pgx.Tx, evt Event) error {
	n.mu.RLock()
	handlers := n.subs[evt.Name]
	n.mu.RUnlock()

	for _, h := range handlers {
		if err := h(ctx, tx, evt); err != nil {
			return err
		}
	}
	return nil
}
