package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/mstrand/foyer/internal/models"
	pkglogger "github.com/mstrand/foyer/pkg/logger"
)

// EmailSender delivers a single rendered message.
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, htmlBody, textBody string) error
}

// ErrMailStale means the message can no longer be built truthfully: the
// account is gone, or the code or address it referred to has moved on.
// Retrying will not help.
var ErrMailStale = errors.New("mail no longer applicable")

// Mailer renders and sends the transactional account messages. Every send
// reloads the account and uses its currently stored codes, so a message
// queued before a code changed either carries the live code or is dropped
// as stale.
type Mailer struct {
	store    AccountStore
	sender   EmailSender
	domain   string
	siteName string
	logger   *slog.Logger
}

func NewMailer(store AccountStore, sender EmailSender, domain string, logger *slog.Logger) *Mailer {
	siteName := domain
	if i := strings.IndexByte(siteName, '.'); i > 0 {
		siteName = siteName[:i]
	}
	if siteName != "" {
		siteName = strings.ToUpper(siteName[:1]) + siteName[1:]
	}

	return &Mailer{
		store:    store,
		sender:   sender,
		domain:   domain,
		siteName: siteName,
		logger:   logger,
	}
}

func (m *Mailer) link(path string, query url.Values) string {
	u := url.URL{
		Scheme:   "https",
		Host:     m.domain,
		Path:     path,
		RawQuery: query.Encode(),
	}
	return u.String()
}

func (m *Mailer) confirmLink(accountID, code, next string) string {
	q := url.Values{}
	q.Set("id", accountID)
	q.Set("code", code)
	if next != "" {
		q.Set("next", next)
	}
	return m.link("/api/account/email_confirm", q)
}

func (m *Mailer) load(ctx context.Context, accountID string) (*models.Account, error) {
	a, err := m.store.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, ErrMailStale
		}
		return nil, err
	}
	return a, nil
}

func (m *Mailer) send(ctx context.Context, to, subject, intro, buttonText, buttonLink string) error {
	html := renderHTML(m.siteName, intro, buttonText, buttonLink)
	text := renderText(m.siteName, intro, buttonLink)

	if err := m.sender.SendEmail(ctx, to, subject, html, text); err != nil {
		return fmt.Errorf("failed to send %q: %w", subject, err)
	}
	m.logger.Info("mail sent",
		slog.String("subject", subject),
		slog.String("to", pkglogger.SanitizedEmail(to)))
	return nil
}

// SendSignupCompleted welcomes a fully signed-up account.
func (m *Mailer) SendSignupCompleted(ctx context.Context, accountID string) error {
	a, err := m.load(ctx, accountID)
	if err != nil {
		return err
	}
	intro := fmt.Sprintf("Hi %s, your account is ready. Welcome aboard!", a.FirstName)
	return m.send(ctx, a.Recipient(), "Welcome to "+m.siteName, intro, "", "")
}

// SendEmailConfirm asks the recipient to confirm the address the account
// signed up with. email selects which stored code is used; if neither the
// primary nor the pending address matches it anymore the message is stale.
func (m *Mailer) SendEmailConfirm(ctx context.Context, accountID, email, next string) error {
	a, err := m.load(ctx, accountID)
	if err != nil {
		return err
	}

	to, code, err := m.recipientAndCode(a, email)
	if err != nil {
		return err
	}

	intro := fmt.Sprintf("Hi %s, please confirm your email address to finish setting up your account.", a.FirstName)
	return m.send(ctx, to, "Confirm your email address", intro,
		"Confirm email", m.confirmLink(a.ID, code, next))
}

// SendEmailChange asks the new address to confirm an email change.
func (m *Mailer) SendEmailChange(ctx context.Context, accountID, email, next string) error {
	a, err := m.load(ctx, accountID)
	if err != nil {
		return err
	}

	to, code, err := m.recipientAndCode(a, email)
	if err != nil {
		return err
	}

	intro := fmt.Sprintf("Hi %s, confirm this address to make it the new email for your account.", a.FirstName)
	return m.send(ctx, to, "Confirm your new email address", intro,
		"Confirm new email", m.confirmLink(a.ID, code, next))
}

// recipientAndCode picks the recipient and confirm code matching email,
// mirroring how the account stores a primary and an optional pending
// address.
func (m *Mailer) recipientAndCode(a *models.Account, email string) (string, string, error) {
	switch {
	case strings.EqualFold(a.Email, email):
		if a.EmailConfirmCode == nil {
			return "", "", ErrMailStale
		}
		return a.Recipient(), *a.EmailConfirmCode, nil
	case a.NewEmail != nil && strings.EqualFold(*a.NewEmail, email):
		if a.NewEmailConfirmCode == nil {
			return "", "", ErrMailStale
		}
		return a.NewEmailRecipient(), *a.NewEmailConfirmCode, nil
	default:
		return "", "", ErrMailStale
	}
}

// SendEmailUpdated notifies the previous address that the account email
// changed.
func (m *Mailer) SendEmailUpdated(ctx context.Context, accountID, previousEmail string) error {
	a, err := m.load(ctx, accountID)
	if err != nil {
		return err
	}
	if previousEmail == "" {
		return ErrMailStale
	}

	to := fmt.Sprintf("%s %s <%s>", a.FirstName, a.LastName, previousEmail)
	intro := fmt.Sprintf("Hi %s, the email address on your account was changed to %s. If this wasn't you, contact support immediately.", a.FirstName, a.Email)
	return m.send(ctx, to, "Your email address was changed", intro, "", "")
}

// SendPasswordReset sends the reset link for the currently stored reset
// code. An inactive account or a consumed code makes the message stale.
func (m *Mailer) SendPasswordReset(ctx context.Context, accountID string) error {
	a, err := m.load(ctx, accountID)
	if err != nil {
		return err
	}
	if !a.IsActive || a.PasswordResetCode == nil {
		return ErrMailStale
	}

	q := url.Values{}
	q.Set("id", a.ID)
	q.Set("code", *a.PasswordResetCode)
	link := m.link("/password_reset/", q)

	intro := fmt.Sprintf("Hi %s, someone requested a password reset for your account. If that was you, use the button below; otherwise you can ignore this message.", a.FirstName)
	return m.send(ctx, a.Recipient(), "Reset your password", intro, "Reset password", link)
}

func renderHTML(siteName, intro, buttonText, buttonLink string) string {
	var b strings.Builder
	b.WriteString(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #333;">
  <div style="max-width: 600px; margin: 0 auto; padding: 20px;">
    <h2>` + siteName + `</h2>
    <p>` + intro + `</p>
`)
	if buttonLink != "" {
		b.WriteString(`    <p><a href="` + buttonLink + `" style="display: inline-block; background-color: #0066cc; color: white; padding: 12px 24px; text-decoration: none; border-radius: 4px;">` + buttonText + `</a></p>
    <p>Or copy and paste this link in your browser:<br><code>` + buttonLink + `</code></p>
`)
	}
	b.WriteString(`    <p style="color: #666; font-size: 12px;">Sincerely,<br>The ` + siteName + ` Team</p>
  </div>
</body>
</html>
`)
	return b.String()
}

func renderText(siteName, intro, buttonLink string) string {
	var b strings.Builder
	b.WriteString(siteName + "\n\n" + intro + "\n")
	if buttonLink != "" {
		b.WriteString("\n" + buttonLink + "\n")
	}
	b.WriteString("\nSincerely,\nThe " + siteName + " Team\n")
	return b.String()
}
