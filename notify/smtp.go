package notify

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"gopkg.in/gomail.v2"
)

// SMTPConfig holds the mail relay settings and the links embedded in emails.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string

	// VerifyURL and ResetURL receive the token as the "token" query parameter.
	VerifyURL string
	ResetURL  string
	Product   string
}

type dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// SMTPSender delivers account emails through an SMTP relay.
type SMTPSender struct {
	dialer dialer
	cfg    SMTPConfig
}

func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	if cfg.Product == "" {
		cfg.Product = "eduAuth"
	}
	return &SMTPSender{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		cfg:    cfg,
	}
}

func (s *SMTPSender) SendVerificationEmail(ctx context.Context, email, token string) error {
	body := fmt.Sprintf(`
		<h2>Confirm your email address</h2>
		<p>Thanks for signing up for %s.</p>
		<p><a href="%s">Verify your email</a></p>
		<p>The link expires in 24 hours.</p>
	`, s.cfg.Product, withToken(s.cfg.VerifyURL, token))

	if err := s.send(ctx, email, "Verify your email address", body); err != nil {
		return fmt.Errorf("failed to send verification email: %w", err)
	}
	return nil
}

func (s *SMTPSender) SendPasswordResetEmail(ctx context.Context, email, token string) error {
	body := fmt.Sprintf(`
		<h3>Password reset requested</h3>
		<p>We received a request to reset the password for your account.</p>
		<p><a href="%s">Choose a new password</a></p>
		<p>If you did not request this change, you can ignore this email.</p>
	`, withToken(s.cfg.ResetURL, token))

	if err := s.send(ctx, email, "Password reset request", body); err != nil {
		return fmt.Errorf("failed to send password reset email: %w", err)
	}
	return nil
}

func (s *SMTPSender) SendTwoFactorCode(ctx context.Context, email, code string) error {
	body := fmt.Sprintf(`
		<h3>Your sign-in code</h3>
		<p>Use the following code to finish signing in: <strong>%s</strong></p>
		<p>It is valid for a few minutes only.</p>
	`, code)

	if err := s.send(ctx, email, "Your sign-in code", body); err != nil {
		return fmt.Errorf("failed to send two-factor code: %w", err)
	}
	return nil
}

func (s *SMTPSender) send(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.cfg.From)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", body)

	return s.dialer.DialAndSend(m)
}

func withToken(base, token string) string {
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + "token=" + url.QueryEscape(token)
}
