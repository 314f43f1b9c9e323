// Package mail sends transactional email (password-reset links) over SMTP.
package mail

import "context"

// Mailer is the outbound email transport. Implementations must honor the
// context deadline — a slow SMTP server must fail the send, not hang the
// request that triggered it.
type Mailer interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

type notConfiguredError struct{}

func (notConfiguredError) Error() string { return "mail: SMTP transport is not configured" }

// ErrNotConfigured is returned by the Unconfigured mailer.
var ErrNotConfigured error = notConfiguredError{}

// Unconfigured is the Mailer used when no SMTP host is configured.
// Password-reset dispatch fails cleanly instead of silently dropping mail.
type Unconfigured struct{}

func (Unconfigured) Send(ctx context.Context, to, subject, htmlBody string) error {
	return ErrNotConfigured
}

var _ Mailer = Unconfigured{}
