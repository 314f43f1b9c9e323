package mail

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	gomail "net/mail"
	gosmtp "net/smtp"
	"strings"
	"time"
)

// SMTPConfig holds the transport settings, injected at construction.
type SMTPConfig struct {
	Host        string
	Port        int
	Username    string
	Password    string
	FromName    string
	FromAddress string
	Encryption  string // starttls | ssl | none
}

// SMTPMailer sends mail over a single configured SMTP relay.
type SMTPMailer struct {
	cfg SMTPConfig
}

func NewSMTPMailer(cfg SMTPConfig) (*SMTPMailer, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("mail: SMTP host is required")
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	return &SMTPMailer{cfg: cfg}, nil
}

var _ Mailer = (*SMTPMailer)(nil)

// Send delivers one HTML message. The whole exchange — dial, handshake,
// auth, submit — runs under the context deadline (default 10s when the
// caller set none), so a wedged relay cannot stall the request.
func (m *SMTPMailer) Send(ctx context.Context, to, subject, htmlBody string) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
	}

	from := gomail.Address{Name: m.cfg.FromName, Address: m.cfg.FromAddress}

	// RFC 2822 message with an HTML body.
	var msg strings.Builder
	msg.WriteString(fmt.Sprintf("From: %s\r\n", from.String()))
	msg.WriteString(fmt.Sprintf("To: %s\r\n", to))
	msg.WriteString(fmt.Sprintf("Subject: %s\r\n", subject))
	msg.WriteString(fmt.Sprintf("Date: %s\r\n", time.Now().UTC().Format(time.RFC1123Z)))
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(htmlBody)

	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)

	switch m.cfg.Encryption {
	case "ssl":
		return m.sendSSL(ctx, addr, to, msg.String())
	case "none":
		return m.sendPlain(ctx, addr, to, msg.String())
	default: // starttls
		return m.sendStartTLS(ctx, addr, to, msg.String())
	}
}

// sendStartTLS upgrades a plain connection with STARTTLS (port 587 typical).
func (m *SMTPMailer) sendStartTLS(ctx context.Context, addr, to, msg string) error {
	conn, err := m.dial(ctx, addr)
	if err != nil {
		return fmt.Errorf("mail: connecting to %s: %w", addr, err)
	}
	defer conn.Close()

	client, err := gosmtp.NewClient(conn, m.cfg.Host)
	if err != nil {
		return fmt.Errorf("mail: creating smtp client: %w", err)
	}
	defer client.Close()

	tlsConfig := &tls.Config{ServerName: m.cfg.Host, MinVersion: tls.VersionTLS12}
	if err := client.StartTLS(tlsConfig); err != nil {
		return fmt.Errorf("mail: starting TLS: %w", err)
	}

	return m.submit(client, to, msg)
}

// sendSSL uses implicit TLS from the first byte (port 465 typical).
func (m *SMTPMailer) sendSSL(ctx context.Context, addr, to, msg string) error {
	raw, err := m.dial(ctx, addr)
	if err != nil {
		return fmt.Errorf("mail: connecting to %s (SSL): %w", addr, err)
	}

	tlsConfig := &tls.Config{ServerName: m.cfg.Host, MinVersion: tls.VersionTLS12}
	conn := tls.Client(raw, tlsConfig)
	if err := conn.HandshakeContext(ctx); err != nil {
		raw.Close()
		return fmt.Errorf("mail: TLS handshake with %s: %w", addr, err)
	}
	defer conn.Close()

	client, err := gosmtp.NewClient(conn, m.cfg.Host)
	if err != nil {
		return fmt.Errorf("mail: creating smtp client: %w", err)
	}
	defer client.Close()

	return m.submit(client, to, msg)
}

// sendPlain is unencrypted SMTP, for local relays and test servers only.
func (m *SMTPMailer) sendPlain(ctx context.Context, addr, to, msg string) error {
	conn, err := m.dial(ctx, addr)
	if err != nil {
		return fmt.Errorf("mail: connecting to %s: %w", addr, err)
	}
	defer conn.Close()

	client, err := gosmtp.NewClient(conn, m.cfg.Host)
	if err != nil {
		return fmt.Errorf("mail: creating smtp client: %w", err)
	}
	defer client.Close()

	return m.submit(client, to, msg)
}

func (m *SMTPMailer) dial(ctx context.Context, addr string) (net.Conn, error) {
	d := net.Dialer{}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	// Cover the rest of the exchange with the same deadline.
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	return conn, nil
}

func (m *SMTPMailer) submit(client *gosmtp.Client, to, msg string) error {
	if m.cfg.Username != "" {
		auth := gosmtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("mail: authenticating: %w", err)
		}
	}

	if err := client.Mail(m.cfg.FromAddress); err != nil {
		return fmt.Errorf("mail: MAIL FROM: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("mail: RCPT TO %s: %w", to, err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("mail: DATA: %w", err)
	}
	if _, err := w.Write([]byte(msg)); err != nil {
		w.Close()
		return fmt.Errorf("mail: writing message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("mail: finishing message: %w", err)
	}

	return client.Quit()
}
