package report

import (
	"crypto/tls"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/stay-lock-sync/backend/internal/config"
)

// Mailer delivers run reports over SMTP. Port 465 uses implicit TLS;
// everything else dials plain and upgrades with STARTTLS when configured
// and offered.
type Mailer struct {
	cfg config.MailConfig
}

// NewMailer creates a mailer from the mail configuration.
func NewMailer(cfg config.MailConfig) *Mailer {
	return &Mailer{cfg: cfg}
}

// Enabled reports whether delivery is configured at all. An unset host or
// recipient silently disables the sink.
func (m *Mailer) Enabled() bool {
	return m.cfg.Host != "" && m.cfg.To != ""
}

// Send delivers one report. The caller logs failures; delivery problems
// never affect the run's outcome.
func (m *Mailer) Send(subject, body string) error {
	if !m.Enabled() {
		return nil
	}

	recipients := splitAddresses(m.cfg.To)
	msg := m.message(subject, body, recipients)
	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)

	client, err := m.dial(addr)
	if err != nil {
		return err
	}
	defer client.Close()

	if m.cfg.User != "" {
		// Local relays may not offer AUTH at all; only authenticate when
		// the server advertises it.
		if ok, _ := client.Extension("AUTH"); ok {
			auth := smtp.PlainAuth("", m.cfg.User, m.cfg.Password, m.cfg.Host)
			if err := client.Auth(auth); err != nil {
				return fmt.Errorf("smtp auth: %w", err)
			}
		}
	}

	if err := client.Mail(m.cfg.From); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	for _, rcpt := range recipients {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("smtp rcpt %s: %w", rcpt, err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("writing message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("closing message: %w", err)
	}

	return client.Quit()
}

// dial opens the SMTP session, implicit TLS on 465, otherwise plain with an
// optional STARTTLS upgrade.
func (m *Mailer) dial(addr string) (*smtp.Client, error) {
	if m.cfg.Port == 465 {
		conn, err := tls.Dial("tcp", addr, &tls.Config{ServerName: m.cfg.Host})
		if err != nil {
			return nil, fmt.Errorf("tls dial %s: %w", addr, err)
		}
		client, err := smtp.NewClient(conn, m.cfg.Host)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("smtp handshake: %w", err)
		}
		return client, nil
	}

	client, err := smtp.Dial(addr)
	if err != nil {
		return nil, fmt.Errorf("smtp dial %s: %w", addr, err)
	}

	if m.cfg.UseStartTLS() {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(&tls.Config{ServerName: m.cfg.Host}); err != nil {
				client.Close()
				return nil, fmt.Errorf("starttls: %w", err)
			}
		}
	}

	return client, nil
}

// message assembles the RFC 5322 payload.
func (m *Mailer) message(subject, body string, recipients []string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", m.cfg.From)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(recipients, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	return []byte(b.String())
}

func splitAddresses(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
