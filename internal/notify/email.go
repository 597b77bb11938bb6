package notify

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/gyaneshwarpardhi/auditlog/internal/config"
	"github.com/gyaneshwarpardhi/auditlog/internal/event"
)

// SendMailFunc transmits a fully formed message.
type SendMailFunc func(ctx context.Context, conf config.SMTPConf, to []string, msg []byte) error

// EmailChannel mails a plain-text alert to one or more comma-separated addresses.
type EmailChannel struct {
	send SendMailFunc
	now  func() time.Time
}

// NewEmailChannel returns an EmailChannel. A nil send uses SMTP directly.
func NewEmailChannel(send SendMailFunc) *EmailChannel {
	if send == nil {
		send = sendSMTP
	}
	return &EmailChannel{send: send, now: time.Now}
}

func (c *EmailChannel) Name() string { return "email" }

func (c *EmailChannel) Send(ctx context.Context, conf config.NotificationConf, e event.Event) error {
	to := config.SplitRecipients(conf.Destination)
	if len(to) == 0 {
		return errors.New("email: no recipients")
	}
	if conf.SMTP.Host == "" || conf.SMTP.From == "" {
		return errors.New("email: smtp host and from are required")
	}
	return c.send(ctx, conf.SMTP, to, c.buildMessage(conf.SMTP.From, to, e))
}

// Subject is the alert subject line for e.
func Subject(e event.Event) string {
	return "[Audit] Security Alert: " + e.Type
}

// Body is the plain-text alert body for e.
func Body(e event.Event) string {
	var b strings.Builder
	b.WriteString("A security event was recorded.\r\n\r\n")
	fmt.Fprintf(&b, "Type: %s\r\n", e.Type)
	fmt.Fprintf(&b, "Severity: %s\r\n", e.Severity)
	fmt.Fprintf(&b, "Message: %s\r\n", e.Message)
	fmt.Fprintf(&b, "IP: %s\r\n", e.SourceAddress)
	fmt.Fprintf(&b, "User: %s\r\n", e.Actor)
	fmt.Fprintf(&b, "Time: %s\r\n", e.Timestamp.UTC().Format(time.RFC3339))
	return b.String()
}

func (c *EmailChannel) buildMessage(from string, to []string, e event.Event) []byte {
	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", from)
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&msg, "Subject: %s\r\n", headerSafe(Subject(e)))
	fmt.Fprintf(&msg, "Date: %s\r\n", c.now().Format(time.RFC1123Z))
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(Body(e))
	return []byte(msg.String())
}

// headerSafe strips line breaks so event text cannot inject headers.
func headerSafe(s string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(s)
}

func sendSMTP(ctx context.Context, conf config.SMTPConf, to []string, msg []byte) error {
	addr := net.JoinHostPort(conf.Host, strconv.Itoa(conf.Port))

	dialer := &net.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("email: connect %s: %w", addr, err)
	}
	defer func() { _ = conn.Close() }()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, conf.Host)
	if err != nil {
		return fmt.Errorf("email: smtp client: %w", err)
	}
	defer func() { _ = client.Close() }()

	if conf.UseTLS {
		if err := client.StartTLS(&tls.Config{ServerName: conf.Host, MinVersion: tls.VersionTLS12}); err != nil {
			return fmt.Errorf("email: starttls: %w", err)
		}
	}
	if conf.Username != "" && conf.Password != "" {
		if err := client.Auth(smtp.PlainAuth("", conf.Username, conf.Password, conf.Host)); err != nil {
			return fmt.Errorf("email: auth: %w", err)
		}
	}
	if err := client.Mail(conf.From); err != nil {
		return fmt.Errorf("email: MAIL FROM: %w", err)
	}
	for _, rcpt := range to {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("email: RCPT TO %s: %w", rcpt, err)
		}
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("email: DATA: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("email: write body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("email: finish body: %w", err)
	}
	return client.Quit()
}
