package channels

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/casthq/caster/pkg/crypto"
	"github.com/casthq/caster/pkg/models"
)

const smtpDialTimeout = 10 * time.Second

// EmailChannel delivers messages over SMTP. Credentials are decrypted
// once at construction; each Send performs one full SMTP conversation.
type EmailChannel struct {
	host    string
	port    int
	user    string
	pass    string
	subject string
	sender  string
	logger  *slog.Logger
}

// NewEmailChannel builds the SMTP provider from an integration's
// credential bundle: smtp_host, smtp_port, smtp_user, smtp_pass and an
// optional subject.
func NewEmailChannel(integration *models.Integration, vault *crypto.Vault, logger *slog.Logger) (Channel, error) {
	credentials, err := vault.Decrypt(integration.EncryptedCredentials)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt email credentials: %w", err)
	}

	host := credentials["smtp_host"]
	if host == "" {
		return nil, errors.New("email credentials missing smtp_host")
	}

	port := 587
	if raw := credentials["smtp_port"]; raw != "" {
		port, err = strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid smtp_port %q: %w", raw, err)
		}
	}

	subject := credentials["subject"]
	if subject == "" {
		subject = "Notification"
	}

	return &EmailChannel{
		host:    host,
		port:    port,
		user:    credentials["smtp_user"],
		pass:    credentials["smtp_pass"],
		subject: subject,
		sender:  integration.SenderIdentifier,
		logger:  logger,
	}, nil
}

// Send performs one SMTP delivery. Port 465 uses implicit TLS, anything
// else upgrades via STARTTLS.
func (c *EmailChannel) Send(ctx context.Context, recipient, message string) Outcome {
	err := c.deliver(ctx, recipient, message)
	if err != nil {
		return failure(err)
	}

	return Outcome{Success: true, ResponseMessage: "email sent successfully"}
}

func (c *EmailChannel) deliver(ctx context.Context, recipient, message string) error {
	addr := net.JoinHostPort(c.host, strconv.Itoa(c.port))

	dialer := &net.Dialer{Timeout: smtpDialTimeout}

	var (
		conn net.Conn
		err  error
	)

	if c.port == 465 {
		conn, err = tls.DialWithDialer(dialer, "tcp", addr, &tls.Config{ServerName: c.host})
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}

	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", addr, err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	} else {
		_ = conn.SetDeadline(time.Now().Add(smtpDialTimeout))
	}

	client, err := smtp.NewClient(conn, c.host)
	if err != nil {
		_ = conn.Close()

		return fmt.Errorf("failed to open SMTP session: %w", err)
	}
	defer client.Close()

	if c.port != 465 {
		if ok, _ := client.Extension("STARTTLS"); ok {
			err = client.StartTLS(&tls.Config{ServerName: c.host})
			if err != nil {
				return fmt.Errorf("STARTTLS failed: %w", err)
			}
		}
	}

	if c.user != "" {
		auth := smtp.PlainAuth("", c.user, c.pass, c.host)

		err = client.Auth(auth)
		if err != nil {
			return fmt.Errorf("SMTP auth failed: %w", err)
		}
	}

	err = client.Mail(c.sender)
	if err != nil {
		return fmt.Errorf("MAIL FROM rejected: %w", err)
	}

	err = client.Rcpt(recipient)
	if err != nil {
		return fmt.Errorf("RCPT TO rejected: %w", err)
	}

	writer, err := client.Data()
	if err != nil {
		return fmt.Errorf("DATA rejected: %w", err)
	}

	_, err = writer.Write([]byte(c.buildMessage(recipient, message)))
	if err != nil {
		return fmt.Errorf("failed to write message body: %w", err)
	}

	err = writer.Close()
	if err != nil {
		return fmt.Errorf("failed to finish message: %w", err)
	}

	return client.Quit()
}

func (c *EmailChannel) buildMessage(recipient, body string) string {
	var sb strings.Builder

	sb.WriteString("From: " + c.sender + "\r\n")
	sb.WriteString("To: " + recipient + "\r\n")
	sb.WriteString("Subject: " + c.subject + "\r\n")
	sb.WriteString("MIME-Version: 1.0\r\n")
	sb.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n")
	sb.WriteString("\r\n")
	sb.WriteString(body)
	sb.WriteString("\r\n")

	return sb.String()
}
