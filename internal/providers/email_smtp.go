// internal/providers/email_smtp.go
package providers

import (
	"context"
	"crypto/tls"
	stderrors "errors"
	"fmt"
	"mime/quotedprintable"
	"net/smtp"
	"net/textproto"
	"strings"
	"time"

	"github.com/google/uuid"

	"autoshop-notifications/internal/common/config"
	"autoshop-notifications/internal/common/errors"
	"autoshop-notifications/internal/common/logger"
	"autoshop-notifications/internal/models"
)

// SMTPProvider delivers email through a plain SMTP relay. Transient failures
// are retried with exponential backoff; a 5xx rejection from the server is
// treated as permanent and surfaces immediately.
type SMTPProvider struct {
	config     config.EmailConfig
	maxRetries int
	backoff    time.Duration
	logger     logger.Logger
}

func NewSMTPProvider(cfg config.EmailConfig, maxRetries int, backoff time.Duration, log logger.Logger) *SMTPProvider {
	return &SMTPProvider{
		config:     cfg,
		maxRetries: maxRetries,
		backoff:    backoff,
		logger:     log,
	}
}

func (p *SMTPProvider) Name() string {
	return "smtp"
}

func (p *SMTPProvider) Channel() models.Channel {
	return models.ChannelEmail
}

func (p *SMTPProvider) Send(ctx context.Context, target Target, msg Message) (*Result, error) {
	if target.Address == "" {
		return nil, errors.NewMissingAddressError(string(models.ChannelEmail), target.UserID)
	}
	if !isValidEmail(target.Address) {
		return nil, errors.NewAddressRejectedError(target.Address, fmt.Errorf("malformed address"))
	}

	if p.config.Sandbox {
		p.logger.Info("Sandbox email send", map[string]interface{}{
			"to":      target.Address,
			"subject": msg.Title,
		})
		return &Result{MessageID: "sandbox-" + uuid.New().String()}, nil
	}

	message := p.buildMessage(target.Address, msg)

	var lastErr error
	for attempt := 1; attempt <= p.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, errors.NewTransportTimeoutError(p.Name())
		}

		err := p.sendSMTP(target.Address, message)
		if err == nil {
			messageID := p.generateMessageID(target.Address)
			p.logger.Info("Email sent", map[string]interface{}{
				"to":        target.Address,
				"messageId": messageID,
				"attempt":   attempt,
			})
			return &Result{MessageID: messageID}, nil
		}

		if isPermanentSMTPError(err) {
			return nil, errors.NewAddressRejectedError(target.Address, err)
		}

		lastErr = err
		p.logger.Warn("SMTP send failed, will retry", map[string]interface{}{
			"to":      target.Address,
			"attempt": attempt,
			"error":   err.Error(),
		})

		if attempt < p.maxRetries {
			// exponential: base, 2*base, 4*base, ...
			delay := p.backoff * time.Duration(1<<(attempt-1))
			select {
			case <-ctx.Done():
				return nil, errors.NewTransportTimeoutError(p.Name())
			case <-time.After(delay):
			}
		}
	}

	return nil, errors.NewTransportFailedError(p.Name(), lastErr)
}

// buildMessage renders a multipart/alternative MIME message carrying both the
// plain-text and HTML bodies.
func (p *SMTPProvider) buildMessage(to string, msg Message) []byte {
	boundary := "np" + uuid.New().String()

	var builder strings.Builder

	builder.WriteString(fmt.Sprintf("From: %s\r\n", p.config.From))
	builder.WriteString(fmt.Sprintf("To: %s\r\n", to))
	builder.WriteString(fmt.Sprintf("Subject: %s\r\n", msg.Title))
	builder.WriteString("MIME-Version: 1.0\r\n")

	if msg.BodyHTML == "" {
		builder.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
		builder.WriteString("Content-Transfer-Encoding: quoted-printable\r\n")
		builder.WriteString("\r\n")
		builder.WriteString(encodeQP(msg.Body))
		return []byte(builder.String())
	}

	builder.WriteString(fmt.Sprintf("Content-Type: multipart/alternative; boundary=%q\r\n", boundary))
	builder.WriteString("\r\n")

	builder.WriteString(fmt.Sprintf("--%s\r\n", boundary))
	builder.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	builder.WriteString("Content-Transfer-Encoding: quoted-printable\r\n")
	builder.WriteString("\r\n")
	builder.WriteString(encodeQP(msg.Body))
	builder.WriteString("\r\n")

	builder.WriteString(fmt.Sprintf("--%s\r\n", boundary))
	builder.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	builder.WriteString("Content-Transfer-Encoding: quoted-printable\r\n")
	builder.WriteString("\r\n")
	builder.WriteString(encodeQP(msg.BodyHTML))
	builder.WriteString("\r\n")

	builder.WriteString(fmt.Sprintf("--%s--\r\n", boundary))

	return []byte(builder.String())
}

func (p *SMTPProvider) sendSMTP(to string, message []byte) error {
	addr := fmt.Sprintf("%s:%d", p.config.SMTP.Host, p.config.SMTP.Port)

	var auth smtp.Auth
	if p.config.SMTP.Username != "" && p.config.SMTP.Password != "" {
		auth = smtp.PlainAuth("", p.config.SMTP.Username, p.config.SMTP.Password, p.config.SMTP.Host)
	}

	if p.config.SMTP.UseTLS {
		return p.sendWithTLS(addr, auth, to, message)
	}

	return smtp.SendMail(addr, auth, p.config.From, []string{to}, message)
}

func (p *SMTPProvider) sendWithTLS(addr string, auth smtp.Auth, to string, msg []byte) error {
	client, err := smtp.Dial(addr)
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	defer client.Close()

	tlsConfig := &tls.Config{
		ServerName:         p.config.SMTP.Host,
		InsecureSkipVerify: false,
	}

	if err = client.StartTLS(tlsConfig); err != nil {
		return fmt.Errorf("failed to start TLS: %w", err)
	}

	if auth != nil {
		if err = client.Auth(auth); err != nil {
			return fmt.Errorf("SMTP authentication failed: %w", err)
		}
	}

	if err = client.Mail(p.config.From); err != nil {
		return fmt.Errorf("failed to set sender: %w", err)
	}

	if err = client.Rcpt(to); err != nil {
		return fmt.Errorf("failed to set recipient %s: %w", to, err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("failed to open data writer: %w", err)
	}

	if _, err = w.Write(msg); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}

	if err = w.Close(); err != nil {
		return fmt.Errorf("failed to close data writer: %w", err)
	}

	return client.Quit()
}

func (p *SMTPProvider) generateMessageID(to string) string {
	timestamp := time.Now().UnixNano()
	return fmt.Sprintf("<%d.%s@%s>", timestamp, sanitizeEmail(to), p.config.SMTP.Host)
}

// isPermanentSMTPError reports whether the server rejected the message with a
// 5xx code, meaning retrying the same message cannot succeed.
func isPermanentSMTPError(err error) bool {
	var protoErr *textproto.Error
	if stderrors.As(err, &protoErr) {
		return protoErr.Code >= 500 && protoErr.Code < 600
	}
	return false
}

func isValidEmail(email string) bool {
	email = strings.TrimSpace(email)
	if email == "" {
		return false
	}
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return false
	}
	if len(parts[0]) == 0 || len(parts[1]) == 0 {
		return false
	}
	return strings.Contains(parts[1], ".")
}

func sanitizeEmail(email string) string {
	parts := strings.Split(email, "@")
	if len(parts) > 0 {
		local := strings.Map(func(r rune) rune {
			if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
				return r
			}
			return -1
		}, parts[0])

		if len(local) > 10 {
			local = local[:10]
		}
		return local
	}
	return "user"
}

func encodeQP(s string) string {
	var buf strings.Builder
	w := quotedprintable.NewWriter(&buf)
	_, _ = w.Write([]byte(s))
	_ = w.Close()
	return buf.String()
}
