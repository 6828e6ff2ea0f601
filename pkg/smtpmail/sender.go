// Package smtpmail delivers contact messages over SMTP.
package smtpmail

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"mime/quotedprintable"
	"net/mail"
	"strings"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	apperrors "github.com/folio/contact-relay/pkg/errors"
	"github.com/folio/contact-relay/pkg/logger"
	"github.com/folio/contact-relay/pkg/metrics"
	"go.uber.org/zap"
)

const ProviderName = "smtp"

// Settings describe the SMTP relay and the mailbox that receives contact messages
type Settings struct {
	Addr     string
	Username string
	Password string
	From     string
	To       string
}

// Complete reports whether the sender can attempt delivery
func (s Settings) Complete() bool {
	return s.Addr != "" && s.From != "" && s.To != ""
}

// Message is one contact message
type Message struct {
	FromName string
	ReplyTo  string
	Subject  string
	Body     string
}

type sendMailFunc func(addr string, a sasl.Client, from string, to []string, r io.Reader) error

// Sender delivers messages through smtp.SendMail
type Sender struct {
	settings Settings
	sendMail sendMailFunc
	now      func() time.Time
}

// NewSender creates a new SMTP sender
func NewSender(settings Settings) *Sender {
	return &Sender{
		settings: settings,
		sendMail: smtp.SendMail,
		now:      time.Now,
	}
}

// Configured reports whether the sender has its relay and addresses
func (s *Sender) Configured() bool {
	return s.settings.Complete()
}

// Send delivers msg. The SMTP exchange itself cannot be interrupted: once it has
// started, a done ctx yields an error matching both errors.ErrDeliveryUnconfirmed
// and ctx.Err() while the exchange finishes in the background.
func (s *Sender) Send(ctx context.Context, msg Message) error {
	if !s.Configured() {
		return apperrors.NotConfiguredError("smtp settings")
	}

	data, err := s.buildMessage(msg)
	if err != nil {
		return err
	}

	var auth sasl.Client
	if s.settings.Username != "" {
		auth = sasl.NewPlainClient("", s.settings.Username, s.settings.Password)
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	start := time.Now()
	done := make(chan error, 1)
	go func() {
		done <- s.sendMail(s.settings.Addr, auth, s.settings.From, []string{s.settings.To}, bytes.NewReader(data))
	}()

	select {
	case <-ctx.Done():
		s.observe(start, "timeout")
		logger.Warn("Stopped waiting for SMTP delivery; the message may still be delivered",
			zap.String("addr", s.settings.Addr),
			zap.Error(ctx.Err()))
		go func() {
			if err := <-done; err != nil {
				logger.Warn("Background SMTP delivery failed", zap.String("addr", s.settings.Addr), zap.Error(err))
				return
			}
			logger.Info("Background SMTP delivery completed", zap.String("addr", s.settings.Addr))
		}()
		return fmt.Errorf("%w: %w", apperrors.ErrDeliveryUnconfirmed, ctx.Err())
	case err := <-done:
		if err != nil {
			s.observe(start, "error")
			logger.Warn("SMTP delivery failed", zap.String("addr", s.settings.Addr), zap.Error(err))
			return &apperrors.ProviderError{
				Provider: ProviderName,
				Message:  err.Error(),
			}
		}
		s.observe(start, "success")
		return nil
	}
}

func (s *Sender) observe(start time.Time, status string) {
	logger.LogAPICall(ProviderName, "send", status, metrics.ObserveProvider(ProviderName, status, start))
}

// buildMessage renders an RFC 5322 plain-text message
func (s *Sender) buildMessage(msg Message) ([]byte, error) {
	from, err := mail.ParseAddress(s.settings.From)
	if err != nil {
		return nil, fmt.Errorf("invalid SMTP_FROM: %w", err)
	}
	to, err := mail.ParseAddress(s.settings.To)
	if err != nil {
		return nil, fmt.Errorf("invalid SMTP_TO: %w", err)
	}
	replyTo := &mail.Address{Name: msg.FromName, Address: msg.ReplyTo}

	var b strings.Builder
	header := func(k, v string) {
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(v)
		b.WriteString("\r\n")
	}

	header("From", from.String())
	header("To", to.String())
	header("Reply-To", replyTo.String())
	header("Subject", mime.QEncoding.Encode("utf-8", stripNewlines(msg.Subject)))
	header("Date", s.now().Format(time.RFC1123Z))
	header("MIME-Version", "1.0")
	header("Content-Type", "text/plain; charset=utf-8")
	header("Content-Transfer-Encoding", "quoted-printable")
	b.WriteString("\r\n")

	// quoted-printable soft-wraps long lines under the 998 octet limit
	body := fmt.Sprintf("From: %s <%s>\n\n%s\n", msg.FromName, msg.ReplyTo, strings.ReplaceAll(msg.Body, "\r\n", "\n"))
	qp := quotedprintable.NewWriter(&b)
	if _, err := qp.Write([]byte(strings.ReplaceAll(body, "\n", "\r\n"))); err != nil {
		return nil, fmt.Errorf("encode message body: %w", err)
	}
	if err := qp.Close(); err != nil {
		return nil, fmt.Errorf("encode message body: %w", err)
	}

	return []byte(b.String()), nil
}

func stripNewlines(s string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(s)
}
