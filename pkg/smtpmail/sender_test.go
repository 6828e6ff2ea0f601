package smtpmail

import (
	"context"
	"errors"
	"io"
	"mime/quotedprintable"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-sasl"
	apperrors "github.com/folio/contact-relay/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSettings = Settings{
	Addr:     "mail.example.com:587",
	Username: "relay",
	Password: "pw",
	From:     "Portfolio <noreply@example.com>",
	To:       "owner@example.com",
}

var testMessage = Message{
	FromName: "Ada Lovelace",
	ReplyTo:  "ada@example.com",
	Subject:  "Engines",
	Body:     "Hello,\nabout the analytical engine.",
}

func newTestSender(fn sendMailFunc) *Sender {
	s := NewSender(testSettings)
	s.sendMail = fn
	s.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return s
}

func TestSend_DeliversRenderedMessage(t *testing.T) {
	var (
		gotAddr string
		gotFrom string
		gotTo   []string
		gotBody string
		gotAuth sasl.Client
	)
	s := newTestSender(func(addr string, a sasl.Client, from string, to []string, r io.Reader) error {
		gotAddr, gotFrom, gotTo, gotAuth = addr, from, to, a
		raw, err := io.ReadAll(r)
		gotBody = string(raw)
		return err
	})

	require.NoError(t, s.Send(context.Background(), testMessage))

	assert.Equal(t, "mail.example.com:587", gotAddr)
	assert.Equal(t, testSettings.From, gotFrom)
	assert.Equal(t, []string{"owner@example.com"}, gotTo)
	assert.NotNil(t, gotAuth)

	assert.Contains(t, gotBody, "Reply-To: \"Ada Lovelace\" <ada@example.com>\r\n")
	assert.Contains(t, gotBody, "Subject: Engines\r\n")
	assert.Contains(t, gotBody, "Date: Sun, 01 Mar 2026 12:00:00 +0000\r\n")
	assert.True(t, strings.HasSuffix(gotBody, "Hello,\r\nabout the analytical engine.\r\n"))
}

func TestSend_NoAuthWithoutUsername(t *testing.T) {
	var gotAuth sasl.Client
	s := newTestSender(func(_ string, a sasl.Client, _ string, _ []string, _ io.Reader) error {
		gotAuth = a
		return nil
	})
	s.settings.Username = ""

	require.NoError(t, s.Send(context.Background(), testMessage))
	assert.Nil(t, gotAuth)
}

func TestSend_FailureBecomesProviderError(t *testing.T) {
	s := newTestSender(func(string, sasl.Client, string, []string, io.Reader) error {
		return errors.New("554 5.7.1 relay access denied")
	})

	err := s.Send(context.Background(), testMessage)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrProviderFailure))
	assert.Equal(t, "554 5.7.1 relay access denied", err.Error())
}

func TestSend_NotConfigured(t *testing.T) {
	s := NewSender(Settings{Addr: "mail.example.com:25"})
	err := s.Send(context.Background(), testMessage)
	assert.True(t, apperrors.Is(err, apperrors.ErrNotConfigured))
}

func TestSend_CancelledContext(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	s := newTestSender(func(string, sasl.Client, string, []string, io.Reader) error {
		<-release
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, s.Send(ctx, testMessage), context.Canceled)
}

func TestSend_TimeoutMidExchangeIsUnconfirmed(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	s := newTestSender(func(string, sasl.Client, string, []string, io.Reader) error {
		<-release
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := s.Send(ctx, testMessage)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrDeliveryUnconfirmed)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, apperrors.Is(err, apperrors.ErrProviderFailure))
}

func TestBuildMessage_WrapsLongLines(t *testing.T) {
	s := newTestSender(nil)
	msg := testMessage
	msg.Body = strings.Repeat("a=b ", 500) + "\nzweite Zeile: grüße"

	raw, err := s.buildMessage(msg)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "Content-Transfer-Encoding: quoted-printable\r\n")

	for _, line := range strings.Split(string(raw), "\r\n") {
		assert.LessOrEqual(t, len(line), 76)
	}

	_, encoded, found := strings.Cut(string(raw), "\r\n\r\n")
	require.True(t, found)
	decoded, err := io.ReadAll(quotedprintable.NewReader(strings.NewReader(encoded)))
	require.NoError(t, err)
	assert.Contains(t, string(decoded), msg.Body[:40])
	assert.Contains(t, string(decoded), "\r\nzweite Zeile: grüße\r\n")
	assert.Contains(t, strings.ReplaceAll(string(decoded), "\r\n", "\n"), strings.Repeat("a=b ", 500))
}

func TestBuildMessage_SubjectHeaderInjection(t *testing.T) {
	s := newTestSender(nil)
	msg := testMessage
	msg.Subject = "hi\r\nBcc: victim@example.com"

	raw, err := s.buildMessage(msg)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "\r\nBcc:")
}
