package smtp

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/emersion/go-message/mail"
	gosmtp "github.com/emersion/go-smtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rmed/simpleice/internal/provider"
)

type received struct {
	from string
	to   []string
	data []byte
}

// backend is an in-memory SMTP server that rejects recipients in reject.
type backend struct {
	mu     sync.Mutex
	msgs   []received
	reject map[string]bool
}

func (b *backend) NewSession(_ *gosmtp.Conn) (gosmtp.Session, error) {
	return &session{b: b}, nil
}

func (b *backend) messages() []received {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]received(nil), b.msgs...)
}

type session struct {
	b   *backend
	cur received
}

func (s *session) Mail(from string, _ *gosmtp.MailOptions) error {
	s.cur.from = from
	return nil
}

func (s *session) Rcpt(to string, _ *gosmtp.RcptOptions) error {
	if s.b.reject[to] {
		return &gosmtp.SMTPError{
			Code:         550,
			EnhancedCode: gosmtp.EnhancedCode{5, 1, 1},
			Message:      "no such user",
		}
	}
	s.cur.to = append(s.cur.to, to)
	return nil
}

func (s *session) Data(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.cur.data = data
	s.b.mu.Lock()
	s.b.msgs = append(s.b.msgs, s.cur)
	s.b.mu.Unlock()
	return nil
}

func (s *session) Reset()        { s.cur = received{} }
func (s *session) Logout() error { return nil }

func startServer(t *testing.T, be *backend) provider.Account {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := gosmtp.NewServer(be)
	srv.Domain = "localhost"
	srv.AllowInsecureAuth = true
	go srv.Serve(l)
	t.Cleanup(func() { srv.Close() })

	addr := l.Addr().(*net.TCPAddr)
	return provider.Account{
		Host:     "127.0.0.1",
		Port:     addr.Port,
		From:     "ice@example.com",
		Security: provider.SecurityNone,
	}
}

var sentAt = time.Date(2026, 5, 1, 9, 30, 0, 0, time.UTC)

func TestSend_Delivers(t *testing.T) {
	be := &backend{}
	account := startServer(t, be)
	s := New(WithClock(func() time.Time { return sentAt }))

	msg := provider.Message{
		Recipient: "alice@example.com, Bob <bob@example.com>",
		Subject:   "Last words",
		Body:      "The keys are under the mat.",
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Send(ctx, account, msg))

	msgs := be.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "ice@example.com", msgs[0].from)
	assert.Equal(t, []string{"alice@example.com", "bob@example.com"}, msgs[0].to)

	mr, err := mail.CreateReader(bytes.NewReader(msgs[0].data))
	require.NoError(t, err)
	subject, err := mr.Header.Subject()
	require.NoError(t, err)
	assert.Equal(t, "Last words", subject)
	date, err := mr.Header.Date()
	require.NoError(t, err)
	assert.True(t, date.Equal(sentAt))

	p, err := mr.NextPart()
	require.NoError(t, err)
	body, err := io.ReadAll(p.Body)
	require.NoError(t, err)
	assert.Equal(t, "The keys are under the mat.", strings.TrimSpace(string(body)))
}

func TestSend_RejectedRecipientIsPermanent(t *testing.T) {
	be := &backend{reject: map[string]bool{"ghost@example.com": true}}
	account := startServer(t, be)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := New().Send(ctx, account, provider.Message{Recipient: "ghost@example.com", Subject: "s", Body: "b"})
	require.Error(t, err)
	assert.Equal(t, provider.Permanent, provider.KindOf(err))

	var smtpErr *gosmtp.SMTPError
	require.True(t, errors.As(err, &smtpErr))
	assert.Equal(t, 550, smtpErr.Code)
	assert.Empty(t, be.messages())
}

func TestSend_InvalidRecipientIsPermanent(t *testing.T) {
	s := New()
	account := provider.Account{Host: "127.0.0.1", Port: 1, From: "ice@example.com", Security: provider.SecurityNone}

	for _, rcpt := range []string{"", "not an address"} {
		err := s.Send(context.Background(), account, provider.Message{Recipient: rcpt})
		require.Error(t, err, "recipient %q", rcpt)
		assert.Equal(t, provider.Permanent, provider.KindOf(err), "recipient %q", rcpt)
	}
}

func TestSend_NoSenderIsPermanent(t *testing.T) {
	account := provider.Account{Host: "127.0.0.1", Port: 1, Security: provider.SecurityNone}
	err := New().Send(context.Background(), account, provider.Message{Recipient: "a@example.com"})
	require.Error(t, err)
	assert.Equal(t, provider.Permanent, provider.KindOf(err))
}

func TestSend_ConnectionRefusedIsTransient(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	l.Close()

	account := provider.Account{Host: "127.0.0.1", Port: port, From: "ice@example.com", Security: provider.SecurityNone}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = New().Send(ctx, account, provider.Message{Recipient: "a@example.com"})
	require.Error(t, err)
	assert.Equal(t, provider.Transient, provider.KindOf(err))
}

// stallingServer accepts connections, optionally writes greeting, then reads
// and never replies.
func stallingServer(t *testing.T, greeting string) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })

	var conns []net.Conn
	var mu sync.Mutex
	go func() {
		for {
			c, err := l.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			conns = append(conns, c)
			mu.Unlock()
			if greeting != "" {
				io.WriteString(c, greeting)
			}
			go io.Copy(io.Discard, c)
		}
	}()
	t.Cleanup(func() {
		mu.Lock()
		defer mu.Unlock()
		for _, c := range conns {
			c.Close()
		}
	})
	return l.Addr().(*net.TCPAddr).Port
}

func TestSend_StallingServerHonoursDeadline(t *testing.T) {
	tests := []struct {
		name     string
		greeting string
	}{
		{name: "silent", greeting: ""},
		{name: "stalls after greeting", greeting: "220 localhost ESMTP\r\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			account := provider.Account{
				Host:     "127.0.0.1",
				Port:     stallingServer(t, tt.greeting),
				From:     "ice@example.com",
				Security: provider.SecurityNone,
			}
			ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
			defer cancel()

			start := time.Now()
			err := New().Send(ctx, account, provider.Message{Recipient: "a@example.com"})
			require.Error(t, err)
			assert.Equal(t, provider.Transient, provider.KindOf(err))
			assert.ErrorIs(t, err, context.DeadlineExceeded)
			assert.Less(t, time.Since(start), 2*time.Second)
		})
	}
}
