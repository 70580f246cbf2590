// Package smtp delivers ICE mails through an SMTP submission server.
package smtp

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/emersion/go-sasl"
	gosmtp "github.com/emersion/go-smtp"

	"github.com/rmed/simpleice/internal/provider"
)

// DefaultTimeout bounds a Send when ctx carries no deadline.
const DefaultTimeout = 30 * time.Second

var _ provider.Sender = (*Sender)(nil)

// Sender implements provider.Sender over SMTP.
type Sender struct {
	now       func() time.Time
	tlsConfig *tls.Config
}

// Option configures a Sender.
type Option func(*Sender)

// WithClock overrides the clock used for the Date header.
func WithClock(now func() time.Time) Option {
	return func(s *Sender) { s.now = now }
}

// WithTLSConfig overrides the TLS configuration. ServerName is filled in
// from the account host when empty.
func WithTLSConfig(cfg *tls.Config) Option {
	return func(s *Sender) { s.tlsConfig = cfg }
}

// New returns an SMTP Sender.
func New(opts ...Option) *Sender {
	s := &Sender{now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Send delivers msg through the account's SMTP server. Malformed recipients
// and 5xx replies yield permanent errors; everything else is transient.
func (s *Sender) Send(ctx context.Context, account provider.Account, msg provider.Message) error {
	to, err := parseRecipients(msg.Recipient)
	if err != nil {
		return provider.PermanentError(err)
	}
	from := account.Sender()
	if from == "" {
		return provider.PermanentError(errors.New("no sender address configured"))
	}

	raw, err := buildMessage(from, to, msg, s.now())
	if err != nil {
		return provider.PermanentError(err)
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultTimeout)
		defer cancel()
	}

	c, stop, err := s.dial(ctx, account)
	if err != nil {
		return classify(ctx, fmt.Errorf("failed to connect to %s: %w", account.Addr(), err))
	}
	defer stop()
	defer c.Close()

	if account.Username != "" {
		auth := sasl.NewPlainClient("", account.Username, account.Secret)
		if err := c.Auth(auth); err != nil {
			return classify(ctx, fmt.Errorf("failed to authenticate as %s: %w", account.Username, err))
		}
	}

	rcpts := make([]string, 0, len(to))
	for _, a := range to {
		rcpts = append(rcpts, a.Address)
	}
	if err := c.SendMail(from, rcpts, bytes.NewReader(raw)); err != nil {
		return classify(ctx, fmt.Errorf("failed to send mail: %w", err))
	}
	// The message was accepted at end of DATA; a failed QUIT changes nothing.
	_ = c.Quit()
	return nil
}

// dial connects to the account's server. The client resets socket deadlines
// on every command, so the ctx deadline is enforced by closing the
// connection once ctx is done. The returned stop func releases that hook.
func (s *Sender) dial(ctx context.Context, account provider.Account) (*gosmtp.Client, func() bool, error) {
	d := &net.Dialer{}
	tlsCfg := s.tlsConfigFor(account.Host)

	var conn net.Conn
	var err error
	if account.Security == provider.SecurityTLS {
		td := &tls.Dialer{NetDialer: d, Config: tlsCfg}
		conn, err = td.DialContext(ctx, "tcp", account.Addr())
	} else {
		conn, err = d.DialContext(ctx, "tcp", account.Addr())
	}
	if err != nil {
		return nil, nil, err
	}
	stop := context.AfterFunc(ctx, func() { conn.Close() })

	deadline, hasDeadline := ctx.Deadline()
	if hasDeadline {
		if err := conn.SetDeadline(deadline); err != nil {
			stop()
			conn.Close()
			return nil, nil, err
		}
	}

	var c *gosmtp.Client
	switch account.Security {
	case provider.SecurityNone, provider.SecurityTLS:
		c = gosmtp.NewClient(conn)
	default:
		c, err = gosmtp.NewClientStartTLS(conn, tlsCfg)
		if err != nil {
			stop()
			conn.Close()
			return nil, nil, err
		}
	}
	if hasDeadline {
		remaining := time.Until(deadline)
		c.CommandTimeout = remaining
		c.SubmissionTimeout = remaining
	}
	return c, stop, nil
}

func (s *Sender) tlsConfigFor(host string) *tls.Config {
	cfg := &tls.Config{}
	if s.tlsConfig != nil {
		cfg = s.tlsConfig.Clone()
	}
	if cfg.ServerName == "" {
		cfg.ServerName = host
	}
	return cfg
}

// classify wraps err in a DeliveryError based on the SMTP reply code. When
// ctx expired mid-conversation its error is attached so callers can tell a
// timeout from a dropped connection.
func classify(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
		err = fmt.Errorf("%w: %w", ctxErr, err)
	}
	var smtpErr *gosmtp.SMTPError
	if errors.As(err, &smtpErr) && smtpErr.Code >= 500 && smtpErr.Code < 600 {
		return provider.PermanentError(err)
	}
	return provider.TransientError(err)
}
