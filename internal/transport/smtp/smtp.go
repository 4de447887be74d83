// Package smtp implements a Transport that delivers mail through an SMTP gateway.
package smtp

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-sasl"
	gosmtp "github.com/emersion/go-smtp"

	"github.com/shineum/courier/internal/email"
	"github.com/shineum/courier/internal/transport"
)

// TLS modes supported by the transport.
const (
	TLSNone     = "none"
	TLSStartTLS = "starttls"
	TLSImplicit = "implicit"
)

// Auth mechanisms supported by the transport.
const (
	AuthPlain = "plain"
	AuthLogin = "login"
)

// defaultTimeout bounds dialing and each SMTP command when Config.Timeout is unset.
const defaultTimeout = 30 * time.Second

// Config holds the configuration for creating an SMTP Transport.
type Config struct {
	Host string
	Port int

	// Username and Password enable SMTP AUTH when both are set.
	Username string
	Password string

	// Auth selects the SASL mechanism; defaults to PLAIN.
	Auth string

	// TLSMode is one of TLSNone, TLSStartTLS or TLSImplicit.
	TLSMode   string
	TLSConfig *tls.Config

	// LocalName is the hostname sent with EHLO/HELO.
	LocalName string

	Timeout time.Duration
}

// Transport sends messages through an SMTP server. A new connection is
// opened for every message, so a Transport is safe for concurrent use.
type Transport struct {
	cfg  Config
	addr string
}

// New creates a new SMTP Transport with the given configuration.
func New(cfg Config) (*Transport, error) {
	if cfg.Host == "" {
		return nil, errors.New("smtp: host is required")
	}
	if cfg.Port == 0 {
		cfg.Port = 25
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.LocalName == "" {
		cfg.LocalName = "localhost"
	}

	switch cfg.TLSMode {
	case "", TLSNone:
		cfg.TLSMode = TLSNone
	case TLSStartTLS, TLSImplicit:
		if cfg.TLSConfig == nil {
			cfg.TLSConfig = &tls.Config{ServerName: cfg.Host, MinVersion: tls.VersionTLS12}
		}
	default:
		return nil, fmt.Errorf("smtp: unknown TLS mode %q", cfg.TLSMode)
	}

	switch strings.ToLower(cfg.Auth) {
	case "", AuthPlain:
		cfg.Auth = AuthPlain
	case AuthLogin:
		cfg.Auth = AuthLogin
	default:
		return nil, fmt.Errorf("smtp: unknown auth mechanism %q", cfg.Auth)
	}

	return &Transport{
		cfg:  cfg,
		addr: net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
	}, nil
}

// Name returns the transport name.
func (t *Transport) Name() string {
	return "smtp"
}

// Send delivers the message in a single SMTP transaction.
// Recipient rejections are reported as transport.ErrAddressRejected, other
// negative server replies as transport.ErrProtocol.
func (t *Transport) Send(ctx context.Context, msg *email.Email) error {
	raw, err := msg.Bytes()
	if err != nil {
		return err
	}

	c, err := t.dial(ctx)
	if err != nil {
		return fmt.Errorf("smtp: connect %s: %w", t.addr, err)
	}
	defer c.Close()

	if err := c.Hello(t.cfg.LocalName); err != nil {
		return replyError("EHLO", err)
	}

	if t.cfg.TLSMode == TLSStartTLS {
		if ok, _ := c.Extension("STARTTLS"); !ok {
			return fmt.Errorf("%w: smtp: server %s does not support STARTTLS", transport.ErrProtocol, t.addr)
		}
		if err := c.StartTLS(t.cfg.TLSConfig); err != nil {
			return replyError("STARTTLS", err)
		}
	}

	if client := t.saslClient(); client != nil {
		if err := c.Auth(client); err != nil {
			return replyError("AUTH", err)
		}
	}

	if err := c.Mail(msg.From, nil); err != nil {
		return replyError("MAIL FROM", err)
	}

	for _, rcpt := range msg.Recipients() {
		if err := c.Rcpt(rcpt, nil); err != nil {
			return rcptError(rcpt, err)
		}
	}

	w, err := c.Data()
	if err != nil {
		return replyError("DATA", err)
	}
	if _, err := w.Write(raw); err != nil {
		w.Close()
		return fmt.Errorf("smtp: write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return replyError("DATA", err)
	}

	if err := c.Quit(); err != nil {
		// The message was accepted; a failed QUIT does not undo delivery.
		slog.Debug("smtp quit failed", "addr", t.addr, "error", err)
	}

	return nil
}

// dial opens the connection honouring the context deadline and the TLS mode.
func (t *Transport) dial(ctx context.Context) (*gosmtp.Client, error) {
	dialer := &net.Dialer{Timeout: t.cfg.Timeout}

	var (
		conn net.Conn
		err  error
	)
	if t.cfg.TLSMode == TLSImplicit {
		tlsDialer := &tls.Dialer{NetDialer: dialer, Config: t.cfg.TLSConfig}
		conn, err = tlsDialer.DialContext(ctx, "tcp", t.addr)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", t.addr)
	}
	if err != nil {
		return nil, err
	}

	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			conn.Close()
			return nil, err
		}
	}

	c := gosmtp.NewClient(conn)
	c.CommandTimeout = t.cfg.Timeout
	c.SubmissionTimeout = t.cfg.Timeout
	return c, nil
}

func (t *Transport) saslClient() sasl.Client {
	if t.cfg.Username == "" || t.cfg.Password == "" {
		return nil
	}
	if t.cfg.Auth == AuthLogin {
		return sasl.NewLoginClient(t.cfg.Username, t.cfg.Password)
	}
	return sasl.NewPlainClient("", t.cfg.Username, t.cfg.Password)
}

// rcptError classifies a failed RCPT TO command. Mailbox and address syntax
// replies (501, 550, 553 and X.1.X enhanced codes) are address rejections.
func rcptError(rcpt string, err error) error {
	var smtpErr *gosmtp.SMTPError
	if errors.As(err, &smtpErr) && isAddressReply(smtpErr) {
		return fmt.Errorf("%w: smtp: RCPT TO %s: %v", transport.ErrAddressRejected, rcpt, err)
	}
	return replyError("RCPT TO "+rcpt, err)
}

func isAddressReply(e *gosmtp.SMTPError) bool {
	switch e.Code {
	case 501, 550, 553:
		return true
	}
	return e.EnhancedCode[0] >= 4 && e.EnhancedCode[1] == 1
}

// replyError wraps negative server replies in transport.ErrProtocol and
// leaves connectivity errors as plain send failures.
func replyError(stage string, err error) error {
	var smtpErr *gosmtp.SMTPError
	if errors.As(err, &smtpErr) {
		return fmt.Errorf("%w: smtp: %s: %v", transport.ErrProtocol, stage, err)
	}
	return fmt.Errorf("smtp: %s: %w", stage, err)
}
