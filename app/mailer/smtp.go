package mailer

import (
	"context"
	"crypto/tls"
	"net"
	"strings"
	"time"

	"github.com/samber/oops"
	"github.com/wneessen/go-mail"

	"github.com/vibast-solutions/ms-go-identity/config"
)

const defaultSendTimeout = 10 * time.Second

type SMTPSender struct {
	cfg config.MailConfig
}

func NewSMTPSender(cfg config.MailConfig) *SMTPSender {
	return &SMTPSender{cfg: cfg}
}

func (s *SMTPSender) Send(ctx context.Context, to, subject, htmlBody string) error {
	errb := oops.Code("MAIL_SEND_FAILED").With("host", s.cfg.Host).With("to", to)

	timeout := s.cfg.SendTimeout
	if timeout <= 0 {
		timeout = defaultSendTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	msg, err := s.buildMessage(to, subject, htmlBody)
	if err != nil {
		return errb.With("stage", "message").Wrap(err)
	}

	client, err := s.newClient(timeout)
	if err != nil {
		return errb.With("stage", "client").Wrap(err)
	}

	if err = client.DialWithContext(ctx); err != nil {
		return errb.With("stage", "dial").Wrap(err)
	}
	defer func() { _ = client.Close() }()

	if err = client.Send(msg); err != nil {
		return errb.With("stage", "send").Wrap(err)
	}
	return nil
}

func (s *SMTPSender) newClient(timeout time.Duration) (*mail.Client, error) {
	policy, err := TLSPolicy(s.cfg.TLSPolicy)
	if err != nil {
		return nil, err
	}
	if s.cfg.ImplicitTLS {
		// the connection is TLS from the first byte, no STARTTLS upgrade
		policy = mail.NoTLS
	}

	opts := []mail.Option{
		mail.WithPort(s.cfg.Port),
		mail.WithTimeout(timeout),
		mail.WithTLSPolicy(policy),
		mail.WithTLSConfig(s.tlsConfig()),
		mail.WithDialContextFunc(s.dial),
	}
	if s.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(s.cfg.Username),
			mail.WithPassword(s.cfg.Password),
		)
	}

	return mail.NewClient(s.cfg.Host, opts...)
}

func (s *SMTPSender) tlsConfig() *tls.Config {
	return &tls.Config{ServerName: s.cfg.Host, MinVersion: tls.VersionTLS12}
}

// dial bounds the whole SMTP conversation by the context deadline, including
// a server that accepts and then never greets.
func (s *SMTPSender) dial(ctx context.Context, network, address string) (net.Conn, error) {
	conn, err := (&net.Dialer{}).DialContext(ctx, network, address)
	if err != nil {
		return nil, err
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	if s.cfg.ImplicitTLS {
		return tls.Client(conn, s.tlsConfig()), nil
	}
	return conn, nil
}

func (s *SMTPSender) buildMessage(to, subject, htmlBody string) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.FromFormat(s.cfg.FromName, s.cfg.From); err != nil {
		return nil, err
	}
	if err := msg.To(to); err != nil {
		return nil, err
	}
	msg.Subject(subject)
	msg.SetDate()
	msg.SetMessageID()
	msg.SetBodyString(mail.TypeTextHTML, htmlBody)
	return msg, nil
}

// TLSPolicy maps the SMTP_TLS_POLICY setting onto go-mail's STARTTLS policy.
func TLSPolicy(name string) (mail.TLSPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "opportunistic":
		return mail.TLSOpportunistic, nil
	case "mandatory":
		return mail.TLSMandatory, nil
	case "none":
		return mail.NoTLS, nil
	default:
		return mail.NoTLS, oops.Code("MAIL_INVALID_TLS_POLICY").With("policy", name).
			Errorf("unknown SMTP TLS policy %q", name)
	}
}
