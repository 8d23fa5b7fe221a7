// Package mail sends account emails over SMTP.
package mail

import (
	"context"
	"fmt"

	gomail "github.com/wneessen/go-mail"
)

// Message is a single-recipient email with plain text and HTML bodies.
type Message struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

type Sender interface {
	Send(ctx context.Context, msg *Message) error
}

// Config holds the SMTP account used as the sender.
type Config struct {
	User     string
	Password string
	Server   string
	Port     int
	// Name is the display name in the From header.
	Name string
}

// STARTTLS is used on this port; any other port expects implicit TLS.
const submissionPort = 587

// SMTPSender delivers messages through an authenticated SMTP server.
type SMTPSender struct {
	cfg Config
	// dial replaces the client's own dialer in tests.
	dial gomail.DialContextFunc
}

func NewSMTPSender(cfg Config) *SMTPSender {
	return &SMTPSender{cfg: cfg}
}

func (s *SMTPSender) client() (*gomail.Client, error) {
	opts := []gomail.Option{gomail.WithPort(s.cfg.Port)}
	if s.cfg.Port == submissionPort {
		opts = append(opts, gomail.WithTLSPolicy(gomail.TLSMandatory))
	} else {
		opts = append(opts, gomail.WithSSL())
	}
	if s.cfg.User != "" && s.cfg.Password != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(s.cfg.User),
			gomail.WithPassword(s.cfg.Password),
		)
	}
	if s.dial != nil {
		opts = append(opts, gomail.WithDialContextFunc(s.dial))
	}
	return gomail.NewClient(s.cfg.Server, opts...)
}

// newMsg renders msg as multipart/alternative with the plain text part
// first, so clients that understand HTML pick the last one.
func newMsg(fromName, fromAddr string, msg *Message) (*gomail.Msg, error) {
	m := gomail.NewMsg()
	if err := m.FromFormat(fromName, fromAddr); err != nil {
		return nil, err
	}
	if err := m.To(msg.To); err != nil {
		return nil, err
	}
	m.Subject(msg.Subject)
	m.SetDate()
	m.SetMessageID()
	m.SetBodyString(gomail.TypeTextPlain, msg.Text)
	m.AddAlternativeString(gomail.TypeTextHTML, msg.HTML)
	return m, nil
}

// Send delivers msg. The whole exchange is bounded by ctx.
func (s *SMTPSender) Send(ctx context.Context, msg *Message) error {
	m, err := newMsg(s.cfg.Name, s.cfg.User, msg)
	if err != nil {
		return fmt.Errorf("mail: build message: %w", err)
	}

	c, err := s.client()
	if err != nil {
		return fmt.Errorf("mail: client: %w", err)
	}

	if err := c.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("mail: send to %s: %w", msg.To, err)
	}
	return nil
}
