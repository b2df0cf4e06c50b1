package invoicing

import (
	"context"
	"fmt"

	"github.com/wneessen/go-mail"
	"golang.org/x/time/rate"
)

// Message is one outbound invoice mail.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Mailer delivers rendered invoices.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPConfig carries the connection settings for SMTPMailer.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	// From is the sender address, display form allowed.
	From    string
	ReplyTo string
	// Rate and Burst bound outbound sends. Default 1 msg/s with a burst
	// of 5.
	Rate  float64
	Burst int
}

// SMTPMailer sends invoice mail over SMTP. Sends wait on a rate limiter.
type SMTPMailer struct {
	client  *mail.Client
	limiter *rate.Limiter
	from    string
	replyTo string
}

// NewSMTPMailer builds a mailer from the given settings.
func NewSMTPMailer(cfg SMTPConfig) (*SMTPMailer, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("smtp host is required")
	}
	if cfg.From == "" {
		return nil, fmt.Errorf("smtp sender is required")
	}
	if cfg.Port <= 0 {
		cfg.Port = 587
	}
	if cfg.Rate <= 0 {
		cfg.Rate = 1
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 5
	}
	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}
	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("smtp client: %w", err)
	}
	return &SMTPMailer{
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(cfg.Rate), cfg.Burst),
		from:    cfg.From,
		replyTo: cfg.ReplyTo,
	}, nil
}

// Send delivers one message, waiting on the rate limiter first.
func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	if err := m.limiter.Wait(ctx); err != nil {
		return err
	}
	mm := mail.NewMsg()
	if err := mm.From(m.from); err != nil {
		return fmt.Errorf("from address: %w", err)
	}
	if err := mm.To(msg.To); err != nil {
		return fmt.Errorf("to address: %w", err)
	}
	if m.replyTo != "" {
		if err := mm.ReplyTo(m.replyTo); err != nil {
			return fmt.Errorf("reply-to address: %w", err)
		}
	}
	mm.Subject(msg.Subject)
	mm.SetBodyString(mail.TypeTextPlain, msg.Body)
	return m.client.DialAndSendWithContext(ctx, mm)
}
