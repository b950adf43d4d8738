// Package mailer emails users about subscription changes through Postmark.
package mailer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/mail"
	"text/template"
	"time"

	"github.com/mrz1836/postmark"

	"github.com/dmitrymomot/subsync/pkg/billing"
)

var (
	ErrInvalidConfig     = errors.New("invalid mailer configuration")
	ErrFailedToSendEmail = errors.New("failed to send email")
)

// Config enables the mailer when PostmarkServerToken is set.
type Config struct {
	PostmarkServerToken  string `env:"POSTMARK_SERVER_TOKEN"`
	PostmarkAccountToken string `env:"POSTMARK_ACCOUNT_TOKEN"`
	SenderEmail          string `env:"SENDER_EMAIL"`
	SupportEmail         string `env:"SUPPORT_EMAIL"`
	ProductName          string `env:"MAILER_PRODUCT_NAME" envDefault:"Subsync"`
}

func (c Config) Enabled() bool { return c.PostmarkServerToken != "" }

func (c Config) validate() error {
	if c.PostmarkServerToken == "" {
		return fmt.Errorf("%w: PostmarkServerToken is required", ErrInvalidConfig)
	}
	if _, err := mail.ParseAddress(c.SenderEmail); err != nil {
		return fmt.Errorf("%w: SenderEmail must be a valid email address", ErrInvalidConfig)
	}
	if _, err := mail.ParseAddress(c.SupportEmail); err != nil {
		return fmt.Errorf("%w: SupportEmail must be a valid email address", ErrInvalidConfig)
	}
	return nil
}

// Sender is the part of *postmark.Client the mailer uses.
type Sender interface {
	SendEmail(ctx context.Context, email postmark.Email) (postmark.EmailResponse, error)
}

// Mailer implements billing.Notifier.
type Mailer struct {
	sender Sender
	cfg    Config
}

var _ billing.Notifier = (*Mailer)(nil)

// NewPostmark creates a Mailer backed by the Postmark API.
func NewPostmark(cfg Config) (*Mailer, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Mailer{
		sender: postmark.NewClient(cfg.PostmarkServerToken, cfg.PostmarkAccountToken),
		cfg:    cfg,
	}, nil
}

// New creates a Mailer over any Sender.
func New(sender Sender, cfg Config) (*Mailer, error) {
	if sender == nil {
		return nil, fmt.Errorf("%w: sender is required", ErrInvalidConfig)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Mailer{sender: sender, cfg: cfg}, nil
}

const (
	TagActivated   = "subscription-activated"
	TagDeactivated = "subscription-deactivated"
)

var (
	activatedTmpl = template.Must(template.New("activated").Parse(
		`Hi,

your {{.Product}} subscription is now active on the {{.Plan}} plan.
{{if .Unlimited}}Your plan has no usage limit.{{else}}Your plan includes {{.Quota}} units per billing period.{{end}}

Questions? Just reply to this email.
`))

	deactivatedTmpl = template.Must(template.New("deactivated").Parse(
		`Hi,

your {{.Product}} subscription has been cancelled. Access ends on {{.EndDate}}.

If this was a mistake, reply to this email and we will help you restore it.
`))
)

type emailData struct {
	Product   string
	Plan      string
	Quota     int64
	Unlimited bool
	EndDate   string
}

func (m *Mailer) SubscriptionActivated(ctx context.Context, user billing.User, plan billing.Plan) error {
	return m.send(ctx, user.Email, TagActivated,
		fmt.Sprintf("Your %s %s subscription is active", m.cfg.ProductName, plan.Name),
		activatedTmpl, emailData{
			Product:   m.cfg.ProductName,
			Plan:      plan.Name,
			Quota:     plan.Quota,
			Unlimited: plan.IsUnlimited(),
		})
}

func (m *Mailer) SubscriptionDeactivated(ctx context.Context, user billing.User, endAt time.Time) error {
	return m.send(ctx, user.Email, TagDeactivated,
		fmt.Sprintf("Your %s subscription has been cancelled", m.cfg.ProductName),
		deactivatedTmpl, emailData{
			Product: m.cfg.ProductName,
			EndDate: endAt.UTC().Format("January 2, 2006"),
		})
}

func (m *Mailer) send(ctx context.Context, to, tag, subject string, tmpl *template.Template, data emailData) error {
	if _, err := mail.ParseAddress(to); err != nil {
		return errors.Join(ErrFailedToSendEmail, fmt.Errorf("invalid recipient %q: %w", to, err))
	}

	var body bytes.Buffer
	if err := tmpl.Execute(&body, data); err != nil {
		return errors.Join(ErrFailedToSendEmail, err)
	}

	resp, err := m.sender.SendEmail(ctx, postmark.Email{
		From:     m.cfg.SenderEmail,
		ReplyTo:  m.cfg.SupportEmail,
		To:       to,
		Subject:  subject,
		Tag:      tag,
		TextBody: body.String(),
	})
	if err != nil {
		return errors.Join(ErrFailedToSendEmail, err)
	}
	if resp.ErrorCode > 0 {
		return errors.Join(
			ErrFailedToSendEmail,
			fmt.Errorf("postmark error: %d - %s", resp.ErrorCode, resp.Message),
		)
	}
	return nil
}
