// Package provider adapts email delivery backends to a single send interface.
package provider

import (
	"context"
	"fmt"

	"github.com/folio/contact-relay/config"
	"github.com/folio/contact-relay/internal/models"
	"github.com/folio/contact-relay/pkg/emailjs"
	"github.com/folio/contact-relay/pkg/httpclient"
	"github.com/folio/contact-relay/pkg/smtpmail"
)

// Provider delivers one contact message
type Provider interface {
	Name() string
	Configured() bool
	Send(ctx context.Context, params models.TemplateParams) error
}

// New builds the provider selected by cfg.Name, guarded by a circuit breaker
func New(cfg config.ProviderConfig, httpClient httpclient.Client) (Provider, error) {
	var p Provider
	switch cfg.Name {
	case config.ProviderEmailJS, "":
		p = NewEmailJS(cfg.EmailJS, httpClient)
	case config.ProviderSMTP:
		p = NewSMTP(cfg.SMTP)
	default:
		return nil, fmt.Errorf("unsupported email provider: %q", cfg.Name)
	}
	return WithCircuitBreaker(p), nil
}

// EmailJSProvider sends through the EmailJS REST API
type EmailJSProvider struct {
	client *emailjs.Client
}

func NewEmailJS(cfg config.EmailJSConfig, httpClient httpclient.Client) *EmailJSProvider {
	return &EmailJSProvider{
		client: emailjs.NewClient(cfg.APIURL, emailjs.Credentials{
			ServiceID:  cfg.ServiceID,
			TemplateID: cfg.TemplateID,
			PublicKey:  cfg.PublicKey,
			PrivateKey: cfg.PrivateKey,
		}, httpClient),
	}
}

func (p *EmailJSProvider) Name() string {
	return emailjs.ProviderName
}

func (p *EmailJSProvider) Configured() bool {
	return p.client.Configured()
}

func (p *EmailJSProvider) Send(ctx context.Context, params models.TemplateParams) error {
	return p.client.Send(ctx, params)
}

// SMTPProvider sends through an SMTP relay
type SMTPProvider struct {
	sender *smtpmail.Sender
}

func NewSMTP(cfg config.SMTPConfig) *SMTPProvider {
	return &SMTPProvider{
		sender: smtpmail.NewSender(smtpmail.Settings{
			Addr:     cfg.Addr,
			Username: cfg.Username,
			Password: cfg.Password,
			From:     cfg.From,
			To:       cfg.To,
		}),
	}
}

func (p *SMTPProvider) Name() string {
	return smtpmail.ProviderName
}

func (p *SMTPProvider) Configured() bool {
	return p.sender.Configured()
}

func (p *SMTPProvider) Send(ctx context.Context, params models.TemplateParams) error {
	return p.sender.Send(ctx, smtpmail.Message{
		FromName: params.FromName,
		ReplyTo:  params.ReplyTo,
		Subject:  params.Subject,
		Body:     params.Message,
	})
}
