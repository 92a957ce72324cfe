package senders

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/fiffu/streamwatch/senders/email"
	"github.com/mailgun/mailgun-go/v4"
)

type mailgunSender struct {
	base
	apiBase string
}

func (e *mailgunSender) Validate(address string) error {
	if _, err := mail.ParseAddress(address); err != nil {
		return fmt.Errorf("invalid email address %q: %w", address, err)
	}
	if e.cfg.Mailgun.Domain == "" || e.cfg.Mailgun.APIKey == "" || e.cfg.Mailgun.SenderFrom == "" {
		return fmt.Errorf("mailgun is not configured")
	}
	return nil
}

func (e *mailgunSender) Send(ctx context.Context, address string, msg Message) (string, error) {
	format := &email.ChangeEmailFormat{
		ChannelName: msg.ChannelName,
		Title:       msg.Title,
		Description: msg.Description,
		URL:         msg.URL,
		ImageURL:    msg.ImageURL,
	}

	mg := mailgun.NewMailgun(e.cfg.Mailgun.Domain, e.cfg.Mailgun.APIKey)
	mg.Client().Transport = e.transport
	if e.apiBase != "" {
		mg.SetAPIBase(e.apiBase)
	}

	// Create message with empty body first.
	message := mg.NewMessage(e.cfg.Mailgun.SenderFrom, format.Subject(), "", address)
	// SetHtml with the payload proper. This will assign the MIME type properly.
	message.SetHtml(format.Body())

	timeout := time.Duration(e.cfg.Mailgun.TimeoutSecs) * time.Second
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	_, id, err := mg.Send(ctx, message)
	if err != nil {
		return "", fmt.Errorf("mailgun send: %w", err)
	}
	return id, nil
}
