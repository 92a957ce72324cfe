package senders

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/fiffu/streamwatch/config"
	"github.com/fiffu/streamwatch/lib/models"
	"go.uber.org/zap"
)

var ErrUnresolvableDestination = errors.New("unresolvable notification destination")

// Message is one rendered change notification.
type Message struct {
	Platform    models.Platform
	Kind        models.ChangeKind
	ChannelName string
	Title       string
	Description string
	URL         string
	ImageURL    string
	Color       int
}

type Sender interface {
	// Validate reports whether address can be delivered to by this sender.
	Validate(address string) error
	// Send delivers msg to address and returns the message id assigned by the provider.
	Send(ctx context.Context, address string, msg Message) (string, error)
}

type Registry map[string]Sender

func NewSenderRegistry(log *zap.Logger, cfg *config.Config, transport http.RoundTripper) Registry {
	base := base{log, cfg, transport}
	return map[string]Sender{
		"discord": &discordSender{base},
		"email":   &mailgunSender{base: base},
	}
}

type base struct {
	log       *zap.Logger
	cfg       *config.Config
	transport http.RoundTripper
}

// Destination is a resolved "<scheme>:<address>" target.
type Destination struct {
	Scheme  string
	Address string
	sender  Sender
}

func (d Destination) Send(ctx context.Context, msg Message) (string, error) {
	return d.sender.Send(ctx, d.Address, msg)
}

func (d Destination) String() string {
	return d.Scheme
}

func (r Registry) Resolve(raw string) (Destination, error) {
	scheme, address, ok := strings.Cut(strings.TrimSpace(raw), ":")
	if !ok || address == "" {
		return Destination{}, fmt.Errorf("%w: %q", ErrUnresolvableDestination, raw)
	}
	sender, ok := r[strings.ToLower(scheme)]
	if !ok {
		return Destination{}, fmt.Errorf("%w: unknown scheme %q", ErrUnresolvableDestination, scheme)
	}
	if err := sender.Validate(address); err != nil {
		return Destination{}, fmt.Errorf("%w: %w", ErrUnresolvableDestination, err)
	}
	return Destination{Scheme: strings.ToLower(scheme), Address: address, sender: sender}, nil
}
