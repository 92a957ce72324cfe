package lib

import (
	"context"
	"fmt"

	"github.com/fiffu/streamwatch/config"
	"github.com/fiffu/streamwatch/lib/models"
	"github.com/fiffu/streamwatch/lib/platforms"
	"go.uber.org/zap"
)

type Service struct {
	cfg     *config.Config
	log     *zap.Logger
	youtube platforms.VideoPlatform
	twitch  platforms.LivePlatform

	*Registry
	*Tracker
	*Notifier
}

func NewService(
	cfg *config.Config,
	log *zap.Logger,
	youtube platforms.VideoPlatform,
	twitch platforms.LivePlatform,
	registry *Registry,
	tracker *Tracker,
	notifier *Notifier,
) *Service {
	return &Service{
		cfg, log, youtube, twitch,
		registry,
		tracker,
		notifier,
	}
}

type SubscribeOutcome struct {
	Result  SubscribeResult
	Channel *models.Channel
}

// SubscribeYouTube resolves a channel id, URL, handle or user name before
// subscribing to it.
func (svc *Service) SubscribeYouTube(ctx context.Context, subscriberID, input string) (*SubscribeOutcome, error) {
	ch, err := svc.youtube.ResolveChannel(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("resolve youtube channel %q: %w", input, err)
	}
	return svc.subscribeResolved(ctx, subscriberID, ch)
}

func (svc *Service) SubscribeTwitch(ctx context.Context, subscriberID, login string) (*SubscribeOutcome, error) {
	ch, err := svc.twitch.ResolveChannel(ctx, login)
	if err != nil {
		return nil, fmt.Errorf("resolve twitch channel %q: %w", login, err)
	}
	return svc.subscribeResolved(ctx, subscriberID, ch)
}

func (svc *Service) SubscribeChannel(ctx context.Context, subscriberID string, platform models.Platform, input string) (*SubscribeOutcome, error) {
	switch platform {
	case models.YouTube:
		return svc.SubscribeYouTube(ctx, subscriberID, input)
	case models.Twitch:
		return svc.SubscribeTwitch(ctx, subscriberID, input)
	default:
		return nil, fmt.Errorf("%w: unknown platform %q", ErrInvalidInput, platform)
	}
}

func (svc *Service) subscribeResolved(ctx context.Context, subscriberID string, ch *models.Channel) (*SubscribeOutcome, error) {
	result, err := svc.Subscribe(ctx, subscriberID, ch)
	if err != nil {
		return nil, err
	}
	return &SubscribeOutcome{result, ch}, nil
}

func (svc *Service) RankingLimit(limit int) int {
	if limit <= 0 {
		return svc.cfg.Activity.RankingDefaultLimit
	}
	return limit
}
