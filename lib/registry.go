package lib

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/fiffu/streamwatch/lib/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type SubscribeResult int

const (
	Added SubscribeResult = iota
	AlreadySubscribed
)

func (r SubscribeResult) String() string {
	if r == AlreadySubscribed {
		return "already_subscribed"
	}
	return "added"
}

type UnsubscribeResult int

const (
	Removed UnsubscribeResult = iota
	NotFound
)

func (r UnsubscribeResult) String() string {
	if r == NotFound {
		return "not_found"
	}
	return "removed"
}

// Registry owns the subscription documents and their subscriber sets.
type Registry struct {
	log *zap.Logger
	db  *gorm.DB
}

func NewRegistry(log *zap.Logger, db *gorm.DB) *Registry {
	return &Registry{log, db}
}

// Subscribe adds subscriberID to the resolved channel, creating its
// subscription on first use. ch.Name is the handle used for polling.
func (r *Registry) Subscribe(ctx context.Context, subscriberID string, ch *models.Channel) (SubscribeResult, error) {
	if ch == nil {
		return Added, fmt.Errorf("%w: channel is required", ErrInvalidInput)
	}
	platform := ch.Platform
	subscriberID, channelID := strings.TrimSpace(subscriberID), strings.TrimSpace(ch.ID)
	displayName := strings.TrimSpace(ch.DisplayName)
	if displayName == "" {
		displayName = ch.Name
	}
	if subscriberID == "" || channelID == "" {
		return Added, fmt.Errorf("%w: subscriber id and channel id are required", ErrInvalidInput)
	}
	if _, ok := models.ParsePlatform(string(platform)); !ok {
		return Added, fmt.Errorf("%w: unknown platform %q", ErrInvalidInput, platform)
	}

	result := Added
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// A concurrent subscribe may create the same channel first, in which
		// case this insert is skipped and we join the existing document.
		created := &models.Subscription{
			Platform:    platform,
			ChannelID:   channelID,
			ChannelName: ch.Name,
			DisplayName: displayName,
			AddedBy:     subscriberID,
		}
		onChannel := clause.OnConflict{
			Columns:   []clause.Column{{Name: "platform"}, {Name: "channel_id"}},
			DoNothing: true,
		}
		if err := tx.Clauses(onChannel).Create(created).Error; err != nil {
			return err
		}

		sub := &models.Subscription{}
		if err := tx.Where("platform = ? AND channel_id = ?", platform, channelID).First(sub).Error; err != nil {
			return err
		}

		member := &models.Subscriber{SubscriptionID: sub.ID, UserID: subscriberID}
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(member)
		if err := res.Error; err != nil {
			return err
		}
		if res.RowsAffected == 0 {
			result = AlreadySubscribed
		}
		return nil
	})
	if err != nil {
		return Added, fmt.Errorf("subscribe %s to %s/%s: %w", subscriberID, platform, channelID, err)
	}

	r.log.Sugar().Infow("Subscribe",
		"subscriber_id", subscriberID, "platform", platform, "channel_id", channelID, "result", result.String())
	return result, nil
}

// Unsubscribe removes subscriberID from the channel matching name, which is
// compared case-insensitively against the display name and the handle, or
// exactly against the channel id. The subscription is deleted with its last subscriber.
func (r *Registry) Unsubscribe(ctx context.Context, subscriberID string, platform models.Platform, name string) (UnsubscribeResult, error) {
	subscriberID, name = strings.TrimSpace(subscriberID), strings.TrimSpace(name)
	if subscriberID == "" || name == "" {
		return NotFound, fmt.Errorf("%w: subscriber id and channel name are required", ErrInvalidInput)
	}

	result := Removed
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sub := &models.Subscription{}
		err := tx.
			Joins("JOIN subscribers ON subscribers.subscription_id = subscriptions.id AND subscribers.user_id = ?", subscriberID).
			Where("subscriptions.platform = ?", platform).
			Where("(LOWER(subscriptions.display_name) = LOWER(?) OR LOWER(subscriptions.channel_name) = LOWER(?) OR subscriptions.channel_id = ?)", name, name, name).
			First(sub).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			result = NotFound
			return nil
		} else if err != nil {
			return err
		}

		res := tx.Where("subscription_id = ? AND user_id = ?", sub.ID, subscriberID).Delete(&models.Subscriber{})
		if err := res.Error; err != nil {
			return err
		}
		if res.RowsAffected == 0 {
			result = NotFound
			return nil
		}

		var remaining int64
		if err := tx.Model(&models.Subscriber{}).Where("subscription_id = ?", sub.ID).Count(&remaining).Error; err != nil {
			return err
		}
		if remaining == 0 {
			return tx.Delete(&models.Subscription{}, sub.ID).Error
		}
		return nil
	})
	if err != nil {
		return NotFound, fmt.Errorf("unsubscribe %s from %s/%s: %w", subscriberID, platform, name, err)
	}

	r.log.Sugar().Infow("Unsubscribe",
		"subscriber_id", subscriberID, "platform", platform, "name", name, "result", result.String())
	return result, nil
}

func (r *Registry) ListForSubscriber(ctx context.Context, subscriberID string) (models.Subscriptions, error) {
	var subs models.Subscriptions
	err := r.db.WithContext(ctx).
		Joins("JOIN subscribers ON subscribers.subscription_id = subscriptions.id").
		Where("subscribers.user_id = ?", subscriberID).
		Order("subscriptions.platform, subscriptions.channel_name").
		Find(&subs).Error
	if err != nil {
		return nil, err
	}
	return subs, nil
}

func (r *Registry) ListAll(ctx context.Context) (models.Subscriptions, error) {
	var subs models.Subscriptions
	err := r.db.WithContext(ctx).
		Preload("Subscribers").
		Order("platform, channel_name").
		Find(&subs).Error
	if err != nil {
		return nil, err
	}
	return subs, nil
}

func (r *Registry) Get(ctx context.Context, platform models.Platform, channelID string) (*models.Subscription, error) {
	sub := &models.Subscription{}
	err := r.db.WithContext(ctx).
		Preload("Subscribers").
		Where("platform = ? AND channel_id = ?", platform, channelID).
		First(sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	return sub, nil
}

// ForEachBatch walks every subscription of platform in primary key order,
// size rows at a time. An error from fn stops the walk.
func (r *Registry) ForEachBatch(ctx context.Context, platform models.Platform, size int, fn func(models.Subscriptions) error) error {
	var batch models.Subscriptions
	tx := r.db.WithContext(ctx).
		Where("platform = ?", platform).
		FindInBatches(&batch, size, func(tx *gorm.DB, _ int) error {
			return fn(batch)
		})
	return tx.Error
}
