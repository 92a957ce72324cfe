package lib

import (
	"context"
	"fmt"
	"time"

	"github.com/fiffu/streamwatch/lib/models"
	"github.com/fiffu/streamwatch/senders"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var platformColors = map[models.Platform]int{
	models.YouTube: 0xFF0000,
	models.Twitch:  0x9146FF,
}

// Notifier sends one message per channel change to the shared destination,
// then advances the channel's last-seen marker.
type Notifier struct {
	log *zap.Logger
	db  *gorm.DB
	now func() time.Time
}

func NewNotifier(log *zap.Logger, db *gorm.DB) *Notifier {
	return &Notifier{log, db, time.Now}
}

func (n *Notifier) Notify(ctx context.Context, dest senders.Destination, event *models.ChangeEvent, sub *models.Subscription) error {
	msg := ComposeMessage(event, sub)

	messageID, err := dest.Send(ctx, msg)
	if err != nil {
		// Marker stays put so the next tick retries.
		return fmt.Errorf("send %s notification for %s/%s: %w", event.Kind, sub.Platform, sub.ChannelID, err)
	}

	if err := n.persist(ctx, event, sub, messageID); err != nil {
		return fmt.Errorf("notification for %s/%s sent as %q but marker was not saved: %w",
			sub.Platform, sub.ChannelID, messageID, err)
	}

	n.log.Sugar().Infow("Notified",
		"platform", sub.Platform,
		"channel_id", sub.ChannelID,
		"kind", event.Kind,
		"ref_id", event.RefID,
		"destination", dest.String(),
		"message_id", messageID,
	)
	return nil
}

func (n *Notifier) persist(ctx context.Context, event *models.ChangeEvent, sub *models.Subscription, messageID string) error {
	updates := map[string]any{}
	switch event.Kind {
	case models.NewUpload:
		updates["last_video_id"] = event.RefID
	case models.WentLive:
		updates["last_stream_id"] = event.RefID
		updates["is_live"] = true
	default:
		return fmt.Errorf("unknown change kind %q", event.Kind)
	}

	return n.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Model(&models.Subscription{}).
			Where("platform = ? AND channel_id = ?", sub.Platform, sub.ChannelID).
			Updates(updates).Error
		if err != nil {
			return err
		}

		delivery := &models.Delivery{
			Platform:  sub.Platform,
			ChannelID: sub.ChannelID,
			Kind:      event.Kind,
			RefID:     event.RefID,
			Title:     event.Title,
			MessageID: messageID,
			SentAt:    n.now().UTC(),
		}
		return tx.Create(delivery).Error
	})
}

func ComposeMessage(event *models.ChangeEvent, sub *models.Subscription) senders.Message {
	msg := senders.Message{
		Platform:    sub.Platform,
		Kind:        event.Kind,
		ChannelName: sub.Label(),
		URL:         event.URL,
		ImageURL:    event.Thumbnail,
		Color:       platformColors[sub.Platform],
	}

	switch event.Kind {
	case models.WentLive:
		msg.Title = fmt.Sprintf("%s is live", msg.ChannelName)
		msg.Description = event.Title
	default:
		msg.Title = event.Title
		msg.Description = fmt.Sprintf("New video from %s", msg.ChannelName)
	}
	return msg
}

// PurgeDeliveries drops delivery log rows sent before cutoff.
func (n *Notifier) PurgeDeliveries(ctx context.Context, cutoff time.Time) (int64, error) {
	tx := n.db.WithContext(ctx).Delete(&models.Delivery{}, "sent_at < ?", cutoff)
	return tx.RowsAffected, tx.Error
}

func (n *Notifier) RecentDeliveries(ctx context.Context, limit int) ([]models.Delivery, error) {
	var deliveries []models.Delivery
	err := n.db.WithContext(ctx).Order("sent_at DESC, id DESC").Limit(limit).Find(&deliveries).Error
	if err != nil {
		return nil, err
	}
	return deliveries, nil
}
