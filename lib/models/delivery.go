package models

import "time"

type Delivery struct {
	ID        uint     `gorm:"primaryKey"`
	Platform  Platform `gorm:"index:idx_delivery_channel"`
	ChannelID string   `gorm:"index:idx_delivery_channel"`
	Kind      ChangeKind
	RefID     string
	Title     string
	MessageID string
	SentAt    time.Time `gorm:"index"`
}
