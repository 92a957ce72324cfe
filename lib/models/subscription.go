package models

import (
	"time"
)

type Platform string

const (
	YouTube Platform = "youtube"
	Twitch  Platform = "twitch"
)

func ParsePlatform(s string) (Platform, bool) {
	switch p := Platform(s); p {
	case YouTube, Twitch:
		return p, true
	}
	return "", false
}

// Subscription is one watched channel. It is shared by every user who
// subscribed to it and is deleted once the last subscriber leaves.
type Subscription struct {
	ID          uint     `gorm:"primaryKey"`
	Platform    Platform `gorm:"uniqueIndex:idx_platform_channel;not null"`
	ChannelID   string   `gorm:"uniqueIndex:idx_platform_channel;not null"`
	ChannelName string   `gorm:"index"`
	DisplayName string
	AddedBy     string
	CreatedAt   time.Time
	UpdatedAt   time.Time

	// Last-seen markers, written only after a notification went out
	LastVideoID  string
	LastStreamID string
	IsLive       bool

	Subscribers []Subscriber
}

type Subscriptions []*Subscription

type Subscriber struct {
	SubscriptionID uint   `gorm:"primaryKey"`
	UserID         string `gorm:"primaryKey;index"`
	CreatedAt      time.Time
}

// Label is the name shown to people, falling back to the platform handle.
func (s *Subscription) Label() string {
	switch {
	case s.DisplayName != "":
		return s.DisplayName
	case s.ChannelName != "":
		return s.ChannelName
	}
	return s.ChannelID
}

func (s *Subscription) SubscriberIDs() []string {
	ids := make([]string, len(s.Subscribers))
	for i, sub := range s.Subscribers {
		ids[i] = sub.UserID
	}
	return ids
}
