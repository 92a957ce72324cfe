package app

import (
	"time"

	"github.com/fiffu/streamwatch/lib"
	"github.com/fiffu/streamwatch/lib/models"
)

type SubscriptionView struct {
	ID           uint     `json:"id"`
	Platform     string   `json:"platform"`
	ChannelID    string   `json:"channel_id"`
	ChannelName  string   `json:"channel_name"`
	DisplayName  string   `json:"display_name"`
	AddedBy      string   `json:"added_by"`
	CreatedAt    string   `json:"created_at"`
	LastVideoID  string   `json:"last_video_id,omitempty"`
	LastStreamID string   `json:"last_stream_id,omitempty"`
	IsLive       bool     `json:"is_live"`
	Subscribers  []string `json:"subscribers,omitempty"`
}

func (view SubscriptionView) From(entity *models.Subscription) SubscriptionView {
	return SubscriptionView{
		ID:           entity.ID,
		Platform:     string(entity.Platform),
		ChannelID:    entity.ChannelID,
		ChannelName:  entity.ChannelName,
		DisplayName:  entity.Label(),
		AddedBy:      entity.AddedBy,
		CreatedAt:    isoformat(entity.CreatedAt),
		LastVideoID:  entity.LastVideoID,
		LastStreamID: entity.LastStreamID,
		IsLive:       entity.IsLive,
		Subscribers:  entity.SubscriberIDs(),
	}
}

type SubscribeView struct {
	Result      string `json:"result"`
	Platform    string `json:"platform"`
	ChannelID   string `json:"channel_id"`
	ChannelName string `json:"channel_name"`
	DisplayName string `json:"display_name"`
}

func (view SubscribeView) From(out *lib.SubscribeOutcome) SubscribeView {
	displayName := out.Channel.DisplayName
	if displayName == "" {
		displayName = out.Channel.Name
	}
	return SubscribeView{
		Result:      out.Result.String(),
		Platform:    string(out.Channel.Platform),
		ChannelID:   out.Channel.ID,
		ChannelName: out.Channel.Name,
		DisplayName: displayName,
	}
}

// PresenceView carries the transitions that were applied, with the error
// text when some of them failed. A failed transition is retried by sending
// the same event again.
type PresenceView struct {
	*lib.PresenceResult
	Error string `json:"error,omitempty"`
}

type DeliveryView struct {
	Platform  string `json:"platform"`
	ChannelID string `json:"channel_id"`
	Kind      string `json:"kind"`
	RefID     string `json:"ref_id"`
	Title     string `json:"title"`
	MessageID string `json:"message_id,omitempty"`
	SentAt    string `json:"sent_at"`
}

func (view DeliveryView) From(entity models.Delivery) DeliveryView {
	return DeliveryView{
		Platform:  string(entity.Platform),
		ChannelID: entity.ChannelID,
		Kind:      string(entity.Kind),
		RefID:     entity.RefID,
		Title:     entity.Title,
		MessageID: entity.MessageID,
		SentAt:    isoformat(entity.SentAt),
	}
}

type Fromable[Entity any, Repr any] interface {
	From(Entity) Repr
}

func FromMany[T any, U Fromable[T, U]](elems []T) []U {
	out := make([]U, len(elems))
	for i, t := range elems {
		var u U
		out[i] = u.From(t)
	}
	return out
}

func isoformat(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
