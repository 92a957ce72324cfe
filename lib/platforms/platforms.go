// Package platforms holds the clients for the external video and livestream
// platforms whose channels we watch.
package platforms

import (
	"context"
	"errors"

	"github.com/fiffu/streamwatch/lib/models"
)

// ErrChannelNotFound is returned when an identifier does not resolve to a
// channel. It is a user input problem, not an outage.
var ErrChannelNotFound = errors.New("channel not found")

type VideoPlatform interface {
	// LatestUpload returns nil when the channel has no uploads.
	LatestUpload(ctx context.Context, channelID string) (*models.Upload, error)
	ResolveChannel(ctx context.Context, input string) (*models.Channel, error)
}

type LivePlatform interface {
	LiveStatus(ctx context.Context, login string) (*models.LiveStatus, error)
	ResolveChannel(ctx context.Context, login string) (*models.Channel, error)
}
