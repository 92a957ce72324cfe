// Package detector decides whether freshly fetched channel state is a change
// worth notifying about. Functions here never touch the store.
package detector

import (
	"fmt"
	"strings"

	"github.com/fiffu/streamwatch/lib/models"
)

const (
	liveThumbnailWidth  = "320"
	liveThumbnailHeight = "180"
)

// Upload returns an event when the latest upload differs from the last one
// we notified about.
func Upload(latest *models.Upload, sub *models.Subscription) *models.ChangeEvent {
	if latest == nil || latest.VideoID == "" {
		return nil
	}
	if latest.VideoID == sub.LastVideoID {
		return nil
	}
	return &models.ChangeEvent{
		Kind:      models.NewUpload,
		Title:     latest.Title,
		URL:       WatchURL(latest.VideoID),
		Thumbnail: BestThumbnail(latest.Thumbnails),
		RefID:     latest.VideoID,
	}
}

// Live returns an event when a channel goes live, or is live with a stream id
// we have not seen. Going off-air never produces an event.
func Live(status *models.LiveStatus, sub *models.Subscription) *models.ChangeEvent {
	if status == nil || !status.IsLive {
		return nil
	}
	if sub.IsLive && status.StreamID == sub.LastStreamID {
		return nil
	}
	return &models.ChangeEvent{
		Kind:      models.WentLive,
		Title:     status.Title,
		URL:       fmt.Sprintf("https://twitch.tv/%s", sub.ChannelName),
		Thumbnail: LiveThumbnail(status.ThumbnailTemplate),
		RefID:     status.StreamID,
	}
}

func WatchURL(videoID string) string {
	return "https://www.youtube.com/watch?v=" + videoID
}

func BestThumbnail(t models.Thumbnails) string {
	for _, url := range []string{t.Maxres, t.High, t.Medium, t.Default} {
		if url != "" {
			return url
		}
	}
	return ""
}

func LiveThumbnail(template string) string {
	return strings.NewReplacer(
		"{width}", liveThumbnailWidth,
		"{height}", liveThumbnailHeight,
	).Replace(template)
}
