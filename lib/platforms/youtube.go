package platforms

import (
	"context"
	"fmt"
	"net/http"

	"github.com/fiffu/streamwatch/config"
	"github.com/fiffu/streamwatch/lib/models"
	"go.uber.org/fx"
	"go.uber.org/zap"
	gtransport "google.golang.org/api/googleapi/transport"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"
)

const youtubeSiteURL = "https://www.youtube.com"

type YouTube struct {
	log       *zap.Logger
	svc       *youtube.Service
	transport http.RoundTripper
	siteURL   string
}

func NewYouTube(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger, transport http.RoundTripper) (*YouTube, error) {
	if cfg.YouTube.APIKey == "" {
		log.Sugar().Warn("YOUTUBE_API_KEY is not set, YouTube polling will fail until it is configured")
	}
	return newYouTube(context.Background(), log, cfg.YouTube.APIKey, transport)
}

func newYouTube(ctx context.Context, log *zap.Logger, apiKey string, transport http.RoundTripper, opts ...option.ClientOption) (*YouTube, error) {
	// The API key has to ride on the transport: option.WithAPIKey is ignored
	// once a custom HTTP client is supplied.
	client := &http.Client{Transport: &gtransport.APIKey{Key: apiKey, Transport: transport}}
	opts = append([]option.ClientOption{option.WithHTTPClient(client)}, opts...)

	svc, err := youtube.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("youtube client: %w", err)
	}
	return &YouTube{log, svc, transport, youtubeSiteURL}, nil
}

func (yt *YouTube) LatestUpload(ctx context.Context, channelID string) (*models.Upload, error) {
	resp, err := yt.svc.Search.List([]string{"snippet"}).
		ChannelId(channelID).
		Order("date").
		MaxResults(1).
		Type("video").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("youtube search for channel %s: %w", channelID, err)
	}
	if len(resp.Items) == 0 || resp.Items[0].Id == nil {
		return nil, nil
	}

	item := resp.Items[0]
	upload := &models.Upload{VideoID: item.Id.VideoId}
	if item.Snippet != nil {
		upload.Title = item.Snippet.Title
		upload.Thumbnails = thumbnailsFrom(item.Snippet.Thumbnails)
	}
	return upload, nil
}

func thumbnailsFrom(details *youtube.ThumbnailDetails) models.Thumbnails {
	var t models.Thumbnails
	if details == nil {
		return t
	}
	url := func(th *youtube.Thumbnail) string {
		if th == nil {
			return ""
		}
		return th.Url
	}
	t.Default = url(details.Default)
	t.Medium = url(details.Medium)
	t.High = url(details.High)
	t.Maxres = url(details.Maxres)
	return t
}

func (yt *YouTube) ResolveChannel(ctx context.Context, input string) (*models.Channel, error) {
	ref := parseChannelRef(input)

	call := yt.svc.Channels.List([]string{"id", "snippet"}).Context(ctx)
	switch ref.kind {
	case refChannelID:
		call = call.Id(ref.value)
	case refUsername:
		call = call.ForUsername(ref.value)
	case refHandle:
		call = call.ForHandle(ref.value)
	default:
		return nil, ErrChannelNotFound
	}

	resp, err := call.Do()
	if err != nil {
		return nil, fmt.Errorf("youtube channel lookup for %q: %w", input, err)
	}
	if len(resp.Items) > 0 {
		item := resp.Items[0]
		ch := &models.Channel{Platform: models.YouTube, ID: item.Id, Name: item.Id}
		if item.Snippet != nil {
			ch.Name = item.Snippet.Title
		}
		ch.DisplayName = ch.Name
		return ch, nil
	}

	if ref.kind == refHandle {
		yt.log.Sugar().Debugw("Handle not found via API, trying channel page", "handle", ref.value)
		return yt.resolveFromPage(ctx, "/@"+ref.value)
	}
	return nil, ErrChannelNotFound
}
