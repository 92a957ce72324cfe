package platforms

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

const testChannelID = "UC0123456789abcdefghijkl"

func newTestYouTube(t *testing.T, handler http.HandlerFunc) *YouTube {
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	yt, err := newYouTube(context.Background(), zap.NewNop(), "key", http.DefaultTransport, option.WithEndpoint(srv.URL+"/"))
	require.NoError(t, err)
	yt.siteURL = srv.URL
	return yt
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	assert.NoError(t, json.NewEncoder(w).Encode(v))
}

func TestYouTube_LatestUpload(t *testing.T) {
	yt := newTestYouTube(t, func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/search"))
		assert.Equal(t, "key", r.URL.Query().Get("key"))
		assert.Equal(t, testChannelID, r.URL.Query().Get("channelId"))
		assert.Equal(t, "date", r.URL.Query().Get("order"))
		writeJSON(t, w, map[string]any{
			"items": []any{map[string]any{
				"id": map[string]any{"kind": "youtube#video", "videoId": "vid1"},
				"snippet": map[string]any{
					"title": "First video",
					"thumbnails": map[string]any{
						"high": map[string]any{"url": "https://i.ytimg.com/vi/vid1/hqdefault.jpg"},
					},
				},
			}},
		})
	})

	upload, err := yt.LatestUpload(context.Background(), testChannelID)
	require.NoError(t, err)
	require.NotNil(t, upload)
	assert.Equal(t, "vid1", upload.VideoID)
	assert.Equal(t, "First video", upload.Title)
	assert.Equal(t, "https://i.ytimg.com/vi/vid1/hqdefault.jpg", upload.Thumbnails.High)
	assert.Empty(t, upload.Thumbnails.Maxres)
}

func TestYouTube_LatestUpload_NoVideos(t *testing.T) {
	yt := newTestYouTube(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{"items": []any{}})
	})

	upload, err := yt.LatestUpload(context.Background(), testChannelID)
	assert.NoError(t, err)
	assert.Nil(t, upload)
}

func TestYouTube_LatestUpload_APIError(t *testing.T) {
	yt := newTestYouTube(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})

	_, err := yt.LatestUpload(context.Background(), testChannelID)
	assert.Error(t, err)
}

func TestYouTube_ResolveChannel(t *testing.T) {
	yt := newTestYouTube(t, func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/channels"))
		assert.Equal(t, "somecreator", r.URL.Query().Get("forHandle"))
		writeJSON(t, w, map[string]any{
			"items": []any{map[string]any{
				"id":      testChannelID,
				"snippet": map[string]any{"title": "Some Creator"},
			}},
		})
	})

	ch, err := yt.ResolveChannel(context.Background(), "https://www.youtube.com/@somecreator")
	require.NoError(t, err)
	assert.Equal(t, testChannelID, ch.ID)
	assert.Equal(t, "Some Creator", ch.Name)
}

func TestYouTube_ResolveChannel_PageFallback(t *testing.T) {
	yt := newTestYouTube(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/channels"):
			writeJSON(t, w, map[string]any{"items": []any{}})
		case r.URL.Path == "/@fresh":
			_, _ = w.Write([]byte(`<html><head>
<link rel="canonical" href="https://www.youtube.com/channel/` + testChannelID + `">
<meta property="og:title" content="Fresh Channel">
</head><body></body></html>`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	ch, err := yt.ResolveChannel(context.Background(), "@fresh")
	require.NoError(t, err)
	assert.Equal(t, testChannelID, ch.ID)
	assert.Equal(t, "Fresh Channel", ch.Name)
}

func TestYouTube_ResolveChannel_NotFound(t *testing.T) {
	yt := newTestYouTube(t, func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/channels") {
			writeJSON(t, w, map[string]any{"items": []any{}})
			return
		}
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := yt.ResolveChannel(context.Background(), "@nobody")
	assert.ErrorIs(t, err, ErrChannelNotFound)

	_, err = yt.ResolveChannel(context.Background(), "UC0123456789abcdefghijkl")
	assert.ErrorIs(t, err, ErrChannelNotFound)
}
