package app

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/fiffu/streamwatch/config"
	"github.com/fiffu/streamwatch/lib"
	"github.com/fiffu/streamwatch/lib/dbtest"
	"github.com/fiffu/streamwatch/lib/models"
	"github.com/fiffu/streamwatch/lib/platforms"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type stubPlatform struct {
	channels map[string]*models.Channel
}

func (s *stubPlatform) ResolveChannel(_ context.Context, input string) (*models.Channel, error) {
	if ch, ok := s.channels[input]; ok {
		return ch, nil
	}
	return nil, platforms.ErrChannelNotFound
}

func (s *stubPlatform) LatestUpload(context.Context, string) (*models.Upload, error) {
	return nil, nil
}

func (s *stubPlatform) LiveStatus(context.Context, string) (*models.LiveStatus, error) {
	return &models.LiveStatus{}, nil
}

func newTestServer(t *testing.T, creds string) *httptest.Server {
	srv, _ := newTestServerWithDB(t, creds)
	return srv
}

func newTestServerWithDB(t *testing.T, creds string) (*httptest.Server, *gorm.DB) {
	t.Setenv("BASIC_AUTH_CREDS", creds)
	cfg, err := config.Parse(zap.NewNop())
	require.NoError(t, err)

	log := zap.NewNop()
	db := dbtest.Open(t)
	yt := &stubPlatform{map[string]*models.Channel{
		"@creator": {Platform: models.YouTube, ID: "UC1", Name: "Creator"},
	}}
	tw := &stubPlatform{map[string]*models.Channel{
		"streamer": {Platform: models.Twitch, ID: "42", Name: "streamer"},
	}}
	svc := lib.NewService(cfg, log, yt, tw, lib.NewRegistry(log, db), lib.NewTracker(log, cfg, db), lib.NewNotifier(log, db))
	readiness := lib.NewReadiness()
	readiness.MarkReady()

	srv := httptest.NewServer(router(cfg, log, svc, readiness, NewMetricsRegistry()))
	t.Cleanup(srv.Close)
	return srv, db
}

func do(t *testing.T, method, target string, form url.Values) (*http.Response, []byte) {
	body := strings.NewReader("")
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequest(method, target, body)
	require.NoError(t, err)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var buf strings.Builder
	_, err = io.Copy(&buf, resp.Body)
	require.NoError(t, err)
	return resp, []byte(buf.String())
}

func TestAPI_SubscribeAndUnsubscribe(t *testing.T) {
	srv := newTestServer(t, "")

	resp, body := do(t, http.MethodPost, srv.URL+"/api/subscriptions/youtube", url.Values{
		"subscriber_id": {"u1"},
		"channel":       {"@creator"},
	})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	var view SubscribeView
	require.NoError(t, json.Unmarshal(body, &view))
	assert.Equal(t, SubscribeView{Result: "added", Platform: "youtube", ChannelID: "UC1", ChannelName: "Creator", DisplayName: "Creator"}, view)

	resp, _ = do(t, http.MethodPost, srv.URL+"/api/subscriptions/youtube", url.Values{
		"subscriber_id": {"u1"},
		"channel":       {"@creator"},
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = do(t, http.MethodGet, srv.URL+"/api/subscribers/u1/subscriptions", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var subs []SubscriptionView
	require.NoError(t, json.Unmarshal(body, &subs))
	require.Len(t, subs, 1)
	assert.Equal(t, "UC1", subs[0].ChannelID)

	resp, _ = do(t, http.MethodDelete, srv.URL+"/api/subscriptions/youtube/creator?subscriber_id=u1", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = do(t, http.MethodDelete, srv.URL+"/api/subscriptions/youtube/creator?subscriber_id=u1", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_SubscribeErrors(t *testing.T) {
	srv := newTestServer(t, "")

	resp, _ := do(t, http.MethodPost, srv.URL+"/api/subscriptions/twitch", url.Values{
		"subscriber_id": {"u1"},
		"channel":       {"ghost"},
	})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = do(t, http.MethodPost, srv.URL+"/api/subscriptions/vimeo", url.Values{
		"subscriber_id": {"u1"},
		"channel":       {"x"},
	})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = do(t, http.MethodPost, srv.URL+"/api/subscriptions/twitch", url.Values{"channel": {"streamer"}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_PresenceAndRankings(t *testing.T) {
	srv := newTestServer(t, "")
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	post := func(payload map[string]any) *http.Response {
		b, err := json.Marshal(payload)
		require.NoError(t, err)
		resp, err := http.Post(srv.URL+"/api/presence", "application/json", strings.NewReader(string(b)))
		require.NoError(t, err)
		resp.Body.Close()
		return resp
	}

	resp := post(map[string]any{"user_id": "u1", "after": []string{"X"}, "at": start})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	post(map[string]any{"user_id": "u1", "before": []string{"X"}, "at": start.Add(time.Hour)})
	post(map[string]any{"user_id": "u1", "after": []string{"x"}, "at": start.Add(2 * time.Hour)})
	post(map[string]any{"user_id": "u1", "before": []string{"x"}, "at": start.Add(150 * time.Minute)})

	resp, body := do(t, http.MethodGet, srv.URL+"/api/rankings/users/u1/activities", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var totals []lib.ActivityTotal
	require.NoError(t, json.Unmarshal(body, &totals))
	require.Len(t, totals, 1)
	assert.Equal(t, "X", totals[0].Name)
	assert.Equal(t, int64(5400), totals[0].TotalSeconds)

	resp, _ = do(t, http.MethodPost, srv.URL+"/api/sessions/start", url.Values{"user_id": {""}, "activity": {"X"}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_PresencePartialFailure(t *testing.T) {
	srv, db := newTestServerWithDB(t, "")
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	post := func(payload map[string]any) (int, PresenceView) {
		b, err := json.Marshal(payload)
		require.NoError(t, err)
		resp, err := http.Post(srv.URL+"/api/presence", "application/json", strings.NewReader(string(b)))
		require.NoError(t, err)
		defer resp.Body.Close()

		var view PresenceView
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&view))
		return resp.StatusCode, view
	}

	status, view := post(map[string]any{"user_id": "u1", "after": []string{"A"}, "at": start})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, []string{"A"}, view.Started)

	// Opening sessions fails from here on, closing them still works.
	err := db.Callback().Create().Before("gorm:create").Register("test:fail_sessions", func(tx *gorm.DB) {
		if tx.Statement.Table == "activity_sessions" {
			_ = tx.AddError(errors.New("sessions unavailable"))
		}
	})
	require.NoError(t, err)

	status, view = post(map[string]any{"user_id": "u1", "before": []string{"A"}, "after": []string{"B"}, "at": start.Add(time.Hour)})
	assert.Equal(t, http.StatusInternalServerError, status)
	require.NotNil(t, view.PresenceResult)
	assert.Equal(t, []string{"A"}, view.Ended)
	assert.Empty(t, view.Started)
	assert.Contains(t, view.Error, "sessions unavailable")

	resp, body := do(t, http.MethodGet, srv.URL+"/api/activities/A/active", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"users": []}`, string(body))
}

func TestAPI_BasicAuth(t *testing.T) {
	srv := newTestServer(t, "admin:secret")

	resp, _ := do(t, http.MethodGet, srv.URL+"/api/subscriptions", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/subscriptions", nil)
	require.NoError(t, err)
	req.SetBasicAuth("admin", "secret")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = do(t, http.MethodGet, srv.URL+"/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := do(t, http.MethodGet, srv.URL+"/metrics", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "go_goroutines")
}
