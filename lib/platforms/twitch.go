package platforms

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/carlmjohnson/requests"
	"github.com/fiffu/streamwatch/config"
	"github.com/fiffu/streamwatch/lib/models"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	twitchHelixURL = "https://api.twitch.tv/helix/"
	twitchTokenURL = "https://id.twitch.tv/oauth2/token"
)

var errTwitchAuth = errors.New("twitch authentication failed")

type Twitch struct {
	log       *zap.Logger
	clientID  string
	oauth     clientcredentials.Config
	tokenCtx  context.Context
	transport http.RoundTripper
	helixURL  string

	mu     sync.Mutex
	tokens oauth2.TokenSource
}

type twitchStream struct {
	ID           string `json:"id"`
	UserLogin    string `json:"user_login"`
	Type         string `json:"type"`
	Title        string `json:"title"`
	ThumbnailURL string `json:"thumbnail_url"`
}

type twitchUser struct {
	ID          string `json:"id"`
	Login       string `json:"login"`
	DisplayName string `json:"display_name"`
}

type helixResponse[T any] struct {
	Data []T `json:"data"`
}

func NewTwitch(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger, transport http.RoundTripper) *Twitch {
	tw := newTwitch(log, cfg.Twitch.ClientID, cfg.Twitch.ClientSecret, transport, twitchHelixURL, twitchTokenURL)

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if cfg.Twitch.ClientID == "" || cfg.Twitch.ClientSecret == "" {
				log.Sugar().Warn("TWITCH_CLIENT_ID or TWITCH_CLIENT_SECRET is not set, Twitch polling will fail")
				return nil
			}
			if err := tw.Authenticate(); err != nil {
				// Not fatal, every call retries authentication once
				log.Sugar().Errorw("Twitch authentication failed on startup", "err", err)
				return nil
			}
			log.Sugar().Info("Twitch authenticated")
			return nil
		},
	})
	return tw
}

func newTwitch(log *zap.Logger, clientID, clientSecret string, transport http.RoundTripper, helixURL, tokenURL string) *Twitch {
	tokenCtx := context.WithValue(context.Background(), oauth2.HTTPClient, &http.Client{Transport: transport})
	return &Twitch{
		log:      log,
		clientID: clientID,
		oauth: clientcredentials.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			TokenURL:     tokenURL,
			AuthStyle:    oauth2.AuthStyleInParams,
		},
		tokenCtx:  tokenCtx,
		transport: transport,
		helixURL:  helixURL,
	}
}

// Authenticate drops any cached app token and fetches a new one.
func (tw *Twitch) Authenticate() error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	tw.tokens = tw.oauth.TokenSource(tw.tokenCtx)
	if _, err := tw.tokens.Token(); err != nil {
		tw.tokens = nil
		return fmt.Errorf("%w: %w", errTwitchAuth, err)
	}
	return nil
}

func (tw *Twitch) token() (*oauth2.Token, error) {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	if tw.tokens == nil {
		tw.tokens = tw.oauth.TokenSource(tw.tokenCtx)
	}
	tok, err := tw.tokens.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errTwitchAuth, err)
	}
	return tok, nil
}

func (tw *Twitch) LiveStatus(ctx context.Context, login string) (*models.LiveStatus, error) {
	var resp helixResponse[twitchStream]
	params := url.Values{"user_login": {normalizeLogin(login)}}
	if err := tw.helix(ctx, "streams", params, &resp); err != nil {
		return nil, fmt.Errorf("twitch streams for %s: %w", login, err)
	}

	if len(resp.Data) == 0 {
		return &models.LiveStatus{IsLive: false}, nil
	}
	stream := resp.Data[0]
	return &models.LiveStatus{
		IsLive:            true,
		StreamID:          stream.ID,
		Title:             stream.Title,
		ThumbnailTemplate: stream.ThumbnailURL,
	}, nil
}

func (tw *Twitch) ResolveChannel(ctx context.Context, login string) (*models.Channel, error) {
	login = normalizeLogin(login)
	if login == "" {
		return nil, ErrChannelNotFound
	}

	var resp helixResponse[twitchUser]
	if err := tw.helix(ctx, "users", url.Values{"login": {login}}, &resp); err != nil {
		if requests.HasStatusErr(err, http.StatusBadRequest) {
			return nil, ErrChannelNotFound
		}
		return nil, fmt.Errorf("twitch users for %s: %w", login, err)
	}
	if len(resp.Data) == 0 {
		return nil, ErrChannelNotFound
	}

	user := resp.Data[0]
	return &models.Channel{
		Platform:    models.Twitch,
		ID:          user.ID,
		Name:        user.Login,
		DisplayName: user.DisplayName,
	}, nil
}

// helix calls the Helix API, reauthenticating and retrying once when the
// token is rejected or could not be obtained.
func (tw *Twitch) helix(ctx context.Context, path string, params url.Values, out any) error {
	err := tw.fetch(ctx, path, params, out)
	if !requests.HasStatusErr(err, http.StatusUnauthorized) && !errors.Is(err, errTwitchAuth) {
		return err
	}

	tw.log.Sugar().Warnw("Twitch call unauthorized, reauthenticating", "path", path, "err", err)
	if err := tw.Authenticate(); err != nil {
		return err
	}
	return tw.fetch(ctx, path, params, out)
}

func (tw *Twitch) fetch(ctx context.Context, path string, params url.Values, out any) error {
	tok, err := tw.token()
	if err != nil {
		return err
	}

	b := requests.URL(tw.helixURL).
		Path(path).
		Transport(tw.transport).
		Header("Client-Id", tw.clientID).
		Bearer(tok.AccessToken).
		ToJSON(out)
	for key, values := range params {
		b = b.Param(key, values...)
	}
	return b.Fetch(ctx)
}

func normalizeLogin(login string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(login), "@"))
}
