package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/fiffu/streamwatch/app"
	"github.com/fiffu/streamwatch/config"
	"github.com/fiffu/streamwatch/lib"
	"github.com/fiffu/streamwatch/lib/platforms"
	"github.com/fiffu/streamwatch/lib/poller"
	"github.com/fiffu/streamwatch/senders"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func NewLogger() (*zap.Logger, error) {
	switch os.Getenv("ENVIRONMENT") {
	default:
		return zap.NewDevelopment()

	case "production":
		logCfg := zap.NewProductionConfig()
		logCfg.EncoderConfig.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
			t = t.UTC()
			zapcore.ISO8601TimeEncoder(t, enc)
		}
		return logCfg.Build()
	}
}

// markReady runs after every other OnStart hook, releasing the pollers.
func markReady(lc fx.Lifecycle, log *zap.Logger, readiness *lib.Readiness) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			readiness.MarkReady()
			log.Info("Streamwatch ready")
			return nil
		},
	})
}

func main() {
	fx.New(
		fx.Provide(NewLogger),
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log}
		}),
		fx.Provide(config.NewConfig),

		fx.Provide(app.NewTransport),
		fx.Provide(app.NewDatabase),
		fx.Provide(app.NewMetricsRegistry, app.MetricsRegisterer),

		fx.Provide(senders.NewSenderRegistry),
		fx.Provide(
			fx.Annotate(platforms.NewYouTube, fx.As(new(platforms.VideoPlatform))),
			fx.Annotate(platforms.NewTwitch, fx.As(new(platforms.LivePlatform))),
		),

		fx.Provide(lib.NewReadiness),
		fx.Provide(lib.NewRegistry),
		fx.Provide(lib.NewTracker),
		fx.Provide(lib.NewNotifier),
		fx.Provide(lib.NewService),

		fx.Provide(poller.NewMetrics),
		fx.Provide(poller.NewYouTubePoller),
		fx.Provide(poller.NewTwitchPoller),
		fx.Provide(app.NewAPI),

		fx.Invoke(func(*http.Server, *poller.YouTubePoller, *poller.TwitchPoller) {}),
		fx.Invoke(markReady),
	).Run()
}
