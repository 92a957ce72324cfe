// Package poller runs the periodic channel checks. Each platform gets its own
// loop; a tick walks every subscription of that platform, checks channels
// concurrently and hands changes to the notifier.
package poller

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fiffu/streamwatch/config"
	"github.com/fiffu/streamwatch/lib"
	"github.com/fiffu/streamwatch/lib/detector"
	"github.com/fiffu/streamwatch/lib/models"
	"github.com/fiffu/streamwatch/lib/platforms"
	"github.com/fiffu/streamwatch/senders"
	"github.com/google/uuid"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const batchSize = 50

// CheckFunc fetches the channel's current state and returns the change to
// notify about, if any.
type CheckFunc func(ctx context.Context, sub *models.Subscription) (*models.ChangeEvent, error)

func UploadCheck(yt platforms.VideoPlatform) CheckFunc {
	return func(ctx context.Context, sub *models.Subscription) (*models.ChangeEvent, error) {
		latest, err := yt.LatestUpload(ctx, sub.ChannelID)
		if err != nil {
			return nil, err
		}
		return detector.Upload(latest, sub), nil
	}
}

func LiveCheck(tw platforms.LivePlatform) CheckFunc {
	return func(ctx context.Context, sub *models.Subscription) (*models.ChangeEvent, error) {
		status, err := tw.LiveStatus(ctx, sub.ChannelName)
		if err != nil {
			return nil, err
		}
		return detector.Live(status, sub), nil
	}
}

type Params struct {
	fx.In

	Lifecycle fx.Lifecycle
	Config    *config.Config
	Log       *zap.Logger
	Senders   senders.Registry
	Registry  *lib.Registry
	Notifier  *lib.Notifier
	Readiness *lib.Readiness
	Metrics   *Metrics
}

type YouTubePoller struct{ *Poller }

type TwitchPoller struct{ *Poller }

func NewYouTubePoller(p Params, yt platforms.VideoPlatform) *YouTubePoller {
	return &YouTubePoller{newPoller(p, models.YouTube, p.Config.YouTubeInterval(), UploadCheck(yt))}
}

func NewTwitchPoller(p Params, tw platforms.LivePlatform) *TwitchPoller {
	return &TwitchPoller{newPoller(p, models.Twitch, p.Config.TwitchInterval(), LiveCheck(tw))}
}

func newPoller(p Params, platform models.Platform, interval time.Duration, check CheckFunc) *Poller {
	poller := &Poller{
		log:         p.Log,
		platform:    platform,
		interval:    interval,
		concurrency: p.Config.Poll.Concurrency,
		retention:   p.Config.DeliveryRetention(),
		destination: p.Config.Poll.Destination,
		senders:     p.Senders,
		registry:    p.Registry,
		notifier:    p.Notifier,
		readiness:   p.Readiness,
		metrics:     p.Metrics,
		check:       check,
	}

	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			poller.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			p.Log.Sugar().Infow("Trying to stop poller", "platform", platform)
			return poller.Stop(ctx)
		},
	})

	return poller
}

type Poller struct {
	log         *zap.Logger
	platform    models.Platform
	interval    time.Duration
	concurrency int
	retention   time.Duration // Deliveries older than this are purged every tick
	destination string

	senders   senders.Registry
	registry  *lib.Registry
	notifier  *lib.Notifier
	readiness *lib.Readiness
	metrics   *Metrics
	check     CheckFunc

	cancel func()
	wg     sync.WaitGroup
}

// Start launches the loop. The first tick fires as soon as the process is
// ready, later ticks every interval.
func (p *Poller) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		select {
		case <-p.readiness.Ready():
		case <-ctx.Done():
			return
		}

		for at := range newAlarmClock(p.interval).Start(ctx) {
			if ctx.Err() != nil {
				return
			}
			// In-flight ticks are never cancelled, only waited for.
			p.Tick(context.Background(), at)
		}
	}()
}

// Stop prevents new ticks and waits for a running one to finish.
func (p *Poller) Stop(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.log.Sugar().Infow("Poller stopped", "platform", p.platform)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Poller) Tick(ctx context.Context, startedAt time.Time) *tickMetrics {
	log := p.log.Sugar().With("platform", p.platform, "tick_id", uuid.NewString())
	m := &tickMetrics{}

	if !p.readiness.IsReady() {
		log.Warn("Not ready, skipping tick")
		p.metrics.tick(p.platform, "not_ready")
		return m
	}

	dest, err := p.senders.Resolve(p.destination)
	if err != nil {
		log.Errorw("Cannot resolve notification destination, skipping tick", "err", err)
		p.metrics.tick(p.platform, "unresolvable_destination")
		return m
	}

	err = p.registry.ForEachBatch(ctx, p.platform, batchSize, func(batch models.Subscriptions) error {
		p.pollBatch(ctx, log, dest, batch, m)
		return nil
	})
	if err != nil {
		log.Errorw("Failed to enumerate subscriptions", "err", err)
		p.metrics.tick(p.platform, "errored")
	} else {
		p.metrics.tick(p.platform, "completed")
	}

	if m.total > 0 {
		log.Infow(fmt.Sprintf("Processed %d subscriptions", m.total), m.logArgs()...)
	}

	p.purgeOldDeliveries(ctx, log, startedAt)

	elapsed := time.Now().UTC().Sub(startedAt)
	log.Infow("Poll completed", "elapsed_msecs", int(elapsed.Milliseconds()))
	return m
}

func (p *Poller) pollBatch(ctx context.Context, log *zap.SugaredLogger, dest senders.Destination, batch models.Subscriptions, m *tickMetrics) {
	var g errgroup.Group
	g.SetLimit(p.concurrency)

	for _, sub := range batch {
		sub := sub
		g.Go(func() error {
			r := p.pollChannel(ctx, log, dest, sub)
			m.record(r)
			p.metrics.channel(p.platform, r)
			return nil
		})
	}
	_ = g.Wait()
}

func (p *Poller) pollChannel(ctx context.Context, log *zap.SugaredLogger, dest senders.Destination, sub *models.Subscription) channelResult {
	event, err := p.check(ctx, sub)
	if err != nil {
		log.Warnw("Failed to check channel", "channel_id", sub.ChannelID, "channel_name", sub.ChannelName, "err", err)
		return resultErrored
	}
	if event == nil {
		return resultUnchanged
	}

	if err := p.notifier.Notify(ctx, dest, event, sub); err != nil {
		log.Errorw("Failed to notify", "channel_id", sub.ChannelID, "kind", event.Kind, "err", err)
		return resultErrored
	}
	p.metrics.notification(p.platform, event.Kind)
	return resultNotified
}

func (p *Poller) purgeOldDeliveries(ctx context.Context, log *zap.SugaredLogger, startedAt time.Time) {
	if p.retention <= 0 {
		return
	}

	purged, err := p.notifier.PurgeDeliveries(ctx, startedAt.Add(-p.retention))
	if err != nil {
		log.Errorw("Failed to purge old deliveries", "err", err)
		return
	}
	if purged > 0 {
		log.Infof("Purged %d old deliveries", purged)
	}
}
