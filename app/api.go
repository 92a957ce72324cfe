package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/fiffu/streamwatch/config"
	"github.com/fiffu/streamwatch/lib"
	"github.com/fiffu/streamwatch/lib/models"
	"github.com/fiffu/streamwatch/lib/platforms"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const defaultDeliveriesLimit = 50

func NewAPI(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger, svc *lib.Service, readiness *lib.Readiness, metrics *prometheus.Registry) *http.Server {
	addr := fmt.Sprintf(":%d", cfg.ServerPort)
	srv := &http.Server{Addr: addr, Handler: router(cfg, log, svc, readiness, metrics)}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Sugar().Errorw("HTTP server stopped", "err", err)
				}
			}()
			log.Sugar().Infow("HTTP server listening", "addr", addr)
			return nil
		},
		OnStop: srv.Shutdown,
	})

	return srv
}

func router(cfg *config.Config, log *zap.Logger, svc *lib.Service, readiness *lib.Readiness, metrics *prometheus.Registry) http.Handler {
	ctrl := &controller{log, svc, time.Now}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if !readiness.IsReady() {
			http.Error(w, "starting", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.HandlerFor(metrics, promhttp.HandlerOpts{}))

	r.Route("/api", func(r chi.Router) {
		if creds := cfg.GetCreds(); len(creds) > 0 {
			r.Use(middleware.BasicAuth("streamwatch", creds))
		} else {
			log.Sugar().Info("Auth is disabled since no credentials are defined")
		}

		r.Route("/subscriptions", func(r chi.Router) {
			r.Get("/", ctrl.listSubscriptions)
			r.Post("/{platform}", ctrl.subscribe)
			r.Delete("/{platform}/{name}", ctrl.unsubscribe)
		})
		r.Get("/subscribers/{subscriber_id}/subscriptions", ctrl.listForSubscriber)

		r.Post("/presence", ctrl.presence)
		r.Post("/sessions/start", ctrl.startSession)
		r.Post("/sessions/end", ctrl.endSession)
		r.Get("/activities/{name}/active", ctrl.activeUsers)

		r.Route("/rankings", func(r chi.Router) {
			r.Get("/users/{user_id}/activities", ctrl.topActivitiesForUser)
			r.Get("/activities/{name}/members", ctrl.globalRankForActivity)
			r.Get("/activities", ctrl.topActivities)
			r.Get("/members", ctrl.topMembers)
		})

		r.Get("/deliveries", ctrl.deliveries)
	})

	return r
}

type controller struct {
	log *zap.Logger
	svc *lib.Service
	now func() time.Time
}

func (ctrl *controller) reject(w http.ResponseWriter, status int, err error) {
	if err != nil {
		http.Error(w, err.Error(), status)
	} else {
		w.WriteHeader(status)
	}
}

// fail maps service errors onto HTTP statuses.
func (ctrl *controller) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, lib.ErrInvalidInput):
		ctrl.reject(w, http.StatusBadRequest, err)
	case errors.Is(err, platforms.ErrChannelNotFound):
		ctrl.reject(w, http.StatusNotFound, err)
	default:
		ctrl.log.Sugar().Errorw("Request failed", "path", r.URL.Path, "err", err)
		ctrl.reject(w, http.StatusInternalServerError, err)
	}
}

func (ctrl *controller) resolve(w http.ResponseWriter, status int, body any) {
	if b, err := json.Marshal(body); err != nil {
		ctrl.reject(w, http.StatusInternalServerError, err)
		ctrl.log.Sugar().Errorw("Request failed", "err", err)
		return
	} else {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write(b)
	}
}

func (ctrl *controller) platform(w http.ResponseWriter, r *http.Request) (models.Platform, bool) {
	platform, ok := models.ParsePlatform(chi.URLParam(r, "platform"))
	if !ok {
		ctrl.reject(w, http.StatusNotFound, fmt.Errorf("unknown platform %q", chi.URLParam(r, "platform")))
	}
	return platform, ok
}

func (ctrl *controller) subscribe(w http.ResponseWriter, r *http.Request) {
	platform, ok := ctrl.platform(w, r)
	if !ok {
		return
	}
	subscriberID := r.FormValue("subscriber_id")
	channel := r.FormValue("channel")
	if subscriberID == "" || channel == "" {
		ctrl.reject(w, http.StatusBadRequest, errors.New("subscriber_id and channel are required"))
		return
	}

	out, err := ctrl.svc.SubscribeChannel(r.Context(), subscriberID, platform, channel)
	if err != nil {
		ctrl.fail(w, r, err)
		return
	}

	status := http.StatusCreated
	if out.Result == lib.AlreadySubscribed {
		status = http.StatusOK
	}
	ctrl.resolve(w, status, SubscribeView{}.From(out))
}

func (ctrl *controller) unsubscribe(w http.ResponseWriter, r *http.Request) {
	platform, ok := ctrl.platform(w, r)
	if !ok {
		return
	}

	result, err := ctrl.svc.Unsubscribe(r.Context(), r.FormValue("subscriber_id"), platform, chi.URLParam(r, "name"))
	if err != nil {
		ctrl.fail(w, r, err)
		return
	}

	status := http.StatusOK
	if result == lib.NotFound {
		status = http.StatusNotFound
	}
	ctrl.resolve(w, status, map[string]any{"result": result.String()})
}

func (ctrl *controller) listSubscriptions(w http.ResponseWriter, r *http.Request) {
	subs, err := ctrl.svc.ListAll(r.Context())
	if err != nil {
		ctrl.fail(w, r, err)
		return
	}
	ctrl.resolve(w, http.StatusOK, FromMany[*models.Subscription, SubscriptionView](subs))
}

func (ctrl *controller) listForSubscriber(w http.ResponseWriter, r *http.Request) {
	subs, err := ctrl.svc.ListForSubscriber(r.Context(), chi.URLParam(r, "subscriber_id"))
	if err != nil {
		ctrl.fail(w, r, err)
		return
	}
	ctrl.resolve(w, http.StatusOK, FromMany[*models.Subscription, SubscriptionView](subs))
}

type presenceRequest struct {
	UserID string     `json:"user_id"`
	Before []string   `json:"before"`
	After  []string   `json:"after"`
	At     *time.Time `json:"at"`
}

func (ctrl *controller) presence(w http.ResponseWriter, r *http.Request) {
	var req presenceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctrl.reject(w, http.StatusBadRequest, err)
		return
	}
	at := ctrl.now()
	if req.At != nil {
		at = *req.At
	}

	result, err := ctrl.svc.HandlePresence(r.Context(), req.UserID, req.Before, req.After, at)
	if result == nil {
		ctrl.fail(w, r, err)
		return
	}
	if err != nil {
		ctrl.log.Sugar().Errorw("Presence partially applied",
			"user_id", req.UserID, "started", result.Started, "ended", result.Ended, "err", err)
		ctrl.resolve(w, http.StatusInternalServerError, PresenceView{result, err.Error()})
		return
	}
	ctrl.resolve(w, http.StatusOK, PresenceView{PresenceResult: result})
}

func (ctrl *controller) startSession(w http.ResponseWriter, r *http.Request) {
	opened, err := ctrl.svc.StartSession(r.Context(), r.FormValue("user_id"), r.FormValue("activity"), ctrl.now())
	if err != nil {
		ctrl.fail(w, r, err)
		return
	}
	ctrl.resolve(w, http.StatusOK, map[string]any{"started": opened})
}

func (ctrl *controller) endSession(w http.ResponseWriter, r *http.Request) {
	closed, err := ctrl.svc.EndSession(r.Context(), r.FormValue("user_id"), r.FormValue("activity"), ctrl.now())
	if err != nil {
		ctrl.fail(w, r, err)
		return
	}
	ctrl.resolve(w, http.StatusOK, map[string]any{"ended": closed})
}

func (ctrl *controller) activeUsers(w http.ResponseWriter, r *http.Request) {
	users, err := ctrl.svc.ActiveUsers(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		ctrl.fail(w, r, err)
		return
	}
	ctrl.resolve(w, http.StatusOK, map[string]any{"users": users})
}

func (ctrl *controller) topActivitiesForUser(w http.ResponseWriter, r *http.Request) {
	limit := ctrl.svc.RankingLimit(parseInt(r.FormValue("limit")))
	totals, err := ctrl.svc.TopActivitiesForUser(r.Context(), chi.URLParam(r, "user_id"), limit)
	if err != nil {
		ctrl.fail(w, r, err)
		return
	}
	ctrl.resolve(w, http.StatusOK, totals)
}

func (ctrl *controller) globalRankForActivity(w http.ResponseWriter, r *http.Request) {
	limit := ctrl.svc.RankingLimit(parseInt(r.FormValue("limit")))
	totals, err := ctrl.svc.GlobalRankForActivity(r.Context(), chi.URLParam(r, "name"), limit)
	if err != nil {
		ctrl.fail(w, r, err)
		return
	}
	ctrl.resolve(w, http.StatusOK, totals)
}

func (ctrl *controller) topActivities(w http.ResponseWriter, r *http.Request) {
	limit := ctrl.svc.RankingLimit(parseInt(r.FormValue("limit")))
	totals, err := ctrl.svc.TopActivitiesGlobal(r.Context(), limit)
	if err != nil {
		ctrl.fail(w, r, err)
		return
	}
	ctrl.resolve(w, http.StatusOK, totals)
}

func (ctrl *controller) topMembers(w http.ResponseWriter, r *http.Request) {
	limit := ctrl.svc.RankingLimit(parseInt(r.FormValue("limit")))
	totals, err := ctrl.svc.TopMembersByActivityTime(r.Context(), limit)
	if err != nil {
		ctrl.fail(w, r, err)
		return
	}
	ctrl.resolve(w, http.StatusOK, totals)
}

func (ctrl *controller) deliveries(w http.ResponseWriter, r *http.Request) {
	limit := parseInt(r.FormValue("limit"))
	if limit <= 0 {
		limit = defaultDeliveriesLimit
	}
	deliveries, err := ctrl.svc.RecentDeliveries(r.Context(), limit)
	if err != nil {
		ctrl.fail(w, r, err)
		return
	}
	ctrl.resolve(w, http.StatusOK, FromMany[models.Delivery, DeliveryView](deliveries))
}

func parseInt(s string) int {
	i, _ := strconv.Atoi(s)
	return i
}
