package lib

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/fiffu/streamwatch/config"
	"github.com/fiffu/streamwatch/lib/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Tracker records play sessions per user and activity. Each (user, activity)
// pair is either idle or has exactly one open session row; both transitions
// are single conditional writes, so repeated or out-of-order presence events
// degrade to no-ops.
type Tracker struct {
	log            *zap.Logger
	db             *gorm.DB
	minSessionSecs int64
}

func NewTracker(log *zap.Logger, cfg *config.Config, db *gorm.DB) *Tracker {
	return &Tracker{log, db, cfg.Activity.MinSessionSecs}
}

type PresenceResult struct {
	Started []string `json:"started"`
	Ended   []string `json:"ended"`
}

func validateSessionInput(userID, activityName string) error {
	if strings.TrimSpace(userID) == "" || models.ActivityKey(activityName) == "" {
		return fmt.Errorf("%w: user id and activity name are required", ErrInvalidInput)
	}
	return nil
}

// StartSession opens a session unless one is already open. It reports
// whether a session was opened.
func (t *Tracker) StartSession(ctx context.Context, userID, activityName string, at time.Time) (bool, error) {
	if err := validateSessionInput(userID, activityName); err != nil {
		return false, err
	}
	at = at.UTC()
	key := models.ActivityKey(activityName)

	var opened bool
	err := t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		activity, err := canonicalActivity(tx, activityName)
		if err != nil {
			return err
		}

		session := &models.ActivitySession{
			UserID:       userID,
			ActivityKey:  key,
			ActivityName: activity.Name,
			StartedAt:    at,
			StartedUnix:  at.Unix(),
		}
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(session)
		if err := res.Error; err != nil {
			return err
		}
		opened = res.RowsAffected > 0
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("start session %s/%s: %w", userID, key, err)
	}

	if opened {
		t.log.Sugar().Debugw("Session started", "user_id", userID, "activity", key)
	}
	return opened, nil
}

// canonicalActivity returns the activity for name, creating it on first
// sight. The first spelling seen is kept.
func canonicalActivity(tx *gorm.DB, name string) (*models.Activity, error) {
	key := models.ActivityKey(name)
	created := &models.Activity{Name: strings.TrimSpace(name), NameKey: key}
	onKey := clause.OnConflict{Columns: []clause.Column{{Name: "name_key"}}, DoNothing: true}
	if err := tx.Clauses(onKey).Create(created).Error; err != nil {
		return nil, err
	}

	activity := &models.Activity{}
	if err := tx.Where("name_key = ?", key).First(activity).Error; err != nil {
		return nil, err
	}
	return activity, nil
}

// EndSession closes the open session, if any. It never creates rows.
func (t *Tracker) EndSession(ctx context.Context, userID, activityName string, at time.Time) (bool, error) {
	if err := validateSessionInput(userID, activityName); err != nil {
		return false, err
	}
	at = at.UTC()
	key := models.ActivityKey(activityName)
	atUnix := at.Unix()

	res := t.db.WithContext(ctx).
		Model(&models.ActivitySession{}).
		Where("user_id = ? AND activity_key = ? AND ended_at IS NULL", userID, key).
		Updates(map[string]any{
			"ended_at":      at,
			"duration_secs": gorm.Expr("CASE WHEN ? > started_unix THEN ? - started_unix ELSE 0 END", atUnix, atUnix),
		})
	if err := res.Error; err != nil {
		return false, fmt.Errorf("end session %s/%s: %w", userID, key, err)
	}

	closed := res.RowsAffected > 0
	if closed {
		t.log.Sugar().Debugw("Session ended", "user_id", userID, "activity", key)
	}
	return closed, nil
}

// HandlePresence starts activities present only in after and ends those
// present only in before. Names compare case-insensitively.
func (t *Tracker) HandlePresence(ctx context.Context, userID string, before, after []string, at time.Time) (*PresenceResult, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}

	prev, next := activitySet(before), activitySet(after)
	result := &PresenceResult{Started: []string{}, Ended: []string{}}
	var errs []error

	for _, key := range sortedKeys(prev) {
		if _, ok := next[key]; ok {
			continue
		}
		closed, err := t.EndSession(ctx, userID, prev[key], at)
		if err != nil {
			errs = append(errs, err)
		} else if closed {
			result.Ended = append(result.Ended, prev[key])
		}
	}
	for _, key := range sortedKeys(next) {
		if _, ok := prev[key]; ok {
			continue
		}
		opened, err := t.StartSession(ctx, userID, next[key], at)
		if err != nil {
			errs = append(errs, err)
		} else if opened {
			result.Started = append(result.Started, next[key])
		}
	}

	return result, errors.Join(errs...)
}

// ActiveUsers lists users with an open session for the activity, earliest
// start first.
func (t *Tracker) ActiveUsers(ctx context.Context, activityName string) ([]string, error) {
	key := models.ActivityKey(activityName)
	if key == "" {
		return nil, fmt.Errorf("%w: activity name is required", ErrInvalidInput)
	}

	users := []string{}
	err := t.db.WithContext(ctx).
		Model(&models.ActivitySession{}).
		Where("activity_key = ? AND ended_at IS NULL", key).
		Order("started_at, user_id").
		Pluck("user_id", &users).Error
	if err != nil {
		return nil, err
	}
	return users, nil
}

func activitySet(names []string) map[string]string {
	set := make(map[string]string, len(names))
	for _, name := range names {
		key := models.ActivityKey(name)
		if key == "" {
			continue
		}
		if _, ok := set[key]; !ok {
			set[key] = strings.TrimSpace(name)
		}
	}
	return set
}

func sortedKeys(set map[string]string) []string {
	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
