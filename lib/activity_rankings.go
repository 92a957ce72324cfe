package lib

import (
	"context"
	"fmt"

	"github.com/fiffu/streamwatch/lib/models"
	"gorm.io/gorm"
)

const memberTopActivities = 3

type ActivityTotal struct {
	Name         string `json:"name"`
	TotalSeconds int64  `json:"total_seconds"`
	Sessions     int64  `json:"sessions"`
	Players      int64  `json:"players"`
}

type UserTotal struct {
	UserID        string          `json:"user_id"`
	TotalSeconds  int64           `json:"total_seconds"`
	Sessions      int64           `json:"sessions"`
	TopActivities []ActivityTotal `json:"top_activities,omitempty" gorm:"-"`
}

const (
	activityTotalsSelect = "activities.name AS name, " +
		"CAST(SUM(s.duration_secs) AS BIGINT) AS total_seconds, " +
		"COUNT(*) AS sessions, " +
		"COUNT(DISTINCT s.user_id) AS players"
	userTotalsSelect = "s.user_id AS user_id, " +
		"CAST(SUM(s.duration_secs) AS BIGINT) AS total_seconds, " +
		"COUNT(*) AS sessions"
)

func checkLimit(limit int) error {
	if limit <= 0 {
		return fmt.Errorf("%w: limit must be positive", ErrInvalidInput)
	}
	return nil
}

// TopActivitiesForUser totals the user's closed sessions per activity.
func (t *Tracker) TopActivitiesForUser(ctx context.Context, userID string, limit int) ([]ActivityTotal, error) {
	if err := checkLimit(limit); err != nil {
		return nil, err
	}

	totals := []ActivityTotal{}
	err := t.closedSessions(ctx).
		Joins("JOIN activities ON activities.name_key = s.activity_key").
		Select(activityTotalsSelect).
		Where("s.user_id = ?", userID).
		Group("activities.id, activities.name").
		Order("total_seconds DESC, activities.name").
		Limit(limit).
		Scan(&totals).Error
	if err != nil {
		return nil, fmt.Errorf("top activities for %s: %w", userID, err)
	}
	return totals, nil
}

// GlobalRankForActivity ranks users by closed session time in one activity.
func (t *Tracker) GlobalRankForActivity(ctx context.Context, activityName string, limit int) ([]UserTotal, error) {
	if err := checkLimit(limit); err != nil {
		return nil, err
	}
	key := models.ActivityKey(activityName)
	if key == "" {
		return nil, fmt.Errorf("%w: activity name is required", ErrInvalidInput)
	}

	totals := []UserTotal{}
	err := t.closedSessions(ctx).
		Select(userTotalsSelect).
		Where("s.activity_key = ?", key).
		Group("s.user_id").
		Order("total_seconds DESC, s.user_id").
		Limit(limit).
		Scan(&totals).Error
	if err != nil {
		return nil, fmt.Errorf("rank for activity %s: %w", key, err)
	}
	return totals, nil
}

func (t *Tracker) TopActivitiesGlobal(ctx context.Context, limit int) ([]ActivityTotal, error) {
	if err := checkLimit(limit); err != nil {
		return nil, err
	}

	totals := []ActivityTotal{}
	err := t.closedSessions(ctx).
		Joins("JOIN activities ON activities.name_key = s.activity_key").
		Select(activityTotalsSelect).
		Group("activities.id, activities.name").
		Order("total_seconds DESC, activities.name").
		Limit(limit).
		Scan(&totals).Error
	if err != nil {
		return nil, fmt.Errorf("top activities: %w", err)
	}
	return totals, nil
}

// TopMembersByActivityTime ranks users by closed session time across all
// activities, each with their own top activities.
func (t *Tracker) TopMembersByActivityTime(ctx context.Context, limit int) ([]UserTotal, error) {
	if err := checkLimit(limit); err != nil {
		return nil, err
	}

	totals := []UserTotal{}
	err := t.closedSessions(ctx).
		Select(userTotalsSelect).
		Group("s.user_id").
		Order("total_seconds DESC, s.user_id").
		Limit(limit).
		Scan(&totals).Error
	if err != nil {
		return nil, fmt.Errorf("top members: %w", err)
	}

	for i := range totals {
		top, err := t.TopActivitiesForUser(ctx, totals[i].UserID, memberTopActivities)
		if err != nil {
			return nil, err
		}
		totals[i].TopActivities = top
	}
	return totals, nil
}

func (t *Tracker) closedSessions(ctx context.Context) *gorm.DB {
	return t.db.WithContext(ctx).
		Table("activity_sessions AS s").
		Where("s.ended_at IS NOT NULL AND s.duration_secs >= ?", t.minSessionSecs)
}
