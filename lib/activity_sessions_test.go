package lib

import (
	"context"
	"testing"
	"time"

	"github.com/fiffu/streamwatch/config"
	"github.com/fiffu/streamwatch/lib/dbtest"
	"github.com/fiffu/streamwatch/lib/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestTracker(t *testing.T, minSessionSecs int64) (*Tracker, *gorm.DB) {
	db := dbtest.Open(t)
	cfg := &config.Config{}
	cfg.Activity.MinSessionSecs = minSessionSecs
	return NewTracker(zap.NewNop(), cfg, db), db
}

func countSessions(t *testing.T, db *gorm.DB, where string, args ...any) int64 {
	var n int64
	require.NoError(t, db.Model(&models.ActivitySession{}).Where(where, args...).Count(&n).Error)
	return n
}

func TestTracker_StartEnd(t *testing.T) {
	ctx := context.Background()
	tr, db := newTestTracker(t, 0)

	opened, err := tr.StartSession(ctx, "u1", "Factorio", t0)
	require.NoError(t, err)
	assert.True(t, opened)

	opened, err = tr.StartSession(ctx, "u1", "factorio", t0.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, opened, "second start while open is a no-op")
	assert.Equal(t, int64(1), countSessions(t, db, "ended_at IS NULL"))

	closed, err := tr.EndSession(ctx, "u1", "FACTORIO", t0.Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, closed)

	var session models.ActivitySession
	require.NoError(t, db.First(&session).Error)
	assert.Equal(t, int64(3600), session.DurationSecs)
	assert.Equal(t, "Factorio", session.ActivityName)
	assert.True(t, session.EndedAt.Valid)
}

func TestTracker_EndWithoutOpenSessionCreatesNothing(t *testing.T) {
	ctx := context.Background()
	tr, db := newTestTracker(t, 0)

	closed, err := tr.EndSession(ctx, "u1", "Factorio", t0)
	require.NoError(t, err)
	assert.False(t, closed)
	assert.Equal(t, int64(0), countSessions(t, db, "1 = 1"))

	_, err = tr.StartSession(ctx, "u1", "Factorio", t0)
	require.NoError(t, err)
	_, err = tr.EndSession(ctx, "u1", "Factorio", t0.Add(time.Minute))
	require.NoError(t, err)

	closed, err = tr.EndSession(ctx, "u1", "Factorio", t0.Add(2*time.Minute))
	require.NoError(t, err)
	assert.False(t, closed, "double end is a no-op")
	assert.Equal(t, int64(1), countSessions(t, db, "1 = 1"))
}

func TestTracker_ClockSkewClampsDuration(t *testing.T) {
	ctx := context.Background()
	tr, db := newTestTracker(t, 0)

	_, err := tr.StartSession(ctx, "u1", "Factorio", t0)
	require.NoError(t, err)
	closed, err := tr.EndSession(ctx, "u1", "Factorio", t0.Add(-time.Minute))
	require.NoError(t, err)
	assert.True(t, closed)

	var session models.ActivitySession
	require.NoError(t, db.First(&session).Error)
	assert.Equal(t, int64(0), session.DurationSecs)
}

func TestTracker_NeverTwoOpenSessions(t *testing.T) {
	ctx := context.Background()
	tr, db := newTestTracker(t, 0)

	events := []bool{true, true, false, false, true, false, true, true, true}
	at := t0
	for _, start := range events {
		at = at.Add(time.Minute)
		var err error
		if start {
			_, err = tr.StartSession(ctx, "u1", "Tetris", at)
		} else {
			_, err = tr.EndSession(ctx, "u1", "tetris", at)
		}
		require.NoError(t, err)
		assert.LessOrEqual(t, countSessions(t, db, "user_id = ? AND activity_key = ? AND ended_at IS NULL", "u1", "tetris"), int64(1))
	}
	assert.Equal(t, int64(3), countSessions(t, db, "1 = 1"))
}

func TestTracker_FirstSpellingIsCanonical(t *testing.T) {
	ctx := context.Background()
	tr, db := newTestTracker(t, 0)

	_, err := tr.StartSession(ctx, "u1", "Minecraft", t0)
	require.NoError(t, err)
	_, err = tr.StartSession(ctx, "u2", "MINECRAFT", t0)
	require.NoError(t, err)

	var activities []models.Activity
	require.NoError(t, db.Find(&activities).Error)
	require.Len(t, activities, 1)
	assert.Equal(t, "Minecraft", activities[0].Name)
	assert.Equal(t, "minecraft", activities[0].NameKey)
}

func TestTracker_HandlePresence(t *testing.T) {
	ctx := context.Background()
	tr, _ := newTestTracker(t, 0)

	res, err := tr.HandlePresence(ctx, "u1", nil, []string{"Factorio", "Spotify"}, t0)
	require.NoError(t, err)
	assert.Equal(t, []string{"Factorio", "Spotify"}, res.Started)
	assert.Empty(t, res.Ended)

	res, err = tr.HandlePresence(ctx, "u1", []string{"Factorio", "Spotify"}, []string{"spotify", "Tetris"}, t0.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []string{"Tetris"}, res.Started)
	assert.Equal(t, []string{"Factorio"}, res.Ended)

	active, err := tr.ActiveUsers(ctx, "SPOTIFY")
	require.NoError(t, err)
	assert.Equal(t, []string{"u1"}, active)

	active, err = tr.ActiveUsers(ctx, "factorio")
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestTracker_ActiveUsersOrderedByStart(t *testing.T) {
	ctx := context.Background()
	tr, _ := newTestTracker(t, 0)

	_, err := tr.StartSession(ctx, "late", "Chess", t0.Add(time.Hour))
	require.NoError(t, err)
	_, err = tr.StartSession(ctx, "early", "chess", t0)
	require.NoError(t, err)

	active, err := tr.ActiveUsers(ctx, "Chess")
	require.NoError(t, err)
	assert.Equal(t, []string{"early", "late"}, active)
}

func TestTracker_InvalidInput(t *testing.T) {
	ctx := context.Background()
	tr, _ := newTestTracker(t, 0)

	_, err := tr.StartSession(ctx, "", "Chess", t0)
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = tr.EndSession(ctx, "u1", "  ", t0)
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = tr.HandlePresence(ctx, "", nil, nil, t0)
	assert.ErrorIs(t, err, ErrInvalidInput)
}
