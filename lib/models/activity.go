package models

import (
	"database/sql"
	"strings"
	"time"
)

type Activity struct {
	ID        uint   `gorm:"primaryKey"`
	Name      string `gorm:"not null"`
	NameKey   string `gorm:"uniqueIndex;not null"`
	CreatedAt time.Time
}

// ActivitySession is open while EndedAt is NULL. The partial unique index
// allows at most one open session per user and activity.
type ActivitySession struct {
	ID           uint   `gorm:"primaryKey"`
	UserID       string `gorm:"not null;index:idx_session_lookup,priority:1;uniqueIndex:idx_session_open,where:ended_at IS NULL"`
	ActivityKey  string `gorm:"not null;index:idx_session_lookup,priority:2;uniqueIndex:idx_session_open,where:ended_at IS NULL"`
	ActivityName string `gorm:"not null"`
	StartedAt    time.Time
	StartedUnix  int64
	EndedAt      sql.NullTime `gorm:"index:idx_session_lookup,priority:3"`
	DurationSecs int64
}

func ActivityKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
