package store

import (
	"context"
	"fmt"
	"time"
)

// Access log events.
const (
	EventConnect     = "connect"
	EventDisconnect  = "disconnect"
	EventAuthSuccess = "auth_success"
	EventAuthFail    = "auth_fail"
)

// sessionIDLen is how much of a session id is stored.
const sessionIDLen = 16

// AccessLog is one connection or authentication event.
type AccessLog struct {
	ID        uint      `gorm:"primaryKey"`
	Timestamp time.Time `gorm:"not null;index"`
	Event     string    `gorm:"size:32;not null"`
	ClientIP  string    `gorm:"size:64"`
	SessionID string    `gorm:"size:16"`
	Details   string
}

func (AccessLog) TableName() string { return "access_log" }

// LogAccess records an access event. A zero timestamp is set to now.
func (s *Store) LogAccess(ctx context.Context, entry AccessLog) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	if len(entry.SessionID) > sessionIDLen {
		entry.SessionID = entry.SessionID[:sessionIDLen]
	}
	if err := s.db.WithContext(ctx).Create(&entry).Error; err != nil {
		return fmt.Errorf("insert access log: %w", err)
	}
	return nil
}

// RecentAccess returns up to limit entries, newest first.
func (s *Store) RecentAccess(ctx context.Context, limit int) ([]AccessLog, error) {
	var entries []AccessLog
	err := s.db.WithContext(ctx).Order("id DESC").Limit(limit).Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("query access log: %w", err)
	}
	return entries, nil
}
