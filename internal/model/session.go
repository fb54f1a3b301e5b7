package model

import (
	"fmt"
	"time"

	"gorm.io/datatypes"
)

// SessionStatus is the lifecycle state of a conversation session.
type SessionStatus string

const (
	SessionActive   SessionStatus = "ACTIVE"
	SessionArchived SessionStatus = "ARCHIVED"
	// SessionDeleted is terminal; the row is removed on this transition,
	// so the value never appears in storage.
	SessionDeleted SessionStatus = "DELETED"
)

// ParseSessionStatus validates a raw status string, e.g. a list filter.
func ParseSessionStatus(raw string) (SessionStatus, error) {
	switch SessionStatus(raw) {
	case SessionActive, SessionArchived, SessionDeleted:
		return SessionStatus(raw), nil
	}
	return "", fmt.Errorf("unknown session status %q", raw)
}

// Session is a conversation context owned by exactly one user.
// ArchivedAt is non-nil iff Status is SessionArchived.
type Session struct {
	ID         uint              `gorm:"primaryKey" json:"id"`
	UserID     uint              `gorm:"not null;index;index:idx_sessions_user_status,priority:1" json:"user_id"`
	Status     SessionStatus     `gorm:"type:varchar(16);not null;index:idx_sessions_user_status,priority:2" json:"status"`
	Title      string            `gorm:"size:256;not null" json:"title"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
	ArchivedAt *time.Time        `json:"archived_at,omitempty"`
	Metadata   datatypes.JSONMap `json:"metadata,omitempty"`
}
