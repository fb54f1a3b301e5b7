package repository

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"pdfchat/internal/model"
)

type SessionRepository struct {
	db *gorm.DB
}

func NewSessionRepository(db *gorm.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// WithTx returns a repository bound to the given transaction.
func (r *SessionRepository) WithTx(tx *gorm.DB) *SessionRepository {
	return &SessionRepository{db: tx}
}

func (r *SessionRepository) Create(session *model.Session) error {
	if err := r.db.Create(session).Error; err != nil {
		return fmt.Errorf("create session failed: %w", err)
	}
	return nil
}

func (r *SessionRepository) GetByIDAndUserID(sessionID, userID uint) (*model.Session, error) {
	var session model.Session
	if err := r.db.Where("id = ? AND user_id = ?", sessionID, userID).First(&session).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get session failed: %w", err)
	}
	return &session, nil
}

func (r *SessionRepository) ListByUserID(userID uint, status *model.SessionStatus, limit int) ([]model.Session, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}

	q := r.db.Where("user_id = ?", userID)
	if status != nil {
		q = q.Where("status = ?", *status)
	}

	var sessions []model.Session
	if err := q.Order("updated_at DESC").Limit(limit).Find(&sessions).Error; err != nil {
		return nil, fmt.Errorf("list sessions failed: %w", err)
	}
	return sessions, nil
}

func (r *SessionRepository) ListActiveByUserID(userID uint) ([]model.Session, error) {
	var sessions []model.Session
	err := r.db.
		Where("user_id = ? AND status = ?", userID, model.SessionActive).
		Order("updated_at DESC").
		Find(&sessions).Error
	if err != nil {
		return nil, fmt.Errorf("list active sessions failed: %w", err)
	}
	return sessions, nil
}

// UpdateState persists status and archived_at in a single UPDATE without
// touching updated_at; archival must not count as user activity.
func (r *SessionRepository) UpdateState(session *model.Session) error {
	err := r.db.Model(&model.Session{}).
		Where("id = ?", session.ID).
		UpdateColumns(map[string]any{
			"status":      session.Status,
			"archived_at": session.ArchivedAt,
		}).Error
	if err != nil {
		return fmt.Errorf("update session state failed: %w", err)
	}
	return nil
}

// UpdateStateTouching is UpdateState plus an updated_at bump, used by
// reactivation which does count as activity.
func (r *SessionRepository) UpdateStateTouching(session *model.Session, now time.Time) error {
	err := r.db.Model(&model.Session{}).
		Where("id = ?", session.ID).
		UpdateColumns(map[string]any{
			"status":      session.Status,
			"archived_at": session.ArchivedAt,
			"updated_at":  now,
		}).Error
	if err != nil {
		return fmt.Errorf("update session state failed: %w", err)
	}
	session.UpdatedAt = now
	return nil
}

// DeleteCascade removes the session row together with its document
// metadata in one transaction. Chunk and message rows belong to the
// secondary resources and are cleaned up by their owner beforehand.
func (r *SessionRepository) DeleteCascade(sessionID uint) error {
	err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("session_id = ?", sessionID).Delete(&model.Document{}).Error; err != nil {
			return err
		}
		return tx.Delete(&model.Session{}, sessionID).Error
	})
	if err != nil {
		return fmt.Errorf("delete session failed: %w", err)
	}
	return nil
}

// Touch bumps updated_at only; missing rows are ignored.
func (r *SessionRepository) Touch(sessionID uint, now time.Time) error {
	err := r.db.Model(&model.Session{}).
		Where("id = ?", sessionID).
		UpdateColumn("updated_at", now).Error
	if err != nil {
		return fmt.Errorf("touch session failed: %w", err)
	}
	return nil
}

func (r *SessionRepository) UpdateTitle(sessionID uint, title string) error {
	err := r.db.Model(&model.Session{}).
		Where("id = ?", sessionID).
		UpdateColumn("title", title).Error
	if err != nil {
		return fmt.Errorf("update session title failed: %w", err)
	}
	return nil
}

// ListActiveUpdatedBefore returns ACTIVE sessions whose updated_at is
// strictly older than the cutoff, across all users.
func (r *SessionRepository) ListActiveUpdatedBefore(cutoff time.Time) ([]model.Session, error) {
	var sessions []model.Session
	err := r.db.
		Where("status = ? AND updated_at < ?", model.SessionActive, cutoff).
		Find(&sessions).Error
	if err != nil {
		return nil, fmt.Errorf("list inactive sessions failed: %w", err)
	}
	return sessions, nil
}

// ListArchivedBefore returns ARCHIVED sessions whose archived_at is
// strictly older than the cutoff, across all users.
func (r *SessionRepository) ListArchivedBefore(cutoff time.Time) ([]model.Session, error) {
	var sessions []model.Session
	err := r.db.
		Where("status = ? AND archived_at < ?", model.SessionArchived, cutoff).
		Find(&sessions).Error
	if err != nil {
		return nil, fmt.Errorf("list expired archived sessions failed: %w", err)
	}
	return sessions, nil
}
