package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"pdfchat/internal/model"
	"pdfchat/internal/repository"
)

// ErrInvalidTransition is returned when the requested state change is
// not reachable from the session's current status.
var ErrInvalidTransition = errors.New("invalid session state transition")

// SecondaryCleaner removes per-session state held outside the session
// store (vector collection, conversation memory). Failures are advisory:
// the caller logs them and proceeds.
type SecondaryCleaner interface {
	DeleteBySession(ctx context.Context, sessionID, userID uint) error
}

// Machine validates and executes session state transitions together
// with their side effects.
type Machine struct {
	sessions *repository.SessionRepository
	log      *slog.Logger
}

func NewMachine(sessions *repository.SessionRepository, log *slog.Logger) *Machine {
	return &Machine{sessions: sessions, log: log}
}

// WithTx returns a machine whose storage writes run inside tx.
func (m *Machine) WithTx(tx *gorm.DB) *Machine {
	return &Machine{sessions: m.sessions.WithTx(tx), log: m.log}
}

// Transition moves session to target, mutating the passed model on
// success. The DELETED branch first asks cleaner to drop secondary
// resources; any cleanup failure is logged and absorbed, and the
// session row (with its document metadata) is removed regardless.
func (m *Machine) Transition(ctx context.Context, session *model.Session, target model.SessionStatus, cleaner SecondaryCleaner) error {
	if !CanTransition(session.Status, target) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, session.Status, target)
	}

	switch target {
	case model.SessionArchived:
		return m.archive(session)
	case model.SessionActive:
		return m.reactivate(session)
	default:
		return m.hardDelete(ctx, session, cleaner)
	}
}

func (m *Machine) archive(session *model.Session) error {
	now := time.Now().UTC()
	session.Status = model.SessionArchived
	session.ArchivedAt = &now
	if err := m.sessions.UpdateState(session); err != nil {
		return err
	}
	m.log.Info("session archived", "session_id", session.ID, "user_id", session.UserID)
	return nil
}

func (m *Machine) reactivate(session *model.Session) error {
	session.Status = model.SessionActive
	session.ArchivedAt = nil
	if err := m.sessions.UpdateStateTouching(session, time.Now().UTC()); err != nil {
		return err
	}
	m.log.Info("session reactivated", "session_id", session.ID, "user_id", session.UserID)
	return nil
}

func (m *Machine) hardDelete(ctx context.Context, session *model.Session, cleaner SecondaryCleaner) error {
	if cleaner != nil {
		if err := cleaner.DeleteBySession(ctx, session.ID, session.UserID); err != nil {
			m.log.Warn("secondary cleanup failed",
				"event", "secondary_cleanup_failed",
				"session_id", session.ID,
				"user_id", session.UserID,
				"error", err,
			)
		}
	}

	if err := m.sessions.DeleteCascade(session.ID); err != nil {
		return err
	}
	session.Status = model.SessionDeleted
	m.log.Info("session permanently deleted", "session_id", session.ID, "user_id", session.UserID)
	return nil
}
