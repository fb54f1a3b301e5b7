package app

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"pdfchat/internal/lifecycle"
	"pdfchat/internal/model"
	"pdfchat/internal/repository"
)

var (
	ErrInvalidInput    = errors.New("invalid input")
	ErrUserNotFound    = errors.New("user not found")
	ErrSessionNotFound = errors.New("session not found")
)

// DefaultSessionTitle is the placeholder given to sessions created
// without an explicit title; it doubles as the "not yet renamed" marker.
const DefaultSessionTitle = "New Conversation"

// SecondaryResources is the narrow handle onto per-session state held
// outside the session store: the vector collection and the conversation
// memory. CountMessages reports 0 for sessions with no history.
type SecondaryResources interface {
	lifecycle.SecondaryCleaner
	CountMessages(ctx context.Context, sessionID uint) (int64, error)
}

// SessionService is the only entry point for session CRUD. It enforces
// ownership and the invariant that a user has at most one ACTIVE
// session after any create/reactivate/reclaim call returns.
type SessionService struct {
	users     *repository.UserRepository
	sessions  *repository.SessionRepository
	documents *repository.DocumentRepository
	txm       *repository.TxManager
	machine   *lifecycle.Machine
	secondary SecondaryResources
	log       *slog.Logger

	inactivityThreshold time.Duration
	retentionThreshold  time.Duration
}

type CreateSessionInput struct {
	UserID   uint
	Title    string
	Metadata map[string]interface{}
}

type AddDocumentInput struct {
	SessionID   uint
	UserID      uint
	FileName    string
	FileSize    int64
	FileType    string
	ChunkCount  int
	StoragePath string
}

// SweepResult reports what one retention sweep did.
type SweepResult struct {
	Archived int `json:"archived"`
	Deleted  int `json:"deleted"`
}

func NewSessionService(
	users *repository.UserRepository,
	sessions *repository.SessionRepository,
	documents *repository.DocumentRepository,
	txm *repository.TxManager,
	machine *lifecycle.Machine,
	secondary SecondaryResources,
	log *slog.Logger,
	inactivityThreshold time.Duration,
	retentionThreshold time.Duration,
) *SessionService {
	if inactivityThreshold <= 0 {
		inactivityThreshold = 30 * 24 * time.Hour
	}
	if retentionThreshold <= 0 {
		retentionThreshold = 90 * 24 * time.Hour
	}
	return &SessionService{
		users:               users,
		sessions:            sessions,
		documents:           documents,
		txm:                 txm,
		machine:             machine,
		secondary:           secondary,
		log:                 log,
		inactivityThreshold: inactivityThreshold,
		retentionThreshold:  retentionThreshold,
	}
}

// CreateSession inserts a new ACTIVE session for the user. Every other
// session currently ACTIVE for that user is archived first, so exactly
// one ACTIVE session remains: the new one. The whole sequence runs in
// one transaction holding a lock on the user row, serializing
// concurrent create/reactivate calls for the same user.
func (s *SessionService) CreateSession(input CreateSessionInput) (*model.Session, error) {
	if input.UserID == 0 {
		return nil, ErrInvalidInput
	}

	title := strings.TrimSpace(input.Title)
	if title == "" {
		title = DefaultSessionTitle
	}

	var created *model.Session
	err := s.txm.Run(func(tx *gorm.DB) error {
		user, err := s.users.WithTx(tx).GetByIDLocked(input.UserID)
		if err != nil {
			return err
		}
		if user == nil {
			return ErrUserNotFound
		}

		if err := s.archiveActiveSessions(tx, input.UserID, 0); err != nil {
			return err
		}

		session := &model.Session{
			UserID:   input.UserID,
			Status:   model.SessionActive,
			Title:    title,
			Metadata: datatypes.JSONMap(input.Metadata),
		}
		if err := s.sessions.WithTx(tx).Create(session); err != nil {
			return err
		}
		created = session
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("session created", "session_id", created.ID, "user_id", created.UserID)
	return created, nil
}

// GetSession returns the session only if it exists and belongs to
// userID. Nonexistence and foreign ownership are indistinguishable.
func (s *SessionService) GetSession(sessionID, userID uint) (*model.Session, error) {
	if sessionID == 0 || userID == 0 {
		return nil, ErrInvalidInput
	}
	session, err := s.sessions.GetByIDAndUserID(sessionID, userID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// ListSessions returns the user's sessions, optionally filtered by
// status, most recently updated first.
func (s *SessionService) ListSessions(userID uint, status *model.SessionStatus, limit int) ([]model.Session, error) {
	if userID == 0 {
		return nil, ErrInvalidInput
	}
	return s.sessions.ListByUserID(userID, status, limit)
}

func (s *SessionService) ArchiveSession(ctx context.Context, sessionID, userID uint) (*model.Session, error) {
	session, err := s.GetSession(sessionID, userID)
	if err != nil {
		return nil, err
	}
	if err := s.machine.Transition(ctx, session, model.SessionArchived, nil); err != nil {
		return nil, err
	}
	return session, nil
}

// ReactivateSession makes an archived session the user's single ACTIVE
// one, archiving whatever else was ACTIVE first.
func (s *SessionService) ReactivateSession(ctx context.Context, sessionID, userID uint) (*model.Session, error) {
	if sessionID == 0 || userID == 0 {
		return nil, ErrInvalidInput
	}

	var session *model.Session
	err := s.txm.Run(func(tx *gorm.DB) error {
		user, err := s.users.WithTx(tx).GetByIDLocked(userID)
		if err != nil {
			return err
		}
		if user == nil {
			return ErrSessionNotFound
		}

		session, err = s.sessions.WithTx(tx).GetByIDAndUserID(sessionID, userID)
		if err != nil {
			return err
		}
		if session == nil {
			return ErrSessionNotFound
		}

		if err := s.archiveActiveSessions(tx, userID, sessionID); err != nil {
			return err
		}
		return s.machine.WithTx(tx).Transition(ctx, session, model.SessionActive, nil)
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

// DeleteSession permanently removes the session, its document metadata
// and, best effort, its secondary resources. Never reversible.
func (s *SessionService) DeleteSession(ctx context.Context, sessionID, userID uint) error {
	session, err := s.GetSession(sessionID, userID)
	if err != nil {
		return err
	}
	return s.machine.Transition(ctx, session, model.SessionDeleted, s.secondary)
}

// AddDocument records metadata for a file ingested into the session's
// vector collection.
func (s *SessionService) AddDocument(input AddDocumentInput) (*model.Document, error) {
	if input.SessionID == 0 || input.UserID == 0 || strings.TrimSpace(input.FileName) == "" {
		return nil, ErrInvalidInput
	}
	if _, err := s.GetSession(input.SessionID, input.UserID); err != nil {
		return nil, err
	}

	doc := &model.Document{
		SessionID:   input.SessionID,
		FileName:    input.FileName,
		FileSize:    input.FileSize,
		FileType:    input.FileType,
		ChunkCount:  input.ChunkCount,
		StoragePath: input.StoragePath,
	}
	if err := s.documents.Create(doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// ListDocuments returns the session's document metadata, ownership checked.
func (s *SessionService) ListDocuments(sessionID, userID uint) ([]model.Document, error) {
	if _, err := s.GetSession(sessionID, userID); err != nil {
		return nil, err
	}
	return s.documents.ListBySessionID(sessionID)
}

// SetTitleIfPlaceholder renames the session only while it still
// carries the default placeholder title, so user-chosen titles are
// never overwritten.
func (s *SessionService) SetTitleIfPlaceholder(sessionID, userID uint, title string) error {
	session, err := s.GetSession(sessionID, userID)
	if err != nil {
		return err
	}
	if session.Title != DefaultSessionTitle {
		return nil
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return nil
	}
	return s.sessions.UpdateTitle(sessionID, title)
}

// Touch marks activity on the session. Non-fatal bookkeeping: a missing
// or foreign session is silently ignored.
func (s *SessionService) Touch(sessionID, userID uint) {
	session, err := s.sessions.GetByIDAndUserID(sessionID, userID)
	if err != nil || session == nil {
		return
	}
	if err := s.sessions.Touch(sessionID, time.Now().UTC()); err != nil {
		s.log.Warn("touch session failed", "session_id", sessionID, "error", err)
	}
}

// GetOrCreateEmptySession reuses an existing empty ACTIVE session
// instead of piling up a new one per login. Empty means zero attached
// documents and zero conversation messages. The most recently updated
// empty session is kept, redundant empties are hard-deleted, non-empty
// ACTIVE sessions are archived. If no empty session exists, a fresh one
// is created. Either way the user ends with exactly one ACTIVE session.
func (s *SessionService) GetOrCreateEmptySession(ctx context.Context, userID uint) (*model.Session, error) {
	if userID == 0 {
		return nil, ErrInvalidInput
	}

	var keeper *model.Session
	err := s.txm.Run(func(tx *gorm.DB) error {
		user, err := s.users.WithTx(tx).GetByIDLocked(userID)
		if err != nil {
			return err
		}
		if user == nil {
			return ErrUserNotFound
		}

		sessions := s.sessions.WithTx(tx)
		documents := s.documents.WithTx(tx)
		machine := s.machine.WithTx(tx)

		actives, err := sessions.ListActiveByUserID(userID)
		if err != nil {
			return err
		}

		var empties, nonEmpties []model.Session
		for _, session := range actives {
			empty, err := s.isEmpty(ctx, documents, session.ID)
			if err != nil {
				return err
			}
			if empty {
				empties = append(empties, session)
			} else {
				nonEmpties = append(nonEmpties, session)
			}
		}

		if len(empties) == 0 {
			for i := range actives {
				if err := machine.Transition(ctx, &actives[i], model.SessionArchived, nil); err != nil {
					return err
				}
			}
			session := &model.Session{
				UserID: userID,
				Status: model.SessionActive,
				Title:  DefaultSessionTitle,
			}
			if err := sessions.Create(session); err != nil {
				return err
			}
			keeper = session
			return nil
		}

		// ListActiveByUserID orders by updated_at DESC, so the first
		// empty session is the most recently updated one.
		keeper = &empties[0]
		for i := 1; i < len(empties); i++ {
			if err := machine.Transition(ctx, &empties[i], model.SessionDeleted, s.secondary); err != nil {
				return err
			}
		}
		for i := range nonEmpties {
			if err := machine.Transition(ctx, &nonEmpties[i], model.SessionArchived, nil); err != nil {
				return err
			}
		}

		now := time.Now().UTC()
		if err := sessions.Touch(keeper.ID, now); err != nil {
			return err
		}
		keeper.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("session reclaimed", "session_id", keeper.ID, "user_id", userID)
	return keeper, nil
}

// RunRetentionSweep archives ACTIVE sessions idle past the inactivity
// threshold and hard-deletes ARCHIVED sessions past the retention
// threshold. Each session is handled independently; one failure does
// not halt the batch.
func (s *SessionService) RunRetentionSweep(ctx context.Context) (SweepResult, error) {
	var result SweepResult
	now := time.Now().UTC()

	idle, err := s.sessions.ListActiveUpdatedBefore(now.Add(-s.inactivityThreshold))
	if err != nil {
		return result, err
	}
	for i := range idle {
		if err := s.machine.Transition(ctx, &idle[i], model.SessionArchived, nil); err != nil {
			s.log.Error("sweep archive failed", "session_id", idle[i].ID, "error", err)
			continue
		}
		result.Archived++
	}

	expired, err := s.sessions.ListArchivedBefore(now.Add(-s.retentionThreshold))
	if err != nil {
		return result, err
	}
	for i := range expired {
		if err := s.machine.Transition(ctx, &expired[i], model.SessionDeleted, s.secondary); err != nil {
			s.log.Error("sweep delete failed", "session_id", expired[i].ID, "error", err)
			continue
		}
		result.Deleted++
	}

	s.log.Info("retention sweep completed", "archived", result.Archived, "deleted", result.Deleted)
	return result, nil
}

func (s *SessionService) archiveActiveSessions(tx *gorm.DB, userID, exceptID uint) error {
	actives, err := s.sessions.WithTx(tx).ListActiveByUserID(userID)
	if err != nil {
		return err
	}
	machine := s.machine.WithTx(tx)
	for i := range actives {
		if actives[i].ID == exceptID {
			continue
		}
		if err := machine.Transition(context.Background(), &actives[i], model.SessionArchived, nil); err != nil {
			return err
		}
	}
	return nil
}

func (s *SessionService) isEmpty(ctx context.Context, documents *repository.DocumentRepository, sessionID uint) (bool, error) {
	docCount, err := documents.CountBySessionID(sessionID)
	if err != nil {
		return false, err
	}
	if docCount > 0 {
		return false, nil
	}
	msgCount, err := s.secondary.CountMessages(ctx, sessionID)
	if err != nil {
		return false, err
	}
	return msgCount == 0, nil
}
