package lifecycle

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"pdfchat/internal/model"
	"pdfchat/internal/repository"
)

func setupMachine(t *testing.T) (*Machine, *repository.SessionRepository, *gorm.DB) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.Session{}, &model.Document{}))

	sessions := repository.NewSessionRepository(db)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewMachine(sessions, log), sessions, db
}

func createSession(t *testing.T, repo *repository.SessionRepository, status model.SessionStatus) *model.Session {
	session := &model.Session{UserID: 1, Status: status, Title: "test"}
	if status == model.SessionArchived {
		archivedAt := time.Now().UTC().Add(-time.Hour)
		session.ArchivedAt = &archivedAt
	}
	require.NoError(t, repo.Create(session))
	return session
}

type recordingCleaner struct {
	calls []uint
	err   error
}

func (c *recordingCleaner) DeleteBySession(_ context.Context, sessionID, _ uint) error {
	c.calls = append(c.calls, sessionID)
	return c.err
}

func TestMachineArchive(t *testing.T) {
	machine, repo, _ := setupMachine(t)
	ctx := context.Background()

	session := createSession(t, repo, model.SessionActive)
	before := session.UpdatedAt

	err := machine.Transition(ctx, session, model.SessionArchived, nil)
	require.NoError(t, err)
	assert.Equal(t, model.SessionArchived, session.Status)
	require.NotNil(t, session.ArchivedAt)

	stored, err := repo.GetByIDAndUserID(session.ID, session.UserID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, model.SessionArchived, stored.Status)
	require.NotNil(t, stored.ArchivedAt)
	assert.WithinDuration(t, time.Now().UTC(), *stored.ArchivedAt, 5*time.Second)

	// archiving is not user activity
	assert.Equal(t, before.Unix(), stored.UpdatedAt.Unix())
}

func TestMachineReactivate(t *testing.T) {
	machine, repo, _ := setupMachine(t)
	ctx := context.Background()

	session := createSession(t, repo, model.SessionArchived)

	err := machine.Transition(ctx, session, model.SessionActive, nil)
	require.NoError(t, err)
	assert.Equal(t, model.SessionActive, session.Status)
	assert.Nil(t, session.ArchivedAt)

	stored, err := repo.GetByIDAndUserID(session.ID, session.UserID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, model.SessionActive, stored.Status)
	assert.Nil(t, stored.ArchivedAt)
	assert.WithinDuration(t, time.Now().UTC(), stored.UpdatedAt, 5*time.Second)
}

func TestMachineRejectsInvalidTransitions(t *testing.T) {
	machine, repo, _ := setupMachine(t)
	ctx := context.Background()

	t.Run("active to active", func(t *testing.T) {
		session := createSession(t, repo, model.SessionActive)
		err := machine.Transition(ctx, session, model.SessionActive, nil)
		assert.ErrorIs(t, err, ErrInvalidTransition)
	})

	t.Run("archived to archived", func(t *testing.T) {
		session := createSession(t, repo, model.SessionArchived)
		err := machine.Transition(ctx, session, model.SessionArchived, nil)
		assert.ErrorIs(t, err, ErrInvalidTransition)
	})

	t.Run("deleted is terminal", func(t *testing.T) {
		session := &model.Session{ID: 999, UserID: 1, Status: model.SessionDeleted}
		assert.ErrorIs(t, machine.Transition(ctx, session, model.SessionActive, nil), ErrInvalidTransition)
		assert.ErrorIs(t, machine.Transition(ctx, session, model.SessionArchived, nil), ErrInvalidTransition)
	})
}

func TestMachineHardDelete(t *testing.T) {
	machine, repo, db := setupMachine(t)
	ctx := context.Background()

	session := createSession(t, repo, model.SessionActive)
	require.NoError(t, db.Create(&model.Document{SessionID: session.ID, FileName: "a.pdf"}).Error)

	cleaner := &recordingCleaner{}
	err := machine.Transition(ctx, session, model.SessionDeleted, cleaner)
	require.NoError(t, err)
	assert.Equal(t, model.SessionDeleted, session.Status)
	assert.Equal(t, []uint{session.ID}, cleaner.calls)

	stored, err := repo.GetByIDAndUserID(session.ID, session.UserID)
	require.NoError(t, err)
	assert.Nil(t, stored)

	var docCount int64
	require.NoError(t, db.Model(&model.Document{}).Where("session_id = ?", session.ID).Count(&docCount).Error)
	assert.Zero(t, docCount)
}

func TestMachineHardDeleteSurvivesCleanerFailure(t *testing.T) {
	machine, repo, _ := setupMachine(t)
	ctx := context.Background()

	session := createSession(t, repo, model.SessionArchived)
	cleaner := &recordingCleaner{err: errors.New("vector store unavailable")}

	err := machine.Transition(ctx, session, model.SessionDeleted, cleaner)
	require.NoError(t, err)

	stored, err := repo.GetByIDAndUserID(session.ID, session.UserID)
	require.NoError(t, err)
	assert.Nil(t, stored)
}
