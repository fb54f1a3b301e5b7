package app

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdfchat/internal/ai"
	"pdfchat/internal/repository"
)

type documentFixture struct {
	*sessionFixture
	docs   *DocumentService
	chunks *repository.ChunkRepository
	stub   *llmStub
}

func setupDocumentService(t *testing.T) *documentFixture {
	f := setupSessionService(t)
	stub := newLLMStub(t, "")
	chunkRepo := repository.NewChunkRepository(f.db)
	embConfig := ai.EmbeddingConfig{BaseURL: stub.server.URL, Model: "test-embed"}

	docs := NewDocumentService(f.service, chunkRepo, ai.NewOpenAICompatibleClient(), embConfig)
	return &documentFixture{sessionFixture: f, docs: docs, chunks: chunkRepo, stub: stub}
}

func TestIngest(t *testing.T) {
	ctx := context.Background()

	t.Run("chunks, embeds and records the document", func(t *testing.T) {
		f := setupDocumentService(t)
		session, err := f.service.CreateSession(CreateSessionInput{UserID: f.userID})
		require.NoError(t, err)

		text := strings.Repeat("the quarterly report shows steady growth. ", 30)
		result, err := f.docs.Ingest(ctx, IngestInput{
			UserID: f.userID, SessionID: session.ID, FileName: "report.pdf", FileSize: 2048, Text: text,
		})
		require.NoError(t, err)
		assert.Equal(t, "report.pdf", result.Document.FileName)
		assert.Equal(t, "pdf", result.Document.FileType)
		assert.Greater(t, result.ChunkCount, 1)
		assert.Equal(t, result.ChunkCount, result.Document.ChunkCount)

		stored, err := f.chunks.ListBySessionID(session.ID)
		require.NoError(t, err)
		require.Len(t, stored, result.ChunkCount)
		assert.NotEmpty(t, stored[0].EmbeddingVector())
		assert.GreaterOrEqual(t, f.stub.embedRequests, 1)
	})

	t.Run("rejects unknown extensions", func(t *testing.T) {
		f := setupDocumentService(t)
		session, err := f.service.CreateSession(CreateSessionInput{UserID: f.userID})
		require.NoError(t, err)

		_, err = f.docs.Ingest(ctx, IngestInput{
			UserID: f.userID, SessionID: session.ID, FileName: "malware.exe", Text: "content",
		})
		assert.ErrorIs(t, err, ErrFileTypeNotAllowed)
	})

	t.Run("rejects oversized files", func(t *testing.T) {
		f := setupDocumentService(t)
		session, err := f.service.CreateSession(CreateSessionInput{UserID: f.userID})
		require.NoError(t, err)

		_, err = f.docs.Ingest(ctx, IngestInput{
			UserID: f.userID, SessionID: session.ID, FileName: "big.pdf",
			FileSize: MaxUploadBytes() + 1, Text: "content",
		})
		assert.ErrorIs(t, err, ErrFileTooLarge)
	})

	t.Run("rejects empty text", func(t *testing.T) {
		f := setupDocumentService(t)
		session, err := f.service.CreateSession(CreateSessionInput{UserID: f.userID})
		require.NoError(t, err)

		_, err = f.docs.Ingest(ctx, IngestInput{
			UserID: f.userID, SessionID: session.ID, FileName: "scan.pdf", Text: "   ",
		})
		assert.ErrorIs(t, err, ErrNoExtractableText)
	})

	t.Run("rejects archived sessions", func(t *testing.T) {
		f := setupDocumentService(t)
		session, err := f.service.CreateSession(CreateSessionInput{UserID: f.userID})
		require.NoError(t, err)
		_, err = f.service.ArchiveSession(ctx, session.ID, f.userID)
		require.NoError(t, err)

		_, err = f.docs.Ingest(ctx, IngestInput{
			UserID: f.userID, SessionID: session.ID, FileName: "late.pdf", Text: "content",
		})
		assert.ErrorIs(t, err, ErrSessionNotActive)
	})
}

func TestDeleteDocument(t *testing.T) {
	ctx := context.Background()
	f := setupDocumentService(t)

	session, err := f.service.CreateSession(CreateSessionInput{UserID: f.userID})
	require.NoError(t, err)
	result, err := f.docs.Ingest(ctx, IngestInput{
		UserID: f.userID, SessionID: session.ID, FileName: "notes.txt", Text: "short note",
	})
	require.NoError(t, err)

	require.NoError(t, f.docs.DeleteDocument(f.userID, session.ID, result.Document.ID))

	remaining, err := f.service.ListDocuments(session.ID, f.userID)
	require.NoError(t, err)
	assert.Empty(t, remaining)

	chunks, err := f.chunks.ListBySessionID(session.ID)
	require.NoError(t, err)
	assert.Empty(t, chunks)

	t.Run("document must belong to the session", func(t *testing.T) {
		other, err := f.service.CreateSession(CreateSessionInput{UserID: f.userID})
		require.NoError(t, err)
		res, err := f.docs.Ingest(ctx, IngestInput{
			UserID: f.userID, SessionID: other.ID, FileName: "a.md", Text: "content",
		})
		require.NoError(t, err)

		err = f.docs.DeleteDocument(f.userID, session.ID, res.Document.ID)
		assert.ErrorIs(t, err, ErrSessionNotFound)
	})
}

func TestChunkText(t *testing.T) {
	t.Run("overlapping windows", func(t *testing.T) {
		chunks := chunkText(strings.Repeat("a", 100), 40, 10)
		require.Len(t, chunks, 4)
		assert.Len(t, chunks[0], 40)
		assert.Len(t, chunks[3], 10)
	})

	t.Run("short input is a single chunk", func(t *testing.T) {
		chunks := chunkText("tiny", 40, 10)
		require.Len(t, chunks, 1)
		assert.Equal(t, "tiny", chunks[0])
	})
}
