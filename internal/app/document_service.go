package app

import (
	"context"
	"errors"
	"path/filepath"
	"strings"

	"pdfchat/internal/ai"
	"pdfchat/internal/model"
	"pdfchat/internal/repository"
)

const (
	defaultChunkSize    = 512
	defaultChunkOverlap = 64
	defaultTopK         = 5
	embeddingBatchSize  = 10 // embedding APIs often limit batch size

	maxUploadBytes = 100 << 20
)

var (
	ErrFileTypeNotAllowed = errors.New("file type not allowed")
	ErrFileTooLarge       = errors.New("file too large")
	ErrNoExtractableText  = errors.New("no extractable text in file")
)

var allowedFileExtensions = map[string]bool{
	".pdf": true,
	".txt": true,
	".md":  true,
}

// DocumentService runs the upload pipeline: validate, extract text,
// chunk, embed, store the chunks in the session's collection and record
// the Document metadata through the SessionService.
type DocumentService struct {
	sessions  *SessionService
	chunkRepo *repository.ChunkRepository
	llmClient *ai.OpenAICompatibleClient
	embConfig ai.EmbeddingConfig
}

type IngestInput struct {
	UserID    uint
	SessionID uint
	FileName  string
	FileSize  int64
	Text      string
}

type IngestResult struct {
	Document   model.Document `json:"document"`
	ChunkCount int            `json:"chunk_count"`
}

func NewDocumentService(
	sessions *SessionService,
	chunkRepo *repository.ChunkRepository,
	llmClient *ai.OpenAICompatibleClient,
	embConfig ai.EmbeddingConfig,
) *DocumentService {
	return &DocumentService{
		sessions:  sessions,
		chunkRepo: chunkRepo,
		llmClient: llmClient,
		embConfig: embConfig,
	}
}

// AllowedExtension reports whether the file name carries an ingestable
// extension; used by the handler before reading the body.
func AllowedExtension(fileName string) bool {
	return allowedFileExtensions[strings.ToLower(filepath.Ext(fileName))]
}

// MaxUploadBytes is the upload size cap in bytes.
func MaxUploadBytes() int64 { return maxUploadBytes }

// Ingest adds extracted document text to the session's vector
// collection. The session must be ACTIVE and owned by the user.
func (s *DocumentService) Ingest(ctx context.Context, input IngestInput) (*IngestResult, error) {
	if input.UserID == 0 || input.SessionID == 0 {
		return nil, ErrInvalidInput
	}
	fileName := strings.TrimSpace(input.FileName)
	if fileName == "" {
		return nil, ErrInvalidInput
	}
	if !AllowedExtension(fileName) {
		return nil, ErrFileTypeNotAllowed
	}
	if input.FileSize > maxUploadBytes {
		return nil, ErrFileTooLarge
	}
	text := strings.TrimSpace(input.Text)
	if text == "" {
		return nil, ErrNoExtractableText
	}

	session, err := s.sessions.GetSession(input.SessionID, input.UserID)
	if err != nil {
		return nil, err
	}
	if session.Status != model.SessionActive {
		return nil, ErrSessionNotActive
	}

	chunks := chunkText(text, defaultChunkSize, defaultChunkOverlap)
	if len(chunks) == 0 {
		return nil, ErrNoExtractableText
	}

	// Embed in batches to stay under provider limits.
	var embeddings [][]float32
	for i := 0; i < len(chunks); i += embeddingBatchSize {
		end := i + embeddingBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batched, err := s.llmClient.EmbedBatch(ctx, s.embConfig, chunks[i:end])
		if err != nil {
			return nil, err
		}
		embeddings = append(embeddings, batched...)
	}
	if len(embeddings) != len(chunks) {
		return nil, errors.New("embedding count mismatch")
	}

	doc, err := s.sessions.AddDocument(AddDocumentInput{
		SessionID:  input.SessionID,
		UserID:     input.UserID,
		FileName:   fileName,
		FileSize:   input.FileSize,
		FileType:   strings.TrimPrefix(strings.ToLower(filepath.Ext(fileName)), "."),
		ChunkCount: len(chunks),
	})
	if err != nil {
		return nil, err
	}

	docChunks := make([]model.DocumentChunk, len(chunks))
	for i := range chunks {
		docChunks[i] = model.DocumentChunk{
			SessionID:  input.SessionID,
			DocumentID: doc.ID,
			ChunkIndex: i,
			Content:    chunks[i],
		}
		docChunks[i].SetEmbedding(embeddings[i])
	}
	if err := s.chunkRepo.CreateBatch(docChunks); err != nil {
		return nil, err
	}

	s.sessions.Touch(input.SessionID, input.UserID)
	return &IngestResult{Document: *doc, ChunkCount: len(docChunks)}, nil
}

// DeleteDocument removes one document and its chunks from the session.
func (s *DocumentService) DeleteDocument(userID, sessionID, documentID uint) error {
	if userID == 0 || sessionID == 0 || documentID == 0 {
		return ErrInvalidInput
	}
	if _, err := s.sessions.GetSession(sessionID, userID); err != nil {
		return err
	}

	doc, err := s.sessions.documents.GetByID(documentID)
	if err != nil {
		return err
	}
	if doc == nil || doc.SessionID != sessionID {
		return ErrSessionNotFound
	}

	if err := s.chunkRepo.DeleteByDocumentID(documentID); err != nil {
		return err
	}
	return s.sessions.documents.Delete(documentID)
}

// chunkText splits text into overlapping chunks by rune count.
func chunkText(text string, size, overlap int) []string {
	if size <= 0 {
		size = defaultChunkSize
	}
	if overlap >= size {
		overlap = size / 2
	}
	var chunks []string
	runes := []rune(text)
	for i := 0; i < len(runes); {
		end := i + size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[i:end]))
		i += size - overlap
		if i >= len(runes) {
			break
		}
	}
	return chunks
}
