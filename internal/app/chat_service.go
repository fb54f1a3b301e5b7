package app

import (
	"context"
	"errors"
	"math"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"pdfchat/internal/ai"
	"pdfchat/internal/model"
	"pdfchat/internal/repository"
)

var (
	ErrSessionNotActive = errors.New("session is not active")
	ErrMessageEmpty     = errors.New("message content is empty")
	ErrLLMConfig        = errors.New("llm config is invalid")
	ErrMessageEnqueue   = errors.New("message enqueue failed")
)

const autoTitleMaxRunes = 48

type AsyncMessagePublisher interface {
	Publish(ctx context.Context, msg model.Message) error
}

type HistoryCache interface {
	GetHistory(ctx context.Context, sessionID uint) ([]model.Message, bool, error)
	SetHistory(ctx context.Context, sessionID uint, messages []model.Message) error
	DeleteHistory(ctx context.Context, sessionID uint) error
	MarkDirty(ctx context.Context, sessionID uint) error
	IsDirty(ctx context.Context, sessionID uint) (bool, error)
}

// ChatService answers user messages grounded on the documents uploaded
// to the session. Session resolution and activity tracking go through
// the SessionService; chat turns are persisted asynchronously.
type ChatService struct {
	sessions     *SessionService
	messageRepo  *repository.MessageRepository
	chunkRepo    *repository.ChunkRepository
	publisher    AsyncMessagePublisher
	historyCache HistoryCache
	llmClient    *ai.OpenAICompatibleClient
	chatConfig   ai.ChatConfig
	embConfig    ai.EmbeddingConfig
	maxContext   int
	topK         int
}

type SendMessageInput struct {
	UserID    uint
	SessionID uint
	Content   string
}

type SendMessageResult struct {
	Messages []model.Message `json:"messages"`
}

func NewChatService(
	sessions *SessionService,
	messageRepo *repository.MessageRepository,
	chunkRepo *repository.ChunkRepository,
	publisher AsyncMessagePublisher,
	historyCache HistoryCache,
	llmClient *ai.OpenAICompatibleClient,
	chatConfig ai.ChatConfig,
	embConfig ai.EmbeddingConfig,
	maxContext int,
) *ChatService {
	if maxContext <= 0 {
		maxContext = 20
	}
	return &ChatService{
		sessions:     sessions,
		messageRepo:  messageRepo,
		chunkRepo:    chunkRepo,
		publisher:    publisher,
		historyCache: historyCache,
		llmClient:    llmClient,
		chatConfig:   chatConfig,
		embConfig:    embConfig,
		maxContext:   maxContext,
		topK:         defaultTopK,
	}
}

// SendMessage runs one chat turn on the user's ACTIVE session: retrieve
// document context, call the LLM, enqueue both turns for persistence
// and mark session activity.
func (s *ChatService) SendMessage(ctx context.Context, input SendMessageInput) (*SendMessageResult, error) {
	if input.UserID == 0 || input.SessionID == 0 {
		return nil, ErrInvalidInput
	}
	content := strings.TrimSpace(input.Content)
	if content == "" {
		return nil, ErrMessageEmpty
	}

	session, err := s.sessions.GetSession(input.SessionID, input.UserID)
	if err != nil {
		return nil, err
	}
	if session.Status != model.SessionActive {
		return nil, ErrSessionNotActive
	}

	if s.chatConfig.BaseURL == "" || s.chatConfig.Model == "" {
		return nil, ErrLLMConfig
	}
	if s.publisher == nil {
		return nil, ErrMessageEnqueue
	}

	promptMessages, err := s.buildPromptMessages(ctx, input.SessionID, content)
	if err != nil {
		return nil, err
	}

	s.sessions.Touch(input.SessionID, input.UserID)
	if session.Title == DefaultSessionTitle {
		_ = s.sessions.SetTitleIfPlaceholder(input.SessionID, input.UserID, autoTitle(content))
	}

	userMessage := model.Message{
		SessionID: input.SessionID,
		UserID:    input.UserID,
		Role:      "user",
		Content:   content,
		CreatedAt: time.Now(),
	}
	if s.historyCache != nil {
		_ = s.historyCache.MarkDirty(ctx, input.SessionID)
		_ = s.historyCache.DeleteHistory(ctx, input.SessionID)
	}
	if err := s.publisher.Publish(ctx, userMessage); err != nil {
		return nil, ErrMessageEnqueue
	}

	assistantContent, err := s.llmClient.Complete(ctx, s.chatConfig, promptMessages)
	if err != nil {
		return nil, err
	}
	assistantContent = strings.TrimSpace(assistantContent)
	if assistantContent == "" {
		assistantContent = "The model returned an empty response."
	}

	assistantMessage := model.Message{
		SessionID: input.SessionID,
		UserID:    input.UserID,
		Role:      "assistant",
		Content:   assistantContent,
		CreatedAt: time.Now(),
	}
	if err := s.publisher.Publish(ctx, assistantMessage); err != nil {
		return nil, ErrMessageEnqueue
	}

	return &SendMessageResult{Messages: []model.Message{userMessage, assistantMessage}}, nil
}

// GetHistory returns the session's conversation, served from the redis
// cache when it is warm and not dirty.
func (s *ChatService) GetHistory(ctx context.Context, userID, sessionID uint, limit int) ([]model.Message, error) {
	if userID == 0 || sessionID == 0 {
		return nil, ErrInvalidInput
	}
	if _, err := s.sessions.GetSession(sessionID, userID); err != nil {
		return nil, err
	}

	if s.historyCache != nil {
		dirty, err := s.historyCache.IsDirty(ctx, sessionID)
		if err == nil && !dirty {
			if cached, hit, cacheErr := s.historyCache.GetHistory(ctx, sessionID); cacheErr == nil && hit {
				return trimMessages(cached, limit), nil
			}
		}
	}

	messages, err := s.messageRepo.ListBySessionID(sessionID, limit)
	if err != nil {
		return nil, err
	}
	if s.historyCache != nil {
		if dirty, dirtyErr := s.historyCache.IsDirty(ctx, sessionID); dirtyErr == nil && !dirty {
			_ = s.historyCache.SetHistory(ctx, sessionID, messages)
		}
	}
	return messages, nil
}

// buildPromptMessages assembles system prompt, retrieved chunk context
// and recent conversation history around the current input.
func (s *ChatService) buildPromptMessages(ctx context.Context, sessionID uint, currentUserInput string) ([]ai.ChatMessage, error) {
	recent, err := s.messageRepo.ListRecentBySessionID(sessionID, s.maxContext)
	if err != nil {
		return nil, err
	}

	systemContent := "You are a concise and helpful document assistant. Ground your answers on the provided document context when it is relevant; say so when it is not sufficient."
	contextBlock, err := s.retrieveContext(ctx, sessionID, currentUserInput)
	if err != nil {
		return nil, err
	}
	if contextBlock != "" {
		systemContent += "\n\nDocument context:" + contextBlock
	}

	messages := make([]ai.ChatMessage, 0, len(recent)+2)
	messages = append(messages, ai.ChatMessage{Role: "system", Content: systemContent})
	for _, item := range recent {
		role := item.Role
		if role == "" {
			role = "user"
		}
		messages = append(messages, ai.ChatMessage{Role: role, Content: item.Content})
	}
	messages = append(messages, ai.ChatMessage{Role: "user", Content: currentUserInput})
	return messages, nil
}

// retrieveContext ranks the session's chunks against the query
// embedding and returns the top-k block, or "" when the session holds
// no documents.
func (s *ChatService) retrieveContext(ctx context.Context, sessionID uint, query string) (string, error) {
	chunks, err := s.chunkRepo.ListBySessionID(sessionID)
	if err != nil {
		return "", err
	}
	if len(chunks) == 0 {
		return "", nil
	}

	queryEmb, err := s.llmClient.Embed(ctx, s.embConfig, query)
	if err != nil {
		return "", err
	}

	type scoredChunk struct {
		chunk model.DocumentChunk
		score float32
	}
	scored := make([]scoredChunk, len(chunks))
	for i := range chunks {
		scored[i] = scoredChunk{chunk: chunks[i], score: cosineSimilarity(queryEmb, chunks[i].EmbeddingVector())}
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].score > scored[j].score })

	k := s.topK
	if k > len(scored) {
		k = len(scored)
	}

	var b strings.Builder
	for i := 0; i < k; i++ {
		b.WriteString("\n---\n")
		b.WriteString(scored[i].chunk.Content)
	}
	b.WriteString("\n---")
	return b.String(), nil
}

func trimMessages(messages []model.Message, limit int) []model.Message {
	if limit <= 0 || limit >= len(messages) {
		return messages
	}
	return messages[len(messages)-limit:]
}

func autoTitle(content string) string {
	title := strings.Join(strings.Fields(content), " ")
	if utf8.RuneCountInString(title) <= autoTitleMaxRunes {
		return title
	}
	runes := []rune(title)
	return string(runes[:autoTitleMaxRunes])
}

func cosineSimilarity(a, b []float32) float32 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float32
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA <= 0 || normB <= 0 {
		return 0
	}
	return dot / float32(math.Sqrt(float64(normA))*math.Sqrt(float64(normB)))
}
