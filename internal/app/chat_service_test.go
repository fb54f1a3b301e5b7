package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdfchat/internal/ai"
	"pdfchat/internal/model"
	"pdfchat/internal/repository"
)

type fakePublisher struct {
	mu       sync.Mutex
	messages []model.Message
	err      error
}

func (p *fakePublisher) Publish(_ context.Context, msg model.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.messages = append(p.messages, msg)
	return nil
}

type memoryHistoryCache struct {
	history map[uint][]model.Message
	dirty   map[uint]bool
}

func newMemoryHistoryCache() *memoryHistoryCache {
	return &memoryHistoryCache{history: map[uint][]model.Message{}, dirty: map[uint]bool{}}
}

func (c *memoryHistoryCache) GetHistory(_ context.Context, sessionID uint) ([]model.Message, bool, error) {
	msgs, ok := c.history[sessionID]
	return msgs, ok, nil
}

func (c *memoryHistoryCache) SetHistory(_ context.Context, sessionID uint, messages []model.Message) error {
	c.history[sessionID] = messages
	return nil
}

func (c *memoryHistoryCache) DeleteHistory(_ context.Context, sessionID uint) error {
	delete(c.history, sessionID)
	return nil
}

func (c *memoryHistoryCache) MarkDirty(_ context.Context, sessionID uint) error {
	c.dirty[sessionID] = true
	return nil
}

func (c *memoryHistoryCache) IsDirty(_ context.Context, sessionID uint) (bool, error) {
	return c.dirty[sessionID], nil
}

// llmStub serves /chat/completions and /embeddings the way an
// OpenAI-compatible API does.
type llmStub struct {
	server        *httptest.Server
	completions   int
	embedRequests int
	reply         string
}

func newLLMStub(t *testing.T, reply string) *llmStub {
	stub := &llmStub{reply: reply}
	mux := http.NewServeMux()
	mux.HandleFunc("/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		stub.completions++
		resp := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": stub.reply}},
			},
		}
		_ = json.NewEncoder(w).Encode(resp)
	})
	mux.HandleFunc("/embeddings", func(w http.ResponseWriter, r *http.Request) {
		stub.embedRequests++
		var body struct {
			Input any `json:"input"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		count := 1
		if arr, ok := body.Input.([]any); ok {
			count = len(arr)
		}
		data := make([]map[string]any, count)
		for i := range data {
			data[i] = map[string]any{"embedding": []float32{1, 0, 0}}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"data": data})
	})
	stub.server = httptest.NewServer(mux)
	t.Cleanup(stub.server.Close)
	return stub
}

type chatFixture struct {
	*sessionFixture
	chat      *ChatService
	publisher *fakePublisher
	cache     *memoryHistoryCache
	stub      *llmStub
	messages  *repository.MessageRepository
	chunks    *repository.ChunkRepository
}

func setupChatService(t *testing.T) *chatFixture {
	f := setupSessionService(t)
	stub := newLLMStub(t, "grounded answer")

	publisher := &fakePublisher{}
	cache := newMemoryHistoryCache()
	messageRepo := repository.NewMessageRepository(f.db)
	chunkRepo := repository.NewChunkRepository(f.db)
	chatConfig := ai.ChatConfig{BaseURL: stub.server.URL, Model: "test-model"}
	embConfig := ai.EmbeddingConfig{BaseURL: stub.server.URL, Model: "test-embed"}

	chat := NewChatService(f.service, messageRepo, chunkRepo, publisher, cache, ai.NewOpenAICompatibleClient(), chatConfig, embConfig, 10)
	return &chatFixture{
		sessionFixture: f,
		chat:           chat,
		publisher:      publisher,
		cache:          cache,
		stub:           stub,
		messages:       messageRepo,
		chunks:         chunkRepo,
	}
}

func TestSendMessage(t *testing.T) {
	ctx := context.Background()

	t.Run("publishes both turns and titles the session", func(t *testing.T) {
		f := setupChatService(t)
		session, err := f.service.CreateSession(CreateSessionInput{UserID: f.userID})
		require.NoError(t, err)

		result, err := f.chat.SendMessage(ctx, SendMessageInput{
			UserID: f.userID, SessionID: session.ID, Content: "What does the report conclude?",
		})
		require.NoError(t, err)
		require.Len(t, result.Messages, 2)
		assert.Equal(t, "user", result.Messages[0].Role)
		assert.Equal(t, "assistant", result.Messages[1].Role)
		assert.Equal(t, "grounded answer", result.Messages[1].Content)
		assert.Len(t, f.publisher.messages, 2)
		assert.Equal(t, 1, f.stub.completions)
		// no documents uploaded, so no retrieval round trip
		assert.Equal(t, 0, f.stub.embedRequests)

		stored, err := f.sessions.GetByIDAndUserID(session.ID, f.userID)
		require.NoError(t, err)
		assert.Equal(t, "What does the report conclude?", stored.Title)
	})

	t.Run("retrieves chunk context when documents exist", func(t *testing.T) {
		f := setupChatService(t)
		session, err := f.service.CreateSession(CreateSessionInput{UserID: f.userID})
		require.NoError(t, err)

		chunk := model.DocumentChunk{SessionID: session.ID, DocumentID: 1, ChunkIndex: 0, Content: "revenue grew 12%"}
		chunk.SetEmbedding([]float32{1, 0, 0})
		require.NoError(t, f.chunks.CreateBatch([]model.DocumentChunk{chunk}))

		_, err = f.chat.SendMessage(ctx, SendMessageInput{
			UserID: f.userID, SessionID: session.ID, Content: "how did revenue do?",
		})
		require.NoError(t, err)
		assert.Equal(t, 1, f.stub.embedRequests)
	})

	t.Run("rejects archived sessions", func(t *testing.T) {
		f := setupChatService(t)
		session, err := f.service.CreateSession(CreateSessionInput{UserID: f.userID})
		require.NoError(t, err)
		_, err = f.service.ArchiveSession(ctx, session.ID, f.userID)
		require.NoError(t, err)

		_, err = f.chat.SendMessage(ctx, SendMessageInput{
			UserID: f.userID, SessionID: session.ID, Content: "hello",
		})
		assert.ErrorIs(t, err, ErrSessionNotActive)
	})

	t.Run("rejects empty content", func(t *testing.T) {
		f := setupChatService(t)
		session, err := f.service.CreateSession(CreateSessionInput{UserID: f.userID})
		require.NoError(t, err)

		_, err = f.chat.SendMessage(ctx, SendMessageInput{
			UserID: f.userID, SessionID: session.ID, Content: "   ",
		})
		assert.ErrorIs(t, err, ErrMessageEmpty)
	})

	t.Run("foreign session", func(t *testing.T) {
		f := setupChatService(t)
		session, err := f.service.CreateSession(CreateSessionInput{UserID: f.userID})
		require.NoError(t, err)

		_, err = f.chat.SendMessage(ctx, SendMessageInput{
			UserID: f.userID + 1, SessionID: session.ID, Content: "hello",
		})
		assert.ErrorIs(t, err, ErrSessionNotFound)
	})
}

func TestGetHistory(t *testing.T) {
	ctx := context.Background()
	f := setupChatService(t)

	session, err := f.service.CreateSession(CreateSessionInput{UserID: f.userID})
	require.NoError(t, err)
	for _, content := range []string{"first", "second", "third"} {
		require.NoError(t, f.messages.Create(&model.Message{
			SessionID: session.ID, UserID: f.userID, Role: "user", Content: content,
		}))
	}

	t.Run("reads from the store and warms the cache", func(t *testing.T) {
		got, err := f.chat.GetHistory(ctx, f.userID, session.ID, 0)
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, "first", got[0].Content)

		cached, hit := f.cache.history[session.ID]
		require.True(t, hit)
		assert.Len(t, cached, 3)
	})

	t.Run("serves the warm cache", func(t *testing.T) {
		f.cache.history[session.ID] = []model.Message{{Content: "cached"}}
		got, err := f.chat.GetHistory(ctx, f.userID, session.ID, 0)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "cached", got[0].Content)
	})

	t.Run("dirty marker bypasses the cache", func(t *testing.T) {
		f.cache.dirty[session.ID] = true
		got, err := f.chat.GetHistory(ctx, f.userID, session.ID, 0)
		require.NoError(t, err)
		assert.Len(t, got, 3)
	})

	t.Run("ownership check", func(t *testing.T) {
		_, err := f.chat.GetHistory(ctx, f.userID+1, session.ID, 0)
		assert.ErrorIs(t, err, ErrSessionNotFound)
	})
}

func TestAutoTitle(t *testing.T) {
	assert.Equal(t, "short question", autoTitle("short   question"))

	long := ""
	for i := 0; i < 20; i++ {
		long += "words "
	}
	title := autoTitle(long)
	assert.LessOrEqual(t, len([]rune(title)), autoTitleMaxRunes)
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, cosineSimilarity([]float32{1, 0}, []float32{2, 0}), 1e-6)
	assert.InDelta(t, 0.0, cosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-6)
	assert.Zero(t, cosineSimilarity([]float32{1, 0}, []float32{1}))
	assert.Zero(t, cosineSimilarity(nil, nil))
}
